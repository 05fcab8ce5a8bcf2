// Package plans holds the server-side plan table. Prices and allowances come
// from here and never from the client.
package plans

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/timex"
)

// Plan is one purchasable tier. Amount is in major currency units.
type Plan struct {
	ID               string `json:"id" mapstructure:"id"`
	Name             string `json:"name" mapstructure:"name"`
	Amount           int64  `json:"amount" mapstructure:"amount"`
	Currency         string `json:"currency" mapstructure:"currency"`
	DurationDays     int    `json:"duration_days" mapstructure:"duration_days"`
	MessageAllowance int64  `json:"message_allowance" mapstructure:"message_allowance"`
	SendAllowance    int64  `json:"send_allowance" mapstructure:"send_allowance"`
}

// Duration is the subscription length granted on settlement.
func (p Plan) Duration() time.Duration {
	return timex.Days(p.DurationDays)
}

// AmountMinor is the price in the currency's minor unit, as gateways expect it.
func (p Plan) AmountMinor() (int64, error) {
	return ToMinor(p.Amount, p.Currency)
}

// Defaults is the plan table used when the configuration does not provide one.
func Defaults() []Plan {
	return []Plan{
		{
			ID:               "premium",
			Name:             "Premium Plan",
			Amount:           5666,
			Currency:         "INR",
			DurationDays:     30,
			MessageAllowance: 1000,
			SendAllowance:    500,
		},
	}
}

// Catalog is an immutable, validated plan table.
type Catalog struct {
	byID  map[string]Plan
	order []string
}

// NewCatalog validates plans and indexes them by id.
func NewCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("plan table is empty")
	}
	c := &Catalog{byID: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		p.ID = strings.TrimSpace(p.ID)
		p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("plan %q defined twice", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

func validate(p Plan) error {
	if p.ID == "" {
		return errors.New("plan id is empty")
	}
	if p.Amount <= 0 {
		return fmt.Errorf("plan %q: amount must be positive", p.ID)
	}
	if _, err := Exponent(p.Currency); err != nil {
		return fmt.Errorf("plan %q: %w", p.ID, err)
	}
	if p.DurationDays <= 0 {
		return fmt.Errorf("plan %q: duration must be positive", p.ID)
	}
	if p.MessageAllowance < 0 || p.SendAllowance < 0 {
		return fmt.Errorf("plan %q: allowances must not be negative", p.ID)
	}
	return nil
}

// Get looks a plan up by id.
func (c *Catalog) Get(id string) (Plan, bool) {
	p, ok := c.byID[strings.TrimSpace(id)]
	return p, ok
}

// List returns plans in configuration order.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
