// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Plan is the closed set of subscription tiers an account can be on.
type Plan string

const (
	PlanFree Plan = "Free"
	PlanPaid Plan = "Paid"
)

// Role gates access to administrative routes.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AllowanceKind selects one of the two metered counters on an account.
type AllowanceKind string

const (
	AllowanceMessage AllowanceKind = "message"
	// AllowanceSend is exposed on the wire as "email".
	AllowanceSend AllowanceKind = "email"
)

// ParseAllowanceKind accepts "message", "email" and "send".
func ParseAllowanceKind(s string) (AllowanceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "message":
		return AllowanceMessage, nil
	case "email", "send":
		return AllowanceSend, nil
	default:
		return "", fmt.Errorf("unknown allowance kind %q", s)
	}
}

// AllowanceScope picks which counters an administrative reset touches.
type AllowanceScope struct {
	Message bool
	Send    bool
}

// ParseAllowanceScope accepts a kind name or "both"; empty means both.
func ParseAllowanceScope(s string) (AllowanceScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both", "all":
		return AllowanceScope{Message: true, Send: true}, nil
	}
	kind, err := ParseAllowanceKind(s)
	if err != nil {
		return AllowanceScope{}, err
	}
	return AllowanceScope{Message: kind == AllowanceMessage, Send: kind == AllowanceSend}, nil
}

// Account is identity plus entitlement state.
type Account struct {
	ID                    string
	Username              string
	Email                 string
	PasswordHash          string
	Role                  Role
	Plan                  Plan
	Active                bool
	MessageAllowance      int64
	SendAllowance         int64
	SubscriptionStartedAt *time.Time
	ExpiresAt             *time.Time
	CreatedAt             time.Time
}

// Allowance returns the remaining count for kind.
func (a *Account) Allowance(kind AllowanceKind) int64 {
	if kind == AllowanceSend {
		return a.SendAllowance
	}
	return a.MessageAllowance
}

// Expired reports whether a paid subscription has run past its expiry at now.
func (a *Account) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}
