package models

import "time"

// ExternalOrder records an intent to pay created with the gateway before the
// user is redirected there. Amount and PlanID are the only values trusted when
// the payment is verified later.
type ExternalOrder struct {
	OrderID   string
	Amount    int64 // minor units
	Currency  string
	PlanID    string
	CreatedAt time.Time
}
