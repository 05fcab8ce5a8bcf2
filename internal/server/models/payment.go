package models

import "time"

// PaymentStatusCompleted is the only status a settled payment can carry.
const PaymentStatusCompleted = "completed"

// Payment is a verified, settled payment. OrderID is unique and acts as the
// idempotency key for settlement.
type Payment struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	OrderID   string    `json:"orderId"`
	PaymentID string    `json:"paymentId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	PlanID    string    `json:"plan"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paidAt"`
	CreatedAt time.Time `json:"createdAt"`
}
