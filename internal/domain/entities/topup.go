package entities

import (
	"encoding/json"
	"time"
)

// Topup is one payment attempt in the order ledger, keyed by a globally
// unique caller-supplied order id. The raw gateway notification is kept
// on the row for audit.
type Topup struct {
	ID              int64           `json:"id" db:"id"`
	UserID          int64           `json:"user_id" db:"user_id"`
	Amount          int64           `json:"amount" db:"amount"`
	OrderID         string          `json:"order_id" db:"order_id"`
	Status          TopupStatus     `json:"status" db:"status"`
	PaymentType     *string         `json:"payment_type,omitempty" db:"payment_type"`
	RawNotification json.RawMessage `json:"raw_notification,omitempty" db:"raw_notification"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// IsSettled reports whether the order has reached a terminal state
func (t *Topup) IsSettled() bool {
	return t.Status.IsTerminal()
}
