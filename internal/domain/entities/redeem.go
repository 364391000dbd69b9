package entities

import (
	"time"

	"github.com/google/uuid"
)

// RedeemStatus represents the status of a redeem batch
type RedeemStatus string

const (
	RedeemStatusPending   RedeemStatus = "pending"
	RedeemStatusCompleted RedeemStatus = "completed"
	RedeemStatusRefunded  RedeemStatus = "refunded"
)

// Redeem is the cost-per-code consumption ledger row. The balance debit
// happens when the batch is created; results are filled in on completion.
type Redeem struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	UserID       int64        `json:"user_id" db:"user_id"`
	CodeCount    int          `json:"code_count" db:"code_count"`
	TotalCost    int64        `json:"total_cost" db:"total_cost"`
	SuccessCount int          `json:"success_count" db:"success_count"`
	FailedCount  int          `json:"failed_count" db:"failed_count"`
	Status       RedeemStatus `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}
