package entities

import "time"

// User holds a Discord user's spendable balance and lifetime totals.
// The primary key is the Discord snowflake; rows are created lazily on
// first interaction and never deleted.
type User struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	Balance    int64     `json:"balance" db:"balance"`
	TotalTopup int64     `json:"total_topup" db:"total_topup"`
	TotalSpent int64     `json:"total_spent" db:"total_spent"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// UserStats aggregates a user's balance and redeem history for display
type UserStats struct {
	UserID        int64 `json:"user_id"`
	Balance       int64 `json:"balance"`
	TotalTopup    int64 `json:"total_topup"`
	TotalSpent    int64 `json:"total_spent"`
	TotalRedeems  int64 `json:"total_redeems"`
	SuccessRedeem int64 `json:"success_redeem"`
	FailedRedeem  int64 `json:"failed_redeem"`
}

// SystemStats aggregates service-wide totals for the admin stats command
type SystemStats struct {
	TotalUsers       int64 `json:"total_users" db:"total_users"`
	TotalBalance     int64 `json:"total_balance" db:"total_balance"`
	SuccessfulTopups int64 `json:"successful_topups" db:"successful_topups"`
	TotalTopupAmount int64 `json:"total_topup_amount" db:"total_topup_amount"`
	SuccessRedeems   int64 `json:"success_redeems" db:"success_redeems"`
	FailedRedeems    int64 `json:"failed_redeems" db:"failed_redeems"`
	PendingRedeems   int64 `json:"pending_redeems" db:"pending_redeems"`
}
