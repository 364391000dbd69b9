package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
)

// UserRepository handles user and balance persistence operations
type UserRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a user by Discord ID
func (r *UserRepository) Get(ctx context.Context, userID int64) (*entities.User, error) {
	query := `
		SELECT user_id, balance, total_topup, total_spent, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var user entities.User
	err := r.db.GetContext(ctx, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetOrCreate retrieves a user, inserting a zero-balance row on first contact
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64) (*entities.User, error) {
	query := `
		INSERT INTO users (user_id, balance, total_topup, total_spent, created_at, updated_at)
		VALUES ($1, 0, 0, 0, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, balance, total_topup, total_spent, created_at, updated_at
	`

	var user entities.User
	if err := r.db.GetContext(ctx, &user, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	return &user, nil
}

// AddBalance atomically credits a user's balance and lifetime topup total.
// Must run inside the same transaction that claims the topup row.
func (r *UserRepository) AddBalance(ctx context.Context, tx *sqlx.Tx, userID, amount int64) error {
	query := `
		INSERT INTO users (user_id, balance, total_topup, total_spent, created_at, updated_at)
		VALUES ($1, $2, $2, 0, NOW(), $3)
		ON CONFLICT (user_id)
		DO UPDATE SET
			balance = users.balance + EXCLUDED.balance,
			total_topup = users.total_topup + EXCLUDED.total_topup,
			updated_at = EXCLUDED.updated_at
	`

	result, err := tx.ExecContext(ctx, query, userID, amount, time.Now())
	if err != nil {
		r.logger.Error("failed to add balance",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.Int64("amount", amount),
		)
		return fmt.Errorf("failed to add balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("balance credited",
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("rows_affected", rowsAffected),
	)

	return nil
}

// DeductBalance atomically debits a user's balance, failing when funds
// are insufficient. The WHERE guard keeps the balance non-negative even
// under concurrent spends.
func (r *UserRepository) DeductBalance(ctx context.Context, tx *sqlx.Tx, userID, amount int64) error {
	query := `
		UPDATE users
		SET balance = balance - $2,
			total_spent = total_spent + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
	`

	result, err := tx.ExecContext(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to deduct balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		user, getErr := r.Get(ctx, userID)
		if getErr != nil {
			return getErr
		}
		return domainerrors.InsufficientBalanceError(amount, user.Balance)
	}

	return nil
}

// Refund credits back a previously deducted amount without touching
// lifetime topup totals
func (r *UserRepository) Refund(ctx context.Context, tx *sqlx.Tx, userID, amount int64) error {
	query := `
		UPDATE users
		SET balance = balance + $2,
			total_spent = total_spent - $2,
			updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := tx.ExecContext(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to refund balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domainerrors.NotFoundError("user")
	}

	return nil
}

// ListTopupUserIDs returns the ids of users with at least one credited
// topup, the audience for admin broadcasts
func (r *UserRepository) ListTopupUserIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT user_id
		FROM topups
		WHERE status = 'success'
		ORDER BY user_id
	`

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list topup user ids: %w", err)
	}
	return ids, nil
}

// CountUsers returns the total number of registered users
func (r *UserRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// AggregateStats fills the user-side totals of the admin stats view.
// Topup and redeem counters are filled by their own repositories.
func (r *UserRepository) AggregateStats(ctx context.Context) (*entities.SystemStats, error) {
	query := `
		SELECT COUNT(*) AS total_users,
			   COALESCE(SUM(balance), 0) AS total_balance
		FROM users
	`

	var stats entities.SystemStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate user stats: %w", err)
	}

	return &stats, nil
}
