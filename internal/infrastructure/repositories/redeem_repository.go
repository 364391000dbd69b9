package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
)

// RedeemRepository handles redeem batch persistence
type RedeemRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRedeemRepository creates a new redeem repository
func NewRedeemRepository(db *sqlx.DB, logger *zap.Logger) *RedeemRepository {
	return &RedeemRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new redeem batch inside the transaction that charged it
func (r *RedeemRepository) Create(ctx context.Context, tx *sqlx.Tx, redeem *entities.Redeem) error {
	query := `
		INSERT INTO redeems (id, user_id, code_count, total_cost, success_count, failed_count, status, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, NOW())
		RETURNING created_at
	`

	err := tx.QueryRowContext(ctx, query,
		redeem.ID,
		redeem.UserID,
		redeem.CodeCount,
		redeem.TotalCost,
		redeem.Status,
	).Scan(&redeem.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create redeem: %w", err)
	}

	return nil
}

// GetByID retrieves a redeem batch
func (r *RedeemRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Redeem, error) {
	query := `
		SELECT id, user_id, code_count, total_cost, success_count, failed_count,
			   status, created_at, completed_at
		FROM redeems
		WHERE id = $1
	`

	var redeem entities.Redeem
	err := r.db.GetContext(ctx, &redeem, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("redeem")
		}
		return nil, fmt.Errorf("failed to get redeem: %w", err)
	}

	return &redeem, nil
}

// Complete records the batch outcome. Refunded batches carry the refund
// in the same transaction as the status change.
func (r *RedeemRepository) Complete(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status entities.RedeemStatus, successCount, failedCount int) error {
	query := `
		UPDATE redeems
		SET status = $2,
			success_count = $3,
			failed_count = $4,
			completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := tx.ExecContext(ctx, query, id, status, successCount, failedCount)
	if err != nil {
		return fmt.Errorf("failed to complete redeem: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domainerrors.ConflictError("redeem", "batch is not pending")
	}

	return nil
}

// UserStats aggregates redeem counters for one user
func (r *RedeemRepository) UserStats(ctx context.Context, userID int64) (totalBatches, successCodes, failedCodes int64, err error) {
	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(success_count), 0),
			   COALESCE(SUM(failed_count), 0)
		FROM redeems
		WHERE user_id = $1
	`

	if err = r.db.QueryRowContext(ctx, query, userID).Scan(&totalBatches, &successCodes, &failedCodes); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate redeem stats: %w", err)
	}
	return totalBatches, successCodes, failedCodes, nil
}

// SystemStats aggregates redeem counters across all users
func (r *RedeemRepository) SystemStats(ctx context.Context) (successCodes, failedCodes, pendingBatches int64, err error) {
	query := `
		SELECT COALESCE(SUM(success_count), 0),
			   COALESCE(SUM(failed_count), 0),
			   COUNT(*) FILTER (WHERE status = 'pending')
		FROM redeems
	`

	if err = r.db.QueryRowContext(ctx, query).Scan(&successCodes, &failedCodes, &pendingBatches); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate redeem stats: %w", err)
	}
	return successCodes, failedCodes, pendingBatches, nil
}

// DeleteCompletedBefore removes settled batches older than the cutoff
func (r *RedeemRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM redeems
		WHERE status IN ('completed', 'refunded') AND completed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale redeems: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
