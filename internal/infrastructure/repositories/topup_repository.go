package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
)

// TopupRepository handles topup order persistence
type TopupRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTopupRepository creates a new topup repository
func NewTopupRepository(db *sqlx.DB, logger *zap.Logger) *TopupRepository {
	return &TopupRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending topup order. A duplicate order id maps to
// a conflict error so callers can regenerate and retry.
func (r *TopupRepository) Create(ctx context.Context, topup *entities.Topup) error {
	query := `
		INSERT INTO topups (user_id, amount, order_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		topup.UserID,
		topup.Amount,
		topup.OrderID,
		topup.Status,
	).Scan(&topup.ID, &topup.CreatedAt, &topup.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domainerrors.AlreadyExistsError("topup order")
		}
		return fmt.Errorf("failed to create topup: %w", err)
	}

	return nil
}

// GetByOrderID retrieves a topup by its order id
func (r *TopupRepository) GetByOrderID(ctx context.Context, orderID string) (*entities.Topup, error) {
	query := `
		SELECT id, user_id, amount, order_id, status, payment_type,
			   raw_notification, created_at, updated_at
		FROM topups
		WHERE order_id = $1
	`

	var topup entities.Topup
	err := r.db.GetContext(ctx, &topup, query, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("topup")
		}
		return nil, fmt.Errorf("failed to get topup: %w", err)
	}

	return &topup, nil
}

// ClaimSuccess marks an order successful under a row lock and returns the
// status the row held before the update. Concurrent redeliveries serialize
// on the lock, so exactly one caller sees a non-success prior status and
// performs the balance credit.
func (r *TopupRepository) ClaimSuccess(ctx context.Context, tx *sqlx.Tx, orderID, paymentType string, rawNotification json.RawMessage) (entities.TopupStatus, error) {
	var prevStatus entities.TopupStatus
	err := tx.GetContext(ctx, &prevStatus,
		`SELECT status FROM topups WHERE order_id = $1 FOR UPDATE`, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", domainerrors.NotFoundError("topup")
		}
		return "", fmt.Errorf("failed to lock topup: %w", err)
	}

	if prevStatus == entities.TopupStatusSuccess {
		return prevStatus, domainerrors.NewDomainError(
			domainerrors.ErrAlreadyProcessed, "ALREADY_PROCESSED", "order already credited",
		)
	}

	query := `
		UPDATE topups
		SET status = 'success',
			payment_type = $2,
			raw_notification = $3,
			updated_at = NOW()
		WHERE order_id = $1
	`
	if _, err := tx.ExecContext(ctx, query, orderID, paymentType, rawNotification); err != nil {
		return "", fmt.Errorf("failed to claim topup: %w", err)
	}

	return prevStatus, nil
}

// UpdateStatus transitions an order to a non-success terminal state,
// recording the notification that drove the transition. Rows already in
// a terminal state are left untouched.
func (r *TopupRepository) UpdateStatus(ctx context.Context, orderID string, status entities.TopupStatus, paymentType string, rawNotification json.RawMessage) error {
	query := `
		UPDATE topups
		SET status = $2,
			payment_type = $4,
			raw_notification = $5,
			updated_at = $3
		WHERE order_id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, orderID, status, time.Now(), paymentType, rawNotification)
	if err != nil {
		return fmt.Errorf("failed to update topup status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Debug("topup status update skipped, order not pending",
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
		)
	}

	return nil
}

// ListByUserID retrieves recent topups for a user
func (r *TopupRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*entities.Topup, error) {
	query := `
		SELECT id, user_id, amount, order_id, status, payment_type,
			   raw_notification, created_at, updated_at
		FROM topups
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var topups []*entities.Topup
	if err := r.db.SelectContext(ctx, &topups, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list topups: %w", err)
	}

	return topups, nil
}

// CountSuccessful returns the number of credited topups and their sum
func (r *TopupRepository) CountSuccessful(ctx context.Context) (count int64, total int64, err error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM topups
		WHERE status = 'success'
	`

	if err = r.db.QueryRowContext(ctx, query).Scan(&count, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to count successful topups: %w", err)
	}
	return count, total, nil
}

// DeleteFailedBefore removes failed and expired orders older than the cutoff
func (r *TopupRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM topups
		WHERE status IN ('failed', 'expired') AND created_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale topups: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
