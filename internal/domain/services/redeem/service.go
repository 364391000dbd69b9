package redeem

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
	"github.com/cloudvend/topup-bot/internal/infrastructure/config"
	"github.com/cloudvend/topup-bot/internal/infrastructure/database"
	"github.com/cloudvend/topup-bot/internal/infrastructure/repositories"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

// Service charges redeem batches against user balances. The debit happens
// up front; failed codes are refunded on completion when configured.
type Service struct {
	db      *sqlx.DB
	users   *repositories.UserRepository
	redeems *repositories.RedeemRepository
	cfg     config.RedeemConfig
	logger  *logger.Logger
}

// NewService creates a new redeem service
func NewService(
	db *sqlx.DB,
	users *repositories.UserRepository,
	redeems *repositories.RedeemRepository,
	cfg config.RedeemConfig,
	logger *logger.Logger,
) *Service {
	return &Service{
		db:      db,
		users:   users,
		redeems: redeems,
		cfg:     cfg,
		logger:  logger,
	}
}

// CodePrice returns the configured price per code
func (s *Service) CodePrice() int64 {
	return s.cfg.CodePrice
}

// Charge debits the batch cost and opens a pending batch. The debit and
// the batch row commit together, so a crash cannot charge without a
// record of what was charged.
func (s *Service) Charge(ctx context.Context, userID int64, codeCount int) (*entities.Redeem, error) {
	if codeCount <= 0 || codeCount > s.cfg.MaxPerBatch {
		return nil, domainerrors.ValidationError("code_count", "invalid code count")
	}

	if _, err := s.users.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	batch := &entities.Redeem{
		ID:        uuid.New(),
		UserID:    userID,
		CodeCount: codeCount,
		TotalCost: int64(codeCount) * s.cfg.CodePrice,
		Status:    entities.RedeemStatusPending,
	}

	err := database.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.users.DeductBalance(ctx, tx, userID, batch.TotalCost); err != nil {
			return err
		}
		return s.redeems.Create(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("redeem batch charged",
		"batch_id", batch.ID.String(),
		"user_id", userID,
		"code_count", codeCount,
		"total_cost", batch.TotalCost,
	)

	return batch, nil
}

// Complete records the batch outcome and refunds the failed portion when
// refunds are enabled
func (s *Service) Complete(ctx context.Context, batchID uuid.UUID, successCount, failedCount int) (*entities.Redeem, error) {
	batch, err := s.redeems.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if successCount+failedCount != batch.CodeCount {
		return nil, domainerrors.ValidationError("counts", "success and failed counts must cover the batch")
	}

	status := entities.RedeemStatusCompleted
	refund := int64(0)
	if failedCount > 0 && s.cfg.RefundFailed {
		refund = int64(failedCount) * s.cfg.CodePrice
		if successCount == 0 {
			status = entities.RedeemStatusRefunded
		}
	}

	err = database.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.redeems.Complete(ctx, tx, batchID, status, successCount, failedCount); err != nil {
			return err
		}
		if refund > 0 {
			return s.users.Refund(ctx, tx, batch.UserID, refund)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("redeem batch completed",
		"batch_id", batchID.String(),
		"user_id", batch.UserID,
		"status", string(status),
		"refund", refund,
	)

	return s.redeems.GetByID(ctx, batchID)
}
