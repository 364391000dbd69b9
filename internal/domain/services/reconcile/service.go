package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/cloudvend/topup-bot/internal/adapters/midtrans"
	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
	"github.com/cloudvend/topup-bot/pkg/logger"
	"github.com/cloudvend/topup-bot/pkg/metrics"
)

// Disposition classifies the outcome of one webhook delivery
type Disposition string

const (
	DispositionProcessed        Disposition = "processed"
	DispositionAlreadyProcessed Disposition = "already_processed"
	DispositionRejected         Disposition = "rejected"
	DispositionNotFound         Disposition = "not_found"
	DispositionInternalError    Disposition = "internal_error"
)

// Outcome is the result of reconciling one notification
type Outcome struct {
	Disposition Disposition
	OrderID     string
	UserID      int64
	Amount      int64
	Status      entities.TopupStatus
	Reason      string
}

// Notice describes a settled or failed payment, handed to the notifier
// after the ledger transition commits. Balance is only meaningful when
// Status is success.
type Notice struct {
	UserID  int64
	OrderID string
	Amount  int64
	Balance int64
	Status  entities.TopupStatus
}

// Notifier delivers payment notices to users. Submission must never
// block webhook handling.
type Notifier interface {
	Notify(notice Notice)
}

// TxRunner runs a function inside one database transaction
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// UserStore covers the balance mutations the reconciler performs
type UserStore interface {
	Get(ctx context.Context, userID int64) (*entities.User, error)
	AddBalance(ctx context.Context, tx *sqlx.Tx, userID, amount int64) error
}

// TopupStore covers the ledger reads and transitions the reconciler
// performs
type TopupStore interface {
	GetByOrderID(ctx context.Context, orderID string) (*entities.Topup, error)
	ClaimSuccess(ctx context.Context, tx *sqlx.Tx, orderID, paymentType string, rawNotification json.RawMessage) (entities.TopupStatus, error)
	UpdateStatus(ctx context.Context, orderID string, status entities.TopupStatus, paymentType string, rawNotification json.RawMessage) error
}

// Service reconciles gateway notifications against the order ledger and
// applies balance credits exactly once per order.
type Service struct {
	tx        TxRunner
	users     UserStore
	topups    TopupStore
	serverKey string
	notifier  Notifier
	validate  *validator.Validate
	logger    *logger.Logger
}

// NewService creates a new reconciliation service
func NewService(
	tx TxRunner,
	users UserStore,
	topups TopupStore,
	serverKey string,
	notifier Notifier,
	logger *logger.Logger,
) *Service {
	return &Service{
		tx:        tx,
		users:     users,
		topups:    topups,
		serverKey: serverKey,
		notifier:  notifier,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Process reconciles one notification. The raw bytes are the payload as
// received on the wire; they are persisted verbatim for audit, including
// gateway fields the typed struct does not model. Every return path
// carries a disposition; only internal errors are worth a gateway
// redelivery.
func (s *Service) Process(ctx context.Context, notification *entities.MidtransNotification, raw json.RawMessage) *Outcome {
	outcome := s.process(ctx, notification, raw)
	metrics.WebhooksReceivedCounter.WithLabelValues(string(outcome.Disposition)).Inc()
	return outcome
}

func (s *Service) process(ctx context.Context, notification *entities.MidtransNotification, raw json.RawMessage) *Outcome {
	if err := s.validate.Struct(notification); err != nil {
		return &Outcome{
			Disposition: DispositionRejected,
			OrderID:     notification.OrderID,
			Reason:      fmt.Sprintf("missing required fields: %v", err),
		}
	}

	orderID := notification.OrderID

	if !midtrans.VerifySignature(orderID, notification.StatusCode, notification.GrossAmount, s.serverKey, notification.SignatureKey) {
		s.logger.Warn("webhook signature mismatch", "order_id", orderID)
		return &Outcome{
			Disposition: DispositionRejected,
			OrderID:     orderID,
			Reason:      "invalid signature",
		}
	}

	amount, err := midtrans.ParseGrossAmount(notification.GrossAmount)
	if err != nil {
		return &Outcome{
			Disposition: DispositionRejected,
			OrderID:     orderID,
			Reason:      err.Error(),
		}
	}

	topup, err := s.topups.GetByOrderID(ctx, orderID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			s.logger.Warn("webhook for unknown order", "order_id", orderID)
			return &Outcome{
				Disposition: DispositionNotFound,
				OrderID:     orderID,
				Reason:      "order not found",
			}
		}
		s.logger.Error("failed to load order", "order_id", orderID, "error", err)
		return &Outcome{
			Disposition: DispositionInternalError,
			OrderID:     orderID,
			Reason:      "storage failure",
		}
	}

	// A signed notification whose amount disagrees with the order is
	// either a stale replay or tampering upstream of the signature.
	if amount != topup.Amount {
		s.logger.Warn("webhook amount mismatch",
			"order_id", orderID,
			"order_amount", topup.Amount,
			"notified_amount", amount,
		)
		return &Outcome{
			Disposition: DispositionRejected,
			OrderID:     orderID,
			UserID:      topup.UserID,
			Reason:      "amount mismatch",
		}
	}

	// Terminal rows never move again. A redelivered notification for one
	// is acknowledged without touching the ledger; the claim below covers
	// the race where the row settles between this read and the lock.
	if topup.Status.IsTerminal() {
		return &Outcome{
			Disposition: DispositionAlreadyProcessed,
			OrderID:     orderID,
			UserID:      topup.UserID,
			Amount:      topup.Amount,
			Status:      topup.Status,
		}
	}

	status := midtrans.NormalizeStatus(notification.TransactionStatus, notification.FraudStatus)

	switch status {
	case entities.TopupStatusSuccess:
		return s.applyCredit(ctx, topup, notification.PaymentType, raw)

	case entities.TopupStatusFailed, entities.TopupStatusExpired:
		if err := s.topups.UpdateStatus(ctx, orderID, status, notification.PaymentType, raw); err != nil {
			s.logger.Error("failed to record terminal status",
				"order_id", orderID, "status", status, "error", err)
			return &Outcome{
				Disposition: DispositionInternalError,
				OrderID:     orderID,
				UserID:      topup.UserID,
				Reason:      "storage failure",
			}
		}
		s.logger.Info("order closed without credit",
			"order_id", orderID, "status", status)

		if s.notifier != nil {
			s.notifier.Notify(Notice{
				UserID:  topup.UserID,
				OrderID: orderID,
				Amount:  topup.Amount,
				Status:  status,
			})
		}

		return &Outcome{
			Disposition: DispositionProcessed,
			OrderID:     orderID,
			UserID:      topup.UserID,
			Amount:      topup.Amount,
			Status:      status,
		}

	default:
		// Pending notifications carry no transition; acknowledge so the
		// gateway stops redelivering them.
		return &Outcome{
			Disposition: DispositionProcessed,
			OrderID:     orderID,
			UserID:      topup.UserID,
			Amount:      topup.Amount,
			Status:      entities.TopupStatusPending,
		}
	}
}

// applyCredit claims the order and credits the balance in one
// transaction. The row lock taken by the claim serializes concurrent
// redeliveries of the same order.
func (s *Service) applyCredit(ctx context.Context, topup *entities.Topup, paymentType string, raw json.RawMessage) *Outcome {
	var alreadyProcessed bool

	err := s.tx.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		_, claimErr := s.topups.ClaimSuccess(ctx, tx, topup.OrderID, paymentType, raw)
		if claimErr != nil {
			if errors.Is(claimErr, domainerrors.ErrAlreadyProcessed) {
				alreadyProcessed = true
				return nil
			}
			return claimErr
		}
		return s.users.AddBalance(ctx, tx, topup.UserID, topup.Amount)
	})

	if err != nil {
		s.logger.Error("failed to credit order",
			"order_id", topup.OrderID, "user_id", topup.UserID, "error", err)
		return &Outcome{
			Disposition: DispositionInternalError,
			OrderID:     topup.OrderID,
			UserID:      topup.UserID,
			Reason:      "storage failure",
		}
	}

	if alreadyProcessed {
		s.logger.Info("duplicate settlement ignored", "order_id", topup.OrderID)
		return &Outcome{
			Disposition: DispositionAlreadyProcessed,
			OrderID:     topup.OrderID,
			UserID:      topup.UserID,
			Amount:      topup.Amount,
			Status:      entities.TopupStatusSuccess,
		}
	}

	metrics.CreditsAppliedCounter.Inc()
	metrics.CreditsAmountCounter.Add(float64(topup.Amount))

	s.logger.Info("order credited",
		"order_id", topup.OrderID,
		"user_id", topup.UserID,
		"amount", topup.Amount,
	)

	balance := int64(0)
	if user, err := s.users.Get(ctx, topup.UserID); err == nil {
		balance = user.Balance
	}

	if s.notifier != nil {
		s.notifier.Notify(Notice{
			UserID:  topup.UserID,
			OrderID: topup.OrderID,
			Amount:  topup.Amount,
			Balance: balance,
			Status:  entities.TopupStatusSuccess,
		})
	}

	return &Outcome{
		Disposition: DispositionProcessed,
		OrderID:     topup.OrderID,
		UserID:      topup.UserID,
		Amount:      topup.Amount,
		Status:      entities.TopupStatusSuccess,
	}
}
