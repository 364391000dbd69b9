package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudvend/topup-bot/internal/adapters/midtrans"
	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
	"github.com/cloudvend/topup-bot/internal/infrastructure/config"
	"github.com/cloudvend/topup-bot/internal/infrastructure/repositories"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

// PaymentSession is a freshly charged order together with everything the
// bot needs to show the user a payable QR
type PaymentSession struct {
	Topup      *entities.Topup
	QRString   string
	QRImageURL string
	ExpiryTime string
}

// Service creates topup orders and charges them at the gateway
type Service struct {
	gateway *midtrans.Client
	users   *repositories.UserRepository
	topups  *repositories.TopupRepository
	cfg     config.TopupConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewService creates a new topup service
func NewService(
	gateway *midtrans.Client,
	users *repositories.UserRepository,
	topups *repositories.TopupRepository,
	cfg config.TopupConfig,
	logger *logger.Logger,
) *Service {
	return &Service{
		gateway: gateway,
		users:   users,
		topups:  topups,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Begin creates a pending order and charges a QRIS payment for it
func (s *Service) Begin(ctx context.Context, userID, amount int64) (*PaymentSession, error) {
	if amount < s.cfg.MinAmount || amount > s.cfg.MaxAmount {
		return nil, domainerrors.ValidationError("amount", fmt.Sprintf(
			"amount must be between %s and %s",
			midtrans.FormatRupiah(s.cfg.MinAmount),
			midtrans.FormatRupiah(s.cfg.MaxAmount),
		))
	}

	if _, err := s.users.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	topup := &entities.Topup{
		UserID: userID,
		Amount: amount,
		Status: entities.TopupStatusPending,
	}

	// The order id carries a second-resolution timestamp; a user issuing
	// two topups inside the same second collides, so retry with a bumped
	// timestamp.
	createdAt := s.now()
	for attempt := 0; ; attempt++ {
		topup.OrderID = midtrans.GenerateOrderID(userID, createdAt.Add(time.Duration(attempt)*time.Second))
		err := s.topups.Create(ctx, topup)
		if err == nil {
			break
		}
		if domainerrors.IsAlreadyExists(err) && attempt < 3 {
			continue
		}
		return nil, err
	}

	charge, err := s.gateway.ChargeQRIS(ctx, topup.OrderID, amount, s.cfg.ExpiryMinutes)
	if err != nil {
		// The order never reached the gateway; close it so the ledger
		// does not accumulate unpayable rows.
		if updateErr := s.topups.UpdateStatus(ctx, topup.OrderID, entities.TopupStatusFailed, "", nil); updateErr != nil {
			s.logger.Error("failed to close unchargeable order",
				"order_id", topup.OrderID, "error", updateErr)
		}
		return nil, domainerrors.ServiceUnavailableError("payment gateway", err)
	}

	session := &PaymentSession{
		Topup:      topup,
		QRString:   charge.QRString,
		ExpiryTime: charge.ExpiryTime,
	}
	for _, action := range charge.Actions {
		if action.Name == "generate-qr-code" {
			session.QRImageURL = action.URL
			break
		}
	}

	s.logger.Info("topup session created",
		"order_id", topup.OrderID,
		"user_id", userID,
		"amount", amount,
	)

	return session, nil
}

// Lookup returns an order and, when it is still pending, the gateway's
// current view of it
func (s *Service) Lookup(ctx context.Context, orderID string) (*entities.Topup, *midtrans.StatusResponse, error) {
	topup, err := s.topups.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if topup.Status != entities.TopupStatusPending {
		return topup, nil, nil
	}

	status, err := s.gateway.TransactionStatus(ctx, orderID)
	if err != nil {
		s.logger.Warn("gateway status lookup failed", "order_id", orderID, "error", err)
		return topup, nil, nil
	}

	return topup, status, nil
}

// Cancel voids a pending order at the gateway and closes it locally
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	topup, err := s.topups.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if topup.Status != entities.TopupStatusPending {
		return domainerrors.ConflictError("topup", "order is already settled")
	}

	if _, err := s.gateway.CancelTransaction(ctx, orderID); err != nil {
		return domainerrors.ServiceUnavailableError("payment gateway", err)
	}

	return s.topups.UpdateStatus(ctx, orderID, entities.TopupStatusFailed, "", nil)
}
