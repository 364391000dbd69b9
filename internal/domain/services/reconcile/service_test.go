package reconcile

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

const testServerKey = "SB-Mid-server-testkey"

func testLogger() *logger.Logger {
	z, _ := zap.NewDevelopment()
	return logger.NewLogger(z)
}

// fakeTxRunner serializes transactions behind one mutex, standing in
// for the row lock the real claim takes.
type fakeTxRunner struct {
	mu  sync.Mutex
	err error
}

func (f *fakeTxRunner) WithTransaction(_ context.Context, fn func(*sqlx.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeUserStore struct {
	mu       sync.Mutex
	balances map[int64]int64
	addErr   error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{balances: make(map[int64]int64)}
}

func (f *fakeUserStore) Get(_ context.Context, userID int64) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &entities.User{UserID: userID, Balance: f.balances[userID]}, nil
}

func (f *fakeUserStore) AddBalance(_ context.Context, _ *sqlx.Tx, userID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.balances[userID] += amount
	return nil
}

func (f *fakeUserStore) balance(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

type fakeTopupStore struct {
	mu   sync.Mutex
	rows map[string]*entities.Topup
	raws map[string]json.RawMessage
}

func newFakeTopupStore() *fakeTopupStore {
	return &fakeTopupStore{
		rows: make(map[string]*entities.Topup),
		raws: make(map[string]json.RawMessage),
	}
}

func (f *fakeTopupStore) seed(t *entities.Topup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t.OrderID] = t
}

func (f *fakeTopupStore) GetByOrderID(_ context.Context, orderID string) (*entities.Topup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[orderID]
	if !ok {
		return nil, domainerrors.NotFoundError("topup")
	}
	copied := *row
	return &copied, nil
}

func (f *fakeTopupStore) ClaimSuccess(_ context.Context, _ *sqlx.Tx, orderID, _ string, raw json.RawMessage) (entities.TopupStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[orderID]
	if !ok {
		return "", domainerrors.NotFoundError("topup")
	}
	if row.Status == entities.TopupStatusSuccess {
		return row.Status, domainerrors.ErrAlreadyProcessed
	}
	prev := row.Status
	row.Status = entities.TopupStatusSuccess
	f.raws[orderID] = raw
	return prev, nil
}

func (f *fakeTopupStore) UpdateStatus(_ context.Context, orderID string, status entities.TopupStatus, _ string, raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[orderID]
	if !ok {
		return domainerrors.NotFoundError("topup")
	}
	row.Status = status
	f.raws[orderID] = raw
	return nil
}

func (f *fakeTopupStore) status(orderID string) entities.TopupStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[orderID].Status
}

func (f *fakeTopupStore) raw(orderID string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raws[orderID]
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (f *fakeNotifier) Notify(notice Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice)
}

func (f *fakeNotifier) all() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notice(nil), f.notices...)
}

type harness struct {
	service  *Service
	users    *fakeUserStore
	topups   *fakeTopupStore
	notifier *fakeNotifier
}

func newHarness() *harness {
	users := newFakeUserStore()
	topups := newFakeTopupStore()
	notifier := &fakeNotifier{}
	return &harness{
		service:  NewService(&fakeTxRunner{}, users, topups, testServerKey, notifier, testLogger()),
		users:    users,
		topups:   topups,
		notifier: notifier,
	}
}

// rejectionService never reaches storage, so nil dependencies are fine
// for exercising the validation and signature gates.
func rejectionService() *Service {
	return NewService(nil, nil, nil, testServerKey, nil, testLogger())
}

func signedNotification(orderID, statusCode, grossAmount string) *entities.MidtransNotification {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return &entities.MidtransNotification{
		TransactionTime:   "2025-01-15 12:00:00",
		TransactionStatus: "settlement",
		TransactionID:     "abc-123",
		StatusMessage:     "midtrans payment notification",
		StatusCode:        statusCode,
		SignatureKey:      hex.EncodeToString(sum[:]),
		PaymentType:       "qris",
		OrderID:           orderID,
		MerchantID:        "G12345",
		GrossAmount:       grossAmount,
	}
}

func rawBody(n *entities.MidtransNotification) json.RawMessage {
	raw, _ := json.Marshal(n)
	return raw
}

const testOrderID = "TOPUP-7-20250115120000"

func pendingTopup(amount int64) *entities.Topup {
	return &entities.Topup{
		OrderID: testOrderID,
		UserID:  7,
		Amount:  amount,
		Status:  entities.TopupStatusPending,
	}
}

func TestProcess_RejectsMissingRequiredFields(t *testing.T) {
	s := rejectionService()

	outcome := s.Process(context.Background(), &entities.MidtransNotification{
		OrderID: testOrderID,
	}, nil)

	assert.Equal(t, DispositionRejected, outcome.Disposition)
	assert.Contains(t, outcome.Reason, "missing required fields")
}

func TestProcess_RejectsInvalidSignature(t *testing.T) {
	s := rejectionService()

	n := signedNotification(testOrderID, "200", "50000.00")
	n.SignatureKey = "0000"

	outcome := s.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionRejected, outcome.Disposition)
	assert.Equal(t, "invalid signature", outcome.Reason)
	assert.Equal(t, testOrderID, outcome.OrderID)
}

func TestProcess_RejectsSignatureForTamperedAmount(t *testing.T) {
	s := rejectionService()

	n := signedNotification(testOrderID, "200", "50000.00")
	n.GrossAmount = "99000.00"

	outcome := s.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionRejected, outcome.Disposition)
	assert.Equal(t, "invalid signature", outcome.Reason)
}

func TestProcess_RejectsFractionalGrossAmount(t *testing.T) {
	s := rejectionService()

	n := signedNotification(testOrderID, "200", "50000.55")

	outcome := s.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionRejected, outcome.Disposition)
	assert.Contains(t, outcome.Reason, "fractional")
}

func TestProcess_UnknownOrderReturnsNotFound(t *testing.T) {
	h := newHarness()

	n := signedNotification("TOPUP-999-20250115120000", "200", "50000.00")
	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionNotFound, outcome.Disposition)
	assert.Zero(t, h.users.balance(999))
	assert.Empty(t, h.notifier.all())
}

func TestProcess_CreditsSettlementExactlyOnce(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))
	h.users.balances[7] = 25000

	n := signedNotification(testOrderID, "200", "50000.00")

	first := h.service.Process(context.Background(), n, rawBody(n))
	require.Equal(t, DispositionProcessed, first.Disposition)
	assert.Equal(t, entities.TopupStatusSuccess, first.Status)
	assert.Equal(t, int64(75000), h.users.balance(7))
	assert.Equal(t, entities.TopupStatusSuccess, h.topups.status(testOrderID))

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, entities.TopupStatusSuccess, notices[0].Status)
	assert.Equal(t, int64(75000), notices[0].Balance)
	assert.Equal(t, testOrderID, notices[0].OrderID)

	second := h.service.Process(context.Background(), n, rawBody(n))
	assert.Equal(t, DispositionAlreadyProcessed, second.Disposition)
	assert.Equal(t, int64(75000), h.users.balance(7), "redelivery must not credit twice")
	assert.Len(t, h.notifier.all(), 1, "redelivery must not notify twice")
}

func TestProcess_ConcurrentRedeliveriesCreditOnce(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))

	n := signedNotification(testOrderID, "200", "50000.00")
	raw := rawBody(n)

	const deliveries = 16
	outcomes := make([]*Outcome, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = h.service.Process(context.Background(), n, raw)
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, outcome := range outcomes {
		switch outcome.Disposition {
		case DispositionProcessed:
			processed++
		case DispositionAlreadyProcessed:
		default:
			t.Fatalf("unexpected disposition %s", outcome.Disposition)
		}
	}

	assert.Equal(t, 1, processed, "exactly one delivery may win the claim")
	assert.Equal(t, int64(50000), h.users.balance(7), "balance credited exactly once")
}

func TestProcess_SuccessIsMonotonic(t *testing.T) {
	h := newHarness()
	settled := pendingTopup(50000)
	settled.Status = entities.TopupStatusSuccess
	h.topups.seed(settled)
	h.users.balances[7] = 50000

	n := signedNotification(testOrderID, "202", "50000.00")
	n.TransactionStatus = "deny"

	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionAlreadyProcessed, outcome.Disposition)
	assert.Equal(t, entities.TopupStatusSuccess, h.topups.status(testOrderID), "a settled order never moves again")
	assert.Equal(t, int64(50000), h.users.balance(7))
	assert.Empty(t, h.notifier.all())
}

func TestProcess_DenyClosesOrderAndNotifiesFailure(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))

	n := signedNotification(testOrderID, "202", "50000.00")
	n.TransactionStatus = "deny"

	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionProcessed, outcome.Disposition)
	assert.Equal(t, entities.TopupStatusFailed, outcome.Status)
	assert.Equal(t, entities.TopupStatusFailed, h.topups.status(testOrderID))
	assert.Zero(t, h.users.balance(7), "failed payments never touch the balance")

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, entities.TopupStatusFailed, notices[0].Status)
	assert.Equal(t, testOrderID, notices[0].OrderID)
	assert.Equal(t, int64(50000), notices[0].Amount)
}

func TestProcess_ExpireClosesOrderAndNotifiesFailure(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))

	n := signedNotification(testOrderID, "407", "50000.00")
	n.TransactionStatus = "expire"

	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionProcessed, outcome.Disposition)
	assert.Equal(t, entities.TopupStatusExpired, h.topups.status(testOrderID))
	assert.Zero(t, h.users.balance(7))

	notices := h.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, entities.TopupStatusExpired, notices[0].Status)
}

func TestProcess_PendingIsAcknowledgedWithoutTransition(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))

	n := signedNotification(testOrderID, "201", "50000.00")
	n.TransactionStatus = "pending"

	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionProcessed, outcome.Disposition)
	assert.Equal(t, entities.TopupStatusPending, h.topups.status(testOrderID))
	assert.Zero(t, h.users.balance(7))
	assert.Empty(t, h.notifier.all())
}

func TestProcess_AmountMismatchIsRejected(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))

	n := signedNotification(testOrderID, "200", "99000.00")

	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionRejected, outcome.Disposition)
	assert.Equal(t, "amount mismatch", outcome.Reason)
	assert.Equal(t, entities.TopupStatusPending, h.topups.status(testOrderID))
	assert.Zero(t, h.users.balance(7))
}

func TestProcess_CreditFailureReturnsInternalError(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))
	h.users.addErr = errors.New("connection reset")

	n := signedNotification(testOrderID, "200", "50000.00")

	outcome := h.service.Process(context.Background(), n, rawBody(n))

	assert.Equal(t, DispositionInternalError, outcome.Disposition)
	assert.Zero(t, h.users.balance(7))
	assert.Empty(t, h.notifier.all(), "no notice without a committed credit")
}

func TestProcess_PersistsRawPayloadVerbatim(t *testing.T) {
	h := newHarness()
	h.topups.seed(pendingTopup(50000))

	n := signedNotification(testOrderID, "200", "50000.00")
	raw := json.RawMessage(fmt.Sprintf(
		`{"transaction_time":"2025-01-15 12:00:00","transaction_status":"settlement","transaction_id":"abc-123","status_message":"midtrans payment notification","status_code":"200","signature_key":"%s","payment_type":"qris","order_id":"%s","merchant_id":"G12345","gross_amount":"50000.00","settlement_time":"2025-01-15 12:00:05","acquirer":"gopay"}`,
		n.SignatureKey, testOrderID,
	))

	outcome := h.service.Process(context.Background(), n, raw)
	require.Equal(t, DispositionProcessed, outcome.Disposition)

	stored := string(h.topups.raw(testOrderID))
	assert.Equal(t, string(raw), stored)
	assert.Contains(t, stored, "settlement_time")
	assert.Contains(t, stored, "acquirer")
}
