package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/pkg/logger"
)

type fakeTopupRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakeTopupRepo) DeleteFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

type fakeRedeemRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakeRedeemRepo) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

func testLogger() *logger.Logger {
	z, _ := zap.NewDevelopment()
	return logger.NewLogger(z)
}

func TestWorker_RunOnce(t *testing.T) {
	topups := &fakeTopupRepo{deleted: 7}
	redeems := &fakeRedeemRepo{deleted: 2}

	w := NewWorker(topups, redeems, &Config{
		Schedule:            "0 3 * * *",
		FailedTopupDays:     30,
		CompletedRedeemDays: 90,
	}, testLogger())

	w.RunOnce(context.Background())

	assert.Equal(t, 1, topups.calls)
	assert.Equal(t, 1, redeems.calls)

	now := time.Now()
	assert.WithinDuration(t, now.AddDate(0, 0, -30), topups.cutoff, time.Minute)
	assert.WithinDuration(t, now.AddDate(0, 0, -90), redeems.cutoff, time.Minute)
}

func TestWorker_RunOnce_TopupErrorDoesNotStopRedeemSweep(t *testing.T) {
	topups := &fakeTopupRepo{err: errors.New("db down")}
	redeems := &fakeRedeemRepo{deleted: 1}

	w := NewWorker(topups, redeems, nil, testLogger())
	w.RunOnce(context.Background())

	assert.Equal(t, 1, topups.calls)
	assert.Equal(t, 1, redeems.calls)
}

func TestWorker_DefaultConfig(t *testing.T) {
	w := NewWorker(&fakeTopupRepo{}, &fakeRedeemRepo{}, nil, testLogger())
	assert.Equal(t, "0 3 * * *", w.config.Schedule)
	assert.Equal(t, 30, w.config.FailedTopupDays)
	assert.Equal(t, 90, w.config.CompletedRedeemDays)
}

func TestWorker_StartStop(t *testing.T) {
	w := NewWorker(&fakeTopupRepo{}, &fakeRedeemRepo{}, nil, testLogger())

	done := make(chan error, 1)
	go func() {
		done <- w.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_StartRejectsBadSchedule(t *testing.T) {
	w := NewWorker(&fakeTopupRepo{}, &fakeRedeemRepo{}, &Config{
		Schedule:            "not a schedule",
		FailedTopupDays:     30,
		CompletedRedeemDays: 90,
	}, testLogger())

	err := w.Start(context.Background())
	assert.Error(t, err)
}
