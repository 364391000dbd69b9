// Package retention prunes settled rows past their retention window:
// failed or expired topup orders and completed redeem batches.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cloudvend/topup-bot/pkg/logger"
	"github.com/cloudvend/topup-bot/pkg/metrics"
)

// TopupRepository covers the topup pruning surface
type TopupRepository interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RedeemRepository covers the redeem pruning surface
type RedeemRepository interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds worker configuration
type Config struct {
	Schedule            string
	FailedTopupDays     int
	CompletedRedeemDays int
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Schedule:            "0 3 * * *",
		FailedTopupDays:     30,
		CompletedRedeemDays: 90,
	}
}

// Worker runs the retention sweep on a cron schedule
type Worker struct {
	topupRepo  TopupRepository
	redeemRepo RedeemRepository
	config     *Config
	logger     *logger.Logger
	cron       *cron.Cron
	stopCh     chan struct{}
}

// NewWorker creates a new retention worker
func NewWorker(topupRepo TopupRepository, redeemRepo RedeemRepository, config *Config, logger *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		topupRepo:  topupRepo,
		redeemRepo: redeemRepo,
		config:     config,
		logger:     logger,
		cron:       cron.New(),
		stopCh:     make(chan struct{}),
	}
}

// Start schedules the sweep and blocks until stopped
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting retention worker",
		"schedule", w.config.Schedule,
		"failed_topup_days", w.config.FailedTopupDays,
		"completed_redeem_days", w.config.CompletedRedeemDays)

	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.sweep(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()

	select {
	case <-ctx.Done():
		w.logger.Info("Retention worker stopped (context cancelled)")
	case <-w.stopCh:
		w.logger.Info("Retention worker stopped")
	}

	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

// sweep deletes rows older than their retention window
func (w *Worker) sweep(ctx context.Context) {
	topupCutoff := time.Now().AddDate(0, 0, -w.config.FailedTopupDays)
	redeemCutoff := time.Now().AddDate(0, 0, -w.config.CompletedRedeemDays)

	w.logger.Info("Running retention sweep",
		"topup_cutoff", topupCutoff.Format(time.RFC3339),
		"redeem_cutoff", redeemCutoff.Format(time.RFC3339))

	topupsDeleted, err := w.topupRepo.DeleteFailedBefore(ctx, topupCutoff)
	if err != nil {
		w.logger.Error("Failed to prune topups", "error", err)
	} else if topupsDeleted > 0 {
		metrics.RetentionDeletedCounter.WithLabelValues("topups").Add(float64(topupsDeleted))
	}

	redeemsDeleted, err := w.redeemRepo.DeleteCompletedBefore(ctx, redeemCutoff)
	if err != nil {
		w.logger.Error("Failed to prune redeems", "error", err)
	} else if redeemsDeleted > 0 {
		metrics.RetentionDeletedCounter.WithLabelValues("redeems").Add(float64(redeemsDeleted))
	}

	w.logger.Info("Retention sweep completed",
		"topups_deleted", topupsDeleted,
		"redeems_deleted", redeemsDeleted)
}

// RunOnce runs the sweep once (for testing or manual trigger)
func (w *Worker) RunOnce(ctx context.Context) {
	w.sweep(ctx)
}
