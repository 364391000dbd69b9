// Package notifier delivers payment outcome DMs without ever blocking
// the webhook path. Notices are queued on a bounded channel and retried
// with backoff; a recipient who blocks DMs is dropped on the first
// attempt.
package notifier

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cloudvend/topup-bot/internal/domain/services/reconcile"
	"github.com/cloudvend/topup-bot/pkg/logger"
	"github.com/cloudvend/topup-bot/pkg/metrics"
	"github.com/cloudvend/topup-bot/pkg/retry"
)

// Sender covers the direct-message surface of a Discord session
type Sender interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Config bounds the dispatcher's queue and retry policy
type Config struct {
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// EmbedFunc renders the DM for a notice, success and failure alike
type EmbedFunc func(notice reconcile.Notice) *discordgo.MessageEmbed

// Dispatcher queues payment notices and delivers them from a single
// worker goroutine
type Dispatcher struct {
	config Config
	sender Sender
	embed  EmbedFunc
	logger *logger.Logger

	queue  chan reconcile.Notice
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(config Config, sender Sender, embed EmbedFunc, logger *logger.Logger) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig().BaseDelay
	}

	return &Dispatcher{
		config: config,
		sender: sender,
		embed:  embed,
		logger: logger,
		queue:  make(chan reconcile.Notice, config.QueueSize),
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx)
	d.logger.Info("notification dispatcher started", "queue_size", d.config.QueueSize)
}

// Stop drains nothing; queued deliveries past the in-flight one are
// dropped. Payment DMs are best effort, the ledger is the source of
// truth.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.logger.Info("notification dispatcher stopped")
	})
}

// Notify queues a delivery. When the queue is full the notice is
// dropped and counted, never blocking the caller.
func (d *Dispatcher) Notify(notice reconcile.Notice) {
	select {
	case d.queue <- notice:
	default:
		metrics.NotificationsCounter.WithLabelValues("dropped").Inc()
		d.logger.Warn("notification queue full, dropping notice",
			"user_id", notice.UserID,
			"order_id", notice.OrderID,
		)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notice := <-d.queue:
			d.deliver(ctx, notice)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, notice reconcile.Notice) {
	recipientID := strconv.FormatInt(notice.UserID, 10)

	cfg := retry.RetryConfig{
		MaxAttempts: d.config.MaxAttempts,
		BaseDelay:   d.config.BaseDelay,
		MaxDelay:    d.config.MaxDelay,
		Multiplier:  2.0,
	}

	err := retry.WithExponentialBackoff(ctx, cfg, func() error {
		channel, err := d.sender.UserChannelCreate(recipientID)
		if err != nil {
			return err
		}
		_, err = d.sender.ChannelMessageSendEmbed(channel.ID, d.embed(notice))
		return err
	}, isTransient)

	switch {
	case err == nil:
		metrics.NotificationsCounter.WithLabelValues("delivered").Inc()
		d.logger.Info("payment notice delivered",
			"user_id", notice.UserID,
			"order_id", notice.OrderID,
			"status", string(notice.Status),
		)
	case isDMForbidden(err):
		metrics.NotificationsCounter.WithLabelValues("forbidden").Inc()
		d.logger.Warn("recipient does not accept DMs",
			"user_id", notice.UserID,
			"order_id", notice.OrderID,
		)
	default:
		metrics.NotificationsCounter.WithLabelValues("failed").Inc()
		d.logger.Error("payment notice delivery failed",
			"user_id", notice.UserID,
			"order_id", notice.OrderID,
			"error", err,
		)
	}
}

// isTransient reports whether a delivery error is worth another attempt.
// A closed DM channel is permanent for this recipient.
func isTransient(err error) bool {
	return !isDMForbidden(err)
}

func isDMForbidden(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser
	}
	return false
}
