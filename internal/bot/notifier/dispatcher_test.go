package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	"github.com/cloudvend/topup-bot/internal/domain/services/reconcile"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

type fakeSender struct {
	mu sync.Mutex

	channelErr  error
	sendErrs    []error
	sendCalls   int
	recipients  []string
	deliveredCh chan struct{}
}

func (f *fakeSender) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, recipientID)
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, _ *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	call := f.sendCalls
	f.sendCalls++
	f.mu.Unlock()

	var err error
	if call < len(f.sendErrs) {
		err = f.sendErrs[call]
	}
	if err == nil && f.deliveredCh != nil {
		f.deliveredCh <- struct{}{}
	}
	if err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "msg", ChannelID: channelID}, nil
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func testEmbed(notice reconcile.Notice) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: notice.OrderID}
}

func testLogger() *logger.Logger {
	z, _ := zap.NewDevelopment()
	return logger.NewLogger(z)
}

func fastConfig() Config {
	return Config{
		QueueSize:   8,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func dmForbiddenErr() error {
	return &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{
			Code:    discordgo.ErrCodeCannotSendMessagesToThisUser,
			Message: "Cannot send messages to this user",
		},
	}
}

func TestDispatcher_DeliversSettlement(t *testing.T) {
	sender := &fakeSender{deliveredCh: make(chan struct{}, 1)}
	d := NewDispatcher(fastConfig(), sender, testEmbed, testLogger())

	d.Start(context.Background())
	defer d.Stop()

	d.Notify(reconcile.Notice{
		UserID:  236018288436510720,
		OrderID: "TOPUP-236018288436510720-20250115120000",
		Amount:  50000,
		Balance: 75000,
	})

	select {
	case <-sender.deliveredCh:
	case <-time.After(2 * time.Second):
		t.Fatal("settlement was not delivered")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.NotEmpty(t, sender.recipients)
	assert.Equal(t, "236018288436510720", sender.recipients[0])
}

func TestDispatcher_DeliversFailureNotice(t *testing.T) {
	sender := &fakeSender{deliveredCh: make(chan struct{}, 1)}

	var mu sync.Mutex
	var rendered []reconcile.Notice
	embed := func(notice reconcile.Notice) *discordgo.MessageEmbed {
		mu.Lock()
		rendered = append(rendered, notice)
		mu.Unlock()
		return &discordgo.MessageEmbed{Title: notice.OrderID}
	}

	d := NewDispatcher(fastConfig(), sender, embed, testLogger())
	d.Start(context.Background())
	defer d.Stop()

	d.Notify(reconcile.Notice{
		UserID:  3,
		OrderID: "TOPUP-3-20250115120000",
		Amount:  50000,
		Status:  entities.TopupStatusFailed,
	})

	select {
	case <-sender.deliveredCh:
	case <-time.After(2 * time.Second):
		t.Fatal("failure notice was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, rendered, 1)
	assert.Equal(t, entities.TopupStatusFailed, rendered[0].Status)
	assert.Equal(t, "TOPUP-3-20250115120000", rendered[0].OrderID)
}

func TestDispatcher_RetriesTransientErrors(t *testing.T) {
	sender := &fakeSender{
		sendErrs:    []error{errors.New("gateway timeout"), errors.New("gateway timeout")},
		deliveredCh: make(chan struct{}, 1),
	}
	d := NewDispatcher(fastConfig(), sender, testEmbed, testLogger())

	d.Start(context.Background())
	defer d.Stop()

	d.Notify(reconcile.Notice{UserID: 1, OrderID: "TOPUP-1-20250115120000"})

	select {
	case <-sender.deliveredCh:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not retried to success")
	}

	assert.Equal(t, 3, sender.calls())
}

func TestDispatcher_ForbiddenIsTerminal(t *testing.T) {
	sender := &fakeSender{
		sendErrs: []error{dmForbiddenErr(), dmForbiddenErr(), dmForbiddenErr()},
	}
	d := NewDispatcher(fastConfig(), sender, testEmbed, testLogger())

	d.Start(context.Background())
	d.Notify(reconcile.Notice{UserID: 2, OrderID: "TOPUP-2-20250115120000"})

	// Give the worker time to finish the single attempt
	assert.Eventually(t, func() bool {
		return sender.calls() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	d.Stop()

	assert.Equal(t, 1, sender.calls(), "closed DMs must not be retried")
}

func TestDispatcher_QueueFullDropsWithoutBlocking(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueSize = 1
	sender := &fakeSender{}
	d := NewDispatcher(cfg, sender, testEmbed, testLogger())

	// Worker never started, so the queue cannot drain
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(reconcile.Notice{UserID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}

func TestDispatcher_StopIsIdempotent(t *testing.T) {
	d := NewDispatcher(fastConfig(), &fakeSender{}, testEmbed, testLogger())
	d.Start(context.Background())
	d.Stop()
	d.Stop()
}

func TestIsDMForbidden(t *testing.T) {
	assert.True(t, isDMForbidden(dmForbiddenErr()))
	assert.False(t, isDMForbidden(errors.New("network down")))
	assert.False(t, isDMForbidden(&discordgo.RESTError{}))
	assert.False(t, isDMForbidden(nil))

	otherCode := &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel},
	}
	assert.False(t, isDMForbidden(otherCode))
}
