// Package bot hosts the Discord frontend: prefix commands for users and
// admins, plus the settlement DM pipeline.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"

	"github.com/cloudvend/topup-bot/internal/bot/notifier"
	"github.com/cloudvend/topup-bot/internal/domain/services/redeem"
	"github.com/cloudvend/topup-bot/internal/domain/services/topup"
	"github.com/cloudvend/topup-bot/internal/infrastructure/config"
	"github.com/cloudvend/topup-bot/internal/infrastructure/repositories"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

// Bot wires the Discord session to the topup and redeem services
type Bot struct {
	session    *discordgo.Session
	cfg        *config.Config
	database   *sqlx.DB
	topupSvc   *topup.Service
	redeemSvc  *redeem.Service
	users      *repositories.UserRepository
	topups     *repositories.TopupRepository
	redeems    *repositories.RedeemRepository
	dispatcher *notifier.Dispatcher
	logger     *logger.Logger
	ready      atomic.Bool
}

// New creates the bot and its notification dispatcher. The dispatcher is
// exposed through Dispatcher() so the reconciler can hand payment
// notices to it.
func New(
	cfg *config.Config,
	db *sqlx.DB,
	topupSvc *topup.Service,
	redeemSvc *redeem.Service,
	users *repositories.UserRepository,
	topups *repositories.TopupRepository,
	redeems *repositories.RedeemRepository,
	logger *logger.Logger,
) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session:   session,
		cfg:       cfg,
		database:  db,
		topupSvc:  topupSvc,
		redeemSvc: redeemSvc,
		users:     users,
		topups:    topups,
		redeems:   redeems,
		logger:    logger,
	}

	b.dispatcher = notifier.NewDispatcher(notifier.Config{
		QueueSize:   cfg.Notifier.QueueSize,
		MaxAttempts: cfg.Notifier.MaxAttempts,
		BaseDelay:   millis(cfg.Notifier.BaseDelayMs),
		MaxDelay:    millis(cfg.Notifier.MaxDelayMs),
	}, session, NotificationEmbed, logger)

	session.AddHandler(b.handleMessage)
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		b.ready.Store(true)
		b.logger.Info("discord gateway ready")
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.ready.Store(false)
	})

	return b, nil
}

// Ready reports whether the gateway connection has completed its handshake
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Dispatcher returns the payment notifier backed by this bot's session
func (b *Bot) Dispatcher() *notifier.Dispatcher {
	return b.dispatcher
}

// Start opens the gateway connection and the notification worker
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.dispatcher.Start(ctx)
	b.logger.Info("discord bot started", "prefix", b.cfg.Discord.CommandPrefix)
	return nil
}

// Stop closes the notification worker and the gateway connection
func (b *Bot) Stop() {
	b.ready.Store(false)
	b.dispatcher.Stop()
	if err := b.session.Close(); err != nil {
		b.logger.Warn("error closing discord session", "error", err)
	}
	b.logger.Info("discord bot stopped")
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	prefix := b.cfg.Discord.CommandPrefix
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, prefix))
	if len(fields) == 0 {
		return
	}

	command := strings.ToLower(fields[0])
	args := fields[1:]

	ctx := context.Background()

	switch command {
	case "saldo":
		b.cmdBalance(ctx, s, m)
	case "stats":
		b.cmdStats(ctx, s, m)
	case "topup":
		b.cmdTopup(ctx, s, m, args)
	case "redeem":
		b.cmdRedeem(ctx, s, m, args)
	case "commands", "help":
		b.cmdHelp(s, m)

	case "addbalance":
		b.requireAdmin(s, m, func() { b.cmdAddBalance(ctx, s, m, args) })
	case "checkuser":
		b.requireAdmin(s, m, func() { b.cmdCheckUser(ctx, s, m, args) })
	case "checktransaction":
		b.requireAdmin(s, m, func() { b.cmdCheckTransaction(ctx, s, m, args) })
	case "completeredeem":
		b.requireAdmin(s, m, func() { b.cmdCompleteRedeem(ctx, s, m, args) })
	case "canceltransaction":
		b.requireAdmin(s, m, func() { b.cmdCancelTransaction(ctx, s, m, args) })
	case "botstats":
		b.requireAdmin(s, m, func() { b.cmdBotStats(ctx, s, m) })
	case "broadcast":
		b.requireAdmin(s, m, func() { b.cmdBroadcast(ctx, s, m, args) })
	case "adminhelp":
		b.requireAdmin(s, m, func() { b.cmdAdminHelp(s, m) })
	}
}

func (b *Bot) requireAdmin(s *discordgo.Session, m *discordgo.MessageCreate, fn func()) {
	if !b.isAdmin(s, m) {
		b.reply(s, m, errorEmbed("Perintah ini hanya untuk admin."))
		return
	}
	fn()
}

// isAdmin grants access to holders of the configured guild role, or to
// ids on the explicit allow list (which also covers DMs, where there is
// no member object to check).
func (b *Bot) isAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if userID, err := parseSnowflake(m.Author.ID); err == nil && b.cfg.Discord.IsAdmin(userID) {
		return true
	}

	if m.Member == nil || m.GuildID == "" {
		return false
	}

	roles, err := s.GuildRoles(m.GuildID)
	if err != nil {
		b.logger.Warn("failed to resolve guild roles", "guild_id", m.GuildID, "error", err)
		return false
	}

	adminRoleID := ""
	for _, role := range roles {
		if role.Name == b.cfg.Discord.AdminRole {
			adminRoleID = role.ID
			break
		}
	}
	if adminRoleID == "" {
		return false
	}

	for _, roleID := range m.Member.Roles {
		if roleID == adminRoleID {
			return true
		}
	}
	return false
}

func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, embed *discordgo.MessageEmbed) {
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		b.logger.Warn("failed to send reply",
			"channel_id", m.ChannelID,
			"error", err,
		)
	}
}
