package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cloudvend/topup-bot/internal/adapters/midtrans"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
	"github.com/cloudvend/topup-bot/internal/infrastructure/database"
)

// cmdAddBalance credits a user's balance manually. The mention form
// (<@id>) and a bare snowflake are both accepted.
func (b *Bot) cmdAddBalance(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 2 {
		b.reply(s, m, infoEmbed("Cara Pakai", fmt.Sprintf(
			"`%saddbalance @user <jumlah>`", b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	targetID, err := parseUserRef(args[0])
	if err != nil {
		b.reply(s, m, errorEmbed("User tidak valid. Mention user atau pakai ID."))
		return
	}

	amount, err := parseAmount(args[1])
	if err != nil {
		b.reply(s, m, errorEmbed("Jumlah tidak valid."))
		return
	}

	if _, err := b.users.GetOrCreate(ctx, targetID); err != nil {
		b.logger.Error("addbalance user lookup failed", "user_id", targetID, "error", err)
		b.reply(s, m, errorEmbed("Gagal mengambil data user."))
		return
	}

	err = database.WithTransaction(ctx, b.database, func(tx *sqlx.Tx) error {
		return b.users.AddBalance(ctx, tx, targetID, amount)
	})
	if err != nil {
		b.logger.Error("manual credit failed",
			"admin_id", m.Author.ID, "user_id", targetID, "error", err)
		b.reply(s, m, errorEmbed("Gagal menambah saldo."))
		return
	}

	b.logger.Info("manual credit applied",
		"admin_id", m.Author.ID,
		"user_id", targetID,
		"amount", amount,
	)

	user, err := b.users.Get(ctx, targetID)
	balanceNote := ""
	if err == nil {
		balanceNote = fmt.Sprintf("\nSaldo sekarang: %s", midtrans.FormatRupiah(user.Balance))
	}

	b.reply(s, m, infoEmbed("Saldo Ditambahkan", fmt.Sprintf(
		"%s ditambahkan ke <@%d>.%s", midtrans.FormatRupiah(amount), targetID, balanceNote,
	)))
}

// cmdCheckUser shows another user's balance and history
func (b *Bot) cmdCheckUser(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		b.reply(s, m, infoEmbed("Cara Pakai", fmt.Sprintf(
			"`%scheckuser @user`", b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	targetID, err := parseUserRef(args[0])
	if err != nil {
		b.reply(s, m, errorEmbed("User tidak valid. Mention user atau pakai ID."))
		return
	}

	user, err := b.users.Get(ctx, targetID)
	if err != nil {
		b.reply(s, m, errorEmbed("User belum terdaftar."))
		return
	}

	b.reply(s, m, balanceEmbed(user, nil))
}

// cmdCheckTransaction looks up an order locally and at the gateway
func (b *Bot) cmdCheckTransaction(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		b.reply(s, m, infoEmbed("Cara Pakai", fmt.Sprintf(
			"`%schecktransaction <order_id>`", b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	orderID := args[0]
	topup, gatewayStatus, err := b.topupSvc.Lookup(ctx, orderID)
	if err != nil {
		b.reply(s, m, errorEmbed("Order tidak ditemukan."))
		return
	}

	status := ""
	if gatewayStatus != nil {
		status = gatewayStatus.TransactionStatus
	}

	b.reply(s, m, transactionEmbed(topup, status))
}

// cmdCancelTransaction voids a pending order
func (b *Bot) cmdCancelTransaction(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		b.reply(s, m, infoEmbed("Cara Pakai", fmt.Sprintf(
			"`%scanceltransaction <order_id>`", b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	orderID := args[0]
	if err := b.topupSvc.Cancel(ctx, orderID); err != nil {
		switch {
		case domainerrors.IsNotFound(err):
			b.reply(s, m, errorEmbed("Order tidak ditemukan."))
		case domainerrors.IsConflict(err):
			b.reply(s, m, errorEmbed("Order sudah selesai, tidak bisa dibatalkan."))
		default:
			b.logger.Error("order cancellation failed",
				"order_id", orderID, "admin_id", m.Author.ID, "error", err)
			b.reply(s, m, errorEmbed("Gagal membatalkan order."))
		}
		return
	}

	b.logger.Info("order cancelled by admin", "order_id", orderID, "admin_id", m.Author.ID)
	b.reply(s, m, infoEmbed("Order Dibatalkan", fmt.Sprintf("Order `%s` telah dibatalkan.", orderID)))
}

// cmdBotStats shows the service-wide totals
func (b *Bot) cmdBotStats(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	stats, err := b.users.AggregateStats(ctx)
	if err != nil {
		b.logger.Error("stats aggregation failed", "error", err)
		b.reply(s, m, errorEmbed("Gagal mengambil statistik."))
		return
	}

	if count, total, err := b.topups.CountSuccessful(ctx); err == nil {
		stats.SuccessfulTopups = count
		stats.TotalTopupAmount = total
	}
	if success, failed, pending, err := b.redeems.SystemStats(ctx); err == nil {
		stats.SuccessRedeems = success
		stats.FailedRedeems = failed
		stats.PendingRedeems = pending
	}

	b.reply(s, m, systemStatsEmbed(stats))
}

// cmdBroadcast DMs every known user. Delivery is best effort; users with
// closed DMs are skipped.
func (b *Bot) cmdBroadcast(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(s, m, infoEmbed("Cara Pakai", fmt.Sprintf(
			"`%sbroadcast <pesan>`", b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	message := strings.Join(args, " ")

	userIDs, err := b.users.ListTopupUserIDs(ctx)
	if err != nil {
		b.logger.Error("broadcast user listing failed", "error", err)
		b.reply(s, m, errorEmbed("Gagal mengambil daftar user."))
		return
	}

	sent, failed := 0, 0
	embed := infoEmbed("Pengumuman", message)
	for _, userID := range userIDs {
		channel, err := s.UserChannelCreate(fmt.Sprintf("%d", userID))
		if err == nil {
			_, err = s.ChannelMessageSendEmbed(channel.ID, embed)
		}
		if err != nil {
			failed++
			continue
		}
		sent++
	}

	b.logger.Info("broadcast finished",
		"admin_id", m.Author.ID, "sent", sent, "failed", failed)
	b.reply(s, m, infoEmbed("Broadcast Selesai", fmt.Sprintf(
		"Terkirim: %d, gagal: %d", sent, failed,
	)))
}

// cmdCompleteRedeem records a batch's results. Failed codes are refunded
// when refunds are enabled.
func (b *Bot) cmdCompleteRedeem(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 3 {
		b.reply(s, m, infoEmbed("Cara Pakai", fmt.Sprintf(
			"`%scompleteredeem <batch_id> <berhasil> <gagal>`", b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	batchID, err := uuid.Parse(args[0])
	if err != nil {
		b.reply(s, m, errorEmbed("Batch ID tidak valid."))
		return
	}

	successCount, err1 := strconv.Atoi(args[1])
	failedCount, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil || successCount < 0 || failedCount < 0 {
		b.reply(s, m, errorEmbed("Jumlah berhasil/gagal tidak valid."))
		return
	}

	batch, err := b.redeemSvc.Complete(ctx, batchID, successCount, failedCount)
	if err != nil {
		switch {
		case domainerrors.IsNotFound(err):
			b.reply(s, m, errorEmbed("Batch tidak ditemukan."))
		case domainerrors.IsInvalidInput(err):
			b.reply(s, m, errorEmbed("Jumlah berhasil + gagal harus sama dengan jumlah kode batch."))
		case domainerrors.IsConflict(err):
			b.reply(s, m, errorEmbed("Batch sudah pernah diselesaikan."))
		default:
			b.logger.Error("redeem completion failed",
				"batch_id", batchID.String(), "admin_id", m.Author.ID, "error", err)
			b.reply(s, m, errorEmbed("Gagal menyelesaikan batch."))
		}
		return
	}

	b.logger.Info("redeem batch closed by admin",
		"batch_id", batchID.String(),
		"admin_id", m.Author.ID,
		"status", string(batch.Status),
	)

	b.reply(s, m, infoEmbed("Batch Selesai", fmt.Sprintf(
		"Batch `%s` untuk <@%d>\nBerhasil: %d, gagal: %d\nStatus: %s",
		batch.ID.String(), batch.UserID, batch.SuccessCount, batch.FailedCount, batch.Status,
	)))
}

// cmdAdminHelp lists the admin commands
func (b *Bot) cmdAdminHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	p := b.cfg.Discord.CommandPrefix
	b.reply(s, m, infoEmbed("Perintah Admin", strings.Join([]string{
		fmt.Sprintf("`%saddbalance @user <jumlah>` - tambah saldo manual", p),
		fmt.Sprintf("`%scheckuser @user` - cek saldo user lain", p),
		fmt.Sprintf("`%schecktransaction <order_id>` - cek status order", p),
		fmt.Sprintf("`%scompleteredeem <batch_id> <berhasil> <gagal>` - tutup batch redeem", p),
		fmt.Sprintf("`%scanceltransaction <order_id>` - batalkan order pending", p),
		fmt.Sprintf("`%sbotstats` - statistik bot", p),
		fmt.Sprintf("`%sbroadcast <pesan>` - DM semua user", p),
	}, "\n")))
}

// parseUserRef accepts "<@123>", "<@!123>", or a bare snowflake
func parseUserRef(ref string) (int64, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(ref, "<@"), ">")
	trimmed = strings.TrimPrefix(trimmed, "!")
	return parseSnowflake(trimmed)
}
