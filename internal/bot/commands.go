package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cloudvend/topup-bot/internal/adapters/midtrans"
	"github.com/cloudvend/topup-bot/internal/domain/entities"
	domainerrors "github.com/cloudvend/topup-bot/internal/domain/errors"
)

func parseSnowflake(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// cmdBalance shows the caller their current balance
func (b *Bot) cmdBalance(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	userID, err := parseSnowflake(m.Author.ID)
	if err != nil {
		return
	}

	user, err := b.users.GetOrCreate(ctx, userID)
	if err != nil {
		b.logger.Error("balance lookup failed", "user_id", userID, "error", err)
		b.reply(s, m, errorEmbed("Gagal mengambil saldo, coba lagi."))
		return
	}

	b.reply(s, m, balanceEmbed(user, nil))
}

// cmdStats shows balance plus redeem history
func (b *Bot) cmdStats(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	userID, err := parseSnowflake(m.Author.ID)
	if err != nil {
		return
	}

	user, err := b.users.GetOrCreate(ctx, userID)
	if err != nil {
		b.logger.Error("stats lookup failed", "user_id", userID, "error", err)
		b.reply(s, m, errorEmbed("Gagal mengambil statistik, coba lagi."))
		return
	}

	totalBatches, successCodes, failedCodes, err := b.redeems.UserStats(ctx, userID)
	if err != nil {
		b.logger.Error("redeem stats lookup failed", "user_id", userID, "error", err)
		b.reply(s, m, balanceEmbed(user, nil))
		return
	}

	stats := &entities.UserStats{
		UserID:        userID,
		Balance:       user.Balance,
		TotalTopup:    user.TotalTopup,
		TotalSpent:    user.TotalSpent,
		TotalRedeems:  totalBatches,
		SuccessRedeem: successCodes,
		FailedRedeem:  failedCodes,
	}

	b.reply(s, m, balanceEmbed(user, stats))
}

// cmdTopup creates a payment session and DMs the QR to the caller
func (b *Bot) cmdTopup(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		b.reply(s, m, infoEmbed("Cara Topup", fmt.Sprintf(
			"Gunakan `%stopup <jumlah>`, contoh `%stopup 50000`.",
			b.cfg.Discord.CommandPrefix, b.cfg.Discord.CommandPrefix,
		)))
		return
	}

	amount, err := parseAmount(args[0])
	if err != nil {
		b.reply(s, m, errorEmbed("Jumlah tidak valid. Masukkan angka, contoh `50000`."))
		return
	}

	userID, err := parseSnowflake(m.Author.ID)
	if err != nil {
		return
	}

	session, err := b.topupSvc.Begin(ctx, userID, amount)
	if err != nil {
		switch {
		case domainerrors.IsInvalidInput(err):
			b.reply(s, m, errorEmbed(err.Error()))
		case domainerrors.IsServiceUnavailable(err):
			b.reply(s, m, errorEmbed("Payment gateway sedang bermasalah, coba beberapa saat lagi."))
		default:
			b.logger.Error("topup session failed", "user_id", userID, "error", err)
			b.reply(s, m, errorEmbed("Gagal membuat transaksi, coba lagi."))
		}
		return
	}

	// The QR goes to a DM so the payment stays private. When the user's
	// DMs are closed, fall back to the channel rather than stranding a
	// pending order they cannot pay.
	channel, err := s.UserChannelCreate(m.Author.ID)
	if err == nil {
		_, err = s.ChannelMessageSendEmbed(channel.ID, paymentEmbed(session))
	}
	if err != nil {
		b.logger.Warn("qr dm undeliverable, falling back to channel",
			"order_id", session.Topup.OrderID, "error", err)
		b.reply(s, m, paymentEmbed(session))
		return
	}

	b.reply(s, m, infoEmbed("QR Terkirim", "Cek DM kamu untuk menyelesaikan pembayaran."))
}

// cmdRedeem debits a redeem batch up front. The batch stays pending
// until its results are recorded.
func (b *Bot) cmdRedeem(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	price := b.redeemSvc.CodePrice()

	if len(args) != 1 {
		b.reply(s, m, infoEmbed("Cara Redeem", fmt.Sprintf(
			"Gunakan `%sredeem <jumlah_kode>`. Biaya per kode: %s.",
			b.cfg.Discord.CommandPrefix, midtrans.FormatRupiah(price),
		)))
		return
	}

	codeCount, err := strconv.Atoi(args[0])
	if err != nil || codeCount <= 0 {
		b.reply(s, m, errorEmbed("Jumlah kode tidak valid. Masukkan angka, contoh `5`."))
		return
	}

	userID, err := parseSnowflake(m.Author.ID)
	if err != nil {
		return
	}

	batch, err := b.redeemSvc.Charge(ctx, userID, codeCount)
	if err != nil {
		switch {
		case domainerrors.IsInsufficientBalance(err):
			b.reply(s, m, errorEmbed(fmt.Sprintf(
				"Saldo tidak cukup. Biaya %d kode: %s. Topup dulu dengan `%stopup <jumlah>`.",
				codeCount, midtrans.FormatRupiah(int64(codeCount)*price), b.cfg.Discord.CommandPrefix,
			)))
		case domainerrors.IsInvalidInput(err):
			b.reply(s, m, errorEmbed("Jumlah kode melebihi batas per batch."))
		default:
			b.logger.Error("redeem charge failed", "user_id", userID, "error", err)
			b.reply(s, m, errorEmbed("Gagal memproses redeem, coba lagi."))
		}
		return
	}

	balanceNote := ""
	if user, err := b.users.Get(ctx, userID); err == nil {
		balanceNote = fmt.Sprintf("\nSaldo tersisa: %s", midtrans.FormatRupiah(user.Balance))
	}

	b.reply(s, m, infoEmbed("Redeem Masuk Antrian", fmt.Sprintf(
		"Batch `%s`\nJumlah kode: %d\nBiaya: %s%s",
		batch.ID.String(), batch.CodeCount, midtrans.FormatRupiah(batch.TotalCost), balanceNote,
	)))
}

// cmdHelp lists the user commands
func (b *Bot) cmdHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	p := b.cfg.Discord.CommandPrefix
	b.reply(s, m, infoEmbed("Daftar Perintah", strings.Join([]string{
		fmt.Sprintf("`%ssaldo` - cek saldo", p),
		fmt.Sprintf("`%sstats` - saldo dan riwayat redeem", p),
		fmt.Sprintf("`%stopup <jumlah>` - isi saldo via QRIS", p),
		fmt.Sprintf("`%sredeem <jumlah_kode>` - beli batch redeem", p),
		fmt.Sprintf("`%scommands` - daftar perintah ini", p),
	}, "\n")))
}

// parseAmount accepts plain digits and loosely formatted rupiah like
// "Rp 10.000" or "10,000"
func parseAmount(text string) (int64, error) {
	clean := strings.NewReplacer("Rp", "", "rp", "", " ", "", ".", "", ",", "").Replace(text)
	amount, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
