package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cloudvend/topup-bot/internal/adapters/midtrans"
	"github.com/cloudvend/topup-bot/internal/domain/entities"
	"github.com/cloudvend/topup-bot/internal/domain/services/reconcile"
	"github.com/cloudvend/topup-bot/internal/domain/services/topup"
)

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorYellow = 0xf1c40f
	colorBlue   = 0x3498db
)

// NotificationEmbed renders the DM for one payment notice, picking the
// settlement or failure layout from the ledger status
func NotificationEmbed(notice reconcile.Notice) *discordgo.MessageEmbed {
	if notice.Status == entities.TopupStatusSuccess {
		return settlementEmbed(notice)
	}
	return paymentFailedEmbed(notice)
}

// settlementEmbed renders the DM sent after a payment is credited
func settlementEmbed(notice reconcile.Notice) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Pembayaran Berhasil",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Order ID", Value: notice.OrderID, Inline: false},
			{Name: "Jumlah", Value: midtrans.FormatRupiah(notice.Amount), Inline: true},
			{Name: "Saldo Sekarang", Value: midtrans.FormatRupiah(notice.Balance), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Saldo sudah masuk dan siap dipakai"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// paymentFailedEmbed renders the DM sent when a payment fails or the QR
// expires unpaid
func paymentFailedEmbed(notice reconcile.Notice) *discordgo.MessageEmbed {
	title := "Pembayaran Gagal"
	description := "Pembayaran kamu ditolak oleh gateway. Saldo kamu tidak berubah."
	if notice.Status == entities.TopupStatusExpired {
		title = "Pembayaran Kedaluwarsa"
		description = "QR pembayaran sudah kedaluwarsa sebelum dibayar. Saldo kamu tidak berubah."
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Order ID", Value: notice.OrderID, Inline: false},
			{Name: "Jumlah", Value: midtrans.FormatRupiah(notice.Amount), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Ulangi perintah topup untuk membuat order baru, atau hubungi admin jika kamu sudah membayar"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// paymentEmbed renders the QR payment instructions for a fresh topup
func paymentEmbed(session *topup.PaymentSession) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Scan QRIS Untuk Bayar",
		Description: "Scan QR di bawah dengan aplikasi pembayaran apa pun yang mendukung QRIS.",
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Order ID", Value: session.Topup.OrderID, Inline: false},
			{Name: "Jumlah", Value: midtrans.FormatRupiah(session.Topup.Amount), Inline: false},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Pembayaran akan otomatis terverifikasi"},
	}
	if session.QRImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: session.QRImageURL}
	}
	if session.ExpiryTime != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Berlaku Sampai", Value: session.ExpiryTime, Inline: false,
		})
	}
	return embed
}

// balanceEmbed renders the !saldo / !stats response
func balanceEmbed(user *entities.User, stats *entities.UserStats) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Saldo Kamu",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Saldo Saat Ini", Value: midtrans.FormatRupiah(user.Balance), Inline: false},
			{Name: "Total Topup", Value: midtrans.FormatRupiah(user.TotalTopup), Inline: true},
			{Name: "Total Spent", Value: midtrans.FormatRupiah(user.TotalSpent), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("User ID: %d", user.UserID)},
	}
	if stats != nil {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Redeem Success", Value: fmt.Sprintf("%d", stats.SuccessRedeem), Inline: true},
			&discordgo.MessageEmbedField{Name: "Redeem Failed", Value: fmt.Sprintf("%d", stats.FailedRedeem), Inline: true},
		)
	}
	return embed
}

// transactionEmbed renders one order for the admin transaction lookup
func transactionEmbed(t *entities.Topup, gatewayStatus string) *discordgo.MessageEmbed {
	color := colorYellow
	switch t.Status {
	case entities.TopupStatusSuccess:
		color = colorGreen
	case entities.TopupStatusFailed, entities.TopupStatusExpired:
		color = colorRed
	}

	embed := &discordgo.MessageEmbed{
		Title: "Detail Transaksi",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Order ID", Value: t.OrderID, Inline: false},
			{Name: "User", Value: fmt.Sprintf("<@%d>", t.UserID), Inline: true},
			{Name: "Jumlah", Value: midtrans.FormatRupiah(t.Amount), Inline: true},
			{Name: "Status", Value: string(t.Status), Inline: true},
			{Name: "Dibuat", Value: t.CreatedAt.Format("2006-01-02 15:04:05"), Inline: true},
		},
	}
	if t.PaymentType != nil && *t.PaymentType != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Metode", Value: *t.PaymentType, Inline: true,
		})
	}
	if gatewayStatus != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Status di Gateway", Value: gatewayStatus, Inline: true,
		})
	}
	return embed
}

// systemStatsEmbed renders the admin !botstats response
func systemStatsEmbed(stats *entities.SystemStats) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Statistik Bot",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total User", Value: fmt.Sprintf("%d", stats.TotalUsers), Inline: true},
			{Name: "Total Saldo Beredar", Value: midtrans.FormatRupiah(stats.TotalBalance), Inline: true},
			{Name: "Topup Berhasil", Value: fmt.Sprintf("%d", stats.SuccessfulTopups), Inline: true},
			{Name: "Total Nilai Topup", Value: midtrans.FormatRupiah(stats.TotalTopupAmount), Inline: true},
			{Name: "Redeem Success", Value: fmt.Sprintf("%d", stats.SuccessRedeems), Inline: true},
			{Name: "Redeem Failed", Value: fmt.Sprintf("%d", stats.FailedRedeems), Inline: true},
			{Name: "Redeem Pending", Value: fmt.Sprintf("%d", stats.PendingRedeems), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func errorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Gagal",
		Description: message,
		Color:       colorRed,
	}
}

func infoEmbed(title, message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: message,
		Color:       colorBlue,
	}
}
