package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	"github.com/cloudvend/topup-bot/internal/domain/services/reconcile"
)

func fieldValue(embed *discordgo.MessageEmbed, name string) string {
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func TestNotificationEmbed_Settlement(t *testing.T) {
	embed := NotificationEmbed(reconcile.Notice{
		UserID:  7,
		OrderID: "TOPUP-7-20250115120000",
		Amount:  50000,
		Balance: 75000,
		Status:  entities.TopupStatusSuccess,
	})

	assert.Equal(t, "Pembayaran Berhasil", embed.Title)
	assert.Equal(t, colorGreen, embed.Color)
	assert.Equal(t, "TOPUP-7-20250115120000", fieldValue(embed, "Order ID"))
	assert.Equal(t, "Rp 50.000", fieldValue(embed, "Jumlah"))
	assert.Equal(t, "Rp 75.000", fieldValue(embed, "Saldo Sekarang"))
}

func TestNotificationEmbed_Failed(t *testing.T) {
	embed := NotificationEmbed(reconcile.Notice{
		UserID:  7,
		OrderID: "TOPUP-7-20250115120000",
		Amount:  50000,
		Status:  entities.TopupStatusFailed,
	})

	assert.Equal(t, "Pembayaran Gagal", embed.Title)
	assert.Equal(t, colorRed, embed.Color)
	assert.Contains(t, embed.Description, "Saldo kamu tidak berubah")
	assert.Equal(t, "TOPUP-7-20250115120000", fieldValue(embed, "Order ID"))
	require.NotNil(t, embed.Footer)
	assert.Contains(t, embed.Footer.Text, "topup")
}

func TestNotificationEmbed_Expired(t *testing.T) {
	embed := NotificationEmbed(reconcile.Notice{
		UserID:  7,
		OrderID: "TOPUP-7-20250115120000",
		Amount:  50000,
		Status:  entities.TopupStatusExpired,
	})

	assert.Equal(t, "Pembayaran Kedaluwarsa", embed.Title)
	assert.Equal(t, colorRed, embed.Color)
	assert.Contains(t, embed.Description, "kedaluwarsa")
}
