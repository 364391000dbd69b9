package midtrans

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
)

func signatureFor(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func TestVerifySignature(t *testing.T) {
	const serverKey = "SB-Mid-server-testkey"
	sig := signatureFor("TOPUP-123-20250115120000", "200", "50000.00", serverKey)

	assert.True(t, VerifySignature("TOPUP-123-20250115120000", "200", "50000.00", serverKey, sig))

	t.Run("uppercase signature accepted", func(t *testing.T) {
		assert.True(t, VerifySignature("TOPUP-123-20250115120000", "200", "50000.00", serverKey, strings.ToUpper(sig)))
	})

	t.Run("wrong server key rejected", func(t *testing.T) {
		assert.False(t, VerifySignature("TOPUP-123-20250115120000", "200", "50000.00", "other-key", sig))
	})

	t.Run("tampered amount rejected", func(t *testing.T) {
		assert.False(t, VerifySignature("TOPUP-123-20250115120000", "200", "99000.00", serverKey, sig))
	})

	t.Run("empty signature rejected", func(t *testing.T) {
		assert.False(t, VerifySignature("TOPUP-123-20250115120000", "200", "50000.00", serverKey, ""))
	})
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		transactionStatus string
		fraudStatus       string
		expected          entities.TopupStatus
	}{
		{"capture", "accept", entities.TopupStatusSuccess},
		{"capture", "challenge", entities.TopupStatusFailed},
		{"capture", "", entities.TopupStatusFailed},
		{"settlement", "", entities.TopupStatusSuccess},
		{"settlement", "accept", entities.TopupStatusSuccess},
		{"cancel", "", entities.TopupStatusFailed},
		{"deny", "", entities.TopupStatusFailed},
		{"expire", "", entities.TopupStatusExpired},
		{"pending", "", entities.TopupStatusPending},
		{"authorize", "", entities.TopupStatusPending},
		{"", "", entities.TopupStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.transactionStatus+"/"+tt.fraudStatus, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeStatus(tt.transactionStatus, tt.fraudStatus))
		})
	}
}

func TestParseGrossAmount(t *testing.T) {
	t.Run("whole amounts", func(t *testing.T) {
		for input, expected := range map[string]int64{
			"50000.00": 50000,
			"50000":    50000,
			"10000.0":  10000,
			"1":        1,
		} {
			got, err := ParseGrossAmount(input)
			require.NoError(t, err, input)
			assert.Equal(t, expected, got, input)
		}
	})

	t.Run("rejected amounts", func(t *testing.T) {
		for _, input := range []string{"50000.50", "0", "0.00", "-10000", "abc", ""} {
			_, err := ParseGrossAmount(input)
			assert.Error(t, err, input)
		}
	})
}

func TestOrderIDRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	orderID := GenerateOrderID(236018288436510720, now)

	assert.Equal(t, "TOPUP-236018288436510720-20250115120000", orderID)
	assert.LessOrEqual(t, len(orderID), 50)

	userID, err := ParseOrderID(orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(236018288436510720), userID)
}

func TestParseOrderID_Malformed(t *testing.T) {
	for _, input := range []string{
		"",
		"TOPUP-123",
		"REDEEM-123-20250115120000",
		"TOPUP-abc-20250115120000",
		"TOPUP-123-2025-0115",
	} {
		_, err := ParseOrderID(input)
		assert.Error(t, err, input)
	}
}

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "Rp 0", FormatRupiah(0))
	assert.Equal(t, "Rp 500", FormatRupiah(500))
	assert.Equal(t, "Rp 10.000", FormatRupiah(10000))
	assert.Equal(t, "Rp 1.500.000", FormatRupiah(1500000))
	assert.Equal(t, "Rp -25.000", FormatRupiah(-25000))
}
