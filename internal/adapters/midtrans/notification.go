package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
)

// VerifySignature checks a notification's signature key against
// SHA512(order_id + status_code + gross_amount + server_key).
// The comparison is constant-time.
func VerifySignature(orderID, statusCode, grossAmount, serverKey, signatureKey string) bool {
	payload := orderID + statusCode + grossAmount + serverKey
	sum := sha512.Sum512([]byte(payload))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signatureKey))) == 1
}

// NormalizeStatus maps a gateway transaction status to the order state
// machine. A capture is only a success when fraud screening accepted it;
// expiry is kept distinct from failure so stale orders can be told apart
// from denied ones.
func NormalizeStatus(transactionStatus, fraudStatus string) entities.TopupStatus {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return entities.TopupStatusSuccess
		}
		return entities.TopupStatusFailed
	case "settlement":
		return entities.TopupStatusSuccess
	case "cancel", "deny":
		return entities.TopupStatusFailed
	case "expire":
		return entities.TopupStatusExpired
	default:
		return entities.TopupStatusPending
	}
}

// ParseGrossAmount converts the gateway's decimal string ("10000.00")
// into whole rupiah. Fractional amounts are rejected; IDR has no cents.
func ParseGrossAmount(grossAmount string) (int64, error) {
	d, err := decimal.NewFromString(grossAmount)
	if err != nil {
		return 0, fmt.Errorf("invalid gross amount %q: %w", grossAmount, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("gross amount %q has a fractional part", grossAmount)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("gross amount %q is not positive", grossAmount)
	}
	return d.IntPart(), nil
}

// GenerateOrderID builds a unique order id for a topup attempt.
// Format: TOPUP-{userID}-{yyyymmddhhmmss}, which stays under the
// gateway's 50 character order id limit for any snowflake.
func GenerateOrderID(userID int64, now time.Time) string {
	return fmt.Sprintf("TOPUP-%d-%s", userID, now.Format("20060102150405"))
}

// ParseOrderID extracts the Discord user id embedded in an order id
func ParseOrderID(orderID string) (int64, error) {
	parts := strings.Split(orderID, "-")
	if len(parts) != 3 || parts[0] != "TOPUP" {
		return 0, fmt.Errorf("malformed order id %q", orderID)
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed order id %q: %w", orderID, err)
	}
	return userID, nil
}

// FormatRupiah renders an amount as "Rp 10.000"
func FormatRupiah(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	if negative {
		return "Rp -" + b.String()
	}
	return "Rp " + b.String()
}
