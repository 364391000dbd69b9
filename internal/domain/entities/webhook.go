package entities

// MidtransNotification is the gateway's HTTP notification payload.
// Field reference: https://docs.midtrans.com/docs/http-notification-webhooks
type MidtransNotification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	TransactionID     string `json:"transaction_id"`
	StatusMessage     string `json:"status_message"`
	StatusCode        string `json:"status_code" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	PaymentType       string `json:"payment_type"`
	OrderID           string `json:"order_id" validate:"required"`
	MerchantID        string `json:"merchant_id"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	FraudStatus       string `json:"fraud_status"`
	Currency          string `json:"currency"`
}

// ErrorResponse is the standard error envelope returned by the HTTP layer
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
