package midtrans

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second

	chargeEndpoint = "/v2/charge"
	statusEndpoint = "/v2/%s/status"
	cancelEndpoint = "/v2/%s/cancel"
	expireEndpoint = "/v2/%s/expire"
)

// Config represents Midtrans Core API configuration
type Config struct {
	ServerKey    string
	Environment  string // sandbox or production
	BaseURL      string
	Timeout      time.Duration
	QRISAcquirer string
}

// Client is a Midtrans Core API client for QRIS transactions
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// ChargeRequest is the /v2/charge payload for a QRIS transaction
type ChargeRequest struct {
	PaymentType        string             `json:"payment_type"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
	CustomerDetails    *CustomerDetails   `json:"customer_details,omitempty"`
	QRIS               *QRISDetails       `json:"qris,omitempty"`
	CustomExpiry       *CustomExpiry      `json:"custom_expiry,omitempty"`
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type QRISDetails struct {
	Acquirer string `json:"acquirer"`
}

type CustomExpiry struct {
	ExpiryDuration int    `json:"expiry_duration"`
	Unit           string `json:"unit"`
}

// ChargeResponse is the subset of the charge response the bot consumes
type ChargeResponse struct {
	StatusCode        string   `json:"status_code"`
	StatusMessage     string   `json:"status_message"`
	TransactionID     string   `json:"transaction_id"`
	OrderID           string   `json:"order_id"`
	GrossAmount       string   `json:"gross_amount"`
	PaymentType       string   `json:"payment_type"`
	TransactionTime   string   `json:"transaction_time"`
	TransactionStatus string   `json:"transaction_status"`
	ExpiryTime        string   `json:"expiry_time"`
	QRString          string   `json:"qr_string"`
	Actions           []Action `json:"actions"`
}

// Action is an operation link returned with a charge, such as the QR image URL
type Action struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

// StatusResponse is the /v2/{order_id}/status response
type StatusResponse struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time"`
}

// APIError carries a non-2xx gateway response
type APIError struct {
	HTTPStatus    int
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("midtrans api error: http %d, status %s: %s", e.HTTPStatus, e.StatusCode, e.StatusMessage)
}

// NewClient creates a new Midtrans client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	if config.BaseURL == "" {
		if config.Environment == "production" {
			config.BaseURL = "https://api.midtrans.com"
		} else {
			config.BaseURL = "https://api.sandbox.midtrans.com"
		}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.QRISAcquirer == "" {
		config.QRISAcquirer = "gopay"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	st := gobreaker.Settings{
		Name:        "MidtransCoreAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     httpClient,
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		logger:         logger,
	}
}

// ChargeQRIS creates a QRIS payment for the given order
func (c *Client) ChargeQRIS(ctx context.Context, orderID string, amount int64, expiryMinutes int) (*ChargeResponse, error) {
	req := &ChargeRequest{
		PaymentType: "qris",
		TransactionDetails: TransactionDetails{
			OrderID:     orderID,
			GrossAmount: amount,
		},
		QRIS: &QRISDetails{Acquirer: c.config.QRISAcquirer},
	}
	if expiryMinutes > 0 {
		req.CustomExpiry = &CustomExpiry{
			ExpiryDuration: expiryMinutes,
			Unit:           "minute",
		}
	}

	c.logger.Info("Creating QRIS charge",
		zap.String("order_id", orderID),
		zap.Int64("amount", amount))

	var response ChargeResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequest(ctx, http.MethodPost, chargeEndpoint, req, &response)
	})
	if err != nil {
		c.logger.Error("QRIS charge failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, fmt.Errorf("charge failed: %w", err)
	}

	return &response, nil
}

// TransactionStatus fetches the gateway's view of an order
func (c *Client) TransactionStatus(ctx context.Context, orderID string) (*StatusResponse, error) {
	endpoint := fmt.Sprintf(statusEndpoint, orderID)

	var response StatusResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequest(ctx, http.MethodGet, endpoint, nil, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("status check failed: %w", err)
	}

	return &response, nil
}

// CancelTransaction voids a pending order at the gateway
func (c *Client) CancelTransaction(ctx context.Context, orderID string) (*StatusResponse, error) {
	endpoint := fmt.Sprintf(cancelEndpoint, orderID)

	var response StatusResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequest(ctx, http.MethodPost, endpoint, nil, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel failed: %w", err)
	}

	return &response, nil
}

// ExpireTransaction forces a pending order into the expired state
func (c *Client) ExpireTransaction(ctx context.Context, orderID string) (*StatusResponse, error) {
	endpoint := fmt.Sprintf(expireEndpoint, orderID)

	var response StatusResponse
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return &response, c.doRequest(ctx, http.MethodPost, endpoint, nil, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("expire failed: %w", err)
	}

	return &response, nil
}

// ServerKey exposes the configured key for notification verification
func (c *Client) ServerKey() string {
	return c.config.ServerKey
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if unmarshalErr := json.Unmarshal(data, apiErr); unmarshalErr != nil {
			apiErr.StatusMessage = string(data)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// authHeader builds the basic auth header Midtrans expects: the server
// key as username with an empty password.
func (c *Client) authHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.config.ServerKey + ":"))
	return "Basic " + token
}
