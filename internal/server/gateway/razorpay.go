// Package gateway talks to the Razorpay orders API and verifies payment
// signatures returned by the hosted checkout.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no API credentials were provided.
var ErrNotConfigured = errors.New("payment gateway is not configured")

// Order is the gateway's order object, returned to the browser unchanged.
type Order struct {
	ID         string            `json:"id"`
	Entity     string            `json:"entity"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

// CreateOrderRequest is the body of POST /v1/orders. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// RazorpayClient is safe for concurrent use. It owns its http.Client; call
// Close on shutdown.
type RazorpayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

func NewRazorpayClient(keyID, keySecret, baseURL string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// KeyID is the public key the browser checkout needs.
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// CreateOrder registers an order with the gateway.
func (c *RazorpayClient) CreateOrder(ctx context.Context, in CreateOrderRequest) (*Order, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal razorpay order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create razorpay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read razorpay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, fmt.Errorf("razorpay error (HTTP %d): code=%s description=%s",
			resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
	}

	order := &Order{}
	if err := json.Unmarshal(respBody, order); err != nil {
		return nil, fmt.Errorf("decode razorpay order: %w", err)
	}
	if order.ID == "" {
		return nil, errors.New("razorpay order without id")
	}
	return order, nil
}

// VerifySignature checks a checkout callback signature with the key secret.
func (c *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	if c.keySecret == "" {
		return false
	}
	return VerifySignature(c.keySecret, orderID, paymentID, signature)
}

// Close releases idle connections held by the client.
func (c *RazorpayClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// Signature is hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func Signature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	expected := Signature(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
