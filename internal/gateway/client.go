package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnavailable covers network failures, timeouts and 5xx responses.
	// The payment may still succeed at the gateway, so callers must never
	// translate this into a failed payment state.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrRejected covers 4xx responses: bad amount, unsupported currency.
	// Permanent for the same parameters.
	ErrRejected = errors.New("gateway rejected request")
	ErrNotFound = errors.New("gateway has no such payment")
)

// Order is the gateway's view of a created order.
type Order struct {
	ID               string `json:"id"`
	AmountMinorUnits int64  `json:"amount"`
	Currency         string `json:"currency"`
	Receipt          string `json:"receipt"`
	Status           string `json:"status"`
}

// Payment is the gateway's view of a payment attempt against an order.
type Payment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	AmountMinorUnits int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// Gateway payment statuses reported by FetchPayment.
const (
	PaymentStatusCaptured = "captured"
	PaymentStatusFailed   = "failed"
)

// Client is a stateless adapter for the payment gateway's REST API.
// It never touches local payment records.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

func (c *Client) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receiptRef string) (*Order, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receiptRef,
	})
	if err != nil {
		return nil, fmt.Errorf("encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("%w: decode order response: %v", ErrUnavailable, err)
	}
	return &order, nil
}

func (c *Client) FetchPayment(ctx context.Context, externalPaymentID string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+externalPaymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("%w: decode payment response: %v", ErrUnavailable, err)
	}
	return &payment, nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	default:
		return fmt.Errorf("%w: status %d", ErrRejected, code)
	}
}
