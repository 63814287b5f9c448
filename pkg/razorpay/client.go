package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
)

// OrderRequest describes a gateway order. Amount is in paise.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the gateway's view of a created order.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Gateway is the order/refund surface services depend on.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (string, error)
}

// Client wraps the official SDK together with the secrets used for verification.
type Client struct {
	api           *rzp.Client
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
}

// NewClient initializes the SDK with the configured key pair.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		return nil, errKeySecretRequired
	}

	c := &Client{
		api:           rzp.NewClient(keyID, secret),
		keyID:         keyID,
		keySecret:     secret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
	}
	if c.currency == "" {
		c.currency = "INR"
	}

	if logg != nil {
		mode := "test"
		if strings.HasPrefix(keyID, "rzp_live") {
			mode = "live"
		}
		logg.Info(logg.WithField(ctx, "mode", mode), "razorpay client initialized")
		if c.webhookSecret == "" {
			logg.Warn(ctx, "razorpay webhook secret not configured; webhook signatures will not be verified")
		}
	}
	return c, nil
}

func (c *Client) KeyID() string { return c.keyID }

// KeySecret signs checkout (order_id|payment_id) signatures.
func (c *Client) KeySecret() string { return c.keySecret }

// WebhookSecret signs webhook bodies. Empty when not configured.
func (c *Client) WebhookSecret() string { return c.webhookSecret }

func (c *Client) Currency() string { return c.currency }

// CreateOrder creates a remote order. The SDK has no context support; ctx is
// only checked before the call.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("order amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}

	notes := map[string]interface{}{}
	for k, v := range req.Notes {
		notes[k] = v
	}
	body, err := c.api.Order.Create(map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return parseOrder(body)
}

// Refund refunds amount paise of a captured payment and returns the refund id.
func (c *Client) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(paymentID) == "" {
		return "", fmt.Errorf("payment id is required")
	}
	data := map[string]interface{}{}
	if len(notes) > 0 {
		n := map[string]interface{}{}
		for k, v := range notes {
			n[k] = v
		}
		data["notes"] = n
	}
	body, err := c.api.Payment.Refund(paymentID, int(amount), data, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay refund: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return "", fmt.Errorf("razorpay refund: response missing id")
	}
	return id, nil
}

func parseOrder(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order: response missing id")
	}
	order := &Order{ID: id}
	order.Currency, _ = body["currency"].(string)
	order.Receipt, _ = body["receipt"].(string)
	order.Status, _ = body["status"].(string)
	switch v := body["amount"].(type) {
	case float64:
		order.Amount = int64(v)
	case int64:
		order.Amount = v
	case int:
		order.Amount = int64(v)
	}
	return order, nil
}
