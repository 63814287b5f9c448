// Package stripe is the card gateway used by marketplace checkout.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

var errNotInitialized = errors.New("stripe client not initialized")

// keyPrefixes lists the secret and restricted key prefixes valid per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

type Client struct {
	api           *stripe.Client
	mode          string
	signingSecret string
}

// NewClient refuses a key whose mode does not match cfg.Env so a test deploy
// can never charge real cards.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", mode)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s mode requires a %s key", mode, strings.Join(prefixes, "/"))
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", mode), "stripe client initialized")
	}
	return &Client{api: stripe.NewClient(apiKey), mode: mode, signingSecret: secret}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// IntentRequest opens a payment intent. Metadata comes back on every webhook
// for the intent and is how the checkout is found again.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("intent amount must be positive, got %d", req.Amount)
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	intent, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret, Status: string(intent.Status)}, nil
}

// RefundRequest refunds Amount minor units of a succeeded intent. A zero
// Amount refunds whatever is left.
type RefundRequest struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	IdempotencyKey  string
}

func (c *Client) Refund(ctx context.Context, req RefundRequest) (string, error) {
	if c == nil || c.api == nil {
		return "", errNotInitialized
	}
	params := &stripe.RefundCreateParams{PaymentIntent: stripe.String(req.PaymentIntentID)}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	refund, err := c.api.V1Refunds.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	return refund.ID, nil
}

// Live reports whether the client charges real cards.
func (c *Client) Live() bool {
	return c != nil && c.mode == "live"
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
