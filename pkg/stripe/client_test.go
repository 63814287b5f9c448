package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/config"
)

func TestNewClientMatchesKeyToMode(t *testing.T) {
	cases := []struct {
		name     string
		cfg      config.StripeConfig
		wantErr  bool
		wantLive bool
	}{
		{name: "test key in test mode", cfg: config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec", Env: "test"}},
		{name: "default mode is test", cfg: config.StripeConfig{APIKey: "rk_test_123", WebhookSecret: "whsec"}},
		{name: "live key in test mode", cfg: config.StripeConfig{APIKey: "sk_live_123", WebhookSecret: "whsec", Env: "test"}, wantErr: true},
		{name: "restricted live key", cfg: config.StripeConfig{APIKey: "rk_live_123", WebhookSecret: "whsec", Env: "LIVE"}, wantLive: true},
		{name: "publishable key", cfg: config.StripeConfig{APIKey: "pk_test_123", WebhookSecret: "whsec", Env: "test"}, wantErr: true},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_123", Env: "test"}, wantErr: true},
		{name: "unknown mode", cfg: config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec", Env: "staging"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "whsec", client.SigningSecret())
			assert.Equal(t, tc.wantLive, client.Live())
		})
	}
}

func TestCreatePaymentIntentRejectsNonPositiveAmount(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec"}, nil)
	require.NoError(t, err)
	_, err = client.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 0, Currency: "INR"})
	assert.ErrorContains(t, err, "positive")
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	_, err := c.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = c.Refund(context.Background(), RefundRequest{PaymentIntentID: "pi_1"})
	assert.ErrorIs(t, err, errNotInitialized)
	assert.False(t, c.Live())
	assert.Empty(t, c.SigningSecret())
}
