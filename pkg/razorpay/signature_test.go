package razorpay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/config"
)

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "key_secret"
	sig := Sign(secret, []byte("order_A|pay_B"))

	assert.True(t, VerifyPaymentSignature(secret, "order_A", "pay_B", sig))
	assert.True(t, VerifyPaymentSignature(secret, "order_A", "pay_B", "  "+sig+" "), "whitespace is tolerated")
	assert.False(t, VerifyPaymentSignature(secret, "order_A", "pay_C", sig), "payment id is bound")
	assert.False(t, VerifyPaymentSignature("other", "order_A", "pay_B", sig))
	assert.False(t, VerifyPaymentSignature(secret, "order_A", "pay_B", ""))
	assert.False(t, VerifyPaymentSignature("", "order_A", "pay_B", sig))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.failed"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifyWebhookSignature("whsec", body, sig))
	assert.False(t, VerifyWebhookSignature("whsec", append(body, ' '), sig))
	assert.False(t, VerifyWebhookSignature("", body, sig))
}

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	assert.Equal(t,
		"f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		Sign("key", []byte("The quick brown fox jumps over the lazy dog")))
}

func TestNewClientRequiresKeys(t *testing.T) {
	_, err := NewClient(context.Background(), config.RazorpayConfig{KeySecret: "s"}, nil)
	assert.ErrorIs(t, err, errKeyIDRequired)
	_, err = NewClient(context.Background(), config.RazorpayConfig{KeyID: "rzp_test_x"}, nil)
	assert.ErrorIs(t, err, errKeySecretRequired)

	c, err := NewClient(context.Background(), config.RazorpayConfig{KeyID: "rzp_test_x", KeySecret: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "INR", c.Currency())
	assert.Equal(t, "rzp_test_x", c.KeyID())
}

func TestParseOrder(t *testing.T) {
	order, err := parseOrder(map[string]interface{}{"id": "order_1", "amount": float64(29900), "currency": "INR", "status": "created"})
	require.NoError(t, err)
	assert.Equal(t, int64(29900), order.Amount)
	assert.Equal(t, "created", order.Status)

	_, err = parseOrder(map[string]interface{}{})
	assert.Error(t, err)
}
