package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/componentry-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

const testSecret = "whsec_test"

type recordingStripeService struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (s *recordingStripeService) HandleEvent(_ context.Context, event *stripe.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event.ID)
	return s.err
}

func (s *recordingStripeService) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type staticSecret string

func (s staticSecret) SigningSecret() string { return string(s) }

type mapStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *mapStore) Get(context.Context, string) (string, error) { return "", nil }

func (m *mapStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *mapStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *mapStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func signedIntentEvent(t *testing.T) (string, []byte, string) {
	t.Helper()
	raw, err := json.Marshal(stripe.PaymentIntent{
		ID:       "pi_" + uuid.NewString(),
		Amount:   1900,
		Currency: "usd",
		Metadata: map[string]string{"transaction_id": uuid.NewString()},
	})
	require.NoError(t, err)

	id := "evt_" + uuid.NewString()
	body, err := json.Marshal(stripe.Event{
		ID:         id,
		Object:     "event",
		Type:       stripe.EventTypePaymentIntentSucceeded,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return id, signed.Payload, signed.Header
}

func newGuard(t *testing.T) *webhooks.IdempotencyGuard {
	t.Helper()
	guard, err := webhooks.NewIdempotencyGuard(&mapStore{}, time.Hour, "stripe")
	require.NoError(t, err)
	return guard
}

func deliver(h http.Handler, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(string(body)))
	if sig != "" {
		req.Header.Set(stripeSigHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookAppliesEventOnce(t *testing.T) {
	id, body, sig := signedIntentEvent(t)
	svc := &recordingStripeService{}
	h := StripeWebhook(svc, staticSecret(testSecret), newGuard(t), nil)

	first := deliver(h, body, sig)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Contains(t, first.Body.String(), `"ok"`)

	second := deliver(h, body, sig)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	assert.Equal(t, []string{id}, svc.events)
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	_, body, _ := signedIntentEvent(t)

	cases := map[string]string{
		"missing": "",
		"forged":  "t=1,v1=deadbeef",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &recordingStripeService{}
			rec := deliver(StripeWebhook(svc, staticSecret(testSecret), nil, nil), body, sig)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, svc.count())
		})
	}
}

func TestStripeWebhookWrongSecret(t *testing.T) {
	_, body, sig := signedIntentEvent(t)
	svc := &recordingStripeService{}
	rec := deliver(StripeWebhook(svc, staticSecret("whsec_other"), nil, nil), body, sig)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.count())
}

func TestStripeWebhookFailureAllowsRedelivery(t *testing.T) {
	_, body, sig := signedIntentEvent(t)
	svc := &recordingStripeService{err: pkgerrors.New(pkgerrors.CodeInternal, "settle failed")}
	h := StripeWebhook(svc, staticSecret(testSecret), newGuard(t), nil)

	assert.Equal(t, http.StatusInternalServerError, deliver(h, body, sig).Code)

	svc.err = nil
	assert.Equal(t, http.StatusOK, deliver(h, body, sig).Code)
	assert.Equal(t, 2, svc.count())
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	_, body, sig := signedIntentEvent(t)
	rec := deliver(StripeWebhook(nil, nil, nil, nil), body, sig)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
