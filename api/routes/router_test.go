package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/internal/users"
	pkgauth "github.com/angelmondragon/componentry-backend/pkg/auth"
	"github.com/angelmondragon/componentry-backend/pkg/auth/session"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryStore struct {
	data     map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) RateLimitKey(policy, dimension, subject string) string {
	return "rl:" + policy + ":" + dimension + ":" + subject
}

func (m *memoryStore) Ping(context.Context) error { return nil }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubAudit struct{ called bool }

func (s *stubAudit) List(context.Context, audit.ListParams) (*audit.ListResult, error) {
	s.called = true
	return &audit.ListResult{}, nil
}

type stubJobs struct{}

func (stubJobs) Trigger(context.Context, access.Actor, string) error { return nil }
func (stubJobs) Jobs() []string                                      { return []string{"expire-subscriptions"} }

type stubMarketplace struct {
	marketplace.Service
	listed bool
}

func (s *stubMarketplace) ListApproved(context.Context, marketplace.ListParams) (*marketplace.ListResult, error) {
	s.listed = true
	return &marketplace.ListResult{}, nil
}

type stubUsers struct {
	users.Service
	meCalls int
}

func (s *stubUsers) GetMe(_ context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	s.meCalls++
	return &users.UserDTO{ID: userID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "componentry-test",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
	}
}

type fixture struct {
	router      http.Handler
	cfg         *config.Config
	audit       *stubAudit
	marketplace *stubMarketplace
	users       *stubUsers
}

func newFixture() *fixture {
	cfg := testConfig()
	f := &fixture{cfg: cfg, audit: &stubAudit{}, marketplace: &stubMarketplace{}, users: &stubUsers{}}
	f.router = NewRouter(Params{
		Config:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard}),
		DB:          stubPinger{},
		Store:       newMemoryStore(),
		Sessions:    stubSessions{},
		Users:       f.users,
		Marketplace: f.marketplace,
		Audit:       f.audit,
		Jobs:        stubJobs{},
	})
	return f
}

func (f *fixture) token(t *testing.T, role enums.Role) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(f.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID:       uuid.New(),
		Role:         role,
		Subscription: enums.PlanFree,
		JTI:          session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndPlansArePublic(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pro"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRazorpayWebhookAliases(t *testing.T) {
	f := newFixture()
	for _, path := range []string{"/webhooks/razorpay", "/api/v1/webhooks/razorpay"} {
		rec := f.do(httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthenticatedGroupRejectsMissingJWT(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.users.meCalls)
}

func TestAuthenticatedGroupAcceptsJWT(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.RoleUser))
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.users.meCalls)
}

func TestMarketplaceListingAllowsAnonymous(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/templates", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.marketplace.listed)
}

func TestMarketplaceClaimRequiresJWT(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/marketplace/templates/"+uuid.NewString()+"/claim", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeveloperRoutesRequireDeveloperRole(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/developer/items", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.RoleUser))
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.RoleDeveloper))
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)
	assert.False(t, f.audit.called)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/audit-logs", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.RoleSuperadmin))
	assert.Equal(t, http.StatusOK, f.do(req).Code)
	assert.True(t, f.audit.called)
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"gateway":"razorpay"}`))
	req.Header.Set("Authorization", "Bearer "+f.token(t, enums.RoleUser))
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Idempotency-Key")
}
