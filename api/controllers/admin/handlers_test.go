package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/api/middleware"
	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

type stubAudit struct {
	params audit.ListParams
}

func (s *stubAudit) List(_ context.Context, params audit.ListParams) (*audit.ListResult, error) {
	s.params = params
	return &audit.ListResult{}, nil
}

type stubJobs struct {
	ran   string
	actor access.Actor
	err   error
}

func (s *stubJobs) Trigger(_ context.Context, actor access.Actor, name string) error {
	s.ran = name
	s.actor = actor
	return s.err
}

func (s *stubJobs) Jobs() []string {
	return []string{"expire-subscriptions", "renewal-reminders"}
}

func adminRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.WithActor(req.Context(), uuid.NewString(), enums.RoleAdmin))
}

func TestAuditLogsFilters(t *testing.T) {
	actorID := uuid.New()
	svc := &stubAudit{}
	rec := httptest.NewRecorder()
	AuditLogs(svc, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/audit-logs?actor_id="+actorID.String()+"&action=user.registered&resource_type=user&limit=5"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.params.ActorID)
	assert.Equal(t, actorID, *svc.params.ActorID)
	assert.Equal(t, enums.AuditUserRegistered, svc.params.Action)
	assert.Equal(t, "user", svc.params.ResourceType)
	assert.Equal(t, 5, svc.params.Limit)
}

func TestAuditLogsInvalidActor(t *testing.T) {
	rec := httptest.NewRecorder()
	AuditLogs(&stubAudit{}, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/audit-logs?actor_id=bogus"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunJob(t *testing.T) {
	svc := &stubJobs{}
	req := adminRequest(http.MethodPost, "/api/admin/v1/jobs/renewal-reminders/run")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", "renewal-reminders")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	RunJob(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renewal-reminders", svc.ran)
	assert.Equal(t, enums.RoleAdmin, svc.actor.Role)
}

func TestRunJobConflictWhileCycleRuns(t *testing.T) {
	svc := &stubJobs{err: pkgerrors.New(pkgerrors.CodeConflict, "lifecycle cycle already running")}
	req := adminRequest(http.MethodPost, "/api/admin/v1/jobs/expire-subscriptions/run")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", "expire-subscriptions")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	RunJob(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListJobs(t *testing.T) {
	rec := httptest.NewRecorder()
	ListJobs(&stubJobs{}, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/jobs"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "renewal-reminders")
}
