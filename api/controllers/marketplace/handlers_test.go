package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/api/middleware"
	"github.com/angelmondragon/componentry-backend/internal/access"
	approvalsvc "github.com/angelmondragon/componentry-backend/internal/approvals"
	marketplacesvc "github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

type stubCatalog struct {
	listParams marketplacesvc.ListParams
	getActor   *access.Actor
	created    marketplacesvc.CreateItemInput
	item       *marketplacesvc.ItemDTO
	purchase   *models.ItemPurchase
	err        error
}

func (s *stubCatalog) CreateItem(_ context.Context, _ access.Actor, _ enums.ItemType, input marketplacesvc.CreateItemInput) (*marketplacesvc.ItemDTO, error) {
	s.created = input
	return s.item, s.err
}

func (s *stubCatalog) UpdateItem(context.Context, access.Actor, enums.ItemType, uuid.UUID, marketplacesvc.UpdateItemInput) (*marketplacesvc.ItemDTO, error) {
	return s.item, s.err
}

func (s *stubCatalog) ListMine(context.Context, access.Actor) ([]marketplacesvc.ItemDTO, error) {
	return nil, s.err
}

func (s *stubCatalog) ListApproved(_ context.Context, params marketplacesvc.ListParams) (*marketplacesvc.ListResult, error) {
	s.listParams = params
	return &marketplacesvc.ListResult{}, s.err
}

func (s *stubCatalog) GetItem(_ context.Context, actor *access.Actor, _ enums.ItemType, _ uuid.UUID) (*marketplacesvc.ItemDTO, error) {
	s.getActor = actor
	return s.item, s.err
}

func (s *stubCatalog) Download(_ context.Context, _ access.Actor, itemType enums.ItemType, id uuid.UUID) (*marketplacesvc.DownloadResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &marketplacesvc.DownloadResult{ItemID: id, ItemType: itemType, DownloadURL: "https://cdn.example.com/x.zip", Access: "purchased"}, nil
}

func (s *stubCatalog) ClaimFree(context.Context, access.Actor, enums.ItemType, uuid.UUID) (*models.ItemPurchase, error) {
	return s.purchase, s.err
}

func (s *stubCatalog) InvalidateListings() {}

type stubApprovals struct {
	review   approvalsvc.ReviewInput
	archived bool
	err      error
}

func (s *stubApprovals) Submit(_ context.Context, actor access.Actor, itemType enums.ItemType, id uuid.UUID, input approvalsvc.SubmitInput) (*models.ContentApproval, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.ContentApproval{ID: uuid.New(), ContentID: id, ContentType: itemType, SubmittedBy: actor.UserID, Notes: input.Notes}, nil
}

func (s *stubApprovals) Review(_ context.Context, _ access.Actor, approvalID uuid.UUID, input approvalsvc.ReviewInput) (*models.ContentApproval, error) {
	s.review = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.ContentApproval{ID: approvalID}, nil
}

func (s *stubApprovals) Archive(context.Context, access.Actor, enums.ItemType, uuid.UUID) error {
	s.archived = true
	return s.err
}

func (s *stubApprovals) ListPending(context.Context, pagination.Params) (*approvalsvc.ListResult, error) {
	return &approvalsvc.ListResult{}, s.err
}

func withActor(req *http.Request, role enums.Role) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), uuid.NewString(), role))
}

func withParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubCatalog{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/components?category=forms&q=date&free_only=true&limit=10", nil)
	req = withParams(req, "type", "components")
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.ItemTypeComponent, svc.listParams.Type)
	assert.Equal(t, "forms", svc.listParams.Category)
	assert.Equal(t, "date", svc.listParams.Search)
	assert.True(t, svc.listParams.FreeOnly)
	assert.Equal(t, 10, svc.listParams.Limit)
}

func TestListRejectsUnknownType(t *testing.T) {
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/plugins", nil), "type", "plugins")
	rec := httptest.NewRecorder()
	List(&stubCatalog{}, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAnonymousPassesNilActor(t *testing.T) {
	id := uuid.New()
	svc := &stubCatalog{item: &marketplacesvc.ItemDTO{ID: id}}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/templates/"+id.String(), nil), "type", "templates", "itemID", id.String())
	rec := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.getActor)
}

func TestGetAuthenticatedPassesActor(t *testing.T) {
	id := uuid.New()
	svc := &stubCatalog{item: &marketplacesvc.ItemDTO{ID: id}}
	req := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/templates/"+id.String(), nil), enums.RoleUser)
	req = withParams(req, "type", "templates", "itemID", id.String())
	rec := httptest.NewRecorder()
	Get(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.getActor)
	assert.Equal(t, enums.RoleUser, svc.getActor.Role)
}

func TestDownloadForbidden(t *testing.T) {
	id := uuid.New()
	svc := &stubCatalog{err: pkgerrors.New(pkgerrors.CodeForbidden, "purchase required")}
	req := withActor(httptest.NewRequest(http.MethodGet, "/", nil), enums.RoleUser)
	req = withParams(req, "type", "templates", "itemID", id.String())
	rec := httptest.NewRecorder()
	Download(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClaimCreated(t *testing.T) {
	id := uuid.New()
	svc := &stubCatalog{purchase: &models.ItemPurchase{ID: uuid.New(), ItemID: id, ItemType: enums.ItemTypeComponent, Status: enums.PaymentStatusCompleted, AccessGranted: true}}
	req := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.RoleUser)
	req = withParams(req, "type", "components", "itemID", id.String())
	rec := httptest.NewRecorder()
	Claim(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_granted":true`)
}

func TestDeveloperCreateValidatesBody(t *testing.T) {
	svc := &stubCatalog{item: &marketplacesvc.ItemDTO{}}
	req := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`)), enums.RoleDeveloper)
	req = withParams(req, "type", "templates")
	rec := httptest.NewRecorder()
	DeveloperCreate(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeveloperSubmitWithoutBody(t *testing.T) {
	id := uuid.New()
	req := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.RoleDeveloper)
	req = withParams(req, "type", "components", "itemID", id.String())
	rec := httptest.NewRecorder()
	DeveloperSubmit(&stubApprovals{}, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())
}

func TestDeveloperArchive(t *testing.T) {
	svc := &stubApprovals{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/", nil), enums.RoleDeveloper)
	req = withParams(req, "type", "components", "itemID", uuid.NewString())
	rec := httptest.NewRecorder()
	DeveloperArchive(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.archived)
}

func TestAdminReviewRejectsUnknownDecision(t *testing.T) {
	svc := &stubApprovals{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"decision":"maybe"}`)), enums.RoleAdmin)
	req = withParams(req, "approvalID", uuid.NewString())
	rec := httptest.NewRecorder()
	AdminReviewApproval(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.review.Decision)
}

func TestAdminReviewStateConflict(t *testing.T) {
	svc := &stubApprovals{err: pkgerrors.New(pkgerrors.CodeStateConflict, "approval already reviewed")}
	req := withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"decision":"approve"}`)), enums.RoleAdmin)
	req = withParams(req, "approvalID", uuid.NewString())
	rec := httptest.NewRecorder()
	AdminReviewApproval(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "approve", svc.review.Decision)
}
