package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/api/middleware"
	cartsvc "github.com/angelmondragon/componentry-backend/internal/cart"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

type stubCartService struct {
	cart        *cartsvc.CartDTO
	err         error
	userID      uuid.UUID
	added       cartsvc.AddItemInput
	removedType enums.ItemType
	removedID   uuid.UUID
	cleared     bool
}

func (s *stubCartService) Get(_ context.Context, userID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.userID = userID
	return s.cart, s.err
}

func (s *stubCartService) AddItem(_ context.Context, userID uuid.UUID, input cartsvc.AddItemInput) (*cartsvc.CartDTO, error) {
	s.userID = userID
	s.added = input
	return s.cart, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.userID = userID
	s.removedType = itemType
	s.removedID = itemID
	return s.cart, s.err
}

func (s *stubCartService) Clear(_ context.Context, userID uuid.UUID) (*cartsvc.CartDTO, error) {
	s.userID = userID
	s.cleared = true
	return s.cart, s.err
}

func withActor(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), userID.String(), enums.RoleUser))
}

func withParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCartFetchRequiresActor(t *testing.T) {
	svc := &stubCartService{cart: &cartsvc.CartDTO{}}
	rec := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartFetchReturnsCallerCart(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{cart: &cartsvc.CartDTO{ID: uuid.New(), Subtotal: 4900, ItemCount: 1, Currency: "INR"}}
	rec := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.userID)

	var envelope struct {
		Data cartsvc.CartDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, int64(4900), envelope.Data.Subtotal)
}

func TestCartAddItemCreated(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.New()
	svc := &stubCartService{cart: &cartsvc.CartDTO{ItemCount: 1}}
	body := `{"item_type":"component","item_id":"` + itemID.String() + `"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), userID)
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, itemID, svc.added.ItemID)
	assert.Equal(t, "component", svc.added.ItemType)
}

func TestCartAddItemRejectsUnknownType(t *testing.T) {
	svc := &stubCartService{cart: &cartsvc.CartDTO{}}
	body := `{"item_type":"plugin","item_id":"` + uuid.NewString() + `"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.added.ItemID)
}

func TestCartAddItemPropagatesConflict(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeConflict, "item already owned")}
	body := `{"item_type":"template","item_id":"` + uuid.NewString() + `"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCartRemoveItemParsesPath(t *testing.T) {
	itemID := uuid.New()
	svc := &stubCartService{cart: &cartsvc.CartDTO{}}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/templates/"+itemID.String(), nil)
	req = withParams(withActor(req, uuid.New()), "type", "templates", "itemID", itemID.String())
	rec := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.ItemTypeTemplate, svc.removedType)
	assert.Equal(t, itemID, svc.removedID)
}

func TestCartRemoveItemInvalidID(t *testing.T) {
	svc := &stubCartService{cart: &cartsvc.CartDTO{}}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/templates/nope", nil)
	req = withParams(withActor(req, uuid.New()), "type", "templates", "itemID", "nope")
	rec := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartClear(t *testing.T) {
	svc := &stubCartService{cart: &cartsvc.CartDTO{}}
	rec := httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil), uuid.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.cleared)
}

func TestCartNilService(t *testing.T) {
	rec := httptest.NewRecorder()
	CartFetch(nil, nil).ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), uuid.New()))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
