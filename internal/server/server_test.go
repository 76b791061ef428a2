package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/realtime"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"github.com/shinyyama/farm-market-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerAuth trusts X-Test-UID and X-Test-Role in place of a verified token.
func headerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid := c.Request().Header.Get("X-Test-UID")
		if uid == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		c.Set("uid", uid)
		c.Set("role", model.UserRole(c.Request().Header.Get("X-Test-Role")))
		return next(c)
	}
}

type recordingConn struct {
	frames [][]byte
}

func (r *recordingConn) Send(frame []byte) bool {
	r.frames = append(r.frames, frame)
	return true
}

type testServer struct {
	t     *testing.T
	h     http.Handler
	store *repository.Store
	hub   *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewStore(testutil.NewDB(t))
	hub := realtime.NewHub(nil)
	notify := service.NewNotificationService(store, hub, nil, nil, "https://farm.example")
	pub := service.SyncPublisher{Handler: notify}
	srv := New(Services{
		Users:         service.NewUserService(store),
		Products:      service.NewProductService(store, nil, pub, nil, false),
		Orders:        service.NewOrderService(store, pub, nil, service.OrderOptions{}),
		Payments:      service.NewPaymentService(store, nil, pub, nil, "usd", 0),
		Notifications: notify,
		Wishlist:      service.NewWishlistService(store),
		Follows:       service.NewFollowService(store),
		Reviews:       service.NewReviewService(store, pub, nil),
		Messages:      service.NewMessageService(store, pub, nil),
	}, Options{RequireAuth: headerAuth, OptionalAuth: headerAuthOptional, GitSHA: "abc123", BuildTime: "2026-10-01T00:00:00Z"})
	return &testServer{t: t, h: srv.Handler(), store: store, hub: hub}
}

func headerAuthOptional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if uid := c.Request().Header.Get("X-Test-UID"); uid != "" {
			c.Set("uid", uid)
			c.Set("role", model.UserRole(c.Request().Header.Get("X-Test-Role")))
		}
		return next(c)
	}
}

func (s *testServer) do(method, path, uid, role string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if uid != "" {
		req.Header.Set("X-Test-UID", uid)
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "abc123", body["git_sha"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestOrderFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/me", "farmer-1", "", map[string]string{"name": "Sato", "role": "farmer", "farmName": "Sato Farm"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPut, "/api/me", "buyer-1", "", map[string]string{"name": "Ito", "email": "ito@example.com", "role": "buyer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/products", "farmer-1", "farmer", map[string]any{"name": "Tomatoes", "unit": "kg", "price": "3.50", "quantity": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	product := decode[map[string]any](t, rec)
	productID := uint64(product["id"].(float64))

	conn := &recordingConn{}
	s.hub.Register("farmer-1", conn)

	rec = s.do(http.MethodPost, "/api/orders", "buyer-1", "buyer", map[string]any{"productId": productID, "quantity": 4, "deliveryCost": "2.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[map[string]any](t, rec)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "16", order["totalPrice"])
	orderPath := "/api/orders/" + jsonNumber(order["id"])
	require.Len(t, conn.frames, 1)

	rec = s.do(http.MethodPost, orderPath+"/confirm", "buyer-1", "buyer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, orderPath+"/confirm", "farmer-1", "farmer", map[string]string{"notes": "packing today"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode[map[string]any](t, rec)["status"])

	rec = s.do(http.MethodPost, orderPath+"/confirm", "farmer-1", "farmer", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[map[string]map[string]string](t, rec)["error"]["code"])

	rec = s.do(http.MethodPost, orderPath+"/complete", "farmer-1", "farmer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, orderPath, "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "completed", got["status"])
	assert.Len(t, got["history"], 3)

	rec = s.do(http.MethodPost, orderPath+"/reviews", "buyer-1", "buyer", map[string]any{"rating": 5, "comment": "sweet"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/farmers/farmer-1/reviews", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, decode[map[string]any](t, rec)["averageRating"])

	rec = s.do(http.MethodGet, "/api/notifications", "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, list["unreadCount"])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/orders/999", "buyer-1", "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/orders/abc", "buyer-1", "buyer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/orders", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/products", "buyer-1", "buyer", map[string]any{"name": "x", "price": "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/payments/webhook", "", "", map[string]string{"id": "evt_1"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "payment_provider_error", decode[map[string]map[string]string](t, rec)["error"]["code"])
}

func TestPreferencesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.Users().Upsert(context.Background(), &model.User{UID: "buyer-1", Name: "Ito", Role: model.RoleBuyer}))

	rec := s.do(http.MethodGet, "/api/notifications/preferences", "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prefs := decode[map[string]map[string]bool](t, rec)
	assert.True(t, prefs["price_drop"]["email"])

	rec = s.do(http.MethodPut, "/api/notifications/preferences", "buyer-1", "buyer", map[string]any{"price_drop": map[string]bool{"email": false}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prefs = decode[map[string]map[string]bool](t, rec)
	assert.False(t, prefs["price_drop"]["email"])
	assert.True(t, prefs["price_drop"]["push"])

	rec = s.do(http.MethodPut, "/api/notifications/preferences", "buyer-1", "buyer", map[string]any{"payment_succeeded": map[string]bool{"email": false}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOriginAllowed(t *testing.T) {
	allow := originAllowed([]string{"https://farm.example/"})
	for origin, want := range map[string]bool{
		"https://farm.example":   true,
		"http://localhost:3000":  true,
		"https://127.0.0.1:8443": true,
		"https://evil.example":   false,
		"ftp://localhost":        false,
	} {
		got, err := allow(origin)
		require.NoError(t, err)
		assert.Equal(t, want, got, origin)
	}
}

func jsonNumber(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
