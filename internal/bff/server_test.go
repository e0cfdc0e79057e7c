package bff

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghaggin/courier/internal/dataservice"
	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenBase struct{}

func (brokenBase) SetOrderStatus(context.Context, string, model.OrderStatus) error {
	return errors.New("connection refused")
}

func (brokenBase) CountOrders(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

type testBFF struct {
	drivers     *dataservice.Store
	restaurants *dataservice.Store
	tokens      *token.Manager
	handler     http.Handler
}

func openBase(t *testing.T, name string) *dataservice.Store {
	t.Helper()
	s, err := dataservice.Open(filepath.Join(t.TempDir(), name))
	require.Nil(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.Nil(t, s.InsertOrder(context.Background(), model.Order{ID: "o1", OrderNumber: "1001", CreatedAt: time.Now()}))
	return s
}

func newTestBFF(t *testing.T) *testBFF {
	t.Helper()
	tokens, err := token.NewManager(token.Config{Secret: []byte("test-secret"), Issuer: "courier", AccessTTL: time.Hour})
	require.Nil(t, err)

	b := &testBFF{
		drivers:     openBase(t, "drivers.db"),
		restaurants: openBase(t, "restaurants.db"),
		tokens:      tokens,
	}
	b.handler = NewRouter(NewOrders(b.drivers, b.restaurants, nil), tokens, nil)
	return b
}

func (b *testBFF) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, r)
	return rec
}

func TestBFF_updateStatus(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	b := newTestBFF(t)
	tok, _, err := b.tokens.Issue("driver-1")
	require.Nil(err)

	rec := b.do(t, http.MethodPut, "/api/orders/o1/status", tok, `{"status":"accepted"}`)
	require.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`{"success":true}`, rec.Body.String())

	for _, s := range []*dataservice.Store{b.drivers, b.restaurants} {
		o, err := s.GetOrder(ctx, "o1")
		require.Nil(err)
		assert.Equal(model.StatusAccepted, o.Status)
	}
}

func TestBFF_updateStatusErrors(t *testing.T) {
	b := newTestBFF(t)
	tok, _, err := b.tokens.Issue("driver-1")
	require.Nil(t, err)

	tests := map[string]struct {
		path string
		tok  string
		body string
		code int
	}{
		"missing token":  {"/api/orders/o1/status", "", `{"status":"accepted"}`, http.StatusUnauthorized},
		"bad token":      {"/api/orders/o1/status", "garbage", `{"status":"accepted"}`, http.StatusUnauthorized},
		"missing status": {"/api/orders/o1/status", tok, `{}`, http.StatusBadRequest},
		"bad body":       {"/api/orders/o1/status", tok, `{`, http.StatusBadRequest},
		"unknown status": {"/api/orders/o1/status", tok, `{"status":"lost"}`, http.StatusBadRequest},
		"unknown order":  {"/api/orders/nope/status", tok, `{"status":"accepted"}`, http.StatusInternalServerError},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := b.do(t, http.MethodPut, tt.path, tt.tok, tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestBFF_driversFailureSkipsRestaurants(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	restaurants := openBase(t, "restaurants.db")
	orders := NewOrders(brokenBase{}, restaurants, nil)

	err := orders.UpdateStatus(ctx, "o1", model.StatusDelivered)
	require.NotNil(err)
	require.Contains(err.Error(), "drivers base")

	o, err := restaurants.GetOrder(ctx, "o1")
	require.Nil(err)
	require.Equal(model.StatusPending, o.Status)
}

func TestBFF_testConnections(t *testing.T) {
	assert := assert.New(t)

	b := newTestBFF(t)
	rec := b.do(t, http.MethodGet, "/api/test/connections", "", "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"success":true`)
	assert.Contains(rec.Body.String(), `"restaurants":{"connected":true`)

	broken := NewRouter(NewOrders(b.drivers, brokenBase{}, nil), b.tokens, nil)
	rec = httptest.NewRecorder()
	broken.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/test/connections", nil))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.JSONEq(`{"success":false,"error":"restaurants base: connection refused"}`, rec.Body.String())
}

func TestBFF_health(t *testing.T) {
	b := newTestBFF(t)
	rec := b.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
