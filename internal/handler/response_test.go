package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantKey  string
	}{
		{service.ErrNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: not your order", service.ErrForbidden), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: order is completed", service.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{service.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{service.ErrConflict, http.StatusConflict, "conflict"},
		{fmt.Errorf("%w: bad rating", service.ErrInvalidInput), http.StatusBadRequest, "bad_request"},
		{service.ErrPaymentProvider, http.StatusBadGateway, "payment_provider_error"},
		{errors.New("db is on fire"), http.StatusInternalServerError, "internal_error"},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.wantKey, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, writeError(c, tt.err))
			assert.Equal(t, tt.wantCode, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKey, body.Error.Code)
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, writeError(c, errors.New("dsn user:secret@tcp")))
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestPagination(t *testing.T) {
	e := echo.New()
	for query, want := range map[string][2]int{
		"":                    {20, 0},
		"?limit=5&offset=10":  {5, 10},
		"?limit=500":          {20, 0},
		"?limit=-1&offset=-3": {20, 0},
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+query, nil), httptest.NewRecorder())
		limit, offset := pagination(c)
		assert.Equal(t, want, [2]int{limit, offset}, query)
	}
}
