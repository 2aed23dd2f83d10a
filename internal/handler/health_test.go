package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"travelchat/internal/logging"
)

func TestHealthHandler(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("no checks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil, logging.Discard()).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("degraded", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := NewHealthHandler(map[string]Check{"redis": down, "database": up}, logging.Discard())
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"down","database":"up"}}`, rec.Body.String())
	})
}
