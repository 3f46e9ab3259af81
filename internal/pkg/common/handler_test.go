package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(h *HealthHandler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Live)
	r.GET("/readyz", h.Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	t.Run("Live", func(t *testing.T) {
		w := serve(NewHealthHandler(nil, nil), "/healthz")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Ready", func(t *testing.T) {
		w := serve(NewHealthHandler(nil, map[string]Pinger{"redis": RedisPinger(rdb), "db": nil}), "/readyz")

		assert.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Dependencies map[string]string `json:"dependencies"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"redis": "ok"}, body.Dependencies)
	})

	t.Run("Dependency down", func(t *testing.T) {
		down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
		w := serve(NewHealthHandler(nil, map[string]Pinger{"redis": RedisPinger(rdb), "db": down}), "/readyz")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}
