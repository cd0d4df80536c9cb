package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/handler"
	"studybuddy-backend/internal/model"
	"studybuddy-backend/internal/service"
	"studybuddy-backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T, rateLimited bool) http.Handler {
	t.Helper()
	cfg, err := config.Load("does-not-exist.yaml")
	require.NoError(t, err)
	cfg.RateLimit.Enabled = rateLimited
	cfg.RateLimit.RequestsPerMinute = 60
	cfg.RateLimit.Burst = 2

	f := session.NewFactoryWithModel(context.Background(), model.NewMockChatModel(), model.MockModelName)
	tutor := service.NewTutorService(f, service.Options{})
	return setupRouter(cfg, handler.NewChatHandler(tutor, nil, time.Minute))
}

func TestSetupRouter_Health(t *testing.T) {
	r := testRouter(t, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSetupRouter_CORS(t *testing.T) {
	r := testRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/subjects", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRouter_RateLimitsAPI(t *testing.T) {
	r := testRouter(t, true)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subjects", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health is outside the limited group
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
