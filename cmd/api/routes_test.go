package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coldcall-platform/internal/httpapi"
	"coldcall-platform/internal/metrics"
	"coldcall-platform/internal/session"
	"coldcall-platform/internal/store"
	"coldcall-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

func testEngine(health func(context.Context) error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	mgr := session.NewManager(store.NewMemory(), session.ManagerOptions{})
	r := gin.New()
	registerRoutes(r, routeDeps{
		authMW: func(c *gin.Context) {
			c.AbortWithStatus(http.StatusUnauthorized)
		},
		metrics: metrics.New(),
		health:  health,
		webhook: telephony.StatusWebhookHandler{Sessions: mgr},
		api:     httpapi.Handlers{Sessions: mgr},
	})
	return r
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	testEngine(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	down := func(context.Context) error { return errors.New("redis down") }
	testEngine(down).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestV1RequiresAuth(t *testing.T) {
	w := httptest.NewRecorder()
	testEngine(nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"list_id":"l"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWebhookIsPublic(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader("CallSid=CA1&CallStatus=completed"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	testEngine(nil).ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for an unknown call, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	testEngine(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "coldcall_sessions_active") {
		t.Fatalf("expected metrics exposition, got %d", w.Code)
	}
}
