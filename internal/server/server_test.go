package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskdeck/configs"
	"taskdeck/internal/connectivity"
	"taskdeck/internal/delivery/rest"
	"taskdeck/internal/delivery/websocket"
	"taskdeck/internal/session"
	"taskdeck/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewManager(memory.New(), connectivity.NewStaticMonitor(true), nil, zap.NewNop())
	t.Cleanup(sessions.Shutdown)

	h := rest.NewHandler(sessions, zap.NewNop())
	hub := websocket.NewHub(sessions, zap.NewNop())
	return NewServer(configs.ServerConfig{Host: "127.0.0.1", Port: 0}, h, hub, zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, expected 200", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, expected ok", body["status"])
	}
	if _, ok := body["websocket_clients"]; !ok {
		t.Error("health body missing websocket_clients")
	}
}

func TestRoutesRequireUser(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/v1/tasks status = %d, expected 401", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, expected 404", w.Code)
	}
}

func TestShutdownBeforeListen(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Shutdown(t.Context()); err != nil {
		t.Errorf("Shutdown() before listen error = %v", err)
	}
}
