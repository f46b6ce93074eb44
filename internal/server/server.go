package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskdeck/configs"
	"taskdeck/internal/delivery/rest"
	"taskdeck/internal/delivery/rest/middleware"
	"taskdeck/internal/delivery/websocket"
)

// Server wraps the gin engine
type Server struct {
	engine     *gin.Engine
	config     configs.ServerConfig
	handler    *rest.Handler
	wsHub      *websocket.Hub
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server with routes registered
func NewServer(cfg configs.ServerConfig, h *rest.Handler, hub *websocket.Hub, logger *zap.Logger) *Server {
	engine := gin.New()
	engine.Use(middleware.Logger(logger))
	engine.Use(middleware.Recovery(logger))

	s := &Server{
		engine:  engine,
		config:  cfg,
		handler: h,
		wsHub:   hub,
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"websocket_clients": s.wsHub.ClientCount(),
		})
	})

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/tasks", s.handler.ListTasks)
		v1.POST("/tasks", s.handler.CreateTask)
		v1.PATCH("/tasks/:id", s.handler.UpdateTask)
		v1.DELETE("/tasks/:id", s.handler.DeleteTask)

		v1.GET("/tasks/stats", s.handler.GetStats)

		v1.GET("/tasks/stream", s.wsHub.HandleStream)
	}
}

// Engine exposes the router, mainly for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address(),
		Handler: s.engine,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", s.config.Address()))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
