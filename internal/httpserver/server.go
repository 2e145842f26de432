package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tadaa_concierge/internal/config"
	"tadaa_concierge/internal/logger"
	"tadaa_concierge/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// HttpServer wraps the gin engine with graceful shutdown
type HttpServer struct {
	addr   string
	engine *gin.Engine
}

// New constructs the HTTP server with middleware and routes
func New(cfg config.Config, service Service) *HttpServer {
	gin.SetMode(cfg.Server.Mode)

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), AccessLog())

	RegisterRoutes(engine, NewConciergeHandler(service), cfg.Conversation.DefaultUserID)

	return &HttpServer{
		addr:   cfg.Server.Addr,
		engine: engine,
	}
}

// RegisterRoutes mounts the concierge endpoints on engine
func RegisterRoutes(engine *gin.Engine, handler *ConciergeHandler, defaultUserID string) {
	engine.GET("/health", handler.Health)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	extract := engine.Group("/api/ai/extract", UserIdentity(defaultUserID))
	extract.POST("/chat", handler.Chat)
	extract.GET("/conversations", handler.ListConversations)
	extract.GET("/conversations/:conversation_id", handler.GetConversation)
	extract.POST("/conversations/:conversation_id/save-item/:item_id", handler.SaveItem)
	extract.POST("/delete-item", handler.DeleteItem)
}

// Handler exposes the engine, mainly for tests
func (s *HttpServer) Handler() http.Handler {
	return s.engine
}

// Run starts the listener and shuts down when ctx is cancelled
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
