// Package httpapi serves the internal snapshot/health/metrics HTTP surface (§6) over
// a gin.New() engine wired with the metrics package's GinMiddleware/Handler.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hlpulse/internal/bootstrap"
	"hlpulse/internal/config"
	"hlpulse/internal/health"
	"hlpulse/internal/metrics"
)

// SnapshotProvider serves the bootstrap RegistrySnapshot; only the Scraper process
// registers a GET /internal/snapshot route (§4.3, §6).
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*bootstrap.RegistrySnapshot, error)
}

// Server is the gin-backed HTTP surface shared by both processes.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	log    zerolog.Logger
}

// NewServer builds a Server bound to cfg.host:cfg.port. snapshot may be nil (the
// Signal System process does not serve a snapshot endpoint).
func NewServer(cfg config.HTTPConfig, reg *health.Registry, snapshot SnapshotProvider, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), metrics.GinMiddleware())

	engine.GET("/healthz", healthHandler(reg))
	engine.GET("/metrics", metrics.Handler())

	if snapshot != nil {
		engine.GET("/internal/snapshot", snapshotHandler(snapshot))
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &Server{
		engine: engine,
		srv:    &http.Server{Addr: addr, Handler: engine},
		log:    log.With().Str("component", "httpapi").Logger(),
	}
}

// Run starts the HTTP server, blocking until it stops (ListenAndServe's behavior);
// callers run it in its own goroutine and call Shutdown to stop it gracefully.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server within the given deadline (§5 draining).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func healthHandler(reg *health.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		overall := reg.Overall()
		status := http.StatusOK
		if overall == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": reg.Snapshot(),
			"checked_at": time.Now(),
		})
	}
}

func snapshotHandler(snapshot SnapshotProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		snap, err := snapshot.Snapshot(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}
