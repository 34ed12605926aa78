// Package httpapi exposes the operator status API over gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/usecase"
	"DealsIngestor/pkg/logger"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Operations is what the handlers call into.
type Operations interface {
	Status(ctx context.Context) (usecase.Status, error)
	Failed(ctx context.Context, limit int) ([]domain.ProcessingRecord, error)
	Record(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, []domain.UnifiedContentRecord, error)
	Retry(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecordGauge receives record counts whenever status is read.
type RecordGauge interface {
	SetRecordCounts(counts map[domain.State]int)
}

// Options configures the router.
type Options struct {
	Ops     Operations
	Checks  map[string]Pinger
	Gauge   RecordGauge
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the gin engine with recovery and request logging.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	h := &handler{ops: opts.Ops, checks: opts.Checks, gauge: opts.Gauge}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	router.GET("/healthz", h.health)
	router.GET("/status", h.status)
	router.GET("/records/failed", h.failed)
	router.GET("/records/:channel/:message", h.record)
	router.POST("/records/:channel/:message/retry", h.retry)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return router
}

// Server owns the http.Server lifecycle for the router.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(addr string, router http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			ErrorLog:          logger.New(log, "httpapi", slog.LevelWarn),
		},
		logger: log.With("component", "httpapi"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status api: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status api shutdown: %w", err)
	}
	s.logger.Info("status api stopped")
	return nil
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			log.Error("http request with errors", append(attrs, "errors", c.Errors.String())...)
			return
		}
		log.Debug("http request", attrs...)
	}
}
