// Package server exposes a loaded detector over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nvr-ai/go-detect/history"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/internal/monitoring"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/render"
)

const (
	// RequestIDHeader carries the request id on requests and responses.
	RequestIDHeader = "X-Request-ID"
	// DefaultMaxUploadBytes limits the size of an uploaded image.
	DefaultMaxUploadBytes = 32 << 20

	requestIDKey = "request_id"
)

// Options configures the HTTP server.
type Options struct {
	// MaxUploadBytes limits request bodies. Zero selects DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// StaticDir, when set, is served at the root path.
	StaticDir string
	// Palette and Style control /annotate output.
	Palette render.Palette
	Style   render.Style
	// JPEGQuality of /annotate output, within [1, 100]. Zero selects 90.
	JPEGQuality int
	// History, when set, records every successful detection and serves
	// GET /history.
	History HistoryStore
}

// HistoryStore records served detections.
type HistoryStore interface {
	Record(ctx context.Context, r history.Record) error
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	ClassCounts(ctx context.Context) (map[string]int, error)
}

// DefaultOptions returns the server defaults.
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes: DefaultMaxUploadBytes,
		Palette:        render.DefaultPalette(),
		Style:          render.DefaultStyle(),
		JPEGQuality:    90,
	}
}

// Server handles detection requests against one shared detector.
type Server struct {
	detector *detectors.Detector
	timer    *profiler.StageTimer
	opts     Options
	router   *gin.Engine
	started  time.Time
}

// New creates the server and its routes.
//
// Arguments:
//   - d: The loaded detector, shared by every request.
//   - timer: Receives per-stage timings. May be nil.
//   - opts: Server options.
//
// Returns:
//   - *Server: The server.
func New(d *detectors.Detector, timer *profiler.StageTimer, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}

	s := &Server{
		detector: d,
		timer:    timer,
		opts:     opts,
		router:   gin.New(),
		started:  time.Now(),
	}

	s.router.Use(gin.Recovery(), requestID(), accessLog())
	if opts.StaticDir != "" {
		s.router.Use(static.Serve("/", static.LocalFile(opts.StaticDir, false)))
	}

	s.router.POST("/detect", s.handleDetect)
	s.router.POST("/annotate", s.handleAnnotate)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/stats", s.handleStats)
	if opts.History != nil {
		s.router.GET("/history", s.handleHistory)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
//
// Arguments:
//   - ctx: Cancel to stop the server.
//   - addr: The listen address, e.g. ":8080".
//
// Returns:
//   - error: The listen error, or nil after a clean shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		monitoring.Logf("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestID assigns every request an id, reusing the caller's when present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		monitoring.Logf("%s %s %d %v id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Truncate(time.Microsecond), c.GetString(requestIDKey))
	}
}
