// Package admin serves a loopback-only, read-only introspection surface
// over a running tasking.Runtime: per-worker queue depths and counters,
// the global epoch lag, and a basic liveness probe. It intentionally
// does not expose a way to submit work — that belongs to whatever
// client wire protocol a deployment chooses, which is out of scope
// here.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// requestIDHeader is the header a caller can set to supply its own
// correlation id; when absent the server mints one, mirroring the
// teacher's request/correlation id convention for structured logs.
const requestIDHeader = "X-Request-ID"

// Config controls where the introspection surface listens.
type Config struct {
	Listen string
}

// Server is the admin HTTP surface. It wraps gin the way the teacher's
// own HTTP servers do: gin.New plus explicit Logger/Recovery middleware
// rather than gin.Default's baked-in set.
type Server struct {
	cfg    Config
	rt     *tasking.Runtime
	logger zerolog.Logger
	router *gin.Engine
	srv    *http.Server

	startedAt time.Time
}

// NewServer builds a Server exposing rt's state at cfg.Listen.
func NewServer(cfg Config, rt *tasking.Runtime, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		cfg:       cfg,
		rt:        rt,
		logger:    logger,
		router:    router,
		startedAt: time.Now(),
	}

	router.Use(gin.Recovery())
	router.Use(s.requestIDMiddleware())
	router.Use(s.accessLogMiddleware())

	router.GET("/healthz", s.handleHealthz)
	debug := router.Group("/debug")
	{
		debug.GET("/workers", s.handleWorkers)
		debug.GET("/queues", s.handleQueues)
		debug.GET("/epoch", s.handleEpoch)
	}

	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}
	return s
}

// requestIDMiddleware stamps every request with a correlation id,
// reusing one supplied by the caller or minting a fresh one, and
// echoes it back on the response so a caller can tie a request to the
// corresponding debug log line.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString(requestIDHeader)).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("admin request")
	}
}

// Start launches the HTTP server in its own goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Str("addr", s.cfg.Listen).Msg("admin server stopped")
		}
	}()
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleWorkers(c *gin.Context) {
	stats := s.rt.Stats()
	c.JSON(http.StatusOK, gin.H{
		"worker_count": s.rt.WorkerCount(),
		"workers":      stats.Workers,
	})
}

func (s *Server) handleQueues(c *gin.Context) {
	stats := s.rt.Stats()
	depths := make([]gin.H, len(stats.Workers))
	for i, w := range stats.Workers {
		depths[i] = gin.H{
			"worker_id":   w.WorkerID,
			"numa_node":   w.NUMANode,
			"state":       w.State,
			"queue_depth": w.QueueDepth,
		}
	}
	c.JSON(http.StatusOK, gin.H{"queues": depths})
}

func (s *Server) handleEpoch(c *gin.Context) {
	stats := s.rt.Stats()
	c.JSON(http.StatusOK, gin.H{
		"epoch_lag":         stats.EpochLag,
		"reclaimed_total":   stats.ReclaimedTotal,
		"task_panics_total": stats.TaskPanicsTotal,
	})
}
