// Package admin serves the operator HTTP endpoints next to the gRPC
// service: health, readiness, Prometheus metrics and a read-only view of
// the searches a session manager holds.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/session"
)

// Sessions is the view of a session manager the endpoints need.
type Sessions interface {
	Snapshot() []session.SearchSummary
	Ranked(searchID string) ([]*session.Solution, error)
}

var _ Sessions = (*session.Manager)(nil)

// Option configures the admin server.
type Option func(*Server)

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the admin HTTP server.
type Server struct {
	sessions Sessions
	metrics  http.Handler
	ready    func(context.Context) error
	logger   *slog.Logger
}

// New creates an admin server over sessions.
func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{sessions: sessions, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SolutionSummary is one ranked solution of a search.
type SolutionSummary struct {
	SolutionID       string    `json:"solution_id"`
	Seq              int64     `json:"seq"`
	PipelineID       string    `json:"pipeline_id"`
	FittedPipelineID string    `json:"fitted_pipeline_id"`
	InternalScore    float64   `json:"internal_score"`
	Created          time.Time `json:"created"`
}

// Router returns the gin engine with every endpoint registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("ta2-admin"))

	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := router.Group("/v1")
	v1.GET("/searches", s.handleSearches)
	v1.GET("/searches/:id", s.handleSearch)
	v1.GET("/searches/:id/solutions", s.handleSolutions)
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": ir.ServerVersion, "protocol": ir.ProtocolVersion})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleSearches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"searches": s.sessions.Snapshot()})
}

func (s *Server) handleSearch(c *gin.Context) {
	id := c.Param("id")
	for _, sum := range s.sessions.Snapshot() {
		if sum.SearchID == id {
			c.JSON(http.StatusOK, sum)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": (&session.UnknownSessionError{SearchID: id}).Error()})
}

func (s *Server) handleSolutions(c *gin.Context) {
	ranked, err := s.sessions.Ranked(c.Param("id"))
	if err != nil {
		code := http.StatusInternalServerError
		if session.IsNotFound(err) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	out := make([]SolutionSummary, 0, len(ranked))
	for _, sol := range ranked {
		out = append(out, SolutionSummary{
			SolutionID:       sol.ID,
			Seq:              sol.Seq,
			PipelineID:       sol.Fitted.Pipeline().ID(),
			FittedPipelineID: sol.Fitted.ID(),
			InternalScore:    sol.InternalScore,
			Created:          sol.Created,
		})
	}
	c.JSON(http.StatusOK, gin.H{"solutions": out})
}

// Serve runs the admin server on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	s.logger.Info("admin server listening", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
