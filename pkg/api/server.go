// Package api exposes the HTTP surface: request submission, task status,
// cancellation, report retrieval, health, and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/turbowrap/turbowrap/pkg/metrics"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/queue"
	"github.com/turbowrap/turbowrap/pkg/service"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// Server is the HTTP front of the orchestration core.
type Server struct {
	pool    *queue.WorkerPool
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer builds the server and its routes.
func NewServer(addr string, pool *queue.WorkerPool, st store.Store, m *metrics.Metrics) *Server {
	s := &Server{
		pool:    pool,
		store:   st,
		metrics: m,
		logger:  slog.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reviews", s.createReview)
		v1.POST("/fixes", s.createFix)
		v1.GET("/tasks/:id", s.getTask)
		v1.POST("/tasks/:id/cancel", s.cancelTask)
		v1.GET("/tasks/:id/runs", s.listRuns)
		v1.GET("/tasks/:id/report", s.getTaskReport)
		v1.GET("/tasks/:id/fix-report", s.getTaskFixReport)
		v1.GET("/reports/:id", s.getReport)
		v1.GET("/fix-reports/:id", s.getFixReport)
	}
	router.GET("/health", s.health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) createReview(c *gin.Context) {
	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if req.Source.Dir == "" && req.Source.PRURL == "" && req.Source.Commit == "" && len(req.Source.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "review source is required"})
		return
	}

	task, err := service.NewReviewTask(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.pool.Submit(c.Request.Context(), task); err != nil {
		s.submitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "state": task.State})
}

func (s *Server) createFix(c *gin.Context) {
	var req models.FixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if req.RepositoryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repository_id is required"})
		return
	}
	if len(req.Issues) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one issue is required"})
		return
	}

	task, err := service.NewFixTask(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.pool.Submit(c.Request.Context(), task); err != nil {
		s.submitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "state": task.State})
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) cancelTask(c *gin.Context) {
	id := c.Param("id")
	if err := s.pool.Cancel(id); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not in flight"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "canceling": true})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListLoopRuns(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getReport(c *gin.Context) {
	report, err := s.store.GetFinalReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getFixReport(c *gin.Context) {
	report, err := s.store.GetFixReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getTaskReport(c *gin.Context) {
	report, err := s.store.GetFinalReportByTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getTaskFixReport(c *gin.Context) {
	report, err := s.store.GetFixReportByTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) health(c *gin.Context) {
	h := s.pool.Health()
	status := http.StatusOK
	if !h.Running {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

func (s *Server) submitError(c *gin.Context, err error) {
	if errors.Is(err, queue.ErrPoolStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pool is shutting down"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// requestLogger logs each request with latency and status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
