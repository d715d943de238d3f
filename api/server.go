// Package api exposes the HTTP surface of the service: ingestion (sync
// and job-based), querying, document management, feedback, and health.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
	"github.com/ragstack/ragserve/pkg/rag"
)

// Service is the pipeline surface the HTTP layer depends on, satisfied
// by *rag.Service.
type Service interface {
	Ingest(ctx context.Context, files []domain.FileData) ([]rag.IngestOutcome, error)
	SubmitJob(files []domain.FileData) (string, error)
	Job(id string) (domain.JobProgress, error)
	Jobs() []domain.JobProgress
	CancelJob(id string) error
	Handle(ctx context.Context, req domain.QueryRequest) (*rag.QueryOutcome, error)
	StringSearch(ctx context.Context, query string) ([]domain.StringSearchResult, error)
	Documents() []domain.Document
	Document(id string) (domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Feedback(interactionID string, value int) error
	Stats() rag.ServiceStats
	Health(ctx context.Context) (map[string]string, error)
	Close() error
}

type Server struct {
	cfg    *config.Config
	svc    Service
	router *gin.Engine
	server *http.Server
}

func NewServer(cfg *config.Config, svc Service) *Server {
	s := &Server{cfg: cfg, svc: svc}
	s.setupRouter()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation can be slow
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)

	api := s.router.Group("/api")
	{
		api.POST("/ingest", s.handleIngest)
		api.POST("/ingest/async", s.handleIngestAsync)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)
		api.POST("/jobs/:id/cancel", s.handleCancelJob)

		api.POST("/query", s.handleQuery)
		api.POST("/string-search", s.handleStringSearch)

		api.GET("/documents", s.handleListDocuments)
		api.GET("/documents/:id", s.handleGetDocument)
		api.DELETE("/documents/:id", s.handleDeleteDocument)

		api.POST("/feedback", s.handleFeedback)
		api.GET("/stats", s.handleStats)
	}
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	log.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the service.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("http server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return s.svc.Close()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
