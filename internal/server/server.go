package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kjartanjoensen/report-extractor/internal/export"
	"github.com/kjartanjoensen/report-extractor/internal/jobs"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
)

// Server is the HTTP surface: upload a report, watch the job, download the
// export once it is DONE.
type Server struct {
	jobs           *jobs.Service
	export         *export.Service
	db             *repository.DB
	logger         *slog.Logger
	maxUploadBytes int64

	httpServer *http.Server
}

type Config struct {
	Addr           string
	MaxUploadBytes int64
}

func New(cfg Config, jobsSvc *jobs.Service, exportSvc *export.Service, db *repository.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	s := &Server{
		jobs:           jobsSvc,
		export:         exportSvc,
		db:             db,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
