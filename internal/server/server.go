// Package server exposes resume scoring over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/events"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/storage"
	"github.com/spigell/pocket-ats/internal/store"
)

const (
	defaultAddr            = ":5000"
	defaultMaxUploadBytes  = 10 << 20
	defaultShutdownTimeout = 30 * time.Second
)

type Config struct {
	Addr            string          `mapstructure:"addr"`
	CORSOrigin      string          `mapstructure:"cors-origin"`
	MaxUploadBytes  int64           `mapstructure:"max-upload-bytes"`
	RateLimit       RateLimitConfig `mapstructure:"rate-limit"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown-timeout"`
}

// RateLimitConfig limits requests per client address. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Analyzer computes and explains the score triple of a resume and job pair.
type Analyzer interface {
	ComputeScores(ctx context.Context, pair scoring.DocumentPair) scoring.ScoreTriple
	Explain(ctx context.Context, pair scoring.DocumentPair, scores scoring.ScoreTriple) string
}

type Deps struct {
	Analyzer  Analyzer
	Store     store.ResultStore
	Uploader  storage.Uploader
	Publisher events.Publisher
	Logger    *zap.Logger
}

type Server struct {
	cfg       Config
	analyzer  Analyzer
	store     store.ResultStore
	uploader  storage.Uploader
	publisher events.Publisher
	logger    *zap.Logger
	validate  *validator.Validate
	limiter   *clientLimiter
	handler   http.Handler
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("result store is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		cfg:       cfg,
		analyzer:  deps.Analyzer,
		store:     deps.Store,
		uploader:  deps.Uploader,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		validate:  validator.New(),
		limiter:   newClientLimiter(cfg.RateLimit),
	}
	if s.uploader == nil {
		s.uploader = storage.Placeholder{}
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/ats").Subrouter()
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/explain", s.handleExplain).Methods(http.MethodPost)
	api.HandleFunc("/results/{id}", s.handleResult).Methods(http.MethodGet)

	s.handler = s.withCORS(s.withLogging(s.withRateLimit(r)))

	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
