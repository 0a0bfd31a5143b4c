package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/ai/gemini"
	"github.com/spigell/pocket-ats/internal/events"
	"github.com/spigell/pocket-ats/internal/logger"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/secrets"
	"github.com/spigell/pocket-ats/internal/storage"
	"github.com/spigell/pocket-ats/internal/store"
)

func mustLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

func mustConfig(l *zap.Logger) *Config {
	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}
	if err := config.validate(); err != nil {
		l.Fatal("invalid config", zap.Error(err))
	}
	return config
}

// newAnalyzer builds the scoring orchestrator. Without a usable Gemini key the
// semantic score is reported as unavailable and explanations fall back to a fixed
// text; this is logged but never fatal.
func newAnalyzer(ctx context.Context, cfg *AIConfig, l *zap.Logger) (*scoring.Orchestrator, error) {
	deps := scoring.Deps{Logger: l}

	if cfg == nil || !cfg.Enabled {
		l.Info("ai is disabled, semantic scores will be unavailable")
		return scoring.New(deps), nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if errors.Is(err, secrets.ErrNotConfigured) {
		l.Warn("gemini api key is missing, semantic scores will be unavailable",
			zap.String("hint", "set GEMINI_API_KEY, GEMINI_API_KEY_FILE or ai.gemini.api-key-file"),
		)
		return scoring.New(deps), nil
	}
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	semanticLogger := logger.WithCommonFields(l, gemini.Provider, cfg.Gemini.SemanticModel)
	semanticGen, err := gemini.NewGenerator(client, cfg.Gemini.SemanticModel, cfg.Gemini.MaxRetries,
		semanticLogger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
	if err != nil {
		return nil, err
	}

	explainLogger := logger.WithCommonFields(l, gemini.Provider, cfg.Gemini.ExplainModel)
	explainGen, err := gemini.NewGenerator(client, cfg.Gemini.ExplainModel, cfg.Gemini.MaxRetries,
		explainLogger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
	if err != nil {
		return nil, err
	}

	deps.Semantic = gemini.NewSemanticMatcher(semanticGen, cfg.Gemini.Timeout, cfg.Gemini.MaxLogLength, semanticLogger)
	deps.Explainer = gemini.NewExplainer(explainGen, cfg.Gemini.Timeout, cfg.Gemini.MaxLogLength, explainLogger)

	return scoring.New(deps), nil
}

// newStore connects to Postgres when a database URL is configured and falls back
// to process memory otherwise. The returned func releases the store.
func newStore(ctx context.Context, cfg *DatabaseConfig, l *zap.Logger) (store.ResultStore, func(), error) {
	if cfg == nil || strings.TrimSpace(cfg.URL) == "" {
		l.Warn("database.url is not set, results are kept in memory only")
		return store.NewMemory(), func() {}, nil
	}

	db, err := store.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		l.Info("database schema is up to date")
	}

	return db, db.Close, nil
}

func newUploader(ctx context.Context, cfg *StorageConfig) (storage.Uploader, error) {
	if cfg == nil {
		return storage.Placeholder{}, nil
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Provider), "s3") {
		return storage.NewS3(ctx, cfg.S3)
	}
	return storage.Placeholder{BaseURL: cfg.BaseURL}, nil
}

func newPublisher(cfg *EventsConfig, l *zap.Logger) (events.Publisher, func(), error) {
	if cfg == nil || !cfg.Enabled {
		return events.Nop{}, func() {}, nil
	}

	p, err := events.Dial(cfg.URL, cfg.Exchange, l.With(zap.String("exchange", cfg.Exchange)))
	if err != nil {
		return nil, nil, err
	}

	return p, func() {
		if err := p.Close(); err != nil {
			l.Warn("closing rabbitmq publisher", zap.Error(err))
		}
	}, nil
}
