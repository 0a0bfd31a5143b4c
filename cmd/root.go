package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/pocket-ats/internal/server"
	"github.com/spigell/pocket-ats/internal/storage"
)

const (
	app = "pocket-ats"

	defaultSemanticModel = "gemini-2.0-flash-lite"
	defaultExplainModel  = "gemini-1.5-pro"
)

type Config struct {
	Server   server.Config   `mapstructure:"server"`
	Database *DatabaseConfig `mapstructure:"database"`
	AI       *AIConfig       `mapstructure:"ai"`
	Storage  *StorageConfig  `mapstructure:"storage"`
	Events   *EventsConfig   `mapstructure:"events"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey        string        `mapstructure:"api-key" json:"-"`
	APIKeyFile    string        `mapstructure:"api-key-file"`
	SemanticModel string        `mapstructure:"semantic-model"`
	ExplainModel  string        `mapstructure:"explain-model"`
	MaxRetries    int           `mapstructure:"max-retries"`
	MaxLogLength  int           `mapstructure:"max-log-length"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Provider string           `mapstructure:"provider"`
	BaseURL  string           `mapstructure:"base-url"`
	S3       storage.S3Config `mapstructure:"s3" json:"-"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url" json:"-"`
	Exchange string `mapstructure:"exchange"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "pocket-ats scores how well a resume matches a job description",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	"database.url":           "DATABASE_URL",
	"storage.s3.bucket":      "S3_BUCKET",
	"storage.s3.region":      "S3_REGION",
	"storage.s3.endpoint":    "S3_ENDPOINT",
	"storage.s3.access-key":  "S3_ACCESS_KEY",
	"storage.s3.secret-key":  "S3_SECRET_KEY",
	"storage.s3.public-url":  "S3_PUBLIC_URL",
	"events.url":             "RABBITMQ_URL",
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("server.max-upload-bytes", 10<<20)
	viper.SetDefault("server.shutdown-timeout", "30s")
	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.semantic-model", defaultSemanticModel)
	viper.SetDefault("ai.gemini.explain-model", defaultExplainModel)
	viper.SetDefault("ai.gemini.max-retries", 1)
	viper.SetDefault("ai.gemini.timeout", "30s")
	viper.SetDefault("storage.provider", "placeholder")
	viper.SetDefault("events.exchange", "ats_events")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is pocket-ats.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// A missing .env is fine, the environment may be set by other means.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app)
	viper.SetConfigType("yaml")

	// The config file is optional: everything has a default or an environment variable.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}

	// PORT is honoured the same way hosting platforms set it.
	if config.Server.Addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			config.Server.Addr = ":" + port
		}
	}

	if config.AI != nil && config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Storage == nil {
		config.Storage = &StorageConfig{Provider: "placeholder"}
	}
	if config.Events == nil {
		config.Events = &EventsConfig{}
	}
	if config.Database == nil {
		config.Database = &DatabaseConfig{}
	}

	return config, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Provider)) {
	case "", "placeholder", "s3":
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Storage.Provider)
	}
	if c.Events.Enabled && strings.TrimSpace(c.Events.URL) == "" {
		return errors.New("events.url (RABBITMQ_URL) is required when events are enabled")
	}
	return nil
}
