package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := mustLogger()
	defer logger.Sync() //nolint:errcheck

	config := mustConfig(logger)

	logger.Info("starting the pocket-ats", zap.String("version", resolveVersion()))

	analyzer, err := newAnalyzer(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the analyzer", zap.Error(err))
	}

	results, closeStore, err := newStore(ctx, config.Database, logger)
	if err != nil {
		logger.Fatal("opening the result store", zap.Error(err))
	}
	defer closeStore()

	uploader, err := newUploader(ctx, config.Storage)
	if err != nil {
		logger.Fatal("configuring resume storage", zap.Error(err))
	}

	publisher, closePublisher, err := newPublisher(config.Events, logger)
	if err != nil {
		logger.Fatal("connecting to the event broker", zap.Error(err))
	}
	defer closePublisher()

	srv, err := server.New(config.Server, server.Deps{
		Analyzer:  analyzer,
		Store:     results,
		Uploader:  uploader,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("creating the server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
}
