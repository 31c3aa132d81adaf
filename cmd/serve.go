package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/api"
	"github.com/storefrontlabs/pricewatch/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validation service with its HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		application, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		application.StartSweeper()

		server := api.NewServer(api.Config{
			Addr:           cfg.Server.Addr,
			APIKey:         cfg.Server.APIKey,
			RequestTimeout: cfg.Server.RequestTimeout,
			StreamInterval: cfg.Server.StreamInterval,
		}, application, application.Store, logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
		return application.Close(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
