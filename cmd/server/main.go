package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiremeet/internal/app"
	"github.com/vovakirdan/wiremeet/internal/config"
	"github.com/vovakirdan/wiremeet/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "wiremeet-server",
		Short:         "Meeting credential issuance server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info")
			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				bootLogger.Error().Err(err).Msg("failed to load config")
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := log.New(cfg.LogLevel)
			if !cmd.Flags().Changed("log-level") {
				current := cfg.LogLevel
				config.Watch(logger, path, func(next config.Config) {
					if next.LogLevel == current {
						return
					}
					current = next.LogLevel
					log.SetLevel(current)
					logger.Info().Str("log_level", current).Msg("log level changed")
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to initialize application")
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Str("config", path).Msg("starting wiremeet server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default config.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	return cmd
}
