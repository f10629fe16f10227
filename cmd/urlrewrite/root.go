package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/utafrali/urlrewrite/internal/app"
	"github.com/utafrali/urlrewrite/internal/config"
	apperrors "github.com/utafrali/urlrewrite/pkg/errors"
	"github.com/utafrali/urlrewrite/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "urlrewrite",
		Short:         "Regenerate SEO url rewrites of catalog categories and products",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRegenerateCmd(), newMigrateCmd())
	return root
}

// setup loads the configuration and wires the application. The caller owns
// the returned app and must shut it down.
func setup(ctx context.Context, progressOut *os.File) (*app.App, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, apperrors.InvalidInputf("configuration: %v", err)
	}

	log := logger.New("urlrewrite", cfg.LogLevel, cfg.LogFormat)
	log.Debug("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Bool("kafka", cfg.KafkaEnabled()),
		slog.Bool("cache", cfg.CacheEnabled()),
	)

	application, err := app.NewApp(ctx, cfg, log, progressOut)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "initialize application")
	}
	return application, log, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, log, err := setup(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Shutdown(); err != nil {
					log.Error("shutdown failed", slog.String("error", err.Error()))
				}
			}()

			applied, err := application.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
			}
			return nil
		},
	}
}
