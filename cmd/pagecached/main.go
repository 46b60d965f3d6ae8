// Command pagecached serves paginated game listings and comment threads
// through the bounded-window page cache.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/pagecache/internal/config"
	"github.com/unkn0wn-root/pagecache/internal/logging"
	"github.com/unkn0wn-root/pagecache/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagecached",
		Short:         "Serve game listings and comment threads with a bounded page cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "path to a TOML or YAML config file (env PAGECACHE_CONFIG)")
	root.AddCommand(newServeCmd(), newRerankCmd(), newCheckConfigCmd())
	return root
}

// configPath prefers the --config flag over PAGECACHE_CONFIG.
func configPath(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		return v
	}
	return os.Getenv(config.EnvPrefix + "_CONFIG")
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the periodic ranking job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath(cmd))
		},
	}
}

func serve(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := logging.InitLogger(*cfg)
	if err != nil {
		return err
	}
	logger.WithFields(logging.BaseFields("serve", path)).Info("starting")

	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(cctx); err != nil {
			logger.WithFields(logging.BaseFields("shutdown", path)).WithError(err).Warn("close failed")
		}
	}()

	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Games:    rt.games,
		Listings: rt.listings,
		Comments: rt.comments,
		Metrics:  promhttp.HandlerFor(rt.metrics, promhttp.HandlerOpts{}),
		Health:   rt.health,
	})
	if err != nil {
		return err
	}

	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	go rt.ranking.Run(jobCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.ListenAddr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	logger.WithFields(logging.BaseFields("serve", path)).WithField("addr", cfg.ListenAddr).Info("listening")

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Wrap(app.ShutdownWithContext(sctx), "shutdown")
}

func newRerankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rerank",
		Short: "Score dirty games once and rebuild the listing windows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath(cmd)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger, err := logging.InitLogger(*cfg)
			if err != nil {
				return err
			}
			rt, err := build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			n, err := rt.ranking.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scored %d games\n", n)
			return nil
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			if cfg.Redis.Password != "" {
				cfg.Redis.Password = "********"
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}
