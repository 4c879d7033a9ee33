package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-etl/internal/app"
	"github.com/JakeFAU/youtube-etl/internal/catalog"
	"github.com/JakeFAU/youtube-etl/internal/clock"
	"github.com/JakeFAU/youtube-etl/internal/config"
	"github.com/JakeFAU/youtube-etl/internal/id/uuid"
	"github.com/JakeFAU/youtube-etl/internal/logging"
	"github.com/JakeFAU/youtube-etl/internal/pipeline"
	"github.com/JakeFAU/youtube-etl/internal/source/youtube"
	"github.com/JakeFAU/youtube-etl/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fetcher: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	channelIDs []string
	appOptions app.Options
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "fetcher",
		Short:         "Fetch channel, video, and comment metadata from YouTube into the database.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a YAML/TOML/JSON config file")
	cmd.Flags().StringSliceVar(&opts.channelIDs, "channel", nil, "channel ID to fetch (repeatable); overrides youtube.channel_ids")
	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(opts.channelIDs) > 0 {
		cfg.YouTube.ChannelIDs = opts.channelIDs
	}
	if err := cfg.ValidateFetcher(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.NewWithOptions(logging.Options{Development: cfg.Logging.Development, Dir: cfg.Logging.Dir})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName + "-fetcher",
		Version:     version,
		ProjectID:   cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	services, err := app.New(ctx, cfg, logger, opts.appOptions)
	if err != nil {
		return err
	}
	defer func() {
		_ = services.Close()
	}()

	source, err := youtube.New(ctx, youtube.Config{
		APIKey:            cfg.YouTube.APIKey,
		Endpoint:          cfg.YouTube.Endpoint,
		Timeout:           cfg.APITimeout(),
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		MaxRetries:        cfg.YouTube.MaxRetries,
	}, logger.Named("youtube"))
	if err != nil {
		return fmt.Errorf("init youtube client: %w", err)
	}

	runner := pipeline.New(
		source,
		services.Database(),
		services.Archive(),
		services.Publisher(),
		clock.System{},
		uuid.New(),
		pipeline.Config{
			ArchivePrefix:   cfg.Archive.Prefix,
			Topic:           cfg.Events.Topic,
			MetricsTextfile: cfg.Metrics.Textfile,
		},
		logger.Named("pipeline"),
	)

	logger.Info("starting fetch run", zap.Int("channels", len(cfg.YouTube.ChannelIDs)), zap.String("version", version))
	summary, err := runner.Run(ctx, cfg.YouTube.ChannelIDs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("fetch run interrupted", zap.String("run_id", summary.RunID))
		}
		return err
	}
	if summary.Status == catalog.RunError {
		return fmt.Errorf("run %s: all %d channels failed", summary.RunID, summary.Failed)
	}
	return nil
}
