package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/rss2bsky/internal/bluesky"
	"github.com/blackmichael/rss2bsky/internal/card"
	"github.com/blackmichael/rss2bsky/internal/config"
	"github.com/blackmichael/rss2bsky/internal/domain"
	"github.com/blackmichael/rss2bsky/internal/eventlog"
	"github.com/blackmichael/rss2bsky/internal/feed"
	"github.com/blackmichael/rss2bsky/internal/fetch"
	"github.com/blackmichael/rss2bsky/internal/firehose"
	"github.com/blackmichael/rss2bsky/internal/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flagValues mirrors the config fields that can be set on the command line.
type flagValues struct {
	configPath     string
	feedURL        string
	handle         string
	password       string
	pds            string
	stateDriver    string
	stateFile      string
	userAgent      string
	timeout        time.Duration
	browserTLS     bool
	logLevel       string
	logFormat      string
	logFile        string
	cronLog        string
	jetstreamURL   string
	confirmTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "rss2bsky",
		Short: "Post the newest RSS item to BlueSky",
		Long: `rss2bsky reads an RSS or Atom feed, and if its newest item has not been
posted before, publishes it to BlueSky with a link card. Run it from cron.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(fv.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = applyFlags(cfg, cmd, fv)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fv.configPath, "config", "c", "", "Path to a YAML config file")
	f.StringVar(&fv.feedURL, "feed-url", "", "RSS or Atom feed URL")
	f.StringVar(&fv.handle, "handle", "", "BlueSky handle (e.g. user.bsky.social)")
	f.StringVar(&fv.password, "app-password", "", "BlueSky app password")
	f.StringVar(&fv.pds, "pds", "", "PDS service URL")
	f.StringVar(&fv.stateDriver, "state-driver", "", "Published links backend: json or sqlite")
	f.StringVar(&fv.stateFile, "state-file", "", "Path of the published links store")
	f.StringVar(&fv.userAgent, "user-agent", "", "User-Agent for feed, page and image requests")
	f.DurationVar(&fv.timeout, "timeout", 0, "Timeout for each outbound fetch")
	f.BoolVar(&fv.browserTLS, "browser-tls", false, "Use a browser TLS fingerprint for HTTPS fetches")
	f.StringVar(&fv.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&fv.logFormat, "log-format", "", "Log format: json or text")
	f.StringVar(&fv.logFile, "log-file", "", "Append logs to this file as well as stdout")
	f.StringVar(&fv.cronLog, "cron-log", "", "Append one line per invocation to this file")
	f.StringVar(&fv.jetstreamURL, "jetstream-url", "", "Jetstream endpoint used to confirm the post")
	f.DurationVar(&fv.confirmTimeout, "confirm-timeout", 0, "Wait this long for the post to appear on the firehose (0 disables)")

	return cmd
}

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(cfg config.Config, cmd *cobra.Command, fv flagValues) config.Config {
	changed := cmd.Flags().Changed

	set(changed("feed-url"), &cfg.FeedURL, fv.feedURL)
	set(changed("handle"), &cfg.Handle, fv.handle)
	set(changed("app-password"), &cfg.AppPassword, fv.password)
	set(changed("pds"), &cfg.PDS, fv.pds)
	set(changed("state-driver"), &cfg.State.Driver, fv.stateDriver)
	set(changed("state-file"), &cfg.State.Path, fv.stateFile)
	set(changed("user-agent"), &cfg.Fetch.UserAgent, fv.userAgent)
	set(changed("timeout"), &cfg.Fetch.Timeout, fv.timeout)
	set(changed("browser-tls"), &cfg.Fetch.BrowserTLS, fv.browserTLS)
	set(changed("log-level"), &cfg.Log.Level, fv.logLevel)
	set(changed("log-format"), &cfg.Log.Format, fv.logFormat)
	set(changed("log-file"), &cfg.Log.File, fv.logFile)
	set(changed("cron-log"), &cfg.Log.CronFile, fv.cronLog)
	set(changed("jetstream-url"), &cfg.Confirm.JetstreamURL, fv.jetstreamURL)
	set(changed("confirm-timeout"), &cfg.Confirm.Timeout, fv.confirmTimeout)

	return cfg
}

func set[T any](changed bool, dst *T, v T) {
	if changed {
		*dst = v
	}
}

// run executes one pass of the job. Once the logger is open every fatal
// error is also written to it.
func run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	logger, closeLog, err := eventlog.Open(eventlog.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Stdout: stdout,
	})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	if cfg.Log.CronFile != "" {
		if err := eventlog.RecordInvocation(cfg.Log.CronFile, time.Now()); err != nil {
			logger.Warn("failed to record invocation", "error", err)
		}
	}

	store, err := state.Open(cfg.State.Driver, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open state store", "driver", cfg.State.Driver, "path", cfg.State.Path, "error", err)
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close()

	fetcher := fetch.New(fetch.Options{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout,
		MaxBytes:   cfg.Fetch.MaxBytes,
		BrowserTLS: cfg.Fetch.BrowserTLS,
	})
	client := bluesky.NewClient(cfg.PDS)

	svc, err := domain.NewPublishService(
		domain.PublishConfig{
			Handle:         cfg.Handle,
			Password:       cfg.AppPassword,
			ConfirmTimeout: cfg.Confirm.Timeout,
		},
		feed.NewClient(cfg.FeedURL, fetcher),
		store,
		client,
		card.NewBuilder(fetcher, client, logger),
		eventlog.NewSink(logger),
	)
	if err != nil {
		logger.Error("failed to create publish service", "error", err)
		return fmt.Errorf("create publish service: %w", err)
	}
	if cfg.Confirm.Timeout > 0 {
		svc.SetWatcher(firehose.NewWatcher(cfg.Confirm.JetstreamURL, logger))
	}

	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("run finished", "outcome", result.Outcome, "link", result.Item.Link, "uri", result.URI)
	return nil
}
