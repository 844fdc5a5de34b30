// Command prhelperd runs the pr-helper gateway: it polls GitHub for every
// subscription, serves the REST API, and streams updates to connected
// monitor sessions over websockets.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nardoguy14/pr-helper/internal/config"
	"github.com/nardoguy14/pr-helper/internal/events"
	"github.com/nardoguy14/pr-helper/internal/github"
	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/poller"
	"github.com/nardoguy14/pr-helper/internal/server"
	"github.com/nardoguy14/pr-helper/internal/snapshot"
	"github.com/nardoguy14/pr-helper/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	gh, err := github.NewClient(cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		return err
	}

	// Event publishers: NATS when configured, plus the websocket hub. The hub
	// is attached after the server exists, via Multi.
	var natsPub events.Publisher
	if cfg.NATSURL != "" {
		natsPub, err = events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		natsPub = &events.NoopPublisher{}
		logger.Info("events disabled (PRHELPER_NATS_URL not set)")
	}

	// The server and poller share one publisher that feeds both NATS and the
	// connected stream sessions. The hub is created by the server, so build
	// the poller with a publisher resolved afterwards.
	var pub events.Publisher

	p := poller.New(gh, store, publisherFunc(func(ctx context.Context, topic string, event any) error {
		return pub.Publish(ctx, topic, event)
	}),
		poller.WithLogger(logger),
		poller.WithInterval(cfg.PollInterval),
		poller.WithNotifyRateLimit(cfg.NotifyRateLimit),
		poller.WithNotifier(func(it *model.ReviewItem, reason string) {
			logger.Info("notification",
				"reason", reason,
				"repository", it.RepoName,
				"number", it.Number,
				"title", it.Title,
			)
		}),
	)

	srv := server.NewServer(store, gh, p, publisherFunc(func(ctx context.Context, topic string, event any) error {
		return pub.Publish(ctx, topic, event)
	}))
	pub = events.Multi(natsPub, srv.Hub())
	defer pub.Close()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := p.Start(startCtx); err != nil {
		cancelStart()
		return err
	}
	cancelStart()
	logger.Info("poller started", "login", p.Login(), "interval", cfg.PollInterval)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.NewHTTPHandler(cfg.AuthToken),
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "err", err)
		}
	}()

	// Snapshot scheduler if any destinations are configured.
	var scheduler *snapshot.Scheduler
	if cfg.SnapshotInterval > 0 {
		var dests []snapshot.Destination

		if cfg.SnapshotS3Bucket != "" {
			s3Dest, err := snapshot.NewS3Destination(
				context.Background(),
				cfg.SnapshotS3Bucket,
				cfg.SnapshotS3Key,
				cfg.SnapshotS3Region,
				cfg.SnapshotS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 snapshot destination", "err", err)
			} else {
				dests = append(dests, s3Dest)
				logger.Info("snapshot S3 destination enabled", "bucket", cfg.SnapshotS3Bucket, "key", cfg.SnapshotS3Key)
			}
		}

		if cfg.SnapshotFile != "" {
			fileDest, err := snapshot.NewFileDestination(cfg.SnapshotFile)
			if err != nil {
				logger.Error("failed to create file snapshot destination", "err", err)
			} else {
				dests = append(dests, fileDest)
				logger.Info("snapshot file destination enabled", "path", cfg.SnapshotFile)
			}
		}

		if len(dests) > 0 {
			scheduler = snapshot.NewScheduler(store, p, dests, cfg.SnapshotInterval, logger)
			scheduler.Start()
			logger.Info("snapshot scheduler started", "interval", cfg.SnapshotInterval)
		}
	}

	logger.Info("pr-helper gateway started", "http_addr", cfg.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	if scheduler != nil {
		scheduler.Stop()
		logger.Info("snapshot scheduler stopped")
	}

	p.Stop()
	logger.Info("poller stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
	}
	logger.Info("HTTP server stopped")

	logger.Info("shutdown complete")
	return nil
}

// publisherFunc adapts a closure to events.Publisher, used to break the
// construction cycle between the poller and the server's hub.
type publisherFunc func(ctx context.Context, topic string, event any) error

func (f publisherFunc) Publish(ctx context.Context, topic string, event any) error {
	return f(ctx, topic, event)
}

func (f publisherFunc) Close() error { return nil }
