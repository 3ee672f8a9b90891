// The outbox notifier drains queued loyalty events and delivers them to
// Kafka and partner webhooks. It runs separately from the API so slow
// receivers never sit in the request path.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/venuepass/loyalty/internal/infra"
	"github.com/venuepass/loyalty/internal/notify"
	"github.com/venuepass/loyalty/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("notifier failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreDriver != "postgres" {
		return fmt.Errorf("outbox notifier requires the postgres store, got %q", cfg.StoreDriver)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	var sinks []notify.Sink
	sinks = append(sinks, notify.NewKafkaSink(producer))
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL))
	}

	outbox := notify.NewOutbox(store.NewPGStore(pool), logger)
	notifier := notify.NewNotifier(outbox, sinks, logger)
	notifier.Start(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
