package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"shuttle-tracker/internal/cache"
	"shuttle-tracker/internal/config"
	"shuttle-tracker/internal/feed"
	"shuttle-tracker/internal/metrics"
	"shuttle-tracker/internal/notify"
	"shuttle-tracker/internal/store"
	"shuttle-tracker/internal/worker"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer sqlDB.Close()
	if err := store.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	st := store.New(sqlDB)

	snapshots := cache.New(cfg.CachePrefix, cfg.CacheServers...)

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.TickInterval)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var notifierMetrics notify.Metrics
	if mcol != nil {
		notifierMetrics = mcol
	}
	notifier, err := notify.NewPublisher(cfg.NATSURL, notifierMetrics)
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer notifier.Close()

	feeds := feed.NewFactory(nil, cfg.TranslocAPIKey)

	reconciler := worker.NewReconciler(st, snapshots, feeds,
		worker.WithReconcilerMetrics(mcol),
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithDepartureCompletion(cfg.CompleteDeparted),
	)
	reminders := worker.NewReminderEngine(st, snapshots, feeds, notifier,
		worker.WithReminderMetrics(mcol),
		worker.WithReminderConcurrency(cfg.Concurrency),
		worker.WithReminderLocation(cfg.Location),
	)

	scheduleRunner := worker.NewRunner("schedules", cfg.TickInterval, st, reconciler.Run, mcol)
	reminderRunner := worker.NewRunner("reminders", cfg.TickInterval, st, reminders.Run, mcol)
	scheduleRunner.Start(ctx)
	reminderRunner.Start(ctx)

	log.Printf("shuttle tracker running (tick=%s)", cfg.TickInterval)

	// Block until context cancelled
	<-ctx.Done()
	scheduleRunner.Stop()
	reminderRunner.Stop()
	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("shutdown complete")
}
