package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esign-tools/renotify/internal/config"
	domkafka "github.com/esign-tools/renotify/internal/domain/kafka"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/obs"
	kafkaRepo "github.com/esign-tools/renotify/internal/repository/kafka"
	pg "github.com/esign-tools/renotify/internal/repository/postgres"
	"github.com/esign-tools/renotify/internal/repository/signhub"
	"github.com/esign-tools/renotify/internal/services/dispatcher"
	"github.com/esign-tools/renotify/internal/services/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "config/renotifyd.yaml", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.AsLoggerConfig("renotifyd"))
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting reminder engine",
		zap.String("provider", cfg.Provider.BaseURL),
		zap.Duration("tick", cfg.Sched.Tick),
		zap.String("metrics_addr", cfg.Sched.MetricsAddr),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	provider := signhub.New(cfg.Provider, l)

	var bus domkafka.ReminderEvents = kafkaRepo.NopReminderEvents{}
	if cfg.Kafka.Enabled() {
		_ = kafkaRepo.EnsureTopic(ctx, cfg.Kafka.Brokers, kafkaRepo.TopicSpec{Name: cfg.Kafka.Topic}, l)
		prod := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
		defer func() { _ = prod.Close() }()
		bus = kafkaRepo.NewReminderEventsKafka(prod)
	}

	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// wiring
	subRepo := pg.NewSubscriptionRepo(db)
	evRepo := pg.NewEventRepo(db)
	supRepo := pg.NewSuppressionRepo(db)
	tx := pg.NewTransactor(db, l)

	disp := &dispatcher.Dispatcher{
		Subs:       subRepo,
		Events:     evRepo,
		Supps:      supRepo,
		Provider:   provider,
		Bus:        bus,
		Tx:         tx,
		Clock:      dispatcher.SystemClock{},
		Log:        l,
		BatchLimit: cfg.Sched.BatchLimit,
	}
	disc := &scheduler.Discoverer{
		Provider: provider,
		Subs:     subRepo,
		Defaults: subscription.Policy{
			IntervalDays: cfg.Defaults.IntervalDays,
			MaxReminders: cfg.Defaults.MaxReminders,
		},
		Log: l,
	}
	runner := scheduler.New(l, disp, disc, &cfg.Sched, cfg.Location())

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("reminder engine started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
