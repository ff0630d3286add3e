package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/esign-tools/renotify/internal/config"
	domkafka "github.com/esign-tools/renotify/internal/domain/kafka"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/obs"
	kafkaRepo "github.com/esign-tools/renotify/internal/repository/kafka"
	pg "github.com/esign-tools/renotify/internal/repository/postgres"
	"github.com/esign-tools/renotify/internal/repository/signhub"
	"github.com/esign-tools/renotify/internal/services/admin"
	"github.com/esign-tools/renotify/internal/services/dispatcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "renotifyctl",
	Short:         "Operate the recurring signature-reminder engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// env builds the shared wiring for all subcommands. The returned closer must
// run before exit.
type env struct {
	uc    *admin.Usecase
	log   *zap.Logger
	close func()
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	l, err := obs.NewLogger(cfg.AsLoggerConfig("renotifyctl"))
	if err != nil {
		return nil, err
	}

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	provider := signhub.New(cfg.Provider, l)

	var bus domkafka.ReminderEvents = kafkaRepo.NopReminderEvents{}
	var closeProd func()
	if cfg.Kafka.Enabled() {
		prod := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
		closeProd = func() { _ = prod.Close() }
		bus = kafkaRepo.NewReminderEventsKafka(prod)
	}

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

	uc := &admin.Usecase{
		Subs:     subRepo,
		Events:   evRepo,
		Supps:    supRepo,
		Provider: provider,
		Tx:       tx,
		Disp:     disp,
		Defaults: subscription.Policy{
			IntervalDays: cfg.Defaults.IntervalDays,
			MaxReminders: cfg.Defaults.MaxReminders,
		},
		Clock: dispatcher.SystemClock{},
		Log:   l,
	}

	return &env{
		uc:  uc,
		log: l,
		close: func() {
			if closeProd != nil {
				closeProd()
			}
			db.Close()
			_ = l.Sync()
		},
	}, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config/renotifyd.yaml", "path to config file")

	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
