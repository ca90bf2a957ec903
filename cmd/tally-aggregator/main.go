package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/tallyhq/tally/pkg/budget"
	"github.com/tallyhq/tally/pkg/config"
	"github.com/tallyhq/tally/pkg/observability"
	"github.com/tallyhq/tally/pkg/realtime"
	"github.com/tallyhq/tally/pkg/reporting"
	"github.com/tallyhq/tally/pkg/storage"
)

var (
	dailySchedule = flag.String("daily-schedule", "5 0 * * *", "Cron schedule for daily cost rollup (default: 00:05 UTC)")
	sweepSchedule = flag.String("sweep-schedule", "*/15 * * * *", "Cron schedule for the tenant threshold sweep")
	runOnce       = flag.Bool("run-once", false, "Run the rollup once and exit (for testing or backfilling)")
	rollupDate    = flag.String("date", "", "Date to roll up (YYYY-MM-DD). Defaults to yesterday. Only used with --run-once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx := context.Background()
	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	rollup := reporting.NewRollup(db)

	if *runOnce {
		date := time.Now().UTC().AddDate(0, 0, -1)
		if *rollupDate != "" {
			date, err = time.Parse("2006-01-02", *rollupDate)
			if err != nil {
				logger.WithError(err).Error("invalid --date value")
				os.Exit(1)
			}
		}

		logger.Infof("rolling up costs for %s", date.Format("2006-01-02"))
		if err := rollup.RollupDaily(ctx, date); err != nil {
			logger.WithError(err).Error("rollup failed")
			os.Exit(1)
		}
		logger.Info("rollup completed")
		return
	}

	cache, err := storage.NewRedisClient(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer cache.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	aggregator := realtime.NewAggregator(cache, cfg.Metering.AggregateTTL)
	budgetStore := budget.NewPostgresStore(db)

	var notifier budget.Notifier
	if cfg.Alerting.WebhookURL != "" {
		notifier = budget.NewWebhookNotifier(cfg.Alerting.WebhookURL, cfg.Alerting.WebhookSecret,
			cfg.Alerting.WebhookTimeout, cfg.Alerting.WebhookRetries, logger)
	} else {
		notifier = budget.NewLogNotifier(logger)
	}

	enforcer := budget.NewEnforcer(budgetStore, aggregator, rollup, cache, notifier, logger, metrics)

	c := cron.New()

	// Roll up yesterday once the day has closed, then re-roll today's
	// partial figures hourly so month-to-date reads stay fresh.
	if _, err := c.AddFunc(*dailySchedule, func() {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		logger.Infof("starting daily rollup for %s", yesterday.Format("2006-01-02"))
		if err := rollup.RollupDaily(context.Background(), yesterday); err != nil {
			logger.WithError(err).Error("daily rollup failed")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule daily rollup")
		os.Exit(1)
	}

	if _, err := c.AddFunc("0 * * * *", func() {
		today := time.Now().UTC()
		if err := rollup.RollupDaily(context.Background(), today); err != nil {
			logger.WithError(err).Error("hourly rollup failed")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule hourly rollup")
		os.Exit(1)
	}

	// Sweep every configured tenant so thresholds crossed between cost
	// events still alert. The per-record check and the sweep share the
	// same dedup markers, so neither path double-alerts.
	if _, err := c.AddFunc(*sweepSchedule, func() {
		if err := enforcer.SweepThresholds(context.Background(), budgetStore); err != nil {
			logger.WithError(err).Error("threshold sweep failed")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule threshold sweep")
		os.Exit(1)
	}

	c.Start()
	logger.Infof("tally aggregator started, daily schedule: %s, sweep schedule: %s", *dailySchedule, *sweepSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
	logger.Info("aggregator stopped")
}
