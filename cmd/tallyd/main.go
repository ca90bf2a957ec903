package main

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tallyhq/tally/migrations"
	"github.com/tallyhq/tally/pkg/api"
	"github.com/tallyhq/tally/pkg/budget"
	"github.com/tallyhq/tally/pkg/config"
	"github.com/tallyhq/tally/pkg/metering"
	"github.com/tallyhq/tally/pkg/observability"
	"github.com/tallyhq/tally/pkg/optimizer"
	"github.com/tallyhq/tally/pkg/pricing"
	"github.com/tallyhq/tally/pkg/realtime"
	"github.com/tallyhq/tally/pkg/reporting"
	"github.com/tallyhq/tally/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		logger.WithError(err).Error("failed to apply migrations")
		os.Exit(1)
	}

	cache, err := storage.NewRedisClient(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer cache.Close()

	priceTable, err := pricing.Load(cfg.Metering.PriceTablePath)
	if err != nil {
		logger.WithError(err).Error("failed to load price table")
		os.Exit(1)
	}
	logger.Infof("loaded price table with %d services", len(priceTable.Services()))

	aggregator := realtime.NewAggregator(cache, cfg.Metering.AggregateTTL)
	ledger := metering.NewPostgresLedger(db)
	budgetStore := budget.NewPostgresStore(db)
	rollup := reporting.NewRollup(db)

	var notifier budget.Notifier
	if cfg.Alerting.WebhookURL != "" {
		notifier = budget.NewWebhookNotifier(cfg.Alerting.WebhookURL, cfg.Alerting.WebhookSecret,
			cfg.Alerting.WebhookTimeout, cfg.Alerting.WebhookRetries, logger)
	} else {
		notifier = budget.NewLogNotifier(logger)
	}

	enforcer := budget.NewEnforcer(budgetStore, aggregator, rollup, cache, notifier, logger, metrics)

	meter := metering.NewMeter(ledger, aggregator, enforcer, logger, metrics, metering.Config{
		FlushSize:     cfg.Metering.BufferFlushSize,
		FlushInterval: cfg.Metering.FlushInterval,
	})

	estimator := optimizer.NewEstimator(priceTable, logger, metrics)
	reporter := reporting.NewReporter(db, logger)
	scorePolicy := &optimizer.WeightedPolicy{
		CostPenaltyPerCent: cfg.Scoring.CostPenaltyPerCent,
		HitRateBonus:       cfg.Scoring.HitRateBonus,
	}

	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		metricsHandler = observability.Handler(registry)
	}

	server := api.NewServer(meter, enforcer, aggregator, estimator, budgetStore, reporter,
		scorePolicy, logger, metrics, metricsHandler)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		// Drain the buffer before the process goes away.
		return meter.Close()
	})
	if tp != nil {
		sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			return observability.ShutdownTracing(shutdownCtx, tp, logger)
		})
	}

	go func() {
		logger.Infof("tallyd listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
			os.Exit(1)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("tallyd stopped")
}
