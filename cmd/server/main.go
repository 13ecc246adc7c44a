package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pcervantes/patrimonio-backend/internal/adapter/httpapi"
	"github.com/pcervantes/patrimonio-backend/internal/adapter/pricefeed"
	"github.com/pcervantes/patrimonio-backend/internal/adapter/repository/postgres"
	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/observability"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/jobs"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/pricing"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/snapshot"
)

// Config holds all application configuration, loaded from environment variables
type Config struct {
	DBConnStr     string
	MigrationsDir string

	APIAddr     string
	MetricsAddr string

	Timezone           string
	PriceUpdateAt      string
	SnapshotCreationAt string

	CoingeckoAPIKey     string
	CoinMarketCapAPIKey string
}

func DefaultConfig() Config {
	return Config{
		DBConnStr:           envOrDefault("DB_CONN_STR", ""),
		MigrationsDir:       envOrDefault("MIGRATIONS_DIR", "migrations"),
		APIAddr:             envOrDefault("API_ADDR", ":8080"),
		MetricsAddr:         envOrDefault("METRICS_ADDR", ":9091"),
		Timezone:            envOrDefault("JOB_TIMEZONE", "Europe/Madrid"),
		PriceUpdateAt:       envOrDefault("PRICE_UPDATE_AT", "23:00"),
		SnapshotCreationAt:  envOrDefault("SNAPSHOT_CREATION_AT", "23:55"),
		CoingeckoAPIKey:     os.Getenv("COINGECKO_API_KEY"),
		CoinMarketCapAPIKey: os.Getenv("COINMARKETCAP_API_KEY"),
	}
}

func main() {
	log := observability.NewLogger("server")
	cfg := DefaultConfig()

	if cfg.DBConnStr == "" {
		// Build the connection string from individual vars (Docker friendly)
		cfg.DBConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			envOrDefault("DB_HOST", "localhost"),
			envOrDefault("DB_PORT", "5432"),
			envOrDefault("DB_USER", "postgres"),
			envOrDefault("DB_PASSWORD", "postgres"),
			envOrDefault("DB_NAME", "patrimonio"),
		)
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Str("timezone", cfg.Timezone).Err(err).Msg("invalid timezone")
	}

	// 1. Database
	db, err := postgres.NewDB(cfg.DBConnStr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	migrator := postgres.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
	if err := migrator.Up(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	// 2. Repositories
	holdingRepo := postgres.NewHoldingRepository(db)
	jobRunRepo := postgres.NewJobRunRepository(db)
	priceCacheRepo := postgres.NewPriceCacheRepository(db)
	tickerSnapshotRepo := postgres.NewTickerSnapshotRepository(db)
	accountSnapshotRepo := postgres.NewAccountSnapshotRepository(db)

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// 4. Price providers, tried in waterfall order
	symbols := pricefeed.NewSymbolMap(cfg.CoingeckoAPIKey, observability.NewLogger("symbolmap"))
	providers := []domain.PriceProvider{
		pricefeed.NewCoinbase(observability.NewLogger("coinbase")),
		pricefeed.NewCoinGecko(symbols, cfg.CoingeckoAPIKey, observability.NewLogger("coingecko")),
		pricefeed.NewCoinMarketCap(cfg.CoinMarketCapAPIKey, observability.NewLogger("coinmarketcap")),
	}

	// 5. Services
	pricingService := pricing.NewService(providers, priceCacheRepo, metrics, observability.NewLogger("pricing"))
	snapshotService := snapshot.NewService(holdingRepo, priceCacheRepo, tickerSnapshotRepo, accountSnapshotRepo, metrics, observability.NewLogger("snapshot"))
	tracker := jobs.NewTracker(jobRunRepo, observability.NewLogger("tracker"))
	runner := jobs.NewRunner(tracker, pricingService, snapshotService, holdingRepo, location, metrics, observability.NewLogger("runner"))

	// 6. Scheduler
	schedule := []jobs.Entry{
		{Job: domain.JobPriceUpdate, At: cfg.PriceUpdateAt},
		{Job: domain.JobSnapshotCreation, At: cfg.SnapshotCreationAt},
	}
	scheduler, err := jobs.NewScheduler(runner, location, schedule, observability.NewLogger("scheduler"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid schedule")
	}
	scheduler.Start()

	// 7. Job API server
	apiServer := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: httpapi.NewServer(tracker, runner, schedule, cfg.Timezone, observability.NewLogger("httpapi")),
	}
	go func() {
		log.Info().Str("addr", cfg.APIAddr).Msg("job API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("job API server failed")
		}
	}()

	// 8. Prometheus metrics on its own listener
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsHandler(registry),
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	waitForShutdown(scheduler, apiServer, metricsServer)
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully stops the
// scheduler and the HTTP servers
func waitForShutdown(scheduler *jobs.Scheduler, servers ...*http.Server) {
	log := observability.NewLogger("server")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Str("addr", srv.Addr).Err(err).Msg("server shutdown failed")
		}
	}
	log.Info().Msg("stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
