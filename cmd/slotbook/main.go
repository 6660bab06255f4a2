package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotbook/internal/api"
	"slotbook/internal/calendar"
	"slotbook/internal/config"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/planner"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfgPath := os.Getenv("SLOTBOOK_CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	setLogLevel(cfg, &logger)

	client := calendar.NewClient(cfg.Calendar.BaseURL, cfg.Calendar.APIKey, cfg.Calendar.APIExtra, cfg.CalendarTimeout())
	client.UseRateLimit(cfg.Calendar.RatePerSecond, cfg.Calendar.Burst)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Calendar.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	settings, err := settingsFrom(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule settings")
	}

	bus := events.NewEventBus()
	for _, evType := range []string{events.SlotsRefreshed, events.BookingResolved, events.BookingSubmitted} {
		bus.Subscribe(evType, func(e events.Event) error {
			logger.Debug().Int64("event_id", e.ID).Str("type", e.Type).RawJSON("payload", e.Payload).Msg("event")
			return nil
		})
	}

	svc, err := planner.New(client, client, bus, settings, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create planner error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go svc.RunJanitor(ctx, cfg.SessionSweepInterval(), cfg.SessionIdle())

	if cfg.Watch.Enabled {
		// Server, redis, monitoring and session settings need a restart.
		err = config.Watch(ctx, cfgPath, cfg.WatchInterval(), &logger, func(next *config.Config) {
			setLogLevel(next, &logger)
			client.UseRateLimit(next.Calendar.RatePerSecond, next.Calendar.Burst)
			if rdb != nil {
				client.SetCacheTTL(next.CacheTTL())
			}
			s, err := settingsFrom(next)
			if err != nil {
				logger.Warn().Err(err).Msg("reloaded schedule ignored")
				return
			}
			if err := svc.Apply(s); err != nil {
				logger.Warn().Err(err).Msg("reloaded schedule ignored")
			}
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("config watch error")
		}
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	checks := map[string]api.Checker{"calendar": client.HealthCheck}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	srv := api.NewHTTPServer(cfg.Server.Port, cfg.Server.APIKey, svc, checks, &logger)

	logger.Info().Msg("slotbook started")
	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
}

func setLogLevel(cfg *config.Config, logger *zerolog.Logger) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Logging.Level).Msg("unknown log level ignored")
		return
	}
	zerolog.SetGlobalLevel(level)
}

func settingsFrom(cfg *config.Config) (planner.Settings, error) {
	grid, err := cfg.Grid()
	if err != nil {
		return planner.Settings{}, err
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		return planner.Settings{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return planner.Settings{}, err
	}
	return planner.Settings{Grid: grid, Strategy: strategy, Location: loc}, nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
