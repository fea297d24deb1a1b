package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"retailpos/internal/cache"
	"retailpos/internal/config"
	"retailpos/internal/httpapi"
	"retailpos/internal/metrics"
	"retailpos/internal/sale"
	"retailpos/internal/service"
	"retailpos/internal/store"
	"retailpos/internal/store/memory"
	pgstore "retailpos/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg, os.Stderr)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid shop timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("schema migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}

	statsCache := cache.StatsCache(cache.NoopStatsCache{})
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisStatsCache(cfg.RedisURL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("invalid REDIS_URL, using noop stats cache")
		case redisCache.Ping(ctx) != nil:
			log.Warn().Msg("redis unavailable, using noop stats cache")
			_ = redisCache.Close()
		default:
			statsCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("stats cache: redis")
		}
	} else {
		log.Info().Msg("stats cache: noop")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	saleMetrics := metrics.NewSales(reg)

	logger := log.Logger
	coordinator := sale.NewCoordinator(repo, cfg.ShopID,
		sale.WithLocation(loc),
		sale.WithLogger(logger.With().Str("component", "sale").Logger()),
	)
	svc := service.New(repo, coordinator, cfg.ShopID,
		service.WithLocation(loc),
		service.WithStatsCache(statsCache, cfg.StatsCacheTTL()),
		service.WithMetrics(saleMetrics),
		service.WithLogger(logger.With().Str("component", "service").Logger()),
	)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin,
		httpapi.WithLogger(logger.With().Str("component", "http").Logger()),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("shop_id", cfg.ShopID).Str("timezone", loc.String()).Msg("retail back office listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// setupLogger configures the global zerolog logger. Development gets a
// console writer; everything else logs JSON.
func setupLogger(cfg config.Config, out io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsProduction() {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	if strings.TrimSpace(cfg.ShopID) == "" {
		return fmt.Errorf("DEFAULT_SHOP_ID must not be empty")
	}
	return nil
}

// validatePINStrength rejects non-numeric PINs, PINs of one repeated digit,
// runs like 123456 or 987654, and a short list of common picks.
func validatePINStrength(pin string) error {
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN must be digits only")
		}
	}

	known := map[string]bool{
		"121212": true, "112233": true, "123123": true, "101010": true,
		"696969": true, "131313": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
