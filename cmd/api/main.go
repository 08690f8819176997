package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"telos_booking/internal/adapters/geocode"
	server "telos_booking/internal/adapters/http_server"
	"telos_booking/internal/adapters/observability"
	redisad "telos_booking/internal/adapters/redis"
	"telos_booking/internal/adapters/webhook"
	"telos_booking/internal/app"
	"telos_booking/internal/shared"
	mysqlrepo "telos_booking/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	defer db.Close()

	// a dead database is not fatal: read endpoints serve mock data until it returns
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Error().Err(err).Msg("db.Ping failed, starting in degraded mode")
	} else if applied, err := mysqlrepo.Migrate(pingCtx, db); err != nil {
		log.Error().Err(err).Msg("migrations failed")
	} else {
		log.Info().Strs("applied", applied).Msg("database connection ok")
	}
	cancel()

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	geo, err := geocode.New(cfg.GeocoderURL, "telos-booking/1.0 (+"+cfg.PublicBaseURL+")", 1)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize geocoder")
	}
	hook := webhook.New(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookRPS, cfg.WebhookTimeout)

	mock := app.MustLoadMockData()
	limiter := app.NewCityLimiter(cfg.SearchCooldown)
	go limiter.Run(ctx)

	q := app.NewQueryService(repo, cache, mock, cfg.CacheTTL)
	c := app.NewCommandService(repo, cache, geo)
	s := app.NewSearchService(repo, cache, hook, limiter, mock, app.SearchServiceConfig{
		CallbackURL:    cfg.PublicBaseURL + "/api/webhook/telos",
		WebhookTimeout: cfg.WebhookTimeout,
	})

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q: q, C: c, S: s,
		DB:            repo,
		Cache:         cache,
		AdminToken:    cfg.AdminToken,
		WebhookSecret: cfg.WebhookSecret,
		BaseURL:       cfg.PublicBaseURL,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	// let detached webhook calls and geocoding finish; both are time bounded
	s.Wait()
	c.Wait()
	log.Info().Msg("bye")
}
