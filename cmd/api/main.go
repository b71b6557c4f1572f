package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/toukir-bd/ImVeo/internal/http/handlers"
	"github.com/toukir-bd/ImVeo/internal/http/httpapi"
	"github.com/toukir-bd/ImVeo/internal/imaging"
	"github.com/toukir-bd/ImVeo/internal/infra"
	"github.com/toukir-bd/ImVeo/internal/infra/credentials"
	"github.com/toukir-bd/ImVeo/internal/infra/geoip"
	"github.com/toukir-bd/ImVeo/internal/middleware"
	"github.com/toukir-bd/ImVeo/internal/providers/veo"
	"github.com/toukir-bd/ImVeo/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if dbpool != nil {
		defer dbpool.Close()
	}

	// Credentials come from Postgres when a database is configured, with the
	// environment key as promotion fallback; otherwise the env key alone.
	var selector credentials.Selector
	if dbpool != nil {
		store := credentials.NewStore(infra.NewSQLRunner(dbpool, logger))
		selector = credentials.NewStoreSelector(store, cfg.GeminiAPIKey)
	} else {
		selector = credentials.NewStaticSelector(cfg.GeminiAPIKey)
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	veoClient := veo.NewClient(veo.Options{
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.VeoModel,
		Logger:  &logger,
	})

	policy := workflow.Policy{PollInterval: cfg.PollInterval, MaxPollAttempts: cfg.MaxPollAttempts}
	sessions := workflow.NewRegistry(func() *workflow.Controller {
		return workflow.New(veoClient, selector, policy, logger)
	}, cfg.SessionTTL)

	app := handlers.NewApp(logger, imaging.NewEncoder(cfg.MaxUploadBytes), sessions, cfg.MaxUploadBytes)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CountryLookup:   lookup,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
