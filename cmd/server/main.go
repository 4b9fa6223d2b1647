package main

import (
	"context"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/cache"
	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/geo"
	"github.com/oggyb/swap-market/internal/logger"
	"github.com/oggyb/swap-market/internal/metrics"
	"github.com/oggyb/swap-market/internal/server"
	"github.com/oggyb/swap-market/internal/service/discovery"
	"github.com/oggyb/swap-market/internal/service/listing"
	"github.com/oggyb/swap-market/internal/service/rating"
	"github.com/oggyb/swap-market/internal/service/swap"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	appCtx := app.New(cfg, database, redisCache, log)
	appCtx.Geocoder = geo.NewCachingGeocoder(
		geo.NewNominatimGeocoder(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout),
		redisCache,
		cfg.Geocoder.CacheTTL,
		logger.Component("geocoder"),
	)

	if cfg.NATS.Enabled {
		publisher, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.Log.Component)
		if err != nil {
			log.Error("failed to connect to nats", "url", cfg.NATS.URL, "err", err)
			return
		}
		defer publisher.Close()
		appCtx.Publisher = publisher
	}

	go func() {
		if err := metrics.StartMetricsServer(cfg.Metrics.Port, logger.Component("metrics"), appCtx.Metrics); err != nil {
			log.Error("metrics server stopped", "err", err)
		}
	}()

	// warm the catalog; Browse retries on its own if this fails
	if err := appCtx.Catalog.Refresh(context.Background()); err != nil {
		log.Warn("initial catalog load failed", "err", err)
	}

	registrars := []server.Registrar{
		discovery.NewRegistrar(appCtx),
		swap.NewRegistrar(appCtx),
		listing.NewRegistrar(appCtx),
		rating.NewRegistrar(appCtx),
	}

	if err := server.StartGRPCServer(cfg, log, appCtx.Metrics, registrars...); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
}
