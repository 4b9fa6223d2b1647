package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/cache"
	"github.com/oggyb/swap-market/internal/catalog"
	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/events"
	"github.com/oggyb/swap-market/internal/geo"
	"github.com/oggyb/swap-market/internal/matching"
	"github.com/oggyb/swap-market/internal/metrics"
	"github.com/oggyb/swap-market/internal/quota"
	"github.com/oggyb/swap-market/internal/ratings"
	"github.com/oggyb/swap-market/internal/repository"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
//
// Catalog is process-wide state: every service reads and updates the same snapshot.
// Geocoder and RedisCache may be nil, in which case locations stay unresolved
// and caches/locks are skipped.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Metrics    *metrics.MetricsManager
	Publisher  events.Publisher
	Geocoder   geo.Geocoder
	Guard      *quota.Guard
	Catalog    *catalog.Catalog
}

// New creates a new AppContext with a private metrics registry, a no-op
// publisher and a quota guard built from cfg.Quota.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	m := metrics.NewMetricsManager("swap_market")
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Metrics:    m,
		Publisher:  events.NopPublisher{},
		Guard:      quota.NewGuard(PolicyFromConfig(cfg)),
		Catalog: catalog.New(
			repository.NewListingRepository(db),
			repository.NewConversationRepository(db),
			m,
			logger.With("component", "catalog"),
		),
	}
}

// PolicyFromConfig maps the Quota config section, falling back to defaults
// for unset values.
func PolicyFromConfig(cfg *config.Config) quota.Policy {
	p := quota.DefaultPolicy()
	if cfg == nil {
		return p
	}
	if cfg.Quota.FreeMonthlyListings > 0 {
		p.FreeMonthlyListings = cfg.Quota.FreeMonthlyListings
	}
	if cfg.Quota.FreeMonthlySwaps > 0 {
		p.FreeMonthlySwaps = cfg.Quota.FreeMonthlySwaps
	}
	if cfg.Quota.ListingCost > 0 {
		p.ListingCost = cfg.Quota.ListingCost
	}
	if cfg.Quota.SwapCost > 0 {
		p.SwapCost = cfg.Quota.SwapCost
	}
	return p
}

// MatchingEngine builds an interest engine over the shared catalog. Engines are
// stateless apart from their collaborators, so each service may hold its own.
func (a *AppContext) MatchingEngine() *matching.Engine {
	var locker matching.Locker
	if a.RedisCache != nil {
		locker = a.RedisCache
	}
	return matching.NewEngine(matching.Deps{
		Listings:      repository.NewListingRepository(a.DB),
		Conversations: repository.NewConversationRepository(a.DB),
		Wallet:        repository.NewAccountRepository(a.DB),
		Guard:         a.Guard,
		Catalog:       a.Catalog,
		Locker:        locker,
		Publisher:     a.Publisher,
		Metrics:       a.Metrics,
		Logger:        a.Logger.With("component", "matching"),
	})
}

// RatingAggregator builds the rating reader/writer, cached in Redis when configured.
func (a *AppContext) RatingAggregator() *ratings.Aggregator {
	return ratings.NewAggregator(
		repository.NewRatingRepository(a.DB),
		repository.NewConversationRepository(a.DB),
		a.RedisCache,
		a.Config.Discovery.RatingCacheTTL,
		a.Publisher,
		a.Metrics,
		a.Logger.With("component", "ratings"),
	)
}
