package geo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oggyb/swap-market/internal/domain"
)

// ErrGeocodeFailed is returned for unknown or ambiguous locations.
var ErrGeocodeFailed = errors.New("geocode failed")

// Geocoder resolves free-text locations to a single best coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Coordinates, error)
}

// SharedCache is an optional cross-process tier behind the in-memory cache.
type SharedCache interface {
	GetCoordinates(ctx context.Context, address string) (*domain.Coordinates, error)
	SetCoordinates(ctx context.Context, address string, c domain.Coordinates, ttl time.Duration) error
}

type cacheEntry struct {
	coords domain.Coordinates
	ok     bool
}

// CachingGeocoder memoizes results (including failures) for the life of the process.
// Concurrent lookups for the same input share one upstream call.
type CachingGeocoder struct {
	next   Geocoder
	shared SharedCache
	ttl    time.Duration
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCachingGeocoder wraps next. shared may be nil.
func NewCachingGeocoder(next Geocoder, shared SharedCache, ttl time.Duration, log *slog.Logger) *CachingGeocoder {
	if log == nil {
		log = slog.Default()
	}
	return &CachingGeocoder{
		next:    next,
		shared:  shared,
		ttl:     ttl,
		log:     log,
		entries: make(map[string]cacheEntry),
	}
}

func normalizeAddress(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Geocode returns cached coordinates or resolves them once.
func (g *CachingGeocoder) Geocode(ctx context.Context, address string) (domain.Coordinates, error) {
	key := normalizeAddress(address)
	if key == "" {
		return domain.Coordinates{}, ErrGeocodeFailed
	}

	g.mu.RLock()
	e, hit := g.entries[key]
	g.mu.RUnlock()
	if hit {
		if !e.ok {
			return domain.Coordinates{}, ErrGeocodeFailed
		}
		return e.coords, nil
	}

	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		return g.resolve(ctx, key)
	})
	if err != nil {
		return domain.Coordinates{}, err
	}
	return v.(domain.Coordinates), nil
}

func (g *CachingGeocoder) resolve(ctx context.Context, key string) (domain.Coordinates, error) {
	if g.shared != nil {
		if c, err := g.shared.GetCoordinates(ctx, key); err == nil && c != nil {
			g.store(key, cacheEntry{coords: *c, ok: true})
			return *c, nil
		}
	}

	c, err := g.next.Geocode(ctx, key)
	if err != nil {
		// abandoned requests are not a verdict on the address
		if ctx.Err() != nil {
			return domain.Coordinates{}, ctx.Err()
		}
		g.log.Debug("geocode miss", "address", key, "err", err)
		g.store(key, cacheEntry{})
		return domain.Coordinates{}, ErrGeocodeFailed
	}

	g.store(key, cacheEntry{coords: c, ok: true})
	if g.shared != nil {
		if err := g.shared.SetCoordinates(ctx, key, c, g.ttl); err != nil {
			g.log.Warn("failed to share geocode result", "address", key, "err", err)
		}
	}
	return c, nil
}

func (g *CachingGeocoder) store(key string, e cacheEntry) {
	g.mu.Lock()
	g.entries[key] = e
	g.mu.Unlock()
}

// Locate is the best-effort form used by the pipeline: failures become nil.
func Locate(ctx context.Context, g Geocoder, address string) *domain.Coordinates {
	if g == nil || strings.TrimSpace(address) == "" {
		return nil
	}
	c, err := g.Geocode(ctx, address)
	if err != nil {
		return nil
	}
	return &c
}
