// Package catalog caches the active listings used by discovery, together with
// the derived active-conversation flag.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/metrics"
)

// ListingSource loads every active listing.
type ListingSource interface {
	ListActive(ctx context.Context) ([]domain.Listing, error)
}

// ConversationIndex answers "which of these listings have a non-rejected conversation"
// in one round trip. No ids means every active listing.
type ConversationIndex interface {
	OpenListingIDs(ctx context.Context, listingIDs ...string) (map[string]bool, error)
}

// refreshTimeout bounds a shared reload, which runs detached from any one caller.
const refreshTimeout = 30 * time.Second

type Catalog struct {
	source        ListingSource
	conversations ConversationIndex
	metrics       *metrics.MetricsManager
	log           *slog.Logger
	now           func() time.Time

	refresh singleflight.Group

	mu       sync.RWMutex
	listings []domain.Listing
	index    map[string]int
	loadedAt time.Time
	// replay holds local mutations made while a load is in flight; they are
	// re-applied to the loaded snapshot so the swap cannot roll them back.
	// nil when no load is running.
	replay []func()
}

func New(source ListingSource, conversations ConversationIndex, m *metrics.MetricsManager, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{
		source:        source,
		conversations: conversations,
		metrics:       m,
		log:           log,
		now:           time.Now,
		index:         map[string]int{},
	}
}

// Refresh reloads listings and the conversation flags concurrently and swaps
// them in as one snapshot. Concurrent callers share a single reload, which is
// not cancelled when the caller that started it goes away.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, c.load(loadCtx)
	})
	return err
}

func (c *Catalog) load(ctx context.Context) error {
	var (
		listings []domain.Listing
		open     map[string]bool
	)

	c.mu.Lock()
	c.replay = []func(){}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		listings, err = c.source.ListActive(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = c.conversations.OpenListingIDs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.mu.Lock()
		c.replay = nil
		c.mu.Unlock()
		c.observe("error")
		return fmt.Errorf("catalog refresh: %w", err)
	}

	for i := range listings {
		listings[i] = listings[i].WithActiveConversation(open[listings[i].ID])
	}

	c.mu.Lock()
	c.listings = listings
	c.reindex()
	replayed := len(c.replay)
	for _, op := range c.replay {
		op()
	}
	c.replay = nil
	c.loadedAt = c.now()
	c.mu.Unlock()

	c.observe("ok")
	c.log.Debug("catalog refreshed", "listings", len(listings), "with_conversation", len(open), "replayed", replayed)
	return nil
}

// Stale reports whether the snapshot was never loaded or is older than maxAge.
// A non-positive maxAge only checks for the initial load.
func (c *Catalog) Stale(maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loadedAt.IsZero() {
		return true
	}
	return maxAge > 0 && c.now().Sub(c.loadedAt) > maxAge
}

// EnsureFresh refreshes only when Stale(maxAge).
func (c *Catalog) EnsureFresh(ctx context.Context, maxAge time.Duration) error {
	if !c.Stale(maxAge) {
		return nil
	}
	return c.Refresh(ctx)
}

// Listings returns a copy of the snapshot in load order (newest first).
func (c *Catalog) Listings() []domain.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Listing, len(c.listings))
	copy(out, c.listings)
	return out
}

// Get returns a cached listing.
func (c *Catalog) Get(id string) (domain.Listing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return domain.Listing{}, false
	}
	return c.listings[i], true
}

// MarkActiveConversation flags a listing after a conversation was created for it.
func (c *Catalog) MarkActiveConversation(listingID string) {
	c.SetActiveConversation(listingID, true)
}

// SetActiveConversation updates the derived flag in place. Unknown ids are ignored.
func (c *Catalog) SetActiveConversation(listingID string, active bool) {
	c.apply(func() {
		if i, ok := c.index[listingID]; ok {
			c.listings[i] = c.listings[i].WithActiveConversation(active)
		}
	})
}

// Update changes one cached listing in place. fn runs under the catalog lock,
// so it sees the latest flag and counters and must not call back into the catalog.
// Unknown ids are ignored.
func (c *Catalog) Update(listingID string, fn func(*domain.Listing)) {
	c.apply(func() {
		if i, ok := c.index[listingID]; ok {
			fn(&c.listings[i])
		}
	})
}

// Upsert adds or replaces a whole listing. Listings that are no longer active
// leave the catalog. Use Update for counter changes.
func (c *Catalog) Upsert(l domain.Listing) {
	c.apply(func() {
		if l.Status != domain.ListingActive {
			c.removeLocked(l.ID)
			return
		}
		if i, ok := c.index[l.ID]; ok {
			c.listings[i] = l
			return
		}
		// new listings are the newest, keep load order
		c.listings = append([]domain.Listing{l}, c.listings...)
		c.reindex()
	})
}

// Remove drops a listing from the snapshot.
func (c *Catalog) Remove(listingID string) {
	c.apply(func() { c.removeLocked(listingID) })
}

// apply runs op under mu and, while a load is running, queues it for replay
// onto the loaded snapshot.
func (c *Catalog) apply(op func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op()
	if c.replay != nil {
		c.replay = append(c.replay, op)
	}
}

func (c *Catalog) removeLocked(listingID string) {
	i, ok := c.index[listingID]
	if !ok {
		return
	}
	c.listings = append(c.listings[:i:i], c.listings[i+1:]...)
	c.reindex()
}

// Len is the number of cached listings.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listings)
}

// reindex must be called with mu held.
func (c *Catalog) reindex() {
	c.index = make(map[string]int, len(c.listings))
	for i, l := range c.listings {
		c.index[l.ID] = i
	}
}

func (c *Catalog) observe(result string) {
	if c.metrics != nil {
		c.metrics.CatalogRefreshTotal.WithLabelValues(result).Inc()
	}
}
