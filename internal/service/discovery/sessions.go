package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/swap-market/internal/cache"
	"github.com/oggyb/swap-market/internal/criteria"
)

const defaultSessionTTL = 24 * time.Hour

type localSession struct {
	data    []byte
	expires time.Time
}

// sessions persists criteria between calls as the Marshal output of a
// criteria.Store. Redis is used when configured, otherwise process memory.
// Both expire after ttl of inactivity.
type sessions struct {
	redis  *cache.RedisCache
	ttl    time.Duration
	radius float64
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]localSession
}

func newSessions(rc *cache.RedisCache, ttl time.Duration, radius float64, log *slog.Logger) *sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &sessions{
		redis:  rc,
		ttl:    ttl,
		radius: radius,
		log:    log,
		now:    time.Now,
		local:  map[string]localSession{},
	}
}

// load returns the session's store. Unknown, expired or unreadable sessions
// yield defaults.
func (s *sessions) load(ctx context.Context, id string) (*criteria.Store, error) {
	if id == "" {
		return criteria.NewStore(s.radius), nil
	}
	var raw []byte
	if s.redis != nil {
		var err error
		if raw, err = s.redis.LoadSession(ctx, id, s.ttl); err != nil {
			return nil, err
		}
	} else {
		s.mu.Lock()
		if e, ok := s.local[id]; ok {
			if s.now().Before(e.expires) {
				raw = e.data
				e.expires = s.now().Add(s.ttl)
				s.local[id] = e
			} else {
				delete(s.local, id)
			}
		}
		s.mu.Unlock()
	}
	st, err := criteria.Restore(raw, s.radius)
	if err != nil {
		s.log.Warn("discarding unreadable criteria session", "session", id, "err", err)
		return criteria.NewStore(s.radius), nil
	}
	return st, nil
}

func (s *sessions) save(ctx context.Context, id string, st *criteria.Store) error {
	if id == "" {
		return nil
	}
	raw, err := st.Marshal()
	if err != nil {
		return err
	}
	if s.redis != nil {
		return s.redis.SaveSession(ctx, id, raw, s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.local {
		if !now.Before(e.expires) {
			delete(s.local, k)
		}
	}
	s.local[id] = localSession{data: raw, expires: now.Add(s.ttl)}
	return nil
}

func (s *sessions) reset(ctx context.Context, id string) error {
	if s.redis != nil {
		return s.redis.DeleteSession(ctx, id)
	}
	s.mu.Lock()
	delete(s.local, id)
	s.mu.Unlock()
	return nil
}
