package discovery

import (
	"context"
	"time"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/criteria"
	pipeline "github.com/oggyb/swap-market/internal/discovery"
	svcErr "github.com/oggyb/swap-market/internal/errors"
	"github.com/oggyb/swap-market/internal/geo"
	"github.com/oggyb/swap-market/internal/ratings"
	"github.com/oggyb/swap-market/internal/service/views"
)

const (
	defaultPageSize = 24
	maxPageSize     = 200
)

type UpdateCriteriaRequest struct {
	SessionID string         `json:"session_id"`
	Patch     criteria.Patch `json:"patch"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type CriteriaResponse struct {
	Criteria criteria.Criteria `json:"criteria"`
}

type BrowseRequest struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	HideOwn   bool            `json:"hide_own,omitempty"`
	Patch     *criteria.Patch `json:"patch,omitempty"`
	Offset    int             `json:"offset"`
	Limit     int             `json:"limit"`
}

type BrowseResponse struct {
	Listings []views.Listing   `json:"listings"`
	Total    int               `json:"total"`
	Criteria criteria.Criteria `json:"criteria"`
}

// Service implements the Discovery gRPC API on top of the shared catalog.
type Service struct {
	appCtx   *app.AppContext
	sessions *sessions
	ratings  *ratings.Aggregator
	maxAge   time.Duration
}

// NewDiscoveryService creates the Discovery service with dependencies from AppContext.
// Dependencies include:
//   - the shared catalog (refreshed when empty or older than Discovery.CatalogMaxAge)
//   - the rating aggregator (Redis-cached averages)
//   - criteria sessions (Redis when configured)
func NewDiscoveryService(appCtx *app.AppContext) *Service {
	cfg := appCtx.Config.Discovery
	return &Service{
		appCtx:   appCtx,
		sessions: newSessions(appCtx.RedisCache, cfg.SessionTTL, cfg.DefaultRadiusMiles, appCtx.Logger),
		ratings:  appCtx.RatingAggregator(),
		maxAge:   cfg.CatalogMaxAge,
	}
}

// UpdateCriteria merges a partial update into the session criteria.
// Malformed values are normalized rather than rejected.
func (s *Service) UpdateCriteria(ctx context.Context, req *UpdateCriteriaRequest) (*CriteriaResponse, error) {
	s.appCtx.Logger.Debug("UpdateCriteria called", "session", req.SessionID)

	if req.SessionID == "" {
		return nil, svcErr.InvalidArgument("session_id is required")
	}
	st, err := s.sessions.load(ctx, req.SessionID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	c := st.Apply(req.Patch)
	if c.LocationText != "" && c.Location == nil {
		st.SetLocation(geo.Locate(ctx, s.appCtx.Geocoder, c.LocationText))
	}
	if err := s.sessions.save(ctx, req.SessionID, st); err != nil {
		return nil, svcErr.Map(err)
	}
	return &CriteriaResponse{Criteria: st.Snapshot()}, nil
}

// GetCriteria returns the session criteria, defaults for unknown sessions.
func (s *Service) GetCriteria(ctx context.Context, req *SessionRequest) (*CriteriaResponse, error) {
	st, err := s.sessions.load(ctx, req.SessionID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &CriteriaResponse{Criteria: st.Snapshot()}, nil
}

// ResetCriteria drops the session back to defaults.
func (s *Service) ResetCriteria(ctx context.Context, req *SessionRequest) (*CriteriaResponse, error) {
	if req.SessionID == "" {
		return nil, svcErr.InvalidArgument("session_id is required")
	}
	if err := s.sessions.reset(ctx, req.SessionID); err != nil {
		return nil, svcErr.Map(err)
	}
	c := criteria.Default(s.appCtx.Config.Discovery.DefaultRadiusMiles)
	return &CriteriaResponse{Criteria: c}, nil
}

// Browse filters and ranks the catalog against the session criteria.
//
// Behavior:
//   - An inline patch is applied and persisted first.
//   - The reference location text is geocoded best effort.
//   - The catalog is reloaded when empty or stale.
//   - Owner averages are fetched in one batch; unrated owners are never filtered out.
//   - Results are paged with offset/limit; Total counts all matches.
func (s *Service) Browse(ctx context.Context, req *BrowseRequest) (*BrowseResponse, error) {
	start := time.Now()
	s.appCtx.Logger.Debug("Browse called", "session", req.SessionID, "offset", req.Offset, "limit", req.Limit)

	st, err := s.sessions.load(ctx, req.SessionID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if req.Patch != nil {
		st.Apply(*req.Patch)
	}
	c := st.Snapshot()
	if c.LocationText != "" && c.Location == nil {
		if loc := geo.Locate(ctx, s.appCtx.Geocoder, c.LocationText); loc != nil {
			st.SetLocation(loc)
			c = st.Snapshot()
		}
	}
	if req.Patch != nil || c.Location != nil {
		if err := s.sessions.save(ctx, req.SessionID, st); err != nil {
			s.appCtx.Logger.Warn("criteria session save failed", "session", req.SessionID, "err", err)
		}
	}

	if err := s.appCtx.Catalog.EnsureFresh(ctx, s.maxAge); err != nil {
		return nil, svcErr.Map(err)
	}
	listings := s.appCtx.Catalog.Listings()
	if req.HideOwn && req.UserID != "" {
		kept := listings[:0]
		for _, l := range listings {
			if l.OwnerID != req.UserID {
				kept = append(kept, l)
			}
		}
		listings = kept
	}

	var avg pipeline.Ratings
	if c.MinRating > 0 {
		owners := make([]string, 0, len(listings))
		for _, l := range listings {
			owners = append(owners, l.OwnerID)
		}
		if avg, err = s.ratings.Averages(ctx, owners); err != nil {
			return nil, svcErr.Map(err)
		}
	}

	results := pipeline.FilterAndSort(listings, c, c.Location, avg)
	s.appCtx.Metrics.BrowseResults.Observe(float64(len(results)))

	page := paginate(results, req.Offset, req.Limit)
	resp := &BrowseResponse{
		Listings: make([]views.Listing, 0, len(page)),
		Total:    len(results),
		Criteria: c.Normalize(),
	}
	for _, r := range page {
		v := views.FromListing(r.Listing)
		v.DistanceMiles = r.DistanceMiles
		resp.Listings = append(resp.Listings, v)
	}

	s.appCtx.Logger.Debug("Browse result", "total", resp.Total, "returned", len(resp.Listings), "took", time.Since(start))
	return resp, nil
}

func paginate(results []pipeline.Result, offset, limit int) []pipeline.Result {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
