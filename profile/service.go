package profile

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/tokens"
)

// Metrics records profile lookups by outcome: hit, ok, not_found, error, cancelled
type Metrics interface {
	RecordProfileFetch(outcome string, duration time.Duration)
}

// Service is what the guard and handlers use to load profiles
type Service interface {
	Get(ctx context.Context, pair tokens.Pair) (*models.UserProfile, error)
	Invalidate(pair tokens.Pair)
}

// CachedService fronts a Fetcher with the LRU cache and collapses
// concurrent loads of the same session into one upstream call.
type CachedService struct {
	fetcher Fetcher
	cache   *Cache
	group   singleflight.Group
	logger  *zap.Logger
	metrics Metrics
}

// NewCachedService creates a cached profile service. cache may be nil to disable caching.
func NewCachedService(fetcher Fetcher, cache *Cache, logger *zap.Logger, metrics Metrics) *CachedService {
	return &CachedService{
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// Get returns the session's profile. Errors are never cached.
func (s *CachedService) Get(ctx context.Context, pair tokens.Pair) (*models.UserProfile, error) {
	key := KeyFor(pair)
	start := time.Now()

	if s.cache != nil {
		if p, ok := s.cache.Get(key); ok {
			s.record("hit", start)
			return p, nil
		}
	}

	// Waiters share one fetch, so it must outlive any single caller.
	// The fetcher's own timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(key), func() (interface{}, error) {
		p, err := s.fetcher.Fetch(fetchCtx, pair)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(key, p)
		}
		return p, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		s.record("cancelled", start)
		return nil, ctx.Err()
	}

	v, err := res.Val, res.Err
	if err != nil {
		s.logger.Warn("profile fetch failed", zap.Error(err), zap.Bool("shared", res.Shared))
		s.record("error", start)
		return nil, err
	}

	p, _ := v.(*models.UserProfile)
	if p == nil {
		s.record("not_found", start)
		return nil, nil
	}
	s.record("ok", start)
	return p, nil
}

// Invalidate drops the cached profile of the session
func (s *CachedService) Invalidate(pair tokens.Pair) {
	key := KeyFor(pair)
	s.group.Forget(string(key))
	if s.cache != nil {
		s.cache.Invalidate(key)
	}
}

func (s *CachedService) record(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordProfileFetch(outcome, time.Since(start))
	}
}
