package profile

import (
	"context"
	"sync"

	"github.com/upb/threatprofile-gateway/models"
	"github.com/upb/threatprofile-gateway/tokens"
)

// Snapshot is the observable state of a profile query. IsLoading is set
// while the first load runs; IsFetching while any load runs.
type Snapshot struct {
	Data       *models.UserProfile
	IsLoading  bool
	IsFetching bool
	Error      error
}

// Settled reports whether no load is in flight
func (s Snapshot) Settled() bool {
	return !s.IsLoading && !s.IsFetching
}

// Resolved builds the snapshot of a completed synchronous load
func Resolved(p *models.UserProfile, err error) Snapshot {
	if err != nil {
		return Snapshot{Error: err}
	}
	return Snapshot{Data: p}
}

// Query loads one session's profile in the background and broadcasts every
// state change. A query over a pair without an identity token never fetches.
type Query struct {
	svc  Service
	pair tokens.Pair

	mu      sync.Mutex
	snap    Snapshot
	changed chan struct{}
	wg      sync.WaitGroup
}

// NewQuery creates an idle query. Until Refetch completes, a query with an
// identity token reports IsLoading.
func NewQuery(svc Service, pair tokens.Pair) *Query {
	return &Query{
		svc:     svc,
		pair:    pair,
		snap:    Snapshot{IsLoading: pair.IDToken != ""},
		changed: make(chan struct{}),
	}
}

// Snapshot returns the current state
func (q *Query) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snap
}

// Changed returns a channel closed on the next state change
func (q *Query) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// Refetch drops any cached profile and loads it again. It is a no-op while a
// load is already in flight.
func (q *Query) Refetch(ctx context.Context) {
	if q.pair.IDToken == "" {
		return
	}

	q.mu.Lock()
	if q.snap.IsFetching {
		q.mu.Unlock()
		return
	}
	q.snap.IsFetching = true
	q.snap.IsLoading = q.snap.Data == nil
	q.broadcastLocked()
	q.mu.Unlock()

	q.svc.Invalidate(q.pair)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		p, err := q.svc.Get(ctx, q.pair)

		q.mu.Lock()
		defer q.mu.Unlock()
		switch {
		case err != nil && ctx.Err() != nil:
			// abandoned; keep what we had
			q.snap.IsFetching = false
		case err != nil:
			q.snap = Snapshot{Data: q.snap.Data, Error: err}
		default:
			q.snap = Snapshot{Data: p}
		}
		q.broadcastLocked()
	}()
}

// Wait blocks until in-flight loads return
func (q *Query) Wait() {
	q.wg.Wait()
}

func (q *Query) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
