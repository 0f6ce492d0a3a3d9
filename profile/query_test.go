package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/tokens"
)

func waitChanged(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("query did not broadcast a change")
	}
}

func TestResolved(t *testing.T) {
	p := testProfile("u1")
	assert.Equal(t, Snapshot{Data: p}, Resolved(p, nil))
	assert.True(t, Resolved(nil, nil).Settled())

	err := errors.New("boom")
	snap := Resolved(p, err)
	assert.Nil(t, snap.Data)
	assert.Equal(t, err, snap.Error)
}

func TestQuery_LoadLifecycle(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	q := NewQuery(NewCachedService(fetcher, NewCache(10, time.Minute), zap.NewNop(), nil), testPair)

	initial := q.Snapshot()
	assert.True(t, initial.IsLoading)
	assert.False(t, initial.Settled())

	changed := q.Changed()
	q.Refetch(context.Background())
	waitChanged(t, changed)

	loading := q.Snapshot()
	assert.True(t, loading.IsLoading)
	assert.True(t, loading.IsFetching)

	changed = q.Changed()
	close(fetcher.release)
	waitChanged(t, changed)
	q.Wait()

	loaded := q.Snapshot()
	assert.True(t, loaded.Settled())
	require.NotNil(t, loaded.Data)
	assert.Equal(t, "u1", loaded.Data.UserInfo.UserID)
}

func TestQuery_RefetchKeepsDataWhileFetching(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, testPair).Return(testProfile("u1"), nil).Once()
	fetcher.On("Fetch", mock.Anything, testPair).Return(nil, errors.New("upstream down")).Once()
	q := NewQuery(NewCachedService(fetcher, NewCache(10, time.Minute), zap.NewNop(), nil), testPair)

	q.Refetch(context.Background())
	q.Wait()
	require.NotNil(t, q.Snapshot().Data)

	q.Refetch(context.Background())
	q.Wait()

	snap := q.Snapshot()
	assert.True(t, snap.Settled())
	assert.Error(t, snap.Error)
	assert.NotNil(t, snap.Data, "previous data survives a failed refetch")
	fetcher.AssertExpectations(t)
}

func TestQuery_WithoutIdentityTokenNeverFetches(t *testing.T) {
	fetcher := new(MockFetcher)
	q := NewQuery(NewCachedService(fetcher, nil, zap.NewNop(), nil), tokens.Pair{})

	assert.True(t, q.Snapshot().Settled())
	q.Refetch(context.Background())
	q.Wait()

	assert.Equal(t, Snapshot{}, q.Snapshot())
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestQuery_AbandonedRefetchIsNotAnError(t *testing.T) {
	fetcher := &blockingFetcher{release: make(chan struct{})}
	defer close(fetcher.release)
	q := NewQuery(NewCachedService(fetcher, NewCache(10, time.Minute), zap.NewNop(), nil), testPair)

	ctx, cancel := context.WithCancel(context.Background())
	q.Refetch(ctx)
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	q.Wait()

	snap := q.Snapshot()
	assert.NoError(t, snap.Error)
	assert.False(t, snap.IsFetching)
	assert.True(t, snap.IsLoading, "still no profile")
}
