package service

import (
	"context"
	"phishguard/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, source *fakeSource, clock *fakeClock) (*Engine, *Refresher) {
	t.Helper()
	r := NewRefresher(source, NewHolder(), nil, nil, clock, RefresherConfig{UpdateFrequency: 4 * time.Hour})
	return NewEngine(r, NewResultCache(time.Hour, clock), DefaultClassifierOptions()), r
}

func TestEngine_ClassifyDomain(t *testing.T) {
	clock := newFakeClock(testEpoch)
	source := &fakeSource{snap: NewSnapshot([]string{"uniswap.org"}, []string{"evil.com"}, []string{"uniswap.org"}, testEpoch)}
	e, _ := newTestEngine(t, source, clock)
	require.NoError(t, e.ForceRefresh(context.Background()))

	assert.Equal(t, model.CategoryAllowed, e.ClassifyDomain(context.Background(), "uniswap.org").Category)
	assert.Equal(t, model.CategoryBlocked, e.ClassifyDomain(context.Background(), "evil.com").Category)
	assert.Equal(t, model.ClassificationResult{IsPhishing: true, Category: model.CategoryFuzzy, MatchedAgainst: "uniswap.org"},
		e.ClassifyDomain(context.Background(), "un1swap.org"))
	assert.Equal(t, 3, e.Stats().CachedItems)
}

func TestEngine_WarningPage(t *testing.T) {
	e, r := newTestEngine(t, &fakeSource{}, newFakeClock(testEpoch))
	got := e.ClassifyDomain(context.Background(), "https://metamask.github.io/phishing-warning/v1/#hostname=evil.com")
	assert.Equal(t, model.ClassificationResult{IsPhishing: true, Category: model.CategoryBlocked, MatchedAgainst: "metamask"}, got)
	assert.False(t, r.Refreshing())
}

func TestEngine_EmptySnapshotNotCached(t *testing.T) {
	clock := newFakeClock(testEpoch)
	source := &fakeSource{snap: NewSnapshot([]string{"uniswap.org"}, nil, nil, testEpoch), gate: make(chan struct{})}
	e, r := newTestEngine(t, source, clock)

	// Stale on start: the lookup answers Unknown at once and kicks off a
	// background refresh.
	got := e.ClassifyDomain(context.Background(), "uniswap.org")
	assert.Equal(t, model.CategoryUnknown, got.Category)
	assert.Equal(t, 0, e.Stats().CachedItems)

	require.Eventually(t, r.Refreshing, time.Second, time.Millisecond)
	close(source.gate)
	require.Eventually(t, func() bool { return !r.Refreshing() && e.Snapshot().AllowedCount() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, model.CategoryAllowed, e.ClassifyDomain(context.Background(), "uniswap.org").Category)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestEngine_StaleWhileRevalidate(t *testing.T) {
	clock := newFakeClock(testEpoch)
	source := &fakeSource{snap: NewSnapshot([]string{"uniswap.org"}, nil, nil, testEpoch)}
	e, r := newTestEngine(t, source, clock)
	require.NoError(t, e.ForceRefresh(context.Background()))

	source.gate = make(chan struct{})
	clock.Advance(5 * time.Hour)

	// Served from the old snapshot while the refresh is blocked.
	got := e.ClassifyDomain(context.Background(), "uniswap.org")
	assert.Equal(t, model.CategoryAllowed, got.Category)

	require.Eventually(t, r.Refreshing, time.Second, time.Millisecond)
	close(source.gate)
	require.Eventually(t, func() bool { return !r.Refreshing() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestEngine_Stats(t *testing.T) {
	clock := newFakeClock(testEpoch)
	source := &fakeSource{snap: NewSnapshot([]string{"a.com", "b.com"}, []string{"c.com"}, []string{"a.com"}, testEpoch)}
	e, _ := newTestEngine(t, source, clock)
	require.NoError(t, e.ForceRefresh(context.Background()))

	stats := e.Stats()
	assert.Equal(t, 2, stats.Allowed)
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, 1, stats.FuzzySeeds)
	assert.Equal(t, testEpoch, stats.BuiltAt)
	assert.Equal(t, testEpoch.Unix(), stats.LastUpdated.Unix())
	assert.False(t, stats.Refreshing)
}

func TestEngine_WithoutRefresher(t *testing.T) {
	e := NewEngine(nil, nil, DefaultClassifierOptions())
	assert.Equal(t, model.CategoryUnknown, e.ClassifyDomain(context.Background(), "uniswap.org").Category)
	assert.NoError(t, e.ForceRefresh(context.Background()))
	assert.Equal(t, 0, e.Stats().Allowed)
}
