package service

import (
	"context"
	"encoding/json"
	"fmt"
	"phishguard/internal/model"
	"phishguard/internal/utils"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultUpdateFrequency = 4 * time.Hour
	storageKeyPrefix       = "phishguard-cache-v"
)

// KV is the durable key-value store used to persist the last snapshot.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// HistoryRecorder keeps a log of published snapshots.
type HistoryRecorder interface {
	AddSnapshotHistory(ctx context.Context, prev, next *model.SnapshotData) error
}

// SnapshotSource builds a fresh snapshot; *Aggregator is the production one.
type SnapshotSource interface {
	Aggregate(ctx context.Context) (*Snapshot, error)
}

// StorageKey derives the persisted snapshot key. Bumping the version makes
// entries written in an older format invisible.
func StorageKey(version string) string {
	return storageKeyPrefix + version
}

type RefresherConfig struct {
	Key                   string
	UpdateFrequency       time.Duration
	FailureBackoffInitial time.Duration
	FailureBackoffMax     time.Duration
}

// Refresher owns the Idle -> Fetching -> Idle cycle for one snapshot key.
// While a fetch is running, further triggers return immediately and readers
// keep getting the previously published snapshot.
type Refresher struct {
	source  SnapshotSource
	holder  *Holder
	store   KV
	history HistoryRecorder
	clock   Clock
	key     string
	freq    time.Duration

	fetching atomic.Bool

	mu          sync.Mutex
	lastUpdated time.Time
	retryAt     time.Time
	failures    *backoff.ExponentialBackOff
}

// NewRefresher wires a refresher. store and history may be nil.
func NewRefresher(source SnapshotSource, holder *Holder, store KV, history HistoryRecorder, clock Clock, cfg RefresherConfig) *Refresher {
	if cfg.UpdateFrequency <= 0 {
		cfg.UpdateFrequency = DefaultUpdateFrequency
	}
	if cfg.Key == "" {
		cfg.Key = StorageKey("1")
	}
	if cfg.FailureBackoffInitial <= 0 {
		cfg.FailureBackoffInitial = 30 * time.Second
	}
	if cfg.FailureBackoffMax <= 0 {
		cfg.FailureBackoffMax = 30 * time.Minute
	}
	if clock == nil {
		clock = SystemClock
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.FailureBackoffInitial
	exp.MaxInterval = cfg.FailureBackoffMax
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &Refresher{
		source:   source,
		holder:   holder,
		store:    store,
		history:  history,
		clock:    clock,
		key:      cfg.Key,
		freq:     cfg.UpdateFrequency,
		failures: exp,
	}
}

// Stale reports whether EnsureFresh would start a fetch right now.
func (r *Refresher) Stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	if !r.retryAt.IsZero() && now.Before(r.retryAt) {
		return false
	}
	return now.Sub(r.lastUpdated) >= r.freq
}

func (r *Refresher) Refreshing() bool {
	return r.fetching.Load()
}

// Current returns the published snapshot.
func (r *Refresher) Current() *Snapshot {
	return r.holder.Get()
}

func (r *Refresher) LastUpdated() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdated
}

// EnsureFresh rebuilds the snapshot when the current one is older than the
// update frequency. It is a no-op while another refresh is running.
func (r *Refresher) EnsureFresh(ctx context.Context) error {
	if !r.Stale() {
		return nil
	}
	return r.run(ctx, false)
}

// ForceRefresh rebuilds the snapshot regardless of its age, still subject
// to the single-flight guard.
func (r *Refresher) ForceRefresh(ctx context.Context) error {
	return r.run(ctx, true)
}

// Rehydrate publishes the last persisted snapshot, if any, so a cold start
// serves data before the first network fetch completes.
func (r *Refresher) Rehydrate(ctx context.Context) (bool, error) {
	snap, updated, ok, err := r.loadStored(ctx)
	if err != nil || !ok {
		return false, err
	}
	r.publish(snap, updated)
	utils.Log.Info("snapshot rehydrated from storage",
		utils.Field("key", r.key), utils.Field("last_updated", updated),
		utils.Field("allowed", snap.AllowedCount()), utils.Field("blocked", snap.BlockedCount()))
	return true, nil
}

func (r *Refresher) run(ctx context.Context, force bool) error {
	if !r.fetching.CompareAndSwap(false, true) {
		utils.Log.Debug("refresh already in progress", utils.Field("key", r.key))
		return nil
	}
	defer r.fetching.Store(false)

	// Another process sharing the store may have refreshed already.
	if !force {
		snap, updated, ok, err := r.loadStored(ctx)
		if err != nil {
			utils.Log.Warn("snapshot storage read failed", utils.Field("key", r.key), utils.Field("error", err.Error()))
		}
		if ok && r.clock.Now().Sub(updated) < r.freq && updated.After(r.LastUpdated()) {
			r.publish(snap, updated)
			refreshes.WithLabelValues("storage").Inc()
			utils.Log.Info("snapshot taken from storage", utils.Field("key", r.key), utils.Field("last_updated", updated))
			return nil
		}
	}

	utils.Log.Info("refreshing snapshot", utils.Field("key", r.key), utils.Field("forced", force))
	prev := r.holder.Get()

	snap, err := r.source.Aggregate(ctx)
	if err == nil && snap == nil {
		err = ErrAggregationFailed
	}
	if err != nil {
		r.mu.Lock()
		wait := r.failures.NextBackOff()
		r.retryAt = r.clock.Now().Add(wait)
		r.mu.Unlock()
		refreshes.WithLabelValues("failed").Inc()
		utils.Log.Error("refresh failed, keeping previous snapshot",
			utils.Field("key", r.key), utils.Field("retry_in", wait.String()), utils.Field("error", err.Error()))
		return err
	}

	updated := time.Unix(r.clock.Now().Unix(), 0)
	r.publish(snap, updated)

	r.mu.Lock()
	r.failures.Reset()
	r.retryAt = time.Time{}
	r.mu.Unlock()
	refreshes.WithLabelValues("ok").Inc()

	next := snap.Data()
	r.persist(ctx, updated, next)
	if r.history != nil {
		var prevData *model.SnapshotData
		if prev != nil && !prev.BuiltAt().IsZero() {
			d := prev.Data()
			prevData = &d
		}
		if err := r.history.AddSnapshotHistory(ctx, prevData, &next); err != nil {
			utils.Log.Warn("snapshot history write failed", utils.Field("error", err.Error()))
		}
	}
	return nil
}

func (r *Refresher) publish(snap *Snapshot, updated time.Time) {
	r.holder.Set(snap)
	observeSnapshot(snap)
	r.mu.Lock()
	r.lastUpdated = updated
	r.mu.Unlock()
}

func (r *Refresher) persist(ctx context.Context, updated time.Time, data model.SnapshotData) {
	if r.store == nil {
		return
	}
	val, err := json.Marshal(model.StoredSnapshot{LastUpdatedTime: updated.Unix(), Data: data})
	if err != nil {
		utils.Log.Error("snapshot encode failed", utils.Field("error", err.Error()))
		return
	}
	if err := r.store.Set(ctx, r.key, string(val)); err != nil {
		utils.Log.Warn("snapshot persist failed", utils.Field("key", r.key), utils.Field("error", err.Error()))
	}
}

func (r *Refresher) loadStored(ctx context.Context) (*Snapshot, time.Time, bool, error) {
	if r.store == nil {
		return nil, time.Time{}, false, nil
	}
	val, ok, err := r.store.Get(ctx, r.key)
	if err != nil || !ok {
		return nil, time.Time{}, false, err
	}
	var stored model.StoredSnapshot
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode stored snapshot: %w", err)
	}
	return SnapshotFromData(stored.Data), time.Unix(stored.LastUpdatedTime, 0), true, nil
}
