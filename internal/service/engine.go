package service

import (
	"context"
	"phishguard/internal/model"
	"phishguard/internal/utils"
	"strings"
)

const (
	warningPagePrefix  = "https://metamask.github.io/phishing-warning"
	warningPageMatched = "metamask"
)

// Engine is the reputation engine: the published snapshot, its refresher
// and the result cache behind one inbound API.
type Engine struct {
	refresher *Refresher
	cache     *ResultCache
	opts      ClassifierOptions
}

func NewEngine(refresher *Refresher, cache *ResultCache, opts ClassifierOptions) *Engine {
	if cache == nil {
		cache = NewResultCache(DefaultCacheResetInterval, SystemClock)
	}
	return &Engine{refresher: refresher, cache: cache, opts: opts}
}

// ClassifyDomain never blocks on a refresh. A stale snapshot keeps being
// served while a background refresh rebuilds it.
func (e *Engine) ClassifyDomain(ctx context.Context, domain string) model.ClassificationResult {
	if strings.HasPrefix(strings.TrimSpace(domain), warningPagePrefix) {
		classifications.WithLabelValues(string(model.CategoryBlocked)).Inc()
		return model.ClassificationResult{IsPhishing: true, Category: model.CategoryBlocked, MatchedAgainst: warningPageMatched}
	}

	e.revalidate()

	snap := e.Snapshot()
	var res model.ClassificationResult
	if snap.BuiltAt().IsZero() {
		// Nothing published yet; do not pin Unknown in the cache.
		res = Classify(domain, snap, e.opts)
	} else {
		res = e.cache.GetOrCompute(domain, func() model.ClassificationResult {
			return Classify(domain, snap, e.opts)
		})
	}

	classifications.WithLabelValues(string(res.Category)).Inc()
	utils.Log.Debug("domain classified", utils.Field("domain", domain),
		utils.Field("category", string(res.Category)), utils.Field("matched", res.MatchedAgainst))
	return res
}

func (e *Engine) ForceRefresh(ctx context.Context) error {
	if e.refresher == nil {
		return nil
	}
	return e.refresher.ForceRefresh(ctx)
}

func (e *Engine) Snapshot() *Snapshot {
	if e.refresher == nil {
		return EmptySnapshot()
	}
	return e.refresher.Current()
}

func (e *Engine) Stats() model.EngineStats {
	snap := e.Snapshot()
	stats := model.EngineStats{
		Allowed:     snap.AllowedCount(),
		Blocked:     snap.BlockedCount(),
		FuzzySeeds:  len(snap.FuzzySeeds()),
		BuiltAt:     snap.BuiltAt(),
		CachedItems: e.cache.Len(),
	}
	if e.refresher != nil {
		stats.LastUpdated = e.refresher.LastUpdated()
		stats.Refreshing = e.refresher.Refreshing()
	}
	return stats
}

func (e *Engine) revalidate() {
	if e.refresher == nil || e.refresher.Refreshing() || !e.refresher.Stale() {
		return
	}
	go func() {
		if err := e.refresher.EnsureFresh(context.Background()); err != nil {
			utils.Log.Warn("background refresh failed", utils.Field("error", err.Error()))
		}
	}()
}
