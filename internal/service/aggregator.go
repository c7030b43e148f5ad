package service

import (
	"context"
	"errors"
	"fmt"
	"phishguard/internal/utils"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// ErrAggregationFailed means no feed produced data; the caller keeps the
// previously published snapshot.
var ErrAggregationFailed = errors.New("aggregation failed: no feed available")

type AggregatorConfig struct {
	TVLThreshold float64       // protocols below this TVL are ignored
	ExtraAllowed []string      // always allowed, never used as seeds
	MaxAttempts  int           // per feed, including the first try
	FeedTimeout  time.Duration // per attempt
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func (c *AggregatorConfig) withDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 30 * time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
}

// Aggregator merges independently fetched feeds into one Snapshot.
type Aggregator struct {
	feeds []Feed
	cfg   AggregatorConfig
	clock Clock
}

func NewAggregator(feeds []Feed, cfg AggregatorConfig, clock Clock) *Aggregator {
	cfg.withDefaults()
	if clock == nil {
		clock = SystemClock
	}
	return &Aggregator{feeds: feeds, cfg: cfg, clock: clock}
}

// Aggregate fetches every feed concurrently and merges the results. A feed
// that keeps failing contributes nothing; only when all feeds fail does it
// return ErrAggregationFailed.
func (a *Aggregator) Aggregate(ctx context.Context) (*Snapshot, error) {
	if len(a.feeds) == 0 {
		return nil, fmt.Errorf("%w: no feeds configured", ErrAggregationFailed)
	}

	payloads := make([]FeedPayload, len(a.feeds))
	errs := make([]error, len(a.feeds))

	var g errgroup.Group
	for i, feed := range a.feeds {
		g.Go(func() error {
			payload, err := a.fetch(ctx, feed)
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, feed.Name(), err)
				feedFetches.WithLabelValues(feed.Name(), "error").Inc()
				utils.Log.Warn("feed unavailable, contributing nothing",
					utils.Field("feed", feed.Name()), utils.Field("error", err.Error()))
				return nil
			}
			payloads[i] = payload
			feedFetches.WithLabelValues(feed.Name(), "ok").Inc()
			return nil
		})
	}
	_ = g.Wait()

	var allowed, blocked, fuzzy []string
	succeeded := 0
	for i, payload := range payloads {
		if payload == nil {
			continue
		}
		succeeded++
		switch p := payload.(type) {
		case ProtocolList:
			hosts := protocolHosts(p.Protocols, a.cfg.TVLThreshold)
			allowed = append(allowed, hosts...)
			fuzzy = append(fuzzy, hosts...)
			utils.Log.Info("feed merged", utils.Field("feed", a.feeds[i].Name()), utils.Field("protocol_domains", len(hosts)))
		case ThreeWayList:
			allowed = append(allowed, p.Whitelist...)
			blocked = append(blocked, p.Blacklist...)
			fuzzy = append(fuzzy, p.Fuzzylist...)
			utils.Log.Info("feed merged", utils.Field("feed", a.feeds[i].Name()),
				utils.Field("whitelist", len(p.Whitelist)), utils.Field("blacklist", len(p.Blacklist)),
				utils.Field("fuzzylist", len(p.Fuzzylist)))
		case DirectoryList:
			allowed = append(allowed, p.Whitelist...)
			blocked = append(blocked, p.Blacklist...)
			fuzzy = append(fuzzy, p.Whitelist...)
			fuzzy = append(fuzzy, p.Fuzzylist...)
			utils.Log.Info("feed merged", utils.Field("feed", a.feeds[i].Name()),
				utils.Field("whitelist", len(p.Whitelist)), utils.Field("blacklist", len(p.Blacklist)),
				utils.Field("fuzzylist", len(p.Fuzzylist)))
		}
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAggregationFailed, errors.Join(errs...))
	}

	allowed = append(allowed, a.cfg.ExtraAllowed...)
	snap := NewSnapshot(allowed, blocked, fuzzy, a.clock.Now())
	utils.Log.Info("aggregation finished",
		utils.Field("feeds_ok", succeeded), utils.Field("feeds_total", len(a.feeds)),
		utils.Field("allowed", snap.AllowedCount()), utils.Field("blocked", snap.BlockedCount()),
		utils.Field("fuzzy", len(snap.FuzzySeeds())))
	return snap, nil
}

func (a *Aggregator) fetch(ctx context.Context, feed Feed) (FeedPayload, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.cfg.RetryInitial
	exp.MaxInterval = a.cfg.RetryMax
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(a.cfg.MaxAttempts-1)), ctx)

	var payload FeedPayload
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.FeedTimeout)
		defer cancel()

		p, err := feed.Fetch(attemptCtx)
		if err != nil {
			utils.Log.Debug("feed fetch attempt failed", utils.Field("feed", feed.Name()),
				utils.Field("attempt", attempt), utils.Field("error", err.Error()))
			return err
		}
		if p == nil {
			return backoff.Permanent(errMalformedFeed)
		}
		payload = p
		return nil
	}, b)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// protocolHosts extracts hostnames of protocols at or above the TVL floor.
// Entries without a usable URL are dropped.
func protocolHosts(protocols []Protocol, threshold float64) []string {
	out := make([]string, 0, len(protocols))
	for _, p := range protocols {
		if p.TVL < threshold || p.URL == "" {
			continue
		}
		host, ok := hostFromURL(p.URL)
		if !ok {
			continue
		}
		if host = Normalize(host); host != "" {
			out = append(out, host)
		}
	}
	return out
}
