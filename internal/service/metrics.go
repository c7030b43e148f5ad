package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_classifications_total",
		Help: "Domain classifications by resulting category.",
	}, []string{"category"})

	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_refreshes_total",
		Help: "Snapshot refresh attempts by outcome.",
	}, []string{"outcome"})

	feedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_feed_fetches_total",
		Help: "Feed fetches by feed and outcome.",
	}, []string{"feed", "outcome"})

	snapshotSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "phishguard_snapshot_domains",
		Help: "Domains in the published snapshot by list.",
	}, []string{"list"})
)

func observeSnapshot(s *Snapshot) {
	snapshotSize.WithLabelValues("allowed").Set(float64(s.AllowedCount()))
	snapshotSize.WithLabelValues("blocked").Set(float64(s.BlockedCount()))
	snapshotSize.WithLabelValues("fuzzy").Set(float64(len(s.FuzzySeeds())))
}
