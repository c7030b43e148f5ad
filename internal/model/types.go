package model

import "time"

type Category string

const (
	CategoryAllowed Category = "allowed"
	CategoryBlocked Category = "blocked"
	CategoryFuzzy   Category = "fuzzy"
	CategoryUnknown Category = "unknown"
)

// ClassificationResult is the verdict for one queried domain. Unknown means
// "no information", not "safe".
type ClassificationResult struct {
	IsPhishing     bool     `json:"isPhishing"`
	Category       Category `json:"category"`
	MatchedAgainst string   `json:"matchedAgainst,omitempty"`
}

// SnapshotData is the JSON shape of an aggregated domain snapshot.
type SnapshotData struct {
	AllowedDomains []string  `json:"allowedDomains"`
	BlockedDomains []string  `json:"blockedDomains"`
	FuzzyDomains   []string  `json:"fuzzyDomains"`
	BuiltAt        time.Time `json:"builtAt"`
}

// StoredSnapshot is the persisted envelope kept under a single storage key.
type StoredSnapshot struct {
	LastUpdatedTime int64        `json:"lastUpdatedTime"`
	Data            SnapshotData `json:"data"`
}

// HistoryEntry records one published snapshot. Diff is a unified diff of the
// blocked list against the previously published snapshot.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Allowed   int    `json:"allowed"`
	Blocked   int    `json:"blocked"`
	Fuzzy     int    `json:"fuzzy"`
	Diff      string `json:"diff,omitempty"`
}

type EngineStats struct {
	Allowed     int       `json:"allowed"`
	Blocked     int       `json:"blocked"`
	FuzzySeeds  int       `json:"fuzzySeeds"`
	BuiltAt     time.Time `json:"builtAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	CachedItems int       `json:"cachedItems"`
	Refreshing  bool      `json:"refreshing"`
}
