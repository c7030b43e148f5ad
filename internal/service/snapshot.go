package service

import (
	"phishguard/internal/model"
	"sort"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the aggregated domain lists. Never mutate
// a Snapshot after it has been handed to a Holder.
type Snapshot struct {
	allowed     map[string]struct{}
	blocked     map[string]struct{}
	allowedList []string // sorted, for deterministic fuzzy iteration
	fuzzySeeds  []string
	builtAt     time.Time
}

// NewSnapshot normalizes and deduplicates the three lists. A host present in
// both allowed and blocked is kept only in blocked.
func NewSnapshot(allowed, blocked, fuzzy []string, builtAt time.Time) *Snapshot {
	s := &Snapshot{
		allowed: make(map[string]struct{}, len(allowed)),
		blocked: make(map[string]struct{}, len(blocked)),
		builtAt: builtAt,
	}

	for _, d := range blocked {
		if host := Normalize(d); host != "" {
			s.blocked[host] = struct{}{}
		}
	}
	for _, d := range allowed {
		host := Normalize(d)
		if host == "" {
			continue
		}
		if _, isBlocked := s.blocked[host]; isBlocked {
			continue
		}
		s.allowed[host] = struct{}{}
	}

	s.allowedList = make([]string, 0, len(s.allowed))
	for host := range s.allowed {
		s.allowedList = append(s.allowedList, host)
	}
	sort.Strings(s.allowedList)

	s.fuzzySeeds = uniqueNormalized(fuzzy)
	return s
}

// EmptySnapshot is what the engine serves before any data is available.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil, nil, nil, time.Time{})
}

func SnapshotFromData(d model.SnapshotData) *Snapshot {
	return NewSnapshot(d.AllowedDomains, d.BlockedDomains, d.FuzzyDomains, d.BuiltAt)
}

func (s *Snapshot) Data() model.SnapshotData {
	blocked := make([]string, 0, len(s.blocked))
	for host := range s.blocked {
		blocked = append(blocked, host)
	}
	sort.Strings(blocked)

	return model.SnapshotData{
		AllowedDomains: append([]string(nil), s.allowedList...),
		BlockedDomains: blocked,
		FuzzyDomains:   append([]string(nil), s.fuzzySeeds...),
		BuiltAt:        s.builtAt,
	}
}

func (s *Snapshot) IsAllowed(host string) bool {
	_, ok := s.allowed[host]
	return ok
}

func (s *Snapshot) IsBlocked(host string) bool {
	_, ok := s.blocked[host]
	return ok
}

func (s *Snapshot) AllowedCount() int { return len(s.allowed) }
func (s *Snapshot) BlockedCount() int { return len(s.blocked) }
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// FuzzySeeds returns the seeds in aggregation order. Callers must not modify
// the returned slice.
func (s *Snapshot) FuzzySeeds() []string { return s.fuzzySeeds }

// AllowedSorted returns the allow-list in ascending order. Callers must not
// modify the returned slice.
func (s *Snapshot) AllowedSorted() []string { return s.allowedList }

// uniqueNormalized keeps the first occurrence of each normalized entry.
func uniqueNormalized(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, d := range items {
		host := Normalize(d)
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}

// Holder publishes the current Snapshot. Readers always observe a complete
// snapshot; Set is a single pointer swap.
type Holder struct {
	value atomic.Pointer[Snapshot]
}

func NewHolder() *Holder {
	h := &Holder{}
	h.value.Store(EmptySnapshot())
	return h
}

func (h *Holder) Get() *Snapshot {
	return h.value.Load()
}

func (h *Holder) Set(s *Snapshot) {
	if s == nil {
		return
	}
	h.value.Store(s)
}
