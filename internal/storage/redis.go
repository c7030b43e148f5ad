package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"phishguard/internal/model"
	"sort"
	"strings"
	"time"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/redis/go-redis/v9"
)

const (
	historyKey   = "snapshot_history"
	historyLimit = 20
	maxDiffBytes = 64 << 10

	diffTruncated = "... (truncated)\n"
)

type Storage struct {
	Client *redis.Client
}

func NewStorage(host, port string) *Storage {
	rdb := redis.NewClient(&redis.Options{
		Addr: host + ":" + port,
		DB:   0,
	})
	return &Storage{Client: rdb}
}

// Get returns the value stored under key. A missing key is reported as
// ok=false with a nil error.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	return s.Client.Set(ctx, key, value, 0).Err()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *Storage) Close() error {
	return s.Client.Close()
}

// AddSnapshotHistory records a published snapshot, keeping the newest
// historyLimit entries. When prev is known the entry carries a unified diff
// of the blocked list.
func (s *Storage) AddSnapshotHistory(ctx context.Context, prev, next *model.SnapshotData) error {
	if next == nil {
		return nil
	}

	entry := model.HistoryEntry{
		Timestamp: next.BuiltAt.UTC().Format(time.RFC3339),
		Allowed:   len(next.AllowedDomains),
		Blocked:   len(next.BlockedDomains),
		Fuzzy:     len(next.FuzzyDomains),
	}
	if prev != nil {
		entry.Diff = BlockedDiff(prev.BlockedDomains, next.BlockedDomains)
	}

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	pipe := s.Client.Pipeline()
	pipe.LPush(ctx, historyKey, string(entryBytes))
	pipe.LTrim(ctx, historyKey, 0, historyLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetSnapshotHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	val, err := s.Client.LRange(ctx, historyKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]model.HistoryEntry, 0, len(val))
	for _, v := range val {
		var entry model.HistoryEntry
		if err := json.Unmarshal([]byte(v), &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// BlockedDiff renders a unified diff between two domain lists. Lists are
// sorted first so feed ordering changes do not show up as churn.
func BlockedDiff(before, after []string) string {
	a := joinSorted(before)
	b := joinSorted(after)
	if a == b {
		return ""
	}

	edits := myers.ComputeEdits(span.URIFromPath("blocked"), a, b)
	diff := fmt.Sprint(gotextdiff.ToUnified("previous", "current", a, edits))
	if len(diff) > maxDiffBytes {
		// Cut on a line boundary so no host (or rune) is split.
		cut := strings.LastIndexByte(diff[:maxDiffBytes], '\n') + 1
		diff = diff[:cut] + diffTruncated
	}
	return diff
}

func joinSorted(items []string) string {
	if len(items) == 0 {
		return ""
	}
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n") + "\n"
}
