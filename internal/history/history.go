// Package history keeps a bounded window of recent position snapshots.
//
// The clock driver calls Observe after every tick; the stream and API layers read
// from here instead of taking the control center lock on every request. Once the
// window is full the oldest snapshot is evicted.
package history

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/metrics"
)

// DefaultCapacity holds ten minutes of one-second ticks.
const DefaultCapacity = 600

// Source produces the snapshot to record. control.Center satisfies it.
type Source interface {
	Snapshot() control.Snapshot
}

// History is an LRU of snapshots keyed by tick time.
// Safe for concurrent use by multiple goroutines.
type History struct {
	source   Source
	entries  *lru.Cache[int64, control.Snapshot]
	capacity int
	logger   *slog.Logger

	mu     sync.RWMutex
	latest int64
	have   bool

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates an empty history that records from source.
func New(source Source, capacity int, logger *slog.Logger) (*History, error) {
	h := &History{source: source, capacity: capacity, logger: logger}
	entries, err := lru.NewWithEvict(capacity, func(int64, control.Snapshot) {
		h.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	h.entries = entries

	logger.Info("history initialized", "component", "history", "capacity", capacity)
	return h, nil
}

// Observe records the source snapshot. It satisfies clock.Observer.
func (h *History) Observe(now time.Time) {
	snap := h.source.Snapshot()
	if snap.Timestamp.IsZero() {
		return
	}
	h.put(snap)
	h.logger.Debug("snapshot recorded",
		"component", "history",
		"timestamp", snap.Timestamp.UTC().Format(time.RFC3339Nano),
		"airplanes", len(snap.Positions),
	)
}

func (h *History) put(snap control.Snapshot) {
	key := snap.Timestamp.UnixNano()
	h.entries.Add(key, snap)

	h.mu.Lock()
	if !h.have || key > h.latest {
		h.latest = key
		h.have = true
	}
	h.mu.Unlock()

	metrics.SetHistoryEntries(h.entries.Len())
}

// Get returns the snapshot recorded for exactly t.
func (h *History) Get(t time.Time) (control.Snapshot, bool) {
	snap, ok := h.entries.Peek(t.UnixNano())
	h.count(ok)
	return snap, ok
}

// Latest returns the most recent snapshot.
func (h *History) Latest() (control.Snapshot, bool) {
	h.mu.RLock()
	key, have := h.latest, h.have
	h.mu.RUnlock()

	if !have {
		h.count(false)
		return control.Snapshot{}, false
	}
	snap, ok := h.entries.Peek(key)
	h.count(ok)
	return snap, ok
}

// Recent returns up to n snapshots ending with the latest, ordered oldest first.
// Used to build trails.
func (h *History) Recent(n int) []control.Snapshot {
	if n <= 0 {
		return nil
	}

	keys := h.entries.Keys()
	slices.Sort(keys)
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	out := make([]control.Snapshot, 0, len(keys))
	for _, k := range keys {
		if snap, ok := h.entries.Peek(k); ok {
			out = append(out, snap)
		}
	}
	return out
}

func (h *History) count(hit bool) {
	if hit {
		h.hits.Add(1)
		metrics.IncHistoryHits()
		return
	}
	h.misses.Add(1)
	metrics.IncHistoryMisses()
}

// Stats holds history statistics for the stats endpoint.
type Stats struct {
	Entries   int       `json:"entries"`
	Capacity  int       `json:"capacity"`
	Oldest    time.Time `json:"oldest_timestamp"`
	Newest    time.Time `json:"newest_timestamp"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
}

// Stats returns current history statistics.
func (h *History) Stats() Stats {
	keys := h.entries.Keys()
	s := Stats{
		Entries:   len(keys),
		Capacity:  h.capacity,
		Hits:      h.hits.Load(),
		Misses:    h.misses.Load(),
		Evictions: h.evictions.Load(),
	}
	if len(keys) > 0 {
		s.Oldest = time.Unix(0, slices.Min(keys)).UTC()
		s.Newest = time.Unix(0, slices.Max(keys)).UTC()
	}
	return s
}
