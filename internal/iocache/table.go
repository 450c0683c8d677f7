// Copyright 2026 The Voltrans Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package iocache

import (
	"container/list"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voltrans/voltrans/clock"
	"github.com/voltrans/voltrans/internal/metrics"
)

// Priority maps a filename glob pattern to a relative priority, exactly
// as io-cache.h's struct ioc_priority binds a pattern to a weight read
// from the "cache.priority" config string (spec.md §6).
type Priority struct {
	Pattern  string
	Priority int
}

// ParsePriorities parses the "cache.priority" config value -- a
// comma-separated list of "pattern:priority" pairs, e.g.
// "*.gz:5,/var/log/*:1" -- the Go-idiomatic stand-in for
// io-cache.c's parsing of the "priority" option with its own
// gf_asprintf-based splitter. An empty string parses to no priorities
// (every file defaults to priority 0).
func ParsePriorities(raw string) ([]Priority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	pairs := strings.Split(raw, ",")
	out := make([]Priority, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.LastIndex(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("iocache: malformed priority entry %q, want pattern:priority", pair)
		}
		pattern, weightStr := pair[:idx], pair[idx+1:]
		weight, err := strconv.Atoi(weightStr)
		if err != nil {
			return nil, fmt.Errorf("iocache: malformed priority weight in %q: %w", pair, err)
		}
		out = append(out, Priority{Pattern: pattern, Priority: weight})
	}
	return out, nil
}

// Config carries every tunable the page cache reads at startup, bound
// from cfg via "cache.*" keys.
type Config struct {
	MaxSizeBytes int64
	Timeout      time.Duration
	MinFileSize  uint64
	MaxFileSize  uint64
	Priorities   []Priority
}

// inodeEntry holds every cached page for one file, plus the LRU/priority
// bookkeeping ioc_inode_t keeps alongside them.
type inodeEntry struct {
	mu       sync.Mutex
	pages    map[int64]*page
	priority int
	weight   uint32 // bumped on every read, ioc_inode's "weight" field
	lruElem  *list.Element
}

// Table is the process-wide page cache: one inodeEntry per cached file,
// a single LRU evicted lowest priority first, and a running total of bytes
// cached so eviction can enforce Config.MaxSizeBytes.
type Table struct {
	mu sync.Mutex

	cfg Config

	entries map[string]*inodeEntry // keyed by gfid string
	lru     *list.List             // most-recently-used at the back
	used    int64

	// clk drives every freshness timestamp this table hands out, so
	// tests can substitute clock.FakeClock/SimulatedClock instead of
	// racing real wall-clock timeouts (spec.md §4.3's cache_timeout
	// window).
	clk clock.Clock

	// metrics is nil-safe; set via Translator.WithMetrics.
	metrics *metrics.Registry
}

type lruNode struct {
	key  string
	size int64
}

// NewTable constructs an empty cache table under cfg, timestamping pages
// with clock.RealClock{}.
func NewTable(cfg Config) *Table {
	return &Table{
		cfg:     cfg,
		entries: make(map[string]*inodeEntry),
		lru:     list.New(),
		clk:     clock.RealClock{},
	}
}

// WithClock overrides the table's time source, e.g. with a
// clock.SimulatedClock in freshness-window tests.
func (t *Table) WithClock(clk clock.Clock) *Table {
	t.clk = clk
	return t
}

// Now returns the table's current time, used by Translator to stamp
// freshly filled pages.
func (t *Table) Now() time.Time {
	return t.clk.Now()
}

// Cacheable reports whether a file of the given size should be cached at
// all -- io-cache skips files below min-file-size (not worth the
// overhead) and above max-file-size (too large to usefully cache).
func (t *Table) Cacheable(size uint64) bool {
	if t.cfg.MinFileSize > 0 && size < t.cfg.MinFileSize {
		return false
	}
	if t.cfg.MaxFileSize > 0 && size > t.cfg.MaxFileSize {
		return false
	}
	return true
}

// priorityFor matches name against the configured priority patterns,
// returning the first match's priority or 0 (io-cache's default weight).
func (t *Table) priorityFor(name string) int {
	for _, p := range t.cfg.Priorities {
		if matchPattern(p.Pattern, name) {
			return p.Priority
		}
	}
	return 0
}

// matchPattern is a small subset of glob matching -- "*" as a suffix or
// prefix wildcard, which covers every pattern io-cache's own
// documentation shows ("*.gz", "/var/log/*").
func matchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == name
	}
}

// entryFor returns (creating if necessary) the inodeEntry for gfid,
// touching its LRU position.
func (t *Table) entryFor(gfid, name string) *inodeEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[gfid]
	if !ok {
		e = &inodeEntry{pages: make(map[int64]*page), priority: t.priorityFor(name)}
		t.entries[gfid] = e
		e.lruElem = t.lru.PushBack(&lruNode{key: gfid})
		return e
	}
	t.lru.MoveToBack(e.lruElem)
	return e
}

// recordFill accounts n bytes against the global budget, evicting
// lowest-priority, least-recently-used entries until there is room --
// ioc_prune's job, expressed over a single combined LRU ordered by
// recency within each priority tier instead of io-cache's per-priority
// list array, since Go's container/list plus a priority comparison on
// eviction achieves the same ordering without hand-rolled buckets.
func (t *Table) recordFill(e *inodeEntry, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.used += n
	if e.lruElem != nil {
		e.lruElem.Value.(*lruNode).size += n
	}
	t.evictLocked()
	t.reportUsedLocked()
}

func (t *Table) reportUsedLocked() {
	if t.metrics != nil {
		t.metrics.CacheUsedBytes.Set(float64(t.used))
	}
}

func (t *Table) evictLocked() {
	if t.cfg.MaxSizeBytes <= 0 {
		return
	}
	for t.used > t.cfg.MaxSizeBytes {
		victim := t.pickEvictionVictimLocked()
		if victim == nil {
			return
		}
		t.evictEntryLocked(victim)
	}
}

// pickEvictionVictimLocked walks the whole LRU from the front (least
// recently touched) and returns the lowest-priority entry, the least
// recently used one among equals, mirroring ioc_prune's "prefer low
// priority, break ties by LRU order" rule without needing one list per
// priority value.
func (t *Table) pickEvictionVictimLocked() *list.Element {
	var best *list.Element
	bestPriority := int(^uint(0) >> 1)

	for elem := t.lru.Front(); elem != nil; elem = elem.Next() {
		node := elem.Value.(*lruNode)
		entry, ok := t.entries[node.key]
		if !ok {
			continue
		}
		if entry.priority < bestPriority {
			bestPriority = entry.priority
			best = elem
		}
	}
	return best
}

func (t *Table) evictEntryLocked(elem *list.Element) {
	node := elem.Value.(*lruNode)
	if entry, ok := t.entries[node.key]; ok {
		entry.mu.Lock()
		entry.pages = make(map[int64]*page)
		entry.mu.Unlock()
	}
	t.used -= node.size
	delete(t.entries, node.key)
	t.lru.Remove(elem)
	if t.metrics != nil {
		t.metrics.CacheEvictions.Inc()
	}
}

// Invalidate drops every cached page for gfid, used both on a local write
// and on an inbound upcall invalidation event (spec.md §4.4).
func (t *Table) Invalidate(gfid string) {
	t.mu.Lock()
	e, ok := t.entries[gfid]
	if ok && e.lruElem != nil {
		node := e.lruElem.Value.(*lruNode)
		t.used -= node.size
		node.size = 0
		t.reportUsedLocked()
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.pages = make(map[int64]*page)
	e.mu.Unlock()
}
