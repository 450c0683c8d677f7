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

// Package upcall pushes cache-invalidation notifications to clients that
// have registered interest in an inode, and reaps client registrations
// that have gone stale (spec.md §4.4). Clients register through Register
// (RecordAccess only refreshes an existing registration) and are dropped by the
// reaper once they have been silent for twice the configured timeout --
// original_source/xlators/features/upcall/src/upcall-internal.c's
// upcall_cleanup_expired_clients's "now - access_time > 2*timeout" rule,
// polled every timeout/2 by upcall_reaper_thread.
package upcall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voltrans/voltrans/clock"
	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/logger"
	"github.com/voltrans/voltrans/internal/metrics"
	"github.com/voltrans/voltrans/internal/rotbuff"
)

// RegisteredXattrs is the fixed set of xattr keys whose change triggers a
// cache-invalidation event, mirroring the hardcoded list the original
// checks a SETXATTR/REMOVEXATTR key against before bothering to notify
// anyone (spec.md §4.4, SPEC_FULL.md §3.1).
var RegisteredXattrs = map[string]bool{
	"security.capability":      true,
	"system.posix_acl_access":  true,
	"system.posix_acl_default": true,
	"trusted.afr.pending":      true,
	"trusted.afr.dirty":        true,
}

// EventKind distinguishes the shapes of invalidation event a client can
// receive.
type EventKind int

const (
	EventAttr EventKind = iota
	EventXattr
	EventContent
	EventRename
)

// Flags is the bitmask upcall-internal.h's up_event carries: which facets
// of an inode changed, so a client can decide whether its own cached copy
// needs re-fetching or can simply be re-validated in place.
type Flags uint32

const (
	UpWrite         Flags = 1 << iota // content changed (write, discard, zerofill, fallocate)
	UpAttr                            // mode/uid/gid changed
	UpXattr                           // an xattr was set
	UpXattrRM                         // an xattr was removed
	UpNlink                           // link count changed (link, unlink, rename)
	UpParentDentry                    // a directory's entry list changed (create, mkdir, rmdir, rename)
	UpTimes                           // atime/mtime/ctime changed
	UpForget                          // the inode is being evicted client-side
	UpUpdateClient                    // client should refresh its cached client-uid mapping
)

// Event is one invalidation pushed to a registered client, the Go shape
// of spec.md §6's tagged upcall record: which inode changed (Gfid), what
// changed about it (Flags), the post-operation attributes (Stat), the
// parent directory's attributes before and after for name-changing FOPs
// (OldPStat/PStat), any xattr values the FOP touched (Dict), and how long
// the client may treat its own cached copy as valid before revalidating
// (ExpireTimeAttr).
type Event struct {
	Kind  EventKind
	Gfid  string
	Flags Flags

	Stat     iatt.Iatt
	PStat    iatt.Iatt
	OldPStat iatt.Iatt

	Dict map[string][]byte

	ExpireTimeAttr time.Duration
}

func eventKindLabel(k EventKind) string {
	switch k {
	case EventAttr:
		return "attr"
	case EventXattr:
		return "xattr"
	case EventContent:
		return "content"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// client is one registered watcher of an inode: an opaque id (the
// client_uid string in the original) and the last time it was seen.
type client struct {
	id         string
	accessTime time.Time
	notify     chan<- Event
}

// inodeRegistry is the per-inode client list, upcall_inode_ctx_t reduced
// to what this Go port needs.
type inodeRegistry struct {
	mu      sync.Mutex
	clients map[string]*client
}

// Registry is the process-wide upcall table: one inodeRegistry per gfid
// that has at least one registered client, plus the reaper that trims
// both expired clients and emptied-out inode entries.
type Registry struct {
	mu      sync.Mutex
	inodes  map[string]*inodeRegistry
	timeout time.Duration

	// clk drives every access-time stamp and the reaper's staleness
	// comparison, so reaper behavior can be driven deterministically in
	// tests via clock.SimulatedClock instead of sleeping real time.
	clk clock.Clock

	// trace is a rotational buffer of broadcast events, drained
	// periodically by FlushTrace for the invalidation activity log
	// (spec.md §4.4's "observable upcall activity" note).
	trace *rotbuff.Buffer

	// metrics is nil-safe; set via WithMetrics.
	metrics *metrics.Registry

	stop chan struct{}
	wg   sync.WaitGroup
}

// WithMetrics attaches reg so broadcasts and registered-client count
// are recorded; returns r for chaining at construction time.
func (r *Registry) WithMetrics(reg *metrics.Registry) *Registry {
	r.metrics = reg
	return r
}

// WithClock overrides the registry's time source, e.g. with a
// clock.SimulatedClock in reaper-timing tests.
func (r *Registry) WithClock(clk clock.Clock) *Registry {
	r.clk = clk
	return r
}

// NewRegistry builds a Registry with the configured invalidation timeout
// (spec.md §6 "upcall.cache-invalidation-timeout"). Call Start to launch
// the reaper.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		inodes:  make(map[string]*inodeRegistry),
		timeout: timeout,
		trace:   rotbuff.New(2),
		stop:    make(chan struct{}),
		clk:     clock.RealClock{},
	}
}

// Register records that client id is watching gfid and wants events
// delivered on notify. Re-registering the same (gfid, id) pair refreshes
// its access time instead of creating a duplicate entry.
func (r *Registry) Register(gfid, id string, notify chan<- Event) {
	reg := r.inodeRegistryFor(gfid)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if c, ok := reg.clients[id]; ok {
		c.accessTime = r.clk.Now()
		c.notify = notify
		return
	}
	reg.clients[id] = &client{id: id, accessTime: r.clk.Now(), notify: notify}
	if r.metrics != nil {
		r.metrics.UpcallClientCount.Inc()
	}
}

// RecordAccess refreshes id's access time on gfid without changing its
// notify channel -- called by the upcall Translator on lookup, open, readv
// and every mutating FOP it handles, not just at the initial
// registration, so the reaper's staleness clock tracks real activity.
func (r *Registry) RecordAccess(gfid, id string) {
	r.mu.Lock()
	reg, ok := r.inodes[gfid]
	r.mu.Unlock()
	if !ok {
		return
	}
	reg.mu.Lock()
	if c, ok := reg.clients[id]; ok {
		c.accessTime = r.clk.Now()
	}
	reg.mu.Unlock()
}

func (r *Registry) inodeRegistryFor(gfid string) *inodeRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.inodes[gfid]
	if !ok {
		reg = &inodeRegistry{clients: make(map[string]*client)}
		r.inodes[gfid] = reg
	}
	return reg
}

// Broadcast delivers ev to every client registered on gfid, via
// golang.org/x/sync/errgroup so a slow or blocked client's channel send
// doesn't stall delivery to the others -- the Go equivalent of the
// original dispatching one notification RPC per client without waiting
// for earlier ones to finish.
func (r *Registry) Broadcast(ctx context.Context, ev Event) {
	if ev.ExpireTimeAttr == 0 {
		ev.ExpireTimeAttr = r.timeout
	}
	r.recordTrace(ev)
	if r.metrics != nil {
		r.metrics.UpcallBroadcasts.WithLabelValues(eventKindLabel(ev.Kind)).Inc()
	}

	r.mu.Lock()
	reg, ok := r.inodes[ev.Gfid]
	r.mu.Unlock()
	if !ok {
		return
	}

	reg.mu.Lock()
	targets := make([]*client, 0, len(reg.clients))
	for _, c := range reg.clients {
		targets = append(targets, c)
	}
	reg.mu.Unlock()

	broadcast(ctx, targets, ev)
}

// recordTrace appends ev to the trace ring without blocking on a
// flusher; rotbuff.Reserve/Complete is a single reservation here since
// the write is already fully formed before it's appended.
func (r *Registry) recordTrace(ev Event) {
	line := []byte(fmt.Sprintf("%d %s\n", ev.Kind, ev.Gfid))
	h := r.trace.Reserve(line)
	rotbuff.Complete(h)
}

// FlushTrace rotates the trace buffer, if it has any pending entries,
// and hands the accumulated bytes to fn. Returns false if there was
// nothing to flush (ErrEmpty) or flushing would starve new appends
// (ErrWouldStarve).
func (r *Registry) FlushTrace(fn func(data []byte)) bool {
	h, err := r.trace.TryRotate()
	if err != nil {
		return false
	}
	r.trace.Drain(h, fn)
	return true
}

// afrPendingKeys are the registered xattrs whose value gets the
// all-zero-means-healed exemption (spec.md §4.3: "all-zero afr pending
// counters (an 'everything healed' no-op)"). trusted.afr.dirty is
// registered but not exempted here -- the original only special-cases the
// pending counters, not the dirty marker.
var afrPendingKeys = map[string]bool{
	"trusted.afr.pending": true,
}

// isAllZero reports whether every byte of v is zero, the wire shape an
// AFR pending-counters xattr takes once a heal has fully caught up.
func isAllZero(v []byte) bool {
	for _, b := range v {
		if b != 0 {
			return false
		}
	}
	return len(v) > 0
}

// NotifyXattrChange broadcasts a setxattr invalidation, applying spec.md
// §4.3's two xattr filters in order: (a) key must be in RegisteredXattrs,
// and (b) an all-zero afr pending-counters value is suppressed as a no-op
// healed marker rather than broadcast as a real change.
func (r *Registry) NotifyXattrChange(ctx context.Context, gfid, key string, value []byte) {
	if !RegisteredXattrs[key] {
		return
	}
	if afrPendingKeys[key] && isAllZero(value) {
		return
	}
	r.Broadcast(ctx, Event{
		Kind:  EventXattr,
		Gfid:  gfid,
		Flags: UpXattr,
		Dict:  map[string][]byte{key: value},
	})
}

// NotifyXattrRemove broadcasts a removexattr invalidation -- the
// UpXattrRM counterpart of NotifyXattrChange. Removal carries no value to
// filter, so only the registered-keys check applies.
func (r *Registry) NotifyXattrRemove(ctx context.Context, gfid, key string) {
	if !RegisteredXattrs[key] {
		return
	}
	r.Broadcast(ctx, Event{
		Kind:  EventXattr,
		Gfid:  gfid,
		Flags: UpXattrRM,
		Dict:  map[string][]byte{key: nil},
	})
}

// Start launches the reaper goroutine, polling every timeout/2
// (upcall_reaper_thread's cadence) and dropping clients silent for more
// than 2*timeout.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.reap()
}

// Stop signals the reaper to exit and waits for it.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Registry) reap() {
	defer r.wg.Done()

	interval := r.timeout / 2
	if interval <= 0 {
		interval = time.Second
	}

	for {
		select {
		case <-r.stop:
			return
		case <-r.clk.After(interval):
			r.reapOnce()
		}
	}
}

func (r *Registry) reapOnce() {
	now := r.clk.Now()
	stale := 2 * r.timeout

	r.mu.Lock()
	gfids := make([]string, 0, len(r.inodes))
	for g := range r.inodes {
		gfids = append(gfids, g)
	}
	r.mu.Unlock()

	for _, gfid := range gfids {
		r.mu.Lock()
		reg, ok := r.inodes[gfid]
		r.mu.Unlock()
		if !ok {
			continue
		}

		reg.mu.Lock()
		for id, c := range reg.clients {
			if now.Sub(c.accessTime) > stale {
				logger.Tracef("upcall: reaping expired client %s for %s", id, gfid)
				delete(reg.clients, id)
				if r.metrics != nil {
					r.metrics.UpcallClientCount.Dec()
				}
			}
		}
		empty := len(reg.clients) == 0
		reg.mu.Unlock()

		if empty {
			r.mu.Lock()
			if reg2, ok := r.inodes[gfid]; ok && reg2 == reg {
				delete(r.inodes, gfid)
			}
			r.mu.Unlock()
		}
	}
}
