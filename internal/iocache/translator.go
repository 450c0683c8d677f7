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
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/fop"
	"github.com/voltrans/voltrans/internal/inode"
	"github.com/voltrans/voltrans/internal/iovec"
	"github.com/voltrans/voltrans/internal/metrics"
	"github.com/voltrans/voltrans/internal/translator"
)

// Translator is the read-ahead page cache. It intercepts readv to serve
// from cached pages (faulting through FirstChild on a miss, with
// concurrent faults on the same page collapsed into one backend call via
// singleflight -- the Go idiom for io-cache's wait-queue-per-page
// mechanism), and intercepts writev, truncate, ftruncate, discard and
// zerofill to drop the file's cached pages before forwarding.
type Translator struct {
	*translator.Base

	table *Table
	group singleflight.Group

	// inflight routes an Unwind reply for an internally-issued fault call
	// back to the closure that issued it, instead of letting it fall
	// through to Parent -- the caller of WindDown owns the frame it
	// creates, so keying off the frame pointer is unambiguous.
	inflight sync.Map // *fop.Frame -> func(fop.Reply)

	// metrics is nil-safe: a Translator built without WithMetrics simply
	// skips recording, so tests can construct one without a registry.
	metrics *metrics.Registry
}

// New builds a Translator backed by table.
func New(name string, table *Table) *Translator {
	t := &Translator{Base: translator.NewBase(name), table: table}

	t.OnWind(fop.KindReadv, t.readv)
	t.OnWind(fop.KindWritev, t.writev)
	t.OnWind(fop.KindTruncate, t.invalidateThenForward)
	t.OnWind(fop.KindFtruncate, t.invalidateThenForward)
	t.OnWind(fop.KindDiscard, t.invalidateThenForward)
	t.OnWind(fop.KindZerofill, t.invalidateThenForward)
	t.OnUnwind(fop.KindReadv, t.onChildUnwind)

	return t
}

// WithMetrics attaches reg so cache hits, misses, and evictions are
// recorded; returns t for chaining at construction time.
func (t *Translator) WithMetrics(reg *metrics.Registry) *Translator {
	t.metrics = reg
	t.table.metrics = reg
	return t
}

func (t *Translator) reply(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	translator.UnwindUp(t, fr, k, reply)
}

func (t *Translator) forward(fr *fop.Frame, k fop.Kind, args fop.Args) {
	child := t.FirstChild()
	if child == nil {
		t.reply(fr, k, fop.UnknownKindReply())
		return
	}
	child.(translator.Translator).Wind(fr, k, args)
}

func (t *Translator) invalidateThenForward(fr *fop.Frame, k fop.Kind, args fop.Args) {
	if gfid := gfidOf(args.Fd); gfid != "" {
		t.table.Invalidate(gfid)
	}
	t.forward(fr, k, args)
}

// writev drops every cached page of the file before forwarding the write,
// so a subsequent read never serves data the write is about to overwrite
// -- the cache is flushed for the whole file rather than patched in
// place.
func (t *Translator) writev(fr *fop.Frame, k fop.Kind, args fop.Args) {
	if gfid := gfidOf(args.Fd); gfid != "" {
		t.table.Invalidate(gfid)
	}
	t.forward(fr, k, args)
}

// readv serves from the cache when possible, otherwise faults the
// covering pages in through FirstChild. A request may span several pages
// (spec.md §4.3 read path steps 1-4: round the request down/up to page
// boundaries, fault or validate each page it touches independently), so
// every aligned offset in [offset, offset+size) is resolved on its own --
// cache hit, in-flight fault coalesced via singleflight, or a fresh fault
// -- before the pages are stitched into one reply.
func (t *Translator) readv(fr *fop.Frame, k fop.Kind, args fop.Args) {
	in := args.Fd.Inode()
	gfid := in.Gfid().String()
	entry := t.table.entryFor(gfid, args.Loc.Name)

	start := alignOffset(args.Offset)
	end := args.Offset + int64(args.Size)
	if end <= start {
		end = start + 1
	}

	pages := make([]*page, 0, (end-start+pageSize-1)/pageSize)
	for off := start; off < end; off += pageSize {
		p, err := t.pageFor(in, entry, gfid, off)
		if err != nil {
			t.reply(fr, k, fop.Err(toErrno(err)))
			return
		}
		pages = append(pages, p)
	}
	t.replyFromPages(fr, k, pages, args)
}

// pageFor resolves the single aligned page at off: a fresh cache hit, or a
// fault coalesced with any other concurrent caller requesting the same
// page (spec.md §4.3 "two readers of the same page never issue two backend
// reads").
func (t *Translator) pageFor(in *inode.Inode, entry *inodeEntry, gfid string, aligned int64) (*page, error) {
	entry.mu.Lock()
	entry.weight++
	cached, ok := entry.pages[aligned]
	entry.mu.Unlock()

	if ok && cached.isFresh(t.table.Now(), t.table.cfg.Timeout) {
		if t.metrics != nil {
			t.metrics.CacheHits.Inc()
		}
		return cached, nil
	}
	if t.metrics != nil {
		t.metrics.CacheMisses.Inc()
	}

	key := fmt.Sprintf("%s:%d", gfid, aligned)
	v, err, _ := t.group.Do(key, func() (any, error) {
		return t.fault(in, entry, aligned)
	})
	if err != nil {
		return nil, err
	}
	return v.(*page), nil
}

// fault issues a synchronous internal readv against FirstChild for the
// page-aligned range starting at aligned, blocking until the reply
// arrives (our translators run the whole wind/unwind chain synchronously
// within the calling goroutine, so this never actually sleeps on real
// I/O -- it sleeps only behind the child's own blocking syscalls).
func (t *Translator) fault(in *inode.Inode, entry *inodeEntry, aligned int64) (*page, error) {
	child := t.FirstChild()
	if child == nil {
		return nil, unix.ENOSYS
	}

	root := fop.NewRoot(0, 0, 0)
	innerFr := fop.NewFrame(root, t)

	type result struct {
		reply fop.Reply
	}
	done := make(chan result, 1)
	t.inflight.Store(innerFr, func(reply fop.Reply) {
		done <- result{reply: reply}
	})
	defer t.inflight.Delete(innerFr)

	fd := inode.NewFd(in, 0, nil)
	defer fd.Unref()
	child.(translator.Translator).Wind(innerFr, fop.KindReadv, fop.Args{
		Fd:     fd,
		Offset: aligned,
		Size:   pageSize,
	})

	res := <-done
	if res.reply.OpRet < 0 {
		return nil, res.reply.OpErrno
	}

	p := &page{
		offset:   aligned,
		data:     res.reply.Vector,
		filledAt: t.table.Now(),
		eof:      res.reply.OpErrno == unix.ENOENT,
	}
	entry.mu.Lock()
	old := entry.pages[aligned]
	entry.pages[aligned] = p
	entry.mu.Unlock()
	delta := int64(p.len())
	if old != nil {
		delta -= int64(old.len())
	}
	t.table.recordFill(entry, delta)

	return p, nil
}

// onChildUnwind is registered against the base Unwind dispatch so a
// readv reply arriving from FirstChild is routed to whichever fault()
// call is waiting for this exact frame, instead of the default
// forward-to-Parent behavior Base would otherwise apply.
func (t *Translator) onChildUnwind(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	if v, ok := t.inflight.Load(fr); ok {
		v.(func(fop.Reply))(reply)
		return
	}
	translator.UnwindUp(t, fr, k, reply)
}

// replyFromPages stitches the (already offset-ordered) pages covering a
// request into one reply, trimming to the caller's requested sub-range and
// to however much data the pages actually hold -- a short last page (EOF,
// or a backend short-read) trims the reply rather than erroring, matching
// spec.md §4.3 step 7's "if the last page lies entirely beyond ia_size,
// its contribution is trimmed". If the request consumes all the way through
// a page faulted at EOF, the reply carries ENOENT in OpErrno alongside its
// successful byte count, the same convention blockdevice's readv uses, so a
// cached read's EOF signal is indistinguishable from an uncached one.
func (t *Translator) replyFromPages(fr *fop.Frame, k fop.Kind, pages []*page, args fop.Args) {
	if len(pages) == 0 {
		t.reply(fr, k, fop.OK(0))
		return
	}

	var flat []byte
	for _, p := range pages {
		flat = append(flat, p.data.Flatten()...)
	}

	rel := args.Offset - pages[0].offset
	if rel < 0 || rel > int64(len(flat)) {
		t.reply(fr, k, fop.Err(unix.EINVAL))
		return
	}
	end := rel + int64(args.Size)
	atEOF := pages[len(pages)-1].eof && end >= int64(len(flat))
	if end > int64(len(flat)) {
		end = int64(len(flat))
	}

	sliced := iovec.Vector{iovec.New(append([]byte(nil), flat[rel:end]...))}
	reply := fop.Reply{OpRet: end - rel, Vector: sliced}
	if atEOF {
		reply.OpErrno = unix.ENOENT
	}
	t.reply(fr, k, reply)
}

func gfidOf(fd *inode.Fd) string {
	if fd == nil {
		return ""
	}
	return fd.Inode().Gfid().String()
}

func toErrno(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}
