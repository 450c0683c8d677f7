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

// Package iocache implements a read-ahead page cache sitting above the
// block-device backend: pages keyed by aligned offset, fault coalescing
// so concurrent readers of the same page share one backend read, and
// freshness bounded by the cache timeout and by explicit invalidation;
// the backend's mtime is not checked (spec.md §4.3).
package iocache

import (
	"time"

	"github.com/voltrans/voltrans/internal/iovec"
)

// pageSize is the granularity pages are cached and faulted at, matching
// io-cache's default 128KiB page size (IOC_PAGE_SIZE).
const pageSize = 128 * 1024

// alignOffset rounds offset down to the start of the page that contains
// it.
func alignOffset(offset int64) int64 {
	return offset - offset%pageSize
}

// page is one cached, page-size-aligned range of a file's contents. Once
// filled it is immutable; a write or invalidation never mutates a page in
// place, it drops all of the file's pages from the table and a later read
// faults fresh ones in (ioc_page_destroy + re-fault rather than ioc_page
// edit).
type page struct {
	offset   int64
	data     iovec.Vector
	filledAt time.Time // wall-clock time this page was fetched, for freshness checks

	// eof records whether the fault that filled this page reached the
	// backend's end-of-file boundary (the fault reply's errno was ENOENT
	// alongside a successful byte count, the same convention blockdevice's
	// readv signals EOF with). A cache hit inherits this from the page that
	// was faulted in, so EOF-ness survives being served out of cache.
	eof bool
}

// isFresh reports whether the page is still usable: within timeout of
// when it was filled (as of now), and not explicitly invalidated since
// (invalidation drops the page from the table entirely rather than
// flagging it, so reaching this check at all already implies "not
// invalidated" -- ioc_cache_still_valid's mtime-changed branch is
// handled by Table.Invalidate instead of a per-read mtime re-fetch,
// trading one round trip per read for the cost of a slightly larger
// invalidation surface). now comes from the owning Table's clock.Clock
// so freshness windows are deterministic under test.
func (p *page) isFresh(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.filledAt) < timeout
}

func (p *page) len() int {
	return p.data.TotalLen()
}
