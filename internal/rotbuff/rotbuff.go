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

// Package rotbuff implements a producer/consumer rotational buffer:
// writers reserve space in the current slot without ever blocking on a
// reader, and a reader switches slots only when it wants to drain one,
// grounded directly on original_source/libglusterfs/src/rot-buffs.c.
// It backs the upcall Registry's broadcast trace, which records each
// notification event before a consumer flushes it.
package rotbuff

import (
	"container/list"
	"errors"
	"math"
	"sync"
)

// defaultSlotCount mirrors ROT_BUFF_DEFAULT_COUNT.
const defaultSlotCount = 2

// lowWatermark/highWatermark mirror RVEC_LOW_WATERMARK_COUNT and
// RVEC_HIGH_WATERMARK_COUNT: a slot whose backing-buffer count sits in
// this range is left alone on drain: shrinking is reserved for slots
// that grew well past ordinary usage.
const (
	lowWatermark  = 1
	highWatermark = 1 << 4
)

// ErrEmpty is returned by TryRotate when the current slot has nothing
// pending (RBUF_EMPTY).
var ErrEmpty = errors.New("rotbuff: current slot is empty")

// ErrWouldStarve is returned by TryRotate when rotating would leave no
// free slot for producers (RBUF_WOULD_STARVE).
var ErrWouldStarve = errors.New("rotbuff: rotating would starve writers")

// slot is one rotational buffer, rbuf_list_t reduced to what a Go
// byte-slice-backed port needs: instead of a linked list of fixed-size
// iovecs, a slot keeps growing a single []byte and tracks how many
// times it needed to grow, so the geometric shrink below still has a
// meaningful "total" to decay.
type slot struct {
	mu   sync.Mutex
	buf  []byte
	caps int // number of times buf's capacity needed to grow since last reset

	cmu       sync.Mutex
	cond      *sync.Cond
	pending   int
	completed int
	awaiting  bool

	elem *list.Element
}

func newSlot() *slot {
	s := &slot{buf: make([]byte, 0, allocSize), caps: 1}
	s.cond = sync.NewCond(&s.cmu)
	return s
}

// allocSize mirrors ROT_BUFF_ALLOC_SIZE, the per-vector allocation
// quantum the original doubles into as a slot's appended writes
// outgrow the current buffer.
const allocSize = 64 * 1024

// Buffer is the rotational buffer pool, rbuf_t.
type Buffer struct {
	mu      sync.Mutex
	free    *list.List // of *slot, front = current
	current *slot
}

// New builds a Buffer with count slots (count <= 0 defaults to
// ROT_BUFF_DEFAULT_COUNT).
func New(count int) *Buffer {
	if count <= 0 {
		count = defaultSlotCount
	}
	b := &Buffer{free: list.New()}
	for i := 0; i < count; i++ {
		s := newSlot()
		s.elem = b.free.PushBack(s)
	}
	b.current = b.free.Front().Value.(*slot)
	return b
}

// Reserve appends bytes to the current slot's buffer and returns an
// opaque handle to pass to Complete once the write is durable. Unlike
// the original's fixed ROT_BUFF_ALLOC_SIZE ceiling, the slot's buffer
// grows as needed -- Go slices make the multi-iovec workaround
// unnecessary -- but growth is still counted so rlist_shrink_vector's
// decay has a basis to shrink against.
func (b *Buffer) Reserve(data []byte) any {
	b.mu.Lock()
	s := b.current
	b.mu.Unlock()

	s.mu.Lock()
	before := cap(s.buf)
	s.buf = append(s.buf, data...)
	if cap(s.buf) > before {
		s.caps++
	}
	s.mu.Unlock()

	s.cmu.Lock()
	s.pending++
	s.cmu.Unlock()

	return s
}

// Complete marks one reservation on handle as durably written,
// waking a waiting consumer once every pending write on the slot has
// completed (rbuf_write_complete).
func Complete(handle any) {
	s := handle.(*slot)
	s.cmu.Lock()
	s.completed++
	notify := s.awaiting && s.completed == s.pending
	s.cmu.Unlock()
	if notify {
		s.cond.Broadcast()
	}
}

// TryRotate attempts to swap out the current slot for draining,
// mirroring rbuf_get_buffer: it refuses to rotate an empty slot and
// refuses to rotate the last free slot, since doing so would leave
// writers with nowhere to reserve space.
func (b *Buffer) TryRotate() (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.current
	s.cmu.Lock()
	pending := s.pending
	s.cmu.Unlock()
	if pending == 0 {
		return nil, ErrEmpty
	}

	if b.free.Len() == 1 {
		return nil, ErrWouldStarve
	}

	b.free.Remove(s.elem)
	s.elem = nil
	b.current = b.free.Front().Value.(*slot)
	return s, nil
}

// Drain waits for every in-flight write on handle to finish, invokes
// fn with the accumulated bytes, then resets and returns the slot to
// the free pool -- rbuf_wait_for_completion.
func (b *Buffer) Drain(handle any, fn func(data []byte)) {
	s := handle.(*slot)

	s.cmu.Lock()
	s.awaiting = true
	for s.completed != s.pending {
		s.cond.Wait()
	}
	s.cmu.Unlock()

	fn(s.buf)

	s.cmu.Lock()
	s.awaiting = false
	s.pending = 0
	s.completed = 0
	s.cmu.Unlock()

	s.shrink()
	s.buf = s.buf[:0]

	b.mu.Lock()
	s.elem = b.free.PushBack(s)
	b.mu.Unlock()
}

// shrink applies the original's e^-0.2 geometric decay to a slot that
// grew its buffer capacity outside the watermark range, then drops the
// backing array so the next append starts from a smaller allocation
// (rlist_shrink_vector).
func (s *slot) shrink() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.caps >= lowWatermark && s.caps <= highWatermark {
		return
	}

	target := int(float64(s.caps) * math.Pow(math.E, -0.2))
	if target < 1 {
		target = 1
	}
	s.caps = target
	s.buf = make([]byte, 0, allocSize)
}
