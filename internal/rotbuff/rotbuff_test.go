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

package rotbuff

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryRotateReportsEmptyWithNoPendingWrites(t *testing.T) {
	b := New(2)
	_, err := b.TryRotate()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestTryRotateRefusesToStarveWritersWithOneSlot(t *testing.T) {
	b := New(1)
	h := b.Reserve([]byte("x"))
	Complete(h)

	_, err := b.TryRotate()
	assert.ErrorIs(t, err, ErrWouldStarve)
}

func TestReserveCompleteDrainRoundTrips(t *testing.T) {
	b := New(2)

	h := b.Reserve([]byte("hello "))
	b.Reserve([]byte("world")) // appended to same handle's slot
	Complete(h)
	Complete(h)

	handle, err := b.TryRotate()
	require.NoError(t, err)

	var got []byte
	b.Drain(handle, func(data []byte) {
		got = append([]byte(nil), data...)
	})
	assert.Equal(t, "hello world", string(got))
}

func TestDrainBlocksUntilAllPendingWritesComplete(t *testing.T) {
	b := New(2)

	h := b.Reserve([]byte("a"))
	b.Reserve([]byte("b"))
	Complete(h) // only one of two pending writes done

	handle, err := b.TryRotate()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		b.Drain(handle, func([]byte) {})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Drain returned before all pending writes completed")
	case <-time.After(20 * time.Millisecond):
	}

	Complete(h)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after final completion")
	}
}

func TestRotatedSlotReturnsToFreePoolAfterDrain(t *testing.T) {
	b := New(2)

	h := b.Reserve([]byte("x"))
	Complete(h)
	handle, err := b.TryRotate()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Drain(handle, func([]byte) {})
	}()
	wg.Wait()

	assert.Equal(t, 2, b.free.Len())
}
