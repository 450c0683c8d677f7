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

// Package invariant provides a mutex that checks a caller-supplied invariant
// function whenever it is unlocked, panicking if the invariant no longer
// holds. It exists to catch programmer errors close to their source, the
// same role github.com/jacobsa/syncutil.InvariantMutex plays in gcsfuse's
// fs/inode package.
package invariant

import "sync"

// Mutex is a sync.Locker that checks an invariant on every unlock, just
// before the lock is released.
type Mutex struct {
	mu    sync.Mutex
	check func()
}

// New returns a Mutex that calls check at the start of every Unlock,
// while the lock is still held. check must not itself attempt to lock mu.
func New(check func()) Mutex {
	return Mutex{check: check}
}

func (m *Mutex) Lock() {
	m.mu.Lock()
}

func (m *Mutex) Unlock() {
	if m.check != nil {
		m.check()
	}
	m.mu.Unlock()
}
