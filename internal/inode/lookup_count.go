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

package inode

import "fmt"

// refCount is a helper for implementing lookup/open reference counts:
// destroy is invoked exactly once, when the count first reaches zero.
// External synchronization is required (the owning Inode/Fd's mutex).
type refCount struct {
	count   uint64
	destroy func()
}

func (rc *refCount) inc() {
	rc.count++
}

// dec decrements the count by n and returns true the one time it reaches
// zero, running destroy before returning.
func (rc *refCount) dec(n uint64) (destroyed bool) {
	if n > rc.count {
		panic(fmt.Sprintf("inode: dec %d exceeds ref count %d", n, rc.count))
	}

	rc.count -= n
	if rc.count == 0 {
		if rc.destroy != nil {
			rc.destroy()
		}
		destroyed = true
	}
	return
}
