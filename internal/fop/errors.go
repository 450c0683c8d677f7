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

package fop

import "golang.org/x/sys/unix"

// Error taxonomy (spec.md §7):
//
//   - Protocol/arg errors (bad magic, malformed dict, unknown FOP kind):
//     EINVAL, never retried.
//   - Resource errors (allocation failure, too many in-flight requests):
//     ENOMEM / EAGAIN, caller may retry.
//   - Backend errors: passed through unchanged unless a defined remapping
//     applies (handled per-translator, see internal/blockdevice).
//   - State errors: EINVAL / EEXIST as appropriate to the violated
//     precondition (handled per-translator).
const (
	ErrProtocol unix.Errno = unix.EINVAL
	ErrNoMemory unix.Errno = unix.ENOMEM
	ErrRetry    unix.Errno = unix.EAGAIN
)

// UnknownKindReply builds an EINVAL (ErrProtocol) error reply, the
// protocol-error class above. translator.Base's default wind and the
// iocache and upcall translators' forwarders answer with it when there is
// no child to forward a call to.
func UnknownKindReply() Reply {
	return Err(ErrProtocol)
}
