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

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/logger"
)

// Continuation is the next-hop function for a downward (wind) call: it
// forwards Args to the first child translator of the frame's current
// position. One exists per exact FOP kind (spec.md §4.1), but since the
// kind is already recorded on the Stub, a single function signature
// suffices here -- the per-kind variation lives in what the closure does.
type Continuation func(fr *Frame, k Kind, args Args)

// ReplyHandler is the upward (unwind) counterpart: it delivers a Reply to
// whichever translator wound the call (spec.md §4.1's tie-break rule:
// "upward resumes go to the translator that originally wound the call").
type ReplyHandler func(fr *Frame, k Kind, reply Reply)

// Stub freezes either a downward call or an upward reply into a
// first-class value that can be stored, queued (via Next/Prev, an
// intrusive list node per spec.md §3), transported across goroutines, and
// resumed exactly once.
type Stub struct {
	// Next/Prev let a translator splice a Stub onto its own queue
	// (spec.md §3: "Stubs may sit on intrusive list nodes"). Unused (nil)
	// until a translator takes ownership of the stub for queuing.
	Next, Prev *Stub

	kind  Kind
	isWind bool // true: call stub: false: reply stub

	frame    *Frame
	savedThis Translator // frame.This at creation time, restored around Resume

	args  Args         // valid when isWind
	reply Reply        // valid when !isWind

	continuation Continuation // valid when isWind
	replyHandler ReplyHandler // valid when !isWind

	consumed atomic.Bool
}

// MakeCallStub captures a downward call: FOP kind, argument tuple, and the
// continuation that forwards it once resumed. Deep-copies every argument
// with a lifetime independent of fr.
func MakeCallStub(fr *Frame, k Kind, args Args, continuation Continuation) (*Stub, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("fop: make_call_stub: invalid kind %d", k)
	}
	if continuation == nil {
		return nil, fmt.Errorf("fop: make_call_stub: nil continuation for %s", k)
	}

	cloned := args.DeepClone()
	return &Stub{
		kind:         k,
		isWind:       true,
		frame:        fr,
		savedThis:    fr.GetThis(),
		args:         cloned,
		continuation: continuation,
	}, nil
}

// MakeReplyStub captures an upward reply: FOP kind, status/errno (carried
// on reply.OpRet/OpErrno), and the reply payload. Deep-copies all reply
// payloads, including I/O-vector buffers via reference counting of their
// backing buffer pool.
func MakeReplyStub(fr *Frame, k Kind, reply Reply, handler ReplyHandler) (*Stub, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("fop: make_reply_stub: invalid kind %d", k)
	}
	if handler == nil {
		return nil, fmt.Errorf("fop: make_reply_stub: nil reply handler for %s", k)
	}

	cloned := reply.DeepClone()
	return &Stub{
		kind:         k,
		isWind:       false,
		frame:        fr,
		savedThis:    fr.GetThis(),
		reply:        cloned,
		replyHandler: handler,
	}, nil
}

func (s *Stub) Kind() Kind   { return s.kind }
func (s *Stub) IsWind() bool { return s.isWind }
func (s *Stub) Frame() *Frame { return s.frame }

// invoke runs the stub's continuation/replyHandler exactly once, saving
// and restoring fr.This around the call so the stub may be resumed from
// any thread (spec.md §4.1). Returns false if the stub had already been
// consumed by a prior Resume/UnwindError.
func (s *Stub) invoke() bool {
	if !s.consumed.CompareAndSwap(false, true) {
		return false
	}

	prev := s.frame.SetThis(s.savedThis)
	defer s.frame.SetThis(prev)

	if s.isWind {
		s.continuation(s.frame, s.kind, s.args)
	} else {
		s.replyHandler(s.frame, s.kind, s.reply)
	}
	return true
}

// Resume invokes the stub (downward: the continuation against the first
// child; upward: the reply handler against the original caller) and then
// destroys it. Resume itself never fails -- a failure inside the
// continuation becomes a reply carrying the failure, not a Resume error.
func Resume(s *Stub) {
	ran := s.invoke()
	if !ran {
		logger.Warnf("fop: resume called on already-consumed %s stub", s.kind)
		return
	}
	s.release()
}

// ResumeKeep behaves like Resume but does not destroy the stub's owned
// arguments -- used when a translator wants to retry and needs its own
// copies to remain valid.
func ResumeKeep(s *Stub) {
	if ran := s.invoke(); !ran {
		logger.Warnf("fop: resume_keep called on already-consumed %s stub", s.kind)
	}
}

// UnwindError forces a reply-stub resume with an overridden status,
// destroying the stub afterward. Used when a translator abandons a queued
// call. It is an error to call this on a call (wind) stub.
func UnwindError(s *Stub, opErrno unix.Errno) {
	if s.isWind {
		logger.Errorf("fop: unwind_error called on a wind stub (%s)", s.kind)
		return
	}
	s.reply.OpRet = -1
	s.reply.OpErrno = opErrno
	Resume(s)
}

// UnwindErrorKeep is UnwindError without destroying the stub.
func UnwindErrorKeep(s *Stub, opErrno unix.Errno) {
	if s.isWind {
		logger.Errorf("fop: unwind_error_keep called on a wind stub (%s)", s.kind)
		return
	}
	s.reply.OpRet = -1
	s.reply.OpErrno = opErrno
	ResumeKeep(s)
}

// Destroy releases all deep-copied arguments without invoking the stub.
// Safe to call on a stub that was never resumed (e.g. the translator
// decided to fail fast) or after ResumeKeep (to release the kept copy
// once the retry is done).
func Destroy(s *Stub) {
	s.release()
}

func (s *Stub) release() {
	if s.isWind {
		s.args.Release()
	} else {
		s.reply.Release()
	}
}
