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

package upcall

import (
	"testing"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/fop"
	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/inode"
	"github.com/voltrans/voltrans/internal/translator"
)

// replyingChild answers every wound FOP with a canned reply, regardless
// of kind -- enough to drive Translator's unwind path under test.
type replyingChild struct {
	*translator.Base
	reply fop.Reply
}

func newReplyingChild(reply fop.Reply) *replyingChild {
	c := &replyingChild{Base: translator.NewBase("child"), reply: reply}
	for _, k := range []fop.Kind{
		fop.KindWritev, fop.KindSetxattr, fop.KindRemovexattr, fop.KindSetattr,
	} {
		k := k
		c.OnWind(k, func(fr *fop.Frame, kk fop.Kind, _ fop.Args) {
			translator.UnwindUp(c, fr, kk, reply)
		})
	}
	return c
}

func newUpcallTestInode() *inode.Inode {
	return inode.New(fuse.InodeID(1), iatt.NewGfid(), iatt.ITypeRegular, nil)
}

func TestTranslatorWritevBroadcastsContentWithWriteAndTimesFlags(t *testing.T) {
	reg := NewRegistry(time.Minute)
	postOp := iatt.Iatt{Size: 4096}
	child := newReplyingChild(fop.Reply{OpRet: 100, PostOp: postOp})
	tr := NewTranslator("upcall", reg)
	translator.Link(tr, child)

	in := newUpcallTestInode()
	ch := make(chan Event, 1)
	reg.Register(in.Gfid().String(), "client-a", ch)

	fd := inode.NewFd(in, 0, nil)
	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindWritev, fop.Args{Fd: fd})

	select {
	case ev := <-ch:
		assert.Equal(t, EventContent, ev.Kind)
		assert.NotZero(t, ev.Flags&UpWrite)
		assert.NotZero(t, ev.Flags&UpTimes)
		assert.Equal(t, postOp, ev.Stat)
	default:
		t.Fatal("expected a broadcast event")
	}
}

func TestTranslatorFailedMutationDoesNotBroadcast(t *testing.T) {
	reg := NewRegistry(time.Minute)
	child := newReplyingChild(fop.Err(unix.EIO))
	tr := NewTranslator("upcall", reg)
	translator.Link(tr, child)

	in := newUpcallTestInode()
	ch := make(chan Event, 1)
	reg.Register(in.Gfid().String(), "client-a", ch)

	fd := inode.NewFd(in, 0, nil)
	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindWritev, fop.Args{Fd: fd})

	select {
	case <-ch:
		t.Fatal("a failed FOP must not broadcast an invalidation")
	default:
	}
}

func TestTranslatorSetxattrNotifiesWithValueAndSetFlag(t *testing.T) {
	reg := NewRegistry(time.Minute)
	child := newReplyingChild(fop.OK(0))
	tr := NewTranslator("upcall", reg)
	translator.Link(tr, child)

	in := newUpcallTestInode()
	ch := make(chan Event, 1)
	reg.Register(in.Gfid().String(), "client-a", ch)

	fd := inode.NewFd(in, 0, nil)
	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindSetxattr, fop.Args{Fd: fd, Name: "security.capability", Value: []byte("v")})

	select {
	case ev := <-ch:
		assert.Equal(t, EventXattr, ev.Kind)
		assert.Equal(t, UpXattr, ev.Flags)
		assert.Equal(t, []byte("v"), ev.Dict["security.capability"])
	default:
		t.Fatal("expected a broadcast event")
	}
}

func TestTranslatorRemovexattrNotifiesWithRemoveFlag(t *testing.T) {
	reg := NewRegistry(time.Minute)
	child := newReplyingChild(fop.OK(0))
	tr := NewTranslator("upcall", reg)
	translator.Link(tr, child)

	in := newUpcallTestInode()
	ch := make(chan Event, 1)
	reg.Register(in.Gfid().String(), "client-a", ch)

	fd := inode.NewFd(in, 0, nil)
	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindRemovexattr, fop.Args{Fd: fd, Name: "security.capability"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventXattr, ev.Kind)
		assert.Equal(t, UpXattrRM, ev.Flags)
	default:
		t.Fatal("expected a broadcast event")
	}
}
