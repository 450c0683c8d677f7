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

package blockdevice

import (
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/fop"
	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/inode"
	"github.com/voltrans/voltrans/internal/loc"
	"github.com/voltrans/voltrans/internal/translator"
)

// bdTestFile stands in for a real /dev/<vg>/<lv> node: a plain temp file
// is enough to exercise Pread/Pwrite, and the fake CommandRunner answers
// "lvs ... lv_size" with its length so Size() agrees with what was
// actually written.
func bdTestFile(t *testing.T, size int64) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "lv")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	t.Cleanup(func() { f.Close() })
	return f
}

func newBDInode(isBlockDevice bool, lv string) *inode.Inode {
	in := inode.New(fuse.InodeID(1), iatt.NewGfid(), iatt.ITypeRegular, nil)
	SetContext(in, InodeContext{IsBlockDevice: isBlockDevice, LVName: lv})
	return in
}

func newTranslatorWithRunner(t *testing.T, vgName string, sizes map[string]string) (*Translator, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{out: map[string]string{}}
	for lv, size := range sizes {
		runner.out["lvs --noheadings --units b -o lv_size "+vgName+"/"+lv] = size
	}
	vg := &VolumeGroup{Name: vgName, runner: runner}
	tr := New("bd", vg, nil)
	return tr, runner
}

// fakeXattrStore is an in-memory XattrStore, the same "swap the real
// boundary for a fake" shape fakeRunner gives lvm2 -- tests assert on the
// set/remove sequence without needing CAP_SYS_ADMIN or a trusted.*-xattr-
// capable filesystem.
type fakeXattrStore struct {
	values map[string]map[string][]byte
	setErr error
}

func newFakeXattrStore() *fakeXattrStore {
	return &fakeXattrStore{values: map[string]map[string][]byte{}}
}

func (f *fakeXattrStore) Set(path, name string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.values[path] == nil {
		f.values[path] = map[string][]byte{}
	}
	f.values[path][name] = append([]byte(nil), value...)
	return nil
}

func (f *fakeXattrStore) Remove(path, name string) error {
	if m, ok := f.values[path]; ok {
		delete(m, name)
	}
	return nil
}

func (f *fakeXattrStore) get(path, name string) (string, bool) {
	m, ok := f.values[path]
	if !ok {
		return "", false
	}
	v, ok := m[name]
	return string(v), ok
}

func windReadv(t *testing.T, tr *Translator, fd *inode.Fd, offset int64, size uint32) fop.Reply {
	t.Helper()
	var got fop.Reply
	captured := false
	top := translator.NewBase("top")
	top.OnUnwind(fop.KindReadv, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
		captured = true
	})
	translator.Link(top, tr)

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindReadv, fop.Args{Fd: fd, Offset: offset, Size: size})
	require.True(t, captured, "readv never replied")
	return got
}

func TestReadvSignalsENOENTAtLVBoundary(t *testing.T) {
	const lvSize = 4096
	f := bdTestFile(t, lvSize)
	data := make([]byte, lvSize)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := f.WriteAt(data, 0)
	require.NoError(t, err)

	tr, _ := newTranslatorWithRunner(t, "vg0", map[string]string{"lv0": "4096B"})

	in := newBDInode(true, "lv0")
	fd := inode.NewFd(in, 0, nil)
	fd.SetContext(contextKey, FdContext{File: f})

	// A read entirely short of the LV's end carries no ENOENT.
	mid := windReadv(t, tr, fd, 0, 100)
	assert.EqualValues(t, 100, mid.OpRet)
	assert.Zero(t, mid.OpErrno)

	// A read that reaches exactly the LV's size is EOF.
	atEnd := windReadv(t, tr, fd, lvSize-50, 50)
	assert.EqualValues(t, 50, atEnd.OpRet)
	assert.Equal(t, unix.Errno(unix.ENOENT), atEnd.OpErrno)
}

func TestReadvNonBlockDeviceFdForwardsUntouched(t *testing.T) {
	tr, _ := newTranslatorWithRunner(t, "vg0", nil)

	var forwarded bool
	child := translator.NewBase("posix")
	child.OnWind(fop.KindReadv, func(fr *fop.Frame, k fop.Kind, args fop.Args) {
		forwarded = true
		translator.UnwindUp(child, fr, k, fop.OK(0))
	})
	translator.Link(tr, child)

	in := newBDInode(false, "")
	fd := inode.NewFd(in, 0, nil)
	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindReadv, fop.Args{Fd: fd, Offset: 0, Size: 10})

	assert.True(t, forwarded)
}

func TestRchecksumComputesWeakAndStrongDigests(t *testing.T) {
	f := bdTestFile(t, 64)
	payload := []byte("the quick brown fox jumps over the lazy dog")
	_, err := f.WriteAt(payload, 0)
	require.NoError(t, err)

	tr, _ := newTranslatorWithRunner(t, "vg0", map[string]string{"lv0": "64B"})

	in := newBDInode(true, "lv0")
	fd := inode.NewFd(in, 0, nil)
	fd.SetContext(contextKey, FdContext{File: f})

	var got fop.Reply
	top := translator.NewBase("top")
	translator.Link(top, tr)
	top.OnUnwind(fop.KindRchecksum, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindRchecksum, fop.Args{Fd: fd, Offset: 0, Size: uint32(len(payload))})

	require.NotEmpty(t, got.StrongChecksum)
	assert.Len(t, got.StrongChecksum, 16)
	assert.NotZero(t, got.WeakChecksum)
}

func TestSetattrUnwindPatchesCachedUIDOnly(t *testing.T) {
	tr, _ := newTranslatorWithRunner(t, "vg0", nil)

	in := newBDInode(true, "lv0")
	in.SetContext(contextKey, InodeContext{
		IsBlockDevice: true,
		LVName:        "lv0",
		Cached:        iatt.Iatt{Uid: 0, Gid: 0, Mode: 0644},
	})
	fd := inode.NewFd(in, 0, nil)

	child := translator.NewBase("posix")
	wantCtime := time.Unix(99, 0)
	child.OnWind(fop.KindSetattr, func(fr *fop.Frame, k fop.Kind, args fop.Args) {
		translator.UnwindUp(child, fr, k, fop.Reply{
			OpRet:  0,
			PostOp: iatt.Iatt{Uid: 42, Gid: 0, Mode: 0644, Ctime: wantCtime},
		})
	})
	translator.Link(tr, child)

	var got fop.Reply
	top := translator.NewBase("top")
	translator.Link(top, tr)
	top.OnUnwind(fop.KindSetattr, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindSetattr, fop.Args{Fd: fd, Valid: fop.SetattrUID, Stbuf: iatt.Iatt{Uid: 42}})

	assert.EqualValues(t, 42, got.PostOp.Uid)
	assert.True(t, wantCtime.Equal(got.PostOp.Ctime))

	ctx, ok := GetContext(in)
	require.True(t, ok)
	assert.EqualValues(t, 42, ctx.Cached.Uid)
	assert.True(t, wantCtime.Equal(ctx.Cached.Ctime))
}

func windTruncate(t *testing.T, tr *Translator, in *inode.Inode, offset int64) fop.Reply {
	t.Helper()
	fd := inode.NewFd(in, 0, nil)
	var got fop.Reply
	top := translator.NewBase("top")
	top.OnUnwind(fop.KindTruncate, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})
	translator.Link(top, tr)

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindTruncate, fop.Args{Fd: fd, Offset: offset})
	return got
}

func TestTruncateShrinkOnlyBumpsMtime(t *testing.T) {
	tr, runner := newTranslatorWithRunner(t, "vg0", map[string]string{"lv0": "8192B"})
	store := newFakeXattrStore()
	tr.WithXattrStore(store)

	in := newBDInode(true, "lv0")
	before := time.Unix(100, 0)
	SetContext(in, InodeContext{IsBlockDevice: true, LVName: "lv0", Cached: iatt.Iatt{Mtime: before}})

	got := windTruncate(t, tr, in, 4096)

	assert.EqualValues(t, 0, got.OpRet)
	assert.EqualValues(t, 8192, got.PostOp.Size)
	assert.False(t, got.PostOp.Mtime.Equal(before), "mtime should have advanced")
	assert.Empty(t, store.values, "shrink must not touch the bd xattr")
	assert.False(t, runner.ran("lvresize"))
}

func TestTruncateGrowWritesXattrBeforeResize(t *testing.T) {
	tr, runner := newTranslatorWithRunner(t, "vg0", map[string]string{"lv0": "4096B"})
	store := newFakeXattrStore()
	tr.WithXattrStore(store)

	in := newBDInode(true, "lv0")
	SetContext(in, InodeContext{IsBlockDevice: true, Type: LVTypePlain, LVName: "lv0"})

	got := windTruncate(t, tr, in, 5000)

	assert.EqualValues(t, 0, got.OpRet)
	// 5000 rounds up to the next 4096 boundary: 8192.
	assert.EqualValues(t, 8192, got.PostOp.Size)

	path := tr.posixPath(in.Gfid())
	v, ok := store.get(path, BDXattrKey)
	require.True(t, ok)
	assert.Equal(t, "lv:8192", v)
	assert.True(t, runner.ran("lvresize"))
}

func TestTruncateGrowRevertsXattrOnResizeFailure(t *testing.T) {
	tr, runner := newTranslatorWithRunner(t, "vg0", map[string]string{"lv0": "4096B"})
	runner.errOn = map[string]bool{"lvresize": true}
	store := newFakeXattrStore()
	tr.WithXattrStore(store)

	in := newBDInode(true, "lv0")
	SetContext(in, InodeContext{IsBlockDevice: true, Type: LVTypePlain, LVName: "lv0"})

	got := windTruncate(t, tr, in, 5000)

	assert.Equal(t, unix.Errno(unix.EIO), got.OpErrno)

	path := tr.posixPath(in.Gfid())
	v, ok := store.get(path, BDXattrKey)
	require.True(t, ok)
	assert.Equal(t, "lv:4096", v, "xattr must be reverted to the pre-grow size")
}

func TestCreateLVSequencesStatSetCreate(t *testing.T) {
	tr, runner := newTranslatorWithRunner(t, "vg0", nil)
	store := newFakeXattrStore()
	tr.WithXattrStore(store)

	root := t.TempDir()
	tr.WithPosixRoot(root)

	gfid := iatt.NewGfid()
	path := tr.posixPath(gfid)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	var got fop.Reply
	top := translator.NewBase("top")
	top.OnUnwind(fop.KindSetxattr, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})
	translator.Link(top, tr)

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindSetxattr, fop.Args{
		Loc:   loc.Loc{Gfid: gfid},
		Name:  BDXattrKey,
		Value: []byte("lv:4096"),
	})

	assert.EqualValues(t, 0, got.OpRet)
	v, ok := store.get(path, BDXattrKey)
	require.True(t, ok)
	assert.Equal(t, "lv:4096", v)
	assert.True(t, runner.ran("lvcreate"))
}

func TestCreateLVMissingPosixPlaceholderIsENOENT(t *testing.T) {
	tr, _ := newTranslatorWithRunner(t, "vg0", nil)
	store := newFakeXattrStore()
	tr.WithXattrStore(store)
	tr.WithPosixRoot(t.TempDir())

	gfid := iatt.NewGfid()

	var got fop.Reply
	top := translator.NewBase("top")
	top.OnUnwind(fop.KindSetxattr, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})
	translator.Link(top, tr)

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindSetxattr, fop.Args{
		Loc:   loc.Loc{Gfid: gfid},
		Name:  BDXattrKey,
		Value: []byte("lv:4096"),
	})

	assert.Equal(t, unix.Errno(unix.ENOENT), got.OpErrno)
	assert.Empty(t, store.values)
}

func TestCreateLVRevertsXattrOnLVCreateFailure(t *testing.T) {
	tr, runner := newTranslatorWithRunner(t, "vg0", nil)
	runner.errOn = map[string]bool{"lvcreate": true}
	store := newFakeXattrStore()
	tr.WithXattrStore(store)

	root := t.TempDir()
	tr.WithPosixRoot(root)

	gfid := iatt.NewGfid()
	path := tr.posixPath(gfid)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	var got fop.Reply
	top := translator.NewBase("top")
	top.OnUnwind(fop.KindSetxattr, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})
	translator.Link(top, tr)

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindSetxattr, fop.Args{
		Loc:   loc.Loc{Gfid: gfid},
		Name:  BDXattrKey,
		Value: []byte("lv:4096"),
	})

	assert.Equal(t, unix.Errno(unix.EIO), got.OpErrno)
	_, ok := store.get(path, BDXattrKey)
	assert.False(t, ok, "xattr must be removed again after a failed lvcreate")
}

func windGetxattr(t *testing.T, tr *Translator, fd *inode.Fd, name string) fop.Reply {
	t.Helper()
	var got fop.Reply
	top := translator.NewBase("top")
	top.OnUnwind(fop.KindGetxattr, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		got = r
	})
	translator.Link(top, tr)

	fr := fop.NewFrame(fop.NewRoot(0, 0, 0), tr)
	tr.Wind(fr, fop.KindGetxattr, fop.Args{Fd: fd, Name: name})
	return got
}

func TestGetxattrVolumeTypeAndCapsReplyAsInt64(t *testing.T) {
	tr, _ := newTranslatorWithRunner(t, "vg0", nil)
	tr.vg.Caps = CapBlockDevice | CapOffloadZero

	in := newBDInode(true, "lv0")
	fd := inode.NewFd(in, 0, nil)

	got := windGetxattr(t, tr, fd, XattrVolumeType)
	require.NotNil(t, got.Xdata)
	val, ok := got.Xdata.Get(args0Name)
	require.True(t, ok)
	assert.EqualValues(t, 1, val.Int)
	assert.EqualValues(t, 8, got.OpRet)

	got = windGetxattr(t, tr, fd, XattrVolumeCaps)
	val, ok = got.Xdata.Get(args0Name)
	require.True(t, ok)
	assert.EqualValues(t, CapBlockDevice|CapOffloadZero, val.Int)
	assert.EqualValues(t, 8, got.OpRet)
}

func TestOnLookupReplyRepairsSizeMismatch(t *testing.T) {
	gfid := iatt.NewGfid()
	tr, _ := newTranslatorWithRunner(t, "vg0", map[string]string{lvNameForGfid(gfid): "8192B"})
	store := newFakeXattrStore()
	tr.WithXattrStore(store)
	tr.WithPosixRoot(t.TempDir())

	in := inode.New(fuse.InodeID(1), gfid, iatt.ITypeRegular, nil)
	err := tr.OnLookupReply(in, "lv:4096")
	require.NoError(t, err)

	ctx, ok := GetContext(in)
	require.True(t, ok)
	assert.True(t, ctx.IsBlockDevice)

	path := tr.posixPath(in.Gfid())
	v, ok := store.get(path, BDXattrKey)
	require.True(t, ok)
	assert.Equal(t, "lv:8192", v, "stale xattr size must be repaired to the LV's actual size")
}

func TestOnLookupReplyRemovesXattrWhenLVIsGone(t *testing.T) {
	tr, _ := newTranslatorWithRunner(t, "vg0", nil) // no such lv -> Size() errors
	store := newFakeXattrStore()
	tr.WithXattrStore(store)
	tr.WithPosixRoot(t.TempDir())

	in := inode.New(fuse.InodeID(1), iatt.NewGfid(), iatt.ITypeRegular, nil)
	path := tr.posixPath(in.Gfid())
	require.NoError(t, store.Set(path, BDXattrKey, []byte("lv:4096")))

	err := tr.OnLookupReply(in, "lv:4096")
	require.NoError(t, err)

	ctx, ok := GetContext(in)
	require.True(t, ok)
	assert.False(t, ctx.IsBlockDevice)
	_, ok = store.get(path, BDXattrKey)
	assert.False(t, ok, "binding to a nonexistent lv must be removed, not trusted")
}
