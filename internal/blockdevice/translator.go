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
	"context"
	"crypto/md5"
	"hash/adler32"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/dict"
	"github.com/voltrans/voltrans/internal/fop"
	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/inode"
	"github.com/voltrans/voltrans/internal/iovec"
	"github.com/voltrans/voltrans/internal/logger"
	"github.com/voltrans/voltrans/internal/translator"
)

// newSingleEntryDict builds a one-key reply dict, the shape a getxattr
// reply's Xdata carries its single value in.
func newSingleEntryDict(key, value string) *dict.Dict {
	d := dict.New()
	d.Set(key, dict.StrValue(value))
	return d
}

// Translator implements the block-device backend: files whose bd xattr
// names an LV are served from that LV's device node; every other file is
// forwarded untouched to FirstChild (the posix translator below it),
// exactly as bd_lookup falls through to posix_lookup when no bd xattr is
// present.
type Translator struct {
	*translator.Base

	vg    *VolumeGroup
	aio   *AIOEngine
	aioOn bool

	// posixRoot and xattrs are where the "trusted.glusterfs.bd" binding
	// actually lives: one file per gfid under posixRoot, mutated through
	// xattrs. Defaulted in New and overridable via WithPosixRoot/
	// WithXattrStore so tests don't need a trusted.*-xattr-capable
	// filesystem.
	posixRoot string
	xattrs    XattrStore
}

// defaultPosixRoot is where a bd-bound file's posix-placeholder xattr
// state lives when the graph doesn't configure a root explicitly --
// WithPosixRoot overrides this at wiring time.
const defaultPosixRoot = "/var/lib/voltrans/bd"

// New builds a Translator bound to vg. aio may be nil, in which case
// Readv/Writev run synchronously via Pread/Pwrite instead of through the
// engine -- the default until the configured aio setting turns it on
// (spec.md §6 "bd.bd-aio").
func New(name string, vg *VolumeGroup, aio *AIOEngine) *Translator {
	t := &Translator{
		Base:      translator.NewBase(name),
		vg:        vg,
		aio:       aio,
		aioOn:     aio != nil,
		posixRoot: defaultPosixRoot,
		xattrs:    pkgXattrStore{},
	}

	t.OnWind(fop.KindLookup, t.lookup)
	t.OnWind(fop.KindStat, t.stat)
	t.OnWind(fop.KindFstat, t.fstat)
	t.OnWind(fop.KindOpen, t.open)
	t.OnWind(fop.KindReadv, t.readv)
	t.OnWind(fop.KindWritev, t.writev)
	t.OnWind(fop.KindTruncate, t.truncate)
	t.OnWind(fop.KindFtruncate, t.ftruncate)
	t.OnWind(fop.KindSetxattr, t.setxattr)
	t.OnWind(fop.KindGetxattr, t.getxattr)
	t.OnWind(fop.KindFgetxattr, t.fgetxattr)
	t.OnWind(fop.KindUnlink, t.unlink)
	t.OnWind(fop.KindDiscard, t.discard)
	t.OnWind(fop.KindZerofill, t.zerofill)
	t.OnWind(fop.KindFlush, t.flush)
	t.OnWind(fop.KindRchecksum, t.rchecksum)
	t.OnWind(fop.KindSetattr, t.setattrWind)
	t.OnWind(fop.KindFsetattr, t.setattrWind)
	t.OnUnwind(fop.KindLink, t.onLinkUnwind)
	t.OnUnwind(fop.KindSetattr, t.onSetattrUnwind)
	t.OnUnwind(fop.KindFsetattr, t.onSetattrUnwind)

	return t
}

// WithPosixRoot overrides where this translator keeps each bd-bound
// file's posix-placeholder xattr state; the graph-wiring code sets this
// from the configured export layout. A blank root is ignored, so callers
// can pass an unset config value through unconditionally.
func (t *Translator) WithPosixRoot(root string) *Translator {
	if root != "" {
		t.posixRoot = root
	}
	return t
}

// WithXattrStore overrides the XattrStore this translator issues real
// xattr syscalls through, for tests that can't rely on a trusted.*-xattr-
// capable filesystem.
func (t *Translator) WithXattrStore(store XattrStore) *Translator {
	t.xattrs = store
	return t
}

// posixPath is the on-disk location of gfid's posix placeholder's xattr
// state, named the same way LVs are: the gfid itself, so no separate
// name-mapping table is needed (lvNameForGfid's sibling).
func (t *Translator) posixPath(gfid iatt.Gfid) string {
	return filepath.Join(t.posixRoot, gfid.String())
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

// lookup passes through to posix first; spec.md §4.2 "bd_lookup ->
// posix_lookup -> bd_lookup_cbk": the bd xattr is examined only once the
// underlying lookup has already resolved the inode, by inspecting
// args.Xdata for a pre-fetched xattr (the front end is expected to request
// BDXattrKey in xattr_req the way bd_lookup adds it).
func (t *Translator) lookup(fr *fop.Frame, k fop.Kind, args fop.Args) {
	t.forward(fr, k, args)
}

// OnLookupReply is called by the stack's reply path (wired by whatever
// assembles the graph) once posix's lookup reply carries the resolved
// inode and requested xattrs -- this is where the bd xattr, if present, is
// parsed, validated against the actual LV, and cached into the inode's
// context. Per spec.md §4.2 "Lookup": the backend validates the LV named
// by the xattr exists and its size matches; a size mismatch repairs the
// xattr in place, and an absent LV removes it instead of trusting a
// stale binding (spec.md §7 "Validation failures").
func (t *Translator) OnLookupReply(in *inode.Inode, bdXattr string) error {
	if bdXattr == "" {
		SetContext(in, InodeContext{IsBlockDevice: false})
		return nil
	}
	parsed, err := ParseBDXattr(bdXattr)
	if err != nil {
		return err
	}

	lv := lvNameForGfid(in.Gfid())
	path := t.posixPath(in.Gfid())
	size, err := t.vg.Size(context.Background(), lv)
	if err != nil {
		if rmErr := t.xattrs.Remove(path, BDXattrKey); rmErr != nil {
			logger.Errorf("blockdevice: removing stale %s on %s: %v", BDXattrKey, path, rmErr)
		}
		SetContext(in, InodeContext{IsBlockDevice: false})
		return nil
	}

	if size != parsed.Size {
		repaired := BDXattrValue{Type: parsed.Type, Size: size}.String()
		if err := t.xattrs.Set(path, BDXattrKey, []byte(repaired)); err != nil {
			logger.Errorf("blockdevice: repairing %s on %s: %v", BDXattrKey, path, err)
		}
	}

	SetContext(in, InodeContext{
		IsBlockDevice: true,
		Type:          parsed.Type,
		LVName:        lv,
	})
	return nil
}

func (t *Translator) stat(fr *fop.Frame, k fop.Kind, args fop.Args) {
	t.forward(fr, k, args)
}

func (t *Translator) fstat(fr *fop.Frame, k fop.Kind, args fop.Args) {
	ctx, ok := t.bdContext(args.Fd)
	if !ok || !ctx.IsBlockDevice {
		t.forward(fr, k, args)
		return
	}

	size, err := t.vg.Size(context.Background(), ctx.LVName)
	if err != nil {
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}
	t.reply(fr, k, fop.Reply{OpRet: 0, PostOp: iatt.Iatt{Type: iatt.ITypeRegular}.WithSize(size)})
}

// open opens the LV's device node directly instead of forwarding to
// posix_open, mirroring bd_open: "Opens BD file if given posix file is
// mapped to BD. Also opens posix file if not mapped." It attempts
// O_DIRECT once at open time and records in FdContext.ODirect whether
// that succeeded; readv and writev do not consult that flag, and the
// descriptor's O_DIRECT mode is never changed per request.
func (t *Translator) open(fr *fop.Frame, k fop.Kind, args fop.Args) {
	in := args.Fd.Inode()
	ctx, ok := GetContext(in)
	if !ok || !ctx.IsBlockDevice {
		t.forward(fr, k, args)
		return
	}

	path := t.vg.lvPath(ctx.LVName)
	flags := int(args.Flags) &^ unix.O_CREAT
	f, direct, err := openODirect(path, flags, true)
	if err != nil {
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}

	args.Fd.SetContext(contextKey, FdContext{File: f, ODirect: direct})
	t.reply(fr, k, fop.OK(0))
}

// readv mirrors bd_readv: reads pread the LV directly, and EOF is not a
// distinct error -- it is signaled by setting the reply errno to ENOENT
// alongside a successful byte count whenever the read reaches or passes
// the LV's current size (spec.md §4.2 Readv, testable property 6, S2).
func (t *Translator) readv(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fdctx, ok := t.fdContext(args.Fd)
	if !ok {
		t.forward(fr, k, args)
		return
	}

	buf := make([]byte, args.Size)
	var n int
	var err error
	if t.aioOn && t.aio != nil {
		vec := iovec.Vector{iovec.New(buf)}
		resp := make(chan AIOResult, 1)
		t.aio.Submit(AIORequest{FD: int(fdctx.File.Fd()), Offset: args.Offset, Read: true, Vector: vec, Reply: resp})
		res := <-resp
		n, err = res.N, res.Err
	} else {
		n, err = unix.Pread(int(fdctx.File.Fd()), buf, args.Offset)
	}
	if err != nil {
		t.reply(fr, k, fop.Err(toErrno(err)))
		return
	}

	vec := iovec.Vector{iovec.New(buf[:n])}
	reply := fop.Reply{OpRet: int64(n), Vector: vec}
	if ctx, ok := t.bdContext(args.Fd); ok && ctx.IsBlockDevice {
		if size, err := t.vg.Size(context.Background(), ctx.LVName); err == nil && args.Offset+int64(n) >= int64(size) {
			reply.OpErrno = unix.ENOENT
		}
	}
	t.reply(fr, k, reply)
}

func (t *Translator) writev(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fdctx, ok := t.fdContext(args.Fd)
	if !ok {
		t.forward(fr, k, args)
		return
	}

	data := args.Vector.Flatten()
	var n int
	var err error
	if t.aioOn && t.aio != nil {
		resp := make(chan AIOResult, 1)
		t.aio.Submit(AIORequest{FD: int(fdctx.File.Fd()), Offset: args.Offset, Read: false, Vector: args.Vector, Reply: resp})
		res := <-resp
		n, err = res.N, res.Err
	} else {
		n, err = unix.Pwrite(int(fdctx.File.Fd()), data, args.Offset)
	}
	if err != nil {
		t.reply(fr, k, fop.Err(toErrno(err)))
		return
	}

	t.reply(fr, k, fop.OK(int64(n)))
}

func (t *Translator) truncate(fr *fop.Frame, k fop.Kind, args fop.Args) {
	ctx, ok := t.bdContext(args.Fd)
	if !ok || !ctx.IsBlockDevice {
		t.forward(fr, k, args)
		return
	}
	t.resizeReply(fr, k, args.Fd.Inode(), ctx, uint64(args.Offset))
}

func (t *Translator) ftruncate(fr *fop.Frame, k fop.Kind, args fop.Args) {
	t.truncate(fr, k, args)
}

// resizeReply implements spec.md §4.2 "Truncate/ftruncate": a target size
// at or below the LV's current size only bumps mtime -- no shrink is ever
// issued, since that would destroy data the spec explicitly forbids
// touching. Growing rounds the target up to the next 4 KiB (alignSize)
// boundary -- the volume group's extent size is not consulted -- writes
// the new bd xattr before calling lvresize, and reverts the xattr if the
// resize itself fails so the xattr never claims a size the LV doesn't
// have.
func (t *Translator) resizeReply(fr *fop.Frame, k fop.Kind, in *inode.Inode, ctx InodeContext, size uint64) {
	bgCtx := context.Background()
	current, err := t.vg.Size(bgCtx, ctx.LVName)
	if err != nil {
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}

	if size <= current {
		ctx.Cached.Mtime = time.Now()
		SetContext(in, ctx)
		t.reply(fr, k, fop.Reply{OpRet: 0, PostOp: ctx.Cached.WithSize(current)})
		return
	}

	rounded := alignUp(size)
	path := t.posixPath(in.Gfid())
	grown := BDXattrValue{Type: ctx.Type, Size: rounded}.String()
	if err := t.xattrs.Set(path, BDXattrKey, []byte(grown)); err != nil {
		logger.Errorf("blockdevice: set %s on %s: %v", BDXattrKey, path, err)
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}

	if err := t.vg.ResizeLV(bgCtx, ctx.LVName, rounded); err != nil {
		logger.Errorf("blockdevice: resize %s to %d: %v", ctx.LVName, rounded, err)
		reverted := BDXattrValue{Type: ctx.Type, Size: current}.String()
		if rvErr := t.xattrs.Set(path, BDXattrKey, []byte(reverted)); rvErr != nil {
			logger.Errorf("blockdevice: reverting %s on %s after failed resize: %v", BDXattrKey, path, rvErr)
		}
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}

	ctx.Cached.Mtime = time.Now()
	SetContext(in, ctx)
	t.reply(fr, k, fop.Reply{OpRet: 0, PostOp: ctx.Cached.WithSize(rounded)})
}

// setxattr is where a plain posix file is converted into a block-device
// file (BDXattrKey set), and where the offload pseudo-operations
// (clone/snapshot/merge) are triggered, per bd.h's BD_CLONE/BD_SNAPSHOT/
// BD_MERGE key names.
func (t *Translator) setxattr(fr *fop.Frame, k fop.Kind, args fop.Args) {
	switch args.Name {
	case BDXattrKey:
		t.createLV(fr, k, args)
	case BD_CLONE, BD_SNAPSHOT:
		t.offload(fr, k, args, args.Name == BD_SNAPSHOT)
	case BD_MERGE:
		t.merge(fr, k, args)
	default:
		t.forward(fr, k, args)
	}
}

// createLV implements spec.md §4.2 "Setxattr on trusted.glusterfs.bd":
// (1) stat the posix placeholder, (2) set the xattr on it, (3) create the
// LV, (4) on LV-creation failure remove the xattr again rather than leave
// a binding that names a nonexistent LV.
func (t *Translator) createLV(fr *fop.Frame, k fop.Kind, args fop.Args) {
	parsed, err := ParseBDXattr(string(args.Value))
	if err != nil {
		t.reply(fr, k, fop.Err(unix.EINVAL))
		return
	}

	path := t.posixPath(args.Loc.Gfid)
	if _, err := os.Stat(path); err != nil {
		t.reply(fr, k, fop.Err(unix.ENOENT))
		return
	}

	if err := t.xattrs.Set(path, BDXattrKey, args.Value); err != nil {
		logger.Errorf("blockdevice: set %s on %s: %v", BDXattrKey, path, err)
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}

	lv := lvNameForGfid(args.Loc.Gfid)
	if err := t.vg.CreateLV(context.Background(), lv, alignUp(parsed.Size)); err != nil {
		logger.Errorf("blockdevice: create lv %s: %v", lv, err)
		if rmErr := t.xattrs.Remove(path, BDXattrKey); rmErr != nil {
			logger.Errorf("blockdevice: reverting %s on %s after failed create: %v", BDXattrKey, path, rmErr)
		}
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}

	t.reply(fr, k, fop.OK(0))
}

// offload implements BD_CLONE/BD_SNAPSHOT: isSnapshot distinguishes a
// snapshot (kept tracking its origin, mergeable later) from a clone,
// matching bd_offload_t's BD_OF_CLONE/BD_OF_SNAPSHOT. Both paths create
// an LVM snapshot of the origin (CloneLV calls SnapshotLV); no data is
// copied, so a clone stays tied to its origin just as a snapshot does.
func (t *Translator) offload(fr *fop.Frame, k fop.Kind, args fop.Args, isSnapshot bool) {
	origin := lvNameForGfid(args.Loc.Gfid)
	dest := lvNameForGfid(args.Loc2.Gfid)

	var err error
	if isSnapshot {
		err = t.vg.SnapshotLV(context.Background(), origin, dest, 0)
	} else {
		err = t.vg.CloneLV(context.Background(), origin, dest, 0)
	}
	if err != nil {
		logger.Errorf("blockdevice: offload origin=%s dest=%s snapshot=%v: %v", origin, dest, isSnapshot, err)
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}
	t.reply(fr, k, fop.OK(0))
}

func (t *Translator) merge(fr *fop.Frame, k fop.Kind, args fop.Args) {
	lv := lvNameForGfid(args.Loc.Gfid)
	if err := t.vg.MergeLV(context.Background(), lv); err != nil {
		logger.Errorf("blockdevice: merge %s: %v", lv, err)
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}
	t.reply(fr, k, fop.OK(0))
}

// getxattr answers the synthetic "volume.type"/"volume.caps"/"list-origin"
// keys directly instead of forwarding to posix, the way bd_getxattr
// intercepts those three names (bd.h VOL_TYPE/VOL_CAPS/BD_ORIGIN) before
// falling through.
func (t *Translator) getxattr(fr *fop.Frame, k fop.Kind, args fop.Args) {
	ctx, ok := GetContext(t.inodeForLoc(args))
	switch args.Name {
	case XattrVolumeType:
		if !ok || !ctx.IsBlockDevice {
			t.reply(fr, k, fop.Err(unix.ENODATA))
			return
		}
		t.replyWithInt(fr, k, volumeTypeReplyValue)
	case XattrVolumeCaps:
		t.replyWithInt(fr, k, int64(t.vg.Caps))
	case XattrListOrigin:
		if !ok || !ctx.IsBlockDevice {
			t.reply(fr, k, fop.Err(unix.ENODATA))
			return
		}
		origin, err := t.vg.Origin(context.Background(), ctx.LVName)
		if err != nil {
			t.reply(fr, k, fop.Err(unix.EIO))
			return
		}
		if origin == "" {
			t.reply(fr, k, fop.Err(unix.ENODATA))
			return
		}
		t.replyWithValue(fr, k, origin)
	default:
		t.forward(fr, k, args)
	}
}

func (t *Translator) fgetxattr(fr *fop.Frame, k fop.Kind, args fop.Args) {
	t.getxattr(fr, k, args)
}

func (t *Translator) replyWithValue(fr *fop.Frame, k fop.Kind, v string) {
	d := newSingleEntryDict(args0Name, v)
	t.reply(fr, k, fop.Reply{OpRet: int64(len(v)), Xdata: d})
}

// replyWithInt answers a synthetic getxattr with a raw int64, the shape
// spec.md §6 documents for "volume.type" and "volume.caps" -- unlike
// "list-origin" these are never human-readable strings.
func (t *Translator) replyWithInt(fr *fop.Frame, k fop.Kind, v int64) {
	d := dict.New()
	d.Set(args0Name, dict.IntValue(v))
	t.reply(fr, k, fop.Reply{OpRet: 8, Xdata: d})
}

func (t *Translator) unlink(fr *fop.Frame, k fop.Kind, args fop.Args) {
	ctx, ok := GetContext(t.inodeForLoc(args))
	if !ok || !ctx.IsBlockDevice {
		t.forward(fr, k, args)
		return
	}
	if err := t.vg.RemoveLV(context.Background(), ctx.LVName); err != nil {
		logger.Errorf("blockdevice: remove lv %s: %v", ctx.LVName, err)
		t.reply(fr, k, fop.Err(unix.EIO))
		return
	}
	t.reply(fr, k, fop.OK(0))
}

func (t *Translator) discard(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fdctx, ok := t.fdContext(args.Fd)
	if !ok {
		t.forward(fr, k, args)
		return
	}
	if err := blkDiscard(fdctx.File, uint64(args.Offset), uint64(args.Size)); err != nil {
		t.reply(fr, k, fop.Err(toErrno(err)))
		return
	}
	t.reply(fr, k, fop.OK(0))
}

func (t *Translator) zerofill(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fdctx, ok := t.fdContext(args.Fd)
	if !ok {
		t.forward(fr, k, args)
		return
	}
	if err := blkZeroout(fdctx.File, uint64(args.Offset), uint64(args.Size)); err != nil {
		t.reply(fr, k, fop.Err(toErrno(err)))
		return
	}
	t.reply(fr, k, fop.OK(0))
}

func (t *Translator) flush(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fdctx, ok := t.fdContext(args.Fd)
	if !ok {
		t.forward(fr, k, args)
		return
	}
	if err := fdctx.File.Sync(); err != nil {
		t.reply(fr, k, fop.Err(toErrno(err)))
		return
	}
	t.reply(fr, k, fop.OK(0))
}

// onLinkUnwind mirrors bd_link_cbk: on a successful reply, ctime and nlink
// are refreshed in the BD-cached iatt from the posix reply, and the reply's
// attribute buffer is replaced with the cached, BD-authoritative-size view,
// per spec.md §4.2 "Link".
func (t *Translator) onLinkUnwind(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	if reply.OpRet >= 0 && reply.Inode != nil {
		if ctx, ok := GetContext(reply.Inode); ok && ctx.IsBlockDevice {
			ctx.Cached.Ctime = reply.PostOp.Ctime
			ctx.Cached.Nlink = reply.PostOp.Nlink
			SetContext(reply.Inode, ctx)
			reply.PostOp = ctx.Cached
		}
	}
	translator.UnwindUp(t, fr, k, reply)
}

// setattrLocal is stashed in the frame's scratch slot between wind and
// unwind so onSetattrUnwind knows which fields the caller asked to change
// (bd_setattr_cbk reads this back from its cookie).
type setattrLocal struct {
	valid fop.SetattrValid
	inode *inode.Inode
}

func (t *Translator) setattrWind(fr *fop.Frame, k fop.Kind, args fop.Args) {
	var in *inode.Inode
	if args.Fd != nil {
		in = args.Fd.Inode()
	}
	fr.Local = setattrLocal{valid: args.Valid, inode: in}
	t.forward(fr, k, args)
}

// onSetattrUnwind mirrors bd_setattr_cbk: posix is authoritative for the
// setattr itself, but the BD-cached iatt is patched field-by-field from the
// posix post-buffer using the valid mask, and ctime always advances,
// matching the original's priority chain (uid, else gid, else mode, else
// atime, else mtime -- only one field class applied per call, ctime always).
// A plain (non-fd) setattr has no inode handle in this module's simplified
// loc tuple (spec.md §3 Open Questions nothing; this is a loc.Loc
// simplification, see DESIGN.md) and is left as a pure pass-through.
func (t *Translator) onSetattrUnwind(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	local, _ := fr.Local.(setattrLocal)
	if reply.OpRet >= 0 && local.inode != nil {
		if ctx, ok := GetContext(local.inode); ok && ctx.IsBlockDevice {
			switch {
			case local.valid&fop.SetattrUID != 0:
				ctx.Cached.Uid = reply.PostOp.Uid
			case local.valid&fop.SetattrGID != 0:
				ctx.Cached.Gid = reply.PostOp.Gid
			case local.valid&fop.SetattrMode != 0:
				ctx.Cached.Type = reply.PostOp.Type
				ctx.Cached.Mode = reply.PostOp.Mode
			case local.valid&fop.SetattrAtime != 0:
				ctx.Cached.Atime = reply.PostOp.Atime
			case local.valid&fop.SetattrMtime != 0:
				ctx.Cached.Mtime = reply.PostOp.Mtime
			}
			ctx.Cached.Ctime = reply.PostOp.Ctime
			SetContext(local.inode, ctx)
			reply.PostOp = ctx.Cached
		}
	}
	translator.UnwindUp(t, fr, k, reply)
}

// rchecksum mirrors bd_rchecksum: for a BD-bound fd, pread the LV range
// directly at the caller's offset and size (the read is not widened to
// page alignment) and compute a weak rolling checksum plus a strong MD5
// digest over it (spec.md §4.2 "Rchecksum"); non-bd fds fall through to the
// posix backend untouched.
func (t *Translator) rchecksum(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fdctx, ok := t.fdContext(args.Fd)
	if !ok {
		t.forward(fr, k, args)
		return
	}

	buf := make([]byte, args.Size)
	n, err := unix.Pread(int(fdctx.File.Fd()), buf, args.Offset)
	if err != nil {
		t.reply(fr, k, fop.Err(toErrno(err)))
		return
	}
	buf = buf[:n]

	sum := md5.Sum(buf)
	t.reply(fr, k, fop.Reply{
		OpRet:          0,
		WeakChecksum:   adler32.Checksum(buf),
		StrongChecksum: sum[:],
	})
}

func (t *Translator) bdContext(fd *inode.Fd) (InodeContext, bool) {
	if fd == nil {
		return InodeContext{}, false
	}
	return GetContext(fd.Inode())
}

func (t *Translator) fdContext(fd *inode.Fd) (FdContext, bool) {
	if fd == nil {
		return FdContext{}, false
	}
	v, ok := fd.Context(contextKey)
	if !ok {
		return FdContext{}, false
	}
	fc, ok := v.(FdContext)
	return fc, ok
}

func (t *Translator) inodeForLoc(args fop.Args) *inode.Inode {
	if args.Fd != nil {
		return args.Fd.Inode()
	}
	return nil
}

func toErrno(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}

const args0Name = "value"

// BD_CLONE/BD_SNAPSHOT/BD_MERGE are the setxattr key names that trigger
// offload operations, taken verbatim from bd.h since they are wire-format
// names.
const (
	BD_CLONE    = "clone"
	BD_SNAPSHOT = "snapshot"
	BD_MERGE    = "merge"
)
