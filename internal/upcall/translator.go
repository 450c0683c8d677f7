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
	"context"

	"github.com/voltrans/voltrans/internal/fop"
	"github.com/voltrans/voltrans/internal/translator"
)

// contentKinds, attrKinds, and nameKinds classify every FOP that can
// change an inode's content, attributes, or directory-entry/nlink shape,
// per spec.md §4.3's "on any operation that changes content, size,
// permissions, name, or xattrs" rule, each tagged with the Flags bits the
// broadcast Event carries for it. xattr-mutating kinds are handled
// separately through NotifyXattrChange/NotifyXattrRemove so the
// registered-xattrs filter (spec.md §4.3's "filter out keys not in the
// registered-xattrs dictionary") applies.
var contentKinds = map[fop.Kind]bool{
	fop.KindWritev:    true,
	fop.KindFallocate: true,
	fop.KindDiscard:   true,
	fop.KindZerofill:  true,
}

var attrKinds = map[fop.Kind]bool{
	fop.KindSetattr:   true,
	fop.KindFsetattr:  true,
	fop.KindTruncate:  true,
	fop.KindFtruncate: true,
}

var nameKinds = map[fop.Kind]bool{
	fop.KindRename:  true,
	fop.KindUnlink:  true,
	fop.KindLink:    true,
	fop.KindMkdir:   true,
	fop.KindRmdir:   true,
	fop.KindCreate:  true,
	fop.KindMknod:   true,
	fop.KindSymlink: true,
}

var xattrKinds = map[fop.Kind]bool{
	fop.KindSetxattr:     true,
	fop.KindFsetxattr:    true,
	fop.KindRemovexattr:  true,
	fop.KindFremovexattr: true,
}

// removeKinds marks which of xattrKinds is a removal rather than a set,
// so windXattr can route to NotifyXattrRemove instead of
// NotifyXattrChange.
var removeKinds = map[fop.Kind]bool{
	fop.KindRemovexattr:  true,
	fop.KindFremovexattr: true,
}

// flagsFor reports the Flags bits a successful reply to k contributes to
// its broadcast Event, beyond whatever windMutating's EventKind already
// implies -- every mutating FOP always touches ctime, so UpTimes is
// carried by every one of them (bd_setattr_cbk-style "ctime always
// advances" behavior generalized to the whole upcall layer).
func flagsFor(k fop.Kind) Flags {
	flags := UpTimes
	switch {
	case contentKinds[k]:
		flags |= UpWrite
	case attrKinds[k]:
		flags |= UpAttr
	case nameKinds[k]:
		flags |= UpNlink | UpParentDentry
	}
	return flags
}

// Translator sits above the page cache in the stack (spec.md §2's
// diagram: "upcall layer" feeding "io-cache"). It forwards every FOP
// untouched to FirstChild; for FOPs that can mutate an inode it stashes
// enough identity on the frame's scratch slot (Frame.Local) at Wind time
// to broadcast the right event once the reply actually arrives at
// Unwind, so a failed FOP never invalidates anyone's cache. Because each
// translator in this single-child stack is its child's one and only
// Parent, the child's own reply -- wound through translator.UnwindUp --
// always lands on this Translator's Unwind without any extra frame
// bookkeeping.
type Translator struct {
	*translator.Base

	reg *Registry
}

// scratch is what Translator stashes on Frame.Local between Wind and
// Unwind for a mutating FOP; no other translator in this stack touches
// Frame.Local, so there is no risk of collision.
type scratch struct {
	gfid      string
	kind      fop.Kind
	xattrKey  string
	xattrVal  []byte
	eventKind EventKind
	isXattr   bool
	isRemove  bool
}

// NewTranslator builds a Translator that broadcasts through reg. reg may
// be nil, in which case every FOP is a pure pass-through -- the shape
// "upcall.cache-invalidation" off (spec.md §6) takes at the translator
// level.
func NewTranslator(name string, reg *Registry) *Translator {
	t := &Translator{Base: translator.NewBase(name), reg: reg}

	for k := range contentKinds {
		t.OnWind(k, t.windMutating(EventContent))
	}
	for k := range attrKinds {
		t.OnWind(k, t.windMutating(EventAttr))
	}
	for k := range nameKinds {
		t.OnWind(k, t.windMutating(EventRename))
	}
	for k := range xattrKinds {
		t.OnWind(k, t.windXattr)
	}
	for k := range contentKinds {
		t.OnUnwind(k, t.unwindMutating)
	}
	for k := range attrKinds {
		t.OnUnwind(k, t.unwindMutating)
	}
	for k := range nameKinds {
		t.OnUnwind(k, t.unwindMutating)
	}
	for k := range xattrKinds {
		t.OnUnwind(k, t.unwindMutating)
	}

	t.OnWind(fop.KindOpen, t.windTouch)
	t.OnWind(fop.KindReadv, t.windTouch)
	t.OnWind(fop.KindLookup, t.windTouch)

	return t
}

func clientID(fr *fop.Frame) string {
	if fr.Root == nil {
		return ""
	}
	return fr.Root.ClientID
}

func (t *Translator) forward(fr *fop.Frame, k fop.Kind, args fop.Args) {
	child := t.FirstChild()
	if child == nil {
		translator.UnwindUp(t, fr, k, fop.UnknownKindReply())
		return
	}
	child.(translator.Translator).Wind(fr, k, args)
}

// windTouch records the calling client's access time on the target
// inode's registration (if any), without classifying the FOP as
// mutating, then forwards unchanged. It is registered for lookup, open
// and readv, so a read-only client keeps its registration alive between
// the writes that actually trigger broadcasts; the mutating FOPs stamp
// the access time in unwindMutating.
func (t *Translator) windTouch(fr *fop.Frame, k fop.Kind, args fop.Args) {
	if t.reg != nil {
		if gfid := gfidOfArgs(args); gfid != "" {
			t.reg.RecordAccess(gfid, clientID(fr))
		}
	}
	t.forward(fr, k, args)
}

// windMutating stashes the affected gfid and event classification on the
// frame before forwarding, so unwindMutating can broadcast once (and
// only if) the reply indicates success.
func (t *Translator) windMutating(kind EventKind) translator.WindFunc {
	return func(fr *fop.Frame, k fop.Kind, args fop.Args) {
		fr.Local = scratch{gfid: gfidOfArgs(args), kind: k, eventKind: kind}
		t.forward(fr, k, args)
	}
}

// windXattr is windMutating's xattr-specific twin: the key, value, and
// set-vs-remove distinction are recorded too, since
// NotifyXattrChange/NotifyXattrRemove need them to apply the
// registered-xattrs and all-zero-pending-counters filters.
func (t *Translator) windXattr(fr *fop.Frame, k fop.Kind, args fop.Args) {
	fr.Local = scratch{
		gfid:     gfidOfArgs(args),
		kind:     k,
		xattrKey: args.Name,
		xattrVal: args.Value,
		isXattr:  true,
		isRemove: removeKinds[k],
	}
	t.forward(fr, k, args)
}

// unwindMutating records the calling client's access time on the inode
// stashed in Frame.Local by windMutating/windXattr and broadcasts the
// stashed event if the reply was successful, then forwards the reply up
// unchanged.
func (t *Translator) unwindMutating(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	s, _ := fr.Local.(scratch)
	if t.reg != nil && s.gfid != "" {
		t.reg.RecordAccess(s.gfid, clientID(fr))
	}
	if reply.OpRet >= 0 && t.reg != nil && s.gfid != "" {
		if s.isXattr {
			if s.isRemove {
				t.reg.NotifyXattrRemove(context.Background(), s.gfid, s.xattrKey)
			} else {
				t.reg.NotifyXattrChange(context.Background(), s.gfid, s.xattrKey, s.xattrVal)
			}
		} else {
			t.reg.Broadcast(context.Background(), Event{
				Kind:  s.eventKind,
				Gfid:  s.gfid,
				Flags: flagsFor(s.kind),
				Stat:  reply.PostOp,
			})
		}
	}
	translator.UnwindUp(t, fr, k, reply)
}

func gfidOfArgs(args fop.Args) string {
	if args.Fd != nil {
		return args.Fd.Inode().Gfid().String()
	}
	if !args.Loc.Gfid.IsNil() {
		return args.Loc.Gfid.String()
	}
	return ""
}
