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
	"fmt"
	"strconv"
	"strings"

	"github.com/voltrans/voltrans/internal/strfd"
)

// BDXattrKey is the setxattr key that selects block-device backing for a
// file: "trusted.glusterfs.bd" in the original, carried here unchanged
// since it is a wire-format name, not an implementation detail.
const BDXattrKey = "trusted.glusterfs.bd"

// Synthetic getxattr keys a client can query without knowing the backend
// exists, per bd.h's VOL_TYPE/VOL_CAPS and BD_ORIGIN. XattrListOrigin is
// the wire key spec.md §6 documents ("trusted.glusterfs.list-origin"),
// not a bare "list-origin" -- a real client getxattr for that key must
// land here rather than fall through to posix.
const (
	XattrVolumeType = "volume.type"
	XattrVolumeCaps = "volume.caps"
	XattrListOrigin = "trusted.glusterfs.list-origin"
)

// volumeTypeReplyValue is the fixed int64 "volume.type" replies with per
// spec.md §4.2/§6 -- a marker that the file is BD-backed at all, not an
// LVType discriminant (LVType is carried separately in InodeContext.Type).
const volumeTypeReplyValue int64 = 1

// LVType distinguishes a plain logical volume from a thin-provisioned
// one, the two values BD_LV/BD_THIN encode in bd.h.
type LVType int

const (
	LVTypeNone LVType = iota
	LVTypePlain
	LVTypeThin
)

func (t LVType) String() string {
	switch t {
	case LVTypePlain:
		return "lv"
	case LVTypeThin:
		return "thin"
	default:
		return "none"
	}
}

// BDXattrValue is the parsed form of a "trusted.glusterfs.bd" xattr
// value: "lv:<size>" or "thin:<size>", size in bytes.
type BDXattrValue struct {
	Type LVType
	Size uint64
}

// ParseBDXattr parses a raw xattr value, mirroring bd_validate_bd_xattr's
// "type:size" split.
func ParseBDXattr(raw string) (BDXattrValue, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return BDXattrValue{}, fmt.Errorf("blockdevice: malformed bd xattr %q", raw)
	}

	var typ LVType
	switch parts[0] {
	case "lv":
		typ = LVTypePlain
	case "thin":
		typ = LVTypeThin
	default:
		return BDXattrValue{}, fmt.Errorf("blockdevice: unknown bd xattr type %q", parts[0])
	}

	size, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return BDXattrValue{}, fmt.Errorf("blockdevice: bad size in bd xattr %q: %w", raw, err)
	}
	return BDXattrValue{Type: typ, Size: size}, nil
}

// String renders the value back into the wire form setxattr expects.
func (v BDXattrValue) String() string {
	return fmt.Sprintf("%s:%d", v.Type.String(), v.Size)
}

// capsString renders caps as a space-separated token list for the startup
// log line reporting what a volume group can do -- the "volume.caps"
// synthetic xattr itself replies with the raw int64 bitmask (spec.md §6),
// but a human reading the log wants the names, built incrementally on a
// strfd.Buf the way bd_getxattr assembles its VOL_CAPS string in a scratch
// strfd instead of a fixed-size stack buffer.
func capsString(caps Capability) string {
	buf := strfd.New()
	first := true
	write := func(tok string) {
		if !first {
			buf.Printf(" ")
		}
		buf.Printf("%s", tok)
		first = false
	}
	if caps&CapBlockDevice != 0 {
		write("block-device")
	}
	if caps&CapThinProvision != 0 {
		write("thin-provision")
	}
	if caps&CapOffloadCopy != 0 {
		write("offload-copy")
	}
	if caps&CapOffloadSnapshot != 0 {
		write("offload-snapshot")
	}
	if caps&CapOffloadZero != 0 {
		write("offload-zerofill")
	}
	return buf.String()
}
