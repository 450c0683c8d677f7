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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	out   map[string]string // joined args -> canned stdout
	err   error
	errOn map[string]bool // command name (e.g. "lvresize") -> fail just that command
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	if f.err != nil {
		return "", f.err
	}
	if f.errOn[name] {
		return "", fmt.Errorf("fakeRunner: %s failed", name)
	}
	return f.out[strings.Join(call, " ")], nil
}

// ran reports whether a command named name was issued.
func (f *fakeRunner) ran(name string) bool {
	for _, call := range f.calls {
		if len(call) > 0 && call[0] == name {
			return true
		}
	}
	return false
}

func TestOpenVolumeGroupDetectsThinPool(t *testing.T) {
	runner := &fakeRunner{out: map[string]string{
		"lvs --noheadings -o lv_attr vg0/pool0": "twi-a-tz--",
	}}

	vg, err := openVolumeGroup(context.Background(), "vg0", "pool0", "", runner)
	require.NoError(t, err)

	assert.True(t, vg.Caps&CapThinProvision != 0)
	assert.Equal(t, "pool0", vg.Pool)
}

func TestOpenVolumeGroupDisablesThinWhenPoolIsNotThin(t *testing.T) {
	runner := &fakeRunner{out: map[string]string{
		"lvs --noheadings -o lv_attr vg0/pool0": "-wi-a-----",
	}}

	vg, err := openVolumeGroup(context.Background(), "vg0", "pool0", "", runner)
	require.NoError(t, err)

	assert.False(t, vg.Caps&CapThinProvision != 0)
	assert.Empty(t, vg.Pool)
}

func TestOpenVolumeGroupAcceptsMatchingVolumeIDTag(t *testing.T) {
	const id = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	runner := &fakeRunner{out: map[string]string{
		"vgs --noheadings -o tags vg0": "trusted.glusterfs.volume-id=" + id,
	}}

	vg, err := openVolumeGroup(context.Background(), "vg0", "", id, runner)
	require.NoError(t, err)
	assert.Equal(t, "vg0", vg.Name)
}

func TestOpenVolumeGroupRejectsMismatchedVolumeIDTag(t *testing.T) {
	runner := &fakeRunner{out: map[string]string{
		"vgs --noheadings -o tags vg0": "trusted.glusterfs.volume-id=00000000-0000-0000-0000-000000000000",
	}}

	_, err := openVolumeGroup(context.Background(), "vg0", "", "f47ac10b-58cc-4372-a567-0e02b2c3d479", runner)
	require.ErrorIs(t, err, ErrVolumeIDMismatch)
}

func TestOpenVolumeGroupRejectsMissingVolumeIDTag(t *testing.T) {
	runner := &fakeRunner{out: map[string]string{
		"vgs --noheadings -o tags vg0": "",
	}}

	_, err := openVolumeGroup(context.Background(), "vg0", "", "f47ac10b-58cc-4372-a567-0e02b2c3d479", runner)
	require.ErrorIs(t, err, ErrVolumeIDMismatch)
}

func TestCreateLVUsesThinFlagWhenPoolConfigured(t *testing.T) {
	runner := &fakeRunner{}
	vg := &VolumeGroup{Name: "vg0", Pool: "pool0", runner: runner}

	require.NoError(t, vg.CreateLV(context.Background(), "abc", 4096))

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "--thin")
	assert.Contains(t, runner.calls[0], "vg0/pool0")
}

func TestCreateLVPlainWhenNoPool(t *testing.T) {
	runner := &fakeRunner{}
	vg := &VolumeGroup{Name: "vg0", runner: runner}

	require.NoError(t, vg.CreateLV(context.Background(), "abc", 4096))

	require.Len(t, runner.calls, 1)
	assert.NotContains(t, runner.calls[0], "--thin")
	assert.Contains(t, runner.calls[0], "vg0")
}

func TestMergeLVShellsOutToLvconvert(t *testing.T) {
	runner := &fakeRunner{}
	vg := &VolumeGroup{Name: "vg0", runner: runner}

	require.NoError(t, vg.MergeLV(context.Background(), "snap0"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "lvconvert", runner.calls[0][0])
	assert.Contains(t, runner.calls[0], "/dev/vg0/snap0")
}

func TestParseBDXattrRoundTrips(t *testing.T) {
	for _, raw := range []string{"lv:1048576", "thin:4096"} {
		v, err := ParseBDXattr(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, v.String())
	}
}

func TestParseBDXattrRejectsMalformed(t *testing.T) {
	_, err := ParseBDXattr("garbage")
	assert.Error(t, err)

	_, err = ParseBDXattr("lv:notanumber")
	assert.Error(t, err)

	_, err = ParseBDXattr("weird:123")
	assert.Error(t, err)
}
