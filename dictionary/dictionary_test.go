// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dictionary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLookup(t *testing.T) {
	testCases := []struct {
		name    string
		group   uint16
		element uint16
		vr      string
		keyword string
	}{
		{"exact entry", 0x0008, 0x0060, "CS", "Modality"},
		{"multi vr keeps first", 0x7FE0, 0x0010, "OB", "PixelData"},
		{"group wildcard", 0x5002, 0x3000, "OB", "CurveData"},
		{"overlay wildcard", 0x6004, 0x0010, "US", "OverlayRows"},
		{"element wildcard", 0x0020, 0x3105, "CS", "SourceImageIDs"},
		{"generic group length", 0x0010, 0x0000, "UL", "GenericGroupLength"},
		{"private creator", 0x0009, 0x0010, "LO", "PrivateCreator"},
		{"consulting physician", 0x0008, 0x009C, "PN", "ConsultingPhysicianName"},
		{"admitting date", 0x0038, 0x0020, "DA", "AdmittingDate"},
		{"content person name", 0x0040, 0xA123, "PN", "PersonName"},
		{"retired interpretation author", 0x4008, 0x010C, "PN", "InterpretationAuthor"},
		{"functional groups", 0x5200, 0x9230, "SQ", "PerFrameFunctionalGroupsSequence"},
		{"curve wildcard", 0x5004, 0x0010, "US", "NumberOfPoints"},
	}

	d := Default()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, ok := d.Lookup(tc.group, tc.element)
			require.True(t, ok)
			assert.Equal(t, tc.vr, e.VR)
			assert.Equal(t, tc.keyword, e.Name)
			assert.Equal(t, tc.group, e.Group)
			assert.Equal(t, tc.element, e.Element)
		})
	}
}

func TestLookupMissing(t *testing.T) {
	_, ok := Default().Lookup(0x0009, 0x1001)
	assert.False(t, ok)
}

func TestRetired(t *testing.T) {
	e, ok := Default().Lookup(0x0008, 0x0001)
	require.True(t, ok)
	assert.True(t, e.Retired)
}

func TestParseTSV(t *testing.T) {
	in := "# comment\n(0011,1001)\tUS or SS\tVendorValue\t1\tDICOM\n(0011,1002)\tLT\tVendorNote\n"
	d, err := ParseTSV("vendor", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "vendor", d.Name())
	assert.Equal(t, 2, d.Len())

	e, ok := d.Lookup(0x0011, 0x1001)
	require.True(t, ok)
	assert.Equal(t, "US", e.VR)
	assert.Equal(t, "1", e.VM)
}

func TestParseTSVErrors(t *testing.T) {
	for _, in := range []string{
		"(0011,1001)\tUS\n",
		"(0011)\tUS\tName\n",
		"(00zz,1001)\tUS\tName\n",
		"(0011,1001)\tUSS\tName\n",
	} {
		_, err := ParseTSV("bad", strings.NewReader(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseYAML(t *testing.T) {
	in := `
- tag: "(0013,10xx)"
  vr: SH
  name: VendorCode
  vm: "1"
- tag: "(0013,2000)"
  vr: DA
  name: VendorDate
  retired: true
`
	d, err := ParseYAML("yaml-vendor", strings.NewReader(in))
	require.NoError(t, err)

	e, ok := d.Lookup(0x0013, 0x10AB)
	require.True(t, ok)
	assert.Equal(t, "VendorCode", e.Name)

	e, ok = d.Lookup(0x0013, 0x2000)
	require.True(t, ok)
	assert.True(t, e.Retired)
}

func TestLoadFileAndRegister(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("- tag: \"(0015,1000)\"\n  vr: UI\n  name: CustomUID\n"), 0o644))

	d, err := LoadFile("custom", path)
	require.NoError(t, err)
	require.NoError(t, Register(d))

	got, err := Get("custom")
	require.NoError(t, err)
	assert.Same(t, d, got)
	assert.Contains(t, Names(), "custom")
	assert.Contains(t, Names(), DefaultName)

	_, err = Get("missing")
	assert.Error(t, err)
}

func TestEntriesSorted(t *testing.T) {
	entries := Default().Entries()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Tag(), entries[i].Tag())
	}
}
