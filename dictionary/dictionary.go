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

// Package dictionary provides the DICOM Data Dictionary, mapping (group,element) tag pairs to
// their value representation, name and value multiplicity as listed in
// http://dicom.nema.org/medical/dicom/current/output/html/part06.html.
//
// A Dictionary is immutable once built and is safe to share between goroutines. Dictionaries are
// registered by name so that documents can select one with a string.
package dictionary

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
	"sync"
)

// DefaultName is the name under which the embedded standard dictionary is registered.
const DefaultName = "dicom3"

// Entry describes a single Data Dictionary entry.
type Entry struct {
	Group   uint16
	Element uint16

	// VR is the 2-character value representation code. Entries allowing several VRs
	// (e.g. "OB or OW") keep only the first one.
	VR string

	// Name is the keyword of the attribute, e.g. "PatientName"
	Name string

	// VM is the value multiplicity, e.g. "1", "1-n", "2-2n"
	VM string

	Retired bool

	// mask selects the bits of a tag compared against this entry; wildcard entries such as
	// (50xx,3000) have the x digits masked out.
	mask uint32
}

// Tag returns the packed group<<16|element value of the entry.
func (e Entry) Tag() uint32 {
	return uint32(e.Group)<<16 | uint32(e.Element)
}

func (e Entry) String() string {
	return fmt.Sprintf("(%04X,%04X) %s %s", e.Group, e.Element, e.VR, e.Name)
}

// Dictionary is an immutable lookup table from tags to entries.
type Dictionary struct {
	name      string
	entries   map[uint32]Entry
	wildcards map[uint32]Entry

	// masks lists the distinct masks of the wildcard entries. Tags with wildcards are stored
	// with the x's set to '0', so a tag t matches an entry e when t&e.mask == e.Tag().
	masks []uint32
}

// New builds a Dictionary from the given entries. Later entries replace earlier entries with
// the same tag.
func New(name string, entries []Entry) *Dictionary {
	d := &Dictionary{
		name:      name,
		entries:   make(map[uint32]Entry, len(entries)),
		wildcards: map[uint32]Entry{},
	}
	for _, e := range entries {
		if e.mask == 0 || e.mask == 0xFFFFFFFF {
			e.mask = 0xFFFFFFFF
			d.entries[e.Tag()] = e
			continue
		}
		if !containsMask(d.masks, e.mask) {
			d.masks = append(d.masks, e.mask)
		}
		d.wildcards[e.Tag()] = e
	}
	// most specific masks first
	sort.Slice(d.masks, func(i, j int) bool {
		return bits.OnesCount32(d.masks[i]) > bits.OnesCount32(d.masks[j])
	})
	return d
}

// Name returns the name the dictionary was built with.
func (d *Dictionary) Name() string {
	return d.name
}

// Len returns the number of entries, wildcard entries included.
func (d *Dictionary) Len() int {
	return len(d.entries) + len(d.wildcards)
}

// Lookup returns the entry of the given tag. Tags not listed explicitly fall back to
// wildcard entries, generic group lengths (gggg,0000) and private creator elements
// (gggg,0010-00FF) for odd groups.
func (d *Dictionary) Lookup(group, element uint16) (Entry, bool) {
	tag := uint32(group)<<16 | uint32(element)
	if e, ok := d.entries[tag]; ok {
		return e, true
	}
	for _, m := range d.masks {
		if e, ok := d.wildcards[tag&m]; ok && e.mask == m {
			e.Group, e.Element = group, element
			return e, true
		}
	}

	switch {
	case element == 0x0000:
		return Entry{Group: group, Element: element, VR: "UL", Name: "GenericGroupLength", VM: "1", mask: 0xFFFFFFFF}, true
	case group%2 == 1 && element >= 0x0010 && element <= 0x00FF:
		return Entry{Group: group, Element: element, VR: "LO", Name: "PrivateCreator", VM: "1", mask: 0xFFFFFFFF}, true
	}
	return Entry{}, false
}

// Entries returns every entry ordered by tag.
func (d *Dictionary) Entries() []Entry {
	ret := make([]Entry, 0, d.Len())
	for _, e := range d.entries {
		ret = append(ret, e)
	}
	for _, e := range d.wildcards {
		ret = append(ret, e)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Tag() < ret[j].Tag()
	})
	return ret
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Dictionary{}
)

// Register makes the dictionary available under its name, replacing any dictionary registered
// with the same name.
func Register(d *Dictionary) error {
	if d == nil || d.name == "" {
		return fmt.Errorf("dictionary must have a name")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.name] = d
	return nil
}

// Get returns the dictionary registered under name.
func Get(name string) (*Dictionary, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown data dictionary %q", name)
	}
	return d, nil
}

// Names returns the sorted names of all registered dictionaries.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the embedded standard dictionary.
func Default() *Dictionary {
	d, err := Get(DefaultName)
	if err != nil {
		panic(err)
	}
	return d
}

// firstVR keeps the first alternative of multi-VR entries like "US or SS".
func firstVR(vr string) string {
	vr = strings.ToUpper(strings.TrimSpace(vr))
	if i := strings.Index(vr, " OR "); i >= 0 {
		vr = vr[:i]
	}
	return vr
}

func containsMask(masks []uint32, m uint32) bool {
	for _, have := range masks {
		if have == m {
			return true
		}
	}
	return false
}
