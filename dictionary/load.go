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
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/dicom3.tsv
var standardDictionary []byte

func init() {
	d, err := ParseTSV(DefaultName, bytes.NewReader(standardDictionary))
	if err != nil {
		panic(fmt.Sprintf("parsing embedded dictionary: %v", err))
	}
	if err := Register(d); err != nil {
		panic(err)
	}
}

// ParseTSV reads a tab separated dictionary. Each row holds the tag as "(gggg,eeee)", the VR,
// the name, the VM and the version ("RET" marks retired attributes). Lines starting with '#'
// are comments.
func ParseTSV(name string, r io.Reader) (*Dictionary, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	var entries []Entry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dictionary row: %v", err)
		}
		if len(row) < 3 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected at least 3 columns, got %d", line, len(row))
		}
		e, err := newEntry(row[0], row[1], row[2])
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %v", line, err)
		}
		if len(row) > 3 {
			e.VM = row[3]
		}
		if len(row) > 4 {
			e.Retired = strings.EqualFold(row[4], "RET")
		}
		entries = append(entries, e)
	}
	return New(name, entries), nil
}

type yamlEntry struct {
	Tag     string `yaml:"tag"`
	VR      string `yaml:"vr"`
	Name    string `yaml:"name"`
	VM      string `yaml:"vm"`
	Retired bool   `yaml:"retired"`
}

// ParseYAML reads a dictionary written as a YAML list of entries:
//
//	- tag: "(0010,0010)"
//	  vr: PN
//	  name: PatientName
//	  vm: "1"
func ParseYAML(name string, r io.Reader) (*Dictionary, error) {
	var rows []yamlEntry
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding yaml dictionary: %v", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		e, err := newEntry(row.Tag, row.VR, row.Name)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %v", i, err)
		}
		e.VM = row.VM
		e.Retired = row.Retired
		entries = append(entries, e)
	}
	return New(name, entries), nil
}

// LoadFile reads a dictionary file, choosing the format from the file extension: .yaml/.yml
// for YAML and anything else for TSV.
func LoadFile(name, path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(name, f)
	default:
		return ParseTSV(name, f)
	}
}

func newEntry(tag, vr, name string) (Entry, error) {
	group, element, mask, err := parseTag(tag)
	if err != nil {
		return Entry{}, err
	}
	vr = firstVR(vr)
	if len(vr) != 2 && vr != "NONE" {
		return Entry{}, fmt.Errorf("invalid vr %q for tag %s", vr, tag)
	}
	return Entry{
		Group:   group,
		Element: element,
		VR:      vr,
		Name:    strings.TrimSpace(name),
		mask:    mask,
	}, nil
}

// parseTag splits "(gggg,eeee)" into a group and element. Any 'x' hex digit is treated as a
// wildcard: it is set to 0 in the returned tag and cleared in the returned mask.
func parseTag(tag string) (uint16, uint16, uint32, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(tag), "()"), ",")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 4 {
		return 0, 0, 0, fmt.Errorf("malformed tag %q", tag)
	}

	digits := strings.ToLower(parts[0] + parts[1])
	mask := uint32(0)
	for _, c := range digits {
		mask <<= 4
		if c != 'x' {
			mask |= 0xF
		}
	}

	v, err := strconv.ParseUint(strings.ReplaceAll(digits, "x", "0"), 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed tag %q: %v", tag, err)
	}
	return uint16(v >> 16), uint16(v), mask, nil
}
