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

package dicom

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func tags(nodes []*DataElement) []DataElementTag {
	var ret []DataElementTag
	for _, n := range nodes {
		ret = append(ret, n.Tag)
	}
	return ret
}

func TestAddChild(t *testing.T) {
	root := NewRoot(nil)
	mustAdd(t, root,
		mustElement(t, PatientNameTag, PNVR, "Doe^John"),
		mustElement(t, ModalityTag, CSVR, "MR"),
		mustElement(t, FileMetaInformationGroupLengthTag, ULVR, 0),
		mustElement(t, ModalityTag, CSVR, "CT"),
	)

	want := []DataElementTag{FileMetaInformationGroupLengthTag, ModalityTag, PatientNameTag}
	if got := tags(root.Children()); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := root.ChildByTag(ModalityTag).ValueString(); got != "CT" {
		t.Fatalf("got %q, want the replaced value CT", got)
	}

	seq := NewSequence(ReferencedImageSequenceTag)
	item := NewItem()
	tests := []struct {
		name   string
		parent *DataElement
		child  *DataElement
	}{
		{"item in root", root, item},
		{"data element in sequence", seq, mustElement(t, ModalityTag, CSVR, "CT")},
		{"child of a value", root.ChildByTag(ModalityTag), mustElement(t, PatientIDTag, LOVR, "1")},
		{"item in item", item, NewItem()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.parent.AddChild(tc.child); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	mustAdd(t, seq, item, NewItem())
	if got := len(seq.Items()); got != 2 {
		t.Fatalf("got %d items, want 2", got)
	}
	if root.Items() != nil {
		t.Fatalf("expected the root to have no items")
	}
}

func TestRemoveDataElements(t *testing.T) {
	root := NewRoot(nil)
	inner := NewItem(mustElement(t, LengthToEndTag, ULVR, 1), mustElement(t, ModalityTag, CSVR, "CT"))
	mustAdd(t, root,
		mustElement(t, LengthToEndTag, ULVR, 1),
		mustElement(t, ModalityTag, CSVR, "CT"),
		NewSequence(ReferencedImageSequenceTag, NewItem(NewSequence(contentSequenceTag, inner))),
	)

	if got := root.RemoveDataElements(0x0008, 0x0001); got != 2 {
		t.Fatalf("got %d removed, want 2", got)
	}
	if got := tags(inner.Children()); !reflect.DeepEqual(got, []DataElementTag{ModalityTag}) {
		t.Fatalf("got %v, want only Modality", got)
	}
	if got := root.RemoveDataElements(0x0008, 0x0001); got != 0 {
		t.Fatalf("got %d removed, want 0", got)
	}
	if got := root.RemoveDataElements(0x0008, 0x1140); got != 1 {
		t.Fatalf("got %d removed, want 1", got)
	}
	if got := tags(root.Children()); !reflect.DeepEqual(got, []DataElementTag{ModalityTag}) {
		t.Fatalf("got %v, want only Modality", got)
	}
}

func TestWalk(t *testing.T) {
	root := NewRoot(nil)
	mustAdd(t, root,
		mustElement(t, ModalityTag, CSVR, "CT"),
		NewSequence(ReferencedImageSequenceTag, NewItem(mustElement(t, ReferencedSOPInstanceUIDTag, UIVR, "1.2"))),
		mustElement(t, PatientNameTag, PNVR, "Doe^John"),
	)

	type visit struct {
		tag   DataElementTag
		depth int
	}
	var got []visit
	root.Walk(func(n *DataElement, depth int) error {
		got = append(got, visit{n.Tag, depth})
		return nil
	})
	want := []visit{
		{0, 0},
		{ModalityTag, 1},
		{ReferencedImageSequenceTag, 1},
		{ItemTag, 2},
		{ReferencedSOPInstanceUIDTag, 3},
		{PatientNameTag, 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got = nil
	root.Walk(func(n *DataElement, depth int) error {
		got = append(got, visit{n.Tag, depth})
		if n.IsSequence() {
			return SkipChildren
		}
		return nil
	})
	if len(got) != 4 {
		t.Fatalf("got %v, want the sequence children skipped", got)
	}

	errStop := errors.New("stop")
	if err := root.Walk(func(*DataElement, int) error { return errStop }); err != errStop {
		t.Fatalf("got %v, want %v", err, errStop)
	}
}

func TestString(t *testing.T) {
	root := NewRoot(nil)
	item := NewItem(mustElement(t, ReferencedSOPInstanceUIDTag, UIVR, "1.2"))
	seq := NewSequence(ReferencedImageSequenceTag, item)
	seq.Length = UndefinedLength
	px, err := NewEncapsulatedPixelData(OBVR, []byte{}, []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("NewEncapsulatedPixelData: %v", err)
	}
	mustAdd(t, root, mustElement(t, ModalityTag, CSVR, "CT"), seq, px)

	want := strings.Join([]string{
		"(0008,0060) CS Modality [CT]",
		"(0008,1140) SQ ReferencedImageSequence (undefined length) (1 items)",
		"  (FFFE,E000) Item (0 bytes)",
		"    (0008,1155) UI ReferencedSOPInstanceUID [1.2]",
		"(7FE0,0010) OB PixelData (undefined length) (2 items)",
		"  (FFFE,E000) Fragment (0 bytes) []",
		"  (FFFE,E000) Fragment (2 bytes) [ff d8]",
	}, "\n")
	if got := root.String(); got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}

	if got := seq.String(); !strings.HasPrefix(got, "(0008,1140) SQ") || !strings.Contains(got, "\n    (0008,1155)") {
		t.Fatalf("unexpected rendering of a subtree:\n%s", got)
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name string
		e    *DataElement
		want string
	}{
		{"root", NewRoot(nil), "Root"},
		{"item", NewItem(), "Item"},
		{"known", mustElement(t, PatientNameTag, PNVR, "Doe"), "PatientName"},
		{"repeating group", mustElement(t, NewTag(0x6002, 0x0050), SSVR, []int16{1, 1}), "OverlayOrigin"},
		{"private creator", mustElement(t, NewTag(0x0009, 0x0010), LOVR, "ACME"), "PrivateCreator"},
		{"private", mustElement(t, NewTag(0x0009, 0x1001), UNVR, []byte{}), "Private"},
		{"unknown", mustElement(t, NewTag(0x0008, 0xFFF0), UNVR, []byte{}), "Unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.e.Description(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncapsulatedPixelData(t *testing.T) {
	if _, err := NewEncapsulatedPixelData(USVR); err == nil {
		t.Fatalf("expected an error for VR US")
	}

	px, err := NewEncapsulatedPixelData(OWVR, []byte{}, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewEncapsulatedPixelData: %v", err)
	}
	if !px.IsEncapsulated() || px.IsSequence() {
		t.Fatalf("expected encapsulated pixel data that is not a sequence")
	}
	want := [][]byte{{}, {1, 2, 3, 4}}
	if got := px.Fragments(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(px.Items()) != 2 {
		t.Fatalf("got %d items, want 2", len(px.Items()))
	}
	if mustElement(t, ModalityTag, CSVR, "CT").Fragments() != nil {
		t.Fatalf("expected no fragments for a data element")
	}

	// header, offset table, fragment and sequence delimiter
	for _, syntax := range []TransferSyntax{ExplicitVRLittleEndian, ImplicitVRLittleEndian} {
		got, err := px.EncodedLength(syntax)
		if err != nil {
			t.Fatalf("EncodedLength: %v", err)
		}
		want := uint64(syntax.headerSize(OWVR)) + 8 + 12 + 8
		if got != want {
			t.Fatalf("%v: got %d, want %d", syntax, got, want)
		}
	}
}

func TestEncodedLength(t *testing.T) {
	undefined := NewSequence(ReferencedImageSequenceTag, NewItem(mustElement(t, ModalityTag, CSVR, "CT")))
	undefined.Length = UndefinedLength
	undefined.Items()[0].Length = UndefinedLength

	root := NewRoot(nil)
	mustAdd(t, root, mustElement(t, ModalityTag, CSVR, "CT"))

	tests := []struct {
		name   string
		e      *DataElement
		syntax TransferSyntax
		want   uint64
	}{
		{"short header", mustElement(t, ModalityTag, CSVR, "CT"), ExplicitVRLittleEndian, 10},
		{"long header", mustElement(t, NewTag(0x0009, 0x1001), OBVR, []byte{1, 2, 3}), ExplicitVRLittleEndian, 16},
		{"implicit", mustElement(t, NewTag(0x0009, 0x1001), OBVR, []byte{1, 2, 3}), ImplicitVRLittleEndian, 12},
		{"padded text", mustElement(t, PatientIDTag, LOVR, "123"), ExplicitVRBigEndian, 12},
		{"undefined length sequence", undefined, ExplicitVRLittleEndian, 12 + 8 + 10 + 8 + 8},
		{"defined length sequence", NewSequence(ReferencedImageSequenceTag, NewItem(mustElement(t, ModalityTag, CSVR, "CT"))), ImplicitVRLittleEndian, 8 + 8 + 10},
		{"empty sequence", NewSequence(ReferencedImageSequenceTag), ExplicitVRLittleEndian, 12},
		{"root", root, ExplicitVRLittleEndian, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.e.EncodedLength(tc.syntax)
			if err != nil {
				t.Fatalf("EncodedLength: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSetValue(t *testing.T) {
	e := mustElement(t, PatientIDTag, LOVR, "12")
	if err := e.SetValue("12345"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if e.ValueString() != "12345" || e.Length != 6 {
		t.Fatalf("got %q of length %d, want 12345 of length 6", e.ValueString(), e.Length)
	}

	if err := e.SetValue(3.5); err == nil {
		t.Fatalf("expected an error for a float LO value")
	}
	if e.ValueString() != "12345" {
		t.Fatalf("expected a failed SetValue to keep the value, got %q", e.ValueString())
	}

	if err := NewSequence(ReferencedImageSequenceTag).SetValue("x"); err == nil {
		t.Fatalf("expected an error setting the value of a sequence")
	}
	if err := NewRoot(nil).SetValue("x"); err == nil {
		t.Fatalf("expected an error setting the value of the root")
	}
	if NewSequence(ReferencedImageSequenceTag).ValueString() != "" {
		t.Fatalf("expected an empty string for a sequence")
	}
}
