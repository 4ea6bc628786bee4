package dicom

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dictionary"
)

// streamBuilder assembles DICOM streams for tests, see
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.2 for the byte
// structure of data elements
type streamBuilder struct {
	buf    bytes.Buffer
	syntax TransferSyntax
}

// newFile starts a stream with the preamble and the DICM signature
func newFile() *streamBuilder {
	b := newStream(ExplicitVRLittleEndian)
	b.buf.Write(make([]byte, preambleSize))
	b.buf.Write(dicmSignature)
	return b
}

// newStream starts a stream without preamble
func newStream(syntax TransferSyntax) *streamBuilder {
	return &streamBuilder{syntax: syntax}
}

// use switches the syntax of the data elements written next
func (b *streamBuilder) use(syntax TransferSyntax) *streamBuilder {
	b.syntax = syntax
	return b
}

func (b *streamBuilder) order() binary.ByteOrder {
	return b.syntax.ByteOrder()
}

func (b *streamBuilder) raw(p []byte) *streamBuilder {
	b.buf.Write(p)
	return b
}

func (b *streamBuilder) u16(v uint16) *streamBuilder {
	var p [2]byte
	b.order().PutUint16(p[:], v)
	return b.raw(p[:])
}

func (b *streamBuilder) u32(v uint32) *streamBuilder {
	var p [4]byte
	b.order().PutUint32(p[:], v)
	return b.raw(p[:])
}

func (b *streamBuilder) tag(t DataElementTag) *streamBuilder {
	return b.u16(t.GroupNumber()).u16(t.ElementNumber())
}

// header writes a data element header in the current syntax
func (b *streamBuilder) header(t DataElementTag, vr VR, length uint32) *streamBuilder {
	b.tag(t)
	if b.syntax.Implicit {
		return b.u32(length)
	}
	b.raw([]byte(vr.String()))
	if vr.HasLongLength() {
		return b.u16(0).u32(length)
	}
	return b.u16(uint16(length))
}

// element writes a data element with the given value field
func (b *streamBuilder) element(t DataElementTag, vr VR, value []byte) *streamBuilder {
	return b.header(t, vr, uint32(len(value))).raw(value)
}

func (b *streamBuilder) item(length uint32) *streamBuilder {
	return b.tag(ItemTag).u32(length)
}

func (b *streamBuilder) itemDelimiter() *streamBuilder {
	return b.tag(ItemDelimitationItemTag).u32(0)
}

func (b *streamBuilder) sequenceDelimiter() *streamBuilder {
	return b.tag(SequenceDelimitationItemTag).u32(0)
}

// meta writes a file meta group with its group length, announcing uid, and switches to the
// announced syntax when it is known
func (b *streamBuilder) meta(uid string) *streamBuilder {
	m := newStream(ExplicitVRLittleEndian).
		element(FileMetaInformationVersionTag, OBVR, []byte{0, 1}).
		element(TransferSyntaxUIDTag, UIVR, uidBytes(uid))
	b.element(FileMetaInformationGroupLengthTag, ULVR, le32(uint32(m.buf.Len())))
	b.raw(m.bytes())
	if info, ok := lookupTransferSyntax(uid); ok {
		b.syntax = info.syntax
	}
	return b
}

// metaWithoutGroupLength writes a file meta group without group length element
func (b *streamBuilder) metaWithoutGroupLength(uid string) *streamBuilder {
	b.element(TransferSyntaxUIDTag, UIVR, uidBytes(uid))
	if info, ok := lookupTransferSyntax(uid); ok {
		b.syntax = info.syntax
	}
	return b
}

func (b *streamBuilder) bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// text pads s with a space to an even length
func text(s string) []byte {
	if len(s)%2 == 1 {
		s += " "
	}
	return []byte(s)
}

// uidBytes pads s with a null byte to an even length
func uidBytes(s string) []byte {
	b := []byte(s)
	if len(b)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// ctFile is a minimal file: meta information and the CT Modality
func ctFile() []byte {
	return newFile().meta(ExplicitVRLittleEndianUID).element(ModalityTag, CSVR, text("CT")).bytes()
}

func newTestReader(t *testing.T) *Reader {
	t.Helper()
	r := NewReader()
	r.SetDataDictionary(dictionary.Default())
	return r
}

func parseAll(t *testing.T, r *Reader, stream []byte) {
	t.Helper()
	if err := r.Parse(stream); err != nil {
		t.Fatalf("unexpected error parsing stream: %v", err)
	}
	if !r.Complete() {
		t.Fatalf("expected a complete data set, stopped in state %v at offset %d", r.state, r.Offset())
	}
}

func mustElement(t *testing.T, tag DataElementTag, vr VR, v interface{}) *DataElement {
	t.Helper()
	e, err := NewElement(tag, vr, v)
	if err != nil {
		t.Fatalf("NewElement(%v, %v, %v): unexpected error %v", tag, vr, v, err)
	}
	return e
}

func mustAdd(t *testing.T, parent *DataElement, children ...*DataElement) {
	t.Helper()
	for _, c := range children {
		if err := parent.AddChild(c); err != nil {
			t.Fatalf("AddChild(%v): unexpected error %v", c.Tag, err)
		}
	}
}

func flatten(root *DataElement) []*DataElement {
	var nodes []*DataElement
	root.Walk(func(n *DataElement, _ int) error {
		nodes = append(nodes, n)
		return nil
	})
	return nodes
}

// compareTrees checks that both trees have the same nodes, lengths and decoded values
func compareTrees(t *testing.T, got, want *DataElement) {
	t.Helper()
	g, w := flatten(got), flatten(want)
	if len(g) != len(w) {
		t.Fatalf("expected trees to have the same number of nodes: got %d, want %d\ngot:\n%v\nwant:\n%v", len(g), len(w), got, want)
	}
	for i := range g {
		if g[i].Tag != w[i].Tag || g[i].VR != w[i].VR || g[i].kind != w[i].kind {
			t.Fatalf("node %d: got %v %v, want %v %v", i, g[i].Tag, g[i].VR, w[i].Tag, w[i].VR)
		}
		if g[i].Length != w[i].Length {
			t.Fatalf("length of %v: got %d, want %d", g[i].Tag, g[i].Length, w[i].Length)
		}
		if (g[i].value == nil) != (w[i].value == nil) {
			t.Fatalf("value of %v: got %v, want %v", g[i].Tag, g[i].value, w[i].value)
		}
		if g[i].value == nil {
			continue
		}
		gv, err := g[i].value.Get()
		if err != nil {
			t.Fatalf("decoding %v: %v", g[i].Tag, err)
		}
		wv, err := w[i].value.Get()
		if err != nil {
			t.Fatalf("decoding %v: %v", w[i].Tag, err)
		}
		if !reflect.DeepEqual(gv, wv) {
			t.Fatalf("value of %v: got %#v, want %#v", g[i].Tag, gv, wv)
		}
	}
}
