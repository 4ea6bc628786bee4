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
	"fmt"
	"sort"
	"strings"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dictionary"
)

type nodeKind int

const (
	elementNode nodeKind = iota
	rootNode
	itemNode
)

// DataElement models a DICOM Data Element as defined in
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_3.10
//
// A DataElement is a node of the tree built by the Reader. Sequences hold their items as
// children, items hold data elements, and encapsulated pixel data holds its fragments as items.
// The root of a tree has no tag; it holds the top level data elements and the warnings
// collected while parsing.
type DataElement struct {
	Tag DataElementTag

	// Value Representation. Items and the root have no VR.
	VR VR

	// Length is the value length announced in the stream. For sequences and items it is either
	// UndefinedLength, and they are written with delimitation items, or any other value, and they
	// are written with a length computed from their children.
	Length uint32

	kind      nodeKind
	container bool
	value     *Value
	children  []*DataElement
	dict      *dictionary.Dictionary

	// warnings is only used by the root
	warnings []string
}

// NewRoot returns an empty root bound to the given dictionary. A nil dictionary selects the
// default dictionary.
func NewRoot(dict *dictionary.Dictionary) *DataElement {
	return &DataElement{kind: rootNode, container: true, dict: dict}
}

// NewElement returns a data element holding a value built as in NewValue.
func NewElement(tag DataElementTag, vr VR, v interface{}) (*DataElement, error) {
	value, err := NewValue(vr, v)
	if err != nil {
		return nil, fmt.Errorf("creating value of %v: %v", tag, err)
	}
	length, err := value.length()
	if err != nil {
		return nil, err
	}
	return &DataElement{Tag: tag, VR: vr, Length: length, value: value}, nil
}

// NewSequence returns a sequence of defined length holding the given items
func NewSequence(tag DataElementTag, items ...*DataElement) *DataElement {
	return &DataElement{Tag: tag, VR: SQVR, container: true, children: items}
}

// NewItem returns an item of defined length holding the given data elements in tag order
func NewItem(elements ...*DataElement) *DataElement {
	item := &DataElement{Tag: ItemTag, kind: itemNode, container: true, children: elements}
	sort.SliceStable(item.children, func(i, j int) bool {
		return item.children[i].Tag < item.children[j].Tag
	})
	return item
}

// NewEncapsulatedPixelData returns a Pixel Data element holding the given fragments. The first
// fragment is the basic offset table, which may be empty.
func NewEncapsulatedPixelData(vr VR, fragments ...[]byte) (*DataElement, error) {
	if vr != OBVR && vr != OWVR {
		return nil, fmt.Errorf("encapsulated pixel data must be OB or OW, got %v", vr)
	}
	px := &DataElement{Tag: PixelDataTag, VR: vr, Length: UndefinedLength, container: true}
	for _, f := range fragments {
		value, err := NewValue(OBVR, f)
		if err != nil {
			return nil, err
		}
		px.children = append(px.children, &DataElement{
			Tag: ItemTag, kind: itemNode, Length: uint32(len(f)), value: value,
		})
	}
	return px, nil
}

// IsRoot is true for the root of a tree
func (e *DataElement) IsRoot() bool {
	return e.kind == rootNode
}

// IsItem is true for sequence items and pixel data fragments
func (e *DataElement) IsItem() bool {
	return e.kind == itemNode
}

// IsEncapsulated is true for pixel data stored as a sequence of fragments
func (e *DataElement) IsEncapsulated() bool {
	return e.kind == elementNode && e.container && e.Tag == PixelDataTag && (e.VR == OBVR || e.VR == OWVR)
}

// IsSequence is true for data elements holding items. This includes UN elements of undefined
// length, which are parsed as sequences.
func (e *DataElement) IsSequence() bool {
	return e.kind == elementNode && e.container && !e.IsEncapsulated()
}

// Children returns the child nodes in stream order. The returned slice must not be modified.
func (e *DataElement) Children() []*DataElement {
	return e.children
}

// Items returns the items of a sequence or the fragments of encapsulated pixel data
func (e *DataElement) Items() []*DataElement {
	if e.kind != elementNode {
		return nil
	}
	return e.children
}

// Child returns the direct child with the given tag, or nil.
func (e *DataElement) Child(group, element uint16) *DataElement {
	return e.ChildByTag(NewTag(group, element))
}

// ChildByTag returns the direct child with the given tag, or nil.
func (e *DataElement) ChildByTag(tag DataElementTag) *DataElement {
	for _, c := range e.children {
		if c.Tag == tag && c.kind == elementNode {
			return c
		}
	}
	return nil
}

// Value returns the value field of the element, nil for sequences, items and the root.
func (e *DataElement) Value() *Value {
	return e.value
}

// ValueString returns the value as a string, see Value.String.
func (e *DataElement) ValueString() string {
	if e.value == nil {
		return ""
	}
	return e.value.String()
}

// SetValue replaces the value of the element. The value must be valid for the VR of the
// element, see NewValue. String values keep the character set the element was read with.
func (e *DataElement) SetValue(v interface{}) error {
	if e.container || e.kind == rootNode {
		return fmt.Errorf("%v holds children and has no value field", e.Tag)
	}
	cs := defaultCharacterRepertoire
	if e.value != nil && e.value.ctx.charset != nil {
		cs = e.value.ctx.charset
	}
	value, err := newValueWithCharset(e.VR, v, cs)
	if err != nil {
		return fmt.Errorf("setting value of %v: %v", e.Tag, err)
	}
	length, err := value.length()
	if err != nil {
		return err
	}
	e.value = value
	e.Length = length
	return nil
}

// Description returns the dictionary name of the element, or "Private" and "Unknown" for private
// and public tags the dictionary does not know
func (e *DataElement) Description() string {
	switch {
	case e.kind == rootNode:
		return "Root"
	case e.kind == itemNode:
		return "Item"
	}
	if entry, ok := e.dictionary().Lookup(e.Tag.GroupNumber(), e.Tag.ElementNumber()); ok {
		return entry.Name
	}
	if e.Tag.IsPrivate() {
		return "Private"
	}
	return "Unknown"
}

func (e *DataElement) dictionary() *dictionary.Dictionary {
	if e.dict != nil {
		return e.dict
	}
	return dictionary.Default()
}

// Warnings returns the recoverable anomalies collected while parsing. Only the root holds
// warnings.
func (e *DataElement) Warnings() []string {
	return e.warnings
}

func (e *DataElement) addWarning(w string) {
	e.warnings = append(e.warnings, w)
}

// AddChild adds a child node. Items are appended to sequences; data elements are inserted into
// items and the root in tag order, replacing any element with the same tag.
func (e *DataElement) AddChild(child *DataElement) error {
	switch {
	case e.kind == elementNode && !e.container:
		return fmt.Errorf("%v %v cannot hold children", e.Tag, e.VR)
	case e.kind == elementNode:
		if child.kind != itemNode {
			return fmt.Errorf("sequence %v only holds items, got %v", e.Tag, child.Tag)
		}
		e.children = append(e.children, child)
		return nil
	case child.kind != elementNode:
		return fmt.Errorf("%s only holds data elements", e.Description())
	}

	i := sort.Search(len(e.children), func(i int) bool {
		return e.children[i].Tag >= child.Tag
	})
	if i < len(e.children) && e.children[i].Tag == child.Tag {
		e.children[i] = child
		return nil
	}
	e.children = append(e.children, nil)
	copy(e.children[i+1:], e.children[i:])
	e.children[i] = child
	return nil
}

// appendChild adds a child in stream order
func (e *DataElement) appendChild(child *DataElement) {
	e.children = append(e.children, child)
}

// RemoveDataElements removes every data element with the given tag from the tree, at any
// depth, and returns how many were removed.
func (e *DataElement) RemoveDataElements(group, element uint16) int {
	tag := NewTag(group, element)
	removed := 0
	stack := []*DataElement{e}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		kept := n.children[:0]
		for _, c := range n.children {
			if c.kind == elementNode && c.Tag == tag {
				removed++
				continue
			}
			kept = append(kept, c)
			if c.container {
				stack = append(stack, c)
			}
		}
		for i := len(kept); i < len(n.children); i++ {
			n.children[i] = nil
		}
		n.children = kept
	}
	return removed
}

// SkipChildren is returned by a WalkFunc to skip the children of the node it was called with.
var SkipChildren = errors.New("skip children")

// WalkFunc is called by Walk for every node with its depth below the walk origin
type WalkFunc func(e *DataElement, depth int) error

// Walk calls fn for e and its descendants in depth-first pre-order. The traversal uses an
// explicit stack so deep nesting does not grow the call stack.
func (e *DataElement) Walk(fn WalkFunc) error {
	type entry struct {
		node  *DataElement
		depth int
	}
	stack := []entry{{e, 0}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := fn(cur.node, cur.depth)
		if err == SkipChildren {
			continue
		}
		if err != nil {
			return err
		}
		for i := len(cur.node.children) - 1; i >= 0; i-- {
			stack = append(stack, entry{cur.node.children[i], cur.depth + 1})
		}
	}
	return nil
}

// Fragments returns the fragments of encapsulated pixel data, starting with the basic offset
// table. It returns nil for any other node.
func (e *DataElement) Fragments() [][]byte {
	if !e.IsEncapsulated() {
		return nil
	}
	fragments := make([][]byte, 0, len(e.children))
	for _, f := range e.children {
		if f.value == nil {
			fragments = append(fragments, []byte{})
			continue
		}
		d, err := f.value.Get()
		b, ok := d.([]byte)
		if err != nil || !ok {
			b = f.value.raw
		}
		fragments = append(fragments, b)
	}
	return fragments
}

// EncodedLength returns the number of bytes the node occupies when written in the given
// transfer syntax, including its header and delimitation items. For the root, the file meta
// elements are measured in Explicit VR Little Endian and the rest in the syntax announced by the
// Transfer Syntax UID, if any.
func (e *DataElement) EncodedLength(syntax TransferSyntax) (uint64, error) {
	if e.kind == rootNode {
		plan, _, err := planRootSyntax(e, true, syntax)
		if err != nil {
			return 0, err
		}
		l, err := measure(e, plan)
		if err != nil {
			return 0, err
		}
		return l.size(e), nil
	}
	l, err := measure(e, func(*DataElement) TransferSyntax { return syntax })
	if err != nil {
		return 0, err
	}
	return l.size(e), nil
}

// bindDictionary sets the dictionary of every node of the tree
func (e *DataElement) bindDictionary(dict *dictionary.Dictionary) {
	e.Walk(func(n *DataElement, _ int) error {
		n.dict = dict
		return nil
	})
}

func (e *DataElement) String() string {
	var lines []string
	e.Walk(func(n *DataElement, depth int) error {
		if n.kind == rootNode {
			return nil
		}
		if e.kind == rootNode {
			depth--
		}
		lines = append(lines, strings.Repeat("  ", depth)+n.line())
		return nil
	})
	return strings.Join(lines, "\n")
}

// line renders the node without its children
func (e *DataElement) line() string {
	switch {
	case e.kind == itemNode && e.value != nil:
		n, _ := e.value.length()
		return fmt.Sprintf("%v Fragment (%d bytes) [%s]", e.Tag, n, e.value.String())
	case e.kind == itemNode:
		return fmt.Sprintf("%v Item %s", e.Tag, lengthString(e.Length))
	case e.container:
		return fmt.Sprintf("%v %v %s %s (%d items)", e.Tag, e.VR, e.Description(), lengthString(e.Length), len(e.children))
	}
	return fmt.Sprintf("%v %v %s [%s]", e.Tag, e.VR, e.Description(), e.ValueString())
}

func lengthString(length uint32) string {
	if length == UndefinedLength {
		return "(undefined length)"
	}
	return fmt.Sprintf("(%d bytes)", length)
}
