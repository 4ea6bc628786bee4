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
	"fmt"
)

// syntaxPlan returns the transfer syntax a top level node is written in
type syntaxPlan func(*DataElement) TransferSyntax

// planRootSyntax decides the transfer syntax of every top level element the way the Reader
// switches syntaxes: after the preamble the file meta elements are in Explicit VR Little Endian,
// and the syntax announced by the Transfer Syntax UID (or the initial syntax when none is
// announced) applies from the first element outside of the meta group. It also returns the
// syntax of the main data set.
func planRootSyntax(root *DataElement, usePreamble bool, initial TransferSyntax) (syntaxPlan, TransferSyntax, error) {
	plan := make(map[*DataElement]TransferSyntax, len(root.children))
	current := initial
	var pending *TransferSyntax
	if usePreamble {
		current = ExplicitVRLittleEndian
		pending = &initial
	}

	for _, c := range root.children {
		if pending != nil && !c.Tag.IsMetaElement() {
			current = *pending
			pending = nil
		}
		plan[c] = current

		if c.Tag == TransferSyntaxUIDTag && c.value != nil {
			info, ok := lookupTransferSyntax(c.ValueString())
			switch {
			case !ok:
				// unknown syntaxes leave the encoding unchanged
			case info.deflated:
				return nil, TransferSyntax{}, fmt.Errorf("writing in the deflated syntax is not supported")
			default:
				s := info.syntax
				pending = &s
			}
		}
	}

	dataset := current
	if pending != nil {
		dataset = *pending
	}
	return func(e *DataElement) TransferSyntax {
		return plan[e]
	}, dataset, nil
}

// layout holds the value field length and transfer syntax of every node of a tree
type layout struct {
	lengths map[*DataElement]uint32
	syntax  map[*DataElement]TransferSyntax
}

// undefinedLength is true for nodes written with delimitation items
func (e *DataElement) undefinedLength() bool {
	switch {
	case !e.container:
		return false
	case e.kind == itemNode:
		return e.Length == UndefinedLength
	case e.kind == elementNode:
		return e.IsEncapsulated() || e.VR == UNVR || e.Length == UndefinedLength
	}
	return false
}

// itemSyntax returns the syntax of the children of n
func itemSyntax(n *DataElement, syntax TransferSyntax) TransferSyntax {
	if n.IsSequence() && n.VR == UNVR {
		// PS3.5 6.2.2: UN of undefined length is encoded in Implicit VR Little Endian
		return ImplicitVRLittleEndian
	}
	return syntax
}

// size returns the number of bytes n occupies in the stream
func (l *layout) size(n *DataElement) uint64 {
	content := uint64(l.lengths[n])
	if n.undefinedLength() {
		content += itemHeaderSize
	}
	switch n.kind {
	case rootNode:
		return content
	case itemNode:
		return itemHeaderSize + content
	}
	return uint64(l.syntax[n].headerSize(n.VR)) + content
}

// measure computes the layout of the tree rooted at e without recursion. plan gives the syntax
// of e, or of the children of e when e is a root.
func measure(e *DataElement, plan syntaxPlan) (*layout, error) {
	l := &layout{
		lengths: make(map[*DataElement]uint32),
		syntax:  make(map[*DataElement]TransferSyntax),
	}
	l.syntax[e] = plan(e)

	type entry struct {
		node     *DataElement
		expanded bool
	}
	stack := []entry{{node: e}}
	for len(stack) > 0 {
		top := len(stack) - 1
		n := stack[top].node

		if !n.container {
			stack = stack[:top]
			if n.value == nil {
				l.lengths[n] = 0
				continue
			}
			length, err := n.value.length()
			if err != nil {
				return nil, fmt.Errorf("calculating length of %v: %v", n.Tag, err)
			}
			l.lengths[n] = length
			continue
		}

		if !stack[top].expanded {
			stack[top].expanded = true
			childSyntax := itemSyntax(n, l.syntax[n])
			for i := len(n.children) - 1; i >= 0; i-- {
				c := n.children[i]
				if n.kind == rootNode {
					l.syntax[c] = plan(c)
				} else {
					l.syntax[c] = childSyntax
				}
				stack = append(stack, entry{node: c})
			}
			continue
		}

		stack = stack[:top]
		total := uint64(0)
		for _, c := range n.children {
			total += l.size(c)
		}
		if total >= UndefinedLength {
			return nil, fmt.Errorf("%s %v of %d bytes exceeds the 32-bit length field", n.Description(), n.Tag, total)
		}
		l.lengths[n] = uint32(total)
	}
	return l, nil
}

// ExplicitLengths sets all sequences and items of the tree to be written with explicit lengths.
// Encapsulated pixel data and UN sequences keep their undefined length, which they require.
func ExplicitLengths(root *DataElement) {
	setContainerLengths(root, 0)
}

// UndefinedLengths sets all sequences and items of the tree to be written with undefined
// length, terminated by delimitation items.
func UndefinedLengths(root *DataElement) {
	setContainerLengths(root, UndefinedLength)
}

func setContainerLengths(root *DataElement, length uint32) {
	root.Walk(func(n *DataElement, _ int) error {
		if n.container && (n.kind == itemNode || (n.IsSequence() && n.VR != UNVR)) {
			n.Length = length
		}
		return nil
	})
}

// updateLengths recomputes every group length element and the lengths of sequences and items of
// defined length. Group length elements are coerced to UL.
func updateLengths(root *DataElement, plan syntaxPlan) error {
	var datasets []*DataElement
	root.Walk(func(n *DataElement, _ int) error {
		if n.kind == elementNode {
			return nil
		}
		if n.container {
			datasets = append(datasets, n)
		}
		return nil
	})

	for _, ds := range datasets {
		for _, c := range ds.children {
			if c.kind != elementNode || !c.Tag.IsGroupLength() || c.container {
				continue
			}
			if c.VR != ULVR || c.value == nil {
				c.VR = ULVR
				if err := c.SetValue([]uint32{0}); err != nil {
					return err
				}
			}
		}
	}

	l, err := measure(root, plan)
	if err != nil {
		return err
	}

	for _, ds := range datasets {
		for i, c := range ds.children {
			if c.kind != elementNode || !c.Tag.IsGroupLength() || c.container {
				continue
			}
			group := c.Tag.GroupNumber()
			sum := uint64(0)
			for _, sibling := range ds.children[i+1:] {
				if sibling.Tag.GroupNumber() != group {
					break
				}
				sum += l.size(sibling)
			}
			if sum > 0xFFFFFFFF {
				return fmt.Errorf("group %04X of %d bytes exceeds the group length field", group, sum)
			}
			if err := c.SetValue([]uint32{uint32(sum)}); err != nil {
				return err
			}
		}
	}

	root.Walk(func(n *DataElement, _ int) error {
		if n.container && n.kind != rootNode && !n.undefinedLength() {
			n.Length = l.lengths[n]
		}
		return nil
	})
	return nil
}

// convertByteOrder re-encodes the values read from a stream in the byte order they will be
// written with, so their encoded bytes and lengths are consistent with the layout.
func convertByteOrder(root *DataElement, l *layout) error {
	return root.Walk(func(n *DataElement, _ int) error {
		if n.value == nil {
			return nil
		}
		syntax, ok := l.syntax[n]
		if !ok {
			return nil
		}
		if err := n.value.reorder(syntax.ByteOrder()); err != nil {
			return fmt.Errorf("converting %v: %v", n.Tag, err)
		}
		return nil
	})
}
