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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Writer writes a tree of DataElements as a DICOM stream. Sequences and items of defined length
// are written with the length of their children; nodes of undefined length are followed by the
// matching delimitation item. Group length elements are written as they are, see
// Document.PrepareDataElements to recompute them.
type Writer struct {
	initial TransferSyntax
	log     zerolog.Logger
}

// NewWriter returns a Writer assuming Explicit VR Little Endian for the data set
func NewWriter() *Writer {
	return &Writer{initial: ExplicitVRLittleEndian, log: zerolog.Nop()}
}

// SetInitialTransferSyntax sets the syntax of the first group. With a preamble it is the syntax
// of the data set when the file meta information does not announce one.
func (w *Writer) SetInitialTransferSyntax(syntax TransferSyntax) {
	w.initial = syntax
}

// SetLogger sets the logger the Writer reports to
func (w *Writer) SetLogger(log zerolog.Logger) {
	w.log = log
}

// WriteToStream writes the tree under root to out and returns the number of bytes written. With
// usePreamble, the 128 byte preamble and the DICM signature are written first, and the file
// meta elements are written in Explicit VR Little Endian.
func (w *Writer) WriteToStream(root *DataElement, out io.Writer, usePreamble bool) (int64, error) {
	if !root.IsRoot() {
		return 0, fmt.Errorf("expected the root of a tree, got %v", root.Tag)
	}

	plan, dataset, err := planRootSyntax(root, usePreamble, w.initial)
	if err != nil {
		return 0, err
	}
	l, err := measure(root, plan)
	if err != nil {
		return 0, fmt.Errorf("calculating lengths: %v", err)
	}
	w.log.Debug().Str("syntax", dataset.String()).Bool("preamble", usePreamble).Msg("writing data set")

	dw := &dcmWriter{w: out}
	if usePreamble {
		if err := writeDicomSignature(dw); err != nil {
			return dw.bytesWritten, err
		}
	}

	type entry struct {
		node *DataElement

		// closing entries write the delimitation item of a node of undefined length
		closing bool
	}
	stack := make([]entry, 0, len(root.children))
	pushChildren := func(n *DataElement) {
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, entry{node: n.children[i]})
		}
	}
	pushChildren(root)

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := e.node
		syntax := l.syntax[n]
		order := syntax.ByteOrder()

		if e.closing {
			delimiter := SequenceDelimitationItemTag
			if n.kind == itemNode {
				delimiter = ItemDelimitationItemTag
			}
			if err := dw.Delimiter(itemSyntax(n, syntax).ByteOrder(), delimiter); err != nil {
				return dw.bytesWritten, fmt.Errorf("writing delimitation item of %v: %v", n.Tag, err)
			}
			continue
		}

		length := l.lengths[n]
		if n.undefinedLength() {
			length = UndefinedLength
		}

		switch {
		case n.kind == itemNode && !n.container:
			b, err := n.valueBytes(order)
			if err != nil {
				return dw.bytesWritten, err
			}
			if err := dw.ItemHeader(order, ItemTag, uint32(len(b))); err != nil {
				return dw.bytesWritten, err
			}
			if err := dw.Bytes(b); err != nil {
				return dw.bytesWritten, fmt.Errorf("writing fragment: %v", err)
			}
			continue

		case n.kind == itemNode:
			if err := dw.ItemHeader(order, ItemTag, length); err != nil {
				return dw.bytesWritten, err
			}

		case n.container:
			if err := syntax.writeElementHeader(dw, n.Tag, n.VR, length); err != nil {
				return dw.bytesWritten, fmt.Errorf("writing data element %v: %v", n.Tag, err)
			}

		default:
			b, err := n.valueBytes(order)
			if err != nil {
				return dw.bytesWritten, err
			}
			if err := syntax.writeElementHeader(dw, n.Tag, n.VR, uint32(len(b))); err != nil {
				return dw.bytesWritten, fmt.Errorf("writing data element %v: %v", n.Tag, err)
			}
			if err := dw.Bytes(b); err != nil {
				return dw.bytesWritten, fmt.Errorf("writing value of %v: %v", n.Tag, err)
			}
			continue
		}

		if n.undefinedLength() {
			stack = append(stack, entry{node: n, closing: true})
		}
		pushChildren(n)
	}

	return dw.bytesWritten, nil
}

// valueBytes returns the encoded value field of a node without children
func (e *DataElement) valueBytes(order binary.ByteOrder) ([]byte, error) {
	if e.value == nil {
		return []byte{}, nil
	}
	b, err := e.value.bytes(order)
	if err != nil {
		return nil, fmt.Errorf("encoding %v: %v", e.Tag, err)
	}
	return b, nil
}

func writeDicomSignature(dw *dcmWriter) error {
	if err := dw.Bytes(make([]byte, preambleSize)); err != nil {
		return fmt.Errorf("writing DICOM preamble: %v", err)
	}

	if err := dw.Bytes(dicmSignature); err != nil {
		return fmt.Errorf("writing DICOM signature: %v", err)
	}

	return nil
}
