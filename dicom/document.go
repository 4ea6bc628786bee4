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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dictionary"
)

// Document owns the tree of a DICOM file. It binds the data dictionary, loads files and streams
// through a Reader, and prepares the tree for writing.
//
// A Document is not safe for concurrent use. Documents may share a dictionary.
type Document struct {
	opts documentOptions

	dictName string
	dict     *dictionary.Dictionary

	root   *DataElement
	syntax TransferSyntax

	// reader is set between PrepareToLoad and FinishLoad
	reader *Reader
}

// NewDocument returns an empty Document. A data dictionary must be selected, with the
// WithDictionary option or SetDataDictionary, before loading.
func NewDocument(opts ...DocumentOption) (*Document, error) {
	d := &Document{opts: defaultDocumentOptions()}
	for _, opt := range opts {
		opt(&d.opts)
	}
	d.syntax = d.opts.initialSyntax
	if d.opts.dictionaryName != "" {
		if err := d.SetDataDictionary(d.opts.dictionaryName); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// SetDataDictionary selects a registered dictionary. Selecting the current dictionary again does
// nothing. The dictionary may be selected before anything is loaded, loads fail with
// ErrNoDictionary without one. A loaded tree and a reader in the middle of a partial load are
// bound to the new dictionary.
func (d *Document) SetDataDictionary(name string) error {
	if d.dict != nil && name == d.dictName {
		return nil
	}
	dict, err := dictionary.Get(name)
	if err != nil {
		return fmt.Errorf("setting data dictionary: %w", err)
	}
	d.dictName = name
	d.dict = dict
	if d.reader != nil {
		d.reader.SetDataDictionary(dict)
	}
	if d.root != nil {
		d.root.bindDictionary(dict)
	}
	return nil
}

// DataDictionary returns the selected dictionary, nil if none
func (d *Document) DataDictionary() *dictionary.Dictionary {
	return d.dict
}

// Root returns the root of the tree, nil before the first load
func (d *Document) Root() *DataElement {
	return d.root
}

// SetRoot replaces the tree of the document, e.g. with one built in memory
func (d *Document) SetRoot(root *DataElement) error {
	if !root.IsRoot() {
		return fmt.Errorf("expected the root of a tree, got %v", root.Tag)
	}
	if d.reader != nil {
		return ErrLoadInProgress
	}
	d.root = root
	if d.dict != nil {
		root.bindDictionary(d.dict)
	}
	_, syntax, err := planRootSyntax(root, d.opts.usePreamble, d.opts.initialSyntax)
	if err != nil {
		return err
	}
	d.syntax = syntax
	return nil
}

// TransferSyntax returns the transfer syntax of the data set
func (d *Document) TransferSyntax() TransferSyntax {
	return d.syntax
}

func (d *Document) newReader() *Reader {
	r := NewReader()
	r.SetLogger(d.opts.log)
	r.SetParserState(d.opts.usePreamble, d.opts.initialSyntax)
	r.SetDataDictionary(d.dict)
	return r
}

// LoadFromFile loads the DICOM file at path, see LoadFromStream
func (d *Document) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := d.LoadFromStream(f); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadFromStream parses the whole stream in chunks of bounded size. The tree of the document is
// replaced only when the stream holds a complete data set; on error the document is unchanged.
func (d *Document) LoadFromStream(r io.Reader) error {
	if d.reader != nil {
		return ErrLoadInProgress
	}
	if d.dict == nil {
		return ErrNoDictionary
	}

	reader := d.newReader()
	cr := newChunkReader(r, d.opts.chunkSize)
	for {
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading stream after %d bytes: %w", cr.bytesRead, err)
		}
		if err := reader.Parse(chunk); err != nil {
			return err
		}
	}
	d.opts.log.Debug().Int64("bytes", cr.bytesRead).Msg("stream loaded")

	if !reader.Complete() {
		return incompleteError(reader)
	}
	d.root = reader.Root()
	d.syntax = reader.TransferSyntax()
	return nil
}

// PrepareToLoad starts a partial load. The tree being built is available from Root as bytes
// arrive through PartialLoad; a load already in progress is discarded.
func (d *Document) PrepareToLoad() error {
	if d.dict == nil {
		return ErrNoDictionary
	}
	d.reader = d.newReader()
	d.root = d.reader.Root()
	return nil
}

// PartialLoad feeds the next chunk of a partial load. The returned flag tells whether the bytes
// fed so far might form a complete data set; only FinishLoad is authoritative.
func (d *Document) PartialLoad(buf []byte) (bool, error) {
	if d.reader == nil {
		return false, ErrNotPrepared
	}
	if err := d.reader.Parse(buf); err != nil {
		d.root = nil
		return false, err
	}
	return d.reader.Complete(), nil
}

// FinishLoad ends a partial load, checking that a complete data set was read. On error the
// partially built tree is dropped.
func (d *Document) FinishLoad() error {
	if d.reader == nil {
		return ErrNotPrepared
	}
	reader := d.reader
	d.reader = nil

	if err := reader.Err(); err != nil {
		d.root = nil
		return err
	}
	if !reader.Complete() {
		d.root = nil
		return incompleteError(reader)
	}
	d.root = reader.Root()
	d.syntax = reader.TransferSyntax()
	return nil
}

func incompleteError(r *Reader) error {
	return &ParseError{
		Offset: r.Offset(),
		Msg:    fmt.Sprintf("incomplete data set at end of stream (state %v, %d open sequences or items)", r.state, len(r.stack)),
	}
}

// PrepareDataElements normalizes the tree before writing. The retired length to end elements
// (0000,0001) and (0008,0001) are removed, values are converted to the byte order they will be
// written in, and every group length and every sequence or item of defined length is recomputed
// from the encoded lengths of its elements.
func (d *Document) PrepareDataElements() error {
	if d.reader != nil {
		return ErrLoadInProgress
	}
	if d.root == nil {
		return fmt.Errorf("no data set loaded")
	}

	d.root.RemoveDataElements(CommandLengthToEndTag.GroupNumber(), CommandLengthToEndTag.ElementNumber())
	d.root.RemoveDataElements(LengthToEndTag.GroupNumber(), LengthToEndTag.ElementNumber())

	plan, syntax, err := planRootSyntax(d.root, d.opts.usePreamble, d.opts.initialSyntax)
	if err != nil {
		return err
	}
	l, err := measure(d.root, plan)
	if err != nil {
		return err
	}
	if err := convertByteOrder(d.root, l); err != nil {
		return err
	}
	if err := updateLengths(d.root, plan); err != nil {
		return fmt.Errorf("updating lengths: %v", err)
	}
	d.syntax = syntax
	return nil
}

// SaveDocument prepares the tree and writes it to w
func (d *Document) SaveDocument(w io.Writer) error {
	if err := d.PrepareDataElements(); err != nil {
		return fmt.Errorf("preparing data elements: %w", err)
	}
	writer := NewWriter()
	writer.SetLogger(d.opts.log)
	writer.SetInitialTransferSyntax(d.opts.initialSyntax)
	_, err := writer.WriteToStream(d.root, w, d.opts.usePreamble)
	return err
}

// SaveToFile writes the document to a new file at path
func (d *Document) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := d.SaveDocument(bw); err != nil {
		f.Close()
		return fmt.Errorf("saving %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SetTransferSyntaxUID sets the Transfer Syntax UID of the file meta information, so the next
// save writes the data set in that syntax. Changing between native and encapsulated pixel data
// is not supported.
func (d *Document) SetTransferSyntaxUID(uid string) error {
	if d.root == nil {
		return fmt.Errorf("no data set loaded")
	}
	info, ok := lookupTransferSyntax(uid)
	if !ok {
		return fmt.Errorf("unknown transfer syntax %q", uid)
	}
	if info.deflated {
		return fmt.Errorf("deflated transfer syntax is not supported")
	}

	el := d.root.ChildByTag(TransferSyntaxUIDTag)
	if el != nil {
		if current, ok := lookupTransferSyntax(el.ValueString()); ok && current.encapsulated != info.encapsulated {
			return fmt.Errorf("cannot change transfer syntax from %s to %s", current.name, info.name)
		}
		if err := el.SetValue(uid); err != nil {
			return err
		}
	} else {
		el, err := NewElement(TransferSyntaxUIDTag, UIVR, uid)
		if err != nil {
			return err
		}
		el.dict = d.dict
		if err := d.root.AddChild(el); err != nil {
			return err
		}
	}
	d.syntax = info.syntax
	return nil
}
