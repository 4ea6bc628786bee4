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
	"bytes"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dictionary"
)

const (
	preambleSize = 128

	// reserveSize bounds the bytes kept between calls to Parse. Only the fixed size fields of a
	// data element are kept there; values are accumulated separately.
	reserveSize = 4096

	// maxValuePrealloc bounds the buffer allocated up front for a value, so a corrupt length
	// does not allocate more than what is actually read
	maxValuePrealloc = 1 << 16
)

var dicmSignature = []byte("DICM")

type parserState int

const (
	stateSkipPreamble parserState = iota
	stateReadSignature
	stateReadGroup
	stateReadElement
	stateReadVR
	stateReadReserved
	stateReadLength16
	stateReadLength32
	statePeekUNValue
	stateReadValue
	stateFailed
)

var stateNames = map[parserState]string{
	stateSkipPreamble:  "SkipPreamble",
	stateReadSignature: "ReadSignature",
	stateReadGroup:     "ReadGroupNumber",
	stateReadElement:   "ReadElementNumber",
	stateReadVR:        "ReadVR",
	stateReadReserved:  "ReadReserved",
	stateReadLength16:  "ReadLength16",
	stateReadLength32:  "ReadLength32",
	statePeekUNValue:   "PeekUNValue",
	stateReadValue:     "ReadValue",
	stateFailed:        "Failed",
}

func (s parserState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("parserState(%d)", int(s))
}

// groupState is the group length accounting of one data set
type groupState struct {
	group       uint16
	started     bool
	lastElement uint16

	// lengthSeen is true once the group length element of the group was read
	lengthSeen bool

	// lengthSet is true while the group length is being checked against the bytes read
	lengthSet bool
	length    uint32
	start     int64
}

// frame is an open sequence, item or encapsulated pixel data element
type frame struct {
	node *DataElement

	// end is the stream offset the node ends at, -1 for undefined length
	end int64

	// encoding state of the enclosing scope, restored when the frame is closed
	syntax  TransferSyntax
	charset encoding.Encoding
	group   groupState
}

// Reader is a push parser for DICOM streams. Bytes are fed in chunks of any size with Parse and
// the Reader builds a tree of DataElements as tokens complete. Bytes that do not complete a
// token are kept in a fixed size reserve until the next call.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	dict *dictionary.Dictionary
	log  zerolog.Logger

	usePreamble bool
	initial     TransferSyntax

	state  parserState
	offset int64
	err    error

	root  *DataElement
	stack []frame

	// syntax is the active transfer syntax, pending the one announced by the Transfer Syntax
	// UID and applied at the next group boundary
	syntax  TransferSyntax
	pending *TransferSyntax
	dataset TransferSyntax
	charset encoding.Encoding
	group   groupState

	reserve    [reserveSize]byte
	reserveLen int

	// fields of the token being read
	preambleLeft int
	groupNumber  uint16
	tag          DataElementTag
	vr           VR
	length       uint32
	value        []byte
	fragment     bool
}

// NewReader returns a Reader expecting a file: a preamble, the DICM signature and the file meta
// information. A dictionary must be set with SetDataDictionary before parsing.
func NewReader() *Reader {
	r := &Reader{
		log:         zerolog.Nop(),
		usePreamble: true,
		initial:     ExplicitVRLittleEndian,
	}
	r.reset()
	return r
}

// SetDataDictionary sets the dictionary used to resolve the VR of implicit VR data elements.
func (r *Reader) SetDataDictionary(dict *dictionary.Dictionary) {
	r.dict = dict
	r.root.bindDictionary(dict)
}

// SetLogger sets the logger anomalies and transfer syntax switches are reported to
func (r *Reader) SetLogger(log zerolog.Logger) {
	r.log = log
}

// SetParserState configures what the stream starts with and resets the Reader. With
// usePreamble, the first 128 bytes are skipped, the DICM signature is required and the file meta
// information is read in Explicit VR Little Endian; syntax then applies to the data set unless
// the meta information announces another one. Without usePreamble, the stream starts at a data
// element tag encoded in syntax.
func (r *Reader) SetParserState(usePreamble bool, syntax TransferSyntax) {
	r.usePreamble = usePreamble
	r.initial = syntax
	r.reset()
}

func (r *Reader) reset() {
	r.offset = 0
	r.err = nil
	r.root = NewRoot(r.dict)
	r.stack = nil
	r.charset = defaultCharacterRepertoire
	r.group = groupState{}
	r.reserveLen = 0
	r.value = nil
	r.fragment = false
	r.dataset = r.initial
	r.preambleLeft = preambleSize

	if r.usePreamble {
		r.state = stateSkipPreamble
		r.syntax = ExplicitVRLittleEndian
		initial := r.initial
		r.pending = &initial
		return
	}
	r.state = stateReadGroup
	r.syntax = r.initial
	r.pending = nil
}

// Root returns the tree built so far
func (r *Reader) Root() *DataElement {
	return r.root
}

// Offset returns the number of bytes parsed, excluding the bytes held in the reserve
func (r *Reader) Offset() int64 {
	return r.offset
}

// Err returns the fatal error that stopped the Reader, if any
func (r *Reader) Err() error {
	return r.err
}

// TransferSyntax returns the transfer syntax of the data set
func (r *Reader) TransferSyntax() TransferSyntax {
	if r.pending != nil {
		return *r.pending
	}
	return r.dataset
}

// Complete reports whether the stream parsed so far forms a complete data set: every sequence
// and item is closed, no token is partially read, and the last group is as long as its group
// length announced. A group without a group length element is not checked.
func (r *Reader) Complete() bool {
	if r.err != nil || len(r.stack) > 0 || r.state != stateReadGroup || r.reserveLen > 0 {
		return false
	}
	return !r.group.lengthSet || r.offset-r.group.start == int64(r.group.length)
}

// Parse feeds the next chunk of the stream. After a fatal error the Reader is unusable and
// every call returns the same *ParseError.
func (r *Reader) Parse(buf []byte) error {
	if r.err != nil {
		return r.err
	}
	if r.dict == nil {
		return ErrNoDictionary
	}

	for r.reserveLen > 0 && len(buf) > 0 {
		n := copy(r.reserve[r.reserveLen:], buf)
		r.reserveLen += n
		buf = buf[n:]

		consumed, err := r.run(r.reserve[:r.reserveLen])
		if err != nil {
			return err
		}
		copy(r.reserve[:], r.reserve[consumed:r.reserveLen])
		r.reserveLen -= consumed
		if consumed == 0 && r.reserveLen == reserveSize {
			return r.fail("unparsed residue exceeds the %d byte reserve", reserveSize)
		}
	}
	if len(buf) == 0 {
		return nil
	}

	consumed, err := r.run(buf)
	if err != nil {
		return err
	}
	leftover := buf[consumed:]
	if len(leftover) > reserveSize {
		return r.fail("unparsed residue of %d bytes exceeds the %d byte reserve", len(leftover), reserveSize)
	}
	r.reserveLen = copy(r.reserve[:], leftover)
	return nil
}

// run steps through buf until it is consumed or the next token is incomplete
func (r *Reader) run(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.step(buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// step consumes one token from the front of buf. It returns 0 when buf does not hold the whole
// token.
func (r *Reader) step(buf []byte) (int, error) {
	switch r.state {
	case stateSkipPreamble:
		n := r.preambleLeft
		if n > len(buf) {
			n = len(buf)
		}
		r.preambleLeft -= n
		if r.preambleLeft == 0 {
			r.state = stateReadSignature
		}
		return r.consume(n), nil

	case stateReadSignature:
		if len(buf) < len(dicmSignature) {
			return 0, nil
		}
		if !bytes.Equal(buf[:len(dicmSignature)], dicmSignature) {
			return 0, r.fail("DICOM signature not found, got %q", buf[:len(dicmSignature)])
		}
		r.state = stateReadGroup
		return r.consume(len(dicmSignature)), nil

	case stateReadGroup:
		return r.readGroup(buf)

	case stateReadElement:
		return r.readElement(buf)

	case stateReadVR:
		if len(buf) < vrSize {
			return 0, nil
		}
		vr := VR(uint16(buf[0])<<8 | uint16(buf[1]))
		if !vr.Known() {
			return 0, r.fail("unknown VR %q for %v", buf[:vrSize], r.tag)
		}
		r.vr = vr
		if vr.HasLongLength() {
			r.state = stateReadReserved
		} else {
			r.state = stateReadLength16
		}
		return r.consume(vrSize), nil

	case stateReadReserved:
		if len(buf) < 2 {
			return 0, nil
		}
		if buf[0] != 0 || buf[1] != 0 {
			r.warn("non-zero reserved field % x in %v", buf[:2], r.tag)
		}
		r.state = stateReadLength32
		return r.consume(2), nil

	case stateReadLength16:
		if len(buf) < 2 {
			return 0, nil
		}
		r.length = uint32(r.syntax.ByteOrder().Uint16(buf))
		n := r.consume(2)
		return n, r.startValue()

	case stateReadLength32:
		if len(buf) < 4 {
			return 0, nil
		}
		r.length = r.syntax.ByteOrder().Uint32(buf)
		n := r.consume(4)
		if r.tag.isStructural() {
			return n, r.readStructural()
		}
		return n, r.startValue()

	case statePeekUNValue:
		if len(buf) < itemHeaderSize {
			return 0, nil
		}
		var err error
		if r.holdsItem(buf) {
			err = r.openSequence()
		} else {
			r.fragment = false
			err = r.readValue()
		}
		if err != nil {
			return 0, err
		}
		// nothing was consumed, dispatch on the new state
		return r.step(buf)

	case stateReadValue:
		n := int(r.length) - len(r.value)
		if n > len(buf) {
			n = len(buf)
		}
		r.value = append(r.value, buf[:n]...)
		r.consume(n)
		if len(r.value) == int(r.length) {
			return n, r.finishValue()
		}
		return n, nil
	}

	return 0, r.fail("unhandled parser state %v", r.state)
}

func (r *Reader) consume(n int) int {
	r.offset += int64(n)
	return n
}

func (r *Reader) readGroup(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	if err := r.closeFrames(); err != nil {
		return 0, err
	}

	inSequence := r.inSequence()
	if !inSequence {
		if err := r.checkGroupBoundary(); err != nil {
			return 0, err
		}
	}

	group := r.syntax.ByteOrder().Uint16(buf)
	if len(r.stack) == 0 && r.pending != nil && !r.group.lengthSet && group != metaGroup && group != itemGroup {
		// without a meta group length, the announced syntax applies from the first tag outside
		// of the meta group, which is decoded again in that syntax
		r.applyPending()
		group = r.syntax.ByteOrder().Uint16(buf)
	}

	if !inSequence && group != itemGroup && r.group.lengthSet && group != r.group.group {
		return 0, r.fail("expected group %04X, got %04X before the end of the group length", r.group.group, group)
	}

	r.groupNumber = group
	r.state = stateReadElement
	return r.consume(2), nil
}

// checkGroupBoundary closes the group length accounting of the current data set once all
// its bytes were read, and applies a pending transfer syntax there.
func (r *Reader) checkGroupBoundary() error {
	if !r.group.lengthSet {
		return nil
	}
	read := r.offset - r.group.start
	if read < int64(r.group.length) {
		return nil
	}
	if read > int64(r.group.length) {
		return r.fail("group %04X overran its group length of %d by %d bytes", r.group.group, r.group.length, read-int64(r.group.length))
	}
	r.group.lengthSet = false
	if len(r.stack) == 0 && r.pending != nil {
		r.applyPending()
	}
	return nil
}

func (r *Reader) applyPending() {
	r.syntax = *r.pending
	r.dataset = r.syntax
	r.pending = nil
	r.log.Debug().Int64("offset", r.offset).Str("syntax", r.syntax.String()).Msg("transfer syntax switched")
}

func (r *Reader) readElement(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	element := r.syntax.ByteOrder().Uint16(buf)
	n := r.consume(2)
	r.tag = NewTag(r.groupNumber, element)

	if r.tag.isStructural() {
		switch r.tag {
		case ItemTag, ItemDelimitationItemTag, SequenceDelimitationItemTag:
		default:
			return n, r.fail("unexpected tag %v", r.tag)
		}
		// items and delimitation items never have a VR
		r.state = stateReadLength32
		return n, nil
	}

	if r.inSequence() {
		return n, r.fail("expected an item in %v, got %v", r.top().node.Tag, r.tag)
	}
	if err := r.trackGroup(); err != nil {
		return n, err
	}

	if r.syntax.Implicit {
		r.vr = r.dictionaryVR(r.tag)
		r.state = stateReadLength32
		return n, nil
	}
	r.state = stateReadVR
	return n, nil
}

// trackGroup follows the group and element order of the data elements of the current data set
func (r *Reader) trackGroup() error {
	group, element := r.tag.GroupNumber(), r.tag.ElementNumber()
	gs := &r.group
	if !gs.started || gs.group != group {
		*gs = groupState{group: group, started: true, lastElement: element}
		return nil
	}

	if r.tag.IsGroupLength() {
		if gs.lengthSeen {
			return r.fail("group length of group %04X redefined", group)
		}
		r.warn("group length %v is not the first element of its group", r.tag)
	} else if element < gs.lastElement {
		r.warn("%v follows (%04X,%04X) out of order", r.tag, group, gs.lastElement)
	}
	gs.lastElement = element
	return nil
}

func (r *Reader) dictionaryVR(tag DataElementTag) VR {
	entry, ok := r.dict.Lookup(tag.GroupNumber(), tag.ElementNumber())
	if !ok {
		return UNVR
	}
	return vrForDictionary(entry.VR)
}

// startValue handles a data element header once its length is known
func (r *Reader) startValue() error {
	if r.tag.IsGroupLength() && r.vr != ULVR && r.length == 4 {
		r.warn("group length %v has VR %v, read as UL", r.tag, r.vr)
		r.vr = ULVR
	}

	if r.length == UndefinedLength {
		switch {
		case r.vr == SQVR, r.vr == UNVR:
			return r.openSequence()
		case r.tag == PixelDataTag && (r.vr == OBVR || r.vr == OWVR):
			return r.openSequence()
		}
		return r.fail("undefined length for %v %v", r.tag, r.vr)
	}

	if r.vr == SQVR {
		return r.openSequence()
	}
	if r.vr == UNVR && r.length >= itemHeaderSize && !r.syntax.BigEndian {
		// a sequence may hide behind UN of defined length, see holdsItem
		r.state = statePeekUNValue
		return nil
	}
	r.fragment = false
	return r.readValue()
}

// holdsItem reports whether the value of the UN element at the front of buf starts with an item
// header whose length fits the element. Such a value is a sequence in Implicit VR Little Endian.
func (r *Reader) holdsItem(buf []byte) bool {
	le := ImplicitVRLittleEndian.ByteOrder()
	tag := NewTag(le.Uint16(buf), le.Uint16(buf[2:]))
	if tag != ItemTag {
		return false
	}
	length := le.Uint32(buf[4:])
	return length == UndefinedLength || length <= r.length-itemHeaderSize
}

func (r *Reader) readValue() error {
	if r.length == 0 {
		r.value = []byte{}
		return r.finishValue()
	}
	size := int(r.length)
	if size > maxValuePrealloc {
		size = maxValuePrealloc
	}
	r.value = make([]byte, 0, size)
	r.state = stateReadValue
	return nil
}

func (r *Reader) openSequence() error {
	node := &DataElement{Tag: r.tag, VR: r.vr, Length: r.length, container: true, dict: r.dict}
	r.current().appendChild(node)
	r.push(node)
	if node.IsSequence() && node.VR == UNVR {
		// PS3.5 6.2.2: UN of undefined length is encoded in Implicit VR Little Endian
		r.syntax = ImplicitVRLittleEndian
	}
	r.state = stateReadGroup
	return r.closeFrames()
}

func (r *Reader) readStructural() error {
	switch r.tag {
	case ItemTag:
		if !r.inSequence() {
			return r.fail("item outside of a sequence")
		}
		parent := r.top().node
		if parent.IsEncapsulated() {
			if r.length == UndefinedLength {
				return r.fail("pixel data fragment of undefined length")
			}
			r.vr = OBVR
			r.fragment = true
			return r.readValue()
		}
		item := &DataElement{Tag: ItemTag, kind: itemNode, Length: r.length, container: true, dict: r.dict}
		parent.appendChild(item)
		r.push(item)
		r.group = groupState{}
		r.state = stateReadGroup
		return r.closeFrames()

	case ItemDelimitationItemTag:
		if len(r.stack) == 0 || r.top().node.kind != itemNode {
			return r.fail("item delimitation item outside of an item")
		}
		if r.length != 0 {
			r.warn("item delimitation item with non-zero length %d", r.length)
		}
		r.pop()
		r.state = stateReadGroup
		return r.closeFrames()

	case SequenceDelimitationItemTag:
		if !r.inSequence() {
			return r.fail("sequence delimitation item outside of a sequence")
		}
		if r.length != 0 {
			return r.fail("sequence delimitation item with non-zero length %d", r.length)
		}
		r.pop()
		r.state = stateReadGroup
		return r.closeFrames()
	}
	return r.fail("unexpected tag %v", r.tag)
}

func (r *Reader) finishValue() error {
	raw := r.value
	r.value = nil
	r.state = stateReadGroup

	c, err := lookupVR(r.vr)
	if err != nil {
		return r.fail("%v", err)
	}
	value := newRawValue(r.vr, c, raw, codecContext{r.syntax.ByteOrder(), r.charset})

	if r.fragment {
		r.fragment = false
		r.top().node.appendChild(&DataElement{Tag: ItemTag, kind: itemNode, Length: r.length, value: value, dict: r.dict})
		return r.closeFrames()
	}

	node := &DataElement{Tag: r.tag, VR: r.vr, Length: r.length, value: value, dict: r.dict}
	r.current().appendChild(node)

	switch {
	case r.tag.IsGroupLength():
		r.group.lengthSeen = true
		if r.vr != ULVR || len(raw) != 4 {
			r.warn("group length %v of %d bytes is ignored", r.tag, len(raw))
			break
		}
		r.group.length = r.syntax.ByteOrder().Uint32(raw)
		r.group.lengthSet = true
		r.group.start = r.offset
	case r.tag == TransferSyntaxUIDTag && len(r.stack) == 0:
		if err := r.announceSyntax(raw); err != nil {
			return err
		}
	case r.tag == SpecificCharacterSetTag:
		cs, warnings := characterSetFromTerms(node.value.Strings())
		for _, w := range warnings {
			r.warn("%s", w)
		}
		r.charset = cs
	}
	return r.closeFrames()
}

func (r *Reader) announceSyntax(raw []byte) error {
	uid := strings.TrimRight(string(raw), " \x00")
	info, ok := lookupTransferSyntax(uid)
	switch {
	case !ok:
		r.warn("unknown transfer syntax %q, keeping %v", uid, r.TransferSyntax())
	case info.deflated:
		return r.fail("deflated transfer syntax %s is not supported", uid)
	default:
		s := info.syntax
		r.pending = &s
		r.log.Debug().Str("uid", uid).Str("name", info.name).Msg("transfer syntax announced")
	}
	return nil
}

// closeFrames closes the sequences and items of defined length that end at the current offset
func (r *Reader) closeFrames() error {
	for len(r.stack) > 0 {
		f := r.top()
		if f.end < 0 || r.offset < f.end {
			return nil
		}
		if r.offset > f.end {
			return r.fail("%s %v overran its length by %d bytes", f.node.Description(), f.node.Tag, r.offset-f.end)
		}
		r.pop()
	}
	return nil
}

func (r *Reader) push(node *DataElement) {
	end := int64(-1)
	if node.Length != UndefinedLength {
		end = r.offset + int64(node.Length)
	}
	r.stack = append(r.stack, frame{node: node, end: end, syntax: r.syntax, charset: r.charset, group: r.group})
}

func (r *Reader) pop() {
	f := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	r.syntax = f.syntax
	r.charset = f.charset
	r.group = f.group
}

func (r *Reader) top() *frame {
	return &r.stack[len(r.stack)-1]
}

// inSequence is true when the next tag must be an item or a sequence delimitation item
func (r *Reader) inSequence() bool {
	return len(r.stack) > 0 && r.top().node.kind == elementNode
}

// current returns the node data elements are added to
func (r *Reader) current() *DataElement {
	if len(r.stack) == 0 {
		return r.root
	}
	return r.top().node
}

func (r *Reader) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.root.addWarning(msg)
	r.log.Warn().Int64("offset", r.offset).Msg(msg)
}

func (r *Reader) fail(format string, args ...interface{}) error {
	r.state = stateFailed
	r.err = &ParseError{Offset: r.offset, Msg: fmt.Sprintf(format, args...)}
	return r.err
}
