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
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
)

// Value is the value field of a DataElement. Values read from a stream keep their encoded
// bytes and are decoded the first time they are accessed.
//
// The decoded form depends on the VR:
//
//	AE, AS, CS, DT, LO, LT, PN, SH, ST, TM, UC, UI, UR, UT: []string
//	DA: []time.Time
//	IS: []int64
//	DS: []float64
//	SS, US, SL, UL, FL, FD: []int16, []uint16, []int32, []uint32, []float32, []float64
//	AT: []DataElementTag
//	OB, OD, OF, OL, OW, UN: []byte (words in little endian byte order)
type Value struct {
	vr    VR
	codec *vrCodec

	// raw is the encoded value field, nil for values built in memory
	raw []byte
	ctx codecContext

	decoded   interface{}
	decodeErr error
	done      bool
}

// NewValue builds a Value of the given VR. Convenient forms are accepted besides the decoded
// representation: a string for text, DA, IS and DS VRs, a time.Time for DA, an int for
// integer VRs and a DataElementTag for AT.
func NewValue(vr VR, v interface{}) (*Value, error) {
	return newValueWithCharset(vr, v, defaultCharacterRepertoire)
}

func newValueWithCharset(vr VR, v interface{}, cs encoding.Encoding) (*Value, error) {
	c, err := lookupVR(vr)
	if err != nil {
		return nil, err
	}
	if c.kind == sequenceVR {
		return nil, fmt.Errorf("sequences have no value field")
	}
	normalized, err := normalizeValue(vr, c, v)
	if err != nil {
		return nil, err
	}
	ctx := codecContext{binary.LittleEndian, cs}
	// validate the type by encoding once
	if _, err := c.encode(vr, normalized, ctx); err != nil {
		return nil, fmt.Errorf("invalid value for vr %v: %v", vr, err)
	}
	return &Value{vr: vr, codec: c, ctx: ctx, decoded: normalized, done: true}, nil
}

func newRawValue(vr VR, c *vrCodec, raw []byte, ctx codecContext) *Value {
	return &Value{vr: vr, codec: c, raw: raw, ctx: ctx}
}

// VR returns the value representation the value is encoded with
func (v *Value) VR() VR {
	return v.vr
}

// Get returns the decoded value, decoding it on first access.
func (v *Value) Get() (interface{}, error) {
	if !v.done {
		v.decoded, v.decodeErr = v.codec.decode(v.vr, v.raw, v.ctx)
		v.done = true
	}
	return v.decoded, v.decodeErr
}

// Strings returns the value as strings, one per value multiplicity.
func (v *Value) Strings() []string {
	d, err := v.Get()
	if err != nil {
		return []string{strings.TrimFunc(string(v.raw), isTextPadding)}
	}

	switch field := d.(type) {
	case []string:
		return field
	case []time.Time:
		if len(field) == 0 {
			return []string{}
		}
		return strings.Split(formatDates(field), "\\")
	case []int64:
		strs := make([]string, len(field))
		for i, n := range field {
			strs[i] = strconv.FormatInt(n, 10)
		}
		return strs
	case []float64:
		strs := make([]string, len(field))
		for i, f := range field {
			strs[i] = formatDecimalString(f)
		}
		return strs
	case []DataElementTag:
		strs := make([]string, len(field))
		for i, t := range field {
			strs[i] = t.String()
		}
		return strs
	case []byte:
		return []string{formatBytes(field)}
	case nil:
		return []string{}
	default:
		s := strings.Trim(fmt.Sprint(field), "[]")
		return strings.Fields(s)
	}
}

// String renders all values joined by the backslash delimiter, e.g. "ORIGINAL\PRIMARY".
// Dates are rendered as YYYYMMDD.
func (v *Value) String() string {
	return strings.Join(v.Strings(), "\\")
}

// maxRenderedBytes bounds the bytes rendered by String for bulk data
const maxRenderedBytes = 16

func formatBytes(b []byte) string {
	n := len(b)
	if n > maxRenderedBytes {
		n = maxRenderedBytes
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%02x", b[i])
	}
	s := strings.Join(parts, " ")
	if len(b) > maxRenderedBytes {
		s += " ..."
	}
	return s
}

// bytes returns the padded value field encoded in the given byte order
func (v *Value) bytes(order binary.ByteOrder) ([]byte, error) {
	if v.raw != nil && (order == v.ctx.order || !v.codec.orderSensitive()) {
		return pad(v.raw, v.codec.padding), nil
	}

	d, err := v.Get()
	if err != nil {
		return nil, fmt.Errorf("decoding %v value: %v", v.vr, err)
	}
	return v.codec.encode(v.vr, d, codecContext{order, v.ctx.charset})
}

// length returns the number of bytes of the padded value field
func (v *Value) length() (uint32, error) {
	if v.raw != nil {
		return uint32(len(v.raw) + len(v.raw)%2), nil
	}
	d, err := v.Get()
	if err != nil {
		return 0, err
	}
	b, err := v.codec.encode(v.vr, d, v.ctx)
	if err != nil {
		return 0, err
	}
	return uint32(len(b)), nil
}

// reorder re-encodes a value read from a stream in the given byte order
func (v *Value) reorder(order binary.ByteOrder) error {
	if v.raw == nil || v.ctx.order == order || !v.codec.orderSensitive() {
		v.ctx.order = order
		return nil
	}
	b, err := v.bytes(order)
	if err != nil {
		return err
	}
	v.raw = b
	v.ctx.order = order
	return nil
}
