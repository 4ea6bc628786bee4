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
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/encoding"
)

// codecContext carries the encoding state a value field is decoded or encoded with
type codecContext struct {
	order   binary.ByteOrder
	charset encoding.Encoding
}

const (
	dateLayout       = "20060102"
	legacyDateLayout = "2006.01.02"
)

func (c *vrCodec) decode(vr VR, raw []byte, ctx codecContext) (interface{}, error) {
	switch c.kind {
	case textVR:
		return decodeText(vr, raw, c, ctx, isTextPadding)
	case uniqueIdentifierVR:
		return decodeText(vr, raw, c, ctx, func(r rune) bool {
			return r == 0x00 || r == ' '
		})
	case numberTextVR:
		return decodeNumberText(vr, raw)
	case dateVR:
		return decodeDate(raw)
	case numberBinaryVR:
		return decodeNumberBinary(vr, raw, ctx.order)
	case bulkDataVR:
		return decodeBulkData(raw, c.wordSize, ctx.order)
	case tagVR:
		return decodeTags(raw, ctx.order)
	case sequenceVR:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vr type found: %v", c.kind)
	}
}

func (c *vrCodec) encode(vr VR, v interface{}, ctx codecContext) ([]byte, error) {
	var b []byte
	var err error
	switch c.kind {
	case textVR, uniqueIdentifierVR:
		b, err = encodeText(v, c, ctx)
	case numberTextVR:
		b, err = encodeNumberText(vr, v)
	case dateVR:
		b, err = encodeDate(v)
	case numberBinaryVR:
		b, err = encodeNumberBinary(vr, v, ctx.order)
	case bulkDataVR:
		b, err = encodeBulkData(v, c.wordSize, ctx.order)
	case tagVR:
		b, err = encodeTags(v, ctx.order)
	case sequenceVR:
		return nil, fmt.Errorf("sequences have no value field, add items as children instead")
	default:
		return nil, fmt.Errorf("unknown vr kind found: %v", c.kind)
	}
	if err != nil {
		return nil, err
	}
	return pad(b, c.padding), nil
}

// orderSensitive is true when the encoded bytes depend on the byte order of the transfer syntax
func (c *vrCodec) orderSensitive() bool {
	switch c.kind {
	case numberBinaryVR, tagVR:
		return true
	case bulkDataVR:
		return c.wordSize > 1
	}
	return false
}

func isTextPadding(r rune) bool {
	return r == 0x00 || unicode.IsSpace(r)
}

// singleValued VRs do not use the backslash as a value delimiter, and their leading spaces
// are significant.
func singleValued(vr VR) bool {
	switch vr {
	case LTVR, STVR, UTVR, URVR:
		return true
	}
	return false
}

func decodeText(vr VR, raw []byte, c *vrCodec, ctx codecContext, isPadding func(rune) bool) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}

	valueField := string(raw)
	if c.usesCharset && ctx.charset != nil {
		decoded, err := ctx.charset.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %v text with character set: %v", vr, err)
		}
		valueField = string(decoded)
	}

	if singleValued(vr) {
		return []string{strings.TrimRightFunc(valueField, isPadding)}, nil
	}

	// deal with value multiplicity
	strs := strings.Split(valueField, "\\")
	for i, s := range strs {
		strs[i] = strings.TrimFunc(s, isPadding)
	}
	return strs, nil
}

func encodeText(v interface{}, c *vrCodec, ctx codecContext) ([]byte, error) {
	strs, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("expected type []string got %T", v)
	}

	b := []byte(strings.Join(strs, "\\"))
	if c.usesCharset && ctx.charset != nil {
		encoded, err := ctx.charset.NewEncoder().Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("encoding text with character set: %v", err)
		}
		b = encoded
	}
	return b, nil
}

func decodeNumberText(vr VR, raw []byte) (interface{}, error) {
	strs := splitASCII(raw)
	if vr == ISVR {
		ints := make([]int64, len(strs))
		for i, s := range strs {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing integer string %q: %v", s, err)
			}
			ints[i] = n
		}
		return ints, nil
	}

	floats := make([]float64, len(strs))
	for i, s := range strs {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing decimal string %q: %v", s, err)
		}
		floats[i] = f
	}
	return floats, nil
}

func encodeNumberText(vr VR, v interface{}) ([]byte, error) {
	var strs []string
	switch field := v.(type) {
	case []int64:
		if vr != ISVR {
			return nil, fmt.Errorf("unexpected type %T for vr %v", v, vr)
		}
		for _, n := range field {
			strs = append(strs, strconv.FormatInt(n, 10))
		}
	case []float64:
		if vr != DSVR {
			return nil, fmt.Errorf("unexpected type %T for vr %v", v, vr)
		}
		for _, f := range field {
			strs = append(strs, formatDecimalString(f))
		}
	default:
		return nil, fmt.Errorf("unexpected type %T for vr %v", v, vr)
	}
	return []byte(strings.Join(strs, "\\")), nil
}

// formatDecimalString formats f in at most 16 characters, the maximum length of a DS value
func formatDecimalString(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for prec := 15; len(s) > 16 && prec > 0; prec-- {
		s = strconv.FormatFloat(f, 'g', prec, 64)
	}
	return s
}

// ParseDate parses a DA value. The legacy ACR-NEMA form YYYY.MM.DD is accepted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := dateLayout
	if strings.Contains(s, ".") {
		layout = legacyDateLayout
	}
	return time.Parse(layout, s)
}

func decodeDate(raw []byte) ([]time.Time, error) {
	if len(bytes.TrimFunc(raw, isTextPadding)) == 0 {
		return []time.Time{}, nil
	}

	strs := strings.Split(string(raw), "\\")
	dates := make([]time.Time, len(strs))
	for i, s := range strs {
		s = strings.TrimFunc(s, isTextPadding)
		if s == "" {
			continue
		}
		d, err := ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %v", s, err)
		}
		dates[i] = d
	}
	return dates, nil
}

func encodeDate(v interface{}) ([]byte, error) {
	dates, ok := v.([]time.Time)
	if !ok {
		return nil, fmt.Errorf("expected type []time.Time got %T", v)
	}
	return []byte(formatDates(dates)), nil
}

func formatDates(dates []time.Time) string {
	strs := make([]string, len(dates))
	for i, d := range dates {
		if !d.IsZero() {
			strs[i] = d.Format(dateLayout)
		}
	}
	return strings.Join(strs, "\\")
}

// ParseTime parses a TM value of the form HHMMSS.FFFFFF where every component after the hours
// is optional. The returned time is on 0000-01-01 UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		// ACR-NEMA HH:MM:SS
		s = strings.ReplaceAll(s, ":", "")
	}
	layouts := map[int]string{2: "15", 4: "1504", 6: "150405"}
	base, frac := s, ""
	if i := strings.Index(s, "."); i >= 0 {
		base, frac = s[:i], s[i:]
	}
	layout, ok := layouts[len(base)]
	if !ok || (frac != "" && len(base) != 6) {
		return time.Time{}, fmt.Errorf("malformed time %q", s)
	}
	if frac != "" {
		layout += "." + strings.Repeat("0", len(frac)-1)
	}
	return time.Parse(layout, s)
}

// ParseDateTime parses a DT value YYYYMMDDHHMMSS.FFFFFF&ZZXX where every component after the
// year is optional.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	zone := ""
	if i := strings.IndexAny(s, "+-"); i >= 0 {
		s, zone = s[:i], s[i:]
	}
	base, frac := s, ""
	if i := strings.Index(s, "."); i >= 0 {
		base, frac = s[:i], s[i:]
	}
	full := "20060102150405"
	if len(base) < 4 || len(base) > len(full) || len(base)%2 != 0 {
		return time.Time{}, fmt.Errorf("malformed date time %q", s)
	}
	layout := full[:len(base)]
	if frac != "" {
		if len(base) != len(full) {
			return time.Time{}, fmt.Errorf("malformed date time %q", s)
		}
		layout += "." + strings.Repeat("0", len(frac)-1)
	}
	if zone != "" {
		layout += "-0700"
	}
	return time.Parse(layout, s+zone)
}

func decodeNumberBinary(vr VR, raw []byte, order binary.ByteOrder) (interface{}, error) {
	var data interface{}
	var size int

	switch vr {
	case SSVR:
		data, size = make([]int16, len(raw)/2), 2
	case USVR:
		data, size = make([]uint16, len(raw)/2), 2
	case SLVR:
		data, size = make([]int32, len(raw)/4), 4
	case ULVR:
		data, size = make([]uint32, len(raw)/4), 4
	case FLVR:
		data, size = make([]float32, len(raw)/4), 4
	case FDVR:
		data, size = make([]float64, len(raw)/8), 8
	default:
		return nil, fmt.Errorf("unknown vr: %v", vr)
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("value length %d of %v is not a multiple of %d", len(raw), vr, size)
	}

	if err := binary.Read(bytes.NewReader(raw), order, data); err != nil {
		return nil, fmt.Errorf("binary.Read(_, _, _) => %v", err)
	}

	return data, nil
}

func encodeNumberBinary(vr VR, v interface{}, order binary.ByteOrder) ([]byte, error) {
	ok := false
	switch v.(type) {
	case []int16:
		ok = vr == SSVR
	case []uint16:
		ok = vr == USVR
	case []int32:
		ok = vr == SLVR
	case []uint32:
		ok = vr == ULVR
	case []float32:
		ok = vr == FLVR
	case []float64:
		ok = vr == FDVR
	}
	if !ok {
		return nil, fmt.Errorf("unsupported binary number type %T for vr %v", v, vr)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, order, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeBulkData copies the value field. Words of OW, OF, OL and OD are always returned in
// little endian byte order.
func decodeBulkData(raw []byte, wordSize int, order binary.ByteOrder) ([]byte, error) {
	b := make([]byte, len(raw))
	copy(b, raw)
	if order == binary.BigEndian {
		swapWords(b, wordSize)
	}
	return b, nil
}

func encodeBulkData(v interface{}, wordSize int, order binary.ByteOrder) ([]byte, error) {
	field, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("unknown bulk data type: %T", v)
	}
	b := make([]byte, len(field))
	copy(b, field)
	if order == binary.BigEndian {
		swapWords(b, wordSize)
	}
	return b, nil
}

func swapWords(b []byte, wordSize int) {
	if wordSize < 2 {
		return
	}
	for i := 0; i+wordSize <= len(b); i += wordSize {
		for j, k := i, i+wordSize-1; j < k; j, k = j+1, k-1 {
			b[j], b[k] = b[k], b[j]
		}
	}
}

func decodeTags(raw []byte, order binary.ByteOrder) ([]DataElementTag, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("value length %d of AT is not a multiple of 4", len(raw))
	}
	ret := make([]DataElementTag, len(raw)/4) // 4 bytes per tag
	for i := range ret {
		ret[i] = NewTag(order.Uint16(raw[4*i:]), order.Uint16(raw[4*i+2:]))
	}
	return ret, nil
}

func encodeTags(v interface{}, order binary.ByteOrder) ([]byte, error) {
	tags, ok := v.([]DataElementTag)
	if !ok {
		return nil, fmt.Errorf("unexpected type for tag VR: %T (expected []DataElementTag)", v)
	}
	b := make([]byte, 4*len(tags))
	for i, t := range tags {
		order.PutUint16(b[4*i:], t.GroupNumber())
		order.PutUint16(b[4*i+2:], t.ElementNumber())
	}
	return b, nil
}

func splitASCII(raw []byte) []string {
	s := strings.TrimFunc(string(raw), isTextPadding)
	if s == "" {
		return []string{}
	}
	strs := strings.Split(s, "\\")
	for i := range strs {
		strs[i] = strings.TrimFunc(strs[i], isTextPadding)
	}
	return strs
}

// pad extends a value field to an even length
func pad(b []byte, padding byte) []byte {
	if len(b)%2 == 0 {
		return b
	}
	padded := make([]byte, len(b)+1)
	copy(padded, b)
	padded[len(b)] = padding
	return padded
}

// normalizeValue converts convenient Go values into the representation stored for vr, e.g. a
// string becomes []string for text VRs and is parsed for DA, IS and DS.
func normalizeValue(vr VR, c *vrCodec, v interface{}) (interface{}, error) {
	switch field := v.(type) {
	case string:
		switch c.kind {
		case textVR, uniqueIdentifierVR:
			if singleValued(vr) {
				return []string{field}, nil
			}
			return strings.Split(field, "\\"), nil
		case dateVR:
			return decodeDate([]byte(field))
		case numberTextVR:
			return decodeNumberText(vr, []byte(field))
		}
	case []string:
		switch c.kind {
		case dateVR:
			return decodeDate([]byte(strings.Join(field, "\\")))
		case numberTextVR:
			return decodeNumberText(vr, []byte(strings.Join(field, "\\")))
		}
	case time.Time:
		if c.kind == dateVR {
			return []time.Time{field}, nil
		}
	case DataElementTag:
		if c.kind == tagVR {
			return []DataElementTag{field}, nil
		}
	case int:
		return normalizeInt(vr, int64(field))
	case int64:
		return normalizeInt(vr, field)
	case float64:
		switch vr {
		case DSVR, FDVR:
			return []float64{field}, nil
		case FLVR:
			return []float32{float32(field)}, nil
		}
	}
	return v, nil
}

func normalizeInt(vr VR, n int64) (interface{}, error) {
	inRange := func(min, max int64) error {
		if n < min || n > max {
			return fmt.Errorf("value %d out of range for vr %v", n, vr)
		}
		return nil
	}
	switch vr {
	case ISVR:
		return []int64{n}, nil
	case DSVR:
		return []float64{float64(n)}, nil
	case USVR:
		return []uint16{uint16(n)}, inRange(0, math.MaxUint16)
	case SSVR:
		return []int16{int16(n)}, inRange(math.MinInt16, math.MaxInt16)
	case ULVR:
		return []uint32{uint32(n)}, inRange(0, math.MaxUint32)
	case SLVR:
		return []int32{int32(n)}, inRange(math.MinInt32, math.MaxInt32)
	}
	return nil, fmt.Errorf("cannot store integer in vr %v", vr)
}
