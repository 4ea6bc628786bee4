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
	"math"
	"strings"
)

// list of transfer syntaxes obtained from
// http://dicom.nema.org/medical/dicom/current/output/html/part06.html#chapter_A
const (
	// ImplicitVRLittleEndianUID is the Implicit VR Little Endian UID
	ImplicitVRLittleEndianUID = "1.2.840.10008.1.2"
	// ExplicitVRLittleEndianUID is the Explicit VR Little Endian UID
	ExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1"
	// ExplicitVRBigEndianUID is the Explicit VR Big Endian UID
	ExplicitVRBigEndianUID = "1.2.840.10008.1.2.2"
	// DeflatedExplicitVRLittleEndianUID is the Deflated Explicit VR Little Endian UID
	DeflatedExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1.99"
	// JPEGBaselineUID is the JPEG Baseline (Process 1) transfer syntax UID
	JPEGBaselineUID = "1.2.840.10008.1.2.4.50"
	// JPEGLosslessUID is the JPEG Lossless, Non-Hierarchical, First-Order Prediction UID
	JPEGLosslessUID = "1.2.840.10008.1.2.4.70"
	// JPEG2000UID is the JPEG 2000 Image Compression UID
	JPEG2000UID = "1.2.840.10008.1.2.4.91"
	// RLELosslessUID is the RLE Lossless UID
	RLELosslessUID = "1.2.840.10008.1.2.5"
)

// TransferSyntax is the pair {Implicit|Explicit VR} x {Little|Big Endian} governing how data
// elements are laid out. The zero value is Explicit VR Little Endian.
type TransferSyntax struct {
	Implicit  bool
	BigEndian bool
}

var (
	ExplicitVRLittleEndian = TransferSyntax{}
	ImplicitVRLittleEndian = TransferSyntax{Implicit: true}
	ExplicitVRBigEndian    = TransferSyntax{BigEndian: true}
)

// ByteOrder returns the byte order of binary fields
func (s TransferSyntax) ByteOrder() binary.ByteOrder {
	if s.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// UID returns the UID of the native (uncompressed) transfer syntax with the same encoding.
func (s TransferSyntax) UID() string {
	switch {
	case s.Implicit:
		return ImplicitVRLittleEndianUID
	case s.BigEndian:
		return ExplicitVRBigEndianUID
	}
	return ExplicitVRLittleEndianUID
}

func (s TransferSyntax) String() string {
	vr, order := "Explicit VR", "Little Endian"
	if s.Implicit {
		vr = "Implicit VR"
	}
	if s.BigEndian {
		order = "Big Endian"
	}
	return vr + " " + order
}

// ParseTransferSyntax accepts the names "implicit-le", "explicit-le" and "explicit-be" as well
// as any known transfer syntax UID.
func ParseTransferSyntax(s string) (TransferSyntax, error) {
	switch strings.ToLower(s) {
	case "implicit-le", "implicit":
		return ImplicitVRLittleEndian, nil
	case "explicit-le", "explicit":
		return ExplicitVRLittleEndian, nil
	case "explicit-be", "big-endian":
		return ExplicitVRBigEndian, nil
	}
	info, ok := lookupTransferSyntax(s)
	if !ok {
		return TransferSyntax{}, fmt.Errorf("unknown transfer syntax %q", s)
	}
	if info.deflated {
		return TransferSyntax{}, fmt.Errorf("deflated transfer syntax is not supported")
	}
	return info.syntax, nil
}

type transferSyntaxInfo struct {
	name   string
	syntax TransferSyntax

	// deflated syntaxes compress everything after the file meta information
	deflated bool

	// encapsulated syntaxes store pixel data as a sequence of fragments
	encapsulated bool
}

// transferSyntaxes lists the recognized transfer syntax UIDs. Every encapsulated syntax is
// Explicit VR Little Endian according to PS3.5 A.4
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_A.4
var transferSyntaxes = map[string]transferSyntaxInfo{
	ImplicitVRLittleEndianUID:         {"Implicit VR Little Endian", ImplicitVRLittleEndian, false, false},
	ExplicitVRLittleEndianUID:         {"Explicit VR Little Endian", ExplicitVRLittleEndian, false, false},
	ExplicitVRBigEndianUID:            {"Explicit VR Big Endian", ExplicitVRBigEndian, false, false},
	DeflatedExplicitVRLittleEndianUID: {"Deflated Explicit VR Little Endian", ExplicitVRLittleEndian, true, false},
	JPEGBaselineUID:                   {"JPEG Baseline (Process 1)", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.51":          {"JPEG Extended (Process 2 & 4)", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.57":          {"JPEG Lossless, Non-Hierarchical (Process 14)", ExplicitVRLittleEndian, false, true},
	JPEGLosslessUID:                   {"JPEG Lossless, Non-Hierarchical, First-Order Prediction", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.80":          {"JPEG-LS Lossless", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.81":          {"JPEG-LS Lossy (Near-Lossless)", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.90":          {"JPEG 2000 Image Compression (Lossless Only)", ExplicitVRLittleEndian, false, true},
	JPEG2000UID:                       {"JPEG 2000 Image Compression", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.100":         {"MPEG2 Main Profile / Main Level", ExplicitVRLittleEndian, false, true},
	"1.2.840.10008.1.2.4.102":         {"MPEG-4 AVC/H.264 High Profile / Level 4.1", ExplicitVRLittleEndian, false, true},
	RLELosslessUID:                    {"RLE Lossless", ExplicitVRLittleEndian, false, true},
}

func lookupTransferSyntax(uid string) (transferSyntaxInfo, bool) {
	info, ok := transferSyntaxes[strings.TrimRight(uid, " \x00")]
	return info, ok
}

// TransferSyntaxName returns the name of a transfer syntax UID, or the UID itself when unknown
func TransferSyntaxName(uid string) string {
	if info, ok := lookupTransferSyntax(uid); ok {
		return info.name
	}
	return uid
}

const (
	vrSize  = 2
	tagSize = 4

	// itemHeaderSize is the size of an item or delimitation item header: tag and 32-bit length
	itemHeaderSize = tagSize + 4
)

// headerSize returns the number of bytes preceding the value field of a data element
func (s TransferSyntax) headerSize(vr VR) uint32 {
	if s.Implicit {
		return tagSize + 4 /*length*/
	}
	if vr.HasLongLength() {
		return tagSize + vrSize + 2 /*reserved*/ + 4 /*32-bit length*/
	}
	return tagSize + vrSize + 2 /*16-bit length*/
}

func (s TransferSyntax) writeElementHeader(dw *dcmWriter, tag DataElementTag, vr VR, length uint32) error {
	order := s.ByteOrder()
	if err := dw.Tag(order, tag); err != nil {
		return fmt.Errorf("writing tag: %v", err)
	}

	if s.Implicit {
		// implicit VR syntax does not include VR in the DICOM file
		if err := dw.UInt32(order, length); err != nil {
			return fmt.Errorf("writing length: %v", err)
		}
		return nil
	}

	if err := dw.String(vr.String()); err != nil {
		return fmt.Errorf("writing VR: %v", err)
	}

	// For explicit VR, lengths can be stored in a 32 bit field or a 16 bit field
	// depending on the VR type. The 2 cases are defined at the link:
	// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.2
	if vr.HasLongLength() {
		if err := dw.UInt16(order, 0); err != nil {
			return fmt.Errorf("writing reserved field: %v", err)
		}
		if err := dw.UInt32(order, length); err != nil {
			return fmt.Errorf("writing 32 bit length: %v", err)
		}
		return nil
	}

	if length > math.MaxUint16 {
		return fmt.Errorf("data element %v value length %d exceeds unsigned 16-bit length", tag, length)
	}
	if err := dw.UInt16(order, uint16(length)); err != nil {
		return fmt.Errorf("writing 16 bit length: %v", err)
	}
	return nil
}
