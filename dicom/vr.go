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

// vrType is to group common encodings together
type vrType int

const (
	// textVR is for value fields that will be interpreted as simple text with space padding
	textVR vrType = iota

	// numberTextVR is for IS and DS, numbers encoded as text
	numberTextVR

	// dateVR is for DA
	dateVR

	// numberBinaryVR is for value fields that are parsed as binary numbers
	numberBinaryVR

	// bulkDataVR groups sequences of bytes or binary words
	bulkDataVR

	// uniqueIdentifierVR is for VR: UI. It has null padding
	uniqueIdentifierVR

	// sequenceVR is for VR: SQ
	sequenceVR

	// tagVR is for tags. Distinct from numberBinaryVR due to the (group, element) pair ordering
	tagVR
)

// UndefinedLength as specified
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.1
const UndefinedLength = 0xffffffff

// VR models the DICOM Value representations (VR)
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_6.2
//
// The 2-character code is packed into 16 bits, first character in the high byte.
type VR uint16

// VRFromString returns the VR of a 2-character code. The code is not required to be a
// registered VR.
func VRFromString(name string) (VR, error) {
	if len(name) != 2 {
		return 0, fmt.Errorf("vr must have 2 characters: %q", name)
	}
	return VR(uint16(name[0])<<8 | uint16(name[1])), nil
}

func (vr VR) String() string {
	return string([]byte{byte(vr >> 8), byte(vr)})
}

// Known reports whether the VR is one of the standard value representations
func (vr VR) Known() bool {
	_, ok := vrRegistry[vr]
	return ok
}

// HasLongLength is true for VRs encoded with 2 reserved bytes and a 32-bit length in explicit
// VR transfer syntaxes.
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.2
func (vr VR) HasLongLength() bool {
	c, ok := vrRegistry[vr]
	return ok && c.longLength
}

// vrCodec holds everything needed to encode and decode the value field of a VR
type vrCodec struct {
	kind vrType

	longLength bool

	// padding is appended to odd length value fields
	padding byte

	// wordSize is the width of the binary words that are swapped between byte orders.
	// Zero for VRs that are not affected by byte ordering.
	wordSize int

	// usesCharset is true for VRs decoded with the Specific Character Set. Other text VRs
	// are restricted to the default repertoire.
	usesCharset bool
}

var vrRegistry = map[VR]*vrCodec{}

func newVR(name string, c vrCodec) VR {
	vr, err := VRFromString(name)
	if err != nil {
		panic(err)
	}
	vrRegistry[vr] = &c
	return vr
}

func lookupVR(vr VR) (*vrCodec, error) {
	c, ok := vrRegistry[vr]
	if !ok {
		return nil, fmt.Errorf("unknown vr: %v", vr)
	}
	return c, nil
}

// VR list obtained from
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_6.2
var (
	// textual VRs
	CSVR = newVR("CS", vrCodec{kind: textVR, padding: ' '})
	SHVR = newVR("SH", vrCodec{kind: textVR, padding: ' ', usesCharset: true})
	LOVR = newVR("LO", vrCodec{kind: textVR, padding: ' ', usesCharset: true})
	STVR = newVR("ST", vrCodec{kind: textVR, padding: ' ', usesCharset: true})
	LTVR = newVR("LT", vrCodec{kind: textVR, padding: ' ', usesCharset: true})
	ASVR = newVR("AS", vrCodec{kind: textVR, padding: ' '})

	// person name
	PNVR = newVR("PN", vrCodec{kind: textVR, padding: ' ', usesCharset: true})

	// application entity
	AEVR = newVR("AE", vrCodec{kind: textVR, padding: ' '})

	// dates/time VR
	DAVR = newVR("DA", vrCodec{kind: dateVR, padding: ' '})
	TMVR = newVR("TM", vrCodec{kind: textVR, padding: ' '})
	DTVR = newVR("DT", vrCodec{kind: textVR, padding: ' '})

	// textual numbers
	ISVR = newVR("IS", vrCodec{kind: numberTextVR, padding: ' '})
	DSVR = newVR("DS", vrCodec{kind: numberTextVR, padding: ' '})

	// binary numbers
	SSVR = newVR("SS", vrCodec{kind: numberBinaryVR})
	USVR = newVR("US", vrCodec{kind: numberBinaryVR})
	SLVR = newVR("SL", vrCodec{kind: numberBinaryVR})
	ULVR = newVR("UL", vrCodec{kind: numberBinaryVR})
	FLVR = newVR("FL", vrCodec{kind: numberBinaryVR})
	FDVR = newVR("FD", vrCodec{kind: numberBinaryVR})

	// large binary sequences
	OBVR = newVR("OB", vrCodec{kind: bulkDataVR, longLength: true})
	ODVR = newVR("OD", vrCodec{kind: bulkDataVR, longLength: true, wordSize: 8})
	OLVR = newVR("OL", vrCodec{kind: bulkDataVR, longLength: true, wordSize: 4})
	OWVR = newVR("OW", vrCodec{kind: bulkDataVR, longLength: true, wordSize: 2})
	OFVR = newVR("OF", vrCodec{kind: bulkDataVR, longLength: true, wordSize: 4})

	// unlimited char
	UCVR = newVR("UC", vrCodec{kind: textVR, longLength: true, padding: ' ', usesCharset: true})

	// unknown
	UNVR = newVR("UN", vrCodec{kind: bulkDataVR, longLength: true})

	// URL
	URVR = newVR("UR", vrCodec{kind: textVR, longLength: true, padding: ' '})

	// unlimited text
	UTVR = newVR("UT", vrCodec{kind: textVR, longLength: true, padding: ' ', usesCharset: true})

	// attribute tag
	ATVR = newVR("AT", vrCodec{kind: tagVR})

	// unique identifier
	UIVR = newVR("UI", vrCodec{kind: uniqueIdentifierVR, padding: 0x00})

	// sequence
	SQVR = newVR("SQ", vrCodec{kind: sequenceVR, longLength: true})
)

// vrForDictionary maps the VR string of a dictionary entry to a VR. Entries without a VR (the
// item tags) and unknown codes map to UN.
func vrForDictionary(name string) VR {
	vr, err := VRFromString(name)
	if err != nil || !vr.Known() {
		return UNVR
	}
	return vr
}
