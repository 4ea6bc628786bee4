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

// DataElementTag is a unique identifier for a Data Element composed of an unordered pair
// of numbers called the group number and the element number as specified in
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_3.10.
//
// The least significant 16 bits is the element number. The most significant 16 bits is the group
// number.
type DataElementTag uint32

// NewTag packs a group and element number into a DataElementTag
func NewTag(group, element uint16) DataElementTag {
	return DataElementTag(uint32(group)<<16 | uint32(element))
}

// GroupNumber returns the group number component of the DataElementTag
func (t DataElementTag) GroupNumber() uint16 {
	return uint16(t >> 16)
}

// ElementNumber returns the element number component of the DataElementTag
func (t DataElementTag) ElementNumber() uint16 {
	return uint16(t & 0xFFFF)
}

// IsMetaElement is true if and only if the Data Element is a file meta element
func (t DataElementTag) IsMetaElement() bool {
	return t.GroupNumber() == metaGroup
}

// IsGroupLength is true for group length elements (gggg,0000)
func (t DataElementTag) IsGroupLength() bool {
	return t.ElementNumber() == 0
}

// IsPrivate is true for tags of odd group numbers
func (t DataElementTag) IsPrivate() bool {
	return t.GroupNumber()%2 == 1
}

// isStructural is true for the item and delimitation tags of group FFFE
func (t DataElementTag) isStructural() bool {
	return t.GroupNumber() == itemGroup
}

func (t DataElementTag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.GroupNumber(), t.ElementNumber())
}

const (
	metaGroup = 0x0002
	itemGroup = 0xFFFE
)

// Structural and well known tags. The items of group FFFE are markers that only delimit
// sequences and items, they never carry data.
const (
	ItemTag                     DataElementTag = 0xFFFEE000
	ItemDelimitationItemTag     DataElementTag = 0xFFFEE00D
	SequenceDelimitationItemTag DataElementTag = 0xFFFEE0DD

	CommandGroupLengthTag             DataElementTag = 0x00000000
	CommandLengthToEndTag             DataElementTag = 0x00000001
	FileMetaInformationGroupLengthTag DataElementTag = 0x00020000
	FileMetaInformationVersionTag     DataElementTag = 0x00020001
	MediaStorageSOPClassUIDTag        DataElementTag = 0x00020002
	MediaStorageSOPInstanceUIDTag     DataElementTag = 0x00020003
	TransferSyntaxUIDTag              DataElementTag = 0x00020010
	ImplementationClassUIDTag         DataElementTag = 0x00020012
	ImplementationVersionNameTag      DataElementTag = 0x00020013
	LengthToEndTag                    DataElementTag = 0x00080001
	SpecificCharacterSetTag           DataElementTag = 0x00080005
	SOPClassUIDTag                    DataElementTag = 0x00080016
	SOPInstanceUIDTag                 DataElementTag = 0x00080018
	StudyDateTag                      DataElementTag = 0x00080020
	ModalityTag                       DataElementTag = 0x00080060
	ReferencedImageSequenceTag        DataElementTag = 0x00081140
	ReferencedSOPClassUIDTag          DataElementTag = 0x00081150
	ReferencedSOPInstanceUIDTag       DataElementTag = 0x00081155
	PatientNameTag                    DataElementTag = 0x00100010
	PatientIDTag                      DataElementTag = 0x00100020
	PatientBirthDateTag               DataElementTag = 0x00100030
	StudyInstanceUIDTag               DataElementTag = 0x0020000D
	SeriesInstanceUIDTag              DataElementTag = 0x0020000E
	RowsTag                           DataElementTag = 0x00280010
	ColumnsTag                        DataElementTag = 0x00280011
	PixelDataTag                      DataElementTag = 0x7FE00010
)
