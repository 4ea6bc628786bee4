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
	"io"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dictionary"
)

// Parse parses a DICOM file represented as an io.Reader and returns the root of its tree. The
// default dictionary is used unless the options select another one.
func Parse(r io.Reader, opts ...DocumentOption) (*DataElement, error) {
	opts = append([]DocumentOption{WithDictionary(dictionary.DefaultName)}, opts...)
	doc, err := NewDocument(opts...)
	if err != nil {
		return nil, err
	}
	if err := doc.LoadFromStream(r); err != nil {
		return nil, err
	}
	return doc.Root(), nil
}

// Write writes a tree as a DICOM file, with the preamble, in the syntax announced by its
// Transfer Syntax UID. Group lengths are written as they are.
func Write(w io.Writer, root *DataElement) error {
	_, err := NewWriter().WriteToStream(root, w, true)
	return err
}
