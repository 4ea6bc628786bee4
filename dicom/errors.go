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
	"errors"
	"fmt"
)

var (
	// ErrNoDictionary is returned when parsing is attempted before a data dictionary is set
	ErrNoDictionary = errors.New("no data dictionary set")

	// ErrNotPrepared is returned by PartialLoad and FinishLoad without a prior PrepareToLoad
	ErrNotPrepared = errors.New("partial load was not prepared")

	// ErrLoadInProgress is returned by operations that cannot run while a partial load is ongoing
	ErrLoadInProgress = errors.New("partial load in progress")
)

// ParseError is a fatal structural error in a DICOM stream. A Reader that returned a ParseError
// keeps returning it.
type ParseError struct {
	// Offset is the number of bytes consumed from the start of the stream when parsing failed
	Offset int64
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing DICOM stream at offset %d: %s", e.Offset, e.Msg)
}
