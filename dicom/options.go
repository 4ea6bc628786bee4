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
	"github.com/rs/zerolog"
)

// DefaultChunkSize is the number of bytes read from a stream per call to the Reader
const DefaultChunkSize = 64 * 1024

type documentOptions struct {
	chunkSize      int
	log            zerolog.Logger
	usePreamble    bool
	initialSyntax  TransferSyntax
	dictionaryName string
}

func defaultDocumentOptions() documentOptions {
	return documentOptions{
		chunkSize:     DefaultChunkSize,
		log:           zerolog.Nop(),
		usePreamble:   true,
		initialSyntax: ExplicitVRLittleEndian,
	}
}

// DocumentOption configures a Document
type DocumentOption func(*documentOptions)

// WithChunkSize bounds the number of bytes read at once by LoadFromStream. Values below 1 keep
// the default of 64 KiB.
func WithChunkSize(n int) DocumentOption {
	return func(o *documentOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger sets the logger parse anomalies and transfer syntax switches are reported to. The
// default logger discards everything.
func WithLogger(log zerolog.Logger) DocumentOption {
	return func(o *documentOptions) {
		o.log = log
	}
}

// WithPreamble sets whether streams start with the 128 byte preamble and the DICM signature.
// Streams without preamble start directly with a data element tag.
func WithPreamble(usePreamble bool) DocumentOption {
	return func(o *documentOptions) {
		o.usePreamble = usePreamble
	}
}

// WithInitialTransferSyntax sets the syntax assumed for the data set when no Transfer Syntax UID
// is announced, and for the first group of streams without preamble.
func WithInitialTransferSyntax(syntax TransferSyntax) DocumentOption {
	return func(o *documentOptions) {
		o.initialSyntax = syntax
	}
}

// WithDictionary selects a registered data dictionary by name, see dictionary.Register
func WithDictionary(name string) DocumentOption {
	return func(o *documentOptions) {
		o.dictionaryName = name
	}
}
