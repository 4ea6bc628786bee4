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

// Package anonymize removes identifying values from a tree of DICOM data elements. Every date
// (DA) and person name (PN) is replaced with a fixed value, and instance UIDs may be replaced
// with newly generated ones.
package anonymize

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dicom"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// AnonymousDate replaces every DA value
	AnonymousDate = "19000101"

	// AnonymousName replaces every PN value
	AnonymousName = "Onymous^A^N^^"
)

// standardUIDRoot prefixes the UIDs defined by the standard, such as SOP classes and transfer
// syntaxes. They identify nothing and are never replaced.
const standardUIDRoot = "1.2.840.10008."

// Report counts the values replaced by Anonymize
type Report struct {
	Dates int
	Names int
	UIDs  int
}

// Option configures an Anonymizer
type Option func(*Anonymizer)

// WithUIDs enables the replacement of UI values, except standard UIDs and the Implementation
// Class UID. The same UID is always replaced with the same new UID, across trees.
func WithUIDs(enabled bool) Option {
	return func(a *Anonymizer) {
		a.uids = enabled
	}
}

// WithLogger sets the logger replacements are reported to
func WithLogger(log zerolog.Logger) Option {
	return func(a *Anonymizer) {
		a.log = log
	}
}

// Anonymizer replaces identifying values. An Anonymizer may be used by several goroutines, each
// with its own tree; the UID mapping is shared so references between files stay consistent.
type Anonymizer struct {
	uids bool
	log  zerolog.Logger

	mu     sync.Mutex
	uidMap map[string]string
}

// New returns an Anonymizer replacing dates and names
func New(opts ...Option) *Anonymizer {
	a := &Anonymizer{log: zerolog.Nop(), uidMap: map[string]string{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Anonymize replaces the values of the tree under root in place. Nested sequences are
// anonymized too. The tree must be prepared again before it is written, see
// dicom.Document.PrepareDataElements.
func (a *Anonymizer) Anonymize(root *dicom.DataElement) (Report, error) {
	var r Report
	err := root.Walk(func(e *dicom.DataElement, _ int) error {
		if e.IsRoot() || e.IsItem() || e.Value() == nil {
			return nil
		}

		switch e.VR {
		case dicom.DAVR:
			if err := e.SetValue(AnonymousDate); err != nil {
				return err
			}
			r.Dates++
		case dicom.PNVR:
			if err := e.SetValue(AnonymousName); err != nil {
				return err
			}
			r.Names++
		case dicom.UIVR:
			if !a.uids || e.Tag == dicom.ImplementationClassUIDTag || e.Tag == dicom.TransferSyntaxUIDTag {
				return nil
			}
			n, err := a.replaceUIDs(e)
			if err != nil {
				return err
			}
			r.UIDs += n
		}
		return nil
	})
	if err != nil {
		return r, fmt.Errorf("anonymizing: %w", err)
	}
	a.log.Debug().Int("dates", r.Dates).Int("names", r.Names).Int("uids", r.UIDs).Msg("anonymized data set")
	return r, nil
}

func (a *Anonymizer) replaceUIDs(e *dicom.DataElement) (int, error) {
	uids := append([]string(nil), e.Value().Strings()...)
	replaced := 0
	for i, uid := range uids {
		if uid == "" || strings.HasPrefix(uid, standardUIDRoot) {
			continue
		}
		uids[i] = a.mapUID(uid)
		replaced++
	}
	if replaced == 0 {
		return 0, nil
	}
	if err := e.SetValue(uids); err != nil {
		return 0, err
	}
	return replaced, nil
}

func (a *Anonymizer) mapUID(uid string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mapped, ok := a.uidMap[uid]; ok {
		return mapped
	}
	mapped := NewUID()
	a.uidMap[uid] = mapped
	return mapped
}

// NewUID returns a UID derived from a random UUID, under the 2.25 root of PS3.5 B.2
func NewUID() string {
	id := uuid.New()
	return "2.25." + new(big.Int).SetBytes(id[:]).String()
}
