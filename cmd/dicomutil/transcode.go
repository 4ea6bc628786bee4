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

package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dicom"
)

func newTranscodeCommand(s *settings) *cobra.Command {
	var flags struct {
		Syntax           string
		ExplicitLengths  bool
		UndefinedLengths bool
	}

	cmd := &cobra.Command{
		Use:   "transcode IN OUT",
		Short: "Rewrite a DICOM file in another transfer syntax",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			doc, err := s.loadDocument(in)
			if err != nil {
				return err
			}

			if flags.Syntax != "" {
				syntax, err := dicom.ParseTransferSyntax(flags.Syntax)
				if err != nil {
					return err
				}
				uid := syntax.UID()
				if dicom.TransferSyntaxName(flags.Syntax) != flags.Syntax {
					// a known UID, kept as given so compressed syntaxes stay compressed
					uid = flags.Syntax
				}
				if err := doc.SetTransferSyntaxUID(uid); err != nil {
					return err
				}
			}

			switch {
			case flags.ExplicitLengths:
				dicom.ExplicitLengths(doc.Root())
			case flags.UndefinedLengths:
				dicom.UndefinedLengths(doc.Root())
			}

			if err := doc.SaveToFile(out); err != nil {
				return err
			}
			info, err := os.Stat(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %s, %v\n", out, humanize.IBytes(uint64(info.Size())), doc.TransferSyntax())
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Syntax, "syntax", "", "Target transfer syntax: implicit-le, explicit-le, explicit-be or a UID")
	cmd.Flags().BoolVar(&flags.ExplicitLengths, "explicit-lengths", false, "Write sequences and items with explicit lengths")
	cmd.Flags().BoolVar(&flags.UndefinedLengths, "undefined-lengths", false, "Write sequences and items with undefined lengths")
	cmd.MarkFlagsMutuallyExclusive("explicit-lengths", "undefined-lengths")
	return cmd
}
