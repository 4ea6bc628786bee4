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
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dicom"
)

var warningColor = color.New(color.FgYellow)

func newDumpCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "dump FILE...",
		Short: "Print the data elements of DICOM files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := dumpFile(cmd.OutOrStdout(), s, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func dumpFile(out io.Writer, s *settings, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	doc, err := s.loadDocument(path)
	if err != nil {
		return err
	}
	root := doc.Root()

	syntax := doc.TransferSyntax().String()
	if el := root.ChildByTag(dicom.TransferSyntaxUIDTag); el != nil {
		syntax = dicom.TransferSyntaxName(el.ValueString())
	}
	fmt.Fprintf(out, "# %s: %s, %s\n", path, humanize.IBytes(uint64(info.Size())), syntax)
	fmt.Fprintln(out, root.String())

	for _, w := range root.Warnings() {
		warningColor.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}
