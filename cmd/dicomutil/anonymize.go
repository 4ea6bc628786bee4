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
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GoogleCloudPlatform/go-dicom-codec/anonymize"
)

func newAnonymizeCommand(s *settings) *cobra.Command {
	var flags struct {
		OutDir string
		UIDs   bool
	}

	cmd := &cobra.Command{
		Use:   "anonymize -o DIR FILE...",
		Short: "Replace dates and person names, and optionally UIDs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputs, err := outputPaths(flags.OutDir, args)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(flags.OutDir, 0755); err != nil {
				return err
			}
			a := anonymize.New(anonymize.WithUIDs(flags.UIDs), anonymize.WithLogger(s.log))
			return anonymizeFiles(cmd.OutOrStdout(), s, a, args, outputs)
		},
	}
	cmd.Flags().StringVarP(&flags.OutDir, "out-dir", "o", "", "Directory the anonymized files are written to")
	cmd.Flags().BoolVar(&flags.UIDs, "uids", false, "Replace instance UIDs with generated UIDs")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}

// outputPaths maps every input to a file of the same base name in outDir. Inputs that would
// overwrite each other's output are rejected before anything is written.
func outputPaths(outDir string, paths []string) ([]string, error) {
	outputs := make([]string, len(paths))
	seen := make(map[string]string, len(paths))
	for i, path := range paths {
		outputs[i] = filepath.Join(outDir, filepath.Base(path))
		if prev, ok := seen[outputs[i]]; ok {
			return nil, fmt.Errorf("%s and %s would both be written to %s", prev, path, outputs[i])
		}
		seen[outputs[i]] = path
	}
	return outputs, nil
}

func anonymizeFiles(out io.Writer, s *settings, a *anonymize.Anonymizer, paths, outputs []string) error {
	reports := make([]anonymize.Report, len(paths))

	errg := new(errgroup.Group)
	errg.SetLimit(s.workers)
	for i, path := range paths {
		i, path := i, path // Do not capture the loop variables in the closure
		errg.Go(func() error {
			doc, err := s.loadDocument(path)
			if err != nil {
				return err
			}
			reports[i], err = a.Anonymize(doc.Root())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return doc.SaveToFile(outputs[i])
		})
	}
	if err := errg.Wait(); err != nil {
		return err
	}

	for i, path := range paths {
		r := reports[i]
		fmt.Fprintf(out, "%s %s: %d dates, %d names, %d UIDs\n", color.GreenString("anonymized"), path, r.Dates, r.Names, r.UIDs)
	}
	return nil
}
