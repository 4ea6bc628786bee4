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

// Command dicomutil dumps, anonymizes and transcodes DICOM files.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/GoogleCloudPlatform/go-dicom-codec/dicom"
	"github.com/GoogleCloudPlatform/go-dicom-codec/dictionary"
)

const envPrefix = "DICOMUTIL"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// settings are resolved from flags, environment and the config file, in that order
type settings struct {
	chunkSize  int
	dictionary string
	workers    int
	log        zerolog.Logger
}

func (s *settings) documentOptions() []dicom.DocumentOption {
	return []dicom.DocumentOption{
		dicom.WithChunkSize(s.chunkSize),
		dicom.WithDictionary(s.dictionary),
		dicom.WithLogger(s.log),
	}
}

func (s *settings) loadDocument(path string) (*dicom.Document, error) {
	doc, err := dicom.NewDocument(s.documentOptions()...)
	if err != nil {
		return nil, err
	}
	if err := doc.LoadFromFile(path); err != nil {
		return nil, err
	}
	return doc, nil
}

func newRootCommand() *cobra.Command {
	cfg := viper.New()
	s := new(settings)
	var configFile string

	cmd := &cobra.Command{
		Use:           "dicomutil",
		Short:         "Inspect and rewrite DICOM files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadSettings(cmd, cfg, configFile, s)
		},
	}

	flags := globalFlags(&configFile)
	cmd.PersistentFlags().AddFlagSet(flags)
	if err := cfg.BindPFlags(flags); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		newDumpCommand(s),
		newAnonymizeCommand(s),
		newTranscodeCommand(s),
	)
	return cmd
}

// globalFlags are shared by every sub-command. All but config are bound to viper keys of the
// same name.
func globalFlags(configFile *string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("dicomutil", pflag.ContinueOnError)
	flags.StringVar(configFile, "config", "", "Config file (YAML, TOML or JSON)")
	flags.Int("chunk-size", dicom.DefaultChunkSize, "Number of bytes read at once")
	flags.String("dictionary", dictionary.DefaultName, "Name of the data dictionary")
	flags.String("dictionary-file", "", "Data dictionary file (TSV or YAML) to load and use")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.Int("workers", runtime.NumCPU(), "Number of files processed concurrently")
	return flags
}

func loadSettings(cmd *cobra.Command, cfg *viper.Viper, configFile string, s *settings) error {
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()
	if configFile != "" {
		cfg.SetConfigFile(configFile)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	level, err := zerolog.ParseLevel(cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	writer := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}
	s.log = zerolog.New(writer).Level(level).With().Timestamp().Logger()

	s.chunkSize = cfg.GetInt("chunk-size")
	s.workers = cfg.GetInt("workers")
	if s.workers < 1 {
		s.workers = 1
	}

	s.dictionary = cfg.GetString("dictionary")
	if path := cfg.GetString("dictionary-file"); path != "" {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		dict, err := dictionary.LoadFile(name, path)
		if err != nil {
			return fmt.Errorf("loading dictionary: %w", err)
		}
		if err := dictionary.Register(dict); err != nil {
			return err
		}
		s.dictionary = name
		s.log.Debug().Str("name", name).Int("entries", dict.Len()).Msg("dictionary loaded")
	}
	return nil
}
