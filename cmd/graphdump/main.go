// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// graphdump decodes a graphcodec stream from a file and prints the decoded
// tree, ObjectData fallbacks included. It is a debugging aid over the public
// API; unknown types print as their wire descriptors.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"

	"github.com/incoplex/graphcodec"
)

var (
	raw          bool
	showSettings bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "graphdump FILE",
	Short: "Decode a graphcodec stream and dump the object tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		r := graphcodec.NewReader(bytes.NewReader(data))
		defer r.Close()
		var v interface{}
		if raw {
			v, err = r.ReadRaw()
		} else {
			v, err = r.Read()
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}
		if showSettings {
			s := r.Settings()
			fmt.Fprintf(os.Stdout, "settings: skip-member-data=%t ignore-converter=%t ignore-custom=%t\n",
				s.SkipMemberData, s.IgnoreConverter, s.IgnoreCustom)
		}
		spew.Fdump(os.Stdout, v)
		return nil
	},
}

func setupLogging() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}`,
	))
	leveled := logging.AddModuleLevel(backend)
	if verbose {
		leveled.SetLevel(logging.INFO, "graphcodec")
	} else {
		leveled.SetLevel(logging.WARNING, "graphcodec")
	}
	logging.SetBackend(leveled)
}

func main() {
	rootCmd.Flags().BoolVar(&raw, "raw", false, "keep ObjectData fallbacks unconverted")
	rootCmd.Flags().BoolVar(&showSettings, "settings", false, "print the stream's decoded settings word")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log non-fatal decode events")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
