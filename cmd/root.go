// Copyright 2025 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dominikschlosser/mdoc-holder/internal/config"
	"github.com/dominikschlosser/mdoc-holder/internal/output"
)

var (
	jsonOutput bool
	noColor    bool
	verbose    bool
	configPath string
	logLevel   string

	settings = config.Default()
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "mdoc-holder",
	Short: "Hold mdoc credentials and disclose them to ISO 18013-5 readers",
	Long:  "A local mdoc wallet and reader. Stores mDL and PID credentials, discloses them to readers over the REST API device retrieval method, and runs a test reader that verifies what it receives.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = s

		level := settings.Logger.Level
		if logLevel != "" {
			level = logLevel
		}
		l := config.DefaultLogger(settings.AppName, zerolog.ConsoleWriter{Out: os.Stderr})
		logger, err = config.SetLevel(l, level)
		return err
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the settings file")
}

func outputOptions() output.Options {
	return output.Options{JSON: jsonOutput, Verbose: verbose}
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		return err
	}
	return nil
}
