/*
Copyright 2025 The Tesslate Studio Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
)

var (
	v       string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Runs project environments for Tesslate Studio.",
}

func NewOrchestratorCommand(out, errOut io.Writer) *cobra.Command {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return SetUpLogs(errOut, v)
	}
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(NewCmdServe(out))
	rootCmd.AddCommand(NewCmdReap(out))
	rootCmd.AddCommand(NewCmdWarmCache(out))

	addGlobalFlags(rootCmd.PersistentFlags())
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&v, "verbosity", "v", logrus.InfoLevel.String(), "Log level (debug, info, warn, error, fatal, panic)")
	fs.StringVar(&envFile, "env-file", ".env", "Path to an env file with configuration overrides")
}

func SetUpLogs(out io.Writer, level string) error {
	logrus.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(lvl)
	return nil
}

func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
