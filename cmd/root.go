// Copyright 2025 Google LLC
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
	"fmt"
	"os"

	"github.com/Cajova-Houba/kiv-os-simulator/cfg"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	bootConfig    cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "kivos [flags]",
	Short: "Run the user-space operating system simulator",
	Long: `kivos boots a simulated operating system in this process: a HAL over
host files and the terminal, a kernel with processes, pipes, and a FAT-like
filesystem, and a user boot program speaking to it through syscalls.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		cfg.Rationalize(&bootConfig, viper.GetInt("ram-disk-mb"))
		if err := cfg.Validate(&bootConfig); err != nil {
			return err
		}

		logger.SetLogFormat(bootConfig.Logging.Format)
		logger.SetLogSeverity(bootConfig.Logging.Severity)

		return boot(&bootConfig)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	unmarshalErr = viper.Unmarshal(&bootConfig)
	if unmarshalErr != nil {
		return
	}

	// The drive list is decoded explicitly so entries keep strict types
	// whatever shape the config file gave them.
	if raw := viper.Get("drives"); raw != nil {
		var drives []cfg.DriveConfig
		if err := mapstructure.Decode(raw, &drives); err != nil {
			unmarshalErr = fmt.Errorf("decoding drives: %w", err)
			return
		}
		bootConfig.Drives = drives
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the machine config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}
