/***************************************************************
 *
 * Copyright (C) 2025, FileRise Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/filerise/filerise/config"
	"github.com/filerise/filerise/logging"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "filerise",
		Short: "Self-hosted file manager transfer engine",
		Long: `The filerise transfer engine moves and copies files and folders
between storage backends through asynchronous, pollable jobs. Run the
server with "filerise serve" and drive it with the jobs subcommands.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitConfig(cfgFile); err != nil {
				return err
			}
			return logging.Setup(
				config.GetString("Logging.Level"),
				config.GetString("Logging.LogLocation"),
			)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the configuration file")
}

// Execute runs the root command with a process-wide errgroup threaded
// through the command context so long-lived goroutines can be awaited
// on shutdown.
func Execute() error {
	egrp, egrpCtx := errgroup.WithContext(context.Background())
	ctx := context.WithValue(egrpCtx, config.EgrpKey, egrp)

	err := rootCmd.ExecuteContext(ctx)

	if egrpErr := egrp.Wait(); egrpErr != nil && egrpErr != context.Canceled {
		log.Errorln("Fatal error occurred that lead to the shutdown of the process:", egrpErr)
		if err == nil {
			err = egrpErr
		}
	}
	logging.Close()
	return err
}
