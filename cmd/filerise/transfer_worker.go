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
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// transferWorkerCmd is the detached worker entry point. The server
// spawns "filerise transfer-worker <job-id>" for each queued job; it is
// hidden because operators never invoke it by hand.
var transferWorkerCmd = &cobra.Command{
	Use:    "transfer-worker <job-id>",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   transferWorkerMain,
}

func init() {
	rootCmd.AddCommand(transferWorkerCmd)
}

func transferWorkerMain(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	jobID := args[0]
	log.Infof("Worker start id=%s", jobID)
	return d.newWorker().Run(cmd.Context(), jobID)
}
