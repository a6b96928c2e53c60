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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/filerise/filerise/config"
	"github.com/filerise/filerise/transfer"
)

// jobsCleanupCmd operates directly on the local job store rather than
// the API: it is an operator tool for the host running the server.
var (
	jobsCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired job records and worker logs",
		RunE:  jobsCleanupMain,
	}

	jobsCleanupAge time.Duration
)

func init() {
	jobsCleanupCmd.Flags().DurationVar(&jobsCleanupAge, "age", 0, "Override the configured retention age")
	jobsCmd.AddCommand(jobsCleanupCmd)
}

func jobsCleanupMain(cmd *cobra.Command, args []string) error {
	store := transfer.NewStore(config.GetString("Transfer.JobsRoot"))
	age := jobsCleanupAge
	if age <= 0 {
		age = config.GetDuration("Transfer.RetentionAge", transfer.DefaultRetention)
	}
	if err := store.CleanupOld(age); err != nil {
		return err
	}
	fmt.Printf("Removed job artifacts older than %s\n", age)
	return nil
}
