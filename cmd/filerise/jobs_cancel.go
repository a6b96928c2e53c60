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

	"github.com/spf13/cobra"
)

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a transfer job",
	Args:  cobra.ExactArgs(1),
	RunE:  jobsCancelMain,
}

func init() {
	jobsCmd.AddCommand(jobsCancelCmd)
}

func jobsCancelMain(cmd *cobra.Command, args []string) error {
	job, err := newAPIClient().Cancel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if job == nil {
		fmt.Println("Cancel request already in flight")
		return nil
	}
	fmt.Printf("Job %s is now %s\n", job.ID, job.Status)
	return nil
}
