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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filerise/filerise/client"
)

var (
	jobsStatusCmd = &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a transfer job",
		Args:  cobra.ExactArgs(1),
		RunE:  jobsStatusMain,
	}

	jobsStatusWatch bool
)

func init() {
	jobsStatusCmd.Flags().BoolVarP(&jobsStatusWatch, "watch", "w", false, "Poll until the job reaches a terminal state")
	jobsCmd.AddCommand(jobsStatusCmd)
}

func jobsStatusMain(cmd *cobra.Command, args []string) error {
	poller := newAPIClient()
	jobID := args[0]

	if jobsStatusWatch {
		job, err := poller.Wait(cmd.Context(), jobID, func(p client.Progress) {
			pct := "?"
			if p.Job.Pct != nil {
				pct = fmt.Sprintf("%d%%", *p.Job.Pct)
			} else if p.EstimatedPct != nil {
				pct = fmt.Sprintf("~%d%%", *p.EstimatedPct)
			}
			fmt.Printf("%s %s %d/%d files %s\n",
				p.Job.Status, pct, p.Job.FilesDone, p.Job.SelectedFiles, p.Job.Current)
		})
		if err != nil {
			return err
		}
		fmt.Printf("Job %s finished: %s\n", job.ID, job.Status)
		if job.Error != "" {
			fmt.Printf("Error: %s\n", job.Error)
		}
		return nil
	}

	job, err := poller.Status(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
