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
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	jobsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recent transfer jobs",
		RunE:  jobsListMain,
	}

	jobsListLimit int
)

func init() {
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 50, "Maximum number of jobs to list")
	jobsCmd.AddCommand(jobsListCmd)
}

func jobsListMain(cmd *cobra.Command, args []string) error {
	jobs, err := newAPIClient().List(cmd.Context(), jobsListLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tUSER\tSTATUS\tPCT\tCREATED")
	for _, job := range jobs {
		pct := "-"
		if job.Pct != nil {
			pct = fmt.Sprintf("%d%%", *job.Pct)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.Kind, job.User, job.Status, pct,
			time.Unix(job.CreatedAt, 0).Format(time.RFC3339))
	}
	return w.Flush()
}
