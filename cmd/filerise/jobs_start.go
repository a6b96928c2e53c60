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

	"github.com/filerise/filerise/client"
)

var (
	jobsStartCmd = &cobra.Command{
		Use:   "start <kind>",
		Short: "Start a transfer job (file_copy, file_move, folder_copy, folder_move)",
		Args:  cobra.ExactArgs(1),
		RunE:  jobsStartMain,
	}

	startSourceFolder string
	startDestFolder   string
	startTargetFolder string
	startFiles        []string
	startSourceID     string
	startDestSourceID string
	startCrossSource  bool
	startWait         bool
)

func init() {
	flags := jobsStartCmd.Flags()
	flags.StringVar(&startSourceFolder, "source-folder", "root", "Folder the items are transferred from")
	flags.StringVar(&startDestFolder, "dest-folder", "root", "Folder the items are transferred to")
	flags.StringVar(&startTargetFolder, "target-folder", "", "Target folder path for folder jobs")
	flags.StringSliceVar(&startFiles, "file", nil, "File to transfer (repeatable)")
	flags.StringVar(&startSourceID, "source", "", "Source backend id")
	flags.StringVar(&startDestSourceID, "dest-source", "", "Destination backend id")
	flags.BoolVar(&startCrossSource, "cross-source", false, "Transfer between two different backends")
	flags.BoolVar(&startWait, "wait", false, "Poll the job until it finishes")
	jobsCmd.AddCommand(jobsStartCmd)
}

func jobsStartMain(cmd *cobra.Command, args []string) error {
	poller := newAPIClient()

	jobID, err := poller.Start(cmd.Context(), client.StartRequest{
		Kind:              args[0],
		SourceID:          startSourceID,
		DestSourceID:      startDestSourceID,
		CrossSource:       startCrossSource,
		SourceFolder:      startSourceFolder,
		DestinationFolder: startDestFolder,
		TargetFolder:      startTargetFolder,
		Files:             startFiles,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Started job %s\n", jobID)

	if !startWait {
		return nil
	}
	job, err := poller.Wait(cmd.Context(), jobID, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Job %s finished: %s\n", job.ID, job.Status)
	if job.Error != "" {
		fmt.Printf("Error: %s\n", job.Error)
	}
	return nil
}
