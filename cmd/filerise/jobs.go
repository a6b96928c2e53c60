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
	"github.com/filerise/filerise/config"
)

var (
	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage transfer jobs",
	}

	jobsUser string
)

func init() {
	jobsCmd.PersistentFlags().StringVar(&jobsUser, "user", "", "Username to act as")
	rootCmd.AddCommand(jobsCmd)
}

func newAPIClient() *client.Poller {
	baseURL := fmt.Sprintf("http://%s:%d",
		config.GetString("Server.Address"), config.GetInt("Server.Port"))
	poller := client.NewPoller(baseURL)
	poller.UserHeader = jobsUser
	return poller
}
