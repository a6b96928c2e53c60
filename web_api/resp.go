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

package web_api

import (
	"github.com/filerise/filerise/transfer"
)

// Every endpoint answers with an ok flag so clients can branch without
// inspecting HTTP status codes; error payloads carry a human-readable
// message.

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type jobIDResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"jobId"`
}

type jobResponse struct {
	OK  bool                `json:"ok"`
	Job *transfer.JobRecord `json:"job"`
}

type jobListResponse struct {
	OK   bool                  `json:"ok"`
	Jobs []*transfer.JobRecord `json:"jobs"`
}

func errResp(msg string) errorResponse {
	return errorResponse{OK: false, Error: msg}
}

// startJobRequest is the POST body for creating a transfer job.
type startJobRequest struct {
	Kind              string   `json:"kind"`
	SourceID          string   `json:"sourceId"`
	DestSourceID      string   `json:"destSourceId"`
	CrossSource       bool     `json:"crossSource"`
	SourceFolder      string   `json:"sourceFolder"`
	DestinationFolder string   `json:"destinationFolder"`
	TargetFolder      string   `json:"targetFolder"`
	Files             []string `json:"files"`
}

type cancelJobRequest struct {
	JobID string `json:"jobId"`
}
