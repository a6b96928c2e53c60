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

// Package transfer implements the asynchronous transfer job engine: a
// file-backed job store, the job manager that owns worker process
// lifecycle, and the process launchers used to run transfer workers
// outside the request/response cycle.
package transfer

import (
	"math"
)

type (
	// Kind identifies which transfer operation a job performs.
	// Immutable after creation.
	Kind string

	// Status is the coarse job state shared by the manager, the worker,
	// and the polling protocol.
	Status string
)

const (
	KindFileCopy   Kind = "file_copy"
	KindFileMove   Kind = "file_move"
	KindFolderCopy Kind = "folder_copy"
	KindFolderMove Kind = "folder_move"
)

const (
	StatusQueued          Status = "queued"
	StatusRunning         Status = "running"
	StatusCancelRequested Status = "cancel_requested"
	StatusCancelled       Status = "cancelled"
	StatusDone            Status = "done"
	StatusError           Status = "error"
)

// IsValid reports whether the kind is one of the four supported transfer
// operations.
func (k Kind) IsValid() bool {
	switch k {
	case KindFileCopy, KindFileMove, KindFolderCopy, KindFolderMove:
		return true
	}
	return false
}

// IsMove reports whether the kind deletes the source after transfer.
func (k Kind) IsMove() bool {
	return k == KindFileMove || k == KindFolderMove
}

// IsFileKind reports whether the job transfers an explicit list of files
// (as opposed to a single folder-level operation).
func (k Kind) IsFileKind() bool {
	return k == KindFileCopy || k == KindFileMove
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// Spawn is the best-effort audit trail the manager records when it
// launches a worker process for a job.
type Spawn struct {
	Ts  int64  `json:"ts"`
	Pid int    `json:"pid"`
	Exe string `json:"exe"`
	Log string `json:"log"`
}

// JobRecord is the persisted description and live state of one transfer
// request. It is created by the Manager, then mutated exclusively by the
// worker process — with the sole exception of cancelRequested, which any
// authorized writer may set via Store.RequestCancel.
type JobRecord struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	User   string `json:"user"`
	Status Status `json:"status"`
	Phase  Status `json:"phase"`

	SourceID     string `json:"sourceId,omitempty"`
	DestSourceID string `json:"destSourceId,omitempty"`
	CrossSource  bool   `json:"crossSource,omitempty"`

	SourceFolder      string   `json:"sourceFolder,omitempty"`
	DestinationFolder string   `json:"destinationFolder,omitempty"`
	TargetFolder      string   `json:"targetFolder,omitempty"`
	Files             []string `json:"files,omitempty"`

	SelectedFiles int   `json:"selectedFiles"`
	SelectedBytes int64 `json:"selectedBytes"`
	FilesDone     int   `json:"filesDone"`
	BytesDone     int64 `json:"bytesDone"`

	// Pct is nil when progress is indeterminate (no byte or file totals
	// are known); otherwise a value in [0, 100].
	Pct          *int   `json:"pct"`
	Current      string `json:"current,omitempty"`
	CurrentIndex int    `json:"currentIndex,omitempty"`

	CancelRequested bool `json:"cancelRequested"`

	Error  string   `json:"error,omitempty"`
	Errors []string `json:"errors,omitempty"`

	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	StartedAt *int64 `json:"startedAt"`
	EndedAt   *int64 `json:"endedAt"`

	Spawn *Spawn `json:"spawn,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *JobRecord) Terminal() bool {
	return j.Status.Terminal()
}

// RecomputePct derives the progress percentage from byte counters when a
// byte total is known, falling back to file counters, and clamps the
// result to [0, 100]. With no totals at all the percentage is
// indeterminate and Pct becomes nil.
func (j *JobRecord) RecomputePct() {
	var pct int
	switch {
	case j.SelectedBytes > 0:
		pct = int(math.Round(float64(j.BytesDone) / float64(j.SelectedBytes) * 100))
	case j.SelectedFiles > 0:
		pct = int(math.Round(float64(j.FilesDone) / float64(j.SelectedFiles) * 100))
	default:
		j.Pct = nil
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	j.Pct = &pct
}

// SetPct assigns an explicit percentage value.
func (j *JobRecord) SetPct(pct int) {
	j.Pct = &pct
}
