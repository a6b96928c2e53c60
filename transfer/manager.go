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

package transfer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Manager creates job records and owns the worker-process lifecycle for
// them. It composes the Store with a Launcher; the choice of launcher
// (detached vs. foreground) is configuration, not inline branching.
type Manager struct {
	store    *Store
	launcher Launcher
}

func NewManager(store *Store, launcher Launcher) *Manager {
	return &Manager{store: store, launcher: launcher}
}

// Store exposes the underlying job store for read paths (status polling,
// listing) that need no manager logic.
func (m *Manager) Store() *Store { return m.store }

// Create persists a new queued job record. The id is generated by the
// store; any id supplied by the caller is discarded.
func (m *Manager) Create(job JobRecord) (*JobRecord, error) {
	job.Status = StatusQueued
	job.Phase = StatusQueued
	job.CancelRequested = false
	job.FilesDone = 0
	job.BytesDone = 0
	job.Error = ""
	job.Errors = nil
	job.Spawn = nil
	return m.store.Create(job)
}

// SpawnWorker launches the worker process for the given job and returns
// its pid. The spawn details are recorded onto the job as a best-effort
// audit trail. A launch failure marks the job as error — it must never be
// left queued forever — and is reported to the caller.
func (m *Manager) SpawnWorker(ctx context.Context, id string) (int, error) {
	if !IsValidID(id) {
		return 0, ErrNotFound
	}
	if err := m.store.EnsureDirs(); err != nil {
		return 0, err
	}

	logPath := m.store.LogPathFor(id)
	pid, launchErr := m.launcher.Launch(ctx, id, logPath)

	if job, err := m.store.Load(id); err == nil {
		job.Spawn = &Spawn{
			Ts:  time.Now().Unix(),
			Pid: pid,
			Exe: m.launcher.Name(),
			Log: logPath,
		}
		if launchErr != nil || pid <= 0 {
			msg := "Worker spawn returned no PID"
			if launchErr != nil {
				msg = launchErr.Error()
			}
			// Only fail the record if the worker has not already moved it
			// along (the foreground launcher runs to completion before
			// reporting back).
			if !job.Terminal() && job.Status == StatusQueued {
				job.Status = StatusError
				job.Phase = StatusError
				job.Error = msg
				ended := time.Now().Unix()
				job.EndedAt = &ended
			}
		}
		if err := m.store.Save(id, job); err != nil {
			log.Warnf("Failed to record spawn details for job %s: %v", id, err)
		}
	}

	if launchErr != nil {
		return 0, errors.Wrapf(launchErr, "failed to spawn worker for job %s", id)
	}
	if pid <= 0 {
		return 0, errors.Errorf("worker spawn for job %s returned no pid", id)
	}
	return pid, nil
}
