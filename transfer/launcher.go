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
	"os"
	"os/exec"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Launcher starts the worker process for a job id. Implementations use an
// explicit executable path and argument vector — never a shell string.
type Launcher interface {
	Name() string
	// Launch starts the worker for the job, directing its combined
	// stdout/stderr to logPath, and returns the worker's pid.
	Launch(ctx context.Context, jobID string, logPath string) (int, error)
}

// DetachedLauncher runs `<exe> transfer-worker <jobID>` as a detached
// background process in its own session, so the worker survives the
// process that spawned it.
type DetachedLauncher struct {
	// Exe is the worker executable; normally the running binary itself,
	// resolved via os.Executable.
	Exe string
}

func (l DetachedLauncher) Name() string { return "detached" }

func (l DetachedLauncher) Launch(ctx context.Context, jobID string, logPath string) (int, error) {
	exe := l.Exe
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return -1, errors.Wrap(err, "failed to locate worker executable")
		}
	}

	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return -1, errors.Wrap(err, "failed to open worker log file")
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "transfer-worker", jobID)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setDetachAttrs(cmd)

	if err := cmd.Start(); err != nil {
		return -1, errors.Wrap(err, "failed to start worker process")
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		log.Warnf("Failed to release worker process handle for job %s: %v", jobID, err)
	}
	log.Debugf("Launched detached worker pid %d for job %s", pid, jobID)
	return pid, nil
}

// ForegroundLauncher executes the worker logic synchronously inside the
// calling process. This is the documented degraded mode for deployments
// where detached spawning is unavailable: the triggering request blocks
// until the transfer finishes, but the job record and polling protocol
// behave identically.
type ForegroundLauncher struct {
	Run func(ctx context.Context, jobID string) error
}

func (l ForegroundLauncher) Name() string { return "foreground" }

func (l ForegroundLauncher) Launch(ctx context.Context, jobID string, logPath string) (int, error) {
	if l.Run == nil {
		return -1, errors.New("foreground launcher has no worker function")
	}
	log.Warnf("Running transfer worker for job %s in the foreground", jobID)
	if err := l.Run(ctx, jobID); err != nil {
		return -1, errors.Wrap(err, "foreground worker failed")
	}
	return os.Getpid(), nil
}
