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

// Package worker executes one transfer job to a terminal state. It runs
// either in its own detached process (the default) or inline in the
// server process; either way, the job record on disk is the only channel
// back to observers.
package worker

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/audit"
	"github.com/filerise/filerise/metrics"
	"github.com/filerise/filerise/sources"
	"github.com/filerise/filerise/storage"
	"github.com/filerise/filerise/transfer"
)

const maxJoinedErrors = 10

// Worker drives one job through its per-item loop. All collaborators
// are injected; the zero values of Retention and StaleAge fall back to
// the store default and "disabled" respectively.
type Worker struct {
	Store    *transfer.Store
	Oracle   acl.Oracle
	Registry sources.Registry
	Storage  storage.Adapter
	Audit    audit.Sink

	// Token overrides the store-backed cancellation token; tests use this
	// to cancel without a second process.
	Token transfer.CancellationToken

	Retention time.Duration
	StaleAge  time.Duration
}

// Run executes the job to a terminal state. The returned error reports
// infrastructure failures only (lock held, store unreachable); a job
// that finishes in the error state is a successful run, including a run
// that panicked — the failure lives on the record, so the worker process
// still exits clean.
func (w *Worker) Run(ctx context.Context, jobID string) error {
	release, lockErr := w.Store.AcquireWorkerLock(jobID)
	if lockErr != nil {
		return lockErr
	}
	defer release()

	// Opportunistic housekeeping, mirroring the worker-start cleanup on
	// every launch.
	retention := w.Retention
	if retention <= 0 {
		retention = transfer.DefaultRetention
	}
	if err := w.Store.CleanupOld(retention); err != nil {
		log.Warnf("Job cleanup failed: %v", err)
	}
	if err := w.Store.MarkStale(w.StaleAge); err != nil {
		log.Warnf("Stale job sweep failed: %v", err)
	}

	job, loadErr := w.Store.Load(jobID)
	if loadErr != nil {
		return loadErr
	}
	if job.Terminal() {
		log.Infof("Job %s already in terminal state %s; nothing to do", job.ID, job.Status)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Worker for job %s panicked: %v", jobID, r)
			w.fail(job, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	if !job.Kind.IsValid() {
		w.fail(job, "Unsupported transfer job type.")
		return nil
	}
	if w.cancelled(job) {
		w.markCancelled(job)
		return nil
	}

	user := strings.TrimSpace(job.User)
	if user == "" {
		w.fail(job, "Missing transfer job user.")
		return nil
	}

	perms, permErr := w.Oracle.LoadPermissions(ctx, user)
	if permErr != nil {
		w.fail(job, "Failed to load permissions: "+permErr.Error())
		return nil
	}
	if msg := accountGate(perms); msg != "" {
		w.fail(job, msg)
		return nil
	}

	w.setRunning(job)
	metrics.TransferJobsStarted.WithLabelValues(string(job.Kind)).Inc()
	metrics.TransferJobsRunning.Inc()
	defer metrics.TransferJobsRunning.Dec()

	if job.Kind.IsFileKind() {
		w.runFileJob(ctx, job, user, perms)
	} else {
		w.runFolderJob(ctx, job, user, perms)
	}
	return nil
}

// accountGate applies the account-level flags that block every transfer
// kind. Admins bypass both.
func accountGate(perms acl.Permissions) string {
	if perms.Admin {
		return ""
	}
	if perms.ReadOnly {
		return "Account is read-only."
	}
	if perms.DisableUpload {
		return "Uploads are disabled for your account."
	}
	return ""
}

func (w *Worker) runFileJob(ctx context.Context, job *transfer.JobRecord, user string, perms acl.Permissions) {
	sourceFolder := acl.NormalizeFolder(job.SourceFolder)
	destinationFolder := acl.NormalizeFolder(job.DestinationFolder)
	sourceID := job.SourceID
	destSourceID := job.DestSourceID
	if destSourceID == "" {
		destSourceID = sourceID
	}
	isMove := job.Kind.IsMove()

	if job.CrossSource && (strings.TrimSpace(sourceID) == "" || strings.TrimSpace(destSourceID) == "") {
		w.fail(job, "Invalid source.")
		return
	}
	if msg := validateSourceStates(w.Registry, sourceID, destSourceID, perms.Admin, isMove); msg != "" {
		w.fail(job, msg)
		return
	}

	files := normalizeFileList(job.Files)
	if len(files) == 0 {
		w.fail(job, "No files selected.")
		return
	}

	srcCtx, err := w.Registry.Context(sourceID)
	if err != nil {
		w.fail(job, "Invalid source.")
		return
	}
	dstCtx, err := w.Registry.Context(destSourceID)
	if err != nil {
		w.fail(job, "Invalid source.")
		return
	}

	if msg := validateFileAccess(perms, user, job.Kind, sourceFolder, destinationFolder, files, srcCtx); msg != "" {
		w.fail(job, msg)
		return
	}

	if len(files) > job.SelectedFiles {
		job.SelectedFiles = len(files)
	}
	job.RecomputePct()
	w.persist(job)

	for idx, name := range files {
		if w.cancelled(job) {
			w.markCancelled(job)
			return
		}

		// Re-check account flags, source states, and ACLs each item so
		// mid-job permission changes fail closed.
		iterPerms, err := w.Oracle.LoadPermissions(ctx, user)
		if err != nil {
			w.fail(job, "Failed to load permissions: "+err.Error())
			return
		}
		if msg := accountGate(iterPerms); msg != "" {
			w.fail(job, msg)
			return
		}
		if msg := validateSourceStates(w.Registry, sourceID, destSourceID, iterPerms.Admin, isMove); msg != "" {
			w.fail(job, msg)
			return
		}
		if msg := validateFileAccess(iterPerms, user, job.Kind, sourceFolder, destinationFolder, []string{name}, srcCtx); msg != "" {
			w.fail(job, msg)
			return
		}

		job.Phase = transfer.StatusRunning
		job.Current = itemDisplayPath(sourceFolder, name)

		var size int64
		if info, err := w.Storage.Stat(ctx, srcCtx, sourceFolder, name); err == nil && info.Type == "file" {
			size = info.Size
		}

		var opErr error
		switch {
		case job.Kind == transfer.KindFileCopy && job.CrossSource:
			opErr = w.Storage.CopyFilesAcross(ctx, srcCtx, dstCtx, sourceFolder, destinationFolder, []string{name})
		case job.Kind == transfer.KindFileCopy:
			opErr = w.Storage.CopyFiles(ctx, srcCtx, sourceFolder, destinationFolder, []string{name})
		case job.CrossSource:
			opErr = w.Storage.MoveFilesAcross(ctx, srcCtx, dstCtx, sourceFolder, destinationFolder, []string{name})
		default:
			opErr = w.Storage.MoveFiles(ctx, srcCtx, sourceFolder, destinationFolder, []string{name})
		}

		if opErr != nil {
			job.Errors = append(job.Errors, opErr.Error())
		} else {
			job.FilesDone++
			if size > 0 {
				job.BytesDone += size
				metrics.TransferBytes.WithLabelValues(string(job.Kind)).Add(float64(size))
			}
			event := "file.copy"
			if isMove {
				event = "file.move"
			}
			w.Audit.Log(event, map[string]any{
				"user":   user,
				"folder": destinationFolder,
				"from":   itemDisplayPath(sourceFolder, name),
				"to":     itemDisplayPath(destinationFolder, name),
			})
		}

		job.RecomputePct()
		job.CurrentIndex = idx + 1
		w.persist(job)
	}

	if w.cancelled(job) {
		w.markCancelled(job)
		return
	}

	if len(job.Errors) > 0 {
		joined := job.Errors
		if len(joined) > maxJoinedErrors {
			joined = joined[:maxJoinedErrors]
		}
		w.fail(job, strings.Join(joined, "; "))
		return
	}

	job.Status = transfer.StatusDone
	job.Phase = transfer.StatusDone
	job.Error = ""
	job.SetPct(100)
	job.Current = ""
	ended := time.Now().Unix()
	job.EndedAt = &ended
	w.persist(job)
	metrics.TransferJobsCompleted.WithLabelValues(string(job.Kind)).Inc()
}

func (w *Worker) runFolderJob(ctx context.Context, job *transfer.JobRecord, user string, perms acl.Permissions) {
	sourceFolder := acl.NormalizeFolder(job.SourceFolder)
	targetFolder := acl.NormalizeFolder(job.TargetFolder)
	destinationFolder := job.DestinationFolder
	if strings.TrimSpace(destinationFolder) == "" {
		destinationFolder = parentOf(targetFolder)
	}
	destinationFolder = acl.NormalizeFolder(destinationFolder)
	sourceID := job.SourceID
	destSourceID := job.DestSourceID
	if destSourceID == "" {
		destSourceID = sourceID
	}
	isMove := job.Kind.IsMove()

	if job.CrossSource && (strings.TrimSpace(sourceID) == "" || strings.TrimSpace(destSourceID) == "") {
		w.fail(job, "Invalid source.")
		return
	}
	if msg := validateSourceStates(w.Registry, sourceID, destSourceID, perms.Admin, isMove); msg != "" {
		w.fail(job, msg)
		return
	}

	srcCtx, err := w.Registry.Context(sourceID)
	if err != nil {
		w.fail(job, "Invalid source.")
		return
	}
	dstCtx, err := w.Registry.Context(destSourceID)
	if err != nil {
		w.fail(job, "Invalid source.")
		return
	}

	if msg := validateFolderAccess(perms, job.Kind, sourceFolder, destinationFolder, job.CrossSource); msg != "" {
		w.fail(job, msg)
		return
	}

	job.Current = sourceFolder
	job.Phase = transfer.StatusRunning
	w.persist(job)

	if w.cancelled(job) {
		w.markCancelled(job)
		return
	}

	var opErr error
	switch {
	case job.Kind == transfer.KindFolderCopy && job.CrossSource:
		opErr = w.Storage.CopyFolderAcross(ctx, srcCtx, dstCtx, sourceFolder, targetFolder)
	case job.Kind == transfer.KindFolderCopy:
		opErr = w.Storage.CopyFolder(ctx, srcCtx, sourceFolder, targetFolder)
	case job.CrossSource:
		opErr = w.Storage.MoveFolderAcross(ctx, srcCtx, dstCtx, sourceFolder, targetFolder)
	default:
		opErr = w.Storage.RenameFolder(ctx, srcCtx, sourceFolder, targetFolder)
	}

	if w.cancelled(job) {
		w.markCancelled(job)
		return
	}

	if opErr != nil {
		job.Errors = append(job.Errors, opErr.Error())
		w.fail(job, opErr.Error())
		return
	}

	job.Status = transfer.StatusDone
	job.Phase = transfer.StatusDone
	job.Error = ""
	if job.SelectedFiles > job.FilesDone {
		job.FilesDone = job.SelectedFiles
	} else if job.FilesDone == 0 {
		job.FilesDone = 1
	}
	if job.SelectedBytes > job.BytesDone {
		job.BytesDone = job.SelectedBytes
	}
	job.SetPct(100)
	job.Current = ""
	ended := time.Now().Unix()
	job.EndedAt = &ended
	w.persist(job)

	event := "folder.copy"
	if isMove {
		event = "folder.move"
	}
	w.Audit.Log(event, map[string]any{
		"user":   user,
		"folder": targetFolder,
		"from":   sourceFolder,
		"to":     targetFolder,
	})
	metrics.TransferJobsCompleted.WithLabelValues(string(job.Kind)).Inc()
}

func (w *Worker) cancelled(job *transfer.JobRecord) bool {
	if w.Token != nil {
		if w.Token.Cancelled() {
			return true
		}
	}
	return w.Store.CancellationToken(job.ID).Cancelled()
}

func (w *Worker) setRunning(job *transfer.JobRecord) {
	job.Status = transfer.StatusRunning
	job.Phase = transfer.StatusRunning
	if job.StartedAt == nil {
		started := time.Now().Unix()
		job.StartedAt = &started
	}
	if job.Errors == nil {
		job.Errors = []string{}
	}
	w.persist(job)
}

func (w *Worker) markCancelled(job *transfer.JobRecord) {
	job.Status = transfer.StatusCancelled
	job.Phase = transfer.StatusCancelled
	job.Current = ""
	ended := time.Now().Unix()
	job.EndedAt = &ended
	w.persist(job)
	metrics.TransferJobsCancelled.WithLabelValues(string(job.Kind)).Inc()
	log.Infof("Job %s cancelled after %d item(s)", job.ID, job.FilesDone)
}

func (w *Worker) fail(job *transfer.JobRecord, msg string) {
	job.Status = transfer.StatusError
	job.Phase = transfer.StatusError
	job.Error = msg
	job.Current = ""
	ended := time.Now().Unix()
	job.EndedAt = &ended
	w.persist(job)
	metrics.TransferJobsFailed.WithLabelValues(string(job.Kind)).Inc()
	log.Warnf("Job %s failed: %s", job.ID, msg)
}

func (w *Worker) persist(job *transfer.JobRecord) {
	if err := w.Store.Save(job.ID, job); err != nil {
		log.Errorf("Failed to persist job %s: %v", job.ID, err)
	}
}

// normalizeFileList strips paths down to base names, drops empties, and
// deduplicates while preserving order.
func normalizeFileList(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := filepath.Base(strings.TrimSpace(raw))
		if name == "" || name == "." || name == string(filepath.Separator) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func itemDisplayPath(folder, name string) string {
	if folder == "root" {
		return name
	}
	return folder + "/" + name
}

func parentOf(folder string) string {
	f := acl.NormalizeFolder(folder)
	if f == "root" {
		return "root"
	}
	p := path.Dir(f)
	if p == "." || p == "/" {
		return "root"
	}
	return p
}
