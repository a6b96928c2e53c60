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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	jobsSubdir = ".jobs"
	logsSubdir = ".logs"

	// DefaultRetention is the age past which job records and worker logs
	// are garbage-collected.
	DefaultRetention = 48 * time.Hour

	maxListLimit = 200
)

var (
	// ErrNotFound is returned when a job record does not exist. Invalid
	// ids fail the same way so that a crafted id is indistinguishable
	// from a missing one.
	ErrNotFound = errors.New("transfer job not found")

	// ErrTerminal is returned by Save when the on-disk record already
	// reached a terminal state and the incoming record would regress it.
	ErrTerminal = errors.New("transfer job already in a terminal state")

	// Job ids are random hex and the only externally supplied value that
	// ever becomes part of a file path. Anything that does not match this
	// pattern is rejected before any filesystem access.
	jobIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{16,64}$`)
)

// Store provides durable, crash-tolerant persistence for job records,
// keyed by job id, under a single root directory.
type Store struct {
	root string
}

// NewStore returns a store rooted at the given directory. EnsureDirs must
// succeed before any other operation mutates the filesystem.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string    { return s.root }
func (s *Store) JobsDir() string { return filepath.Join(s.root, jobsSubdir) }
func (s *Store) LogsDir() string { return filepath.Join(s.root, logsSubdir) }

// EnsureDirs idempotently creates the job-record and worker-log
// directories with owner-only permissions.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.root, s.JobsDir(), s.LogsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Wrapf(err, "failed to create job store directory %s", dir)
		}
		if err := os.Chmod(dir, 0700); err != nil {
			return errors.Wrapf(err, "failed to restrict permissions on %s", dir)
		}
	}
	return nil
}

// IsValidID reports whether the id is a well-formed job id. Every
// operation that turns an id into a path checks this first and fails
// closed on mismatch.
func IsValidID(id string) bool {
	return jobIDPattern.MatchString(id)
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.JobsDir(), strings.ToLower(id)+".json")
}

func (s *Store) lockPathFor(id string) string {
	return filepath.Join(s.JobsDir(), strings.ToLower(id)+".lock")
}

// LogPathFor returns the worker log path for a job id. The caller is
// responsible for id validation.
func (s *Store) LogPathFor(id string) string {
	return filepath.Join(s.LogsDir(), "WORKER-"+strings.ToLower(id)+".log")
}

// Load returns the record for the given id, or ErrNotFound if the id is
// malformed, the file is absent, or the contents are unparsable.
func (s *Store) Load(id string) (*JobRecord, error) {
	if !IsValidID(id) {
		return nil, ErrNotFound
	}
	raw, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, ErrNotFound
	}
	job := new(JobRecord)
	if err := json.Unmarshal(raw, job); err != nil {
		log.Warnf("Job record %s is unparsable: %v", strings.ToLower(id), err)
		return nil, ErrNotFound
	}
	return job, nil
}

// Save atomically persists the record, stamping updatedAt. Readers poll
// the record file without locks, so the new content is written to a
// temporary file in the same directory and renamed over the target —
// a half-written record is never observable. Terminal states are sticky:
// once the on-disk record is done, error, or cancelled, a save that would
// regress it to a non-terminal status is refused. The stickiness check is
// load-then-write, not an atomic compare-and-swap: it relies on the
// single-writer model, where only the lock-holding worker mutates a live
// record.
func (s *Store) Save(id string, job *JobRecord) error {
	if !IsValidID(id) {
		return errors.New("invalid job id")
	}
	if prior, err := s.Load(id); err == nil && prior.Terminal() && !job.Terminal() {
		return ErrTerminal
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().Unix()
	return s.writeRecord(s.pathFor(id), job)
}

func (s *Store) writeRecord(path string, job *JobRecord) error {
	raw, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode job record")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".job-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary job file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to restrict job file permissions")
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write job record")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to flush job record")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "failed to commit job record")
	}
	return nil
}

// Create generates a fresh random id, merges the caller-supplied fields
// over the queued-state defaults, and persists the new record. The id is
// never derived from caller input.
func (s *Store) Create(job JobRecord) (*JobRecord, error) {
	if err := s.EnsureDirs(); err != nil {
		return nil, err
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, errors.Wrap(err, "failed to generate job id")
	}
	now := time.Now().Unix()

	job.ID = hex.EncodeToString(idBytes)
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.Phase == "" {
		job.Phase = job.Status
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	job.StartedAt = nil
	job.EndedAt = nil
	if job.Errors == nil {
		job.Errors = []string{}
	}
	job.RecomputePct()

	raw, err := json.MarshalIndent(&job, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode job record")
	}
	// O_EXCL guards the (astronomically unlikely) id collision.
	f, err := os.OpenFile(s.pathFor(job.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transfer job")
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to write transfer job")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to flush transfer job")
	}
	return &job, nil
}

// RequestCancel sets cancelRequested on the record and, if the job has
// not yet started finishing, moves it to the cancel_requested state. This
// is fire-and-forget signalling: the worker observes the flag at its next
// per-item checkpoint. Returns ErrNotFound for unknown ids.
func (s *Store) RequestCancel(id string) (*JobRecord, error) {
	job, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	job.CancelRequested = true
	if job.Status == StatusQueued || job.Status == StatusRunning {
		job.Status = StatusCancelRequested
		job.Phase = StatusCancelRequested
	}
	if err := s.Save(id, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListForUser enumerates job records newest-first by file modification
// time, filtered to the records owned by user unless isAdmin. Records
// with no owner are visible to every caller. The limit is clamped to
// [1, 200] to bound I/O.
func (s *Store) ListForUser(user string, isAdmin bool, limit int) ([]*JobRecord, error) {
	if err := s.EnsureDirs(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	entries, err := os.ReadDir(s.JobsDir())
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate job records")
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	candidates := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(s.JobsDir(), entry.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	out := make([]*JobRecord, 0, limit)
	for _, c := range candidates {
		if len(out) >= limit {
			break
		}
		raw, err := os.ReadFile(c.path)
		if err != nil {
			continue
		}
		job := new(JobRecord)
		if err := json.Unmarshal(raw, job); err != nil {
			continue
		}
		if !isAdmin && job.User != "" && !strings.EqualFold(job.User, user) {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// CleanupOld deletes job records, lock files, and worker logs whose
// modification time exceeds maxAge. It is run opportunistically (at
// worker start and from the serve retention sweeper) rather than on a
// dedicated scheduler.
func (s *Store) CleanupOld(maxAge time.Duration) error {
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, spec := range []struct {
		dir, prefix, suffix string
	}{
		{s.JobsDir(), "", ".json"},
		{s.JobsDir(), "", ".lock"},
		{s.LogsDir(), "WORKER-", ".log"},
	} {
		entries, err := os.ReadDir(spec.dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, spec.prefix) || !strings.HasSuffix(name, spec.suffix) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(spec.dir, name)
				if err := os.Remove(path); err != nil {
					log.Warnf("Failed to remove expired job artifact %s: %v", path, err)
				}
			}
		}
	}
	return nil
}

// MarkStale turns running jobs whose updatedAt is older than the given
// threshold into terminal error records. The worker persists progress per
// item, so updatedAt doubles as a liveness heartbeat; a record stuck in
// running past the threshold means the worker process died without
// writing a terminal state. A threshold of zero disables the sweep.
func (s *Store) MarkStale(threshold time.Duration) error {
	if threshold <= 0 {
		return nil
	}
	if err := s.EnsureDirs(); err != nil {
		return err
	}
	// Walk the jobs directory directly: the stale records are by
	// definition the oldest, so a bounded newest-first listing could miss
	// them on a large store.
	entries, err := os.ReadDir(s.JobsDir())
	if err != nil {
		return errors.Wrap(err, "failed to enumerate job records")
	}
	cutoff := time.Now().Add(-threshold).Unix()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.JobsDir(), entry.Name()))
		if err != nil {
			continue
		}
		job := new(JobRecord)
		if err := json.Unmarshal(raw, job); err != nil {
			continue
		}
		if job.Status != StatusRunning && job.Status != StatusCancelRequested {
			continue
		}
		if job.UpdatedAt >= cutoff {
			continue
		}
		job.Status = StatusError
		job.Phase = StatusError
		job.Error = fmt.Sprintf("Worker presumed dead: no progress since %s.",
			time.Unix(job.UpdatedAt, 0).UTC().Format(time.RFC3339))
		ended := time.Now().Unix()
		job.EndedAt = &ended
		if err := s.Save(job.ID, job); err != nil {
			log.Warnf("Failed to mark stale job %s: %v", job.ID, err)
		} else {
			log.Warnf("Marked stale job %s as error", job.ID)
		}
	}
	return nil
}

// AcquireWorkerLock takes the per-job exclusive lock that guarantees at
// most one worker process runs a given job. The returned release function
// must be called when the worker exits.
func (s *Store) AcquireWorkerLock(id string) (func(), error) {
	if !IsValidID(id) {
		return nil, errors.New("invalid job id")
	}
	path := s.lockPathFor(id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "another worker holds the lock for job %s", strings.ToLower(id))
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to release worker lock %s: %v", path, err)
		}
	}, nil
}
