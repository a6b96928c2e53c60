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

package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/sources"
	"github.com/filerise/filerise/storage"
	"github.com/filerise/filerise/transfer"
)

// recordingSink captures audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Log(event string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type testEnv struct {
	store      *transfer.Store
	oracle     *acl.StaticOracle
	registry   sources.Registry
	uploadRoot string
	audit      *recordingSink
	worker     *Worker
}

func fullGrant() acl.Grant {
	return acl.Grant{Read: true, ReadOwn: true, Write: true, Create: true, Move: true, Copy: true, Delete: true, Manage: true, Owner: true}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	uploadRoot := t.TempDir()
	env := &testEnv{
		store:      transfer.NewStore(t.TempDir()),
		uploadRoot: uploadRoot,
		audit:      &recordingSink{},
		oracle: acl.NewStaticOracle(map[string]acl.Permissions{
			"alice": {Folders: map[string]acl.Grant{
				"in":  fullGrant(),
				"out": fullGrant(),
			}},
		}),
		registry: &sources.StaticRegistry{
			DefaultCtx: sources.Context{Root: uploadRoot, MetaRoot: t.TempDir()},
		},
	}
	require.NoError(t, env.store.EnsureDirs())
	env.worker = &Worker{
		Store:    env.store,
		Oracle:   env.oracle,
		Registry: env.registry,
		Storage:  storage.NewPosix(),
		Audit:    env.audit,
	}
	return env
}

func (e *testEnv) seed(t *testing.T, folder, name, content string) {
	t.Helper()
	dir := filepath.Join(e.uploadRoot, folder)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func (e *testEnv) createJob(t *testing.T, job transfer.JobRecord) string {
	t.Helper()
	created, err := e.store.Create(job)
	require.NoError(t, err)
	return created.ID
}

func (e *testEnv) run(t *testing.T, id string) *transfer.JobRecord {
	t.Helper()
	require.NoError(t, e.worker.Run(context.Background(), id))
	job, err := e.store.Load(id)
	require.NoError(t, err)
	return job
}

func TestWorkerUnsupportedKind(t *testing.T) {
	env := newTestEnv(t)
	id := env.createJob(t, transfer.JobRecord{Kind: "file_rename", User: "alice"})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Unsupported transfer job type.", job.Error)
	assert.NotNil(t, job.EndedAt)
}

func TestWorkerMissingUser(t *testing.T) {
	env := newTestEnv(t)
	id := env.createJob(t, transfer.JobRecord{Kind: transfer.KindFileCopy, Files: []string{"a.txt"}})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Missing transfer job user.", job.Error)
}

func TestWorkerReadOnlyAccount(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.Set("alice", acl.Permissions{ReadOnly: true})
	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt"},
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Account is read-only.", job.Error)
}

func TestWorkerUploadsDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.Set("alice", acl.Permissions{DisableUpload: true})
	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt"},
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Uploads are disabled for your account.", job.Error)
}

func TestWorkerNoFilesSelected(t *testing.T) {
	env := newTestEnv(t)
	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"", "  "},
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "No files selected.", job.Error)
}

func TestWorkerFileCopyCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "a.txt", "alpha")
	env.seed(t, "in", "b.txt", "beta-longer")

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt", "b.txt"}, SelectedFiles: 2, SelectedBytes: 16,
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusDone, job.Status)
	assert.Equal(t, 2, job.FilesDone)
	assert.EqualValues(t, 16, job.BytesDone)
	require.NotNil(t, job.Pct)
	assert.Equal(t, 100, *job.Pct)
	assert.Empty(t, job.Error)
	assert.Empty(t, job.Current)
	assert.Equal(t, 2, job.CurrentIndex)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.EndedAt)

	assert.FileExists(t, filepath.Join(env.uploadRoot, "out", "a.txt"))
	assert.FileExists(t, filepath.Join(env.uploadRoot, "in", "a.txt"))
	assert.Equal(t, []string{"file.copy", "file.copy"}, env.audit.Events())
}

func TestWorkerFileMoveRemovesSource(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "a.txt", "alpha")

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileMove, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt"}, SelectedFiles: 1,
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusDone, job.Status)
	assert.NoFileExists(t, filepath.Join(env.uploadRoot, "in", "a.txt"))
	assert.FileExists(t, filepath.Join(env.uploadRoot, "out", "a.txt"))
	assert.Equal(t, []string{"file.move"}, env.audit.Events())
}

// revokingAdapter revokes the user's permissions after n successful
// copies, simulating an administrator acting mid-job.
type revokingAdapter struct {
	storage.Adapter
	oracle *acl.StaticOracle
	after  int
	count  int
}

func (a *revokingAdapter) CopyFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error {
	err := a.Adapter.CopyFiles(ctx, src, srcFolder, dstFolder, names)
	a.count++
	if a.count == a.after {
		a.oracle.Set("alice", acl.Permissions{})
	}
	return err
}

func TestWorkerFailsClosedOnMidJobRevocation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "a.txt", "alpha")
	env.seed(t, "in", "b.txt", "beta")
	env.seed(t, "in", "c.txt", "gamma")
	env.worker.Storage = &revokingAdapter{Adapter: storage.NewPosix(), oracle: env.oracle, after: 1}

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt", "b.txt", "c.txt"}, SelectedFiles: 3,
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Forbidden: no read access to source", job.Error)
	assert.Equal(t, 1, job.FilesDone)
	assert.Equal(t, 1, job.CurrentIndex)

	// The first item landed before the revocation; the rest must not.
	assert.FileExists(t, filepath.Join(env.uploadRoot, "out", "a.txt"))
	assert.NoFileExists(t, filepath.Join(env.uploadRoot, "out", "b.txt"))
	assert.NoFileExists(t, filepath.Join(env.uploadRoot, "out", "c.txt"))
}

// failingAdapter errors on specific file names while letting the others
// through.
type failingAdapter struct {
	storage.Adapter
	failOn map[string]bool
}

func (a *failingAdapter) CopyFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error {
	for _, name := range names {
		if a.failOn[name] {
			return errors.Errorf("failed to copy %q", name)
		}
	}
	return a.Adapter.CopyFiles(ctx, src, srcFolder, dstFolder, names)
}

func TestWorkerAccumulatesItemErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "a.txt", "alpha")
	env.seed(t, "in", "b.txt", "beta")
	env.seed(t, "in", "c.txt", "gamma")
	env.worker.Storage = &failingAdapter{Adapter: storage.NewPosix(), failOn: map[string]bool{"b.txt": true}}

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt", "b.txt", "c.txt"}, SelectedFiles: 3,
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, 2, job.FilesDone)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Error, "b.txt")
	// The failure did not stop the remaining items.
	assert.FileExists(t, filepath.Join(env.uploadRoot, "out", "c.txt"))
}

func TestWorkerCancellationBetweenItems(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "a.txt", "alpha")
	env.seed(t, "in", "b.txt", "beta")

	token := transfer.NewMemoryToken()
	env.worker.Token = token

	// Cancel as soon as the first item finishes.
	env.worker.Storage = &cancellingAdapter{Adapter: storage.NewPosix(), cancel: token.Cancel}

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt", "b.txt"}, SelectedFiles: 2,
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusCancelled, job.Status)
	assert.Equal(t, 1, job.FilesDone)
	assert.NotNil(t, job.EndedAt)
	assert.NoFileExists(t, filepath.Join(env.uploadRoot, "out", "b.txt"))
}

type cancellingAdapter struct {
	storage.Adapter
	cancel func()
	once   sync.Once
}

func (a *cancellingAdapter) CopyFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error {
	err := a.Adapter.CopyFiles(ctx, src, srcFolder, dstFolder, names)
	a.once.Do(a.cancel)
	return err
}

func TestWorkerCancelRequestedBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt"},
	})
	_, err := env.store.RequestCancel(id)
	require.NoError(t, err)

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusCancelled, job.Status)
	assert.Zero(t, job.FilesDone)
}

func TestWorkerFolderCopy(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "readme.md", "docs")

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFolderCopy, User: "alice", SourceFolder: "in",
		TargetFolder: "out/in-copy", DestinationFolder: "out",
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusDone, job.Status)
	require.NotNil(t, job.Pct)
	assert.Equal(t, 100, *job.Pct)
	assert.GreaterOrEqual(t, job.FilesDone, 1)
	assert.FileExists(t, filepath.Join(env.uploadRoot, "out", "in-copy", "readme.md"))
	assert.DirExists(t, filepath.Join(env.uploadRoot, "in"))
	assert.Equal(t, []string{"folder.copy"}, env.audit.Events())
}

func TestWorkerFolderMoveDestSourceReadOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "readme.md", "docs")
	env.registry = &sources.StaticRegistry{
		DefaultCtx: sources.Context{Root: env.uploadRoot, MetaRoot: t.TempDir()},
		Sources: map[string]sources.Source{
			"primary": {ID: "primary", Enabled: true, Root: env.uploadRoot},
			"archive": {ID: "archive", Enabled: true, ReadOnly: true, Root: t.TempDir()},
		},
	}
	env.worker.Registry = env.registry

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFolderMove, User: "alice", SourceFolder: "in",
		TargetFolder: "in", DestinationFolder: "root",
		SourceID: "primary", DestSourceID: "archive", CrossSource: true,
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Destination source is read-only.", job.Error)
	assert.Zero(t, job.FilesDone)
	// Nothing moved.
	assert.FileExists(t, filepath.Join(env.uploadRoot, "in", "readme.md"))
}

func TestWorkerOwnershipScopedAccount(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "mine.txt", "alpha")
	env.seed(t, "in", "theirs.txt", "beta")

	metaRoot := env.worker.Registry.(*sources.StaticRegistry).DefaultCtx.MetaRoot
	require.NoError(t, os.WriteFile(
		filepath.Join(metaRoot, "in_metadata.json"),
		[]byte(`{"mine.txt": {"uploader": "alice"}, "theirs.txt": {"uploader": "bob"}}`), 0600))

	// Own-items read on the source only; full rights on the destination.
	env.oracle.Set("alice", acl.Permissions{Folders: map[string]acl.Grant{
		"in":  {ReadOwn: true, Delete: true},
		"out": fullGrant(),
	}})

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"theirs.txt"},
	})

	job := env.run(t, id)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Equal(t, "Forbidden: you are not the owner of 'theirs.txt'.", job.Error)

	ownID := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"mine.txt"},
	})
	ownJob := env.run(t, ownID)
	assert.Equal(t, transfer.StatusDone, ownJob.Status)
}

type panickingAdapter struct {
	storage.Adapter
}

func (panickingAdapter) CopyFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error {
	panic("copy exploded")
}

func TestWorkerPanicWritesTerminalRecord(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "in", "a.txt", "alpha")
	env.worker.Storage = panickingAdapter{Adapter: storage.NewPosix()}

	id := env.createJob(t, transfer.JobRecord{
		Kind: transfer.KindFileCopy, User: "alice", SourceFolder: "in", DestinationFolder: "out",
		Files: []string{"a.txt"}, SelectedFiles: 1,
	})

	// The failure is attributed to the record and the run itself reports
	// success, so a detached worker process exits clean.
	require.NoError(t, env.worker.Run(context.Background(), id))

	job, err := env.store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusError, job.Status)
	assert.Contains(t, job.Error, "worker panic")
	assert.NotNil(t, job.EndedAt)
}

func TestWorkerTerminalJobIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	id := env.createJob(t, transfer.JobRecord{Kind: transfer.KindFileCopy, User: "alice", Files: []string{"a.txt"}})
	job, err := env.store.Load(id)
	require.NoError(t, err)
	job.Status = transfer.StatusDone
	job.Phase = transfer.StatusDone
	require.NoError(t, env.store.Save(id, job))

	after := env.run(t, id)
	assert.Equal(t, transfer.StatusDone, after.Status)
	assert.Empty(t, env.audit.Events())
}

func TestWorkerLockHeld(t *testing.T) {
	env := newTestEnv(t)
	id := env.createJob(t, transfer.JobRecord{Kind: transfer.KindFileCopy, User: "alice", Files: []string{"a.txt"}})

	release, err := env.store.AcquireWorkerLock(id)
	require.NoError(t, err)
	defer release()

	err = env.worker.Run(context.Background(), id)
	assert.Error(t, err)

	// The record is untouched by the losing worker.
	job, err := env.store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusQueued, job.Status)
}

func TestNormalizeFileList(t *testing.T) {
	out := normalizeFileList([]string{" a.txt ", "a.txt", "", "../b.txt", "dir/c.txt"})
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, out)
}
