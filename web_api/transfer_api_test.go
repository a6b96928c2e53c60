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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/sources"
	"github.com/filerise/filerise/storage"
	"github.com/filerise/filerise/transfer"
)

type noopLauncher struct{}

func (noopLauncher) Name() string { return "noop" }
func (noopLauncher) Launch(ctx context.Context, jobID, logPath string) (int, error) {
	return 12345, nil
}

type apiEnv struct {
	store  *transfer.Store
	oracle *acl.StaticOracle
	engine *gin.Engine
	root   string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := transfer.NewStore(t.TempDir())
	require.NoError(t, store.EnsureDirs())
	root := t.TempDir()

	oracle := acl.NewStaticOracle(map[string]acl.Permissions{
		"alice": {},
		"root":  {Admin: true},
	})

	api := &API{
		Manager:  transfer.NewManager(store, noopLauncher{}),
		Oracle:   oracle,
		Registry: &sources.StaticRegistry{DefaultCtx: sources.Context{Root: root}},
		Storage:  storage.NewPosix(),
	}

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(UserContextKey, user)
		}
	})
	api.RegisterRoutes(engine)

	return &apiEnv{store: store, oracle: oracle, engine: engine, root: root}
}

func (e *apiEnv) request(t *testing.T, method, path, user, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	parsed := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return rec, parsed
}

func TestStartJobRequiresUser(t *testing.T) {
	env := newAPIEnv(t)
	rec, _ := env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs", "",
		`{"kind": "file_copy", "files": ["a.txt"]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartJobValidation(t *testing.T) {
	env := newAPIEnv(t)

	rec, body := env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs", "alice",
		`{"kind": "file_rename", "files": ["a.txt"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `false`, string(body["ok"]))

	rec, _ = env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs", "alice",
		`{"kind": "file_copy", "files": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs", "alice",
		`{"kind": "folder_copy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartJobComputesSelectionTotals(t *testing.T) {
	env := newAPIEnv(t)
	inDir := filepath.Join(env.root, "in")
	require.NoError(t, os.MkdirAll(inDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.txt"), []byte("12345"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "b.txt"), []byte("1234567890"), 0644))

	rec, body := env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs", "alice",
		`{"kind": "file_copy", "sourceFolder": "in", "destinationFolder": "out", "files": ["a.txt", "b.txt"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var jobID string
	require.NoError(t, json.Unmarshal(body["jobId"], &jobID))
	require.NotEmpty(t, jobID)

	job, err := env.store.Load(jobID)
	require.NoError(t, err)
	assert.Equal(t, "alice", job.User)
	assert.Equal(t, 2, job.SelectedFiles)
	assert.EqualValues(t, 15, job.SelectedBytes)
	require.NotNil(t, job.Spawn)
	assert.Equal(t, 12345, job.Spawn.Pid)
}

func TestJobStatusOwnership(t *testing.T) {
	env := newAPIEnv(t)
	job, err := env.store.Create(transfer.JobRecord{Kind: transfer.KindFileCopy, User: "alice"})
	require.NoError(t, err)

	rec, body := env.request(t, http.MethodGet, "/api/v1.0/transfer/jobs/status?jobId="+job.ID, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got transfer.JobRecord
	require.NoError(t, json.Unmarshal(body["job"], &got))
	assert.Equal(t, job.ID, got.ID)

	// A different user sees the same answer as for an unknown id.
	rec, _ = env.request(t, http.MethodGet, "/api/v1.0/transfer/jobs/status?jobId="+job.ID, "bob", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Admins see everything.
	rec, _ = env.request(t, http.MethodGet, "/api/v1.0/transfer/jobs/status?jobId="+job.ID, "root", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.request(t, http.MethodGet, "/api/v1.0/transfer/jobs/status?jobId=0123456789abcdef0123456789abcdef", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	env := newAPIEnv(t)
	job, err := env.store.Create(transfer.JobRecord{Kind: transfer.KindFileCopy, User: "alice"})
	require.NoError(t, err)

	rec, body := env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs/cancel", "alice",
		`{"jobId": "`+job.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got transfer.JobRecord
	require.NoError(t, json.Unmarshal(body["job"], &got))
	assert.True(t, got.CancelRequested)
	assert.Equal(t, transfer.StatusCancelRequested, got.Status)

	// Foreign jobs cannot be cancelled.
	rec, _ = env.request(t, http.MethodPost, "/api/v1.0/transfer/jobs/cancel", "bob",
		`{"jobId": "`+job.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs(t *testing.T) {
	env := newAPIEnv(t)
	_, err := env.store.Create(transfer.JobRecord{Kind: transfer.KindFileCopy, User: "alice"})
	require.NoError(t, err)
	_, err = env.store.Create(transfer.JobRecord{Kind: transfer.KindFileCopy, User: "bob"})
	require.NoError(t, err)

	rec, body := env.request(t, http.MethodGet, "/api/v1.0/transfer/jobs", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []*transfer.JobRecord
	require.NoError(t, json.Unmarshal(body["jobs"], &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].User)

	rec, body = env.request(t, http.MethodGet, "/api/v1.0/transfer/jobs", "root", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body["jobs"], &jobs))
	assert.Len(t, jobs, 2)
}
