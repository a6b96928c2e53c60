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
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/sources"
	"github.com/filerise/filerise/storage"
	"github.com/filerise/filerise/transfer"
)

// UserContextKey is where the authentication layer deposits the caller's
// username in the gin context.
const UserContextKey = "User"

const defaultListLimit = 50

// API serves the transfer job endpoints.
type API struct {
	Manager  *transfer.Manager
	Oracle   acl.Oracle
	Registry sources.Registry
	Storage  storage.Adapter
}

// RegisterRoutes attaches the transfer job endpoints under
// /api/v1.0/transfer. All routes require an authenticated user.
func (a *API) RegisterRoutes(engine *gin.Engine) {
	group := engine.Group("/api/v1.0/transfer", RequireUser)
	group.POST("/jobs", a.startJob)
	group.GET("/jobs", a.listJobs)
	group.GET("/jobs/status", a.jobStatus)
	group.POST("/jobs/cancel", a.cancelJob)
}

// RequireUser rejects requests that carry no authenticated user.
func RequireUser(c *gin.Context) {
	if currentUser(c) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errResp("Authentication required."))
	}
}

func currentUser(c *gin.Context) string {
	if v, ok := c.Get(UserContextKey); ok {
		if user, ok := v.(string); ok {
			return strings.TrimSpace(user)
		}
	}
	return ""
}

func (a *API) startJob(c *gin.Context) {
	var req startJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errResp("Invalid request body: "+err.Error()))
		return
	}

	kind := transfer.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.IsValid() {
		c.JSON(http.StatusBadRequest, errResp("Unsupported transfer job type."))
		return
	}
	if kind.IsFileKind() && len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, errResp("No files selected."))
		return
	}
	if !kind.IsFileKind() && strings.TrimSpace(req.TargetFolder) == "" {
		c.JSON(http.StatusBadRequest, errResp("Missing target folder."))
		return
	}

	user := currentUser(c)
	job := transfer.JobRecord{
		Kind:              kind,
		User:              user,
		SourceID:          strings.TrimSpace(req.SourceID),
		DestSourceID:      strings.TrimSpace(req.DestSourceID),
		CrossSource:       req.CrossSource,
		SourceFolder:      acl.NormalizeFolder(req.SourceFolder),
		DestinationFolder: acl.NormalizeFolder(req.DestinationFolder),
		TargetFolder:      acl.NormalizeFolder(req.TargetFolder),
		Files:             req.Files,
	}

	// Best-effort selection totals so progress can be byte-accurate; a
	// stat failure just leaves the total at zero and progress falls back
	// to file counts.
	if kind.IsFileKind() {
		job.SelectedFiles = len(req.Files)
		if srcCtx, err := a.Registry.Context(job.SourceID); err == nil {
			for _, name := range req.Files {
				if info, err := a.Storage.Stat(c.Request.Context(), srcCtx, job.SourceFolder, name); err == nil && info.Type == "file" {
					job.SelectedBytes += info.Size
				}
			}
		}
	}

	created, err := a.Manager.Create(job)
	if err != nil {
		log.Errorf("Failed to create transfer job: %v", err)
		c.JSON(http.StatusInternalServerError, errResp("Failed to create transfer job."))
		return
	}

	// The spawn outlives the request; failures are recorded onto the job
	// record itself, so the client still gets the id and sees the error
	// through polling.
	if _, err := a.Manager.SpawnWorker(context.Background(), created.ID); err != nil {
		log.Warnf("Failed to spawn worker for job %s: %v", created.ID, err)
	}

	c.JSON(http.StatusOK, jobIDResponse{OK: true, JobID: created.ID})
}

func (a *API) jobStatus(c *gin.Context) {
	jobID := c.Query("jobId")
	job, ok := a.loadAuthorized(c, jobID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, jobResponse{OK: true, Job: job})
}

func (a *API) cancelJob(c *gin.Context) {
	var req cancelJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errResp("Invalid request body: "+err.Error()))
		return
	}
	if _, ok := a.loadAuthorized(c, req.JobID); !ok {
		return
	}

	job, err := a.Manager.Store().RequestCancel(req.JobID)
	if err != nil {
		c.JSON(http.StatusNotFound, errResp("Transfer job not found."))
		return
	}
	c.JSON(http.StatusOK, jobResponse{OK: true, Job: job})
}

func (a *API) listJobs(c *gin.Context) {
	user := currentUser(c)
	isAdmin := a.isAdmin(c, user)

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	jobs, err := a.Manager.Store().ListForUser(user, isAdmin, limit)
	if err != nil {
		log.Errorf("Failed to list transfer jobs: %v", err)
		c.JSON(http.StatusInternalServerError, errResp("Failed to list transfer jobs."))
		return
	}
	c.JSON(http.StatusOK, jobListResponse{OK: true, Jobs: jobs})
}

// loadAuthorized resolves a job id to a record the caller may see. An
// unknown id and a foreign job answer identically so ids cannot be
// probed.
func (a *API) loadAuthorized(c *gin.Context, jobID string) (*transfer.JobRecord, bool) {
	job, err := a.Manager.Store().Load(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, errResp("Transfer job not found."))
		return nil, false
	}

	user := currentUser(c)
	if job.User != "" && !strings.EqualFold(job.User, user) && !a.isAdmin(c, user) {
		c.JSON(http.StatusNotFound, errResp("Transfer job not found."))
		return nil, false
	}
	return job, true
}

func (a *API) isAdmin(c *gin.Context, user string) bool {
	perms, err := a.Oracle.LoadPermissions(c.Request.Context(), user)
	if err != nil {
		return false
	}
	return perms.Admin
}
