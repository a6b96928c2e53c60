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

// Package client is the Go client for the transfer job API: start a
// job, poll its record until it reaches a terminal state, request
// cancellation at most once at a time.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/filerise/filerise/transfer"
)

const (
	// DefaultPollInterval paces status polling.
	DefaultPollInterval = 500 * time.Millisecond

	// Throughput estimates are clamped so one pathological sample cannot
	// swing later predictions.
	minSpeedBps = 256 * 1024
	maxSpeedBps = 200 * 1024 * 1024

	// Estimated progress never claims completion; only a terminal record
	// may show 100.
	maxEstimatedPct = 97
)

// StartRequest describes the job to create.
type StartRequest struct {
	Kind              string   `json:"kind"`
	SourceID          string   `json:"sourceId,omitempty"`
	DestSourceID      string   `json:"destSourceId,omitempty"`
	CrossSource       bool     `json:"crossSource,omitempty"`
	SourceFolder      string   `json:"sourceFolder,omitempty"`
	DestinationFolder string   `json:"destinationFolder,omitempty"`
	TargetFolder      string   `json:"targetFolder,omitempty"`
	Files             []string `json:"files,omitempty"`
}

// Progress is the snapshot handed to the Wait callback on every poll.
type Progress struct {
	Job *transfer.JobRecord

	// EstimatedPct supplements the server-reported percentage with a
	// throughput-based estimate when the record's pct is indeterminate.
	// Nil when no estimate can be made.
	EstimatedPct *int

	// EstimateBps is the current blended throughput estimate.
	EstimateBps int64
}

// Poller drives the transfer job API for one server.
type Poller struct {
	BaseURL    string
	HTTPClient *http.Client

	// UserHeader, when set, is sent as the authenticated username on
	// every request (deployments that front the API with a trusted
	// proxy).
	UserHeader string

	Interval time.Duration

	cancelInFlight atomic.Bool
	estimateBps    atomic.Int64
}

func NewPoller(baseURL string) *Poller {
	p := &Poller{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Interval:   DefaultPollInterval,
	}
	p.estimateBps.Store(minSpeedBps)
	return p
}

type apiEnvelope struct {
	OK    bool                  `json:"ok"`
	Error string                `json:"error"`
	JobID string                `json:"jobId"`
	Job   *transfer.JobRecord   `json:"job"`
	Jobs  []*transfer.JobRecord `json:"jobs"`
}

func (p *Poller) do(ctx context.Context, method, path string, body any) (*apiEnvelope, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.UserHeader != "" {
		req.Header.Set("X-FileRise-User", p.UserHeader)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	env := new(apiEnvelope)
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		return nil, errors.Wrapf(err, "unparsable response (HTTP %d)", resp.StatusCode)
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, errors.New(msg)
	}
	return env, nil
}

// Start creates a job and returns its id.
func (p *Poller) Start(ctx context.Context, req StartRequest) (string, error) {
	env, err := p.do(ctx, http.MethodPost, "/api/v1.0/transfer/jobs", req)
	if err != nil {
		return "", err
	}
	if env.JobID == "" {
		return "", errors.New("server returned no job id")
	}
	return env.JobID, nil
}

// Status fetches the current job record.
func (p *Poller) Status(ctx context.Context, jobID string) (*transfer.JobRecord, error) {
	env, err := p.do(ctx, http.MethodGet, "/api/v1.0/transfer/jobs/status?jobId="+url.QueryEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	if env.Job == nil {
		return nil, errors.New("server returned no job record")
	}
	return env.Job, nil
}

// List fetches the caller's recent jobs, newest first.
func (p *Poller) List(ctx context.Context, limit int) ([]*transfer.JobRecord, error) {
	path := "/api/v1.0/transfer/jobs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	env, err := p.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Jobs, nil
}

// Cancel requests cancellation. At most one cancel request is in flight
// at a time; concurrent calls while one is pending are no-ops.
func (p *Poller) Cancel(ctx context.Context, jobID string) (*transfer.JobRecord, error) {
	if !p.cancelInFlight.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer p.cancelInFlight.Store(false)

	env, err := p.do(ctx, http.MethodPost, "/api/v1.0/transfer/jobs/cancel",
		map[string]string{"jobId": jobID})
	if err != nil {
		return nil, err
	}
	return env.Job, nil
}

// EstimateBps returns the blended throughput estimate carried across
// jobs.
func (p *Poller) EstimateBps() int64 {
	return p.estimateBps.Load()
}

// Wait polls the job until it reaches a terminal state, invoking
// onProgress (if non-nil) after every poll. The throughput estimate is
// blended with each completed job's observed rate so later estimates
// start informed.
func (p *Poller) Wait(ctx context.Context, jobID string, onProgress func(Progress)) (*transfer.JobRecord, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	started := time.Now()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := p.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if onProgress != nil {
			onProgress(p.snapshot(job, time.Since(started)))
		}

		if job.Terminal() {
			if job.Status == transfer.StatusDone && job.SelectedBytes > 0 {
				p.blendThroughput(job.SelectedBytes, time.Since(started))
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) snapshot(job *transfer.JobRecord, elapsed time.Duration) Progress {
	prog := Progress{Job: job, EstimateBps: p.estimateBps.Load()}
	if job.Pct != nil || job.SelectedBytes <= 0 {
		return prog
	}

	// Indeterminate record with a known byte total: predict progress from
	// elapsed time at the blended rate, capped below completion.
	bps := clampBps(p.estimateBps.Load())
	if job.BytesDone > 0 && elapsed > time.Second {
		observed := int64(float64(job.BytesDone) / elapsed.Seconds())
		if observed > 0 {
			bps = clampBps(int64(float64(bps)*0.4 + float64(observed)*0.6))
		}
	}
	estimatedDone := int64(elapsed.Seconds() * float64(bps))
	if job.BytesDone > estimatedDone {
		estimatedDone = job.BytesDone
	}
	if estimatedDone > job.SelectedBytes {
		estimatedDone = job.SelectedBytes
	}
	pct := int(float64(estimatedDone) / float64(job.SelectedBytes) * 100)
	if pct > maxEstimatedPct {
		pct = maxEstimatedPct
	}
	if pct < 0 {
		pct = 0
	}
	prog.EstimatedPct = &pct
	prog.EstimateBps = bps
	return prog
}

func (p *Poller) blendThroughput(totalBytes int64, elapsed time.Duration) {
	secs := elapsed.Seconds()
	if secs < 0.5 {
		secs = 0.5
	}
	observed := clampBps(int64(float64(totalBytes) / secs))
	old := p.estimateBps.Load()
	p.estimateBps.Store(clampBps(int64(float64(old)*0.7 + float64(observed)*0.3)))
}

func clampBps(bps int64) int64 {
	if bps < minSpeedBps {
		return minSpeedBps
	}
	if bps > maxSpeedBps {
		return maxSpeedBps
	}
	return bps
}
