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

// Package metrics registers the Prometheus collectors for the transfer
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransferJobsStarted counts worker runs that passed preconditions and
	// entered the running state, labelled by job kind.
	TransferJobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filerise_transfer_jobs_started_total",
		Help: "Count of transfer jobs that entered the running state",
	}, []string{"kind"})

	// TransferJobsCompleted counts jobs that finished in the done state.
	TransferJobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filerise_transfer_jobs_completed_total",
		Help: "Count of transfer jobs that completed successfully",
	}, []string{"kind"})

	// TransferJobsFailed counts jobs that finished in the error state,
	// whether from a precondition failure or accumulated item errors.
	TransferJobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filerise_transfer_jobs_failed_total",
		Help: "Count of transfer jobs that finished in the error state",
	}, []string{"kind"})

	// TransferJobsCancelled counts jobs that honored a cancel request.
	TransferJobsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filerise_transfer_jobs_cancelled_total",
		Help: "Count of transfer jobs stopped by a cancel request",
	}, []string{"kind"})

	// TransferBytes counts bytes reported done by workers.
	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filerise_transfer_bytes_total",
		Help: "Bytes transferred by completed items",
	}, []string{"kind"})

	// TransferJobsRunning tracks workers currently executing in this
	// process. Detached workers each report 0 or 1 for their own lifetime.
	TransferJobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filerise_transfer_jobs_running",
		Help: "Number of transfer workers currently running in this process",
	})
)
