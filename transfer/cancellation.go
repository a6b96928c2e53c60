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
	"go.uber.org/atomic"
)

// CancellationToken is the cooperative-cancellation seam the worker polls
// at each per-item checkpoint. The production backing re-reads the shared
// job record; tests and same-process deployments can substitute an
// in-memory flag without changing the worker's control flow.
type CancellationToken interface {
	Cancelled() bool
}

type storeToken struct {
	store *Store
	id    string
}

// CancellationToken returns a token backed by re-reads of the job record,
// observing cancelRequested writes from any process.
func (s *Store) CancellationToken(id string) CancellationToken {
	return &storeToken{store: s, id: id}
}

func (t *storeToken) Cancelled() bool {
	job, err := t.store.Load(t.id)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

// MemoryToken is an in-process CancellationToken.
type MemoryToken struct {
	flag atomic.Bool
}

func NewMemoryToken() *MemoryToken { return &MemoryToken{} }

func (t *MemoryToken) Cancel()         { t.flag.Store(true) }
func (t *MemoryToken) Cancelled() bool { return t.flag.Load() }
