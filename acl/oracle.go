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

package acl

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Oracle resolves a user's current permission set. The transfer worker
// re-loads permissions before every item so that revocations made while a
// long transfer is in flight fail closed; implementations must therefore
// always reflect the latest policy, not a point-in-time snapshot.
type Oracle interface {
	LoadPermissions(ctx context.Context, user string) (Permissions, error)
}

// FileOracle reads permission sets from a JSON file mapping usernames to
// Permissions. The parsed file is kept in memory and re-read whenever the
// file's modification time changes, so per-item re-loads are cheap but
// never stale.
type FileOracle struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	users   map[string]Permissions
}

func NewFileOracle(path string) *FileOracle {
	return &FileOracle{path: path}
}

func (o *FileOracle) LoadPermissions(ctx context.Context, user string) (Permissions, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	info, err := os.Stat(o.path)
	if err != nil {
		// A missing permissions file means nobody has any grants; the
		// worker's fail-closed checks turn that into denials.
		if os.IsNotExist(err) {
			return Permissions{}, nil
		}
		return Permissions{}, errors.Wrap(err, "failed to stat permissions file")
	}
	if o.users == nil || !info.ModTime().Equal(o.modTime) || info.Size() != o.size {
		raw, err := os.ReadFile(o.path)
		if err != nil {
			return Permissions{}, errors.Wrap(err, "failed to read permissions file")
		}
		parsed := make(map[string]Permissions)
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return Permissions{}, errors.Wrap(err, "failed to parse permissions file")
		}
		users := make(map[string]Permissions, len(parsed))
		for name, perms := range parsed {
			if perms.Folders != nil {
				folders := make(map[string]Grant, len(perms.Folders))
				for folder, grant := range perms.Folders {
					folders[NormalizeFolder(folder)] = grant
				}
				perms.Folders = folders
			}
			users[strings.ToLower(name)] = perms
		}
		o.users = users
		o.modTime = info.ModTime()
		o.size = info.Size()
	}

	return o.users[strings.ToLower(user)], nil
}

// StaticOracle serves a fixed permission map; intended for tests and
// embedded deployments.
type StaticOracle struct {
	mu    sync.RWMutex
	users map[string]Permissions
}

func NewStaticOracle(users map[string]Permissions) *StaticOracle {
	normalized := make(map[string]Permissions, len(users))
	for name, perms := range users {
		normalized[strings.ToLower(name)] = perms
	}
	return &StaticOracle{users: normalized}
}

func (o *StaticOracle) LoadPermissions(ctx context.Context, user string) (Permissions, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.users[strings.ToLower(user)], nil
}

// Set replaces a user's permission set; later worker re-loads observe the
// change, which is what per-item fail-closed tests rely on.
func (o *StaticOracle) Set(user string, perms Permissions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.users[strings.ToLower(user)] = perms
}
