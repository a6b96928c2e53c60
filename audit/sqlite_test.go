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

package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer sink.Close()

	sink.Log("file.copy", map[string]any{"user": "alice", "from": "in/a.txt", "to": "out/a.txt"})
	sink.Log("folder.move", map[string]any{"user": "bob", "from": "proj", "to": "archive/proj"})

	events, err := sink.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	names := []string{events[0].Name, events[1].Name}
	assert.Contains(t, names, "file.copy")
	assert.Contains(t, names, "folder.move")

	for _, ev := range events {
		assert.NotZero(t, ev.CreatedAt)
		assert.NotEmpty(t, ev.Details["user"])
	}
}

func TestSQLiteSinkReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := NewSQLiteSink(path)
	require.NoError(t, err)
	sink.Log("file.copy", map[string]any{"user": "alice"})
	require.NoError(t, sink.Close())

	// Re-running migrations against an existing database is a no-op.
	sink, err = NewSQLiteSink(path)
	require.NoError(t, err)
	defer sink.Close()

	events, err := sink.Recent(10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
