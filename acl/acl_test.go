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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFolder(t *testing.T) {
	assert.Equal(t, "root", NormalizeFolder(""))
	assert.Equal(t, "root", NormalizeFolder("  "))
	assert.Equal(t, "root", NormalizeFolder("Root"))
	assert.Equal(t, "root", NormalizeFolder("ROOT"))
	assert.Equal(t, "root", NormalizeFolder("///"))
	assert.Equal(t, "docs/reports", NormalizeFolder("/docs/reports/"))
	assert.Equal(t, "docs/reports", NormalizeFolder("docs\\reports"))
}

func TestGrantInheritance(t *testing.T) {
	perms := Permissions{Folders: map[string]Grant{
		"docs":         {Read: true},
		"docs/private": {Delete: true},
	}}

	assert.True(t, perms.CanRead("docs"))
	assert.True(t, perms.CanRead("docs/reports/2025"))
	assert.False(t, perms.CanRead("media"))

	// Delete on the child unions with read inherited from the parent.
	assert.True(t, perms.CanRead("docs/private"))
	assert.True(t, perms.CanDelete("docs/private"))
	assert.False(t, perms.CanDelete("docs"))
}

func TestAdminBypassesGrants(t *testing.T) {
	perms := Permissions{Admin: true}
	assert.True(t, perms.CanRead("anything"))
	assert.True(t, perms.CanDelete("anything/nested"))
	assert.True(t, perms.IsOwner("anything"))
	assert.True(t, perms.OwnsFolderOrAncestor("anything/nested"))
}

func TestReadOwnSemantics(t *testing.T) {
	perms := Permissions{Folders: map[string]Grant{
		"shared": {ReadOwn: true},
		"open":   {Read: true},
	}}

	assert.True(t, perms.CanReadOwn("shared"))
	assert.False(t, perms.CanRead("shared"))
	assert.True(t, perms.HasReadOwnGrant("shared"))

	// Full read implies read-own but not the explicit grant.
	assert.True(t, perms.CanReadOwn("open"))
	assert.False(t, perms.HasReadOwnGrant("open"))
}

func TestOwnership(t *testing.T) {
	perms := Permissions{Folders: map[string]Grant{
		"mine": {Owner: true},
	}}

	assert.True(t, perms.IsOwner("mine"))
	assert.False(t, perms.IsOwner("mine/sub"))
	assert.True(t, perms.OwnsFolderOrAncestor("mine/sub/deep"))
	assert.False(t, perms.OwnsFolderOrAncestor("other"))
}

func TestFileOracleReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "permissions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Alice": {"folders": {"/Docs/": {"read": true}}}}`), 0600))

	oracle := NewFileOracle(path)
	perms, err := oracle.LoadPermissions(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, perms.CanRead("docs"))

	// Rewrite the file; the next load must observe the revocation.
	require.NoError(t, os.WriteFile(path, []byte(`{"alice": {}}`), 0600))
	// mtime granularity on some filesystems is one second.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	perms, err = oracle.LoadPermissions(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, perms.CanRead("docs"))
}

func TestFileOracleMissingFile(t *testing.T) {
	oracle := NewFileOracle(filepath.Join(t.TempDir(), "absent.json"))
	perms, err := oracle.LoadPermissions(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, perms.CanRead("root"))
	assert.False(t, perms.Admin)
}

func TestStaticOracleSet(t *testing.T) {
	oracle := NewStaticOracle(map[string]Permissions{
		"Alice": {Folders: map[string]Grant{"docs": {Read: true}}},
	})

	perms, err := oracle.LoadPermissions(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.True(t, perms.CanRead("docs"))

	oracle.Set("alice", Permissions{})
	perms, err = oracle.LoadPermissions(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, perms.CanRead("docs"))
}
