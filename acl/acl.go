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

// Package acl models the permission policy the transfer engine consults.
// Permissions are a typed struct with named boolean fields and explicit
// per-folder grants; folder paths are normalized before lookup and grants
// inherit down the folder tree.
package acl

import (
	"strings"
)

// Grant is the set of capabilities a user holds on one folder subtree.
type Grant struct {
	Read    bool `json:"read"`
	ReadOwn bool `json:"readOwn"`
	Write   bool `json:"write"`
	Create  bool `json:"create"`
	Move    bool `json:"move"`
	Copy    bool `json:"copy"`
	Delete  bool `json:"delete"`
	Manage  bool `json:"manage"`
	Owner   bool `json:"owner"`
}

// Permissions is one user's effective permission set: account-level flags
// plus per-folder grants keyed by normalized folder path.
type Permissions struct {
	Admin           bool `json:"admin"`
	ReadOnly        bool `json:"readOnly"`
	DisableUpload   bool `json:"disableUpload"`
	FolderOnly      bool `json:"folderOnly"`
	BypassOwnership bool `json:"bypassOwnership"`

	Folders map[string]Grant `json:"folders,omitempty"`
}

// NormalizeFolder canonicalizes a folder path: backslashes become
// forward slashes, surrounding slashes are trimmed, and the empty path
// (or any casing of "root") collapses to "root".
func NormalizeFolder(folder string) string {
	f := strings.TrimSpace(folder)
	if f == "" || strings.EqualFold(f, "root") {
		return "root"
	}
	f = strings.ReplaceAll(f, "\\", "/")
	f = strings.Trim(f, "/")
	if f == "" {
		return "root"
	}
	return f
}

// parentFolder returns the parent of a normalized folder, or "" above
// root.
func parentFolder(folder string) string {
	if folder == "" || folder == "root" {
		return ""
	}
	if idx := strings.LastIndex(folder, "/"); idx >= 0 {
		return folder[:idx]
	}
	return "root"
}

// grantFor walks from the folder up through its ancestors and returns the
// union of matching grants: a capability granted on a parent applies to
// its children.
func (p Permissions) grantFor(folder string) Grant {
	var out Grant
	for f := NormalizeFolder(folder); f != ""; f = parentFolder(f) {
		g, ok := p.Folders[f]
		if !ok {
			continue
		}
		out.Read = out.Read || g.Read
		out.ReadOwn = out.ReadOwn || g.ReadOwn
		out.Write = out.Write || g.Write
		out.Create = out.Create || g.Create
		out.Move = out.Move || g.Move
		out.Copy = out.Copy || g.Copy
		out.Delete = out.Delete || g.Delete
		out.Manage = out.Manage || g.Manage
		out.Owner = out.Owner || g.Owner
	}
	return out
}

func (p Permissions) CanRead(folder string) bool {
	return p.Admin || p.grantFor(folder).Read
}

// CanReadOwn reports whether the user may at least see their own items in
// the folder; full read access implies it.
func (p Permissions) CanReadOwn(folder string) bool {
	if p.Admin {
		return true
	}
	g := p.grantFor(folder)
	return g.Read || g.ReadOwn
}

// HasReadOwnGrant reports whether an explicit owner-scoped read grant
// exists, without the full-read implication. Used to decide whether
// per-item ownership checks apply.
func (p Permissions) HasReadOwnGrant(folder string) bool {
	return p.grantFor(folder).ReadOwn
}

func (p Permissions) CanWrite(folder string) bool {
	return p.Admin || p.grantFor(folder).Write
}

func (p Permissions) CanCreate(folder string) bool {
	return p.Admin || p.grantFor(folder).Create
}

func (p Permissions) CanMove(folder string) bool {
	return p.Admin || p.grantFor(folder).Move
}

func (p Permissions) CanDelete(folder string) bool {
	return p.Admin || p.grantFor(folder).Delete
}

func (p Permissions) CanManage(folder string) bool {
	return p.Admin || p.grantFor(folder).Manage
}

// IsOwner reports ownership of exactly this folder.
func (p Permissions) IsOwner(folder string) bool {
	if p.Admin {
		return true
	}
	g, ok := p.Folders[NormalizeFolder(folder)]
	return ok && g.Owner
}

// OwnsFolderOrAncestor reports whether the user owns the folder or any
// folder above it.
func (p Permissions) OwnsFolderOrAncestor(folder string) bool {
	if p.Admin {
		return true
	}
	for f := NormalizeFolder(folder); f != "" && f != "root"; f = parentFolder(f) {
		if g, ok := p.Folders[f]; ok && g.Owner {
			return true
		}
	}
	return false
}
