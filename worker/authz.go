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
	"strings"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/sources"
	"github.com/filerise/filerise/storage"
	"github.com/filerise/filerise/transfer"
)

// need names the capability a folder-scope check must find when a
// folder-only account operates outside the folders it owns.
type need string

const (
	needRead    need = "read"
	needReadOwn need = "read_own"
	needWrite   need = "write"
	needCreate  need = "create"
	needMove    need = "move"
	needDelete  need = "delete"
	needManage  need = "manage"
)

// validateSourceStates rejects jobs whose source or destination backend
// is unknown, disabled, or read-only. Skipped entirely when multi-source
// support is off or either id is blank.
func validateSourceStates(reg sources.Registry, sourceID, destSourceID string, isAdmin, isMove bool) string {
	if reg == nil || !reg.Enabled() {
		return ""
	}
	sid := strings.TrimSpace(sourceID)
	did := strings.TrimSpace(destSourceID)
	if sid == "" || did == "" {
		return ""
	}

	src, srcOK := reg.Lookup(sid)
	dst, dstOK := reg.Lookup(did)
	if !srcOK || !dstOK {
		return "Invalid source."
	}
	if !isAdmin && (!src.Enabled || !dst.Enabled) {
		return "Source is disabled."
	}
	if isMove && src.ReadOnly {
		return "Source is read-only."
	}
	if dst.ReadOnly {
		return "Destination source is read-only."
	}
	return ""
}

// enforceFolderScope applies the folder-only restriction: such accounts
// may only act inside folders they own, unless the specific capability
// is granted on the folder anyway.
func enforceFolderScope(perms acl.Permissions, folder string, n need) string {
	if perms.Admin || !perms.FolderOnly {
		return ""
	}
	if perms.OwnsFolderOrAncestor(folder) {
		return ""
	}

	var ok bool
	switch n {
	case needManage:
		ok = perms.CanManage(folder)
	case needWrite:
		ok = perms.CanWrite(folder)
	case needReadOwn:
		ok = perms.CanReadOwn(folder)
	case needCreate:
		ok = perms.CanCreate(folder)
	case needMove:
		ok = perms.CanMove(folder)
	case needDelete:
		ok = perms.CanDelete(folder)
	default:
		ok = perms.CanRead(folder)
	}
	if ok {
		return ""
	}
	return "Forbidden: folder scope violation."
}

// enforceOwnership applies per-item ownership for owner-scoped accounts:
// a user whose only view of the source folder is an own-items grant may
// transfer only files they uploaded. Full read access, admin, and the
// bypass flag all waive the check.
func enforceOwnership(perms acl.Permissions, user, sourceFolder string, files []string, srcCtx sources.Context) string {
	if perms.Admin || perms.BypassOwnership {
		return ""
	}
	if perms.CanRead(sourceFolder) || !perms.HasReadOwnGrant(sourceFolder) {
		return ""
	}

	uploaders, err := storage.FolderUploaders(srcCtx.MetaRoot, sourceFolder)
	if err != nil {
		uploaders = map[string]string{}
	}
	for _, name := range files {
		uploader, ok := uploaders[name]
		if !ok || !strings.EqualFold(uploader, user) {
			return "Forbidden: you are not the owner of '" + name + "'."
		}
	}
	return ""
}

// validateFileAccess is the per-item permission gate for file jobs. It
// is evaluated once before the loop and again for every item so that
// revocations made mid-job fail closed.
func validateFileAccess(perms acl.Permissions, user string, kind transfer.Kind,
	sourceFolder, destinationFolder string, files []string, srcCtx sources.Context) string {

	isMove := kind.IsMove()

	hasSourceView := perms.CanReadOwn(sourceFolder) || perms.OwnsFolderOrAncestor(sourceFolder)
	if !hasSourceView {
		return "Forbidden: no read access to source"
	}

	if isMove {
		hasSourceDelete := perms.CanDelete(sourceFolder) || perms.OwnsFolderOrAncestor(sourceFolder)
		if !hasSourceDelete {
			return "Forbidden: no delete permission on source"
		}
		if msg := enforceFolderScope(perms, sourceFolder, needDelete); msg != "" {
			return msg
		}
	} else {
		srcNeed := needReadOwn
		if perms.CanRead(sourceFolder) {
			srcNeed = needRead
		}
		if msg := enforceFolderScope(perms, sourceFolder, srcNeed); msg != "" {
			return msg
		}
	}

	if isMove {
		hasDestMove := perms.CanMove(destinationFolder) || perms.OwnsFolderOrAncestor(destinationFolder)
		if !hasDestMove {
			return "Forbidden: no move permission on destination"
		}
		if msg := enforceFolderScope(perms, destinationFolder, needMove); msg != "" {
			return msg
		}
	} else {
		hasDestCreate := perms.CanCreate(destinationFolder) || perms.OwnsFolderOrAncestor(destinationFolder)
		if !hasDestCreate {
			return "Forbidden: no write access to destination"
		}
		if msg := enforceFolderScope(perms, destinationFolder, needCreate); msg != "" {
			return msg
		}
	}

	return enforceOwnership(perms, user, sourceFolder, files, srcCtx)
}

// validateFolderAccess is the single-shot permission gate for folder
// jobs.
func validateFolderAccess(perms acl.Permissions, kind transfer.Kind,
	sourceFolder, destinationFolder string, crossSource bool) string {

	canManageSource := perms.CanManage(sourceFolder) || perms.IsOwner(sourceFolder)
	if !canManageSource {
		return "Forbidden: manage rights required on source"
	}
	if msg := enforceFolderScope(perms, sourceFolder, needManage); msg != "" {
		return msg
	}

	if kind == transfer.KindFolderCopy || crossSource {
		canCreate := perms.CanCreate(destinationFolder) || perms.OwnsFolderOrAncestor(destinationFolder)
		if !canCreate {
			return "Forbidden: no write access to destination"
		}
		return enforceFolderScope(perms, destinationFolder, needCreate)
	}

	// Same-source folder move: relocating into root is admin-only unless
	// a move grant exists; elsewhere destination ownership suffices.
	var destOwnerOK bool
	if acl.NormalizeFolder(destinationFolder) == "root" {
		destOwnerOK = perms.Admin
	} else {
		destOwnerOK = perms.IsOwner(destinationFolder)
	}
	if !perms.CanMove(destinationFolder) && !destOwnerOK {
		return "Forbidden: move rights required on destination"
	}
	return enforceFolderScope(perms, destinationFolder, needWrite)
}
