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

// Package storage defines the narrow adapter surface the transfer engine
// drives, plus the local-disk implementation. Remote backends (SFTP, S3)
// implement the same Adapter interface elsewhere.
package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/sources"
)

// FileInfo is the stat result the worker uses for byte accounting.
type FileInfo struct {
	Type string // "file" or "folder"
	Size int64
}

// Adapter is the copy/move primitive surface consumed by the transfer
// worker. Every call names its backend(s) through explicit source
// contexts; same-backend operations take one context, cross-source
// operations take two.
type Adapter interface {
	Stat(ctx context.Context, src sources.Context, folder, name string) (FileInfo, error)

	CopyFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error
	MoveFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error
	CopyFilesAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string, names []string) error
	MoveFilesAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string, names []string) error

	CopyFolder(ctx context.Context, src sources.Context, srcFolder, dstFolder string) error
	RenameFolder(ctx context.Context, src sources.Context, srcFolder, dstFolder string) error
	CopyFolderAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string) error
	MoveFolderAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string) error
}

// FolderUploaders reads the per-folder metadata file and returns the
// uploader recorded for each item name. Used for per-item ownership
// checks on owner-scoped accounts. A missing metadata file yields an
// empty map.
func FolderUploaders(metaRoot, folder string) (map[string]string, error) {
	path := metadataPathFor(metaRoot, folder)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	var meta map[string]struct {
		Uploader string `json:"uploader"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(meta))
	for name, entry := range meta {
		out[name] = entry.Uploader
	}
	return out, nil
}

func metadataPathFor(metaRoot, folder string) string {
	f := acl.NormalizeFolder(folder)
	if f == "root" {
		return filepath.Join(metaRoot, "root_metadata.json")
	}
	flat := strings.NewReplacer("/", "-", "\\", "-", " ", "-").Replace(f)
	return filepath.Join(metaRoot, flat+"_metadata.json")
}
