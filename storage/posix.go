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

package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/sources"
)

// Posix is the local-disk storage adapter. Each source context's Root is
// a directory on the local filesystem; cross-source operations are just
// operations between two roots.
type Posix struct{}

func NewPosix() *Posix { return &Posix{} }

func folderPath(src sources.Context, folder string) string {
	f := acl.NormalizeFolder(folder)
	if f == "root" {
		return src.Root
	}
	return filepath.Join(src.Root, filepath.FromSlash(f))
}

func itemPath(src sources.Context, folder, name string) string {
	return filepath.Join(folderPath(src, folder), filepath.Base(name))
}

func (p *Posix) Stat(ctx context.Context, src sources.Context, folder, name string) (FileInfo, error) {
	info, err := os.Stat(itemPath(src, folder, name))
	if err != nil {
		return FileInfo{}, errors.Wrapf(err, "failed to stat %q", name)
	}
	if info.IsDir() {
		return FileInfo{Type: "folder"}, nil
	}
	return FileInfo{Type: "file", Size: info.Size()}, nil
}

func copyFile(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dstPath)
		return err
	}
	return out.Close()
}

func (p *Posix) copyBatch(src, dst sources.Context, srcFolder, dstFolder string, names []string, removeSource bool) error {
	for _, name := range names {
		from := itemPath(src, srcFolder, name)
		to := itemPath(dst, dstFolder, name)
		if removeSource && src.Root == dst.Root {
			if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
				return errors.Wrapf(err, "failed to prepare destination for %q", name)
			}
			if err := os.Rename(from, to); err == nil {
				continue
			}
			// Cross-device rename fails with EXDEV; fall through to
			// copy-then-remove.
		}
		if err := copyFile(from, to); err != nil {
			return errors.Wrapf(err, "failed to copy %q", name)
		}
		if removeSource {
			if err := os.Remove(from); err != nil {
				return errors.Wrapf(err, "failed to remove source %q after move", name)
			}
		}
	}
	return nil
}

func (p *Posix) CopyFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error {
	return p.copyBatch(src, src, srcFolder, dstFolder, names, false)
}

func (p *Posix) MoveFiles(ctx context.Context, src sources.Context, srcFolder, dstFolder string, names []string) error {
	return p.copyBatch(src, src, srcFolder, dstFolder, names, true)
}

func (p *Posix) CopyFilesAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string, names []string) error {
	return p.copyBatch(src, dst, srcFolder, dstFolder, names, false)
}

func (p *Posix) MoveFilesAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string, names []string) error {
	return p.copyBatch(src, dst, srcFolder, dstFolder, names, true)
}

func copyTree(from, to string) error {
	return filepath.WalkDir(from, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func (p *Posix) CopyFolder(ctx context.Context, src sources.Context, srcFolder, dstFolder string) error {
	from := folderPath(src, srcFolder)
	to := folderPath(src, dstFolder)
	if err := copyTree(from, to); err != nil {
		return errors.Wrapf(err, "failed to copy folder %q", srcFolder)
	}
	return nil
}

func (p *Posix) RenameFolder(ctx context.Context, src sources.Context, srcFolder, dstFolder string) error {
	from := folderPath(src, srcFolder)
	to := folderPath(src, dstFolder)
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return errors.Wrapf(err, "failed to prepare destination for folder %q", dstFolder)
	}
	if err := os.Rename(from, to); err != nil {
		return errors.Wrapf(err, "failed to move folder %q", srcFolder)
	}
	return nil
}

func (p *Posix) CopyFolderAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string) error {
	if err := copyTree(folderPath(src, srcFolder), folderPath(dst, dstFolder)); err != nil {
		return errors.Wrapf(err, "failed to copy folder %q across sources", srcFolder)
	}
	return nil
}

func (p *Posix) MoveFolderAcross(ctx context.Context, src, dst sources.Context, srcFolder, dstFolder string) error {
	from := folderPath(src, srcFolder)
	if err := copyTree(from, folderPath(dst, dstFolder)); err != nil {
		return errors.Wrapf(err, "failed to move folder %q across sources", srcFolder)
	}
	if err := os.RemoveAll(from); err != nil {
		return errors.Wrapf(err, "failed to remove source folder %q after move", srcFolder)
	}
	return nil
}
