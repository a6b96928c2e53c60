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

// Package sources resolves storage-backend ("source") identifiers to
// their definitions. The active source is never process-wide state: every
// storage-facing call receives an explicit Context value naming the
// backend it must operate against.
package sources

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
)

// Source is one configured storage backend.
type Source struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Enabled  bool   `json:"enabled"`
	ReadOnly bool   `json:"readOnly"`
	Root     string `json:"root"`
	MetaRoot string `json:"metaRoot"`
}

// Context selects the backend for a single storage operation. It is
// passed by argument through every storage-facing call; callers never
// save/restore a global to switch backends.
type Context struct {
	ID       string
	Root     string
	MetaRoot string
}

// Registry resolves source ids. The empty id always resolves to the
// default (primary) backend.
type Registry interface {
	// Enabled reports whether multi-source support is configured at all.
	// When false, every id resolves to the default backend and source
	// state validation is skipped.
	Enabled() bool
	Lookup(id string) (Source, bool)
	Context(id string) (Context, error)
}

const sourcesCacheKey = "sources"

// FileRegistry reads source definitions from a JSON file (a list of
// Source objects). Parses are cached with a short TTL: the worker
// re-validates source state before every item, and the cache bounds that
// to at most one file parse per TTL without holding a stale view for
// longer than the TTL.
type FileRegistry struct {
	path       string
	defaultCtx Context
	cache      *ttlcache.Cache[string, map[string]Source]
}

func NewFileRegistry(path string, defaultCtx Context, ttl time.Duration) *FileRegistry {
	var cache *ttlcache.Cache[string, map[string]Source]
	if ttl > 0 {
		cache = ttlcache.New[string, map[string]Source](
			ttlcache.WithTTL[string, map[string]Source](ttl),
			ttlcache.WithDisableTouchOnHit[string, map[string]Source](),
		)
	}
	return &FileRegistry{path: path, defaultCtx: defaultCtx, cache: cache}
}

func (r *FileRegistry) Enabled() bool {
	return r.path != ""
}

func (r *FileRegistry) load() (map[string]Source, error) {
	if r.cache != nil {
		if item := r.cache.Get(sourcesCacheKey); item != nil {
			return item.Value(), nil
		}
	}
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sources file")
	}
	var list []Source
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrap(err, "failed to parse sources file")
	}
	byID := make(map[string]Source, len(list))
	for _, src := range list {
		byID[strings.ToLower(src.ID)] = src
	}
	if r.cache != nil {
		r.cache.Set(sourcesCacheKey, byID, ttlcache.DefaultTTL)
	}
	return byID, nil
}

func (r *FileRegistry) Lookup(id string) (Source, bool) {
	if !r.Enabled() || strings.TrimSpace(id) == "" {
		return Source{}, false
	}
	byID, err := r.load()
	if err != nil {
		return Source{}, false
	}
	src, ok := byID[strings.ToLower(strings.TrimSpace(id))]
	return src, ok
}

func (r *FileRegistry) Context(id string) (Context, error) {
	if !r.Enabled() || strings.TrimSpace(id) == "" {
		return r.defaultCtx, nil
	}
	src, ok := r.Lookup(id)
	if !ok {
		return Context{}, errors.Errorf("unknown source %q", id)
	}
	ctx := Context{ID: src.ID, Root: src.Root, MetaRoot: src.MetaRoot}
	if ctx.Root == "" {
		ctx.Root = r.defaultCtx.Root
	}
	if ctx.MetaRoot == "" {
		ctx.MetaRoot = r.defaultCtx.MetaRoot
	}
	return ctx, nil
}

// StaticRegistry serves a fixed source set; intended for tests.
type StaticRegistry struct {
	DefaultCtx Context
	Sources    map[string]Source
}

func (r *StaticRegistry) Enabled() bool { return len(r.Sources) > 0 }

func (r *StaticRegistry) Lookup(id string) (Source, bool) {
	src, ok := r.Sources[strings.ToLower(strings.TrimSpace(id))]
	return src, ok
}

func (r *StaticRegistry) Context(id string) (Context, error) {
	if !r.Enabled() || strings.TrimSpace(id) == "" {
		return r.DefaultCtx, nil
	}
	src, ok := r.Lookup(id)
	if !ok {
		return Context{}, errors.Errorf("unknown source %q", id)
	}
	ctx := Context{ID: src.ID, Root: src.Root, MetaRoot: src.MetaRoot}
	if ctx.Root == "" {
		ctx.Root = r.DefaultCtx.Root
	}
	if ctx.MetaRoot == "" {
		ctx.MetaRoot = r.DefaultCtx.MetaRoot
	}
	return ctx, nil
}
