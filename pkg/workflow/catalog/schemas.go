// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// SchemaSource is the schema registry. GetSchema returns a
// *errors.NotFoundError for unknown refs.
type SchemaSource interface {
	GetSchema(ctx context.Context, ref string) (*schema.Schema, error)
	ListRefs(ctx context.Context) ([]string, error)
}

// MemorySchemaSource is an in-memory SchemaSource.
type MemorySchemaSource struct {
	mu      sync.RWMutex
	schemas map[string]*schema.Schema
}

// NewMemorySchemaSource creates a source from a ref -> schema map.
func NewMemorySchemaSource(schemas map[string]*schema.Schema) *MemorySchemaSource {
	s := &MemorySchemaSource{schemas: make(map[string]*schema.Schema, len(schemas))}
	for ref, sc := range schemas {
		s.schemas[ref] = sc
	}
	return s
}

// Put adds or replaces a schema.
func (s *MemorySchemaSource) Put(ref string, sc *schema.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[ref] = sc
}

// GetSchema implements SchemaSource.
func (s *MemorySchemaSource) GetSchema(ctx context.Context, ref string) (*schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schemas[ref]
	if !ok {
		return nil, &stepflowerrors.NotFoundError{Resource: "schema", ID: ref}
	}
	return sc, nil
}

// ListRefs implements SchemaSource. Refs are sorted.
func (s *MemorySchemaSource) ListRefs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]string, 0, len(s.schemas))
	for ref := range s.schemas {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}

// SchemaFilePattern matches schema files below a schema directory.
const SchemaFilePattern = "**/*.{json,yaml,yml}"

// LoadSchemaDir reads every file under dir matching SchemaFilePattern. The
// ref of each schema is its slash-separated path relative to dir without
// the extension, so tickets/created.json is "tickets/created". Two files
// mapping to the same ref are an error.
func LoadSchemaDir(dir string) (*MemorySchemaSource, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, stepflowerrors.Wrapf(err, "reading schema directory %s", dir)
	}
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, SchemaFilePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, stepflowerrors.Wrapf(err, "listing schema directory %s", dir)
	}
	sort.Strings(matches)

	out := NewMemorySchemaSource(nil)
	seen := make(map[string]string, len(matches))
	for _, name := range matches {
		ref := strings.TrimSuffix(name, path.Ext(name))
		if prev, ok := seen[ref]; ok {
			return nil, fmt.Errorf("schema ref %q is defined by both %s and %s", ref, prev, name)
		}
		seen[ref] = name

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, stepflowerrors.Wrapf(err, "reading schema %s", filepath.Join(dir, name))
		}
		var sc schema.Schema
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", filepath.Join(dir, name), err)
		}
		out.Put(ref, &sc)
	}
	return out, nil
}
