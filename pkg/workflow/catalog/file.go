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
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/schema"
)

// Bundle is a catalog file: a registry, an event catalog and schemas in one
// YAML or JSON document. It backs the CLI and tests where no live
// collaborators exist.
type Bundle struct {
	Nodes   []Node                    `yaml:"nodes,omitempty" json:"nodes,omitempty" validate:"dive"`
	Actions []Action                  `yaml:"actions,omitempty" json:"actions,omitempty" validate:"dive"`
	Events  []EventEntry              `yaml:"events,omitempty" json:"events,omitempty" validate:"dive"`
	Schemas map[string]*schema.Schema `yaml:"schemas,omitempty" json:"schemas,omitempty" validate:"dive,keys,required,endkeys,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseBundle decodes and validates a catalog document.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads a catalog file.
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stepflowerrors.Wrapf(err, "reading catalog %s", path)
	}
	b, err := ParseBundle(data)
	if err != nil {
		return nil, stepflowerrors.Wrapf(err, "catalog %s", path)
	}
	return b, nil
}

// Validate checks struct constraints and returns the first violation as a
// ValidationError.
func (b *Bundle) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &stepflowerrors.ValidationError{
		Field:      strings.TrimPrefix(fe.Namespace(), "Bundle."),
		Message:    fmt.Sprintf("failed %q constraint", fe.Tag()),
		Suggestion: "check the catalog entry against the documented fields",
	}
}

// Registry returns an ActionRegistry over the bundle's nodes and actions.
func (b *Bundle) Registry() *Registry {
	return NewRegistry(b.Nodes, b.Actions)
}

// EventCatalog returns an EventCatalog over the bundle's events.
func (b *Bundle) EventCatalog() *MemoryEventCatalog {
	return NewMemoryEventCatalog(b.Events...)
}

// SchemaSource returns a SchemaSource over the bundle's schemas.
func (b *Bundle) SchemaSource() *MemorySchemaSource {
	return NewMemorySchemaSource(b.Schemas)
}
