// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// Embed the workflow definition JSON Schema into the binary. It describes the
// document shape of a definition (step variants, trigger, expression values)
// and is used for early validation and editor tooling.
//
//go:embed definition.schema.json
var definitionSchema []byte

// GetDefinitionSchema returns the embedded definition JSON Schema as raw bytes.
func GetDefinitionSchema() []byte {
	return definitionSchema
}
