package schema

import (
	"github.com/tombee/stepflow/schemas"
)

// DefinitionSchemaRef is the resource id used when validating definition documents.
const DefinitionSchemaRef = "stepflow/definition.schema.json"

// GetEmbeddedSchema returns the embedded workflow definition JSON Schema as raw bytes.
//
// The schema is embedded via the schemas package at the module root level,
// since go:embed directives cannot reference parent directories.
func GetEmbeddedSchema() []byte {
	return schemas.GetDefinitionSchema()
}

// ValidateDefinitionDocument checks the shape of a decoded definition document
// (a map from JSON or YAML) before it is parsed into a Definition.
func ValidateDefinitionDocument(doc any) error {
	return ValidateDocument(DefinitionSchemaRef, GetEmbeddedSchema(), doc)
}
