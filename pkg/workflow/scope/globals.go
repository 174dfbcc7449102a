package scope

import "github.com/tombee/stepflow/pkg/workflow/schema"

// Expression roots.
const (
	RootPayload = "payload"
	RootVars    = "vars"
	RootMeta    = "meta"
	RootEnv     = "env"
	RootSecrets = "secrets"
	RootError   = "error"
)

// Roots lists every expression root in display order.
var Roots = []string{RootPayload, RootVars, RootMeta, RootEnv, RootSecrets, RootError}

// DefaultGlobals returns the fixed global namespaces. Secrets are resolved
// at run time and have no static fields.
func DefaultGlobals() Globals {
	return Globals{
		Meta: []schema.Field{
			{Name: "state", Type: "object", Description: "Run-scoped state shared between steps"},
			{Name: "traceId", Type: "string", Description: "Trace id of the current run"},
			{Name: "tags", Type: "array", ItemType: "string", Description: "Tags attached to the run"},
		},
		Error: []schema.Field{
			{Name: "name", Type: "string", Description: "Error class"},
			{Name: "message", Type: "string", Description: "Error message"},
			{Name: "stack", Type: "string", Nullable: true, Description: "Stack trace when available"},
			{Name: "nodePath", Type: "string", Description: "Path of the step that failed"},
			{Name: "at", Type: "string", Description: "Time the error was raised", Constraints: &schema.Constraints{Format: "date-time"}},
		},
		Env: []schema.Field{
			{Name: "tenantId", Type: "string"},
			{Name: "workflowId", Type: "string"},
			{Name: "workflowVersion", Type: "integer"},
			{Name: "runId", Type: "string"},
		},
		Secrets: []schema.Field{},
	}
}
