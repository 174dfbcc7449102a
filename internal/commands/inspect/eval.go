package inspect

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/stepflow/internal/commands/shared"
	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow/expression"
)

// EvalResponse is the JSON output of the eval command.
type EvalResponse struct {
	shared.JSONResponse
	Expression string `json:"expression"`
	Result     any    `json:"result"`
}

// NewEvalCommand creates the eval command
func NewEvalCommand() *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a condition or expression against sample data",
		Annotations: map[string]string{
			"group": "workflow",
		},
		Long: `Eval compiles an expression the way validation does and runs it against
sample data, to preview how a condition will behave.

The data file is YAML or JSON keyed by root namespace, for example
{"payload": {...}, "vars": {...}}. The functions has, includes and length
are available.`,
		Example: `  # Example 1: Preview a branch condition
  stepflow eval '${vars.ticket.status} == "open"' --data sample.yaml

  # Example 2: Functions
  stepflow eval 'has(payload.tags, "vip")' --data sample.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			data := map[string]any{}
			if dataPath != "" {
				raw, err := os.ReadFile(dataPath)
				if err != nil {
					return shared.OperationError(out, "eval", err)
				}
				if err := yaml.Unmarshal(raw, &data); err != nil {
					return shared.OperationError(out, "eval", &stepflowerrors.ValidationError{
						Field:   "data",
						Message: fmt.Sprintf("not valid YAML or JSON: %v", err),
					})
				}
			}

			result, err := expression.NewChecker().Evaluate(args[0], data)
			if err != nil {
				return shared.OperationError(out, "eval", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, EvalResponse{
					JSONResponse: shared.NewResponse("eval", true),
					Expression:   args[0],
					Result:       result,
				})
			}
			fmt.Fprintf(out, "%v\n", result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "YAML or JSON file of sample data keyed by root")

	return cmd
}
