package completion

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/pkg/workflow"
)

// completionTimeout bounds store and registry access while completing.
const completionTimeout = 500 * time.Millisecond

// CompleteWorkflowIDs completes the id of a stored workflow. Each id is
// described with its status.
func CompleteWorkflowIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		env, err := shared.OpenEnv(io.Discard)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer env.Close()

		ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
		defer cancel()
		records, err := env.Service.List(ctx, nil)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []string
		for _, rec := range records {
			if strings.HasPrefix(rec.ID, toComplete) {
				out = append(out, rec.ID+"\t"+string(rec.Status))
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteSchemaRefs completes a ref from the configured schema source.
func CompleteSchemaRefs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		env, err := shared.OpenEnv(io.Discard)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer env.Close()

		ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
		defer cancel()
		refs, err := env.Schemas.ListRefs(ctx)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []string
		for _, ref := range refs {
			if strings.HasPrefix(ref, toComplete) {
				out = append(out, ref)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteStepIDs completes --step with the step ids of the definition file
// given as the first argument.
func CompleteStepIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		def, err := shared.LoadDefinition(args[0])
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []string
		for _, id := range workflow.CollectStepIDs(def.Steps) {
			if strings.HasPrefix(id, toComplete) {
				out = append(out, id)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}
