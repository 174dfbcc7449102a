package lifecycle

import (
	"context"

	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/contract"
	"github.com/tombee/stepflow/pkg/workflow/scope"
)

// DataContext returns the data context visible to stepID in def, built
// over the payload schema the contract policy selects. An empty stepID
// gives the context at the end of the definition.
//
// A payload schema lookup that failed is returned as an error together
// with a context that has no payload fields.
func (s *Service) DataContext(ctx context.Context, def *workflow.Definition, mode contract.Mode, pinnedRef, stepID string) (*scope.DataContext, error) {
	mode, err := checkMode(mode)
	if err != nil {
		return nil, err
	}
	in := s.gather(ctx, def, mode, pinnedRef)
	dc := scope.Build(def, stepID, s.collab.Registry, in.PayloadSchema.Value)
	if in.PayloadSchema.IsError() {
		return dc, in.PayloadSchema.Err
	}
	return dc, nil
}
