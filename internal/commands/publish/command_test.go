package publish

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/cli"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/schemastore"
	"github.com/tombee/stepflow/internal/testing/fixture"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/catalog"
	"github.com/tombee/stepflow/pkg/workflow/lifecycle"
)

func newRoot() *cobra.Command {
	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())
	return root
}

func publishJSON(t *testing.T, ws *fixture.Workspace, args ...string) (Response, fixture.Result) {
	t.Helper()
	res := fixture.Execute(t, newRoot(), ws.Args(append(append([]string{"publish"}, args...), "--json")...)...)
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &resp), res.Stdout)
	return resp, res
}

func TestPublish(t *testing.T) {
	ws := fixture.NewWorkspace(t)
	path := ws.WriteFile(t, "triage.yaml", fixture.ValidDefinition)

	res := fixture.Execute(t, newRoot(), ws.Args("publish", path)...)
	require.NoError(t, res.Err, res.Stdout)
	assert.Contains(t, res.Stdout, "published triage version 1 (draft 1)")
}

func TestPublish_VersionsAcrossInvocations(t *testing.T) {
	ws := fixture.NewWorkspace(t, fixture.WithSQLite())
	path := ws.WriteFile(t, "triage.yaml", fixture.ValidDefinition)

	resp, res := publishJSON(t, ws, path)
	require.NoError(t, res.Err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.PublishedVersion)
	assert.Equal(t, lifecycle.StatusPublished, resp.Status)
	assert.Equal(t, fixture.TicketRef, resp.PayloadSchemaRef)

	resp, res = publishJSON(t, ws, path)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, resp.PublishedVersion)
	assert.Equal(t, 2, resp.DraftVersion)
}

func TestPublish_ExpectDraft(t *testing.T) {
	ws := fixture.NewWorkspace(t, fixture.WithSQLite())
	path := ws.WriteFile(t, "triage.yaml", fixture.ValidDefinition)
	_, res := publishJSON(t, ws, path)
	require.NoError(t, res.Err)

	resp, res := publishJSON(t, ws, path, "--expect-draft", "5")
	assert.Equal(t, shared.ExitFailed, res.ExitCode)
	assert.False(t, resp.Success)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, shared.ErrorCodeConflict, resp.Errors[0].Code)
	assert.Contains(t, resp.Errors[0].Message, "expected version 5, found 1")

	resp, res = publishJSON(t, ws, path, "--expect-draft", "1")
	require.NoError(t, res.Err)
	assert.Equal(t, 2, resp.DraftVersion)
}

func TestPublish_RejectedKeepsLiveVersion(t *testing.T) {
	ws := fixture.NewWorkspace(t, fixture.WithSQLite())
	good := ws.WriteFile(t, "good.yaml", fixture.ValidDefinition)
	_, res := publishJSON(t, ws, good)
	require.NoError(t, res.Err)

	// Same id, broken body.
	bad := ws.WriteFile(t, "bad.yaml", `id: triage
name: Ticket triage
payloadSchemaRef: payload.Ticket.v1
steps:
  - id: note
    type: log.write
    config:
      message: "${vars.nothing}"
`)
	resp, res := publishJSON(t, ws, bad)
	assert.Equal(t, shared.ExitInvalidWorkflow, res.ExitCode)
	assert.False(t, resp.Success)
	assert.Equal(t, lifecycle.StatusPublished, resp.Status)
	assert.Equal(t, lifecycle.ValidationError, resp.Validation)
	assert.Zero(t, resp.PublishedVersion)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, workflow.CodeUnknownVariable, resp.Errors[0].Code)

	text := fixture.Execute(t, newRoot(), ws.Args("publish", bad)...)
	assert.Contains(t, text.Stdout, "version 1 stays live")
}

func TestPublish_GeneratesID(t *testing.T) {
	ws := fixture.NewWorkspace(t)
	path := ws.WriteFile(t, "anon.yaml", `name: anonymous
payloadSchemaRef: payload.Order.v1
steps: []
`)
	resp, res := publishJSON(t, ws, path)
	require.NoError(t, res.Err)
	assert.Len(t, resp.WorkflowID, 36)
}

func TestPublish_RedisSchemas(t *testing.T) {
	mr := miniredis.RunT(t)
	store := schemastore.NewWithClient(redisClient(t, mr.Addr()))
	bundle, err := catalog.ParseBundle([]byte(fixture.Registry))
	require.NoError(t, err)
	n, err := store.Import(context.Background(), bundle.SchemaSource())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ws := fixture.NewWorkspace(t, fixture.WithRedis("redis://"+mr.Addr()))
	path := ws.WriteFile(t, "on-ticket.yaml", fixture.TriggeredDefinition)

	resp, res := publishJSON(t, ws, path, "--mode", "inferred")
	require.NoError(t, res.Err, res.Stdout)
	assert.Equal(t, 1, resp.PublishedVersion)

	// Schemas removed from the registry are reported as unregistered.
	require.NoError(t, store.Delete(context.Background(), fixture.TicketRef))
	resp, res = publishJSON(t, ws, path, "--mode", "inferred")
	assert.Equal(t, shared.ExitInvalidWorkflow, res.ExitCode)
	var codes []string
	for _, e := range resp.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, workflow.CodePayloadSchema)
}

func TestPublish_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ws := fixture.NewWorkspace(t, fixture.WithRedis("redis://"+addr))
	path := ws.WriteFile(t, "triage.yaml", fixture.ValidDefinition)

	res := fixture.Execute(t, newRoot(), ws.Args("publish", path, "--json")...)
	assert.Equal(t, shared.ExitFailed, res.ExitCode)
	assert.Contains(t, res.Stdout, shared.ErrorCodeUnavailable)
}
