package schemas

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/internal/cli"
	"github.com/tombee/stepflow/internal/commands/shared"
	"github.com/tombee/stepflow/internal/testing/fixture"
)

func newRoot() *cobra.Command {
	root := cli.NewRootCommand()
	root.AddCommand(NewCommand())
	return root
}

func listRefs(t *testing.T, ws *fixture.Workspace) []string {
	t.Helper()
	res := fixture.Execute(t, newRoot(), ws.Args("schemas", "list", "--json")...)
	require.NoError(t, res.Err, res.Stdout)
	var resp ListResponse
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &resp))
	return resp.Refs
}

func TestList_RegistryFile(t *testing.T) {
	ws := fixture.NewWorkspace(t)
	assert.Equal(t, []string{"payload.Order.v1", fixture.TicketRef}, listRefs(t, ws))

	res := fixture.Execute(t, newRoot(), ws.Args("schemas", "list")...)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, fixture.TicketRef)
}

func TestPushAndRemove(t *testing.T) {
	mr := miniredis.RunT(t)
	ws := fixture.NewWorkspace(t, fixture.WithRedis("redis://"+mr.Addr()))

	assert.Empty(t, listRefs(t, ws))
	res := fixture.Execute(t, newRoot(), ws.Args("schemas", "list")...)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "No schemas registered.")

	res = fixture.Execute(t, newRoot(), ws.Args("schemas", "push", "--json")...)
	require.NoError(t, res.Err, res.Stdout)
	var push PushResponse
	require.NoError(t, json.Unmarshal([]byte(res.Stdout), &push))
	assert.Equal(t, 2, push.Pushed)
	assert.ElementsMatch(t, []string{"payload.Order.v1", fixture.TicketRef}, listRefs(t, ws))

	res = fixture.Execute(t, newRoot(), ws.Args("schemas", "remove", "payload.Order.v1")...)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "removed 1 schema(s)")
	assert.Equal(t, []string{fixture.TicketRef}, listRefs(t, ws))
}

func TestPush_Dir(t *testing.T) {
	mr := miniredis.RunT(t)
	ws := fixture.NewWorkspace(t, fixture.WithRedis("redis://"+mr.Addr()))
	dir := filepath.Join(ws.Dir, "extra")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payload.Refund.v1.json"),
		[]byte(`{"type": "object", "properties": {"amount": {"type": "number"}}}`), 0o644))

	res := fixture.Execute(t, newRoot(), ws.Args("schemas", "push", "--dir", dir)...)
	require.NoError(t, res.Err, res.Stdout)
	assert.Contains(t, res.Stdout, "pushed 1 schema(s)")
	assert.Equal(t, []string{"payload.Refund.v1"}, listRefs(t, ws))
}

func TestPush_RequiresRedis(t *testing.T) {
	ws := fixture.NewWorkspace(t)

	res := fixture.Execute(t, newRoot(), ws.Args("schemas", "push", "--json")...)
	assert.Equal(t, shared.ExitFailed, res.ExitCode)
	assert.Contains(t, res.Stdout, shared.ErrorCodeConfig)
	assert.Contains(t, res.Stdout, "schemas.redis_url")
}
