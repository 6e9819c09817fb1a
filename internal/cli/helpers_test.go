package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it wrote.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// useDirStore points the configuration at a fresh directory store and
// returns its path.
func useDirStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TA2_STORE_BACKEND", "dir")
	t.Setenv("TA2_STORE_PATH", dir)
	t.Setenv("TA2_LOG_LEVEL", "error")
	return dir
}

// decodeData decodes the data payload of a JSON CLI response into v.
func decodeData(t *testing.T, stdout string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "ok", resp.Status, stdout)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
