package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/recur"
	"github.com/xraph/recur/signature"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate_Memory(t *testing.T) {
	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrated memory store\n", out)
}

func TestMaterialize_EmptyOrganization(t *testing.T) {
	out, err := execute(t, "materialize", "--org", "org_1")
	require.NoError(t, err)

	var res recur.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, recur.Result{}, res)
}

func TestMaterialize_FlagErrors(t *testing.T) {
	_, err := execute(t, "materialize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "org")

	_, err = execute(t, "materialize", "--org", "org_1", "--horizon", "tomorrow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --horizon")

	_, err = execute(t, "materialize", "--org", "org_1", "--horizon", "2999-12-31")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beyond the lookahead limit")
}

func TestServe_BadConfig(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: cassandra\n")
	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestFeedToken(t *testing.T) {
	path := writeConfig(t, "feed_secret: fsec_cli\n")

	out, err := execute(t, "feed-token", "--config", path, "--org", "org_1")
	require.NoError(t, err)
	assert.Equal(t, signature.FeedToken("fsec_cli", "org_1")+"\n", out)

	_, err = execute(t, "feed-token", "--org", "org_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed_secret")

	out, err = execute(t, "feed-token", "--new-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, signature.SecretPrefix))
}
