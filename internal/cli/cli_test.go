package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dancode-188/synckit/sdk/go/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("SYNCKIT_AUTH_SECRET", "0123456789abcdef0123456789abcdef")

	out, err := execute(t, "token", "--user", "alice", "--email", "alice@example.com")
	require.NoError(t, err)

	payload, err := auth.DecodeTokenWithoutVerification(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, "alice@example.com", payload.Email)
}

func TestTokenCommand_RequiresUser(t *testing.T) {
	t.Setenv("SYNCKIT_AUTH_SECRET", "0123456789abcdef0123456789abcdef")

	_, err := execute(t, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user id")
}

func TestTokenCommand_RejectsShortSecret(t *testing.T) {
	_, err := execute(t, "token", "--user", "alice", "--secret", "short")
	assert.ErrorIs(t, err, auth.ErrShortSecret)
}

func TestStatusCommand_Offline(t *testing.T) {
	t.Setenv("SYNCKIT_STATE_PATH", filepath.Join(t.TempDir(), "synckit.db"))
	t.Setenv("SYNCKIT_WORKSPACE_ID", "ws-status")

	out, err := execute(t, "status", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "mode:      local")
	assert.Contains(t, out, "workspace: ws-status")
	assert.Contains(t, out, "queued:    0 offline operations")
}

func TestPushCommand_MissingUpdateFile(t *testing.T) {
	t.Setenv("SYNCKIT_STATE_PATH", filepath.Join(t.TempDir(), "synckit.db"))
	t.Setenv("SYNCKIT_WORKSPACE_ID", "ws-1")

	_, err := execute(t, "push", "doc-1", filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read update file")
}
