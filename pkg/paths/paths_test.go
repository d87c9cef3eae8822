package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithExplicitRoot(t *testing.T) {
	root := t.TempDir()

	p, err := New(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "cas"), p.CasDir())
	assert.Equal(t, filepath.Join(root, "state"), p.StateDir())
	assert.Equal(t, filepath.Join(root, "workspaces"), p.WorkspacesDir())
	assert.Equal(t, filepath.Join(root, "cas", "staging"), p.StagingDir())
}

func TestNewEnvOverrides(t *testing.T) {
	casDir := t.TempDir()
	stateDir := t.TempDir()
	wsDir := t.TempDir()

	t.Setenv(EnvCasDir, casDir)
	t.Setenv(EnvStateDir, stateDir)
	t.Setenv(EnvWorkspacesDir, wsDir)

	p, err := New("")
	require.NoError(t, err)

	assert.Equal(t, casDir, p.CasDir())
	assert.Equal(t, stateDir, p.StateDir())
	assert.Equal(t, wsDir, p.WorkspacesDir())
}

func TestWorkspaceRoot(t *testing.T) {
	wsDir := t.TempDir()
	t.Setenv(EnvWorkspacesDir, wsDir)
	t.Setenv(EnvCasDir, t.TempDir())
	t.Setenv(EnvStateDir, t.TempDir())

	p, err := New("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wsDir, "ws-1"), p.WorkspaceRoot("ws-1"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "games"), expandHome("~/games"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "relative", expandHome("relative"))
}
