// Package paths provides centralized path handling for loadout. It resolves
// the content store, state, and workspace roots from explicit configuration,
// environment variables, or XDG Base Directory defaults, in that order.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/modforge/loadout/pkg/errors"
)

// Environment variable names
const (
	// EnvCasDir overrides the content-addressable store root.
	EnvCasDir = "LOADOUT_CAS_DIR"

	// EnvStateDir overrides the directory holding persisted workspace state.
	EnvStateDir = "LOADOUT_STATE_DIR"

	// EnvWorkspacesDir overrides the directory workspaces are created under.
	EnvWorkspacesDir = "LOADOUT_WORKSPACES_DIR"
)

// Default directory names. These define loadout's internal on-disk layout
// and are not user-configurable; user-facing paths come through
// WorkspaceConfiguration instead.
const (
	// AppDirName is the directory name for loadout-specific files
	AppDirName = "loadout"

	// CasDirName is the subdirectory holding the content store
	CasDirName = "cas"

	// StateDirName is the subdirectory for persisted workspace records
	StateDirName = "state"

	// WorkspacesDirName is the default subdirectory for workspace trees
	WorkspacesDirName = "workspaces"

	// StagingDirName is the subdirectory for in-flight downloads
	StagingDirName = "staging"
)

// Paths provides centralized path management for loadout
type Paths interface {
	// CasDir returns the content-addressable store root.
	CasDir() string

	// StateDir returns the directory holding persisted WorkspaceInfo records.
	StateDir() string

	// WorkspacesDir returns the directory new workspaces default into.
	WorkspacesDir() string

	// StagingDir returns the scratch directory for downloads awaiting
	// verification and CAS ingest.
	StagingDir() string

	// WorkspaceRoot resolves the directory for one workspace id.
	WorkspaceRoot(workspaceID string) string
}

type paths struct {
	casDir        string
	stateDir      string
	workspacesDir string
}

// New creates a Paths instance rooted at dataRoot. If dataRoot is empty the
// roots are resolved per-directory from the LOADOUT_* environment variables,
// falling back to XDG locations.
func New(dataRoot string) (Paths, error) {
	p := &paths{}

	if dataRoot != "" {
		abs, err := filepath.Abs(expandHome(dataRoot))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInvalidInput, "failed to resolve data root %q", dataRoot)
		}
		p.casDir = filepath.Join(abs, CasDirName)
		p.stateDir = filepath.Join(abs, StateDirName)
		p.workspacesDir = filepath.Join(abs, WorkspacesDirName)
		return p, nil
	}

	p.casDir = resolveDir(EnvCasDir, filepath.Join(xdg.DataHome, AppDirName, CasDirName))
	p.stateDir = resolveDir(EnvStateDir, filepath.Join(xdg.StateHome, AppDirName, StateDirName))
	p.workspacesDir = resolveDir(EnvWorkspacesDir, filepath.Join(xdg.DataHome, AppDirName, WorkspacesDirName))
	return p, nil
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return expandHome(dir)
	}
	return fallback
}

func (p *paths) CasDir() string {
	return p.casDir
}

func (p *paths) StateDir() string {
	return p.stateDir
}

func (p *paths) WorkspacesDir() string {
	return p.workspacesDir
}

func (p *paths) StagingDir() string {
	return filepath.Join(p.casDir, StagingDirName)
}

func (p *paths) WorkspaceRoot(workspaceID string) string {
	return filepath.Join(p.workspacesDir, workspaceID)
}

// expandHome expands a leading ~/ to the user's home directory
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
