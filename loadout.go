// Package loadout assembles the content manifest engine: a content-addressable
// store for deduplicated file bytes, a reconciler that turns manifest
// assignments into minimal workspace deltas, and a manager that materializes
// those deltas into playable workspace directories.
//
// Embedding applications construct an Engine and drive it through the
// Workspaces manager; the sub-packages remain usable individually for callers
// that want to wire their own stack.
package loadout

import (
	"context"

	"github.com/google/uuid"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/filesystem"
	"github.com/modforge/loadout/pkg/logging"
	"github.com/modforge/loadout/pkg/materialize"
	"github.com/modforge/loadout/pkg/paths"
	"github.com/modforge/loadout/pkg/reconciler"
	"github.com/modforge/loadout/pkg/state"
	"github.com/modforge/loadout/pkg/types"
	"github.com/modforge/loadout/pkg/workspace"
)

// Options configures an Engine.
type Options struct {
	// DataRoot places the store, state, and default workspace directories
	// under one explicit root. When empty, each directory is resolved from
	// the LOADOUT_* environment variables and XDG defaults.
	DataRoot string

	// Verbosity sets log detail: 0 warn, 1 info, 2 debug, 3+ trace.
	Verbosity int

	// Downloader fetches remote manifest files. Optional; without one,
	// remote sources fail with DOWNLOAD_FAILED.
	Downloader types.Downloader

	// Progress receives a callback after every applied delta.
	Progress types.ProgressFunc
}

// Engine is the assembled manifest engine.
type Engine struct {
	Paths      paths.Paths
	Content    *cas.Store
	States     *state.Store
	Workspaces *workspace.Manager
}

// New builds an Engine over the real filesystem, creating the on-disk layout
// as needed.
func New(opts Options) (*Engine, error) {
	logging.SetupLogger(opts.Verbosity)

	p, err := paths.New(opts.DataRoot)
	if err != nil {
		return nil, err
	}

	fsys := filesystem.NewOS()
	content, err := cas.New(fsys, p.CasDir())
	if err != nil {
		return nil, err
	}
	states, err := state.New(fsys, p.StateDir())
	if err != nil {
		return nil, err
	}

	mat := materialize.New(fsys, materialize.NewLinker(fsys))

	wsOpts := []workspace.Option{workspace.WithStagingDir(p.StagingDir())}
	if opts.Downloader != nil {
		wsOpts = append(wsOpts, workspace.WithDownloader(opts.Downloader))
	}
	if opts.Progress != nil {
		wsOpts = append(wsOpts, workspace.WithProgress(opts.Progress))
	}

	return &Engine{
		Paths:      p,
		Content:    content,
		States:     states,
		Workspaces: workspace.New(fsys, content, mat, states, wsOpts...),
	}, nil
}

// Prepare materializes the workspace described by cfg. A configuration
// without a RootPath gets the default workspace directory for its id.
func (e *Engine) Prepare(ctx context.Context, cfg types.WorkspaceConfiguration) (*types.WorkspaceInfo, error) {
	e.applyDefaults(&cfg)
	return e.Workspaces.Prepare(ctx, cfg)
}

// Plan computes the delta plan for cfg without touching the filesystem.
func (e *Engine) Plan(cfg types.WorkspaceConfiguration) (reconciler.Plan, error) {
	e.applyDefaults(&cfg)
	return e.Workspaces.Plan(cfg)
}

// Remove deletes a workspace tree and its persisted record.
func (e *Engine) Remove(ctx context.Context, workspaceID string) error {
	return e.Workspaces.Remove(ctx, workspaceID)
}

func (e *Engine) applyDefaults(cfg *types.WorkspaceConfiguration) {
	if cfg.RootPath == "" {
		if cfg.WorkspaceID == "" {
			cfg.WorkspaceID = uuid.NewString()
		}
		cfg.RootPath = e.Paths.WorkspaceRoot(cfg.WorkspaceID)
	}
}
