// Package workspace orchestrates workspace preparation: it drives the
// reconciler, executes the resulting deltas through the materialization
// service, validates the outcome, and persists the WorkspaceInfo record the
// next reconciliation starts from.
package workspace

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/logging"
	"github.com/modforge/loadout/pkg/materialize"
	"github.com/modforge/loadout/pkg/reconciler"
	"github.com/modforge/loadout/pkg/state"
	"github.com/modforge/loadout/pkg/types"
)

// Manager prepares workspaces. Preparation is single-flight per workspace
// id: concurrent Prepare calls for the same id share one in-flight
// operation, while different ids run fully in parallel since each owns a
// distinct destination tree.
type Manager struct {
	fs         types.FS
	content    *cas.Store
	mat        *materialize.Service
	state      *state.Store
	rec        *reconciler.Reconciler
	downloader types.Downloader
	progress   types.ProgressFunc
	stagingDir string
	group      singleflight.Group
	logger     zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithDownloader injects the collaborator that fetches RemoteDownload
// sources. Without one, remote files fail with DOWNLOAD_FAILED.
func WithDownloader(d types.Downloader) Option {
	return func(m *Manager) { m.downloader = d }
}

// WithProgress registers a progress callback invoked after every delta.
func WithProgress(f types.ProgressFunc) Option {
	return func(m *Manager) { m.progress = f }
}

// WithStagingDir overrides where downloads land before verification and CAS
// ingest. Defaults to a staging directory under the CAS root.
func WithStagingDir(dir string) Option {
	return func(m *Manager) { m.stagingDir = dir }
}

// New creates a workspace manager.
func New(fsys types.FS, content *cas.Store, mat *materialize.Service, stateStore *state.Store, opts ...Option) *Manager {
	m := &Manager{
		fs:      fsys,
		content: content,
		mat:     mat,
		state:   stateStore,
		rec:     reconciler.New(content),
		logger:  logging.GetLogger("workspace"),
		active:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Plan computes the reconciliation plan for a configuration without touching
// the filesystem. Feed the resulting deltas back through
// WorkspaceConfiguration.ReconciliationDeltas to apply exactly this plan.
func (m *Manager) Plan(cfg types.WorkspaceConfiguration) (reconciler.Plan, error) {
	if err := validateConfig(&cfg); err != nil {
		return reconciler.Plan{}, err
	}
	previous, err := m.state.Load(cfg.WorkspaceID)
	if err != nil {
		return reconciler.Plan{}, err
	}
	return m.rec.Reconcile(cfg, previous)
}

// Prepare reconciles and materializes the workspace described by cfg,
// returning the resulting WorkspaceInfo. Per-delta failures do not abort the
// run: remaining independent deltas are still applied and every failure is
// recorded as a validation issue, with IsPrepared reporting the aggregate.
// Reconciliation-level failures (required file unresolvable, invalid
// configuration) return an error instead.
func (m *Manager) Prepare(ctx context.Context, cfg types.WorkspaceConfiguration) (*types.WorkspaceInfo, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	result, err, shared := m.group.Do(cfg.WorkspaceID, func() (interface{}, error) {
		if !m.acquire(cfg.WorkspaceID) {
			return nil, errors.Newf(errors.ErrWorkspaceBusy, "workspace %s has a removal in flight", cfg.WorkspaceID)
		}
		defer m.release(cfg.WorkspaceID)
		return m.prepare(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug().Str("workspace", cfg.WorkspaceID).Msg("joined in-flight preparation")
	}
	return result.(*types.WorkspaceInfo), nil
}

// Remove deletes a workspace tree and its persisted record. A removal never
// joins or races an in-flight preparation for the same id: it is rejected
// with WORKSPACE_BUSY instead. CAS content is untouched: the store holds no
// back-references, and reclaiming space is the job of an external garbage
// collector scanning all workspace records.
func (m *Manager) Remove(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return errors.New(errors.ErrInvalidInput, "workspace id must not be empty")
	}
	if !m.acquire(workspaceID) {
		return errors.Newf(errors.ErrWorkspaceBusy, "workspace %s has an operation in flight", workspaceID)
	}
	defer m.release(workspaceID)

	info, err := m.state.Load(workspaceID)
	if err != nil {
		return err
	}
	if info != nil && info.RootPath != "" {
		if err := m.fs.RemoveAll(info.RootPath); err != nil {
			return errors.Wrapf(err, errors.ErrWorkspaceInvalid, "failed to remove workspace tree %s", info.RootPath)
		}
	}
	return m.state.Delete(workspaceID)
}

// acquire marks a workspace as having an operation in flight. It fails
// instead of blocking: concurrent preparations already share through the
// single-flight group, so a failed acquire always means a conflicting
// operation kind.
func (m *Manager) acquire(workspaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[workspaceID]; busy {
		return false
	}
	m.active[workspaceID] = struct{}{}
	return true
}

func (m *Manager) release(workspaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, workspaceID)
}

func validateConfig(cfg *types.WorkspaceConfiguration) error {
	if cfg.RootPath == "" {
		return errors.New(errors.ErrInvalidInput, "workspace root path must not be empty")
	}
	if len(cfg.Manifests) == 0 && cfg.ReconciliationDeltas == nil {
		return errors.New(errors.ErrInvalidInput, "workspace configuration names no manifests")
	}
	if cfg.WorkspaceID == "" {
		cfg.WorkspaceID = uuid.NewString()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = types.StrategyHybridCopySymlink
	}
	return nil
}
