// Package reconciler computes the minimal ordered set of workspace changes
// needed to move a workspace from its previously tracked state to a newly
// desired manifest set. It works entirely on declared state: the previous
// WorkspaceInfo inventory, never a live filesystem scan.
package reconciler

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/logging"
	"github.com/modforge/loadout/pkg/types"
)

// ContentChecker answers whether content for a hash is already stored.
// *cas.Store satisfies it.
type ContentChecker interface {
	Has(hash string) bool
}

// Plan is the outcome of one reconciliation pass: an ordered delta list plus
// non-fatal findings. All Remove deltas precede any Add/Update that reuses
// the same path.
type Plan struct {
	Deltas []types.WorkspaceDelta
	Issues []types.ValidationIssue
}

// Mutations counts the deltas that change the workspace.
func (p Plan) Mutations() int {
	n := 0
	for _, d := range p.Deltas {
		if d.IsMutation() {
			n++
		}
	}
	return n
}

// Reconciler computes workspace deltas.
type Reconciler struct {
	content ContentChecker
	logger  zerolog.Logger
}

// New creates a Reconciler. content may be nil when no CAS is available, in
// which case content-addressed files with no other source are treated as
// unresolvable.
func New(content ContentChecker) *Reconciler {
	return &Reconciler{
		content: content,
		logger:  logging.GetLogger("reconciler"),
	}
}

// desiredEntry is one path's winning manifest file plus its provenance.
type desiredEntry struct {
	file       types.ManifestFile
	manifest   string
	overrodeBy string
}

// Reconcile compares the configured manifest set against the previous
// workspace inventory and returns the ordered delta plan.
//
// Path collisions across manifests resolve last-writer-wins by manifest
// order; the override is recorded on the winning delta's Reason and logged,
// since it is a silent-override point.
func (r *Reconciler) Reconcile(cfg types.WorkspaceConfiguration, previous *types.WorkspaceInfo) (Plan, error) {
	plan := Plan{}

	desired, err := r.desiredState(cfg, &plan)
	if err != nil {
		return Plan{}, err
	}

	tracked := map[string]types.TrackedFile{}
	if previous != nil {
		tracked = previous.TrackedByPath()
	}

	// Removes first: paths tracked before but absent from the desired set.
	// Emitting them ahead of adds/updates guarantees a path whose source
	// type changes is deleted before it is recreated.
	if !cfg.SkipCleanup {
		removePaths := make([]string, 0)
		for path := range tracked {
			if _, wanted := desired[path]; !wanted {
				removePaths = append(removePaths, path)
			}
		}
		sort.Strings(removePaths)
		for _, path := range removePaths {
			old := tracked[path]
			plan.Deltas = append(plan.Deltas, types.WorkspaceDelta{
				Operation: types.DeltaRemove,
				File: types.ManifestFile{
					RelativePath: old.RelativePath,
					Hash:         old.Hash,
					SourceType:   old.SourceType,
					Size:         old.Size,
				},
				WorkspacePath: workspacePath(cfg.RootPath, path),
				Reason:        "no longer in desired manifest set",
			})
		}
	}

	desiredPaths := make([]string, 0, len(desired))
	for path := range desired {
		desiredPaths = append(desiredPaths, path)
	}
	sort.Strings(desiredPaths)

	for _, path := range desiredPaths {
		entry := desired[path]
		delta := types.WorkspaceDelta{
			File:          entry.file,
			WorkspacePath: workspacePath(cfg.RootPath, path),
		}

		prev, existed := tracked[path]
		switch {
		case cfg.ForceRecreate:
			delta.Operation = types.DeltaAdd
			delta.Reason = "force recreate"
		case !existed:
			delta.Operation = types.DeltaAdd
			delta.Reason = fmt.Sprintf("new file from %s", entry.manifest)
		case entry.file.Hash != "" && prev.Hash != entry.file.Hash:
			delta.Operation = types.DeltaUpdate
			delta.Reason = "content hash changed"
		case prev.SourceType != entry.file.SourceType:
			// Same bytes, different provenance: the on-disk entry may be a
			// link that must become a real file, or vice versa.
			delta.Operation = types.DeltaUpdate
			delta.Reason = fmt.Sprintf("source changed from %s to %s", prev.SourceType, entry.file.SourceType)
		case entry.file.Hash == "" && prev.SourcePath != entry.file.SourcePath:
			// No declared hash to compare: the tracked hash was computed at
			// apply time, so only a changed origin forces re-materialization.
			delta.Operation = types.DeltaUpdate
			delta.Reason = fmt.Sprintf("source path changed to %s", entry.file.SourcePath)
		case entry.file.Hash == "" && entry.file.Size > 0 && prev.Size != entry.file.Size:
			delta.Operation = types.DeltaUpdate
			delta.Reason = "declared size changed"
		case entry.file.Hash == "":
			delta.Operation = types.DeltaSkip
			delta.Reason = "source unchanged"
		default:
			delta.Operation = types.DeltaSkip
			delta.Reason = "hash unchanged"
		}

		if entry.overrodeBy != "" && delta.Operation != types.DeltaSkip {
			delta.Reason += fmt.Sprintf(" (path overridden by %s)", entry.overrodeBy)
		}
		plan.Deltas = append(plan.Deltas, delta)
	}

	r.logger.Debug().
		Int("deltas", len(plan.Deltas)).
		Int("mutations", plan.Mutations()).
		Bool("forceRecreate", cfg.ForceRecreate).
		Msg("reconciliation computed")

	return plan, nil
}

// desiredState builds the RelativePath -> winning file mapping across the
// configured manifests, applying source overrides and resolvability policy.
func (r *Reconciler) desiredState(cfg types.WorkspaceConfiguration, plan *Plan) (map[string]desiredEntry, error) {
	desired := make(map[string]desiredEntry)

	for _, m := range cfg.Manifests {
		if m == nil {
			continue
		}
		override := cfg.SourceOverrides[m.ID]
		for _, f := range m.Files {
			file := f
			if override != "" && file.SourceType == types.SourceLocal {
				file.SourcePath = filepath.Join(override, filepath.FromSlash(file.RelativePath))
			}

			if existing, collided := desired[file.RelativePath]; collided {
				r.logger.Debug().
					Str("path", file.RelativePath).
					Str("loser", existing.manifest).
					Str("winner", m.Key()).
					Msg("path collision, later manifest wins")
				desired[file.RelativePath] = desiredEntry{
					file:       file,
					manifest:   m.Key(),
					overrodeBy: m.Key(),
				}
				continue
			}
			desired[file.RelativePath] = desiredEntry{file: file, manifest: m.Key()}
		}
	}

	// Resolvability applies to the winning entry per path. An overridden
	// file never blocks reconciliation: only what would actually be
	// materialized has to resolve.
	paths := make([]string, 0, len(desired))
	for path := range desired {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		entry := desired[path]
		if r.resolvable(entry.file) {
			continue
		}
		if entry.file.IsRequired {
			return nil, errors.Newf(errors.ErrRequiredFileUnresolvable,
				"required file %s from %s has no resolvable source", path, entry.manifest).
				WithDetail("path", path).
				WithDetail("manifest", entry.manifest)
		}
		plan.Issues = append(plan.Issues, types.ValidationIssue{
			Severity: types.SeverityWarning,
			Path:     path,
			Message:  fmt.Sprintf("optional file from %s has no resolvable source, skipped", entry.manifest),
		})
		delete(desired, path)
	}

	return desired, nil
}

// resolvable reports whether some source can produce the file's bytes:
// the CAS already has them, or the file declares a usable origin.
func (r *Reconciler) resolvable(f types.ManifestFile) bool {
	if f.Hash != "" && r.content != nil && r.content.Has(f.Hash) {
		return true
	}
	switch f.SourceType {
	case types.SourceLocal:
		return f.SourcePath != ""
	case types.SourceRemoteDownload:
		return f.DownloadURL != ""
	default:
		// Content-addressed with no CAS hit and no other origin.
		return false
	}
}

func workspacePath(root, relative string) string {
	return filepath.Join(root, filepath.FromSlash(relative))
}
