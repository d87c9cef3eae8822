package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/materialize"
	"github.com/modforge/loadout/pkg/reconciler"
	"github.com/modforge/loadout/pkg/types"
)

// prepare runs one full preparation for a validated configuration. It is
// always called under the per-workspace single-flight lock.
func (m *Manager) prepare(ctx context.Context, cfg types.WorkspaceConfiguration) (*types.WorkspaceInfo, error) {
	log := m.logger.With().Str("workspace", cfg.WorkspaceID).Logger()
	log.Info().
		Int("manifests", len(cfg.Manifests)).
		Str("strategy", string(cfg.Strategy)).
		Bool("forceRecreate", cfg.ForceRecreate).
		Msg("preparing workspace")

	previous, err := m.state.Load(cfg.WorkspaceID)
	if err != nil {
		return nil, err
	}

	var plan reconciler.Plan
	if cfg.ReconciliationDeltas != nil {
		// A precomputed plan is applied verbatim: dry-run/apply separation.
		plan = reconciler.Plan{Deltas: cfg.ReconciliationDeltas}
	} else {
		plan, err = m.rec.Reconcile(cfg, previous)
		if err != nil {
			return nil, err
		}
	}

	issues := append([]types.ValidationIssue{}, plan.Issues...)

	tracked := map[string]types.TrackedFile{}
	if previous != nil && !cfg.ForceRecreate {
		tracked = previous.TrackedByPath()
	}

	execIssues, copied, err := m.executeDeltas(ctx, cfg, plan.Deltas, tracked)
	issues = append(issues, execIssues...)
	if err != nil {
		return nil, err
	}

	issues = append(issues, m.validateAfterPreparation(plan.Deltas, copied)...)

	info := m.buildInfo(cfg, tracked, issues)
	if err := m.state.Save(info); err != nil {
		return nil, err
	}

	log.Info().
		Bool("prepared", info.IsPrepared).
		Int("files", info.FileCount).
		Str("totalSize", humanize.Bytes(uint64(info.TotalSize))).
		Int("issues", len(info.ValidationIssues)).
		Msg("workspace preparation finished")

	return info, nil
}

// executeDeltas applies the plan in order, collecting per-delta failures as
// issues and keeping the tracked inventory current. Only a cancellation or
// an out-of-space condition stops the loop early; everything else is
// best-effort so the caller can judge the partially prepared result.
func (m *Manager) executeDeltas(ctx context.Context, cfg types.WorkspaceConfiguration, deltas []types.WorkspaceDelta, tracked map[string]types.TrackedFile) ([]types.ValidationIssue, map[string]string, error) {
	var issues []types.ValidationIssue
	copied := map[string]string{}
	total := len(deltas)

	for i, delta := range deltas {
		if err := ctx.Err(); err != nil {
			return issues, copied, err
		}

		switch delta.Operation {
		case types.DeltaSkip:
			// Already correct; keep it tracked.

		case types.DeltaRemove:
			if err := m.removeEntry(delta.WorkspacePath); err != nil {
				issues = append(issues, types.ValidationIssue{
					Severity: types.SeverityError,
					Path:     delta.File.RelativePath,
					Message:  fmt.Sprintf("failed to remove: %v", err),
				})
			} else {
				delete(tracked, delta.File.RelativePath)
			}

		case types.DeltaAdd, types.DeltaUpdate:
			entry, issue, fatal := m.applyMutation(ctx, cfg, delta, copied)
			if issue != nil {
				issues = append(issues, *issue)
			}
			if entry != nil {
				tracked[entry.RelativePath] = *entry
			}
			if fatal {
				m.emitProgress(i+1, total, delta)
				issues = append(issues, types.ValidationIssue{
					Severity: types.SeverityCritical,
					Path:     delta.File.RelativePath,
					Message:  "insufficient disk space, remaining changes were not applied",
				})
				return issues, copied, nil
			}
		}

		m.emitProgress(i+1, total, delta)
	}

	return issues, copied, nil
}

// applyMutation materializes one Add/Update delta. It returns the tracked
// entry on success, an issue on any outcome worth recording, and fatal=true
// when the disk is full and the run must stop. Files placed by full copy are
// recorded in copied (path to expected hash) for the post-run hash recheck.
func (m *Manager) applyMutation(ctx context.Context, cfg types.WorkspaceConfiguration, delta types.WorkspaceDelta, copied map[string]string) (*types.TrackedFile, *types.ValidationIssue, bool) {
	src, hash, size, err := m.resolveSource(ctx, delta.File)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrHashMismatch) {
			// Integrity failures are never recovered automatically.
			return nil, &types.ValidationIssue{
				Severity: types.SeverityCritical,
				Path:     delta.File.RelativePath,
				Message:  fmt.Sprintf("content failed hash verification: %v", err),
				Expected: delta.File.Hash,
			}, false
		}
		severity := types.SeverityError
		if !delta.File.IsRequired {
			severity = types.SeverityWarning
		}
		return nil, &types.ValidationIssue{
			Severity: severity,
			Path:     delta.File.RelativePath,
			Message:  fmt.Sprintf("no usable source: %v", err),
		}, false
	}

	result, err := m.mat.Materialize(ctx, src, delta.WorkspacePath, delta.File, cfg.Strategy)
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrInsufficientSpace) {
			return nil, nil, true
		}
		return nil, &types.ValidationIssue{
			Severity: types.SeverityError,
			Path:     delta.File.RelativePath,
			Message:  fmt.Sprintf("materialization failed: %v", err),
		}, false
	}

	if result.Method == materialize.MethodCopy && hash != "" {
		copied[delta.WorkspacePath] = hash
	}

	var issue *types.ValidationIssue
	if result.FellBack {
		// Recovered locally; recorded for diagnosability, never fatal.
		issue = &types.ValidationIssue{
			Severity: types.SeverityInfo,
			Path:     delta.File.RelativePath,
			Message:  fmt.Sprintf("%s unavailable, fell back to %s: %s", result.FallbackFrom, result.Method, result.Reason),
		}
	}

	return &types.TrackedFile{
		RelativePath: delta.File.RelativePath,
		Hash:         hash,
		SourceType:   delta.File.SourceType,
		SourcePath:   delta.File.SourcePath,
		Size:         size,
	}, issue, false
}

// resolveSource produces a local path holding the file's bytes, preferring
// the CAS. Local sources with a declared hash and all downloads are ingested
// into the CAS first, so every workspace sharing the content links to one
// deduplicated copy and the bytes are verified exactly once.
func (m *Manager) resolveSource(ctx context.Context, file types.ManifestFile) (src, hash string, size int64, err error) {
	if file.Hash != "" && m.content.Has(file.Hash) {
		return m.sourceFromCas(file.Hash)
	}

	if file.SourcePath != "" {
		if file.Hash == "" {
			// No declared hash: serve straight from the source, hashing for
			// the inventory without CAS ingest.
			h, herr := m.hashLocal(file.SourcePath)
			if herr != nil {
				return "", "", 0, herr
			}
			info, serr := m.fs.Stat(file.SourcePath)
			if serr != nil {
				return "", "", 0, errors.Wrapf(serr, errors.ErrNotFound, "source %s unavailable", file.SourcePath)
			}
			return file.SourcePath, h, info.Size(), nil
		}
		stored, serr := m.content.Store(ctx, file.SourcePath, file.Hash)
		if serr != nil {
			return "", "", 0, serr
		}
		return m.sourceFromCas(stored)
	}

	if file.DownloadURL != "" {
		stored, derr := m.download(ctx, file)
		if derr != nil {
			return "", "", 0, derr
		}
		return m.sourceFromCas(stored)
	}

	return "", "", 0, errors.Newf(errors.ErrContentNotFound, "file %s has no source: not in store, no local path, no url", file.RelativePath)
}

func (m *Manager) sourceFromCas(hash string) (string, string, int64, error) {
	path, err := m.content.ContentPath(hash)
	if err != nil {
		return "", "", 0, err
	}
	size, err := m.content.Size(hash)
	if err != nil {
		return "", "", 0, err
	}
	return path, hash, size, nil
}

func (m *Manager) hashLocal(path string) (string, error) {
	h, err := cas.HashFile(m.fs, path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrNotFound, "source %s unavailable", path)
	}
	return h, nil
}

// download delegates the fetch to the injected downloader, verifies the
// payload against the manifest hash while ingesting it into the CAS, and
// cleans up the staging file either way.
func (m *Manager) download(ctx context.Context, file types.ManifestFile) (string, error) {
	if m.downloader == nil {
		return "", errors.Newf(errors.ErrDownloadFailed, "file %s needs %s but no downloader is configured", file.RelativePath, file.DownloadURL)
	}

	staging := m.stagingDir
	if staging == "" {
		staging = filepath.Join(m.content.Root(), "staging")
	}
	if err := m.fs.MkdirAll(staging, 0755); err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to create staging directory")
	}
	dest := filepath.Join(staging, uuid.NewString())
	defer func() { _ = m.fs.Remove(dest) }()

	if err := m.downloader.Download(ctx, file.DownloadURL, dest, file.Hash); err != nil {
		return "", errors.Wrapf(err, errors.ErrDownloadFailed, "failed to download %s", file.DownloadURL)
	}

	// Hash verification happens here, not in the downloader: a mismatch is
	// HASH_MISMATCH and the bytes never enter the store.
	return m.content.Store(ctx, dest, file.Hash)
}

// removeEntry deletes whatever sits at path; a missing entry is success.
func (m *Manager) removeEntry(path string) error {
	info, err := m.fs.Lstat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return m.fs.RemoveAll(path)
	}
	return m.fs.Remove(path)
}

func (m *Manager) emitProgress(processed, total int, delta types.WorkspaceDelta) {
	if m.progress == nil {
		return
	}
	m.progress(types.Progress{
		Processed:   processed,
		Total:       total,
		CurrentFile: delta.File.RelativePath,
		Operation:   delta.Operation,
	})
}

// buildInfo assembles the resulting WorkspaceInfo from the final inventory.
func (m *Manager) buildInfo(cfg types.WorkspaceConfiguration, tracked map[string]types.TrackedFile, issues []types.ValidationIssue) *types.WorkspaceInfo {
	paths := make([]string, 0, len(tracked))
	for p := range tracked {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]types.TrackedFile, 0, len(paths))
	var totalSize int64
	for _, p := range paths {
		files = append(files, tracked[p])
		totalSize += tracked[p].Size
	}

	manifestIDs := make([]string, 0, len(cfg.Manifests))
	for _, man := range cfg.Manifests {
		if man != nil {
			manifestIDs = append(manifestIDs, man.Key())
		}
	}

	info := &types.WorkspaceInfo{
		WorkspaceID:      cfg.WorkspaceID,
		RootPath:         cfg.RootPath,
		WorkingDirectory: cfg.RootPath,
		ManifestIDs:      manifestIDs,
		Files:            files,
		TotalSize:        totalSize,
		FileCount:        len(files),
		ValidationIssues: issues,
		PreparedAt:       time.Now().UTC(),
	}
	info.IsPrepared = types.ValidationResult{Issues: issues}.IsValid()
	info.ExecutablePath = m.resolveExecutable(cfg)
	return info
}

// resolveExecutable picks the workspace's launch target: the configured hint
// first, else the first required executable in manifest order.
func (m *Manager) resolveExecutable(cfg types.WorkspaceConfiguration) string {
	if cfg.ExecutableHint != "" {
		return filepath.Join(cfg.RootPath, filepath.FromSlash(cfg.ExecutableHint))
	}
	for _, man := range cfg.Manifests {
		if man == nil {
			continue
		}
		for _, f := range man.Files {
			if f.IsExecutable && f.IsRequired {
				return filepath.Join(cfg.RootPath, filepath.FromSlash(f.RelativePath))
			}
		}
	}
	return ""
}
