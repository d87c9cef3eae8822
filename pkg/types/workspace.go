package types

import "time"

// WorkspaceStrategy selects how manifest files are materialized into a
// workspace directory.
type WorkspaceStrategy string

const (
	// StrategyFullCopy copies every file. Highest disk cost, strongest
	// isolation: edits to one workspace never affect another.
	StrategyFullCopy WorkspaceStrategy = "full-copy"

	// StrategySymlinkOnly symlinks every file into the workspace, falling
	// back to copy where the platform refuses symlinks.
	StrategySymlinkOnly WorkspaceStrategy = "symlink-only"

	// StrategyHardlinkOnly hardlinks every file. Fails fast on cross-volume
	// destinations; the caller decides whether to retry with another
	// strategy.
	StrategyHardlinkOnly WorkspaceStrategy = "hardlink-only"

	// StrategyHybridCopySymlink copies small/editable files and links large
	// binary assets, per the deterministic policy in pkg/materialize.
	StrategyHybridCopySymlink WorkspaceStrategy = "hybrid"
)

// WorkspaceConfiguration is the request driving one workspace preparation.
type WorkspaceConfiguration struct {
	// WorkspaceID identifies the workspace across preparations. Assigned a
	// fresh UUID by the manager when empty.
	WorkspaceID string

	// Manifests assigned to the workspace, in priority order: on a relative
	// path collision, the later manifest wins.
	Manifests []*ContentManifest

	Strategy WorkspaceStrategy

	// RootPath is the workspace directory.
	RootPath string

	// BaseInstallPath points at the detected base installation that local
	// relative sources resolve against.
	BaseInstallPath string

	// SourceOverrides remaps the source directory per manifest id, for
	// installations found somewhere other than the manifest's recorded
	// source paths.
	SourceOverrides map[string]string

	// ForceRecreate bypasses incremental reconciliation and rebuilds every
	// desired file. Used for corruption recovery.
	ForceRecreate bool

	// SkipCleanup suppresses Remove deltas for previously tracked files
	// absent from the new desired set.
	SkipCleanup bool

	// ReconciliationDeltas, when non-nil, is a previously computed plan the
	// manager executes verbatim instead of reconciling again. Enables
	// dry-run/apply separation.
	ReconciliationDeltas []WorkspaceDelta

	// ExecutableHint is the workspace-relative path of the main executable.
	// When empty, the first executable required file is used.
	ExecutableHint string
}

// TrackedFile is one materialized file as recorded in the persisted
// workspace inventory. The reconciler's view of "current state" is this
// inventory, never a live filesystem scan.
type TrackedFile struct {
	RelativePath string     `toml:"path"`
	Hash         string     `toml:"hash,omitempty"`
	SourceType   SourceType `toml:"source-type"`
	SourcePath   string     `toml:"source,omitempty"`
	Size         int64      `toml:"size,omitempty"`
}

// IssueSeverity grades a validation issue.
type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "info"
	SeverityWarning  IssueSeverity = "warning"
	SeverityError    IssueSeverity = "error"
	SeverityCritical IssueSeverity = "critical"
)

// blocking reports whether the severity makes a workspace unusable.
func (s IssueSeverity) blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// ValidationIssue is one structured finding from reconciliation,
// materialization, or post-preparation validation. Suitable for direct
// display without re-deriving context from logs.
type ValidationIssue struct {
	Severity IssueSeverity `toml:"severity"`
	Path     string        `toml:"path,omitempty"`
	Message  string        `toml:"message"`
	Expected string        `toml:"expected,omitempty"`
	Actual   string        `toml:"actual,omitempty"`
}

// ValidationResult aggregates issues from a validation pass.
type ValidationResult struct {
	Issues []ValidationIssue
}

// IsValid reports whether no issue is Error or Critical.
func (r ValidationResult) IsValid() bool {
	for _, issue := range r.Issues {
		if issue.Severity.blocking() {
			return false
		}
	}
	return true
}

// WorkspaceInfo describes a prepared (or partially prepared) workspace. It
// is persisted between runs; the reconciler's correctness depends on the
// inventory round-tripping exactly.
type WorkspaceInfo struct {
	WorkspaceID      string            `toml:"workspace-id"`
	RootPath         string            `toml:"root-path"`
	ExecutablePath   string            `toml:"executable-path,omitempty"`
	WorkingDirectory string            `toml:"working-directory,omitempty"`
	IsPrepared       bool              `toml:"prepared"`
	ManifestIDs      []string          `toml:"manifest-ids"`
	Files            []TrackedFile     `toml:"files,omitempty"`
	TotalSize        int64             `toml:"total-size"`
	FileCount        int               `toml:"file-count"`
	ValidationIssues []ValidationIssue `toml:"validation-issues,omitempty"`
	PreparedAt       time.Time         `toml:"prepared-at"`
}

// TrackedByPath indexes the inventory by relative path.
func (w *WorkspaceInfo) TrackedByPath() map[string]TrackedFile {
	m := make(map[string]TrackedFile, len(w.Files))
	for _, f := range w.Files {
		m[f.RelativePath] = f
	}
	return m
}
