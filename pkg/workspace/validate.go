package workspace

import (
	"fmt"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/types"
)

// validateAfterPreparation checks the physical outcome of a run against the
// plan: every non-removed desired file must resolve (links are followed),
// a declared size must match the resolved entry, and files placed by full
// copy this run are re-hashed. Linked files are not re-hashed; their bytes
// are the verified store object itself.
func (m *Manager) validateAfterPreparation(deltas []types.WorkspaceDelta, copied map[string]string) []types.ValidationIssue {
	var issues []types.ValidationIssue

	for _, delta := range deltas {
		if delta.Operation == types.DeltaRemove {
			continue
		}

		// Stat follows links: a symlinked file only counts as present when
		// its target resolves, otherwise a dangling link would validate
		// clean while reads fail.
		info, err := m.fs.Stat(delta.WorkspacePath)
		if err != nil {
			severity := types.SeverityWarning
			if delta.File.IsRequired {
				severity = types.SeverityCritical
			}
			message := "file missing after preparation"
			if _, lerr := m.fs.Lstat(delta.WorkspacePath); lerr == nil {
				message = "link target missing after preparation"
			}
			issues = append(issues, types.ValidationIssue{
				Severity: severity,
				Path:     delta.File.RelativePath,
				Message:  message,
			})
			continue
		}

		if delta.File.Size > 0 && info.Size() != delta.File.Size {
			issues = append(issues, types.ValidationIssue{
				Severity: types.SeverityError,
				Path:     delta.File.RelativePath,
				Message:  "size mismatch after preparation",
				Expected: fmt.Sprintf("%d", delta.File.Size),
				Actual:   fmt.Sprintf("%d", info.Size()),
			})
			continue
		}

		expected, wasCopied := copied[delta.WorkspacePath]
		if !wasCopied {
			continue
		}
		actual, err := cas.HashFile(m.fs, delta.WorkspacePath)
		if err != nil {
			issues = append(issues, types.ValidationIssue{
				Severity: types.SeverityError,
				Path:     delta.File.RelativePath,
				Message:  fmt.Sprintf("failed to verify copied file: %v", err),
			})
			continue
		}
		if actual != expected {
			issues = append(issues, types.ValidationIssue{
				Severity: types.SeverityCritical,
				Path:     delta.File.RelativePath,
				Message:  "copied file failed hash verification",
				Expected: expected,
				Actual:   actual,
			})
		}
	}

	return issues
}
