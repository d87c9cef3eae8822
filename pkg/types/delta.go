package types

// DeltaOperation is one reconciliation decision kind.
type DeltaOperation string

const (
	// DeltaAdd materializes a file that is not present in the workspace.
	DeltaAdd DeltaOperation = "add"

	// DeltaUpdate replaces a tracked file whose hash or source changed.
	DeltaUpdate DeltaOperation = "update"

	// DeltaRemove deletes a tracked file no longer in the desired set.
	DeltaRemove DeltaOperation = "remove"

	// DeltaSkip records a file that is already correct. Emitted so callers
	// can audit the full plan, never executed.
	DeltaSkip DeltaOperation = "skip"
)

// WorkspaceDelta is one ordered reconciliation decision. Deltas are produced
// fresh on every reconciliation pass and are not persisted beyond the
// operation that consumes them.
type WorkspaceDelta struct {
	Operation DeltaOperation

	// File is the desired manifest file for Add/Update/Skip, or the
	// previously tracked file for Remove.
	File ManifestFile

	// WorkspacePath is the resolved absolute destination.
	WorkspacePath string

	// Reason records why the decision was made, for auditability.
	Reason string
}

// IsMutation reports whether executing the delta changes the workspace.
func (d WorkspaceDelta) IsMutation() bool {
	return d.Operation != DeltaSkip
}
