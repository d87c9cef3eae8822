package materialize

import (
	"path/filepath"
	"strings"

	"github.com/modforge/loadout/pkg/types"
)

// hybridCopyThreshold is the size below which hybrid materialization copies
// instead of linking. Small files are cheap to duplicate and are the ones
// users edit in place.
const hybridCopyThreshold = 256 * 1024

// copyExtensions are file types the hybrid strategy always copies: config
// and text files users may edit per-workspace, where a shared link would
// leak edits into every other workspace.
var copyExtensions = map[string]struct{}{
	".cfg":        {},
	".conf":       {},
	".ini":        {},
	".json":       {},
	".properties": {},
	".toml":       {},
	".txt":        {},
	".xml":        {},
	".yaml":       {},
	".yml":        {},
}

// chainFor returns the ordered list of materialization attempts for a
// strategy. The first method that succeeds wins; later entries are
// fallbacks taken only on capability errors.
func chainFor(strategy types.WorkspaceStrategy, file types.ManifestFile) []Method {
	switch strategy {
	case types.StrategySymlinkOnly:
		return []Method{MethodSymlink, MethodCopy}
	case types.StrategyHardlinkOnly:
		return []Method{MethodHardlink}
	case types.StrategyHybridCopySymlink:
		return hybridChain(file)
	default:
		return []Method{MethodCopy}
	}
}

// hybridChain is the per-file policy for StrategyHybridCopySymlink. It is a
// pure function of file metadata:
//
//   - executables are copied (must be runnable regardless of link support,
//     and per-workspace patching must not touch shared bytes)
//   - known config/text extensions are copied (editable per workspace)
//   - files smaller than hybridCopyThreshold are copied
//   - everything else (large binary assets) is symlinked, falling back to
//     hardlink, then copy
//
// An unknown size (0) is treated as large, since manifest producers omit
// sizes mainly for big CAS-backed assets.
func hybridChain(file types.ManifestFile) []Method {
	if file.IsExecutable {
		return []Method{MethodCopy}
	}
	ext := strings.ToLower(filepath.Ext(file.RelativePath))
	if _, ok := copyExtensions[ext]; ok {
		return []Method{MethodCopy}
	}
	if file.Size > 0 && file.Size < hybridCopyThreshold {
		return []Method{MethodCopy}
	}
	return []Method{MethodSymlink, MethodHardlink, MethodCopy}
}
