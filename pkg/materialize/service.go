// Package materialize makes manifest files physically present at their
// workspace paths via copy, symlink, or hardlink, with explicit
// capability-based fallback chains per strategy. Every operation is
// idempotent: any pre-existing entry at the destination is removed before
// the new one is created, so re-running converges on the desired state.
package materialize

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/logging"
	"github.com/modforge/loadout/pkg/types"
)

// Result records how a file was materialized, including any fallback taken,
// so callers can surface the decision as a diagnostic issue.
type Result struct {
	Method       Method
	FellBack     bool
	FallbackFrom Method
	Reason       string
}

// Service materializes files. It is the only component permitted to mutate
// workspace paths.
type Service struct {
	fs     types.FS
	linker Linker
	logger zerolog.Logger
}

// New creates a materialization service over the given filesystem and
// platform linker.
func New(fsys types.FS, linker Linker) *Service {
	return &Service{
		fs:     fsys,
		linker: linker,
		logger: logging.GetLogger("materialize"),
	}
}

// Materialize places the content at src onto dst using the given strategy.
// The parent directory is created and any pre-existing destination entry is
// removed first. Capability errors (platform, privilege, cross-volume) move
// on to the next method in the strategy's chain; all other errors surface.
func (s *Service) Materialize(ctx context.Context, src, dst string, file types.ManifestFile, strategy types.WorkspaceStrategy) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := s.prepareDestination(dst); err != nil {
		return Result{}, err
	}

	chain := chainFor(strategy, file)
	var firstErr error
	for i, method := range chain {
		err := s.attempt(ctx, method, src, dst, file)
		if err == nil {
			result := Result{Method: method}
			if i > 0 {
				result.FellBack = true
				result.FallbackFrom = chain[0]
				result.Reason = firstErr.Error()
				s.logger.Info().
					Str("path", dst).
					Str("method", string(method)).
					Str("fallbackFrom", string(chain[0])).
					Msg("materialized with fallback")
			} else {
				s.logger.Debug().
					Str("path", dst).
					Str("method", string(method)).
					Msg("materialized")
			}
			return result, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if i == len(chain)-1 || !fallbackable(err) {
			return Result{}, err
		}
		s.logger.Debug().
			Err(err).
			Str("path", dst).
			Str("method", string(method)).
			Msg("materialization method unavailable, trying next")
	}
	return Result{}, firstErr
}

// attempt runs a single method.
func (s *Service) attempt(ctx context.Context, method Method, src, dst string, file types.ManifestFile) error {
	switch method {
	case MethodSymlink:
		return s.linker.Symlink(src, dst)
	case MethodHardlink:
		return s.linker.Hardlink(src, dst)
	default:
		return s.linker.Copy(ctx, src, dst, file.Mode())
	}
}

// prepareDestination ensures the parent directory exists and removes any
// stale entry at dst, making re-materialization idempotent.
func (s *Service) prepareDestination(dst string) error {
	parent := filepath.Dir(dst)
	if err := s.fs.MkdirAll(parent, 0755); err != nil {
		// classify's code must stay outermost: callers abort the whole run
		// on INSUFFICIENT_SPACE, and re-wrapping would mask it as INTERNAL.
		return classify(err, "mkdir")
	}
	info, err := s.fs.Lstat(dst)
	if err != nil {
		// Nothing at the destination; normal for Add deltas.
		return nil
	}
	if info.IsDir() {
		if err := s.fs.RemoveAll(dst); err != nil {
			return classify(err, "remove")
		}
		return nil
	}
	if err := s.fs.Remove(dst); err != nil {
		return classify(err, "remove")
	}
	return nil
}

// fallbackable reports whether an error represents a missing capability
// rather than a real failure. Only capability gaps move the chain forward;
// integrity and space errors always surface.
func fallbackable(err error) bool {
	switch errors.GetErrorCode(err) {
	case errors.ErrPlatformNotSupported, errors.ErrAccessDenied, errors.ErrCrossVolume:
		return true
	default:
		return false
	}
}
