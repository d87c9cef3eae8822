package materialize

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/types"
)

// Method identifies how a file was (or would be) materialized.
type Method string

const (
	MethodCopy     Method = "copy"
	MethodSymlink  Method = "symlink"
	MethodHardlink Method = "hardlink"
)

// Linker is the platform capability interface for producing filesystem
// entries. Strategies are expressed as ordered lists of attempts against
// this interface, so platform-conditional behavior lives in the
// implementation and never in nested conditionals.
type Linker interface {
	// Symlink creates a symbolic link at dst pointing at src.
	Symlink(src, dst string) error

	// Hardlink creates a hard link at dst for the inode at src. Fails with
	// a CROSS_VOLUME error when src and dst are on different volumes.
	Hardlink(src, dst string) error

	// Copy writes a byte-for-byte copy of src at dst with the given
	// permissions.
	Copy(ctx context.Context, src, dst string, perm fs.FileMode) error
}

const copyChunkSize = 256 * 1024

// osLinker implements Linker over a types.FS, classifying raw OS errors
// into the engine's coded taxonomy.
type osLinker struct {
	fs types.FS
}

// NewLinker returns the default Linker over the given filesystem.
func NewLinker(fsys types.FS) Linker {
	return &osLinker{fs: fsys}
}

func (l *osLinker) Symlink(src, dst string) error {
	if err := l.fs.Symlink(src, dst); err != nil {
		return classify(err, "symlink")
	}
	return nil
}

func (l *osLinker) Hardlink(src, dst string) error {
	if err := l.fs.Link(src, dst); err != nil {
		return classify(err, "hardlink")
	}
	return nil
}

func (l *osLinker) Copy(ctx context.Context, src, dst string, perm fs.FileMode) error {
	in, err := l.fs.Open(src)
	if err != nil {
		return classify(err, "copy")
	}
	defer func() { _ = in.Close() }()

	out, err := l.fs.Create(dst)
	if err != nil {
		return classify(err, "copy")
	}

	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			_ = l.fs.Remove(dst)
			return err
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				_ = out.Close()
				_ = l.fs.Remove(dst)
				return classify(err, "copy")
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			_ = l.fs.Remove(dst)
			return classify(readErr, "copy")
		}
	}
	if err := out.Close(); err != nil {
		_ = l.fs.Remove(dst)
		return classify(err, "copy")
	}
	if err := l.fs.Chmod(dst, perm); err != nil {
		return classify(err, "copy")
	}
	return nil
}

// classify maps raw filesystem errors onto the coded taxonomy so strategy
// fallback decisions can be made on codes instead of platform errno values.
func classify(err error, op string) error {
	switch {
	case stderrors.Is(err, syscall.EXDEV):
		return errors.Wrapf(err, errors.ErrCrossVolume, "%s across volumes is not supported", op)
	case stderrors.Is(err, syscall.ENOTSUP) || stderrors.Is(err, syscall.EOPNOTSUPP) || stderrors.Is(err, syscall.EINVAL):
		return errors.Wrapf(err, errors.ErrPlatformNotSupported, "%s is not supported here", op)
	case stderrors.Is(err, syscall.EPERM) && op == "symlink":
		// Some platforms require elevated privilege for symlinks; treat it
		// as a capability gap so the fallback chain can proceed. Never
		// retried with elevation.
		return errors.Wrapf(err, errors.ErrPlatformNotSupported, "%s requires privileges this process lacks", op)
	case stderrors.Is(err, syscall.ENOSPC):
		return errors.Wrapf(err, errors.ErrInsufficientSpace, "%s failed: no space left on device", op)
	case os.IsPermission(err):
		return errors.Wrapf(err, errors.ErrAccessDenied, "%s failed: access denied", op)
	default:
		return err
	}
}
