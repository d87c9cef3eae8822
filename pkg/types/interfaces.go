package types

import (
	"context"
	"io"
	"io/fs"
)

// FS is the filesystem interface required for loadout operations. The OS
// implementation lives in pkg/filesystem, alongside an afero-backed one for
// in-memory tests.
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Chmod(name string, mode fs.FileMode) error

	// Directory operations
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Link operations
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)
	Link(oldname, newname string) error

	// Other operations
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
}

// Downloader fetches a remote file to a local destination. Retry and backoff
// policy belongs to the implementation, not to the engine. Implementations
// should verify nothing themselves: the engine checks expectedHash after the
// download lands.
type Downloader interface {
	Download(ctx context.Context, url, dest, expectedHash string) error
}

// Progress is one preparation progress sample. Processed increases
// monotonically up to Total.
type Progress struct {
	Processed   int
	Total       int
	CurrentFile string
	Operation   DeltaOperation
}

// ProgressFunc receives progress samples during workspace preparation.
// Called synchronously; implementations must be fast.
type ProgressFunc func(Progress)
