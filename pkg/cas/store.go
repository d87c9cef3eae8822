// Package cas implements the content-addressable store: the single source of
// truth for deduplicated file bytes. Objects are keyed by their BLAKE3 hash
// and laid out under a two-character shard prefix to bound directory fanout.
// Writes stream through a hasher into a temp file and are atomically renamed
// into place, so a partial write is never visible under a final hash path and
// concurrent writers of the same content cannot corrupt the store.
package cas

import (
	"context"
	"encoding/hex"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/logging"
	"github.com/modforge/loadout/pkg/types"
)

const (
	objectsDirName = "objects"
	tmpDirName     = "tmp"

	// shardLen is the number of leading hex characters used as the shard
	// directory name.
	shardLen = 2

	// objectMode makes stored objects read-only: workspaces that symlink or
	// hardlink to them must not be able to mutate shared bytes.
	objectMode = 0444

	copyChunkSize = 256 * 1024
)

// Store is a content-addressable store rooted at a single directory. Safe
// for concurrent use across goroutines and processes sharing the same root.
type Store struct {
	fs     types.FS
	root   string
	logger zerolog.Logger
}

// New creates a Store rooted at root, creating the on-disk layout if needed.
func New(fsys types.FS, root string) (*Store, error) {
	if root == "" {
		return nil, errors.New(errors.ErrInvalidInput, "cas root must not be empty")
	}
	s := &Store{
		fs:     fsys,
		root:   root,
		logger: logging.GetLogger("cas"),
	}
	if err := fsys.MkdirAll(filepath.Join(root, objectsDirName), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to create cas objects directory")
	}
	if err := fsys.MkdirAll(filepath.Join(root, tmpDirName), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to create cas tmp directory")
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// objectPath returns the canonical path for a hash without checking
// existence.
func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, objectsDirName, hash[:shardLen], hash)
}

// Has reports whether the store holds content for hash.
func (s *Store) Has(hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	_, err := s.fs.Stat(s.objectPath(hash))
	return err == nil
}

// Store streams the file at sourcePath into the store and returns its
// content hash. If expectedHash is non-empty and the computed hash differs,
// the partial write is discarded and a HASH_MISMATCH error is returned;
// nothing is ever exposed under the expected hash. Storing content that is
// already present is a no-op success.
func (s *Store) Store(ctx context.Context, sourcePath, expectedHash string) (string, error) {
	if expectedHash != "" {
		if err := checkHash(expectedHash); err != nil {
			return "", errors.Wrap(err, errors.ErrInvalidInput, "invalid expected hash")
		}
		// Content is immutable once present, so an existing object under
		// the expected hash short-circuits the copy entirely.
		if s.Has(expectedHash) {
			s.logger.Debug().Str("hash", expectedHash).Msg("content already stored")
			return expectedHash, nil
		}
	}

	// Hash the source in a read-only pass first: when the content is
	// already stored, the call must not write anything at all.
	actual, err := HashFile(s.fs, sourcePath)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrNotFound, "failed to read source %s", sourcePath)
	}
	if expectedHash != "" && actual != expectedHash {
		return "", errors.Newf(errors.ErrHashMismatch, "content hash mismatch for %s", sourcePath).
			WithDetail("expected", expectedHash).
			WithDetail("actual", actual)
	}
	if s.Has(actual) {
		s.logger.Debug().Str("hash", actual).Msg("content already stored")
		return actual, nil
	}

	src, err := s.fs.Open(sourcePath)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrNotFound, "failed to open source %s", sourcePath)
	}
	defer func() { _ = src.Close() }()

	return s.StoreReader(ctx, src, actual)
}

// StoreReader streams r into the store. Same semantics as Store.
func (s *Store) StoreReader(ctx context.Context, r io.Reader, expectedHash string) (string, error) {
	if expectedHash != "" {
		if err := checkHash(expectedHash); err != nil {
			return "", errors.Wrap(err, errors.ErrInvalidInput, "invalid expected hash")
		}
		if s.Has(expectedHash) {
			// Drain nothing: the caller's reader is unused on the
			// short-circuit path, which is what makes the second store of
			// identical content free.
			return expectedHash, nil
		}
	}

	tmpPath := filepath.Join(s.root, tmpDirName, uuid.NewString()+".partial")
	w, err := s.fs.Create(tmpPath)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to create cas temp file")
	}

	hash, copyErr := copyAndHash(ctx, w, r)
	closeErr := w.Close()
	if copyErr != nil {
		_ = s.fs.Remove(tmpPath)
		return "", copyErr
	}
	if closeErr != nil {
		_ = s.fs.Remove(tmpPath)
		return "", errors.Wrap(closeErr, errors.ErrInternal, "failed to finalize cas temp file")
	}

	if expectedHash != "" && hash != expectedHash {
		_ = s.fs.Remove(tmpPath)
		return "", errors.Newf(errors.ErrHashMismatch, "content hash mismatch").
			WithDetail("expected", expectedHash).
			WithDetail("actual", hash)
	}

	if s.Has(hash) {
		// Another writer got there first. Content-addressed, so the bytes
		// are identical and our copy is redundant.
		_ = s.fs.Remove(tmpPath)
		return hash, nil
	}

	finalPath := s.objectPath(hash)
	if err := s.fs.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		_ = s.fs.Remove(tmpPath)
		return "", errors.Wrap(err, errors.ErrInternal, "failed to create cas shard directory")
	}
	if err := s.fs.Chmod(tmpPath, objectMode); err != nil {
		s.logger.Warn().Err(err).Str("path", tmpPath).Msg("failed to mark cas object read-only")
	}
	if err := s.fs.Rename(tmpPath, finalPath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return "", errors.Wrap(err, errors.ErrInternal, "failed to publish cas object")
	}

	s.logger.Debug().Str("hash", hash).Msg("stored content")
	return hash, nil
}

// ContentPath returns the canonical on-disk path for a stored hash. Absence
// is a normal condition reported as CONTENT_NOT_FOUND; the caller decides
// whether to re-copy or re-download.
func (s *Store) ContentPath(hash string) (string, error) {
	if err := checkHash(hash); err != nil {
		return "", errors.Wrap(err, errors.ErrInvalidInput, "invalid content hash")
	}
	path := s.objectPath(hash)
	if _, err := s.fs.Stat(path); err != nil {
		return "", errors.Newf(errors.ErrContentNotFound, "content %s not in store", hash)
	}
	return path, nil
}

// Open returns a streaming reader for a stored hash without exposing the
// physical path.
func (s *Store) Open(hash string) (io.ReadCloser, error) {
	path, err := s.ContentPath(hash)
	if err != nil {
		return nil, err
	}
	r, err := s.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrContentNotFound, "failed to open content %s", hash)
	}
	return r, nil
}

// Size returns the byte size of a stored object.
func (s *Store) Size(hash string) (int64, error) {
	path, err := s.ContentPath(hash)
	if err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrContentNotFound, "failed to stat content %s", hash)
	}
	return info.Size(), nil
}

// Hashes lists every stored hash. Intended for an external garbage
// collector, which must compute live hashes from all known WorkspaceInfo
// records before reclaiming anything; the store itself holds no
// back-references to workspaces.
func (s *Store) Hashes() ([]string, error) {
	shards, err := s.fs.ReadDir(filepath.Join(s.root, objectsDirName))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list cas shards")
	}
	var hashes []string
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := s.fs.ReadDir(filepath.Join(s.root, objectsDirName, shard.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "failed to list cas shard %s", shard.Name())
		}
		for _, e := range entries {
			if ValidHash(e.Name()) {
				hashes = append(hashes, e.Name())
			}
		}
	}
	return hashes, nil
}

// copyAndHash copies r to w in chunks, hashing as it goes and honoring
// cancellation between chunks.
func copyAndHash(ctx context.Context, w io.Writer, r io.Reader) (string, error) {
	h := blake3.New()
	buf := make([]byte, copyChunkSize)
	tee := io.MultiWriter(w, h)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := tee.Write(buf[:n]); err != nil {
				return "", errors.Wrap(err, errors.ErrInternal, "failed to write cas object")
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", errors.Wrap(readErr, errors.ErrInternal, "failed to read source content")
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
