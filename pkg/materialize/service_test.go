package materialize_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/filesystem"
	"github.com/modforge/loadout/pkg/materialize"
	"github.com/modforge/loadout/pkg/types"
)

func setupService(t *testing.T) (*materialize.Service, types.FS, string, string) {
	t.Helper()

	fsys := filesystem.NewOS()
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	svc := materialize.New(fsys, materialize.NewLinker(fsys))

	return svc, fsys, srcDir, dstDir
}

func writeFile(t *testing.T, fsys types.FS, path string, content []byte) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, fsys.WriteFile(path, content, 0644))
}

func TestMaterializeFullCopy(t *testing.T) {
	svc, fsys, srcDir, dstDir := setupService(t)

	content := []byte("#!/bin/sh\necho play\n")
	src := filepath.Join(srcDir, "launch.sh")
	writeFile(t, fsys, src, content)

	file := types.ManifestFile{RelativePath: "launch.sh", IsExecutable: true, IsRequired: true}
	dst := filepath.Join(dstDir, "nested", "launch.sh")

	result, err := svc.Materialize(context.Background(), src, dst, file, types.StrategyFullCopy)
	require.NoError(t, err)
	assert.Equal(t, materialize.MethodCopy, result.Method)
	assert.False(t, result.FellBack)

	got, err := fsys.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, cas.HashBytes(content), cas.HashBytes(got))

	info, err := fsys.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0755), info.Mode().Perm())
}

func TestMaterializeSymlink(t *testing.T) {
	svc, fsys, srcDir, dstDir := setupService(t)

	content := []byte("large binary asset")
	src := filepath.Join(srcDir, "asset.pak")
	writeFile(t, fsys, src, content)

	file := types.ManifestFile{RelativePath: "asset.pak"}
	dst := filepath.Join(dstDir, "asset.pak")

	result, err := svc.Materialize(context.Background(), src, dst, file, types.StrategySymlinkOnly)
	require.NoError(t, err)
	assert.Equal(t, materialize.MethodSymlink, result.Method)

	target, err := fsys.Readlink(dst)
	require.NoError(t, err)
	assert.Equal(t, src, target)

	got, err := fsys.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestMaterializeHardlinkSameVolume(t *testing.T) {
	fsys := filesystem.NewOS()
	svc := materialize.New(fsys, materialize.NewLinker(fsys))

	// Same TempDir so source and destination share a volume.
	root := t.TempDir()
	src := filepath.Join(root, "src", "data.bin")
	dst := filepath.Join(root, "ws", "data.bin")
	content := []byte("hardlinked bytes")
	writeFile(t, fsys, src, content)

	result, err := svc.Materialize(context.Background(), src, dst, types.ManifestFile{RelativePath: "data.bin"}, types.StrategyHardlinkOnly)
	require.NoError(t, err)
	assert.Equal(t, materialize.MethodHardlink, result.Method)

	got, err := fsys.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestMaterializeIdempotentOverStaleEntry(t *testing.T) {
	svc, fsys, srcDir, dstDir := setupService(t)

	src := filepath.Join(srcDir, "config.ini")
	writeFile(t, fsys, src, []byte("fresh=true"))

	dst := filepath.Join(dstDir, "config.ini")
	writeFile(t, fsys, dst, []byte("stale=true"))

	// Re-materializing over an existing entry replaces it.
	for i := 0; i < 2; i++ {
		_, err := svc.Materialize(context.Background(), src, dst, types.ManifestFile{RelativePath: "config.ini"}, types.StrategyFullCopy)
		require.NoError(t, err)
	}

	got, err := fsys.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh=true"), got)
}

func TestMaterializeReplacesSymlinkWithCopy(t *testing.T) {
	svc, fsys, srcDir, dstDir := setupService(t)

	src := filepath.Join(srcDir, "file.dat")
	writeFile(t, fsys, src, []byte("payload"))

	dst := filepath.Join(dstDir, "file.dat")
	require.NoError(t, fsys.Symlink(src, dst))

	_, err := svc.Materialize(context.Background(), src, dst, types.ManifestFile{RelativePath: "file.dat"}, types.StrategyFullCopy)
	require.NoError(t, err)

	info, err := fsys.Lstat(dst)
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&os.ModeSymlink, "destination must be a regular file after copy")
}

// fakeLinker simulates platform capability gaps.
type fakeLinker struct {
	real        materialize.Linker
	symlinkErr  error
	hardlinkErr error
}

func (f *fakeLinker) Symlink(src, dst string) error {
	if f.symlinkErr != nil {
		return f.symlinkErr
	}
	return f.real.Symlink(src, dst)
}

func (f *fakeLinker) Hardlink(src, dst string) error {
	if f.hardlinkErr != nil {
		return f.hardlinkErr
	}
	return f.real.Hardlink(src, dst)
}

func (f *fakeLinker) Copy(ctx context.Context, src, dst string, perm fs.FileMode) error {
	return f.real.Copy(ctx, src, dst, perm)
}

func TestSymlinkFallsBackToCopy(t *testing.T) {
	fsys := filesystem.NewOS()
	linker := &fakeLinker{
		real:       materialize.NewLinker(fsys),
		symlinkErr: errors.New(errors.ErrPlatformNotSupported, "symlinks not supported on this filesystem"),
	}
	svc := materialize.New(fsys, linker)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	content := []byte("bytes that must survive the fallback")
	src := filepath.Join(srcDir, "asset.pak")
	writeFile(t, fsys, src, content)
	dst := filepath.Join(dstDir, "asset.pak")

	result, err := svc.Materialize(context.Background(), src, dst, types.ManifestFile{RelativePath: "asset.pak"}, types.StrategySymlinkOnly)
	require.NoError(t, err)

	assert.True(t, result.FellBack)
	assert.Equal(t, materialize.MethodCopy, result.Method)
	assert.Equal(t, materialize.MethodSymlink, result.FallbackFrom)
	assert.Contains(t, result.Reason, "not supported")

	got, err := fsys.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, cas.HashBytes(content), cas.HashBytes(got), "fallback copy must be byte-identical")
}

func TestHybridFallsThroughToCopy(t *testing.T) {
	fsys := filesystem.NewOS()
	linker := &fakeLinker{
		real:        materialize.NewLinker(fsys),
		symlinkErr:  errors.New(errors.ErrPlatformNotSupported, "no symlinks"),
		hardlinkErr: errors.New(errors.ErrCrossVolume, "cross-volume hardlink"),
	}
	svc := materialize.New(fsys, linker)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	content := []byte("large asset")
	src := filepath.Join(srcDir, "big.pak")
	writeFile(t, fsys, src, content)
	dst := filepath.Join(dstDir, "big.pak")

	file := types.ManifestFile{RelativePath: "big.pak", Size: 500 << 20}
	result, err := svc.Materialize(context.Background(), src, dst, file, types.StrategyHybridCopySymlink)
	require.NoError(t, err)

	assert.Equal(t, materialize.MethodCopy, result.Method)
	assert.True(t, result.FellBack)
	assert.Equal(t, materialize.MethodSymlink, result.FallbackFrom)
}

func TestHardlinkCrossVolumeFailsFast(t *testing.T) {
	fsys := filesystem.NewOS()
	linker := &fakeLinker{
		real:        materialize.NewLinker(fsys),
		hardlinkErr: errors.New(errors.ErrCrossVolume, "cross-volume hardlink"),
	}
	svc := materialize.New(fsys, linker)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "f")
	writeFile(t, fsys, src, []byte("x"))

	_, err := svc.Materialize(context.Background(), src, filepath.Join(dstDir, "f"), types.ManifestFile{RelativePath: "f"}, types.StrategyHardlinkOnly)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCrossVolume))
}

func TestNonCapabilityErrorSurfaces(t *testing.T) {
	fsys := filesystem.NewOS()
	linker := &fakeLinker{
		real:       materialize.NewLinker(fsys),
		symlinkErr: errors.New(errors.ErrInsufficientSpace, "no space left on device"),
	}
	svc := materialize.New(fsys, linker)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "f")
	writeFile(t, fsys, src, []byte("x"))

	// INSUFFICIENT_SPACE is not a capability gap; no fallback to copy.
	_, err := svc.Materialize(context.Background(), src, filepath.Join(dstDir, "f"), types.ManifestFile{RelativePath: "f"}, types.StrategySymlinkOnly)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInsufficientSpace))
}

// fullDiskFS fails directory creation the way a full filesystem does.
type fullDiskFS struct {
	types.FS
}

func (f *fullDiskFS) MkdirAll(path string, perm fs.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: path, Err: syscall.ENOSPC}
}

func TestDirectoryCreationOutOfSpaceKeepsCode(t *testing.T) {
	fsys := &fullDiskFS{FS: filesystem.NewOS()}
	svc := materialize.New(fsys, materialize.NewLinker(fsys))

	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "f")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	_, err := svc.Materialize(context.Background(), src, filepath.Join(dstDir, "nested", "f"), types.ManifestFile{RelativePath: "f"}, types.StrategyFullCopy)
	require.Error(t, err)

	// The code decides whether the whole preparation aborts, so it must
	// survive to the outermost error.
	assert.True(t, errors.IsErrorCode(err, errors.ErrInsufficientSpace))
	assert.False(t, errors.IsErrorCode(err, errors.ErrInternal))
}

func TestMaterializeCancelled(t *testing.T) {
	svc, fsys, srcDir, dstDir := setupService(t)

	src := filepath.Join(srcDir, "f")
	writeFile(t, fsys, src, []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Materialize(ctx, src, filepath.Join(dstDir, "f"), types.ManifestFile{RelativePath: "f"}, types.StrategyFullCopy)
	assert.ErrorIs(t, err, context.Canceled)
}
