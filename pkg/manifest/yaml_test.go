package manifest_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/filesystem"
	"github.com/modforge/loadout/pkg/manifest"
	"github.com/modforge/loadout/pkg/types"
)

func TestManifestFileRoundTrip(t *testing.T) {
	fsys := filesystem.NewOS()
	path := filepath.Join(t.TempDir(), "manifests", "overhaul.yaml")

	original, err := manifest.NewBuilder("acme.mods.overhaul", "2.0.1").
		WithName("Total Overhaul").
		WithType(types.ContentTypeMod).
		WithTargetGame("openra").
		AddFile(types.ManifestFile{
			RelativePath: "mods/overhaul/rules.yaml",
			Hash:         testHash("rules"),
			Size:         2048,
			IsRequired:   true,
		}).
		AddFile(types.ManifestFile{
			RelativePath: "bin/patcher",
			SourcePath:   "/opt/games/openra/patcher",
			IsExecutable: true,
		}).
		AddDependency(types.Dependency{ID: "acme.clients.openra", Constraint: ">=1.0", Optional: false}).
		AddDependency(types.Dependency{ID: "acme.mods.legacy", Conflicts: true}).
		Build()
	require.NoError(t, err)

	require.NoError(t, manifest.ToFile(fsys, original, path))

	loaded, err := manifest.FromFile(fsys, path)
	require.NoError(t, err)

	assert.Equal(t, original.Key(), loaded.Key())
	assert.Equal(t, original.Files, loaded.Files)
	assert.Equal(t, original.Dependencies, loaded.Dependencies)
	assert.Equal(t, original.ContentType, loaded.ContentType)
	assert.Equal(t, original.TargetGame, loaded.TargetGame)
}

func TestFromFileRejectsInvalid(t *testing.T) {
	fsys := filesystem.NewOS()
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "broken.yaml")
	require.NoError(t, fsys.WriteFile(badYAML, []byte("{not yaml"), 0644))
	_, err := manifest.FromFile(fsys, badYAML)
	assert.True(t, errors.IsErrorCode(err, errors.ErrManifestInvalid))

	// Parsable but violating manifest invariants: still rejected.
	noVersion := filepath.Join(dir, "noversion.yaml")
	require.NoError(t, fsys.WriteFile(noVersion, []byte("manifest:\n  id: acme.x\n"), 0644))
	_, err = manifest.FromFile(fsys, noVersion)
	assert.True(t, errors.IsErrorCode(err, errors.ErrManifestInvalid))

	_, err = manifest.FromFile(fsys, filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}
