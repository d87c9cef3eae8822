package manifest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/manifest"
	"github.com/modforge/loadout/pkg/types"
)

func testHash(seed string) string {
	return cas.HashBytes([]byte(seed))
}

func TestBuildValidManifest(t *testing.T) {
	m, err := manifest.NewBuilder("acme.mods.overhaul", "1.2.0").
		WithName("Total Overhaul").
		WithType(types.ContentTypeMod).
		WithTargetGame("openra").
		AddFile(types.ManifestFile{
			RelativePath: "mods/overhaul/rules.yaml",
			Hash:         testHash("rules"),
			IsRequired:   true,
		}).
		AddFile(types.ManifestFile{
			RelativePath: "mods/overhaul/assets.pak",
			Hash:         testHash("assets"),
			Size:         1 << 20,
		}).
		AddDependency(types.Dependency{ID: "acme.clients.openra", Constraint: ">=1.0"}).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "acme.mods.overhaul@1.2.0", m.Key())
	assert.Len(t, m.Files, 2)
	assert.Equal(t, types.SourceContentAddressable, m.Files[0].SourceType)

	f, ok := m.FileByPath("mods/overhaul/assets.pak")
	require.True(t, ok)
	assert.Equal(t, int64(1<<20), f.Size)
}

func TestBuildValidation(t *testing.T) {
	valid := types.ManifestFile{RelativePath: "a.txt", Hash: testHash("a")}

	tests := []struct {
		name    string
		build   func() (*types.ContentManifest, error)
		errText string
	}{
		{
			"empty id",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("", "1.0").AddFile(valid).Build()
			},
			"id must not be empty",
		},
		{
			"empty version",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "").AddFile(valid).Build()
			},
			"no version",
		},
		{
			"duplicate path",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").AddFile(valid).AddFile(valid).Build()
			},
			"twice",
		},
		{
			"path escape",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").
					AddFile(types.ManifestFile{RelativePath: "../outside", Hash: testHash("x")}).
					Build()
			},
			"escapes the workspace",
		},
		{
			"absolute path",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").
					AddFile(types.ManifestFile{RelativePath: "/etc/passwd", Hash: testHash("x")}).
					Build()
			},
			"escapes the workspace",
		},
		{
			"cas file without hash",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").
					AddFile(types.ManifestFile{RelativePath: "a.bin", SourceType: types.SourceContentAddressable}).
					Build()
			},
			"no valid hash",
		},
		{
			"remote file without url",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").
					AddFile(types.ManifestFile{RelativePath: "a.bin", SourceType: types.SourceRemoteDownload, Hash: testHash("a")}).
					Build()
			},
			"no download url",
		},
		{
			"remote file without hash",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").
					AddFile(types.ManifestFile{RelativePath: "a.bin", SourceType: types.SourceRemoteDownload, DownloadURL: "https://cdn.example.com/a.bin"}).
					Build()
			},
			"no verification hash",
		},
		{
			"dependency without id",
			func() (*types.ContentManifest, error) {
				return manifest.NewBuilder("acme.x", "1.0").
					AddFile(valid).
					AddDependency(types.Dependency{Constraint: ">=1"}).
					Build()
			},
			"dependency without an id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrManifestInvalid))
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestSourceTypeInference(t *testing.T) {
	m, err := manifest.NewBuilder("acme.x", "1.0").
		AddFile(types.ManifestFile{RelativePath: "local.bin", SourcePath: "/base/local.bin"}).
		AddFile(types.ManifestFile{RelativePath: "remote.bin", DownloadURL: "https://cdn.example.com/r.bin", Hash: testHash("r")}).
		AddFile(types.ManifestFile{RelativePath: "cas.bin", Hash: testHash("c")}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, types.SourceLocal, m.Files[0].SourceType)
	assert.Equal(t, types.SourceRemoteDownload, m.Files[1].SourceType)
	assert.Equal(t, types.SourceContentAddressable, m.Files[2].SourceType)
}

func TestPathNormalization(t *testing.T) {
	m, err := manifest.NewBuilder("acme.x", "1.0").
		AddFile(types.ManifestFile{RelativePath: `mods\pack\./data.bin`, Hash: testHash("d")}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "mods/pack/data.bin", m.Files[0].RelativePath)
	assert.False(t, strings.Contains(m.Files[0].RelativePath, `\`))
}
