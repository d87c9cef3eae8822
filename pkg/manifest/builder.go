// Package manifest builds sealed ContentManifest values. The builder
// accumulates files and dependencies, then Build validates the whole and
// produces an immutable manifest; nothing else in the engine constructs
// manifests directly.
package manifest

import (
	"path"
	"strings"

	"github.com/modforge/loadout/pkg/cas"
	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/types"
)

// Builder accumulates manifest content before sealing it.
type Builder struct {
	manifest types.ContentManifest
}

// NewBuilder starts a manifest for the given namespaced id and version.
func NewBuilder(id, version string) *Builder {
	return &Builder{
		manifest: types.ContentManifest{
			ID:      id,
			Version: version,
		},
	}
}

// WithName sets the human-readable name.
func (b *Builder) WithName(name string) *Builder {
	b.manifest.Name = name
	return b
}

// WithType sets the content type.
func (b *Builder) WithType(ct types.ContentType) *Builder {
	b.manifest.ContentType = ct
	return b
}

// WithTargetGame sets the game the content targets.
func (b *Builder) WithTargetGame(game string) *Builder {
	b.manifest.TargetGame = game
	return b
}

// AddFile appends a file entry. Order is preserved; validation happens at
// Build.
func (b *Builder) AddFile(f types.ManifestFile) *Builder {
	b.manifest.Files = append(b.manifest.Files, f)
	return b
}

// AddDependency appends a dependency record.
func (b *Builder) AddDependency(d types.Dependency) *Builder {
	b.manifest.Dependencies = append(b.manifest.Dependencies, d)
	return b
}

// Build validates the accumulated content and returns the sealed manifest.
func (b *Builder) Build() (*types.ContentManifest, error) {
	m := b.manifest

	if m.ID == "" {
		return nil, errors.New(errors.ErrManifestInvalid, "manifest id must not be empty")
	}
	if m.Version == "" {
		return nil, errors.Newf(errors.ErrManifestInvalid, "manifest %s has no version", m.ID)
	}
	if m.ContentType == "" {
		m.ContentType = types.ContentTypeMod
	}

	seen := make(map[string]struct{}, len(m.Files))
	files := make([]types.ManifestFile, 0, len(m.Files))
	for _, f := range m.Files {
		normalized, err := normalizeFile(m.ID, f)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized.RelativePath]; dup {
			return nil, errors.Newf(errors.ErrManifestInvalid, "manifest %s declares %s twice", m.ID, normalized.RelativePath).
				WithDetail("path", normalized.RelativePath)
		}
		seen[normalized.RelativePath] = struct{}{}
		files = append(files, normalized)
	}
	m.Files = files

	for _, d := range m.Dependencies {
		if d.ID == "" {
			return nil, errors.Newf(errors.ErrManifestInvalid, "manifest %s has a dependency without an id", m.ID)
		}
	}

	sealed := m
	return &sealed, nil
}

// normalizeFile cleans the relative path, infers a missing source type, and
// enforces per-source-type field presence.
func normalizeFile(manifestID string, f types.ManifestFile) (types.ManifestFile, error) {
	if f.RelativePath == "" {
		return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s has a file without a relative path", manifestID)
	}

	cleaned := path.Clean(strings.ReplaceAll(f.RelativePath, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s file path %q escapes the workspace", manifestID, f.RelativePath).
			WithDetail("path", f.RelativePath)
	}
	f.RelativePath = cleaned

	if f.SourceType == "" {
		switch {
		case f.SourcePath != "":
			f.SourceType = types.SourceLocal
		case f.DownloadURL != "":
			f.SourceType = types.SourceRemoteDownload
		default:
			f.SourceType = types.SourceContentAddressable
		}
	}

	switch f.SourceType {
	case types.SourceContentAddressable:
		if !cas.ValidHash(f.Hash) {
			return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s file %s is content-addressed but has no valid hash", manifestID, f.RelativePath).
				WithDetail("path", f.RelativePath)
		}
	case types.SourceLocal:
		if f.SourcePath == "" {
			return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s file %s has a local source type but no source path", manifestID, f.RelativePath).
				WithDetail("path", f.RelativePath)
		}
	case types.SourceRemoteDownload:
		if f.DownloadURL == "" {
			return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s file %s has a remote source type but no download url", manifestID, f.RelativePath).
				WithDetail("path", f.RelativePath)
		}
		if !cas.ValidHash(f.Hash) {
			return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s file %s is remote but declares no verification hash", manifestID, f.RelativePath).
				WithDetail("path", f.RelativePath)
		}
	default:
		return f, errors.Newf(errors.ErrManifestInvalid, "manifest %s file %s has unknown source type %q", manifestID, f.RelativePath, f.SourceType)
	}

	return f, nil
}
