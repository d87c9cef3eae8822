package types

import (
	"fmt"
	"io/fs"
)

// ContentType classifies what a manifest delivers.
type ContentType string

const (
	ContentTypeGameClient   ContentType = "game-client"
	ContentTypeMod          ContentType = "mod"
	ContentTypeAddon        ContentType = "addon"
	ContentTypeMapPack      ContentType = "map-pack"
	ContentTypePatch        ContentType = "patch"
	ContentTypeResourcePack ContentType = "resource-pack"
)

// SourceType identifies where a manifest file's bytes come from.
type SourceType string

const (
	// SourceLocal means the file is read from SourcePath on the local disk.
	SourceLocal SourceType = "local"

	// SourceContentAddressable means the file's bytes live in the CAS,
	// keyed by Hash.
	SourceContentAddressable SourceType = "cas"

	// SourceRemoteDownload means the file must be fetched from DownloadURL
	// before it can be materialized. The downloaded bytes are verified
	// against Hash and ingested into the CAS.
	SourceRemoteDownload SourceType = "remote"
)

// ManifestFile describes one file's intended placement in a workspace.
// Created by the manifest builder and never mutated after the manifest is
// sealed.
type ManifestFile struct {
	// RelativePath is the workspace-relative destination, always
	// slash-separated and cleaned.
	RelativePath string `yaml:"path" toml:"path"`

	// Hash is the hex-encoded content hash. It is the CAS key for
	// CAS-backed files and the verification reference for downloads and
	// local sources that declare one.
	Hash string `yaml:"hash,omitempty" toml:"hash,omitempty"`

	// Size in bytes, when known. Used by validation and the hybrid
	// materialization policy.
	Size int64 `yaml:"size,omitempty" toml:"size,omitempty"`

	// SourcePath is the local origin for SourceLocal files.
	SourcePath string `yaml:"source,omitempty" toml:"source,omitempty"`

	// DownloadURL is the remote origin for SourceRemoteDownload files.
	DownloadURL string `yaml:"url,omitempty" toml:"url,omitempty"`

	SourceType   SourceType  `yaml:"source-type" toml:"source-type"`
	IsExecutable bool        `yaml:"executable,omitempty" toml:"executable,omitempty"`
	Permissions  fs.FileMode `yaml:"permissions,omitempty" toml:"permissions,omitempty"`

	// IsRequired marks files whose absence makes the workspace unplayable.
	// Required files abort reconciliation when unresolvable; optional files
	// degrade to a recorded validation issue.
	IsRequired bool `yaml:"required" toml:"required"`
}

// Mode returns the permissions to apply when materializing the file,
// honoring the executable flag when no explicit permissions were declared.
func (f ManifestFile) Mode() fs.FileMode {
	if f.Permissions != 0 {
		return f.Permissions
	}
	if f.IsExecutable {
		return 0755
	}
	return 0644
}

// Dependency declares a relationship to another manifest.
type Dependency struct {
	// ID is the namespaced identifier of the required manifest.
	ID string `yaml:"id" toml:"id"`

	// Constraint is a version compatibility expression, interpreted by the
	// manifest-producing pipeline. The engine carries it opaquely.
	Constraint string `yaml:"constraint,omitempty" toml:"constraint,omitempty"`

	// Optional dependencies do not block preparation when absent.
	Optional bool `yaml:"optional,omitempty" toml:"optional,omitempty"`

	// Conflicts marks the dependency as mutually exclusive: the named
	// manifest must NOT be assigned to the same workspace.
	Conflicts bool `yaml:"conflicts,omitempty" toml:"conflicts,omitempty"`
}

// ContentManifest is the declarative description of one content package:
// a game client, mod, patch, or similar. Id+Version uniquely identify a
// manifest; RelativePath values are unique within one manifest. Immutable
// once built — construct via manifest.NewBuilder.
type ContentManifest struct {
	ID           string         `yaml:"id" toml:"id"`
	Version      string         `yaml:"version" toml:"version"`
	Name         string         `yaml:"name,omitempty" toml:"name,omitempty"`
	ContentType  ContentType    `yaml:"type" toml:"type"`
	TargetGame   string         `yaml:"target-game,omitempty" toml:"target-game,omitempty"`
	Files        []ManifestFile `yaml:"files" toml:"files"`
	Dependencies []Dependency   `yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
}

// Key returns the id@version pair that uniquely identifies a manifest.
func (m *ContentManifest) Key() string {
	return fmt.Sprintf("%s@%s", m.ID, m.Version)
}

// FileByPath returns the manifest file at the given relative path, if any.
func (m *ContentManifest) FileByPath(relativePath string) (ManifestFile, bool) {
	for _, f := range m.Files {
		if f.RelativePath == relativePath {
			return f, true
		}
	}
	return ManifestFile{}, false
}
