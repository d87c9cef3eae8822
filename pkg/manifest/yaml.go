package manifest

import (
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/types"
)

// document wraps a manifest for serialization. The metadata envelope keeps
// the on-disk format extensible without breaking older files.
type document struct {
	Metadata metadata              `yaml:"metadata"`
	Manifest types.ContentManifest `yaml:"manifest"`
}

type metadata struct {
	Updated time.Time `yaml:"updated"`
}

// FromFile loads a manifest from a YAML file and seals it through the
// builder, so a file that violates manifest invariants never enters the
// engine.
func FromFile(fsys types.FS, path string) (*types.ContentManifest, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "failed to read manifest %s", path)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestInvalid, "failed to parse manifest %s", path)
	}

	b := NewBuilder(doc.Manifest.ID, doc.Manifest.Version).
		WithName(doc.Manifest.Name).
		WithType(doc.Manifest.ContentType).
		WithTargetGame(doc.Manifest.TargetGame)
	for _, f := range doc.Manifest.Files {
		b.AddFile(f)
	}
	for _, d := range doc.Manifest.Dependencies {
		b.AddDependency(d)
	}
	return b.Build()
}

// ToFile writes a sealed manifest as canonical YAML.
func ToFile(fsys types.FS, m *types.ContentManifest, path string) error {
	doc := document{
		Metadata: metadata{Updated: time.Now().UTC()},
		Manifest: *m,
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to encode manifest %s", m.Key())
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to create manifest directory for %s", path)
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to write manifest %s", path)
	}
	return nil
}
