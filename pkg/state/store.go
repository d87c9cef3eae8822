// Package state persists WorkspaceInfo records between runs. The reconciler
// treats the persisted inventory as the workspace's current state, so the
// records must round-trip manifest-id sets and per-file hash/path pairs
// exactly; TOML keeps them diffable and hand-inspectable.
package state

import (
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/modforge/loadout/pkg/errors"
	"github.com/modforge/loadout/pkg/logging"
	"github.com/modforge/loadout/pkg/types"
)

const workspacesDirName = "workspaces"

// Store persists one TOML file per workspace under its state directory.
type Store struct {
	fs     types.FS
	dir    string
	logger zerolog.Logger
}

// New creates a state store rooted at dir.
func New(fsys types.FS, dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrInvalidInput, "state directory must not be empty")
	}
	s := &Store{
		fs:     fsys,
		dir:    dir,
		logger: logging.GetLogger("state"),
	}
	if err := fsys.MkdirAll(filepath.Join(dir, workspacesDirName), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrStateSave, "failed to create state directory")
	}
	return s, nil
}

func (s *Store) recordPath(workspaceID string) string {
	return filepath.Join(s.dir, workspacesDirName, workspaceID+".toml")
}

// Save durably writes a workspace record, replacing any previous one. The
// write goes to a temp file first and is renamed into place so a crash never
// leaves a truncated record.
func (s *Store) Save(info *types.WorkspaceInfo) error {
	if info == nil || info.WorkspaceID == "" {
		return errors.New(errors.ErrInvalidInput, "workspace info must have an id")
	}

	data, err := toml.Marshal(info)
	if err != nil {
		return errors.Wrapf(err, errors.ErrStateSave, "failed to encode state for workspace %s", info.WorkspaceID)
	}

	final := s.recordPath(info.WorkspaceID)
	tmp := final + ".tmp"
	if err := s.fs.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrStateSave, "failed to write state for workspace %s", info.WorkspaceID)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrapf(err, errors.ErrStateSave, "failed to publish state for workspace %s", info.WorkspaceID)
	}

	s.logger.Debug().Str("workspace", info.WorkspaceID).Int("files", info.FileCount).Msg("saved workspace state")
	return nil
}

// Load returns the persisted record for a workspace, or (nil, nil) when none
// exists — a missing record is the normal first-run condition, not an error.
func (s *Store) Load(workspaceID string) (*types.WorkspaceInfo, error) {
	data, err := s.fs.ReadFile(s.recordPath(workspaceID))
	if err != nil {
		return nil, nil
	}

	var info types.WorkspaceInfo
	if err := toml.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateLoad, "corrupt state record for workspace %s", workspaceID)
	}
	return &info, nil
}

// Delete removes a workspace record. Deleting a missing record is a no-op.
func (s *Store) Delete(workspaceID string) error {
	err := s.fs.Remove(s.recordPath(workspaceID))
	if err == nil {
		return nil
	}
	if _, statErr := s.fs.Stat(s.recordPath(workspaceID)); statErr != nil {
		return nil
	}
	return errors.Wrapf(err, errors.ErrStateSave, "failed to delete state for workspace %s", workspaceID)
}

// List returns the ids of every persisted workspace. External garbage
// collection uses this to compute the set of live CAS hashes.
func (s *Store) List() ([]string, error) {
	entries, err := s.fs.ReadDir(filepath.Join(s.dir, workspacesDirName))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStateLoad, "failed to list workspace state")
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".toml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".toml"))
	}
	return ids, nil
}
