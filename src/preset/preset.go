// Package preset keeps engine patches as YAML files in one directory.
package preset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jinjor/desktop-synth/src/engine"
)

const ext = ".yaml"

var ErrInvalidName = errors.New("invalid preset name")

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+ext), nil
}

// List returns preset names in sorted order. A missing directory is empty.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Load(name string) (engine.Patch, error) {
	var patch engine.Patch
	path, err := s.path(name)
	if err != nil {
		return patch, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return patch, err
	}
	if err := yaml.Unmarshal(data, &patch); err != nil {
		return patch, fmt.Errorf("failed to parse preset %s: %w", name, err)
	}
	return patch, nil
}

// Save writes through a temporary file so a failed write keeps the old
// preset.
func (s *Store) Save(name string, patch engine.Patch) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(patch)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}
