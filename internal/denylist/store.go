// Package denylist persists the application and build ids staff have disabled.
// The JSON file is the only source of truth: every query reads it again, so
// edits made by hand or by another process are picked up immediately.
package denylist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

const (
	// FileName is the denylist file under <state>/data.
	FileName = "disabled_ids.json"
	// LegacyFileName is the name used before build ids were supported.
	LegacyFileName = "disabled_tids.json"

	appIDLength       = 16
	minBuildIDLength  = 32
	buildIDLength     = 64
	buildIDPadding    = "0"
	keyAppIDs         = "app_id"
	keyBuildIDs       = "build_id"
	filePermissions   = 0644
	folderPermissions = 0755
)

var (
	ErrInvalidAppID   = errors.New("application id must be 16 alphanumeric characters")
	ErrInvalidBuildID = errors.New("build id must be 32 to 64 alphanumeric characters")
)

// Set is the full content of the denylist: id -> optional note.
type Set struct {
	AppIDs   map[string]string `json:"app_id"`
	BuildIDs map[string]string `json:"build_id"`
}

func newSet() *Set {
	return &Set{AppIDs: map[string]string{}, BuildIDs: map[string]string{}}
}

// Store reads and writes the denylist file.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open returns a store rooted at <stateDir>/data, creating the directory and
// renaming a legacy file if one exists.
func Open(stateDir string) (*Store, error) {
	dir := filepath.Join(stateDir, "data")
	if err := os.MkdirAll(dir, folderPermissions); err != nil {
		return nil, fmt.Errorf("failed to create denylist directory: %w", err)
	}
	s := &Store{dir: dir}
	if _, err := s.resolvePath(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the denylist file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

func (s *Store) resolvePath() (string, error) {
	path := s.Path()
	legacy := filepath.Join(s.dir, LegacyFileName)
	if info, err := os.Stat(legacy); err == nil && info.Mode().IsRegular() {
		if err := os.Rename(legacy, path); err != nil {
			return "", fmt.Errorf("failed to rename legacy denylist: %w", err)
		}
	}
	return path, nil
}

// IsAppIDValid reports whether id is exactly 16 ASCII letters or digits.
func IsAppIDValid(id string) bool {
	return len(id) == appIDLength && isAlnum(id)
}

// IsBuildIDValid reports whether id is 32 to 64 ASCII letters or digits.
func IsBuildIDValid(id string) bool {
	return len(id) >= minBuildIDLength && len(id) <= buildIDLength && isAlnum(id)
}

// NormalizeAppID lowercases an application id.
func NormalizeAppID(id string) string {
	return strings.ToLower(id)
}

// NormalizeBuildID lowercases a build id and right-pads it with '0' to 64 characters.
func NormalizeBuildID(id string) string {
	id = strings.ToLower(id)
	if len(id) < buildIDLength {
		id += strings.Repeat(buildIDPadding, buildIDLength-len(id))
	}
	return id
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// Load reads the denylist. A missing file is an empty denylist; the legacy
// flat {id: note} format is read as a set of application ids.
func (s *Store) Load() (*Set, error) {
	path, err := s.resolvePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read denylist: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("denylist %s is not valid JSON", path)
	}

	set := newSet()
	if !gjson.GetBytes(data, keyAppIDs).IsObject() {
		if err := json.Unmarshal(data, &set.AppIDs); err != nil {
			return nil, fmt.Errorf("failed to parse legacy denylist: %w", err)
		}
		return set, nil
	}

	if err := json.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("failed to parse denylist: %w", err)
	}
	if set.AppIDs == nil {
		set.AppIDs = map[string]string{}
	}
	if set.BuildIDs == nil {
		set.BuildIDs = map[string]string{}
	}
	return set, nil
}

// List is Load under the name the commands use.
func (s *Store) List() (*Set, error) {
	return s.Load()
}

// IsAppIDDisabled reports whether the application id is denylisted.
func (s *Store) IsAppIDDisabled(id string) (bool, error) {
	set, err := s.Load()
	if err != nil {
		return false, err
	}
	_, ok := set.AppIDs[NormalizeAppID(id)]
	return ok, nil
}

// IsBuildIDDisabled reports whether the build id is denylisted.
func (s *Store) IsBuildIDDisabled(id string) (bool, error) {
	set, err := s.Load()
	if err != nil {
		return false, err
	}
	_, ok := set.BuildIDs[NormalizeBuildID(id)]
	return ok, nil
}

// AddAppID denylists an application id. It returns false if it already was.
func (s *Store) AddAppID(id, note string) (bool, error) {
	if !IsAppIDValid(id) {
		return false, ErrInvalidAppID
	}
	return s.mutate(func(set *Set) bool {
		return add(set.AppIDs, NormalizeAppID(id), note)
	})
}

// RemoveAppID removes an application id. It returns false if it was not listed.
func (s *Store) RemoveAppID(id string) (bool, error) {
	if !IsAppIDValid(id) {
		return false, ErrInvalidAppID
	}
	return s.mutate(func(set *Set) bool {
		return remove(set.AppIDs, NormalizeAppID(id))
	})
}

// AddBuildID denylists a build id. It returns false if it already was.
func (s *Store) AddBuildID(id, note string) (bool, error) {
	if !IsBuildIDValid(id) {
		return false, ErrInvalidBuildID
	}
	return s.mutate(func(set *Set) bool {
		return add(set.BuildIDs, NormalizeBuildID(id), note)
	})
}

// RemoveBuildID removes a build id. It returns false if it was not listed.
func (s *Store) RemoveBuildID(id string) (bool, error) {
	if !IsBuildIDValid(id) {
		return false, ErrInvalidBuildID
	}
	return s.mutate(func(set *Set) bool {
		return remove(set.BuildIDs, NormalizeBuildID(id))
	})
}

func add(m map[string]string, id, note string) bool {
	if _, ok := m[id]; ok {
		return false
	}
	m[id] = note
	return true
}

func remove(m map[string]string, id string) bool {
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	return true
}

// mutate runs a read-modify-write cycle. The file is only rewritten when fn
// reports a change.
func (s *Store) mutate(fn func(*Set) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.Load()
	if err != nil {
		return false, err
	}
	if !fn(set) {
		return false, nil
	}
	if err := s.write(set); err != nil {
		return false, err
	}
	return true, nil
}

// write replaces the file through a temp file so readers never see a partial write.
func (s *Store) write(set *Set) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode denylist: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write denylist: %w", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set denylist permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("failed to replace denylist: %w", err)
	}
	return nil
}
