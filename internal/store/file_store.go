// Package store persists small key to scalar preference maps as JSON files.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrNotScalar is returned when a value other than bool, int or string is stored.
var ErrNotScalar = errors.New("value is not a scalar")

// Store is a key to scalar map with explicit persistence.
type Store interface {
	Bool(key string) (bool, bool)
	Int(key string) (int, bool)
	String(key string) (string, bool)
	Set(values map[string]any) error
}

// FileStore keeps the map in memory and rewrites the whole file on every Set.
type FileStore struct {
	fs     afero.Fs
	path   string
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	values map[string]any
}

// Verify FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore opens path on fs. A missing or unreadable file yields an empty store.
func NewFileStore(fs afero.Fs, path string, logger *zap.SugaredLogger) *FileStore {
	if fs == nil {
		panic("FileStore: fs cannot be nil")
	}
	if logger == nil {
		panic("FileStore: logger cannot be nil")
	}
	s := &FileStore{
		fs:     fs,
		path:   path,
		logger: logger,
		values: make(map[string]any),
	}
	s.load()
	return s
}

// DefaultPath returns ~/.runbeat/preferences.json, falling back to the working directory.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".runbeat", "preferences.json")
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Bool(key string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key].(bool)
	return v, ok
}

// Int returns integers. JSON numbers decode as float64, so whole floats are accepted.
func (s *FileStore) Int(key string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[key].(type) {
	case int:
		return v, true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func (s *FileStore) String(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key].(string)
	return v, ok
}

// Set merges values into the store and writes the file. Nothing is applied if any value
// is not a scalar. On a write failure the in-memory values are kept.
func (s *FileStore) Set(values map[string]any) error {
	for k, v := range values {
		switch v.(type) {
		case bool, int, string:
		default:
			return fmt.Errorf("%w: %s is %T", ErrNotScalar, k, v)
		}
	}

	s.mu.Lock()
	for k, v := range values {
		s.values[k] = v
	}
	raw, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	if err := writeFileAtomic(s.fs, s.path, raw); err != nil {
		s.logger.Warnw("FileStore: save failed", "path", s.path, "error", err)
		return err
	}
	s.logger.Debugw("FileStore: saved", "path", s.path, "keys", sortedKeys(values))
	return nil
}

func (s *FileStore) load() {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		s.logger.Infow("FileStore: no existing file", "path", s.path)
		return
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		s.logger.Warnw("FileStore: failed to parse, starting empty", "path", s.path, "error", err)
		return
	}
	if values != nil {
		s.values = values
	}
	s.logger.Infow("FileStore: loaded", "path", s.path, "keys", len(s.values))
}

// writeFileAtomic writes to a temp file in the target directory and renames it into place.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer fs.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
