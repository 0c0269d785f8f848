package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStorageUnavailable is returned by a Storage that cannot be read or written.
var ErrStorageUnavailable = errors.New("tracker: storage unavailable")

// Storage is the per-profile key/value store the tracker persists its session
// identifier and consent state in. A missing key reads as "" with a nil error.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// MemoryStorage keeps values for the lifetime of the process.
type MemoryStorage struct {
	mu       sync.Mutex
	values   map[string]string
	disabled bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return "", ErrStorageUnavailable
	}
	return s.values[key], nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return ErrStorageUnavailable
	}
	s.values[key] = value
	return nil
}

// SetDisabled makes every subsequent Get and Set fail, the way a browser with
// storage turned off behaves.
func (s *MemoryStorage) SetDisabled(disabled bool) {
	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// FileStorage persists values as a JSON object in a single file.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStorageUnavailable, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *FileStorage) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStorageUnavailable, s.path, err)
	}
	return values, nil
}
