package config

import "sync"

// Store abstracts settings persistence so commands can be tested without
// touching the filesystem.
type Store interface {
	Load() (*Settings, error)
	Save(*Settings) error
}

// FileStore persists settings to an INI file. An empty path means the
// default location.
type FileStore struct {
	Path string
}

// NewFileStore creates a file-backed store.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (*Settings, error) {
	return Load(s.Path)
}

func (s *FileStore) Save(cfg *Settings) error {
	return Save(cfg, s.Path)
}

// MemStore keeps settings in memory.
type MemStore struct {
	mu       sync.Mutex
	settings Settings
}

// NewMemStore creates an in-memory store seeded with the given settings,
// or defaults when nil.
func NewMemStore(cfg *Settings) *MemStore {
	if cfg == nil {
		cfg = NewSettings()
	}
	return &MemStore{settings: *cfg}
}

func (s *MemStore) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.settings
	return &cfg, nil
}

func (s *MemStore) Save(cfg *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = *cfg
	return nil
}
