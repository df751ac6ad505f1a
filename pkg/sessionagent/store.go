package sessionagent

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Store is the secure local keystore for the token pair. Application code
// never reads tokens from it directly; the Agent owns all access. The
// biometric flag is a local mirror of server state kept for UI decisions.
type Store interface {
	Tokens() (access, refresh string, err error)
	Save(access, refresh string) error
	Clear() error
	SetBiometricEnabled(enabled bool) error
	BiometricEnabled() (bool, error)
}

// MemoryStore keeps tokens in process memory. Used in tests and short-lived
// tools.
type MemoryStore struct {
	mu        sync.RWMutex
	access    string
	refresh   string
	biometric bool
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Tokens() (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.refresh, nil
}

func (s *MemoryStore) Save(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}

func (s *MemoryStore) SetBiometricEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biometric = enabled
	return nil
}

func (s *MemoryStore) BiometricEnabled() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.biometric, nil
}

type filePayload struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	BiometricEnabled bool   `json:"biometricEnabled"`
}

// FileStore persists the token pair as a 0600 JSON file, the keystore
// arrangement the device platform wraps with its own encryption.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore builds a file-backed store at path, creating parent
// directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("sessionagent: store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Tokens() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return "", "", err
	}
	return p.AccessToken, p.RefreshToken, nil
}

func (s *FileStore) Save(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return err
	}
	p.AccessToken = access
	p.RefreshToken = refresh
	return s.write(p)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return err
	}
	p.AccessToken = ""
	p.RefreshToken = ""
	return s.write(p)
}

func (s *FileStore) SetBiometricEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return err
	}
	p.BiometricEnabled = enabled
	return s.write(p)
}

func (s *FileStore) BiometricEnabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return false, err
	}
	return p.BiometricEnabled, nil
}

func (s *FileStore) read() (filePayload, error) {
	var p filePayload
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return filePayload{}, err
	}
	return p, nil
}

func (s *FileStore) write(p filePayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
