package client

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore holds the access token between connection attempts. Which
// implementation a client gets depends on whether the user ticked
// "remember me" at login: a persistent file survives process restarts,
// the ephemeral store lasts only as long as the process.
type TokenStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
}

// EphemeralStore keeps the token in memory.
type EphemeralStore struct {
	mutex sync.Mutex
	token string
}

func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{}
}

func (s *EphemeralStore) Save(token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.token = token
	return nil
}

func (s *EphemeralStore) Load() (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.token, nil
}

func (s *EphemeralStore) Clear() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.token = ""
	return nil
}

// PersistentStore writes the token to a file with user-only permissions.
type PersistentStore struct {
	path string
}

func NewPersistentStore(path string) *PersistentStore {
	return &PersistentStore{path: path}
}

func (s *PersistentStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token), 0o600)
}

func (s *PersistentStore) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *PersistentStore) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// StoreFor returns the persistent store only when the user opted in.
func StoreFor(rememberMe bool, path string) TokenStore {
	if rememberMe {
		return NewPersistentStore(path)
	}
	return NewEphemeralStore()
}
