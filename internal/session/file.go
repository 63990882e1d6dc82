package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/pkg/crypto"
)

// CredentialKey is the fixed key the bearer token is stored under.
const CredentialKey = "authToken"

// FileStore persists credentials in an AES-GCM encrypted JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
	enc  *crypto.Encryptor
	log  logrus.FieldLogger
}

// NewFileStore opens (lazily) the store at path.
func NewFileStore(path string, enc *crypto.Encryptor, log logrus.FieldLogger) *FileStore {
	return &FileStore{path: path, enc: enc, log: log}
}

// Save writes the credential. Only login flows call this.
func (s *FileStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[CredentialKey] = token
	return s.store(values)
}

// Credential returns the stored token, or "" if none is stored or the file is unreadable.
func (s *FileStore) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		s.log.WithError(err).Warn("credential store unreadable")
		return ""
	}
	return values[CredentialKey]
}

// ClearCredential removes the token, leaving other keys intact.
func (s *FileStore) ClearCredential() {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		s.log.WithError(err).Warn("credential store unreadable, removing it")
		_ = os.Remove(s.path)
		return
	}
	if _, ok := values[CredentialKey]; !ok {
		return
	}
	delete(values, CredentialKey)
	if err := s.store(values); err != nil {
		s.log.WithError(err).Error("failed to clear stored credential")
	}
}

func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	plaintext, err := s.enc.Decrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential store: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse credential store: %w", err)
	}
	return values, nil
}

func (s *FileStore) store(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode credential store: %w", err)
	}
	ciphertext, err := s.enc.Encrypt(plaintext)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	return os.WriteFile(s.path, []byte(ciphertext), 0o600)
}
