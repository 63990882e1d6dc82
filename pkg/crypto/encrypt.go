// Package crypto seals small secrets (bearer credentials) for storage on disk.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	keyPrefix        = "v1:"
	passphrasePrefix = "v2:"
	saltSize         = 16
)

// argon2id parameters for passphrase-derived keys.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// ErrMalformed is returned when a sealed value was not produced by Encrypt.
var ErrMalformed = errors.New("malformed sealed value")

// Encryptor handles AES-256-GCM sealing of secrets at rest. It either holds a fixed
// key or a passphrase; passphrase keys are derived with argon2id under a random salt
// stored alongside each sealed value.
type Encryptor struct {
	gcm        cipher.AEAD
	passphrase []byte

	mu       sync.Mutex
	lastSalt []byte
	lastGCM  cipher.AEAD
}

// NewEncryptor creates an encryptor from an exact 32-byte key.
func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}
	gcm, err := newGCM([]byte(key))
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm}, nil
}

// NewEncryptorFromPassphrase creates an encryptor for keys supplied by humans.
func NewEncryptorFromPassphrase(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	return &Encryptor{passphrase: []byte(passphrase)}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// derive returns the AEAD for salt. The last derivation is reused, since a store
// re-reads the same sealed file many times.
func (e *Encryptor) derive(salt []byte) (cipher.AEAD, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastGCM != nil && bytes.Equal(e.lastSalt, salt) {
		return e.lastGCM, nil
	}
	key := argon2.IDKey(e.passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	e.lastSalt = append([]byte(nil), salt...)
	e.lastGCM = gcm
	return gcm, nil
}

// Encrypt seals plaintext. Fixed-key values are "v1:" + base64(nonce || ciphertext);
// passphrase values are "v2:" + base64(salt || nonce || ciphertext).
func (e *Encryptor) Encrypt(plaintext []byte) (string, error) {
	if e.gcm != nil {
		sealed, err := seal(e.gcm, nil, plaintext)
		if err != nil {
			return "", err
		}
		return keyPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := e.derive(salt)
	if err != nil {
		return "", err
	}
	sealed, err := seal(gcm, salt, plaintext)
	if err != nil {
		return "", err
	}
	return passphrasePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func seal(gcm cipher.AEAD, prefix, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := append(append([]byte(nil), prefix...), nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt on an encryptor of the same kind.
func (e *Encryptor) Decrypt(sealed string) ([]byte, error) {
	sealed = strings.TrimSpace(sealed)

	var (
		gcm cipher.AEAD
		raw []byte
		err error
	)
	switch {
	case strings.HasPrefix(sealed, keyPrefix) && e.gcm != nil:
		if raw, err = decode(sealed[len(keyPrefix):]); err != nil {
			return nil, err
		}
		gcm = e.gcm
	case strings.HasPrefix(sealed, passphrasePrefix) && e.gcm == nil:
		if raw, err = decode(sealed[len(passphrasePrefix):]); err != nil {
			return nil, err
		}
		if len(raw) < saltSize {
			return nil, ErrMalformed
		}
		if gcm, err = e.derive(raw[:saltSize]); err != nil {
			return nil, err
		}
		raw = raw[saltSize:]
	default:
		return nil, ErrMalformed
	}

	n := gcm.NonceSize()
	if len(raw) < n {
		return nil, ErrMalformed
	}
	plaintext, err := gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func decode(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw, nil
}
