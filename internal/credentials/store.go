// SPDX-License-Identifier: AGPL-3.0-only
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	saltKey         = "_salt"
	encryptedPrefix = "enc:"
)

var ErrPassphraseRequired = errors.New("credential file is encrypted, a passphrase is required")

// FileStore keeps credentials in a flat JSON object. With a passphrase every
// value is sealed with AES-GCM under an argon2id key; the salt is kept in the
// same file.
type FileStore struct {
	path string
	key  []byte
	salt []byte

	mu     sync.Mutex
	values map[string]string
}

// OpenFile loads the store at path. A missing file yields an empty store.
func OpenFile(path, passphrase string) (*FileStore, error) {
	s := &FileStore{path: path, values: map[string]string{}}

	raw := map[string]string{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse credentials %s: %w", path, err)
		}
	}

	if passphrase != "" {
		if encoded, ok := raw[saltKey]; ok {
			s.salt, err = base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("malformed credential salt: %w", err)
			}
		} else if s.salt, err = newSalt(); err != nil {
			return nil, err
		}
		s.key = deriveKey(passphrase, s.salt)
	}

	for k, v := range raw {
		if k == saltKey {
			continue
		}
		if !strings.HasPrefix(v, encryptedPrefix) {
			s.values[k] = v
			continue
		}
		if s.key == nil {
			return nil, ErrPassphraseRequired
		}
		plain, err := s.open(strings.TrimPrefix(v, encryptedPrefix))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", k, err)
		}
		s.values[k] = plain
	}

	return s, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (s *FileStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Save writes the store back to disk, readable by the owner only.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		if s.key == nil {
			out[k] = v
			continue
		}
		sealed, err := s.seal(v)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", k, err)
		}
		out[k] = encryptedPrefix + sealed
	}
	if s.key != nil {
		out[saltKey] = base64.StdEncoding.EncodeToString(s.salt)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) VKToken() (string, bool) {
	return s.Get(KeyVKToken)
}

func (s *FileStore) Telegram() (Telegram, bool) {
	id, _ := s.Get(KeyTelegramAPIID)
	hash, _ := s.Get(KeyTelegramAPIHash)
	phone, _ := s.Get(KeyTelegramPhone)

	creds, err := ParseTelegram(id, hash, phone)
	if err != nil {
		return Telegram{}, false
	}
	return creds, true
}

func (s *FileStore) seal(value string) (string, error) {
	ciphertext, nonce, err := encrypt([]byte(value), s.key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func (s *FileStore) open(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	// GCM nonces are 12 bytes.
	if len(blob) < 12 {
		return "", errors.New("sealed value too short")
	}
	plain, err := decrypt(blob[12:], blob[:12], s.key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
