// Package age implements acme.SecretStore over age-encrypted files on
// disk, mirroring the teacher's config.SecureConfigStore: each scope is one
// file named "<scope>.age" under a root directory, encrypted to a single
// identity loaded once at construction.
package age

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// Store is a filesystem-backed acme.SecretStore decrypting with one age
// identity.
type Store struct {
	dir        string
	identities []age.Identity
	logger     *slog.Logger
}

// New loads the age identity found at identityPath (a file containing one
// or more "AGE-SECRET-KEY-1..." lines) and returns a Store rooted at dir.
func New(dir, identityPath string, logger *slog.Logger) (*Store, error) {
	f, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("secret/age: open identity file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("secret/age: parse identity: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, identities: identities, logger: logger.With("component", "secret/age")}, nil
}

// Latest returns the decrypted contents of the most recently saved secret
// for scope.
func (s *Store) Latest(scope string) ([]byte, error) {
	path := filepath.Join(s.dir, scope+".age")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret/age: read %q: %w", scope, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), s.identities...)
	if err != nil {
		return nil, fmt.Errorf("secret/age: decrypt %q: %w", scope, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("secret/age: read decrypted %q: %w", scope, err)
	}
	s.logger.Debug("loaded secret", "scope", scope, "bytes", len(out))
	return out, nil
}

// Save encrypts data to every configured recipient and writes it to
// scope's file, overwriting any previous value. Saving is not part of
// acme.SecretStore (the engine only reads secrets) but is provided so
// operator tooling can seed the store; no command in this module calls it.
func Save(dir, scope string, data []byte, recipients ...age.Recipient) error {
	path := filepath.Join(dir, scope+".age")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("secret/age: mkdir: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return fmt.Errorf("secret/age: encrypt %q: %w", scope, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("secret/age: write %q: %w", scope, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("secret/age: close %q: %w", scope, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
