// Package filesystem implements the StorePlugin backing spec.md's "central
// SSL store": one directory holding "<thumbprint>.crt" / "<thumbprint>.key"
// pairs, in the vein of drakkan/sftpgo's acme package writing certificates
// straight to a configured certs path.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/renewkit/acme"
)

const Name = "central-ssl-store"

// Store is the filesystem-backed StorePlugin instance.
type Store struct {
	dir string
}

// New roots the store at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store/filesystem: mkdir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Name() string { return Name }

func (s *Store) certPath(thumbprint string) string { return filepath.Join(s.dir, thumbprint+".crt") }
func (s *Store) keyPath(thumbprint string) string  { return filepath.Join(s.dir, thumbprint+".key") }

func (s *Store) FindByThumbprint(ctx context.Context, thumbprint string) (*acme.CertRecord, error) {
	chain, err := os.ReadFile(s.certPath(thumbprint))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store/filesystem: read cert %q: %w", thumbprint, err)
	}
	key, err := os.ReadFile(s.keyPath(thumbprint))
	if err != nil {
		return nil, fmt.Errorf("store/filesystem: read key %q: %w", thumbprint, err)
	}
	return &acme.CertRecord{
		Thumbprint:       thumbprint,
		CertificateChain: chain,
		PrivateKey:       key,
		StoreName:        Name,
	}, nil
}

func (s *Store) Save(ctx context.Context, cert *acme.CertRecord) error {
	if err := os.WriteFile(s.certPath(cert.Thumbprint), cert.CertificateChain, 0o644); err != nil {
		return fmt.Errorf("store/filesystem: write cert %q: %w", cert.Thumbprint, err)
	}
	if err := os.WriteFile(s.keyPath(cert.Thumbprint), cert.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("store/filesystem: write key %q: %w", cert.Thumbprint, err)
	}
	cert.StoreName = Name
	return nil
}

func (s *Store) Delete(ctx context.Context, cert *acme.CertRecord) error {
	if err := os.Remove(s.certPath(cert.Thumbprint)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store/filesystem: remove cert %q: %w", cert.Thumbprint, err)
	}
	if err := os.Remove(s.keyPath(cert.Thumbprint)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store/filesystem: remove key %q: %w", cert.Thumbprint, err)
	}
	return nil
}
