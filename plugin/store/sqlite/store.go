// Package sqlite implements the StorePlugin over zombiezen/go/sqlite,
// directly grounded on the teacher's zombiezen.Db writer: certificates are
// rows in a "certificates" table keyed by thumbprint.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/renewkit/acme"
)

const Name = "sqlite"

// Store is the sqlite-backed StorePlugin instance.
type Store struct {
	pool *sqlitex.Pool
}

// New wraps an externally-managed sqlitex.Pool. The schema (see Schema) must
// already exist; callers typically run it once at startup via sqlitex.ExecScript.
func New(pool *sqlitex.Pool) *Store {
	return &Store{pool: pool}
}

// Schema is the DDL this plugin expects. Embedding it here (rather than a
// migration framework) matches the teacher's single "certificates" table
// with no migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS certificates (
	id INTEGER PRIMARY KEY,
	thumbprint TEXT NOT NULL UNIQUE,
	domains TEXT NOT NULL,
	certificate_chain BLOB NOT NULL,
	private_key BLOB NOT NULL,
	issued_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	store_name TEXT NOT NULL
);`

func (s *Store) Name() string { return Name }

func (s *Store) FindByThumbprint(ctx context.Context, thumbprint string) (*acme.CertRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var rec *acme.CertRecord
	err = sqlitex.Execute(conn,
		`SELECT domains, certificate_chain, private_key, issued_at, expires_at, store_name
		 FROM certificates WHERE thumbprint = ?;`,
		&sqlitex.ExecOptions{
			Args: []interface{}{thumbprint},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec = &acme.CertRecord{
					Thumbprint:       thumbprint,
					Domains:          splitDomains(stmt.ColumnText(0)),
					CertificateChain: []byte(stmt.ColumnText(1)),
					PrivateKey:       []byte(stmt.ColumnText(2)),
					StoreName:        stmt.ColumnText(5),
				}
				rec.IssuedAt, _ = acme.ParseTime(stmt.ColumnText(3))
				rec.ExpiresAt, _ = acme.ParseTime(stmt.ColumnText(4))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: find by thumbprint %q: %w", thumbprint, err)
	}
	return rec, nil
}

func (s *Store) Save(ctx context.Context, cert *acme.CertRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	cert.StoreName = Name
	err = sqlitex.Execute(conn,
		`INSERT INTO certificates (thumbprint, domains, certificate_chain, private_key, issued_at, expires_at, store_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thumbprint) DO UPDATE SET
		   certificate_chain=excluded.certificate_chain,
		   private_key=excluded.private_key,
		   issued_at=excluded.issued_at,
		   expires_at=excluded.expires_at;`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				cert.Thumbprint,
				strings.Join(cert.Domains, ","),
				string(cert.CertificateChain),
				string(cert.PrivateKey),
				acme.FormatTime(cert.IssuedAt),
				acme.FormatTime(cert.ExpiresAt),
				Name,
			},
		})
	if err != nil {
		return fmt.Errorf("store/sqlite: save thumbprint %q: %w", cert.Thumbprint, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, cert *acme.CertRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM certificates WHERE thumbprint = ?;`,
		&sqlitex.ExecOptions{Args: []interface{}{cert.Thumbprint}})
	if err != nil {
		return fmt.Errorf("store/sqlite: delete thumbprint %q: %w", cert.Thumbprint, err)
	}
	return nil
}

func splitDomains(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
