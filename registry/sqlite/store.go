// Package sqlite implements registry.Registry over zombiezen/go/sqlite,
// the same persistence choice as plugin/store/sqlite and the teacher's
// zombiezen.Db writer.
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/registry"
)

// Schema is the DDL this store expects, applied once at startup via
// sqlitex.ExecScript.
const Schema = `
CREATE TABLE IF NOT EXISTS renewals (
	id INTEGER PRIMARY KEY,
	host TEXT NOT NULL,
	alternative_names TEXT NOT NULL,
	target_plugin_name TEXT NOT NULL,
	validation_plugin_name TEXT NOT NULL,
	challenge_type TEXT NOT NULL,
	ssl_port INTEGER NOT NULL,
	ssl_ip_address TEXT NOT NULL,
	validation_port INTEGER NOT NULL,
	last_run TEXT NOT NULL,
	next_due TEXT NOT NULL,
	test_mode INTEGER NOT NULL,
	script_path TEXT NOT NULL,
	script_parameters TEXT NOT NULL,
	central_ssl_store_path TEXT NOT NULL,
	certificate_store TEXT NOT NULL,
	keep_existing INTEGER,
	installation_plugin_names TEXT NOT NULL,
	warmup INTEGER NOT NULL,
	current_thumbprint TEXT NOT NULL,
	UNIQUE(host, target_plugin_name, validation_plugin_name, challenge_type)
);`

// Store is the sqlite-backed registry.Registry implementation.
type Store struct {
	pool *sqlitex.Pool
}

// New wraps an externally-managed sqlitex.Pool; the schema must already
// have been applied.
func New(pool *sqlitex.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Find(ctx context.Context, t acme.Target) (*acme.ScheduledRenewal, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var rec *acme.ScheduledRenewal
	err = sqlitex.Execute(conn,
		`SELECT host, alternative_names, target_plugin_name, validation_plugin_name,
		        challenge_type, ssl_port, ssl_ip_address, validation_port,
		        last_run, next_due, test_mode, script_path, script_parameters,
		        central_ssl_store_path, certificate_store, keep_existing,
		        installation_plugin_names, warmup
		 FROM renewals
		 WHERE host = ? AND target_plugin_name = ? AND validation_plugin_name = ? AND challenge_type = ?;`,
		&sqlitex.ExecOptions{
			Args: []interface{}{t.Host, t.TargetPluginName, t.ValidationPlugin, t.ChallengeType},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec = scanRenewal(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("registry/sqlite: find %q: %w", t.Host, err)
	}
	return rec, nil
}

func (s *Store) Save(ctx context.Context, r *acme.ScheduledRenewal, result acme.RenewResult) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("registry/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	now := time.Now()
	r.LastRun = now
	if result.Success {
		r.NextDue = now.Add(registry.RenewalWindow)
		r.New = false
		r.Updated = false
		if result.Certificate != nil {
			r.CurrentCertificate = result.Certificate
		}
	}

	var keepExisting interface{}
	if r.KeepExisting != nil {
		if *r.KeepExisting {
			keepExisting = 1
		} else {
			keepExisting = 0
		}
	}

	var thumbprint string
	if r.CurrentCertificate != nil {
		thumbprint = r.CurrentCertificate.Thumbprint
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO renewals (
			host, alternative_names, target_plugin_name, validation_plugin_name,
			challenge_type, ssl_port, ssl_ip_address, validation_port,
			last_run, next_due, test_mode, script_path, script_parameters,
			central_ssl_store_path, certificate_store, keep_existing,
			installation_plugin_names, warmup, current_thumbprint
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(host, target_plugin_name, validation_plugin_name, challenge_type) DO UPDATE SET
		   alternative_names=excluded.alternative_names,
		   ssl_port=excluded.ssl_port,
		   ssl_ip_address=excluded.ssl_ip_address,
		   validation_port=excluded.validation_port,
		   last_run=excluded.last_run,
		   next_due=excluded.next_due,
		   test_mode=excluded.test_mode,
		   script_path=excluded.script_path,
		   script_parameters=excluded.script_parameters,
		   central_ssl_store_path=excluded.central_ssl_store_path,
		   certificate_store=excluded.certificate_store,
		   keep_existing=excluded.keep_existing,
		   installation_plugin_names=excluded.installation_plugin_names,
		   warmup=excluded.warmup,
		   current_thumbprint=excluded.current_thumbprint;`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				r.Target.Host,
				strings.Join(r.Target.AlternativeNames, ","),
				r.Target.TargetPluginName,
				r.Target.ValidationPlugin,
				r.Target.ChallengeType,
				r.Target.InstallationPorts.SSLPort,
				r.Target.InstallationPorts.SSLIPAddress,
				r.Target.ValidationPort,
				acme.FormatTime(r.LastRun),
				acme.FormatTime(r.NextDue),
				boolToInt(r.TestMode),
				r.ScriptPath,
				strings.Join(r.ScriptParameters, ","),
				r.CentralSslStorePath,
				r.CertificateStore,
				keepExisting,
				strings.Join(r.InstallationPluginNames, ","),
				boolToInt(r.Warmup),
				thumbprint,
			},
		})
	if err != nil {
		return fmt.Errorf("registry/sqlite: save %q: %w", r.Target.Host, err)
	}
	return nil
}

func (s *Store) Cancel(ctx context.Context, t acme.Target) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("registry/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM renewals WHERE host = ? AND target_plugin_name = ? AND validation_plugin_name = ? AND challenge_type = ?;`,
		&sqlitex.ExecOptions{Args: []interface{}{t.Host, t.TargetPluginName, t.ValidationPlugin, t.ChallengeType}})
	if err != nil {
		return fmt.Errorf("registry/sqlite: cancel %q: %w", t.Host, err)
	}
	return nil
}

func (s *Store) Renewals(ctx context.Context) ([]acme.ScheduledRenewal, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry/sqlite: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []acme.ScheduledRenewal
	err = sqlitex.Execute(conn,
		`SELECT host, alternative_names, target_plugin_name, validation_plugin_name,
		        challenge_type, ssl_port, ssl_ip_address, validation_port,
		        last_run, next_due, test_mode, script_path, script_parameters,
		        central_ssl_store_path, certificate_store, keep_existing,
		        installation_plugin_names, warmup
		 FROM renewals ORDER BY next_due ASC;`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, *scanRenewal(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("registry/sqlite: list renewals: %w", err)
	}
	return out, nil
}

func scanRenewal(stmt *sqlite.Stmt) *acme.ScheduledRenewal {
	rec := &acme.ScheduledRenewal{
		Target: acme.Target{
			Host:             stmt.ColumnText(0),
			AlternativeNames: splitCSV(stmt.ColumnText(1)),
			TargetPluginName: stmt.ColumnText(2),
			ValidationPlugin: stmt.ColumnText(3),
			ChallengeType:    stmt.ColumnText(4),
			InstallationPorts: acme.InstallationParams{
				SSLPort:      int(stmt.ColumnInt64(5)),
				SSLIPAddress: stmt.ColumnText(6),
			},
			ValidationPort: int(stmt.ColumnInt64(7)),
		},
		TestMode:                stmt.ColumnInt(10) != 0,
		ScriptPath:              stmt.ColumnText(11),
		ScriptParameters:        splitCSV(stmt.ColumnText(12)),
		CentralSslStorePath:     stmt.ColumnText(13),
		CertificateStore:       stmt.ColumnText(14),
		InstallationPluginNames: splitCSV(stmt.ColumnText(16)),
		Warmup:                  stmt.ColumnInt(17) != 0,
	}
	rec.LastRun, _ = acme.ParseTime(stmt.ColumnText(8))
	rec.NextDue, _ = acme.ParseTime(stmt.ColumnText(9))
	if stmt.ColumnType(15) != sqlite.TypeNull {
		keep := stmt.ColumnInt(15) != 0
		rec.KeepExisting = &keep
	}
	return rec
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
