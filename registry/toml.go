package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/renewkit/acme"
)

// Snapshot is the on-disk TOML mirror of the registry's rows, for operator
// inspection alongside the sqlite database — the teacher marshals its own
// certificate output to TOML the same way.
type Snapshot struct {
	Renewals []acme.ScheduledRenewal `toml:"renewal"`
}

// ExportTOML writes every row from reg to path as a TOML snapshot.
func ExportTOML(reg Registry, path string) error {
	renewals, err := reg.Renewals(context.Background())
	if err != nil {
		return fmt.Errorf("registry: export snapshot: %w", err)
	}
	data, err := toml.Marshal(Snapshot{Renewals: renewals})
	if err != nil {
		return fmt.Errorf("registry: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: write snapshot %q: %w", path, err)
	}
	return nil
}

// ImportTOML reads a snapshot previously written by ExportTOML and
// re-saves each row into reg, for restoring state onto a fresh database.
func ImportTOML(reg Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read snapshot %q: %w", path, err)
	}
	var snap Snapshot
	if err := toml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("registry: unmarshal snapshot %q: %w", path, err)
	}
	for i := range snap.Renewals {
		r := snap.Renewals[i]
		result := acme.NewRenewResultSuccess(r.CurrentCertificate)
		if err := reg.Save(context.Background(), &r, result); err != nil {
			return fmt.Errorf("registry: restore %q: %w", r.Target.Host, err)
		}
	}
	return nil
}
