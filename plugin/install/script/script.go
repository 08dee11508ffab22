// Package script implements the InstallationPlugin that hands a newly
// issued certificate to an operator-supplied executable, matching the
// teacher's pattern of shelling out to a post-issue hook rather than
// implementing per-target-system installers in process.
package script

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

const Name = "script"

// Factory builds the script InstallationPlugin. It is always available;
// Install becomes a no-op when the scheduled renewal carries no ScriptPath.
type Factory struct{}

func (f Factory) Name() string        { return Name }
func (f Factory) Description() string { return "runs an external script with the certificate paths" }

func (f Factory) Default(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options) (plugin.InstallationPlugin, error) {
	return &Plugin{renewal: r}, nil
}

func (f Factory) Acquire(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.InstallationPlugin, error) {
	return f.Default(ctx, r, opts)
}

// Plugin runs renewal.ScriptPath, if set, writing newCert to a temporary
// chain/key pair and passing their paths plus any operator-configured
// ScriptParameters as arguments.
type Plugin struct {
	renewal acme.ScheduledRenewal
}

func (p *Plugin) Install(ctx context.Context, newCert, oldCert *acme.CertRecord) error {
	if p.renewal.ScriptPath == "" {
		return nil
	}

	certFile, err := os.CreateTemp("", "renewkit-*.crt")
	if err != nil {
		return fmt.Errorf("install/script: write cert temp file: %w", err)
	}
	defer os.Remove(certFile.Name())
	keyFile, err := os.CreateTemp("", "renewkit-*.key")
	if err != nil {
		certFile.Close()
		return fmt.Errorf("install/script: write key temp file: %w", err)
	}
	defer os.Remove(keyFile.Name())

	if _, err := certFile.Write(newCert.CertificateChain); err != nil {
		certFile.Close()
		keyFile.Close()
		return fmt.Errorf("install/script: write cert temp file: %w", err)
	}
	certFile.Close()
	if _, err := keyFile.Write(newCert.PrivateKey); err != nil {
		keyFile.Close()
		return fmt.Errorf("install/script: write key temp file: %w", err)
	}
	keyFile.Close()

	args := append([]string{certFile.Name(), keyFile.Name()}, p.renewal.ScriptParameters...)
	cmd := exec.CommandContext(ctx, p.renewal.ScriptPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("install/script: run %q: %w (stderr: %s)", p.renewal.ScriptPath, err, stderr.String())
	}
	return nil
}
