// Package null provides the always-registered "none" installation plugin:
// it performs no action, guaranteeing a non-empty installation list on a
// successful renewal even when the operator asked for no installer.
package null

import (
	"context"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

// Factory builds the null InstallationPlugin.
type Factory struct{}

func (Factory) Name() string        { return plugin.NullName }
func (Factory) Description() string { return "performs no installation action" }

func (Factory) Default(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options) (plugin.InstallationPlugin, error) {
	return Plugin{}, nil
}

func (Factory) Acquire(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.InstallationPlugin, error) {
	return Plugin{}, nil
}

// Plugin is the no-op InstallationPlugin instance.
type Plugin struct{}

func (Plugin) Install(ctx context.Context, newCert, oldCert *acme.CertRecord) error { return nil }
