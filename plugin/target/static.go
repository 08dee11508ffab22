// Package target provides the "static" TargetPlugin: a fixed host plus
// alternative-names list read from the factory's Domains, mirroring the teacher's
// acme.Config.Domains / Acme.Domains approach of naming all covered
// domains up front rather than discovering them from a web-server config.
package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

const Name = "static"

// Factory builds the static TargetPlugin.
type Factory struct {
	// Domains is the full list; Domains[0] becomes Target.Host and the
	// rest become AlternativeNames.
	Domains []string
}

func (f Factory) Name() string        { return Name }
func (f Factory) Description() string { return "certificate for a fixed, pre-configured list of domains" }

func (f Factory) New() plugin.TargetPlugin {
	return &Plugin{domains: f.Domains}
}

// Plugin is the static TargetPlugin instance.
type Plugin struct {
	domains []string
}

func (p *Plugin) Default(ctx context.Context, opts acme.Options) (*acme.Target, error) {
	return p.build()
}

func (p *Plugin) Acquire(ctx context.Context, opts acme.Options, input plugin.Input, level plugin.RunLevel) (*acme.Target, error) {
	if level == plugin.Interactive {
		choice, err := input.Choose(ctx, fmt.Sprintf("Use domains %v?", p.domains), []plugin.Choice{{Name: "yes"}, {Name: "no"}})
		if err != nil {
			return nil, err
		}
		if choice != "yes" {
			return nil, nil
		}
	}
	return p.build()
}

// Refresh re-derives hosts from the configured domain list. A static
// target never disappears, so Refresh never returns (nil, nil); a real
// file/service-discovery-backed target plugin would return nil here once
// its underlying binding vanished.
func (p *Plugin) Refresh(ctx context.Context, t acme.Target) (*acme.Target, error) {
	next, err := p.build()
	if err != nil {
		return nil, err
	}
	next.ValidationPlugin = t.ValidationPlugin
	next.ChallengeType = t.ChallengeType
	next.TargetPluginName = t.TargetPluginName
	next.ValidationPort = t.ValidationPort
	next.InstallationPorts = t.InstallationPorts
	return next, nil
}

// Split returns the target unchanged: the static plugin never partitions
// its hosts across multiple orders/sub-targets.
func (p *Plugin) Split(ctx context.Context, t acme.Target) ([]acme.Target, error) {
	return []acme.Target{t}, nil
}

func (p *Plugin) build() (*acme.Target, error) {
	if len(p.domains) == 0 {
		return nil, errors.New("target/static: no domains configured")
	}
	t := &acme.Target{
		Host:             p.domains[0],
		AlternativeNames: append([]string(nil), p.domains[1:]...),
		TargetPluginName: Name,
	}
	return t, nil
}
