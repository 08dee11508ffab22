// Package http01 implements the HTTP-01 ValidationPlugin: it drops the
// key-authorization file under a webroot so any HTTP server serving that
// root answers the CA's validation request, the way lego's own
// challenge/http01 webroot provider does.
package http01

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-acme/lego/v4/challenge/http01"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

const (
	Name          = "webroot"
	ChallengeType = "http-01"
)

// Factory builds the webroot HTTP-01 ValidationPlugin.
type Factory struct {
	WebRoot string
}

func (f Factory) Name() string          { return Name }
func (f Factory) Description() string   { return "HTTP-01 challenge via a file dropped under a webroot" }
func (f Factory) ChallengeType() string { return ChallengeType }

func (f Factory) CanValidate(t acme.Target) bool { return true }

func (f Factory) Default(ctx context.Context, t acme.Target, opts acme.Options) (plugin.ValidationPlugin, error) {
	return &Plugin{webroot: f.WebRoot}, nil
}

func (f Factory) Acquire(ctx context.Context, t acme.Target, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.ValidationPlugin, error) {
	return f.Default(ctx, t, opts)
}

// Plugin writes and removes the challenge file for one identifier.
type Plugin struct {
	webroot  string
	wrote    string
}

func (p *Plugin) PrepareChallenge(ctx context.Context, details plugin.ChallengeDetails) error {
	if p.webroot == "" {
		return fmt.Errorf("validation/http01: no webroot configured")
	}
	path := filepath.Join(p.webroot, http01.ChallengePath(details.Token))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("validation/http01: mkdir challenge dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(details.KeyAuth), 0o644); err != nil {
		return fmt.Errorf("validation/http01: write challenge file: %w", err)
	}
	p.wrote = path
	return nil
}

// Close removes the challenge file written by PrepareChallenge, if any.
// Safe to call even when PrepareChallenge never ran or failed.
func (p *Plugin) Close() error {
	if p.wrote == "" {
		return nil
	}
	path := p.wrote
	p.wrote = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("validation/http01: remove challenge file: %w", err)
	}
	return nil
}
