// Package engine hosts the scope factory (C3), the authorization driver
// (C5), the renewal driver (C6), and the scheduler loop (C7): the core
// renewal pipeline everything else in this module plugs into.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/acmeclient"
	"github.com/renewkit/acme/plugin"
	"github.com/renewkit/acme/registry"
)

// Services is the set of collaborators a renewal run is wired against.
// Nothing here is package-level mutable state; every scope is built fresh
// from this container per run, matching the "no module-level mutable
// state" discipline.
type Services struct {
	Registry      registry.Registry
	Plugins       *plugin.Registry
	ACMEClient    acmeclient.Client
	CertService   *CertificateService
	TaskScheduler TaskScheduler
	Metrics       *Metrics
	Logger        *slog.Logger
}

// Scopes builds RenewalScopes from a fixed Services container.
type Scopes struct {
	services *Services
}

// NewScopes binds a Scopes factory to services.
func NewScopes(services *Services) *Scopes {
	return &Scopes{services: services}
}

// RenewalScope is the scope bound for the lifetime of one renewal attempt:
// the target plugin and installation plugins it resolved, released exactly
// once on Close.
type RenewalScope struct {
	services *Services
	renewal  *acme.ScheduledRenewal
	level    plugin.RunLevel
	logger   *slog.Logger

	target  plugin.TargetPlugin
	install []plugin.InstallationPlugin

	once sync.Once
}

// New resolves the target plugin (by renewal.Target.TargetPluginName) and
// installation plugins (by renewal.InstallationPluginNames) for one
// renewal attempt.
func (s *Scopes) New(ctx context.Context, renewal *acme.ScheduledRenewal, level plugin.RunLevel) (*RenewalScope, error) {
	sel := s.services.Plugins.SelectTargetUnattended(renewal.Target.TargetPluginName)
	if sel.Unavailable {
		return nil, fmt.Errorf("%w: %s", acme.ErrPluginUnavailable, sel.Reason)
	}

	rs := &RenewalScope{
		services: s.services,
		renewal:  renewal,
		level:    level,
		logger:   s.services.Logger.With("host", renewal.Target.Host),
		target:   sel.Factory.New(),
	}

	for _, isel := range s.services.Plugins.SelectInstallationUnattended(renewal.InstallationPluginNames) {
		if isel.Unavailable {
			return nil, fmt.Errorf("%w: %s", acme.ErrPluginUnavailable, isel.Reason)
		}
		p, err := isel.Factory.Acquire(ctx, *renewal, acme.Options{}, nil, level)
		if err != nil {
			return nil, fmt.Errorf("engine: acquire installer %s: %w", isel.Factory.Name(), err)
		}
		rs.install = append(rs.install, p)
	}

	return rs, nil
}

// Target returns the resolved target plugin for this scope.
func (rs *RenewalScope) Target() plugin.TargetPlugin { return rs.target }

// Installers returns the resolved, ordered installation plugins.
func (rs *RenewalScope) Installers() []plugin.InstallationPlugin { return rs.install }

// IdentifierScope binds a single validation plugin instance specialized
// for one DNS name, nested inside a RenewalScope.
type IdentifierScope struct {
	parent     *RenewalScope
	validation plugin.ValidationPlugin
	once       sync.Once
}

// Identifier resolves and acquires a validation plugin for target/id,
// selected by target.ValidationPlugin and the factory's CanValidate; the
// challenge type is matched later, in AuthorizeIdentifier.
func (rs *RenewalScope) Identifier(ctx context.Context, target acme.Target, id string) (*IdentifierScope, error) {
	sel := rs.services.Plugins.SelectValidationUnattended(target.ValidationPlugin, target)
	if sel.Unavailable {
		return nil, fmt.Errorf("%w: %s", acme.ErrPluginUnavailable, sel.Reason)
	}

	vp, err := sel.Factory.Acquire(ctx, target, acme.Options{}, nil, rs.level)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire validation plugin %s for %s: %w", sel.Factory.Name(), id, err)
	}

	return &IdentifierScope{parent: rs, validation: vp}, nil
}

// Validation returns the bound validation plugin instance.
func (is *IdentifierScope) Validation() plugin.ValidationPlugin { return is.validation }

// Close releases the validation plugin exactly once.
func (is *IdentifierScope) Close() error {
	var err error
	is.once.Do(func() {
		if is.validation != nil {
			err = is.validation.Close()
		}
	})
	return err
}

// Close releases every plugin instance this scope acquired exactly once.
func (rs *RenewalScope) Close() error {
	var err error
	rs.once.Do(func() {
		// Target and installation plugins carry no acquired resources in
		// this module (no Close method in their contract); Close exists so
		// the discipline holds even if a future plugin family needs it.
		_ = err
	})
	return err
}
