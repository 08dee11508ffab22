// Package plugin defines the four plugin families (target, validation,
// store, installation) the renewal engine consumes, plus the registry that
// resolves a named or interactively-chosen factory to a running instance.
// Concrete plugins live in the target/, validation/, store/ and install/
// sub-packages; this package only knows their shape.
package plugin

import (
	"context"
	"strings"

	"github.com/renewkit/acme"
)

// RunLevel distinguishes an unattended (scripted/CLI) invocation from an
// interactive one that may prompt via Input.
type RunLevel int

const (
	Unattended RunLevel = iota
	Interactive
)

// Input is the out-of-scope interactive collaborator: presenting a set of
// named choices to a human and returning the one they picked.
type Input interface {
	// Choose presents options (factory names, with description) and
	// returns the chosen name, or "" if the user cancelled.
	Choose(ctx context.Context, prompt string, options []Choice) (string, error)
	// ChooseMany is the installation-list variant: zero or more names.
	ChooseMany(ctx context.Context, prompt string, options []Choice) ([]string, error)
}

// Choice is one factory's presentation to Input.
type Choice struct {
	Name        string
	Description string
}

// NullName is the sentinel factory name representing "no-op"/"none": the
// always-present null installer registers under it. A target or validation
// lookup that finds nothing yields an Unavailable Selection instead.
const NullName = "none"

// TargetFactory describes and builds a TargetPlugin.
type TargetFactory interface {
	Name() string
	Description() string
	New() TargetPlugin
}

// TargetPlugin builds and refreshes Targets and splits them for the order.
type TargetPlugin interface {
	Default(ctx context.Context, opts acme.Options) (*acme.Target, error)
	Acquire(ctx context.Context, opts acme.Options, input Input, level RunLevel) (*acme.Target, error)
	Refresh(ctx context.Context, t acme.Target) (*acme.Target, error)
	Split(ctx context.Context, t acme.Target) ([]acme.Target, error)
}

// ValidationFactory describes and builds a ValidationPlugin for one
// challenge type.
type ValidationFactory interface {
	Name() string
	Description() string
	ChallengeType() string
	CanValidate(t acme.Target) bool
	Default(ctx context.Context, t acme.Target, opts acme.Options) (ValidationPlugin, error)
	Acquire(ctx context.Context, t acme.Target, opts acme.Options, input Input, level RunLevel) (ValidationPlugin, error)
}

// ValidationPlugin prepares the proof artifact for one identifier's
// challenge. Instances are scoped to an engine.IdentifierScope and must be
// released via Close when that scope exits.
type ValidationPlugin interface {
	PrepareChallenge(ctx context.Context, details ChallengeDetails) error
	Close() error
}

// ChallengeDetails is the opaque object the ACME client wrapper decodes
// from the CA's challenge object; its concrete shape depends on the
// challenge type (key authorization + token for HTTP-01/TLS-ALPN-01, DNS
// record name + value for DNS-01).
type ChallengeDetails struct {
	Token         string
	KeyAuth       string
	DNSRecordFQDN string
	DNSRecordTTL  int
}

// StorePlugin persists and retrieves certificates by thumbprint.
type StorePlugin interface {
	Name() string
	FindByThumbprint(ctx context.Context, thumbprint string) (*acme.CertRecord, error)
	Save(ctx context.Context, cert *acme.CertRecord) error
	Delete(ctx context.Context, cert *acme.CertRecord) error
}

// InstallationFactory describes and builds an InstallationPlugin.
type InstallationFactory interface {
	Name() string
	Description() string
	Default(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options) (InstallationPlugin, error)
	Acquire(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options, input Input, level RunLevel) (InstallationPlugin, error)
}

// InstallationPlugin installs a newly obtained certificate, optionally
// diffing against the one it replaces.
type InstallationPlugin interface {
	Install(ctx context.Context, newCert *acme.CertRecord, oldCert *acme.CertRecord) error
}

// Selection is the tagged-variant result of a registry lookup: exactly one
// of Factory/Unavailable/Cancelled holds.
type Selection[F any] struct {
	Factory     F
	Unavailable bool
	Reason      string
	Cancelled   bool
}

// Registry enumerates and resolves plugin factories by name or by
// interactive choice, per component C1.
type Registry struct {
	Target     map[string]TargetFactory
	Validation map[string]ValidationFactory
	Store      map[string]StorePlugin
	Install    map[string]InstallationFactory
}

// NewRegistry builds an empty registry; callers register factories with
// RegisterTarget/RegisterValidation/RegisterStore/RegisterInstall.
func NewRegistry() *Registry {
	return &Registry{
		Target:     map[string]TargetFactory{},
		Validation: map[string]ValidationFactory{},
		Store:      map[string]StorePlugin{},
		Install:    map[string]InstallationFactory{},
	}
}

func (r *Registry) RegisterTarget(f TargetFactory)         { r.Target[strings.ToLower(f.Name())] = f }
func (r *Registry) RegisterValidation(f ValidationFactory) { r.Validation[strings.ToLower(f.Name())] = f }
func (r *Registry) RegisterStore(s StorePlugin)            { r.Store[strings.ToLower(s.Name())] = s }
func (r *Registry) RegisterInstall(f InstallationFactory)  { r.Install[strings.ToLower(f.Name())] = f }

// SelectTargetUnattended resolves a target factory by exact, case
// insensitive name match. No match yields Selection.Unavailable.
func (r *Registry) SelectTargetUnattended(name string) Selection[TargetFactory] {
	f, ok := r.Target[strings.ToLower(name)]
	if !ok {
		return Selection[TargetFactory]{Unavailable: true, Reason: "no target plugin named " + name}
	}
	return Selection[TargetFactory]{Factory: f}
}

// SelectValidationUnattended resolves a validation factory by name,
// further requiring it declare it can validate t.
func (r *Registry) SelectValidationUnattended(name string, t acme.Target) Selection[ValidationFactory] {
	f, ok := r.Validation[strings.ToLower(name)]
	if !ok || !f.CanValidate(t) {
		return Selection[ValidationFactory]{Unavailable: true, Reason: "no validation plugin named " + name + " can validate " + t.Host}
	}
	return Selection[ValidationFactory]{Factory: f}
}

// SelectTargetInteractive presents all registered target factories to
// input and returns the chosen one, or Cancelled if the user declines.
func (r *Registry) SelectTargetInteractive(ctx context.Context, input Input) (Selection[TargetFactory], error) {
	choices := make([]Choice, 0, len(r.Target))
	for _, f := range r.Target {
		choices = append(choices, Choice{Name: f.Name(), Description: f.Description()})
	}
	name, err := input.Choose(ctx, "Select target plugin", choices)
	if err != nil {
		return Selection[TargetFactory]{}, err
	}
	if name == "" {
		return Selection[TargetFactory]{Cancelled: true}, nil
	}
	f, ok := r.Target[strings.ToLower(name)]
	if !ok {
		return Selection[TargetFactory]{Unavailable: true, Reason: "no target plugin named " + name}, nil
	}
	return Selection[TargetFactory]{Factory: f}, nil
}

// SelectInstallationUnattended resolves the ordered installation plugin
// list by name. An empty names slice still yields the null installer
// if registered under plugin.NullName, guaranteeing non-emptiness.
func (r *Registry) SelectInstallationUnattended(names []string) []Selection[InstallationFactory] {
	out := make([]Selection[InstallationFactory], 0, len(names))
	for _, name := range names {
		f, ok := r.Install[strings.ToLower(name)]
		if !ok {
			out = append(out, Selection[InstallationFactory]{Unavailable: true, Reason: "no installation plugin named " + name})
			continue
		}
		out = append(out, Selection[InstallationFactory]{Factory: f})
	}
	if len(out) == 0 {
		if f, ok := r.Install[NullName]; ok {
			out = append(out, Selection[InstallationFactory]{Factory: f})
		}
	}
	return out
}

// SelectInstallationInteractive presents all registered installers and
// returns the chosen subset; an empty result models user cancellation,
// unless the null installer is always appended by the caller.
func (r *Registry) SelectInstallationInteractive(ctx context.Context, input Input) ([]Selection[InstallationFactory], error) {
	choices := make([]Choice, 0, len(r.Install))
	for _, f := range r.Install {
		choices = append(choices, Choice{Name: f.Name(), Description: f.Description()})
	}
	names, err := input.ChooseMany(ctx, "Select installation plugins", choices)
	if err != nil {
		return nil, err
	}
	out := make([]Selection[InstallationFactory], 0, len(names))
	for _, name := range names {
		f, ok := r.Install[strings.ToLower(name)]
		if !ok {
			out = append(out, Selection[InstallationFactory]{Unavailable: true, Reason: "no installation plugin named " + name})
			continue
		}
		out = append(out, Selection[InstallationFactory]{Factory: f})
	}
	return out, nil
}
