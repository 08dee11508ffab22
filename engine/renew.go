package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"

	"github.com/google/uuid"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

// Renewer drives the 11-step renewal pipeline (C6) for one scheduled
// renewal, sequencing target refresh through installation and pruning.
type Renewer struct {
	services *Services
	scopes   *Scopes
	opts     acme.Options
}

// NewRenewer binds a Renewer to services and the process-wide run options.
func NewRenewer(services *Services, opts acme.Options) *Renewer {
	return &Renewer{services: services, scopes: NewScopes(services), opts: opts}
}

// Renew runs steps 1-11 of the renewal pipeline for sr, returning the
// final outcome. The outer defer/recover guarantees a RenewResult is
// always produced, flipping Success=false on anything unexpected while
// preserving an already-recorded certificate thumbprint.
func (rn *Renewer) Renew(ctx context.Context, sr *acme.ScheduledRenewal) (result acme.RenewResult) {
	attemptID := uuid.NewString()
	logger := rn.services.Logger.With("host", sr.Target.Host, "attempt", attemptID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("renewal panicked", "panic", r)
			if result.Certificate == nil {
				result = acme.NewRenewResultError(fmt.Sprintf("panic: %v", r))
			} else {
				result.Success = false
			}
		}
		if rn.services.Metrics != nil {
			rn.services.Metrics.RenewalsTotal.Inc()
			if !result.Success {
				rn.services.Metrics.RenewalsFailedTotal.Inc()
			}
		}
	}()

	level := plugin.Unattended
	rs, err := rn.scopes.New(ctx, sr, level)
	if err != nil {
		return acme.NewRenewResultError(err.Error())
	}
	defer func() {
		if cerr := rs.Close(); cerr != nil {
			logger.Warn("renewal scope close failed", "error", cerr)
		}
	}()

	// 1. Refresh target. If the plugin reports it gone (nil), the previous
	// Target is kept and the renewal aborts.
	refreshed, err := rs.Target().Refresh(ctx, sr.Target)
	if err != nil {
		return acme.NewRenewResultError(fmt.Sprintf("%s: %s", acme.ErrTargetGone, err))
	}
	if refreshed == nil {
		return acme.NewRenewResultError(acme.ErrTargetGone.Error())
	}
	sr.Target = *refreshed

	// 2. Split into sub-targets and union every identifier across them.
	subs, err := rs.Target().Split(ctx, sr.Target)
	if err != nil {
		return acme.NewRenewResultError(err.Error())
	}
	if len(subs) == 0 {
		subs = []acme.Target{sr.Target}
	}
	identifiers := unionHosts(subs)

	// 3. Order creation.
	order, err := rn.services.ACMEClient.CreateOrder(ctx, identifiers)
	if err != nil {
		return acme.NewRenewResultError(err.Error())
	}

	// 4. Per-identifier authorization; the first invalid aborts and logs
	// the server problem verbatim.
	for i, authzURL := range order.AuthorizationURLs {
		authz, err := rn.services.ACMEClient.GetAuthorizationDetails(ctx, authzURL)
		if err != nil {
			return acme.NewRenewResultError(err.Error())
		}
		sub := subs[i%len(subs)]
		ch := AuthorizeIdentifier(ctx, rn.services, rs, order, sub, authz)
		if ch.Status != "valid" {
			logger.Error("authorization failed", "identifier", authz.Identifier, "problem", ch.Error)
			return acme.NewRenewResultError(fmt.Sprintf("%s: %s: %s", acme.ErrAuthorizationFailed, authz.Identifier, ch.Error))
		}
	}

	// 5. Certificate request, via the caching CertificateService.
	key, csr, err := buildCSR(identifiers)
	if err != nil {
		return acme.NewRenewResultError(err.Error())
	}
	cert, err := rn.services.CertService.Obtain(ctx, order, csr, sr.Target.Host)
	if err != nil {
		return acme.NewRenewResultError(fmt.Sprintf("%s: %s", acme.ErrCertificateMissing, err))
	}
	cert.PrivateKey = key
	cert.Domains = identifiers

	// 6. Test gate: a new renewal's test run always exercises the full
	// ACME path above (order, authorization, certificate request); it only
	// stops short of store/install when the interactive install prompt is
	// declined. This module drives every renewal at Unattended level,
	// which never prompts, so test mode falls through to store/install
	// like any other run.
	if sr.TestMode && sr.New && level == plugin.Interactive {
		logger.Info("test mode renewal declined installation, stopping after certificate issuance")
		return acme.NewRenewResultSuccess(cert)
	}

	// 7. Store-by-thumbprint dedup: skip re-saving an identical cert.
	store, err := rn.resolveStore(sr)
	if err != nil {
		return acme.NewRenewResultError(err.Error())
	}
	existing, err := store.FindByThumbprint(ctx, cert.Thumbprint)
	if err != nil {
		return acme.NewRenewResultError(fmt.Sprintf("%s: %s", acme.ErrStoreFailed, err))
	}
	if existing == nil {
		if err := store.Save(ctx, cert); err != nil {
			return acme.NewRenewResultError(fmt.Sprintf("%s: %s", acme.ErrStoreFailed, err))
		}
	}

	oldCert := sr.CurrentCertificate

	// 8. Sequential installation, "step i/N" progress logging. Per Open
	// Question (a), one installer failing aborts the loop but does not
	// retry earlier installers.
	for i, installer := range rs.Installers() {
		logger.Info("running installation step", "step", i+1, "of", len(rs.Installers()))
		if err := installer.Install(ctx, cert, oldCert); err != nil {
			return acme.NewRenewResultError(fmt.Sprintf("%s: step %d/%d: %s", acme.ErrInstallFailed, i+1, len(rs.Installers()), err))
		}
		if rn.services.Metrics != nil {
			rn.services.Metrics.InstallStepsTotal.Inc()
		}
	}

	// 9. Conditional prune of the old certificate. Per Open Question (b) a
	// prune failure is logged but does not flip Success back to false.
	if oldCert != nil && oldCert.Thumbprint != cert.Thumbprint && !sr.KeepExistingCertificate() {
		if err := store.Delete(ctx, oldCert); err != nil {
			logger.Warn("prune old certificate failed", "error", fmt.Errorf("%w: %s", acme.ErrPruneFailed, err))
		}
	}

	result = acme.NewRenewResultSuccess(cert)
	sr.CurrentCertificate = cert

	// 10. Scheduled-task registration, only on a new renewal and only when
	// the caller hasn't suppressed it.
	if sr.New && rn.services.TaskScheduler != nil && !rn.taskSchedulerDisabled() {
		if err := rn.services.TaskScheduler.EnsureScheduled(ctx, *sr); err != nil {
			logger.Warn("ensure scheduled task failed", "error", err)
		}
	}

	// 11. Return the result; the caller (the scheduler loop) persists it
	// via the renewal registry, for both success and failure.
	return result
}

func (rn *Renewer) taskSchedulerDisabled() bool { return rn.opts.NoTaskScheduler }

func (rn *Renewer) resolveStore(sr *acme.ScheduledRenewal) (plugin.StorePlugin, error) {
	name := sr.CertificateStore
	if name == "" {
		name = "central-ssl-store"
	}
	store, ok := rn.services.Plugins.Store[name]
	if !ok {
		return nil, fmt.Errorf("%w: no store plugin named %s", acme.ErrPluginUnavailable, name)
	}
	return store, nil
}

func unionHosts(subs []acme.Target) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range subs {
		for _, h := range t.Hosts(true) {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

func buildCSR(identifiers []string) (key []byte, csr []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: generate certificate key: %w", err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: marshal certificate key: %w", err)
	}

	template := &x509.CertificateRequest{DNSNames: identifiers}
	csrBytes, err := x509.CreateCertificateRequest(rand.Reader, template, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: create csr: %w", err)
	}
	return keyBytes, csrBytes, nil
}
