// Package dns01 implements the DNS-01 ValidationPlugin against Cloudflare
// DNS, grounded on the teacher's CertRenewalHandler (which wires
// lego/providers/dns/cloudflare the same way) and enriched with an
// miekg/dns propagation pre-check before the challenge is submitted to the
// CA — the same precaution lego's own dns01 solver applies internally.
package dns01

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/miekg/dns"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

const (
	Name          = "cloudflare"
	ChallengeType = "dns-01"
)

// Factory builds the Cloudflare DNS-01 ValidationPlugin.
type Factory struct {
	APIToken string
	// Resolvers are the nameservers (host:port) queried during the
	// propagation pre-check. Defaults to public recursive resolvers when
	// empty.
	Resolvers []string
	// PropagationTimeout bounds how long PrepareChallenge waits for the
	// TXT record to propagate before giving up.
	PropagationTimeout time.Duration
}

func (f Factory) Name() string          { return Name }
func (f Factory) Description() string   { return "DNS-01 challenge via a Cloudflare-managed TXT record" }
func (f Factory) ChallengeType() string { return ChallengeType }

func (f Factory) CanValidate(t acme.Target) bool { return f.APIToken != "" }

func (f Factory) Default(ctx context.Context, t acme.Target, opts acme.Options) (plugin.ValidationPlugin, error) {
	api, err := cloudflare.NewWithAPIToken(f.APIToken)
	if err != nil {
		return nil, fmt.Errorf("validation/dns01: create cloudflare client: %w", err)
	}
	resolvers := f.Resolvers
	if len(resolvers) == 0 {
		resolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	timeout := f.PropagationTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Plugin{api: api, resolvers: resolvers, propagationTimeout: timeout}, nil
}

func (f Factory) Acquire(ctx context.Context, t acme.Target, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.ValidationPlugin, error) {
	return f.Default(ctx, t, opts)
}

// Plugin creates, propagation-checks, and later removes one TXT record.
type Plugin struct {
	api                *cloudflare.API
	resolvers          []string
	propagationTimeout time.Duration

	zoneID   string
	recordID string
	fqdn     string
}

func (p *Plugin) PrepareChallenge(ctx context.Context, details plugin.ChallengeDetails) error {
	fqdn := dns01.ToFqdn(details.DNSRecordFQDN)
	zoneID, err := p.api.ZoneIDByName(dns01.UnFqdn(effectiveZone(fqdn)))
	if err != nil {
		return fmt.Errorf("validation/dns01: resolve zone for %s: %w", fqdn, err)
	}
	rc := cloudflare.ZoneIdentifier(zoneID)
	record, err := p.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:    "TXT",
		Name:    dns01.UnFqdn(fqdn),
		Content: details.KeyAuth,
		TTL:     120,
	})
	if err != nil {
		return fmt.Errorf("validation/dns01: create TXT record: %w", err)
	}
	p.zoneID = zoneID
	p.recordID = record.ID
	p.fqdn = fqdn

	return p.waitForPropagation(ctx, fqdn, expectedTXT(details))
}

func (p *Plugin) waitForPropagation(ctx context.Context, fqdn, value string) error {
	ctx, cancel := context.WithTimeout(ctx, p.propagationTimeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		if p.propagated(fqdn, value) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("validation/dns01: TXT record for %s did not propagate within %s", fqdn, p.propagationTimeout)
		case <-ticker.C:
		}
	}
}

func (p *Plugin) propagated(fqdn, value string) bool {
	for _, resolver := range p.resolvers {
		c := new(dns.Client)
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)
		in, _, err := c.Exchange(m, resolver)
		if err != nil || in == nil {
			return false
		}
		found := false
		for _, rr := range in.Answer {
			txt, ok := rr.(*dns.TXT)
			if !ok {
				continue
			}
			for _, s := range txt.Txt {
				if s == value {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Close deletes the TXT record created by PrepareChallenge, if any.
func (p *Plugin) Close() error {
	if p.recordID == "" {
		return nil
	}
	rc := cloudflare.ZoneIdentifier(p.zoneID)
	recordID, zoneID := p.recordID, p.zoneID
	p.recordID, p.zoneID = "", ""
	if err := p.api.DeleteDNSRecord(context.Background(), rc, recordID); err != nil {
		return fmt.Errorf("validation/dns01: delete TXT record in zone %s: %w", zoneID, err)
	}
	return nil
}

// expectedTXT returns the value the TXT record must carry; the DNS-01 spec
// base64url-encodes SHA-256(keyAuth) but the ACME client wrapper already
// performs that encoding and hands us the final value via KeyAuth.
func expectedTXT(details plugin.ChallengeDetails) string {
	return details.KeyAuth
}

// effectiveZone trims the "_acme-challenge." label to find the zone lego's
// own dns01 solver would register the record under; a real implementation
// would walk up via NS lookups (as lego does), this module assumes the
// apex zone equals the domain minus that label for simplicity.
func effectiveZone(fqdn string) string {
	const label = "_acme-challenge."
	if len(fqdn) > len(label) && fqdn[:len(label)] == label {
		return fqdn[len(label):]
	}
	return fqdn
}
