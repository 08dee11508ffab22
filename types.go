package acme

import "time"

// Target describes the subject of a prospective certificate: a primary
// host, its alternative names, and the plugin coordinates that produced it.
// A Target is frozen once handed to the renewal driver, except that the
// target plugin may return a refreshed copy on each renewal.
type Target struct {
	Host              string   `toml:"host"`
	AlternativeNames  []string `toml:"alternative_names"`
	TargetPluginName  string   `toml:"target_plugin_name"`
	ValidationPlugin  string   `toml:"validation_plugin_name"`
	ChallengeType     string   `toml:"challenge_type"`
	InstallationPorts InstallationParams `toml:"installation_params"`
	ValidationPort    int      `toml:"validation_port"`
}

// InstallationParams carries the optional installation-time parameters a
// Target may be split or bound with: the HTTPS port and bind IP an
// installer should attach the certificate to.
type InstallationParams struct {
	SSLPort      int    `toml:"ssl_port"`
	SSLIPAddress string `toml:"ssl_ip_address"`
}

// Equal reports whether two targets refer to the same certificate identity:
// same primary host and same plugin coordinates. This is the equality used
// by the renewal registry's Find/Save matching rule.
func (t Target) Equal(o Target) bool {
	return t.Host == o.Host &&
		t.TargetPluginName == o.TargetPluginName &&
		t.ValidationPlugin == o.ValidationPlugin &&
		t.ChallengeType == o.ChallengeType
}

// Hosts returns the distinct DNS names carried by this target. When
// includePrimary is false, the primary Host is omitted from the result so
// callers can build the union of "extra" hosts across split sub-targets.
func (t Target) Hosts(includePrimary bool) []string {
	seen := make(map[string]struct{}, len(t.AlternativeNames)+1)
	var out []string
	add := func(h string) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	if includePrimary {
		add(t.Host)
	} else if t.Host != "" {
		seen[t.Host] = struct{}{}
	}
	for _, h := range t.AlternativeNames {
		add(h)
	}
	return out
}

// ScheduledRenewal is the persistent record pairing a Target with its run
// history and next-due date. The Target's plugin coordinates must be
// non-empty on any persisted record.
type ScheduledRenewal struct {
	Target Target `toml:"target"`

	LastRun time.Time `toml:"last_run"`
	NextDue time.Time `toml:"next_due"`

	New     bool `toml:"new"`
	Updated bool `toml:"updated"`

	TestMode bool `toml:"test_mode"`

	ScriptPath       string   `toml:"script_path"`
	ScriptParameters []string `toml:"script_parameters"`

	CentralSslStorePath string `toml:"central_ssl_store_path"`
	CertificateStore    string `toml:"certificate_store"`

	KeepExisting *bool `toml:"keep_existing"`

	InstallationPluginNames []string `toml:"installation_plugin_names"`

	Warmup bool `toml:"warmup"`

	// History of the certificate this record currently points at, so the
	// renewal driver can diff "old" against "new" for install/prune.
	CurrentCertificate *CertRecord `toml:"current_certificate,omitempty"`
}

// KeepExistingCertificate reports the effective keep-existing policy,
// defaulting to false (prune) when unset.
func (s *ScheduledRenewal) KeepExistingCertificate() bool {
	return s.KeepExisting != nil && *s.KeepExisting
}

// Order is the opaque ACME order handle: authorization URLs to drive and
// the finalization URL the engine posts the CSR to.
type Order struct {
	Identifiers         []string
	AuthorizationURLs   []string
	FinalizeURL         string
	URL                 string
}

// Authorization describes the CA's view of one identifier's proof state.
type Authorization struct {
	Status     string
	Identifier string
	Challenges []Challenge
}

// Challenge is one CA-offered proof method for an Authorization.
type Challenge struct {
	Type   string
	URL    string
	Status string
	Token  string
	Error  string
}

// CertRecord is a newly issued or previously stored certificate: its
// thumbprint (stable store key), the PEM bytes, and which store holds it.
type CertRecord struct {
	Thumbprint       string    `toml:"thumbprint"`
	Domains          []string  `toml:"domains"`
	CertificateChain []byte    `toml:"certificate_chain"`
	PrivateKey       []byte    `toml:"private_key"`
	IssuedAt         time.Time `toml:"issued_at"`
	ExpiresAt        time.Time `toml:"expires_at"`
	StoreName        string    `toml:"store_name"`
}

// RenewResult is the outcome of a single renewal attempt: whether it
// succeeded, an optional message, and an optional reference to the
// certificate produced (or adopted from the store).
type RenewResult struct {
	Success      bool
	ErrorMessage string
	Certificate  *CertRecord
}

// NewRenewResultError builds a failed RenewResult carrying a message.
func NewRenewResultError(msg string) RenewResult {
	return RenewResult{Success: false, ErrorMessage: msg}
}

// NewRenewResultSuccess builds a successful RenewResult around a
// certificate. cert may be nil (the test-mode short-circuit produces a
// success with no persisted certificate, per spec.md's Open Question (c)).
func NewRenewResultSuccess(cert *CertRecord) RenewResult {
	return RenewResult{Success: true, Certificate: cert}
}
