package acme

// Options mirrors the CLI surface the renewal engine observes, per
// spec.md §6. Parsing flags into this struct, and prompting interactively
// when a field is left at its zero value, are both out of scope for this
// module — cmd/ binds them from flag.FlagSet.
type Options struct {
	Renew         bool
	ForceRenewal  bool
	Cancel        bool
	CloseOnFinish bool
	Test          bool
	Warmup        bool

	Plugin           string
	Validation       string
	ValidationMode   string
	Installation     []string

	Script           string
	ScriptParameters []string

	CentralSslStore  string
	CertificateStore string
	KeepExisting     *bool

	SSLPort        int
	SSLIPAddress   string
	ValidationPort int

	NoTaskScheduler bool
}

// ToTarget builds the plugin-coordinate portion of a Target from options,
// leaving Host/AlternativeNames for the target plugin to fill in.
func (o Options) ToTarget() Target {
	return Target{
		TargetPluginName: o.Plugin,
		ValidationPlugin: o.Validation,
		ChallengeType:    o.ValidationMode,
		ValidationPort:   o.ValidationPort,
		InstallationPorts: InstallationParams{
			SSLPort:      o.SSLPort,
			SSLIPAddress: o.SSLIPAddress,
		},
	}
}
