// Package notify implements the InstallationPlugin that emails an operator
// once a certificate has been renewed, using mailyak the way
// dmitrymomot/foundation's mailer wraps it for transactional mail.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/domodwyer/mailyak/v3"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

const Name = "notify"

// Factory builds the email-notification InstallationPlugin.
type Factory struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

func (f Factory) Name() string        { return Name }
func (f Factory) Description() string { return "emails an operator when a certificate is renewed" }

func (f Factory) Default(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options) (plugin.InstallationPlugin, error) {
	return &Plugin{factory: f, renewal: r}, nil
}

func (f Factory) Acquire(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.InstallationPlugin, error) {
	return f.Default(ctx, r, opts)
}

// Plugin sends one email per successful Install call.
type Plugin struct {
	factory Factory
	renewal acme.ScheduledRenewal
}

func (p *Plugin) Install(ctx context.Context, newCert, oldCert *acme.CertRecord) error {
	if len(p.factory.To) == 0 {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", p.factory.SMTPHost, p.factory.SMTPPort)
	var auth smtp.Auth
	if p.factory.Username != "" {
		auth = smtp.PlainAuth("", p.factory.Username, p.factory.Password, p.factory.SMTPHost)
	}
	mail := mailyak.New(addr, auth)
	mail.From(p.factory.From)
	mail.FromName("renewkit")
	mail.To(p.factory.To...)
	mail.Subject(fmt.Sprintf("certificate renewed: %s", p.renewal.Target.Host))

	body := strings.Builder{}
	fmt.Fprintf(&body, "%s renewed.\nThumbprint: %s\nExpires: %s\n",
		p.renewal.Target.Host, newCert.Thumbprint, acme.FormatTime(newCert.ExpiresAt))
	mail.Plain().Set(body.String())

	if err := mail.Send(); err != nil {
		return fmt.Errorf("install/notify: send mail: %w", err)
	}
	return nil
}
