// Package tlsalpn01 implements the TLS-ALPN-01 ValidationPlugin: it stands
// up a short-lived TLS listener on the validation port presenting the
// self-signed challenge certificate, mirroring lego's own
// challenge/tlsalpn01 provider server.
package tlsalpn01

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/go-acme/lego/v4/challenge/tlsalpn01"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

const (
	Name          = "tls-alpn"
	ChallengeType = "tls-alpn-01"
)

// Factory builds the TLS-ALPN-01 ValidationPlugin.
type Factory struct {
	// Host is the bind address; empty binds all interfaces.
	Host string
}

func (f Factory) Name() string          { return Name }
func (f Factory) Description() string   { return "TLS-ALPN-01 challenge via a short-lived TLS listener" }
func (f Factory) ChallengeType() string { return ChallengeType }

func (f Factory) CanValidate(t acme.Target) bool { return t.ValidationPort > 0 }

func (f Factory) Default(ctx context.Context, t acme.Target, opts acme.Options) (plugin.ValidationPlugin, error) {
	port := t.ValidationPort
	if port == 0 {
		port = 443
	}
	return &Plugin{addr: net.JoinHostPort(f.Host, strconv.Itoa(port)), domain: t.Host}, nil
}

func (f Factory) Acquire(ctx context.Context, t acme.Target, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.ValidationPlugin, error) {
	return f.Default(ctx, t, opts)
}

// Plugin serves the challenge certificate for the lifetime of one
// validation attempt.
type Plugin struct {
	addr     string
	domain   string
	listener net.Listener
	done     chan struct{}
}

func (p *Plugin) PrepareChallenge(ctx context.Context, details plugin.ChallengeDetails) error {
	cert, err := tlsalpn01.ChallengeCert(p.domain, details.KeyAuth)
	if err != nil {
		return fmt.Errorf("validation/tlsalpn01: build challenge cert: %w", err)
	}

	ln, err := tls.Listen("tcp", p.addr, &tls.Config{
		Certificates: []tls.Certificate{*cert},
		NextProtos:   []string{tlsalpn01.ACMETLS1Protocol},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("validation/tlsalpn01: listen on %s: %w", p.addr, err)
	}
	p.listener = ln
	p.done = make(chan struct{})
	go p.serve()
	return nil
}

func (p *Plugin) serve() {
	defer close(p.done)
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		// The TLS handshake alone satisfies the challenge; the peer needs
		// nothing further from the connection.
		conn.Close()
	}
}

// Close stops the listener started by PrepareChallenge, if any.
func (p *Plugin) Close() error {
	if p.listener == nil {
		return nil
	}
	ln := p.listener
	p.listener = nil
	err := ln.Close()
	if p.done != nil {
		<-p.done
	}
	return err
}
