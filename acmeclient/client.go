// Package acmeclient is the only package in this module performing ACME
// network I/O. It wraps go-acme/lego's account/registration machinery
// (exactly as the teacher's CertRenewalHandler does) together with lego's
// lower-level acme/api order/authorization/challenge services, so the
// engine package can drive its own per-identifier authorization state
// machine instead of delegating the whole flow to lego's high-level
// certificate.Obtain.
package acmeclient

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/go-acme/lego/v4/acme/api"
	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
)

// Client is the granular ACME protocol contract C5's authorization driver
// is built against.
type Client interface {
	CreateOrder(ctx context.Context, identifiers []string) (*acme.Order, error)
	GetAuthorizationDetails(ctx context.Context, url string) (*acme.Authorization, error)
	GetChallengeDetails(ctx context.Context, authz *acme.Authorization, ch *acme.Challenge) (plugin.ChallengeDetails, error)
	SubmitChallengeAnswer(ctx context.Context, ch *acme.Challenge) (*acme.Challenge, error)
	DecodeChallenge(ctx context.Context, url string) (*acme.Challenge, error)
	FinalizeOrder(ctx context.Context, order *acme.Order, csr []byte) (*acme.CertRecord, error)
}

// acmeUser implements lego's registration.User, matching the teacher's
// AcmeUser helper type verbatim.
type acmeUser struct {
	email        string
	registration *registration.Resource
	privateKey   crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                       { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.privateKey }

// client is the default Client, backed by lego's account registration plus
// its acme/api core for order/authorization/challenge primitives.
type client struct {
	core *api.Core
	kid  string
}

// NewClient registers (or re-resolves) the ACME account at caDirURL using
// accountKey, enforcing TLS 1.2 minimum on the transport per the external
// interface contract, and returns a Client ready to drive orders.
func NewClient(ctx context.Context, caDirURL, email string, accountKey crypto.PrivateKey) (Client, error) {
	if accountKey == nil {
		var err error
		accountKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("acmeclient: generate account key: %w", err)
		}
	}

	user := &acmeUser{email: email, privateKey: accountKey}
	cfg := lego.NewConfig(user)
	cfg.CADirURL = caDirURL
	cfg.Certificate.KeyType = certcrypto.EC256
	cfg.HTTPClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	legoClient, err := lego.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: create client: %w", err)
	}

	reg, err := legoClient.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("acmeclient: register account %s: %w", email, err)
	}
	user.registration = reg

	core, err := api.New(cfg.HTTPClient, cfg.UserAgent, cfg.CADirURL, reg.URI, accountKey)
	if err != nil {
		return nil, fmt.Errorf("acmeclient: build api core: %w", err)
	}

	return &client{core: core, kid: reg.URI}, nil
}

func (c *client) CreateOrder(ctx context.Context, identifiers []string) (*acme.Order, error) {
	order, err := c.core.Orders.New(identifiers)
	if err != nil {
		return nil, wrapProblem("create order", err)
	}

	return &acme.Order{
		Identifiers:       identifiers,
		AuthorizationURLs: order.Authorizations,
		FinalizeURL:       order.Finalize,
		URL:               order.Location,
	}, nil
}

func (c *client) GetAuthorizationDetails(ctx context.Context, url string) (*acme.Authorization, error) {
	authz, err := c.core.Authorizations.Get(url)
	if err != nil {
		return nil, wrapProblem("get authorization", err)
	}

	out := &acme.Authorization{
		Status:     string(authz.Status),
		Identifier: authz.Identifier.Value,
	}
	for _, ch := range authz.Challenges {
		out.Challenges = append(out.Challenges, acme.Challenge{
			Type:   ch.Type,
			URL:    ch.URL,
			Status: string(ch.Status),
			Token:  ch.Token,
		})
	}
	return out, nil
}

func (c *client) GetChallengeDetails(ctx context.Context, authz *acme.Authorization, ch *acme.Challenge) (plugin.ChallengeDetails, error) {
	keyAuth, err := c.core.GetKeyAuthorization(ch.Token)
	if err != nil {
		return plugin.ChallengeDetails{}, fmt.Errorf("acmeclient: build key authorization: %w", err)
	}

	details := plugin.ChallengeDetails{Token: ch.Token, KeyAuth: keyAuth}
	if ch.Type == "dns-01" {
		details.DNSRecordFQDN = "_acme-challenge." + authz.Identifier
		details.DNSRecordTTL = 120
		details.KeyAuth = dns01.GetChallengeInfo(authz.Identifier, keyAuth).Value
	}
	return details, nil
}

func (c *client) SubmitChallengeAnswer(ctx context.Context, ch *acme.Challenge) (*acme.Challenge, error) {
	updated, err := c.core.Challenges.New(ch.URL)
	if err != nil {
		return nil, wrapProblem("submit challenge", err)
	}
	return &acme.Challenge{
		Type:   updated.Type,
		URL:    updated.URL,
		Status: string(updated.Status),
		Token:  updated.Token,
	}, nil
}

func (c *client) DecodeChallenge(ctx context.Context, url string) (*acme.Challenge, error) {
	ch, err := c.core.Challenges.Get(url)
	if err != nil {
		return nil, wrapProblem("poll challenge", err)
	}

	out := &acme.Challenge{Type: ch.Type, URL: ch.URL, Status: string(ch.Status), Token: ch.Token}
	if ch.Error != nil {
		out.Error = ch.Error.Detail
	}
	return out, nil
}

func (c *client) FinalizeOrder(ctx context.Context, order *acme.Order, csr []byte) (*acme.CertRecord, error) {
	resp, err := c.core.Orders.UpdateForCSR(order.FinalizeURL, csr)
	if err != nil {
		return nil, wrapProblem("finalize order", err)
	}

	cert, _, err := c.core.Certificates.Get(resp.Certificate, true)
	if err != nil {
		return nil, wrapProblem("download certificate", err)
	}

	return &acme.CertRecord{CertificateChain: cert}, nil
}

// wrapProblem translates a lego acme.ProblemDetails-shaped error (the CA's
// RFC 7807 problem document) into acme.AcmeError; any other transport error
// is wrapped plainly.
func wrapProblem(step string, err error) error {
	var problem *legoacme.ProblemDetails
	if errors.As(err, &problem) {
		return &acme.AcmeError{Detail: problem.Detail, ProblemType: problem.Type, StatusCode: problem.HTTPStatus}
	}
	return fmt.Errorf("acmeclient: %s: %w", step, err)
}
