package acme

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTargetEqual(t *testing.T) {
	a := Target{Host: "example.com", TargetPluginName: "static", ValidationPlugin: "webroot", ChallengeType: "http-01"}
	b := a
	assert.True(t, a.Equal(b))

	b.AlternativeNames = []string{"www.example.com"}
	assert.True(t, a.Equal(b), "alternative names don't participate in identity")

	b = a
	b.ChallengeType = "dns-01"
	assert.False(t, a.Equal(b))
}

func TestTargetHosts(t *testing.T) {
	target := Target{Host: "example.com", AlternativeNames: []string{"www.example.com", "example.com", "api.example.com"}}

	assert.Equal(t, []string{"example.com", "www.example.com", "api.example.com"}, target.Hosts(true))
	assert.Equal(t, []string{"www.example.com", "api.example.com"}, target.Hosts(false))
}

func TestTargetHosts_EmptyPrimary(t *testing.T) {
	target := Target{AlternativeNames: []string{"alt.example.com"}}
	assert.Equal(t, []string{"alt.example.com"}, target.Hosts(true), "an empty primary host is skipped, not emitted as \"\"")
}

func TestRenewResultConstructors(t *testing.T) {
	errResult := NewRenewResultError("boom")
	assert.False(t, errResult.Success)
	assert.Equal(t, "boom", errResult.ErrorMessage)
	assert.Nil(t, errResult.Certificate)

	cert := &CertRecord{Thumbprint: "abc"}
	okResult := NewRenewResultSuccess(cert)
	assert.True(t, okResult.Success)
	assert.Same(t, cert, okResult.Certificate)
	assert.Empty(t, okResult.ErrorMessage)
}

func TestScheduledRenewalKeepExistingCertificate(t *testing.T) {
	var sr ScheduledRenewal
	assert.False(t, sr.KeepExistingCertificate(), "nil KeepExisting defaults to false")

	yes := true
	sr.KeepExisting = &yes
	assert.True(t, sr.KeepExistingCertificate())

	no := false
	sr.KeepExisting = &no
	assert.False(t, sr.KeepExistingCertificate())
}

func TestFormatParseTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	formatted := FormatTime(now)
	parsed, err := ParseTime(formatted)
	assert.NoError(t, err)
	assert.True(t, now.Equal(parsed))

	assert.Equal(t, "", FormatTime(time.Time{}))
	zero, err := ParseTime("")
	assert.NoError(t, err)
	assert.True(t, zero.IsZero())
}
