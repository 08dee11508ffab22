package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewkit/acme"
)

func TestFactory_Default(t *testing.T) {
	f := Factory{Domains: []string{"example.com", "www.example.com", "api.example.com"}}
	p := f.New()

	target, err := p.Default(context.Background(), acme.Options{})
	require.NoError(t, err)
	assert.Equal(t, "example.com", target.Host)
	assert.Equal(t, []string{"www.example.com", "api.example.com"}, target.AlternativeNames)
	assert.Equal(t, Name, target.TargetPluginName)
}

func TestFactory_Default_NoDomainsConfigured(t *testing.T) {
	f := Factory{}
	p := f.New()

	_, err := p.Default(context.Background(), acme.Options{})
	assert.Error(t, err)
}

func TestPlugin_RefreshPreservesPluginCoordinates(t *testing.T) {
	f := Factory{Domains: []string{"example.com"}}
	p := f.New()

	prior := acme.Target{
		Host:             "example.com",
		TargetPluginName: Name,
		ValidationPlugin: "webroot",
		ChallengeType:    "http-01",
		ValidationPort:   8080,
	}

	refreshed, err := p.Refresh(context.Background(), prior)
	require.NoError(t, err)
	assert.Equal(t, "webroot", refreshed.ValidationPlugin)
	assert.Equal(t, "http-01", refreshed.ChallengeType)
	assert.Equal(t, 8080, refreshed.ValidationPort)
}

func TestPlugin_SplitNeverPartitions(t *testing.T) {
	f := Factory{Domains: []string{"example.com", "www.example.com"}}
	p := f.New()
	target := acme.Target{Host: "example.com", AlternativeNames: []string{"www.example.com"}}

	subs, err := p.Split(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, target, subs[0])
}
