package acmeclient

import (
	"errors"
	"testing"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewkit/acme"
)

func TestWrapProblem_TranslatesProblemDetails(t *testing.T) {
	problem := &legoacme.ProblemDetails{
		Type:       "urn:ietf:params:acme:error:malformed",
		Detail:     "identifier value contains invalid characters",
		HTTPStatus: 400,
	}

	wrapped := wrapProblem("create order", problem)

	var acmeErr *acme.AcmeError
	require.True(t, errors.As(wrapped, &acmeErr))
	assert.Equal(t, "urn:ietf:params:acme:error:malformed", acmeErr.ProblemType)
	assert.Equal(t, "identifier value contains invalid characters", acmeErr.Detail)
	assert.Equal(t, 400, acmeErr.StatusCode)
}

func TestWrapProblem_PlainErrorWrapsWithStep(t *testing.T) {
	plain := errors.New("connection reset")
	wrapped := wrapProblem("poll challenge", plain)

	var acmeErr *acme.AcmeError
	assert.False(t, errors.As(wrapped, &acmeErr))
	assert.ErrorIs(t, wrapped, plain)
	assert.Contains(t, wrapped.Error(), "poll challenge")
}
