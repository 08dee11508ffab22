package acme

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plugin unavailable", ErrPluginUnavailable, 10},
		{"wrapped target gone", fmt.Errorf("refresh: %w", ErrTargetGone), 11},
		{"authorization failed", ErrAuthorizationFailed, 12},
		{"unrecognized", errors.New("something else"), 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ExitCodeForError(c.err))
		})
	}
}

func TestAcmeErrorMessage(t *testing.T) {
	withType := &AcmeError{Detail: "order not ready", ProblemType: "urn:ietf:params:acme:error:orderNotReady", StatusCode: 403}
	assert.Contains(t, withType.Error(), "orderNotReady")
	assert.Contains(t, withType.Error(), "order not ready")

	bare := &AcmeError{Detail: "unknown failure"}
	assert.Equal(t, "acme: unknown failure", bare.Error())

	var err error = &AcmeError{Detail: "boom"}
	assert.Error(t, err)
}
