package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/renewkit/acme"
)

// pollMaxTries bounds the DECODE-and-recheck loop in the POLL state: a
// fixed 2s interval, four tries, then CLASSIFY treats the authorization as
// still pending/invalid.
const pollMaxTries = 4

// errStillPending signals the backoff loop to retry; it never escapes
// pollChallenge.
var errStillPending = errors.New("challenge still pending")

// invalidChallenge is returned from every early-exit path of
// AuthorizeIdentifier so callers never have to nil-check.
func invalidChallenge(errMsg string) *acme.Challenge {
	return &acme.Challenge{Status: "invalid", Error: errMsg}
}

// AuthorizeIdentifier drives one identifier's authorization through its
// eight states: CACHED-CHECK, PLUGIN-RESOLVE, CHALLENGE-SELECT,
// EARLY-VALID, PREPARE, SUBMIT, POLL, CLASSIFY. It always returns a
// non-nil challenge describing the terminal status.
func AuthorizeIdentifier(ctx context.Context, services *Services, parent *RenewalScope, order *acme.Order, sub acme.Target, authz *acme.Authorization) (result *acme.Challenge) {
	logger := services.Logger.With("identifier", authz.Identifier)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("authorization panicked", "panic", r)
			result = invalidChallenge("internal error during authorization")
		}
	}()

	if services.Metrics != nil {
		services.Metrics.AuthorizationsTotal.Inc()
	}

	// 1. CACHED-CHECK: an already-valid authorization (the CA's cached state
	// from a prior attempt) short-circuits, except in test mode, which always
	// re-validates to exercise the full path.
	if authz.Status == "valid" && !parent.renewal.TestMode {
		return &acme.Challenge{Status: "valid"}
	}

	// 2. PLUGIN-RESOLVE
	identScope, err := parent.Identifier(ctx, sub, authz.Identifier)
	if err != nil {
		logger.Error("plugin resolve failed", "error", err)
		return invalidChallenge(err.Error())
	}
	defer func() {
		if cerr := identScope.Close(); cerr != nil {
			logger.Warn("validation plugin close failed", "error", cerr)
		}
	}()

	// 3. CHALLENGE-SELECT
	sel := services.Plugins.SelectValidationUnattended(sub.ValidationPlugin, sub)
	if sel.Unavailable {
		logger.Error("no validation factory available", "reason", sel.Reason)
		return invalidChallenge(sel.Reason)
	}
	var chosen *acme.Challenge
	for i := range authz.Challenges {
		if authz.Challenges[i].Type == sel.Factory.ChallengeType() {
			chosen = &authz.Challenges[i]
			break
		}
	}
	if chosen == nil {
		logger.Error("no matching challenge type offered", "want", sel.Factory.ChallengeType())
		return invalidChallenge("CA offered no challenge of type " + sel.Factory.ChallengeType())
	}

	// 4. EARLY-VALID
	if chosen.Status == "valid" {
		return chosen
	}

	// 5. PREPARE
	details, err := services.ACMEClient.GetChallengeDetails(ctx, authz, chosen)
	if err != nil {
		logger.Error("build challenge details failed", "error", err)
		return invalidChallenge(err.Error())
	}
	if err := identScope.Validation().PrepareChallenge(ctx, details); err != nil {
		logger.Error("prepare challenge failed", "error", err)
		return invalidChallenge(err.Error())
	}

	// 6. SUBMIT
	submitted, err := services.ACMEClient.SubmitChallengeAnswer(ctx, chosen)
	if err != nil {
		logger.Error("submit challenge failed", "error", err)
		return invalidChallenge(err.Error())
	}

	// 7. POLL
	final := pollChallenge(ctx, services, logger, submitted)

	// 8. CLASSIFY
	if final.Status != "valid" {
		logger.Warn("authorization did not validate", "status", final.Status, "error", final.Error)
	}
	return final
}

func pollChallenge(ctx context.Context, services *Services, logger *slog.Logger, ch *acme.Challenge) *acme.Challenge {
	// WithMaxRetries(b, n) allows the first attempt plus n retries, i.e.
	// n+1 total invocations, so pass pollMaxTries-1 to land on exactly
	// pollMaxTries calls to DecodeChallenge.
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), pollMaxTries-1), ctx)

	var latest *acme.Challenge
	op := func() error {
		decoded, err := services.ACMEClient.DecodeChallenge(ctx, ch.URL)
		if err != nil {
			return err
		}
		latest = decoded
		if decoded.Status == "pending" || decoded.Status == "processing" {
			return errStillPending
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil && latest == nil {
		logger.Error("poll challenge failed", "error", err)
		return invalidChallenge(err.Error())
	}
	if latest == nil {
		return invalidChallenge("challenge status never resolved")
	}
	return latest
}
