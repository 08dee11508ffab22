// Package registry is the renewal registry (C2): the durable record of
// every target this engine has been asked to keep renewed, and when each
// is next due.
package registry

import (
	"context"
	"time"

	"github.com/renewkit/acme"
)

// RenewalWindow is how far past a successful renewal the next one is due,
// matching the teacher's certificate lifetime assumptions for a 90-day CA.
const RenewalWindow = 60 * 24 * time.Hour

// Registry is the durable store of ScheduledRenewal records the scheduler
// loop (C7) drives from.
type Registry interface {
	// Find looks up the renewal matching t's identity (primary host plus
	// plugin coordinates), or returns nil, nil if none exists yet.
	Find(ctx context.Context, t acme.Target) (*acme.ScheduledRenewal, error)
	// Save upserts r, computing NextDue from result and clearing New/Updated
	// bookkeeping flags on success.
	Save(ctx context.Context, r *acme.ScheduledRenewal, result acme.RenewResult) error
	// Cancel removes the renewal matching t's identity.
	Cancel(ctx context.Context, t acme.Target) error
	// Renewals lists every tracked renewal, for the scheduler loop to sweep.
	Renewals(ctx context.Context) ([]acme.ScheduledRenewal, error)
}
