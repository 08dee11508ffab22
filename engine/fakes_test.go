package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/plugin"
	"github.com/renewkit/acme/registry"
)

// fakeRegistry is an in-memory registry.Registry for the renewal driver and
// scheduler tests; it tracks exactly the rows Save/Cancel mutate.
type fakeRegistry struct {
	mu   sync.Mutex
	rows map[string]acme.ScheduledRenewal
}

func newFakeRegistry(rows ...acme.ScheduledRenewal) *fakeRegistry {
	r := &fakeRegistry{rows: map[string]acme.ScheduledRenewal{}}
	for _, row := range rows {
		r.rows[row.Target.Host] = row
	}
	return r
}

func (r *fakeRegistry) Find(ctx context.Context, t acme.Target) (*acme.ScheduledRenewal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[t.Host]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// Save mirrors registry/sqlite's Store.Save closely enough for scheduler
// and renewal driver tests to observe a real due-date advance on success.
func (r *fakeRegistry) Save(ctx context.Context, sr *acme.ScheduledRenewal, result acme.RenewResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	sr.LastRun = now
	if result.Success {
		sr.NextDue = now.Add(registry.RenewalWindow)
		sr.New = false
		sr.Updated = false
	}
	r.rows[sr.Target.Host] = *sr
	return nil
}

func (r *fakeRegistry) Cancel(ctx context.Context, t acme.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, t.Host)
	return nil
}

func (r *fakeRegistry) Renewals(ctx context.Context) ([]acme.ScheduledRenewal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]acme.ScheduledRenewal, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

// fakeACMEClient scripts the ACME client wrapper's responses for one test.
type fakeACMEClient struct {
	mu sync.Mutex

	order *acme.Order
	authz map[string]*acme.Authorization

	decodeSequence   []acme.Challenge
	decodeCalls      int
	submitCalls      int
	prepareCalls     int
	finalizeCalls    int
	createOrderCalls int

	finalizeErr error
	cert        *acme.CertRecord
}

func (c *fakeACMEClient) CreateOrder(ctx context.Context, identifiers []string) (*acme.Order, error) {
	c.mu.Lock()
	c.createOrderCalls++
	c.mu.Unlock()
	c.order.Identifiers = identifiers
	return c.order, nil
}

func (c *fakeACMEClient) GetAuthorizationDetails(ctx context.Context, url string) (*acme.Authorization, error) {
	a, ok := c.authz[url]
	if !ok {
		return nil, errors.New("fake: unknown authorization url")
	}
	return a, nil
}

func (c *fakeACMEClient) GetChallengeDetails(ctx context.Context, authz *acme.Authorization, ch *acme.Challenge) (plugin.ChallengeDetails, error) {
	return plugin.ChallengeDetails{Token: ch.Token, KeyAuth: "key-auth-" + ch.Token}, nil
}

func (c *fakeACMEClient) SubmitChallengeAnswer(ctx context.Context, ch *acme.Challenge) (*acme.Challenge, error) {
	c.mu.Lock()
	c.submitCalls++
	c.mu.Unlock()
	return ch, nil
}

func (c *fakeACMEClient) DecodeChallenge(ctx context.Context, url string) (*acme.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.decodeCalls
	if idx >= len(c.decodeSequence) {
		idx = len(c.decodeSequence) - 1
	}
	c.decodeCalls++
	ch := c.decodeSequence[idx]
	return &ch, nil
}

func (c *fakeACMEClient) FinalizeOrder(ctx context.Context, order *acme.Order, csr []byte) (*acme.CertRecord, error) {
	c.mu.Lock()
	c.finalizeCalls++
	c.mu.Unlock()
	if c.finalizeErr != nil {
		return nil, c.finalizeErr
	}
	cert := *c.cert
	return &cert, nil
}

// fakeTargetPlugin never splits and never reports the target gone.
type fakeTargetPlugin struct{ target acme.Target }

func (f *fakeTargetPlugin) Default(ctx context.Context, opts acme.Options) (*acme.Target, error) {
	return &f.target, nil
}
func (f *fakeTargetPlugin) Acquire(ctx context.Context, opts acme.Options, input plugin.Input, level plugin.RunLevel) (*acme.Target, error) {
	return &f.target, nil
}
func (f *fakeTargetPlugin) Refresh(ctx context.Context, t acme.Target) (*acme.Target, error) {
	return &t, nil
}
func (f *fakeTargetPlugin) Split(ctx context.Context, t acme.Target) ([]acme.Target, error) {
	return []acme.Target{t}, nil
}

type fakeTargetFactory struct{ target acme.Target }

func (f fakeTargetFactory) Name() string        { return "fake" }
func (f fakeTargetFactory) Description() string { return "fake target" }
func (f fakeTargetFactory) New() plugin.TargetPlugin {
	return &fakeTargetPlugin{target: f.target}
}

// fakeValidationPlugin records PrepareChallenge/Close invocations.
type fakeValidationPlugin struct {
	prepareCalls int
	closeCalls   int
	prepareErr   error
}

func (f *fakeValidationPlugin) PrepareChallenge(ctx context.Context, details plugin.ChallengeDetails) error {
	f.prepareCalls++
	return f.prepareErr
}
func (f *fakeValidationPlugin) Close() error {
	f.closeCalls++
	return nil
}

type fakeValidationFactory struct {
	challengeType string
	plugin        *fakeValidationPlugin
}

func (f fakeValidationFactory) Name() string          { return "fake-validation" }
func (f fakeValidationFactory) Description() string   { return "fake validation" }
func (f fakeValidationFactory) ChallengeType() string { return f.challengeType }
func (f fakeValidationFactory) CanValidate(t acme.Target) bool { return true }
func (f fakeValidationFactory) Default(ctx context.Context, t acme.Target, opts acme.Options) (plugin.ValidationPlugin, error) {
	return f.plugin, nil
}
func (f fakeValidationFactory) Acquire(ctx context.Context, t acme.Target, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.ValidationPlugin, error) {
	return f.plugin, nil
}

// fakeStore records Save/Delete/FindByThumbprint call counts.
type fakeStore struct {
	mu          sync.Mutex
	byThumb     map[string]*acme.CertRecord
	saveCalls   int
	deleteCalls int
}

func newFakeStore() *fakeStore { return &fakeStore{byThumb: map[string]*acme.CertRecord{}} }

func (s *fakeStore) Name() string { return "fake-store" }
func (s *fakeStore) FindByThumbprint(ctx context.Context, thumbprint string) (*acme.CertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byThumb[thumbprint], nil
}
func (s *fakeStore) Save(ctx context.Context, cert *acme.CertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	s.byThumb[cert.Thumbprint] = cert
	return nil
}
func (s *fakeStore) Delete(ctx context.Context, cert *acme.CertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	delete(s.byThumb, cert.Thumbprint)
	return nil
}

// fakeTaskScheduler counts EnsureScheduled invocations.
type fakeTaskScheduler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTaskScheduler) EnsureScheduled(ctx context.Context, r acme.ScheduledRenewal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

// fakeInstaller records invocation order and can be made to fail.
type fakeInstaller struct {
	name  string
	calls *[]string
	err   error
}

func (f fakeInstaller) Install(ctx context.Context, newCert, oldCert *acme.CertRecord) error {
	*f.calls = append(*f.calls, f.name)
	return f.err
}

type fakeInstallFactory struct {
	name string
	plugin.InstallationPlugin
}

func (f fakeInstallFactory) Name() string {
	if f.name == "" {
		return "fake-install"
	}
	return f.name
}
func (f fakeInstallFactory) Description() string { return "fake install" }
func (f fakeInstallFactory) Default(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options) (plugin.InstallationPlugin, error) {
	return f.InstallationPlugin, nil
}
func (f fakeInstallFactory) Acquire(ctx context.Context, r acme.ScheduledRenewal, opts acme.Options, input plugin.Input, level plugin.RunLevel) (plugin.InstallationPlugin, error) {
	return f.InstallationPlugin, nil
}
