package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/renewkit/acme"
	"github.com/renewkit/acme/acmeclient"
)

// reissueCacheTTL bounds how long a freshly finalized certificate is kept
// around for a same-window reissue to reuse, per spec.md §6's caching hint.
const reissueCacheTTL = 10 * time.Minute

// CertificateService requests certificates from the ACME client wrapper,
// short-circuiting repeat requests within reissueCacheTTL that carry the
// same reissue key and the same CSR bytes. Renewer.Renew generates a fresh
// key and CSR on every attempt, so its requests do not hit this cache: a
// renewal retried shortly after success is issued a new certificate.
type CertificateService struct {
	client acmeclient.Client
	cache  *ristretto.Cache[string, *acme.CertRecord]
}

// NewCertificateService wraps client with a reissue cache.
func NewCertificateService(client acmeclient.Client) (*CertificateService, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *acme.CertRecord]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build reissue cache: %w", err)
	}
	return &CertificateService{client: client, cache: cache}, nil
}

// Obtain finalizes order with csr, returning a cached certificate if one
// was issued for the same reissueKey and csr within reissueCacheTTL.
func (c *CertificateService) Obtain(ctx context.Context, order *acme.Order, csr []byte, reissueKey string) (*acme.CertRecord, error) {
	key := cacheKey(reissueKey, csr)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	cert, err := c.client.FinalizeOrder(ctx, order, csr)
	if err != nil {
		return nil, err
	}

	cert.Thumbprint = thumbprint(cert.CertificateChain)
	cert.IssuedAt = time.Now()
	c.cache.SetWithTTL(key, cert, 1, reissueCacheTTL)
	c.cache.Wait()
	return cert, nil
}

func cacheKey(reissueKey string, csr []byte) string {
	sum := sha256.Sum256(append([]byte(reissueKey), csr...))
	return hex.EncodeToString(sum[:])
}

// thumbprint is the stable store key for a certificate chain: the hex
// SHA-256 of the whole chain bytes as returned by FinalizeOrder.
func thumbprint(chain []byte) string {
	sum := sha256.Sum256(chain)
	return hex.EncodeToString(sum[:])
}
