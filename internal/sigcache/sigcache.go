// Package sigcache memoizes signature verification results. CRL and OCSP
// validation both call into certadapter.Verifier, which for RSA/ECDSA is
// CPU-bound and, under a busy verifier processing many checks against the
// same cached CRL or the same cached OCSP response, ends up re-verifying
// an identical (algorithm, tbs, signature, key) tuple repeatedly. This
// package memoizes that result behind an LRU bound, the same role
// github.com/hashicorp/golang-lru plays elsewhere (Vault uses it too,
// albeit for a different cache), except here recency of access is
// exactly what should drive eviction -- unlike crl.Cache, which needs
// pure insertion-order eviction instead.
package sigcache

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/hashicorp/revoke-core/certadapter"
)

const defaultSize = 512

// Cache wraps a certadapter.Verifier with a memo of prior verification
// outcomes.
type Cache struct {
	verifier certadapter.Verifier
	lru      *lru.Cache
	mu       sync.Mutex
}

// New wraps verifier with an LRU memo of the given size. A size <= 0 uses
// defaultSize.
func New(verifier certadapter.Verifier, size int) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	l, err := lru.New(size)
	if err != nil {
		// Only returns an error for size <= 0, already guarded above.
		panic(err)
	}
	return &Cache{verifier: verifier, lru: l}
}

// Verify behaves exactly like the wrapped Verifier's Verify, except a
// repeat call with an identical (alg, tbs, sig, pub) tuple returns the
// memoized result instead of re-invoking the verifier.
func (c *Cache) Verify(alg pkix.AlgorithmIdentifier, tbs, sig []byte, pub crypto.PublicKey) error {
	key, keyable := memoKey(alg, tbs, sig, pub)
	if keyable {
		c.mu.Lock()
		if v, ok := c.lru.Get(key); ok {
			c.mu.Unlock()
			if v == nil {
				return nil
			}
			return v.(error)
		}
		c.mu.Unlock()
	}

	err := c.verifier.Verify(alg, tbs, sig, pub)

	if keyable {
		c.mu.Lock()
		c.lru.Add(key, err)
		c.mu.Unlock()
	}
	return err
}

// memoKey hashes the verification inputs into a fixed-size digest. The
// public key is re-marshaled to DER so that two distinct keys never
// collide on the memo; keys that don't round-trip through
// MarshalPKIXPublicKey (e.g. a hardware key handle) make the tuple
// non-keyable, and Verify falls back to calling through unconditionally.
func memoKey(alg pkix.AlgorithmIdentifier, tbs, sig []byte, pub crypto.PublicKey) (string, bool) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", false
	}
	h := sha256.New()
	h.Write([]byte(alg.Algorithm.String()))
	h.Write(tbs)
	h.Write(sig)
	h.Write(pubDER)
	return hex.EncodeToString(h.Sum(nil)), true
}
