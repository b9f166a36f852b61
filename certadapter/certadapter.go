// Package certadapter is the narrow boundary onto the collaborators this
// module explicitly does not own: X.509 certificate attribute access and
// low-level cryptographic signature verification. Certificate parsing itself is delegated to the standard library's
// crypto/x509 -- in Go that *is* "a separate certificate library" in the
// sense the design means, so no adapter interface wraps it; this package
// only adds the handful of accessors x509.Certificate doesn't expose
// directly (the raw SPKI key bits, canonical issuer/subject DER) and the
// pluggable signature verifier the design calls for.
package certadapter

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"strings"
)

// HashAlg identifies the digest algorithm bound to a CertID.
type HashAlg int

const (
	HashSHA1 HashAlg = iota
	HashSHA256
)

func (h HashAlg) CryptoHash() crypto.Hash {
	switch h {
	case HashSHA256:
		return crypto.SHA256
	default:
		return crypto.SHA1
	}
}

func (h HashAlg) String() string {
	switch h {
	case HashSHA256:
		return "sha256"
	default:
		return "sha1"
	}
}

// Hasher abstracts hash(alg, bytes) as a pluggable digest primitive. The
// default implementation below is the stdlib hash package; callers
// needing an HSM-backed digest swap this interface out, not the core.
type Hasher interface {
	Hash(alg HashAlg, data []byte) ([]byte, error)
}

type stdHasher struct{}

// DefaultHasher returns the stdlib crypto hash implementation.
func DefaultHasher() Hasher { return stdHasher{} }

func (stdHasher) Hash(alg HashAlg, data []byte) ([]byte, error) {
	h := alg.CryptoHash()
	if !h.Available() {
		return nil, errUnavailable(alg)
	}
	w := h.New()
	w.Write(data)
	return w.Sum(nil), nil
}

func errUnavailable(alg HashAlg) error {
	return &hashUnavailableError{alg: alg}
}

type hashUnavailableError struct{ alg HashAlg }

func (e *hashUnavailableError) Error() string {
	return "certadapter: hash algorithm " + e.alg.String() + " not linked into binary"
}

// Verifier abstracts verify(alg, data, sig, pubkey). Signature
// verification for CRLs and OCSP responses goes exclusively through this
// interface; this module's core never calls into crypto/rsa or
// crypto/ecdsa directly.
type Verifier interface {
	Verify(alg pkix.AlgorithmIdentifier, tbs, sig []byte, pub crypto.PublicKey) error
}

// spki mirrors a SubjectPublicKeyInfo so SubjectPublicKeyBits can extract
// its raw bit-string content, i.e. the bytes RFC 6960 §4.1.1 says
// issuer_key_hash is computed over -- not the full SPKI (algorithm
// identifier + bit string), just the key bits.
type spki struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// SubjectPublicKeyBits returns the raw SubjectPublicKeyInfo key bits for
// cert, i.e. the BIT STRING contents with the leading "unused bits" count
// byte stripped. This is the input to issuer_key_hash in CertID, which
// must be the raw key bits, not a hash of the full SPKI structure.
func SubjectPublicKeyBits(cert *x509.Certificate) ([]byte, error) {
	var s spki
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &s); err != nil {
		return nil, err
	}
	return s.PublicKey.RightAlign(), nil
}

// IssuerNameDER returns the canonical DER encoding of cert's issuer
// distinguished name, as stored on the wire.
func IssuerNameDER(cert *x509.Certificate) []byte { return cert.RawIssuer }

// SubjectNameDER returns the canonical DER encoding of cert's subject name.
func SubjectNameDER(cert *x509.Certificate) []byte { return cert.RawSubject }

// CRLDistributionURLs returns the HTTP(S) CRL distribution point URLs
// named on cert, in certificate order. crypto/x509 only ever populates
// CRLDistributionPoints from URI general names (RFC 5280's directoryName
// and other forms are not surfaced by the stdlib parser), so the
// "HTTP(S) URI only" filter in reduces to a scheme check here.
func CRLDistributionURLs(cert *x509.Certificate) []string {
	return filterHTTP(cert.CRLDistributionPoints)
}

// OCSPResponderURLs returns the HTTP(S) AIA OCSP responder URLs named on
// cert (access method id-ad-ocsp, OID 1.3.6.1.5.5.7.48.1), in certificate
// order.
func OCSPResponderURLs(cert *x509.Certificate) []string {
	return filterHTTP(cert.OCSPServer)
}

func filterHTTP(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		lower := strings.ToLower(u)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			out = append(out, u)
		}
	}
	return out
}
