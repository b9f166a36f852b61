// Package ocspclient implements the OCSP request builder, response parser,
// and client: construct a CertID and request for a (subject, issuer)
// pair, send it to a responder, and match/validate the response. The
// wire-format ASN.1 structures are grounded on the retrieved
// golang.org/x/crypto/ocsp reference implementation (RFC 6960 §4.1-4.2),
// adapted to route all signature verification through certadapter.Verifier
// instead of calling into crypto/x509 directly.
package ocspclient

import (
	"bytes"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"math/big"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/revokeerr"
)

var (
	oidHashSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidHashSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
)

func hashAlgOID(alg certadapter.HashAlg) (asn1.ObjectIdentifier, error) {
	switch alg {
	case certadapter.HashSHA256:
		return oidHashSHA256, nil
	case certadapter.HashSHA1:
		return oidHashSHA1, nil
	default:
		return nil, revokeerr.Parse("unsupported OCSP hash algorithm %v", alg)
	}
}

func hashAlgFromOID(oid asn1.ObjectIdentifier) (certadapter.HashAlg, bool) {
	switch {
	case oid.Equal(oidHashSHA1):
		return certadapter.HashSHA1, true
	case oid.Equal(oidHashSHA256):
		return certadapter.HashSHA256, true
	default:
		return 0, false
	}
}

// CertID identifies a certificate to an OCSP responder (RFC 6960 §4.1.1).
type CertID struct {
	HashAlg       certadapter.HashAlg
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// Equal reports whether c and o identify the same certificate under the
// same hash algorithm.
func (c CertID) Equal(o CertID) bool {
	if c.HashAlg != o.HashAlg {
		return false
	}
	if !bytes.Equal(c.IssuerNameHash, o.IssuerNameHash) {
		return false
	}
	if !bytes.Equal(c.IssuerKeyHash, o.IssuerKeyHash) {
		return false
	}
	if c.SerialNumber == nil || o.SerialNumber == nil {
		return c.SerialNumber == o.SerialNumber
	}
	return c.SerialNumber.Cmp(o.SerialNumber) == 0
}

// cacheKey returns a stable string suitable for keying a per-CertID cache.
func (c CertID) cacheKey() string {
	return c.HashAlg.String() + ":" + hex.EncodeToString(c.IssuerNameHash) + ":" +
		hex.EncodeToString(c.IssuerKeyHash) + ":" + c.SerialNumber.Text(16)
}

// BuildCertID constructs the CertID for (subjectCert, issuerCert) under
// hashAlg: issuer_name_hash is H(issuer subject DER),
// issuer_key_hash is H(raw SPKI key bits, not the full SPKI structure --
// RFC 6960 §4.1.1), and serial_number is taken verbatim from subjectCert.
func BuildCertID(subjectCert, issuerCert *x509.Certificate, hashAlg certadapter.HashAlg) (CertID, error) {
	hasher := certadapter.DefaultHasher()

	nameHash, err := hasher.Hash(hashAlg, certadapter.SubjectNameDER(issuerCert))
	if err != nil {
		return CertID{}, revokeerr.ParseWrap(err, "hashing issuer name")
	}

	keyBits, err := certadapter.SubjectPublicKeyBits(issuerCert)
	if err != nil {
		return CertID{}, revokeerr.ParseWrap(err, "extracting issuer SPKI key bits")
	}
	keyHash, err := hasher.Hash(hashAlg, keyBits)
	if err != nil {
		return CertID{}, revokeerr.ParseWrap(err, "hashing issuer key bits")
	}

	return CertID{
		HashAlg:        hashAlg,
		IssuerNameHash: nameHash,
		IssuerKeyHash:  keyHash,
		SerialNumber:   subjectCert.SerialNumber,
	}, nil
}

// NonceSize is the RFC 8954 nonce length: 16 cryptographically random
// bytes.
const NonceSize = 16

// GenerateNonce returns NonceSize cryptographically random bytes, alongside
// their hex encoding for transport-agnostic logging/storage.
func GenerateNonce() (raw []byte, hexEncoded string, err error) {
	raw = make([]byte, NonceSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", revokeerr.Transport(err, "generating OCSP nonce")
	}
	return raw, hex.EncodeToString(raw), nil
}
