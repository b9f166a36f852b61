package ocspclient

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}

func genTestIssuer(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Test Issuing CA"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func genTestLeaf(t *testing.T, serial *big.Int, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "test-leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, issuer, &key.PublicKey, issuerKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

type testResponseOpts struct {
	status         Status
	producedAt     time.Time
	thisUpdate     time.Time
	nextUpdate     time.Time // zero means absent
	revocationTime time.Time
	reason         int
	nonce          []byte
}

// buildTestResponse signs a BasicOCSPResponse directly against this
// package's own wire structures -- standing in for a real responder in
// tests, since we can't run an external OCSP server.
func buildTestResponse(t *testing.T, certID CertID, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, opts testResponseOpts) []byte {
	t.Helper()

	hashOID, err := hashAlgOID(certID.HashAlg)
	require.NoError(t, err)

	sr := singleResponseASN1{
		CertID: certIDASN1{
			HashAlgorithm: pkix.AlgorithmIdentifier{Algorithm: hashOID, Parameters: asn1.RawValue{Tag: 5}},
			IssuerNameHash: certID.IssuerNameHash,
			IssuerKeyHash:  certID.IssuerKeyHash,
			SerialNumber:   certID.SerialNumber,
		},
		ThisUpdate: opts.thisUpdate,
	}
	if !opts.nextUpdate.IsZero() {
		sr.NextUpdate = opts.nextUpdate
	}
	switch opts.status {
	case StatusGood:
		sr.Good = true
	case StatusUnknown:
		sr.Unknown = true
	case StatusRevoked:
		sr.Revoked = revokedInfoASN1{RevocationTime: opts.revocationTime, Reason: asn1.Enumerated(opts.reason)}
	}

	var respExts []pkix.Extension
	if opts.nonce != nil {
		val, err := asn1.Marshal(opts.nonce)
		require.NoError(t, err)
		respExts = append(respExts, pkix.Extension{Id: oidExtensionNonce, Value: val})
	}

	keyBits, err := issuerPublicKeyBits(issuer)
	require.NoError(t, err)
	h := sha256.Sum256(keyBits)
	keyHashDER, err := asn1.Marshal(h[:20]) // stand-in key hash identifier for the responder ID choice
	require.NoError(t, err)

	responderID := asn1.RawValue{Class: 2, Tag: 2, IsCompound: true, Bytes: keyHashDER}

	tbs := responseDataASN1{
		RawResponderID:     responderID,
		ProducedAt:         opts.producedAt,
		Responses:          []singleResponseASN1{sr},
		ResponseExtensions: respExts,
	}
	tbsDER, err := asn1.Marshal(tbs)
	require.NoError(t, err)

	sig, err := ecdsa.SignASN1(rand.Reader, issuerKey, digestSHA256(tbsDER))
	require.NoError(t, err)

	basic := basicResponseASN1{
		TBSResponseData:    tbs,
		SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: oidECDSAWithSHA256},
		Signature:          asn1.BitString{Bytes: sig, BitLength: 8 * len(sig)},
	}
	basicDER, err := asn1.Marshal(basic)
	require.NoError(t, err)

	top := responseASN1{
		Status:   0,
		Response: responseBytesASN1{ResponseType: idPKIXOCSPBasic, Response: basicDER},
	}
	der, err := asn1.Marshal(top)
	require.NoError(t, err)
	return der
}

func issuerPublicKeyBits(cert *x509.Certificate) ([]byte, error) {
	var s struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &s); err != nil {
		return nil, err
	}
	return s.PublicKey.RightAlign(), nil
}

func digestSHA256(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}
