package crl

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// genIssuer returns a self-signed CA certificate and its signing key, used
// as the issuer for test CRLs.
func genIssuer(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
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

// genLeaf returns a certificate issued by issuer/issuerKey, used as a
// subject certificate in revocation-classification tests.
func genLeaf(t *testing.T, serial *big.Int, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) *x509.Certificate {
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

type crlOpts struct {
	number     int64
	thisUpdate time.Time
	nextUpdate time.Time
	entries    []x509.RevocationListEntry
}

// genCRL builds and signs a DER CertificateList with the given issuer.
func genCRL(t *testing.T, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, opts crlOpts) []byte {
	t.Helper()

	template := &x509.RevocationList{
		RevokedCertificateEntries: opts.entries,
		Number:                    big.NewInt(opts.number),
		ThisUpdate:                opts.thisUpdate,
		NextUpdate:                opts.nextUpdate,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, issuer, issuerKey)
	require.NoError(t, err)
	return der
}
