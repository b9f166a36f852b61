package revoke

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

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/ocspclient"
)

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

func genLeaf(t *testing.T, serial *big.Int, ocspURL, crlURL string, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "test-leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	if ocspURL != "" {
		template.OCSPServer = []string{ocspURL}
	}
	if crlURL != "" {
		template.CRLDistributionPoints = []string{crlURL}
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

func genCRL(t *testing.T, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, opts crlOpts) []byte {
	t.Helper()
	template := &x509.RevocationList{
		Number:                    big.NewInt(opts.number),
		ThisUpdate:                opts.thisUpdate,
		NextUpdate:                opts.nextUpdate,
		RevokedCertificateEntries: opts.entries,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, issuer, issuerKey)
	require.NoError(t, err)
	return der
}

// --- minimal standalone OCSP response ASN.1 assembly for test fixtures,
// independent of ocspclient's unexported wire structs. ---

var testOIDNonce = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}
var testOIDBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}
var testOIDSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
var testOIDECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}

type testCertIDASN1 struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

type testSingleResponseASN1 struct {
	CertID           testCertIDASN1
	Good             asn1.Flag              `asn1:"tag:0,optional"`
	Revoked          testRevokedInfoASN1    `asn1:"tag:1,optional"`
	Unknown          asn1.Flag              `asn1:"tag:2,optional"`
	ThisUpdate       time.Time              `asn1:"generalized"`
	NextUpdate       time.Time              `asn1:"generalized,explicit,tag:0,optional"`
	SingleExtensions []pkix.Extension       `asn1:"explicit,tag:1,optional"`
}

type testRevokedInfoASN1 struct {
	RevocationTime time.Time       `asn1:"generalized"`
	Reason         asn1.Enumerated `asn1:"explicit,tag:0,optional"`
}

type testResponseDataASN1 struct {
	RawResponderID     asn1.RawValue
	ProducedAt         time.Time `asn1:"generalized"`
	Responses          []testSingleResponseASN1
	ResponseExtensions []pkix.Extension `asn1:"explicit,tag:1,optional"`
}

type testBasicResponseASN1 struct {
	TBSResponseData    testResponseDataASN1
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
}

type testResponseBytesASN1 struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

type testResponseASN1 struct {
	Status   asn1.Enumerated
	Response testResponseBytesASN1 `asn1:"explicit,tag:0,optional"`
}

type ocspFixtureOpts struct {
	revoked        bool
	unknown        bool
	producedAt     time.Time
	thisUpdate     time.Time
	nextUpdate     time.Time
	revocationTime time.Time
	reason         int
	nonce          []byte
}

func buildOCSPFixture(t *testing.T, certID ocspclient.CertID, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, opts ocspFixtureOpts) []byte {
	t.Helper()

	sr := testSingleResponseASN1{
		CertID: testCertIDASN1{
			HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: testOIDSHA256, Parameters: asn1.RawValue{Tag: 5}},
			IssuerNameHash: certID.IssuerNameHash,
			IssuerKeyHash:  certID.IssuerKeyHash,
			SerialNumber:   certID.SerialNumber,
		},
		ThisUpdate: opts.thisUpdate,
	}
	if !opts.nextUpdate.IsZero() {
		sr.NextUpdate = opts.nextUpdate
	}
	switch {
	case opts.unknown:
		sr.Unknown = true
	case opts.revoked:
		sr.Revoked = testRevokedInfoASN1{RevocationTime: opts.revocationTime, Reason: asn1.Enumerated(opts.reason)}
	default:
		sr.Good = true
	}

	var exts []pkix.Extension
	if opts.nonce != nil {
		val, err := asn1.Marshal(opts.nonce)
		require.NoError(t, err)
		exts = append(exts, pkix.Extension{Id: testOIDNonce, Value: val})
	}

	keyBits, err := certadapter.SubjectPublicKeyBits(issuer)
	require.NoError(t, err)
	h := sha256.Sum256(keyBits)
	keyHashDER, err := asn1.Marshal(h[:20])
	require.NoError(t, err)
	responderID := asn1.RawValue{Class: 2, Tag: 2, IsCompound: true, Bytes: keyHashDER}

	tbs := testResponseDataASN1{
		RawResponderID:     responderID,
		ProducedAt:         opts.producedAt,
		Responses:          []testSingleResponseASN1{sr},
		ResponseExtensions: exts,
	}
	tbsDER, err := asn1.Marshal(tbs)
	require.NoError(t, err)

	digest := sha256.Sum256(tbsDER)
	sig, err := ecdsa.SignASN1(rand.Reader, issuerKey, digest[:])
	require.NoError(t, err)

	basic := testBasicResponseASN1{
		TBSResponseData:    tbs,
		SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: testOIDECDSAWithSHA256},
		Signature:          asn1.BitString{Bytes: sig, BitLength: 8 * len(sig)},
	}
	basicDER, err := asn1.Marshal(basic)
	require.NoError(t, err)

	top := testResponseASN1{
		Status:   0,
		Response: testResponseBytesASN1{ResponseType: testOIDBasic, Response: basicDER},
	}
	der, err := asn1.Marshal(top)
	require.NoError(t, err)
	return der
}
