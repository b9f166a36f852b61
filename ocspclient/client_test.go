package ocspclient

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/internal/httpfetch"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, verifier certadapter.Verifier, useNonce bool) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport := httpfetch.New(httpfetch.Config{
		ConnectTimeout:  time.Second,
		ResponseTimeout: 5 * time.Second,
		MaxRetries:      0,
		UserAgent:       "revoke-core-test",
	})
	return NewClient(transport, verifier, certadapter.HashSHA256, useNonce, 0, nil), srv
}

func Test_Client_Check_GoodResponseNoVerifierWarns(t *testing.T) {
	issuer, issuerKey := genTestIssuer(t)
	leaf := genTestLeaf(t, big.NewInt(200), issuer, issuerKey)
	certID, err := BuildCertID(leaf, issuer, certadapter.HashSHA256)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	der := buildTestResponse(t, certID, issuer, issuerKey, testResponseOpts{
		status:     StatusGood,
		producedAt: now,
		thisUpdate: now.Add(-time.Minute),
		nextUpdate: now.Add(time.Hour),
	})

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(der)
	}, nil, false)

	out, err := client.Check(context.Background(), leaf, issuer, srv.URL)
	require.NoError(t, err)
	require.Equal(t, StatusGood, out.Status)
	require.NotEmpty(t, out.Warnings)
}

func Test_Client_Check_RevokedResponseWithVerifier(t *testing.T) {
	issuer, issuerKey := genTestIssuer(t)
	leaf := genTestLeaf(t, big.NewInt(201), issuer, issuerKey)
	certID, err := BuildCertID(leaf, issuer, certadapter.HashSHA256)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	revokedAt := now.Add(-48 * time.Hour)
	der := buildTestResponse(t, certID, issuer, issuerKey, testResponseOpts{
		status:         StatusRevoked,
		producedAt:     now,
		thisUpdate:     now.Add(-time.Minute),
		nextUpdate:     now.Add(time.Hour),
		revocationTime: revokedAt,
		reason:         1,
	})

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_, _ = w.Write(der)
	}, certadapter.DefaultVerifier{}, false)

	out, err := client.Check(context.Background(), leaf, issuer, srv.URL)
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, out.Status)
	require.NotNil(t, out.RevocationReason)
	require.Equal(t, 1, *out.RevocationReason)
	require.Empty(t, out.Warnings)
}

func Test_Client_Check_NonceMismatchIsFatal(t *testing.T) {
	issuer, issuerKey := genTestIssuer(t)
	leaf := genTestLeaf(t, big.NewInt(202), issuer, issuerKey)
	certID, err := BuildCertID(leaf, issuer, certadapter.HashSHA256)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	wrongNonce := []byte("0123456789abcdef")
	der := buildTestResponse(t, certID, issuer, issuerKey, testResponseOpts{
		status:     StatusGood,
		producedAt: now,
		thisUpdate: now.Add(-time.Minute),
		nextUpdate: now.Add(time.Hour),
		nonce:      wrongNonce,
	})

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_, _ = w.Write(der)
	}, nil, true)

	_, err = client.Check(context.Background(), leaf, issuer, srv.URL)
	require.Error(t, err)
}

func Test_Client_Check_SecondCallHitsCacheNotNetwork(t *testing.T) {
	issuer, issuerKey := genTestIssuer(t)
	leaf := genTestLeaf(t, big.NewInt(203), issuer, issuerKey)
	certID, err := BuildCertID(leaf, issuer, certadapter.HashSHA256)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	der := buildTestResponse(t, certID, issuer, issuerKey, testResponseOpts{
		status:     StatusGood,
		producedAt: now,
		thisUpdate: now.Add(-time.Minute),
		nextUpdate: now.Add(time.Hour),
	})

	hits := 0
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.ReadAll(r.Body)
		_, _ = w.Write(der)
	}, nil, false)

	_, err = client.Check(context.Background(), leaf, issuer, srv.URL)
	require.NoError(t, err)
	_, err = client.Check(context.Background(), leaf, issuer, srv.URL)
	require.NoError(t, err)

	require.Equal(t, 1, hits)
}

func Test_Client_Check_NoResponderURLReturnsUnknownWithWarning(t *testing.T) {
	issuer, issuerKey := genTestIssuer(t)
	leaf := genTestLeaf(t, big.NewInt(204), issuer, issuerKey)

	transport := httpfetch.New(httpfetch.Config{
		ConnectTimeout:  time.Second,
		ResponseTimeout: time.Second,
		UserAgent:       "revoke-core-test",
	})
	client := NewClient(transport, nil, certadapter.HashSHA256, false, 0, nil)

	out, err := client.Check(context.Background(), leaf, issuer, "")
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, out.Status)
	require.NotEmpty(t, out.Warnings)
}

func Test_Client_Check_StaleResponseIsRejected(t *testing.T) {
	issuer, issuerKey := genTestIssuer(t)
	leaf := genTestLeaf(t, big.NewInt(205), issuer, issuerKey)
	certID, err := BuildCertID(leaf, issuer, certadapter.HashSHA256)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	der := buildTestResponse(t, certID, issuer, issuerKey, testResponseOpts{
		status:     StatusGood,
		producedAt: now.Add(-2 * time.Hour),
		thisUpdate: now.Add(-2 * time.Hour),
		nextUpdate: now.Add(-time.Hour), // already expired
	})

	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_, _ = w.Write(der)
	}, nil, false)

	_, err = client.Check(context.Background(), leaf, issuer, srv.URL)
	require.Error(t, err)
}
