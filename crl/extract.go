package crl

import (
	"crypto/x509"

	"github.com/hashicorp/revoke-core/certadapter"
)

// ExtractDistributionPoints returns the HTTP(S) CRL distribution point
// URLs named on cert, in certificate order. The filtering to
// URI general names happens in certadapter, which owns the boundary onto
// the certificate library; this function exists so crl package callers
// don't need to import certadapter directly for such a small need.
func ExtractDistributionPoints(cert *x509.Certificate) []string {
	return certadapter.CRLDistributionURLs(cert)
}
