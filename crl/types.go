// Package crl implements the CRL lifecycle: parsing (RFC 5280 §5.1),
// caching with bounded memory and freshness tracking, issuer-driven
// refresh, and signature/temporal/entry validation. It is grounded on
// Vault's builtin/logical/pki/crl_util.go (CRL construction side)
// generalized to the consumption side, and on golang.org/x/crypto/ocsp
// style ASN.1 reference structures for the wire format decoded entirely
// in-process, with no shelling out to external tooling.
package crl

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/hashicorp/revoke-core/revokeerr"
)

// ReasonCode is the CRL entry reason code (RFC 5280 §5.3.1). Value 7 is
// unassigned; it is surfaced as Revoked with an unknown reason rather
// than rejected.
type ReasonCode int

const (
	ReasonUnspecified          ReasonCode = 0
	ReasonKeyCompromise        ReasonCode = 1
	ReasonCACompromise         ReasonCode = 2
	ReasonAffiliationChanged   ReasonCode = 3
	ReasonSuperseded           ReasonCode = 4
	ReasonCessationOfOperation ReasonCode = 5
	ReasonCertificateHold      ReasonCode = 6
	ReasonUnassigned7          ReasonCode = 7
	ReasonRemoveFromCRL        ReasonCode = 8
	ReasonPrivilegeWithdrawn   ReasonCode = 9
	ReasonAACompromise         ReasonCode = 10
)

// Known reports whether code is one of the codes RFC 5280 defines,
// distinguishing it from the unassigned value 7 and any other value a
// misbehaving issuer might emit.
func (r ReasonCode) Known() bool {
	switch r {
	case ReasonUnspecified, ReasonKeyCompromise, ReasonCACompromise,
		ReasonAffiliationChanged, ReasonSuperseded, ReasonCessationOfOperation,
		ReasonCertificateHold, ReasonRemoveFromCRL, ReasonPrivilegeWithdrawn,
		ReasonAACompromise:
		return true
	default:
		return false
	}
}

// Entry is one revoked-certificate record from a CRL.
type Entry struct {
	SerialHex      string
	SerialNumber   *big.Int
	RevocationDate time.Time
	ReasonCode     *ReasonCode
	InvalidityDate *time.Time
}

// CRL is a fully parsed Certificate Revocation List. TBSBytes
// holds the exact DER bytes of the tbsCertList structure as they appeared
// on the wire -- never a re-encoding -- because signature verification
// must run over those exact bytes.
type CRL struct {
	IssuerDN    string // displayable
	IssuerDNDER []byte // canonical DER, exactly as encoded

	ThisUpdate time.Time
	NextUpdate *time.Time

	Number            int64
	NumberWasDefaulted bool

	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	TBSBytes           []byte

	Entries map[string]Entry

	Warnings []string
}

func (c *CRL) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// InForce reports whether now falls within [ThisUpdate, NextUpdate]. A
// CRL with no NextUpdate is always considered in-force by this check
// alone (caching rules treat the absence differently; see Cache).
func (c *CRL) InForce(now time.Time) bool {
	if now.Before(c.ThisUpdate) {
		return false
	}
	if c.NextUpdate != nil && now.After(*c.NextUpdate) {
		return false
	}
	return true
}

// ToDER re-encodes c as a DER CertificateList. TBSBytes is carried through
// verbatim (it is the exact bytes a signature was computed over), so
// ToDER(ParseDER(der)) reproduces der byte for byte whenever der was
// itself canonical DER.
func (c *CRL) ToDER() ([]byte, error) {
	if len(c.TBSBytes) == 0 {
		return nil, revokeerr.Policy("CRL has no tbsCertList bytes to re-encode")
	}
	out := reencodedCertificateList{
		TBSCertList:        asn1.RawValue{FullBytes: c.TBSBytes},
		SignatureAlgorithm: c.SignatureAlgorithm,
		SignatureValue:     asn1.BitString{Bytes: c.Signature, BitLength: len(c.Signature) * 8},
	}
	der, err := asn1.Marshal(out)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "re-encoding CRL as DER")
	}
	return der, nil
}

// ToPEM re-encodes c as a PEM-armored CertificateList, using the same
// "X509 CRL" label ParsePEM expects.
func (c *CRL) ToPEM() ([]byte, error) {
	der, err := c.ToDER()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemLabel, Bytes: der}), nil
}
