package crl

import (
	"bytes"
	"crypto/x509"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/revokeerr"
)

// Verdict is the CRL-only revocation outcome. The decision
// engine (package revoke) wraps this into its broader Outcome sum type,
// which also has to represent Unknown and transport/protocol failures that
// don't apply to a CRL lookup once the CRL itself is known-good.
type Verdict struct {
	Revoked        bool
	ReasonCode     *ReasonCode
	RevocationDate time.Time
}

// Validator checks CRL authenticity (signature, temporal validity, issuer
// match) and classifies subject certificates against a validated CRL.
type Validator struct {
	Verifier certadapter.Verifier
	Logger   hclog.Logger
}

// NewValidator constructs a Validator. verifier may be nil, in which case
// signature checks are skipped with an explicit warning rather than
// silently treated as passed.
func NewValidator(verifier certadapter.Verifier, logger hclog.Logger) *Validator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Validator{Verifier: verifier, Logger: logger}
}

// Validate checks crl's authenticity against issuerCert: issuer DN match,
// temporal validity, and (if possible) signature. A non-nil error is
// fatal (issuer mismatch, not-yet-valid); expiry and missing signature
// material are reported as warnings only.
func (v *Validator) Validate(crl *CRL, issuerCert *x509.Certificate, now time.Time) ([]string, error) {
	warnings := append([]string(nil), crl.Warnings...)

	if !bytes.Equal(certadapter.SubjectNameDER(issuerCert), crl.IssuerDNDER) {
		return warnings, revokeerr.Protocol("issuer certificate subject DN does not match CRL issuer DN")
	}

	if now.Before(crl.ThisUpdate) {
		return warnings, revokeerr.Protocol("CRL not yet valid: thisUpdate %s is in the future", crl.ThisUpdate)
	}
	if crl.NextUpdate != nil && now.After(*crl.NextUpdate) {
		warnings = append(warnings, "CRL expired: nextUpdate has passed")
	}

	hasSigMaterial := crl.SignatureAlgorithm.Algorithm != nil && len(crl.Signature) > 0 && len(crl.TBSBytes) > 0
	switch {
	case !hasSigMaterial:
		warnings = append(warnings, "CRL signature not verified: missing signature, algorithm, or tbs bytes")
	case v.Verifier == nil:
		warnings = append(warnings, "CRL signature not verified: no verifier configured")
	default:
		if err := v.Verifier.Verify(crl.SignatureAlgorithm, crl.TBSBytes, crl.Signature, issuerCert.PublicKey); err != nil {
			return warnings, revokeerr.ProtocolWrap(err, "CRL signature verification failed")
		}
	}

	return warnings, nil
}

// CheckRevocation validates crl against issuerCert and classifies
// subjectCert against it. A serial absent from crl.Entries is Good;
// present with reason code removeFromCRL (8) is also Good (delta-CRL
// semantics); present otherwise is Revoked.
func (v *Validator) CheckRevocation(subjectCert, issuerCert *x509.Certificate, crl *CRL, now time.Time) (Verdict, []string, error) {
	if !bytes.Equal(certadapter.IssuerNameDER(subjectCert), crl.IssuerDNDER) {
		return Verdict{}, nil, revokeerr.Protocol("subject certificate issuer does not match CRL issuer")
	}

	warnings, err := v.Validate(crl, issuerCert, now)
	if err != nil {
		return Verdict{}, warnings, err
	}

	entry, present := crl.Entries[SerialHex(subjectCert.SerialNumber)]
	if !present {
		return Verdict{Revoked: false}, warnings, nil
	}
	if entry.ReasonCode != nil && *entry.ReasonCode == ReasonRemoveFromCRL {
		v.Logger.Debug("certificate hold lifted by removeFromCRL entry", "serial", entry.SerialHex)
		return Verdict{Revoked: false}, warnings, nil
	}

	return Verdict{
		Revoked:        true,
		ReasonCode:     entry.ReasonCode,
		RevocationDate: entry.RevocationDate,
	}, warnings, nil
}
