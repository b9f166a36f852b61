// Package revoke implements the revocation decision engine: a closed
// Policy variant, a per-check Outcome/Report pair, and the Engine state
// machine that combines an OCSP client and CRL updater's results
// according to the policy table. Grounded on Vault's
// `builtin/logical/pki`'s own policy dispatch (a switch over a
// string-valued config field), replaced here with a closed, exhaustively
// matched Go type.
package revoke

import "github.com/hashicorp/revoke-core/revokeerr"

// Policy is the closed set of revocation-check strategies.
type Policy int

const (
	// Disabled performs no revocation check; every certificate is valid.
	Disabled Policy = iota
	// OcspOnly checks OCSP exclusively; CRL is never consulted.
	OcspOnly
	// CrlOnly checks the CRL exclusively; OCSP is never consulted.
	CrlOnly
	// OcspPreferred tries OCSP first, falling back to the CRL only if
	// OCSP does not return a conclusive (Good or Revoked) verdict.
	OcspPreferred
	// CrlPreferred is OcspPreferred with the roles reversed.
	CrlPreferred
	// SoftFail tries both sources; a conclusive verdict from either wins,
	// and if both fail with transport/protocol errors the certificate is
	// treated as valid.
	SoftFail
	// HardFail tries both sources; a Revoked from either rejects the
	// certificate, it is valid only if both sources return Good, and any
	// other combination (a failure or Unknown from either) rejects it.
	HardFail
)

func (p Policy) String() string {
	switch p {
	case Disabled:
		return "disabled"
	case OcspOnly:
		return "ocsp_only"
	case CrlOnly:
		return "crl_only"
	case OcspPreferred:
		return "ocsp_preferred"
	case CrlPreferred:
		return "crl_preferred"
	case SoftFail:
		return "soft_fail"
	case HardFail:
		return "hard_fail"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a configuration string onto a Policy. Unrecognized
// values are a parse error, not a silent default -- a typo in config
// should not silently disable revocation checking.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "disabled":
		return Disabled, nil
	case "ocsp_only":
		return OcspOnly, nil
	case "crl_only":
		return CrlOnly, nil
	case "ocsp_preferred":
		return OcspPreferred, nil
	case "crl_preferred":
		return CrlPreferred, nil
	case "soft_fail":
		return SoftFail, nil
	case "hard_fail":
		return HardFail, nil
	default:
		return Disabled, revokeerr.Parse("unrecognized revocation policy %q", s)
	}
}

// DefaultPolicy is the default policy when none is configured.
const DefaultPolicy = OcspPreferred
