package revoke

import (
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// Report is the per-check status record: policy name,
// which methods were tried, per-method conclusiveness, per-method error
// strings if any, and the final verdict. Reports are overwritten per call;
// Engine.Check returns a fresh one each time, so callers that want history
// must snapshot it themselves.
type Report struct {
	ID     string
	Policy string

	CheckedAt time.Time

	MethodsTried []string

	OCSPStatus string
	OCSPError  string

	CRLStatus string
	CRLError  string

	Warnings []string
	Result   bool
}

// newReport allocates a Report with a fresh ID, so repeated checks of the
// same certificate can be distinguished in logs -- the same
// request-ID-per-operation convention Vault applies to HTTP requests,
// generalized here to per-revocation-check IDs.
func newReport(policy Policy, now time.Time) *Report {
	id, err := uuid.GenerateUUID()
	if err != nil {
		// uuid.GenerateUUID only fails if crypto/rand is broken; a
		// readable placeholder is preferable to propagating that here.
		id = "uuid-generation-failed"
	}
	return &Report{
		ID:        id,
		Policy:    policy.String(),
		CheckedAt: now,
	}
}

func (r *Report) recordOCSP(res SourceResult) {
	r.MethodsTried = append(r.MethodsTried, "ocsp")
	r.OCSPStatus = res.Status.String()
	if res.Err != nil {
		r.OCSPError = res.Err.Error()
	}
	r.Warnings = append(r.Warnings, res.Warnings...)
}

func (r *Report) recordCRL(res SourceResult) {
	r.MethodsTried = append(r.MethodsTried, "crl")
	r.CRLStatus = res.Status.String()
	if res.Err != nil {
		r.CRLError = res.Err.Error()
	}
	r.Warnings = append(r.Warnings, res.Warnings...)
}
