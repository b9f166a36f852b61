package revoke

import (
	"context"
	"crypto/x509"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/crl"
	"github.com/hashicorp/revoke-core/metrics"
	"github.com/hashicorp/revoke-core/ocspclient"
	"github.com/hashicorp/revoke-core/revokeerr"
)

// Engine is the revocation decision engine: it drives an OCSP client and
// a CRL updater/validator pair according to a Policy and combines their
// per-source results into a single verdict and Report.
type Engine struct {
	OCSP   *ocspclient.Client
	CRL    *crl.Updater
	Valid  *crl.Validator
	Policy Policy
	Logger hclog.Logger

	now func() time.Time
}

// NewEngine constructs an Engine. ocsp and/or crlUpdater may be nil if the
// configured policy never needs them (e.g. Disabled, or OcspOnly with no
// CRL updater configured). A nil collaborator the active policy consults
// is treated as that source reporting Unknown, and the policy's
// combination rule decides whether that yields an error.
func NewEngine(ocsp *ocspclient.Client, crlUpdater *crl.Updater, validator *crl.Validator, policy Policy, logger hclog.Logger) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		OCSP:   ocsp,
		CRL:    crlUpdater,
		Valid:  validator,
		Policy: policy,
		Logger: logger,
		now:    time.Now,
	}
}

// Check runs a single, non-persistent revocation check for subjectCert
// against issuerCert under e.Policy. ocspURL and crlURL are explicit
// overrides; pass "" to resolve from the certificate's AIA/CDP
// extensions.
func (e *Engine) Check(ctx context.Context, subjectCert, issuerCert *x509.Certificate, ocspURL, crlURL string) (*Outcome, error) {
	now := e.now()
	report := newReport(e.Policy, now)

	if e.Policy == Disabled {
		report.Result = true
		return &Outcome{Valid: true, Report: report}, nil
	}

	wantOCSP, wantCRL := sourcesFor(e.Policy)

	var ocspRes, crlRes SourceResult
	switch e.Policy {
	case SoftFail, HardFail:
		// Both sources are always attempted, concurrently, even if one
		// settles Good first -- a later Revoked from the other source
		// must still override.
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); ocspRes = e.tryOCSP(ctx, subjectCert, issuerCert, ocspURL) }()
		go func() { defer wg.Done(); crlRes = e.tryCRL(ctx, subjectCert, issuerCert, crlURL) }()
		wg.Wait()
		report.recordOCSP(ocspRes)
		report.recordCRL(crlRes)

	case OcspPreferred:
		ocspRes = e.tryOCSP(ctx, subjectCert, issuerCert, ocspURL)
		report.recordOCSP(ocspRes)
		if !conclusive(ocspRes) {
			crlRes = e.tryCRL(ctx, subjectCert, issuerCert, crlURL)
			report.recordCRL(crlRes)
		}

	case CrlPreferred:
		crlRes = e.tryCRL(ctx, subjectCert, issuerCert, crlURL)
		report.recordCRL(crlRes)
		if !conclusive(crlRes) {
			ocspRes = e.tryOCSP(ctx, subjectCert, issuerCert, ocspURL)
			report.recordOCSP(ocspRes)
		}

	case OcspOnly:
		ocspRes = e.tryOCSP(ctx, subjectCert, issuerCert, ocspURL)
		report.recordOCSP(ocspRes)

	case CrlOnly:
		crlRes = e.tryCRL(ctx, subjectCert, issuerCert, crlURL)
		report.recordCRL(crlRes)
	}

	verdict, revTime, reason, err := combine(e.Policy, wantOCSP, wantCRL, ocspRes, crlRes)
	report.Result = verdict
	if err != nil {
		return &Outcome{Valid: verdict, Report: report}, err
	}
	return &Outcome{Valid: verdict, RevocationTime: revTime, ReasonCode: reason, Report: report}, nil
}

func sourcesFor(p Policy) (wantOCSP, wantCRL bool) {
	switch p {
	case OcspOnly:
		return true, false
	case CrlOnly:
		return false, true
	case Disabled:
		return false, false
	default: // OcspPreferred, CrlPreferred, SoftFail, HardFail
		return true, true
	}
}

func conclusive(r SourceResult) bool {
	return r.Status == SourceGood || r.Status == SourceRevoked
}

// combine applies the per-policy combination rule to the attempted
// sources' results, returning the verdict, and (if revoked) the
// reason/time, and an error whenever the rule ends in rejection without a
// Revoked verdict: for every policy except SoftFail, which never returns
// an error.
func combine(policy Policy, wantOCSP, wantCRL bool, ocspRes, crlRes SourceResult) (bool, time.Time, *int, error) {
	switch policy {
	case OcspOnly:
		return combineSingle(ocspRes)
	case CrlOnly:
		return combineSingle(crlRes)

	case OcspPreferred:
		if conclusive(ocspRes) {
			return combineSingle(ocspRes)
		}
		if wantCRL && conclusive(crlRes) {
			return combineSingle(crlRes)
		}
		return false, time.Time{}, nil, aggregateFailure(ocspRes, crlRes)

	case CrlPreferred:
		if conclusive(crlRes) {
			return combineSingle(crlRes)
		}
		if wantOCSP && conclusive(ocspRes) {
			return combineSingle(ocspRes)
		}
		return false, time.Time{}, nil, aggregateFailure(ocspRes, crlRes)

	case SoftFail:
		if ocspRes.Status == SourceRevoked {
			return false, ocspRes.RevocationTime, ocspRes.ReasonCode, nil
		}
		if crlRes.Status == SourceRevoked {
			return false, crlRes.RevocationTime, crlRes.ReasonCode, nil
		}
		if ocspRes.Status == SourceGood || crlRes.Status == SourceGood {
			return true, time.Time{}, nil, nil
		}
		// Neither source conclusive: SoftFail defaults to valid.
		return true, time.Time{}, nil, nil

	case HardFail:
		if ocspRes.Status == SourceRevoked {
			return false, ocspRes.RevocationTime, ocspRes.ReasonCode, nil
		}
		if crlRes.Status == SourceRevoked {
			return false, crlRes.RevocationTime, crlRes.ReasonCode, nil
		}
		ocspGood := !wantOCSP || ocspRes.Status == SourceGood
		crlGood := !wantCRL || crlRes.Status == SourceGood
		if ocspGood && crlGood {
			return true, time.Time{}, nil, nil
		}
		return false, time.Time{}, nil, aggregateFailure(ocspRes, crlRes)

	default: // Disabled handled by caller
		return true, time.Time{}, nil, nil
	}
}

func combineSingle(r SourceResult) (bool, time.Time, *int, error) {
	switch r.Status {
	case SourceGood:
		return true, time.Time{}, nil, nil
	case SourceRevoked:
		return false, r.RevocationTime, r.ReasonCode, nil
	case SourceFailure:
		return false, time.Time{}, nil, r.Err
	default: // SourceUnknown
		return false, time.Time{}, nil, revokeerr.Policy("revocation status could not be determined")
	}
}

// errorKind reports a revokeerr.Kind string for err, or "unknown" if err
// isn't one of this module's typed errors (e.g. a bare context error).
func errorKind(err error) string {
	var revokeErr *revokeerr.Error
	if errors.As(err, &revokeErr) {
		return revokeErr.Kind.String()
	}
	return "unknown"
}

func aggregateFailure(ocspRes, crlRes SourceResult) error {
	switch {
	case ocspRes.Err != nil:
		return ocspRes.Err
	case crlRes.Err != nil:
		return crlRes.Err
	default:
		return revokeerr.Policy("revocation status could not be determined from any configured source")
	}
}

func (e *Engine) tryOCSP(ctx context.Context, subjectCert, issuerCert *x509.Certificate, url string) SourceResult {
	if e.OCSP == nil {
		return SourceResult{Status: SourceUnknown}
	}
	out, err := e.OCSP.Check(ctx, subjectCert, issuerCert, url)
	if err != nil {
		metrics.RecordSourceFailure("ocsp", errorKind(err))
		return SourceResult{Status: SourceFailure, Err: err}
	}
	res := SourceResult{Warnings: out.Warnings}
	switch out.Status {
	case ocspclient.StatusGood:
		res.Status = SourceGood
	case ocspclient.StatusRevoked:
		res.Status = SourceRevoked
		res.ReasonCode = out.RevocationReason
		res.RevocationTime = out.RevocationTime
	default:
		res.Status = SourceUnknown
	}
	return res
}

func (e *Engine) tryCRL(ctx context.Context, subjectCert, issuerCert *x509.Certificate, url string) SourceResult {
	if e.CRL == nil || e.Valid == nil {
		return SourceResult{Status: SourceUnknown}
	}

	list, err := e.fetchCRL(ctx, subjectCert, issuerCert, url)
	if err != nil {
		metrics.RecordSourceFailure("crl", errorKind(err))
		return SourceResult{Status: SourceFailure, Err: err}
	}
	if list == nil {
		return SourceResult{Status: SourceUnknown}
	}

	verdict, warnings, err := e.Valid.CheckRevocation(subjectCert, issuerCert, list, e.now())
	if err != nil {
		metrics.RecordSourceFailure("crl", errorKind(err))
		return SourceResult{Status: SourceFailure, Err: err, Warnings: warnings}
	}
	if !verdict.Revoked {
		return SourceResult{Status: SourceGood, Warnings: warnings}
	}

	var reason *int
	if verdict.ReasonCode != nil {
		r := int(*verdict.ReasonCode)
		reason = &r
	}
	return SourceResult{
		Status:         SourceRevoked,
		ReasonCode:     reason,
		RevocationTime: verdict.RevocationDate,
		Warnings:       warnings,
	}
}

// fetchCRL resolves and refreshes the CRL for subjectCert's issuer. An
// explicit url bypasses AIA/CDP discovery; otherwise the updater walks the
// certificate's own distribution points.
func (e *Engine) fetchCRL(ctx context.Context, subjectCert, issuerCert *x509.Certificate, url string) (*crl.CRL, error) {
	if url == "" {
		return e.CRL.UpdateFromCertificate(ctx, subjectCert, issuerCert)
	}

	expectedDER := certadapter.SubjectNameDER(issuerCert)
	if ok, err := e.CRL.Update(ctx, expectedDER, url, false); !ok || err != nil {
		return nil, err
	}
	cached, _ := e.CRL.Cache.Get(crl.IssuerKey(expectedDER))
	return cached, nil
}
