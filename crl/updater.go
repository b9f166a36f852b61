package crl

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/revokeerr"
)

// DefaultRefreshThreshold is the default soft-refresh window.
const DefaultRefreshThreshold = time.Hour

// IssuerKey canonicalizes an issuer's DER-encoded subject name into the
// string form this package's Cache and Updater key on. Keying on the hex
// of the canonical DER, rather than the RFC 2253 display string, keeps
// issuer matching bit-exact -- two issuer names that print identically
// but differ in encoding (e.g. PrintableString vs UTF8String for the
// same characters) must not collide in the cache.
func IssuerKey(der []byte) string {
	return hex.EncodeToString(der)
}

// Updater drives CRL refresh for one or more issuers: fetch, parse,
// monotonicity check, install.
type Updater struct {
	Cache            *Cache
	Parser           *Parser
	Logger           hclog.Logger
	RefreshThreshold time.Duration

	group singleflight.Group
	now   func() time.Time
}

// NewUpdater constructs an Updater. refreshThreshold <= 0 uses
// DefaultRefreshThreshold.
func NewUpdater(cache *Cache, parser *Parser, refreshThreshold time.Duration, logger hclog.Logger) *Updater {
	if refreshThreshold <= 0 {
		refreshThreshold = DefaultRefreshThreshold
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Updater{
		Cache:            cache,
		Parser:           parser,
		Logger:           logger,
		RefreshThreshold: refreshThreshold,
		now:              time.Now,
	}
}

// Update refreshes the cached CRL for the issuer identified by
// expectedIssuerDER, fetching from url if the cache is stale or absent.
// Concurrent calls for the same issuer coalesce into a single fetch. When
// silent is true, failures are logged and reported as (false, nil)
// instead of propagated.
func (u *Updater) Update(ctx context.Context, expectedIssuerDER []byte, url string, silent bool) (bool, error) {
	key := IssuerKey(expectedIssuerDER)

	if cached, ok := u.Cache.Get(key); ok && cached != nil {
		if !u.Cache.ExpiringSoon(key, int64(u.RefreshThreshold.Seconds())) {
			return true, nil
		}
	}

	v, err, _ := u.group.Do(key, func() (interface{}, error) {
		return u.Parser.FetchAndParse(ctx, url)
	})
	if err != nil {
		return u.fail(silent, revokeerr.Transport(err, "fetching CRL from %s", url))
	}
	newCRL := v.(*CRL)

	if string(newCRL.IssuerDNDER) != string(expectedIssuerDER) {
		u.Logger.Warn("fetched CRL issuer does not match expected issuer, rejecting", "url", url)
		return u.fail(silent, revokeerr.Protocol("CRL from %s has unexpected issuer", url))
	}

	if existing, ok := u.Cache.Get(key); ok && existing != nil {
		switch {
		case newCRL.Number < existing.Number:
			u.Logger.Warn("rejecting CRL with decreasing CRL Number (possible rollback)",
				"url", url, "cached_number", existing.Number, "fetched_number", newCRL.Number)
			return u.fail(silent, revokeerr.Protocol("CRL Number went backward for %s: %d < %d", url, newCRL.Number, existing.Number))
		case newCRL.Number == existing.Number && !newCRL.ThisUpdate.After(existing.ThisUpdate):
			return true, nil
		}
	}

	u.Cache.Put(key, newCRL)
	return true, nil
}

func (u *Updater) fail(silent bool, err error) (bool, error) {
	if silent {
		u.Logger.Warn("CRL update failed", "error", err)
		return false, nil
	}
	return false, err
}

// UpdateFromCertificate drives refresh using the subject certificate's own
// CRL distribution points: it tries each URL in order, returns the cache
// on first success, and falls back to a still-cached CRL if every URL
// fails. With no cached CRL to fall back on, it returns every URL's error
// combined.
func (u *Updater) UpdateFromCertificate(ctx context.Context, subjectCert, issuerCert *x509.Certificate) (*CRL, error) {
	urls := certadapter.CRLDistributionURLs(subjectCert)
	if len(urls) == 0 {
		u.Logger.Warn("certificate has no CRL distribution points", "subject", subjectCert.Subject)
		return nil, nil
	}

	expectedDER := certadapter.SubjectNameDER(issuerCert)
	key := IssuerKey(expectedDER)

	var errs *multierror.Error
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for i, url := range urls {
		ok, err := u.Update(ctx, expectedDER, url, false)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if ok {
			if crl, found := u.Cache.Get(key); found {
				return crl, nil
			}
		}

		if i < len(urls)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}
	}

	if cached, ok := u.Cache.Get(key); ok {
		u.Logger.Warn("all CRL distribution points failed, using cached CRL", "subject", subjectCert.Subject)
		return cached, nil
	}

	return nil, errs.ErrorOrNil()
}

// CleanupExpired delegates to the cache's expiry sweep.
func (u *Updater) CleanupExpired() int {
	return u.Cache.RemoveExpired()
}
