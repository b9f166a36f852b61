// Package main implements revokecheck, a thin CLI driver over the
// revoke-core library: load a leaf/issuer certificate pair, run a single
// revocation check under a configured policy, and print the resulting
// report as JSON. Structured the way Vault's own CLI commands are, via
// mitchellh/cli's single-Command-per-subcommand convention, even though
// this driver has exactly one subcommand today.
package main

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/config"
	"github.com/hashicorp/revoke-core/crl"
	"github.com/hashicorp/revoke-core/internal/httpfetch"
	"github.com/hashicorp/revoke-core/internal/sigcache"
	"github.com/hashicorp/revoke-core/metrics"
	"github.com/hashicorp/revoke-core/ocspclient"
	"github.com/hashicorp/revoke-core/revoke"
)

// CheckCommand implements `revokecheck check`.
type CheckCommand struct {
	UI interface {
		Output(string)
		Error(string)
	}
}

func (c *CheckCommand) Help() string {
	return `Usage: revokecheck check [options]

  Checks a single leaf certificate's revocation status against its issuer
  and prints the resulting report as JSON.

Options:

  -cert=PATH       PEM-encoded leaf certificate (required)
  -issuer=PATH     PEM-encoded issuer certificate (required)
  -config=PATH     YAML config file (optional; defaults apply otherwise)
  -policy=NAME     Override the configured policy
  -ocsp-url=URL    Explicit OCSP responder URL (optional, else AIA-derived)
  -crl-url=URL     Explicit CRL distribution point URL (optional, else CDP-derived)
  -daemon          After the check, start the cron-scheduled cache sweeper
                    and metrics endpoint and block forever
  -metrics-addr=ADDR  Address for the /metrics endpoint in -daemon mode (default ":9273")
`
}

func (c *CheckCommand) Synopsis() string {
	return "Check a certificate's revocation status"
}

func (c *CheckCommand) Run(args []string) int {
	var certPath, issuerPath, configPath, policyOverride, ocspURL, crlURL, metricsAddr string
	var daemon bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&certPath, "cert", "", "leaf certificate PEM path")
	fs.StringVar(&issuerPath, "issuer", "", "issuer certificate PEM path")
	fs.StringVar(&configPath, "config", "", "YAML config file path")
	fs.StringVar(&policyOverride, "policy", "", "policy override")
	fs.StringVar(&ocspURL, "ocsp-url", "", "explicit OCSP responder URL")
	fs.StringVar(&crlURL, "crl-url", "", "explicit CRL distribution point URL")
	fs.BoolVar(&daemon, "daemon", false, "run the cache sweeper and metrics endpoint after checking")
	fs.StringVar(&metricsAddr, "metrics-addr", ":9273", "address for the /metrics endpoint")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if certPath == "" || issuerPath == "" {
		c.UI.Error("both -cert and -issuer are required")
		return 1
	}

	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			c.UI.Error(fmt.Sprintf("loading config: %v", err))
			return 1
		}
		cfg = loaded
	}
	if policyOverride != "" {
		cfg.Policy = policyOverride
	}

	subjectCert, err := readPEMCertificate(certPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("reading -cert: %v", err))
		return 1
	}
	issuerCert, err := readPEMCertificate(issuerPath)
	if err != nil {
		c.UI.Error(fmt.Sprintf("reading -issuer: %v", err))
		return 1
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "revokecheck", Level: hclog.Warn})

	engine, updater, err := buildEngine(cfg, logger)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if ocspURL == "" {
		urls := certadapter.OCSPResponderURLs(subjectCert)
		if len(urls) > 0 {
			ocspURL = urls[0]
		}
	}
	if crlURL == "" {
		urls := certadapter.CRLDistributionURLs(subjectCert)
		if len(urls) > 0 {
			crlURL = urls[0]
		}
	}

	start := time.Now()
	outcome, checkErr := engine.Check(context.Background(), subjectCert, issuerCert, ocspURL, crlURL)
	metrics.RecordCheck(cfg.Policy, time.Since(start).Seconds(), outcome != nil && outcome.Valid)

	out, marshalErr := json.MarshalIndent(struct {
		Valid  bool           `json:"valid"`
		Report *revoke.Report `json:"report"`
		Error  string         `json:"error,omitempty"`
	}{
		Valid:  outcome != nil && outcome.Valid,
		Report: reportOf(outcome),
		Error:  errString(checkErr),
	}, "", "  ")
	if marshalErr != nil {
		c.UI.Error(fmt.Sprintf("encoding report: %v", marshalErr))
		return 1
	}
	c.UI.Output(string(out))

	if daemon {
		runDaemon(updater, logger, metricsAddr)
	}

	if checkErr != nil {
		return 2
	}
	if outcome == nil || !outcome.Valid {
		return 1
	}
	return 0
}

func reportOf(outcome *revoke.Outcome) *revoke.Report {
	if outcome == nil {
		return nil
	}
	return outcome.Report
}

func readPEMCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func buildEngine(cfg config.Config, logger hclog.Logger) (*revoke.Engine, *crl.Updater, error) {
	policy, err := cfg.ResolvePolicy()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving policy: %w", err)
	}
	hashAlg, err := cfg.HashAlg()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving hash algorithm: %w", err)
	}

	transport := httpfetch.New(httpfetch.Config{
		ConnectTimeout:  cfg.ConnectTimeout,
		ResponseTimeout: cfg.ResponseTimeout,
		MaxRetries:      cfg.MaxRetries,
		UserAgent:       cfg.UserAgent,
	})

	// A single memoized verifier is shared by the OCSP client and the CRL
	// validator: both can be asked to verify the same issuer signature
	// repeatedly within a short span (a busy OCSP responder re-signing the
	// same cached response, a CRL consulted across many subject checks).
	verifier := sigcache.New(certadapter.DefaultVerifier{}, 0)

	ocspC := ocspclient.NewClient(transport, verifier, hashAlg, cfg.UseOCSPNonce, cfg.ClockSkewTolerance, logger.Named("ocsp"))

	crlTransport := httpfetch.New(httpfetch.Config{
		ConnectTimeout:  cfg.ConnectTimeout,
		ResponseTimeout: cfg.CRLFetchTimeout,
		MaxRetries:      cfg.MaxRetries,
		UserAgent:       cfg.UserAgent,
	})
	parser := crl.NewParser(crlTransport)
	cache := crl.NewCache(cfg.CRLCacheMaxEntries, cfg.CRLCacheSoftTTL)
	updater := crl.NewUpdater(cache, parser, cfg.CRLRefreshThreshold, logger.Named("crl"))
	validator := crl.NewValidator(verifier, logger.Named("crl"))

	engine := revoke.NewEngine(ocspC, updater, validator, policy, logger.Named("engine"))
	return engine, updater, nil
}

// runDaemon starts the Prometheus scrape endpoint and a cron schedule that
// sweeps expired CRL cache entries every minute, then blocks forever.
func runDaemon(updater *crl.Updater, logger hclog.Logger, metricsAddr string) {
	logger.Info("starting daemon", "metrics_addr", metricsAddr)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server exited", "error", err)
		}
	}()

	sched := cron.New()
	_, err := sched.AddFunc("@every 1m", func() {
		n := updater.CleanupExpired()
		if n > 0 {
			logger.Debug("swept expired CRL cache entries", "count", n)
		}
	})
	if err != nil {
		logger.Error("scheduling cache sweep failed", "error", err)
		return
	}
	sched.Start()

	select {}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
