// Package config is the typed configuration surface of the revocation
// checker: every tunable field, with its documented default, loadable
// from a YAML file or from an already-unmarshaled map. Follows Vault's
// own config-loading convention, where backend config fields are read as
// raw interface{}/string values and coerced through `parseutil` into
// typed durations.
package config

import (
	"os"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/revoke"
	"github.com/hashicorp/revoke-core/revokeerr"
)

// Config is the full, typed configuration surface of the revocation
// checker, with every field optional and carrying a documented default.
// Construct one via Defaults(), LoadFile(), LoadYAML(), or FromMap() --
// never zero-value, since a zero Config silently disables every timeout.
type Config struct {
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	CRLFetchTimeout time.Duration

	UseOCSPNonce bool

	HashAlgForCertID string

	ClockSkewTolerance time.Duration

	CRLCacheMaxEntries  int
	CRLCacheSoftTTL     time.Duration
	CRLRefreshThreshold time.Duration

	// OCSPCacheEnabled is parsed and defaulted, but no component reads
	// it: ocspclient.Client always caches responses.
	OCSPCacheEnabled bool

	Policy string

	// MaxRetries and UserAgent carry sensible fixed defaults here rather
	// than being hardcoded deep in internal/httpfetch, since every HTTP
	// client construction in this module sets both explicitly rather
	// than relying on library defaults.
	MaxRetries int
	UserAgent  string
}

// rawConfig mirrors Config field-for-field but keeps duration-ish values
// as interface{} (as Vault's own config structs do for their "_raw" TTL
// fields), since YAML/map input may express them as a bare number of
// seconds or as a duration string ("5s", "1h30m") and only
// parseutil.ParseDurationSecond can normalize both forms.
type rawConfig struct {
	ConnectTimeout  interface{} `yaml:"connect_timeout_s" mapstructure:"connect_timeout_s"`
	ResponseTimeout interface{} `yaml:"response_timeout_s" mapstructure:"response_timeout_s"`
	CRLFetchTimeout interface{} `yaml:"crl_fetch_timeout_s" mapstructure:"crl_fetch_timeout_s"`

	UseOCSPNonce interface{} `yaml:"use_ocsp_nonce" mapstructure:"use_ocsp_nonce"`

	HashAlgForCertID string `yaml:"hash_alg_for_certid" mapstructure:"hash_alg_for_certid"`

	ClockSkewTolerance interface{} `yaml:"clock_skew_tolerance_s" mapstructure:"clock_skew_tolerance_s"`

	CRLCacheMaxEntries  int         `yaml:"crl_cache_max_entries" mapstructure:"crl_cache_max_entries"`
	CRLCacheSoftTTL     interface{} `yaml:"crl_cache_soft_ttl" mapstructure:"crl_cache_soft_ttl"`
	CRLRefreshThreshold interface{} `yaml:"crl_refresh_threshold_s" mapstructure:"crl_refresh_threshold_s"`

	OCSPCacheEnabled interface{} `yaml:"ocsp_cache_enabled" mapstructure:"ocsp_cache_enabled"`

	Policy string `yaml:"policy" mapstructure:"policy"`

	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
}

// Defaults returns Config populated with every default.
func Defaults() Config {
	return Config{
		ConnectTimeout:      5 * time.Second,
		ResponseTimeout:     10 * time.Second,
		CRLFetchTimeout:     30 * time.Second,
		UseOCSPNonce:        true,
		HashAlgForCertID:    "sha1",
		ClockSkewTolerance:  300 * time.Second,
		CRLCacheMaxEntries:  100,
		CRLCacheSoftTTL:     time.Hour,
		CRLRefreshThreshold: time.Hour,
		OCSPCacheEnabled:    true,
		Policy:              revoke.DefaultPolicy.String(),
		MaxRetries:          2,
		UserAgent:           "revoke-core/1.0",
	}
}

func defaultsRaw() rawConfig {
	d := Defaults()
	return rawConfig{
		ConnectTimeout:      d.ConnectTimeout,
		ResponseTimeout:     d.ResponseTimeout,
		CRLFetchTimeout:     d.CRLFetchTimeout,
		UseOCSPNonce:        d.UseOCSPNonce,
		HashAlgForCertID:    d.HashAlgForCertID,
		ClockSkewTolerance:  d.ClockSkewTolerance,
		CRLCacheMaxEntries:  d.CRLCacheMaxEntries,
		CRLCacheSoftTTL:     d.CRLCacheSoftTTL,
		CRLRefreshThreshold: d.CRLRefreshThreshold,
		OCSPCacheEnabled:    d.OCSPCacheEnabled,
		Policy:              d.Policy,
		MaxRetries:          d.MaxRetries,
		UserAgent:           d.UserAgent,
	}
}

// LoadFile reads and parses a YAML config file at path, starting from
// Defaults() and overlaying whatever the file sets.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, revokeerr.Policy("reading config file %s: %v", path, err)
	}
	return LoadYAML(data)
}

// LoadYAML parses data as YAML into a Config, starting from Defaults().
func LoadYAML(data []byte) (Config, error) {
	raw := defaultsRaw()
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "parsing YAML config")
	}
	return raw.resolve()
}

// FromMap decodes an already-unmarshaled map (e.g. from a caller's own
// config system) into a Config, starting from Defaults(). Duration-ish
// fields may be given as either a number of seconds or a Go duration
// string ("5s", "1h30m"); parseutil.ParseDurationSecond handles both, the
// same coercion Vault applies to its own TTL-ish fields.
func FromMap(m map[string]interface{}) (Config, error) {
	raw := defaultsRaw()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, revokeerr.ParseWrap(err, "building config decoder")
	}
	if err := decoder.Decode(m); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "decoding config map")
	}

	return raw.resolve()
}

// resolve coerces every interface{} field of raw into its typed Config
// counterpart.
func (raw rawConfig) resolve() (Config, error) {
	var err error
	cfg := Config{
		HashAlgForCertID:   raw.HashAlgForCertID,
		Policy:             raw.Policy,
		CRLCacheMaxEntries: raw.CRLCacheMaxEntries,
		MaxRetries:         raw.MaxRetries,
		UserAgent:          raw.UserAgent,
	}

	if cfg.ConnectTimeout, err = parseutil.ParseDurationSecond(raw.ConnectTimeout); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "connect_timeout_s")
	}
	if cfg.ResponseTimeout, err = parseutil.ParseDurationSecond(raw.ResponseTimeout); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "response_timeout_s")
	}
	if cfg.CRLFetchTimeout, err = parseutil.ParseDurationSecond(raw.CRLFetchTimeout); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "crl_fetch_timeout_s")
	}
	if cfg.ClockSkewTolerance, err = parseutil.ParseDurationSecond(raw.ClockSkewTolerance); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "clock_skew_tolerance_s")
	}
	if cfg.CRLCacheSoftTTL, err = parseutil.ParseDurationSecond(raw.CRLCacheSoftTTL); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "crl_cache_soft_ttl")
	}
	if cfg.CRLRefreshThreshold, err = parseutil.ParseDurationSecond(raw.CRLRefreshThreshold); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "crl_refresh_threshold_s")
	}

	if cfg.UseOCSPNonce, err = parseutil.ParseBool(raw.UseOCSPNonce); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "use_ocsp_nonce")
	}
	if cfg.OCSPCacheEnabled, err = parseutil.ParseBool(raw.OCSPCacheEnabled); err != nil {
		return Config{}, revokeerr.ParseWrap(err, "ocsp_cache_enabled")
	}

	return cfg, nil
}

// HashAlg maps HashAlgForCertID onto certadapter.HashAlg.
func (c Config) HashAlg() (certadapter.HashAlg, error) {
	switch c.HashAlgForCertID {
	case "sha1", "":
		return certadapter.HashSHA1, nil
	case "sha256":
		return certadapter.HashSHA256, nil
	default:
		return 0, revokeerr.Parse("unrecognized hash_alg_for_certid %q", c.HashAlgForCertID)
	}
}

// ResolvePolicy parses c.Policy into a revoke.Policy.
func (c Config) ResolvePolicy() (revoke.Policy, error) {
	return revoke.ParsePolicy(c.Policy)
}
