package crl

import (
	"bytes"
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/hashicorp/revoke-core/internal/httpfetch"
	"github.com/hashicorp/revoke-core/revokeerr"
)

const pemLabel = "X509 CRL"

// maxCRLBytes bounds how much of an untrusted response this parser will
// read into memory before giving up.
const maxCRLBytes = 64 << 20

var (
	oidExtensionCRLNumber     = asn1.ObjectIdentifier{2, 5, 29, 20}
	oidExtensionReasonCode    = asn1.ObjectIdentifier{2, 5, 29, 21}
	oidExtensionInvalidityDate = asn1.ObjectIdentifier{2, 5, 29, 24}
)

// ASN.1 structures mirroring RFC 5280 §5.1's CertificateList, decoded with
// asn1.RawContent/asn1.RawValue so that (a) tbsCertList's exact on-wire
// bytes are preserved for later signature verification and (b) the
// this/next-update and per-entry revocation-date fields, which are a
// CHOICE between UTCTime and GeneralizedTime, can be dispatched on their
// actual tag rather than a single hardcoded one.
type certificateList struct {
	TBSCertList        tbsCertList
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// reencodedCertificateList mirrors certificateList for re-encoding, except
// TBSCertList is carried as the exact raw bytes captured at parse time
// (CRL.TBSBytes) rather than re-derived field by field, so ToDER never
// risks diverging from the tbsCertList a signature was actually computed
// over.
type reencodedCertificateList struct {
	TBSCertList        asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

type tbsCertList struct {
	Raw                 asn1.RawContent
	Version             int `asn1:"optional,default:0"`
	Signature           pkix.AlgorithmIdentifier
	Issuer              asn1.RawValue
	ThisUpdate          asn1.RawValue
	NextUpdate          asn1.RawValue           `asn1:"optional"`
	RevokedCertificates []revokedCertificateASN1 `asn1:"optional"`
	Extensions          []pkix.Extension        `asn1:"tag:0,optional,explicit"`
}

type revokedCertificateASN1 struct {
	SerialNumber   *big.Int
	RevocationDate asn1.RawValue
	Extensions     []pkix.Extension `asn1:"optional"`
}

// Parser decodes PEM or DER CRL bodies and optionally fetches them over
// HTTP.
type Parser struct {
	Transport *httpfetch.Transport
}

// NewParser returns a Parser using transport for URL fetches. transport
// may be nil if only Parse/ParsePEM/ParseDER (no fetching) will be used.
func NewParser(transport *httpfetch.Transport) *Parser {
	return &Parser{Transport: transport}
}

// Parse sniffs data for a PEM envelope and dispatches to ParsePEM or
// ParseDER accordingly.
func Parse(data []byte) (*CRL, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		return ParsePEM(data)
	}
	return ParseDER(data)
}

// ParsePEM decodes a PEM envelope labeled "X509 CRL" into a CRL.
func ParsePEM(data []byte) (*CRL, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, revokeerr.Parse("invalid PEM envelope")
	}
	if block.Type != pemLabel {
		return nil, revokeerr.Parse("invalid PEM envelope: unexpected label %q, want %q", block.Type, pemLabel)
	}
	return ParseDER(block.Bytes)
}

// ParseDER decodes a raw DER CertificateList into a CRL, per RFC 5280 §5.1.
func ParseDER(data []byte) (*CRL, error) {
	var cl certificateList
	rest, err := asn1.Unmarshal(data, &cl)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "decoding CertificateList")
	}
	if len(rest) != 0 {
		return nil, revokeerr.Parse("trailing data after CertificateList (%d bytes)", len(rest))
	}

	issuerDER := cl.TBSCertList.Issuer.FullBytes
	issuerDisplay, err := displayDN(cl.TBSCertList.Issuer)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "decoding issuer name")
	}

	thisUpdate, err := parseChoiceTime(cl.TBSCertList.ThisUpdate)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "decoding thisUpdate")
	}

	var nextUpdate *time.Time
	if len(cl.TBSCertList.NextUpdate.FullBytes) > 0 {
		nu, err := parseChoiceTime(cl.TBSCertList.NextUpdate)
		if err != nil {
			return nil, revokeerr.ParseWrap(err, "decoding nextUpdate")
		}
		if !thisUpdate.Before(nu) {
			return nil, revokeerr.Protocol("nextUpdate (%s) does not follow thisUpdate (%s)", nu, thisUpdate)
		}
		nextUpdate = &nu
	}

	out := &CRL{
		IssuerDN:           issuerDisplay,
		IssuerDNDER:        issuerDER,
		ThisUpdate:         thisUpdate,
		NextUpdate:         nextUpdate,
		SignatureAlgorithm: cl.SignatureAlgorithm,
		Signature:          cl.SignatureValue.RightAlign(),
		TBSBytes:           append([]byte(nil), cl.TBSCertList.Raw...),
		Entries:            make(map[string]Entry, len(cl.TBSCertList.RevokedCertificates)),
	}

	number, hadNumber, err := extractCRLNumber(cl.TBSCertList.Extensions)
	if err != nil {
		return nil, err
	}
	out.Number = number
	out.NumberWasDefaulted = !hadNumber
	if !hadNumber {
		out.warn("CRL Number extension absent; defaulting to 0")
	}

	for _, rc := range cl.TBSCertList.RevokedCertificates {
		entry, err := decodeRevokedCertificate(rc)
		if err != nil {
			return nil, err
		}
		if _, dup := out.Entries[entry.SerialHex]; dup {
			return nil, revokeerr.Parse("duplicate serial number %s in CRL", entry.SerialHex)
		}
		out.Entries[entry.SerialHex] = entry
	}

	return out, nil
}

func decodeRevokedCertificate(rc revokedCertificateASN1) (Entry, error) {
	revDate, err := parseChoiceTime(rc.RevocationDate)
	if err != nil {
		return Entry{}, revokeerr.ParseWrap(err, "decoding revocationDate")
	}
	if rc.SerialNumber == nil || rc.SerialNumber.Sign() < 0 {
		return Entry{}, revokeerr.Parse("revoked certificate entry has invalid serial number")
	}

	entry := Entry{
		SerialHex:      canonicalSerialHex(rc.SerialNumber),
		SerialNumber:   rc.SerialNumber,
		RevocationDate: revDate,
	}

	for _, ext := range rc.Extensions {
		switch {
		case ext.Id.Equal(oidExtensionReasonCode):
			var code asn1.Enumerated
			if _, err := asn1.Unmarshal(ext.Value, &code); err != nil {
				return Entry{}, revokeerr.ParseWrap(err, "decoding reason code extension")
			}
			rc := ReasonCode(code)
			entry.ReasonCode = &rc
		case ext.Id.Equal(oidExtensionInvalidityDate):
			var raw asn1.RawValue
			if _, err := asn1.Unmarshal(ext.Value, &raw); err != nil {
				return Entry{}, revokeerr.ParseWrap(err, "decoding invalidity date extension")
			}
			t, err := parseChoiceTime(raw)
			if err != nil {
				return Entry{}, revokeerr.ParseWrap(err, "decoding invalidity date extension")
			}
			entry.InvalidityDate = &t
		case ext.Critical:
			return Entry{}, revokeerr.Parse("unknown critical CRL entry extension %s", ext.Id)
		}
	}

	return entry, nil
}

func extractCRLNumber(exts []pkix.Extension) (int64, bool, error) {
	for _, ext := range exts {
		if ext.Id.Equal(oidExtensionCRLNumber) {
			var n *big.Int
			if _, err := asn1.Unmarshal(ext.Value, &n); err != nil {
				return 0, false, revokeerr.ParseWrap(err, "decoding CRL Number extension")
			}
			if n.Sign() < 0 {
				return 0, false, revokeerr.Parse("CRL Number extension is negative")
			}
			return n.Int64(), true, nil
		}
	}
	return 0, false, nil
}

// SerialHex canonicalizes a certificate serial number to the big-endian
// hex string form used as both CRL.Entries' map key and the comparison
// form for a subject certificate's own serial.
func SerialHex(n *big.Int) string {
	b := n.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	return fmt.Sprintf("%x", b)
}

func canonicalSerialHex(n *big.Int) string { return SerialHex(n) }

func displayDN(raw asn1.RawValue) (string, error) {
	var rdn pkix.RDNSequence
	if _, err := asn1.Unmarshal(raw.FullBytes, &rdn); err != nil {
		return "", err
	}
	var name pkix.Name
	name.FillFromRDNSequence(&rdn)
	return name.String(), nil
}

// parseChoiceTime decodes an ASN.1 Time CHOICE (UTCTime tag 23 or
// GeneralizedTime tag 24): dates accept both UTCTime (YYMMDDHHMMSSZ) and
// GeneralizedTime with a UTC Z suffix.
func parseChoiceTime(v asn1.RawValue) (time.Time, error) {
	switch v.Tag {
	case 23: // UTCTime
		s := string(v.Bytes)
		for _, layout := range []string{"060102150405Z0700", "060102150405Z", "0601021504Z0700", "0601021504Z"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid UTCTime %q", s)
	case 24: // GeneralizedTime
		s := string(v.Bytes)
		for _, layout := range []string{"20060102150405Z0700", "20060102150405Z"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid GeneralizedTime %q", s)
	default:
		return time.Time{}, fmt.Errorf("unexpected ASN.1 time tag %d", v.Tag)
	}
}

// FetchAndParse retrieves url (HTTP GET, fixed User-Agent, configured
// timeout) and parses the body as PEM or DER, sniffing as Parse does.
func (p *Parser) FetchAndParse(ctx context.Context, url string) (*CRL, error) {
	if p.Transport == nil {
		return nil, revokeerr.Policy("crl parser: no transport configured for fetching %s", url)
	}
	data, err := p.Transport.Get(ctx, url, maxCRLBytes)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
