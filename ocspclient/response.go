package ocspclient

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/revokeerr"
)

// idPKIXOCSPBasic is the only OCSP response type this client consumes.
var idPKIXOCSPBasic = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 1}

// ASN.1 wire structures for an OCSPResponse (RFC 6960 §4.2), mirroring the
// retrieved golang.org/x/crypto/ocsp reference, adapted to keep
// responseData's raw bytes (needed as tbs_bytes for signature verification
// through certadapter.Verifier rather than x509.Certificate.CheckSignature).
type responseASN1 struct {
	Status   asn1.Enumerated
	Response responseBytesASN1 `asn1:"explicit,tag:0,optional"`
}

type responseBytesASN1 struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

type basicResponseASN1 struct {
	TBSResponseData    responseDataASN1
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certificates       []asn1.RawValue `asn1:"explicit,tag:0,optional"`
}

type responseDataASN1 struct {
	Raw                asn1.RawContent
	Version            int `asn1:"optional,default:0,explicit,tag:0"`
	RawResponderID     asn1.RawValue
	ProducedAt         time.Time `asn1:"generalized"`
	Responses          []singleResponseASN1
	ResponseExtensions []pkix.Extension `asn1:"explicit,tag:1,optional"`
}

type singleResponseASN1 struct {
	CertID           certIDASN1
	Good             asn1.Flag        `asn1:"tag:0,optional"`
	Revoked          revokedInfoASN1  `asn1:"tag:1,optional"`
	Unknown          asn1.Flag        `asn1:"tag:2,optional"`
	ThisUpdate       time.Time        `asn1:"generalized"`
	NextUpdate       time.Time        `asn1:"generalized,explicit,tag:0,optional"`
	SingleExtensions []pkix.Extension `asn1:"explicit,tag:1,optional"`
}

type revokedInfoASN1 struct {
	RevocationTime time.Time       `asn1:"generalized"`
	Reason         asn1.Enumerated `asn1:"explicit,tag:0,optional"`
}

// Status is the mapped per-certificate OCSP status.
type Status int

const (
	StatusGood Status = iota
	StatusRevoked
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

func responseStatusName(code int) string {
	switch code {
	case 0:
		return "successful"
	case 1:
		return "malformedRequest"
	case 2:
		return "internalError"
	case 3:
		return "tryLater"
	case 5:
		return "sigRequired"
	case 6:
		return "unauthorized"
	default:
		return fmt.Sprintf("reserved(%d)", code)
	}
}

// Response is a fully decoded OCSP response for a single CertID.
// Signature verification and freshness/nonce matching are the OCSP
// client's job, not the parser's -- this type exposes everything that
// job needs.
type Response struct {
	RawDER         []byte
	ResponseStatus int
	CertID         CertID
	Status         Status

	ProducedAt       time.Time
	ThisUpdate       time.Time
	NextUpdate       *time.Time
	RevocationTime   time.Time
	RevocationReason *int

	Nonce []byte // nil if the response carried no nonce extension

	ResponderName    []byte // set iff responder identified by name
	ResponderKeyHash []byte // set iff responder identified by key hash

	SignatureAlgorithm  pkix.AlgorithmIdentifier
	Signature           []byte
	TBSBytes             []byte
	EmbeddedCertificate *x509.Certificate
}

// ParseResponse decodes der as an OCSPResponse and selects the single
// response matching reqCertID.
func ParseResponse(der []byte, reqCertID CertID) (*Response, error) {
	var resp responseASN1
	rest, err := asn1.Unmarshal(der, &resp)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "decoding OCSP response")
	}
	if len(rest) != 0 {
		return nil, revokeerr.Parse("trailing data after OCSP response (%d bytes)", len(rest))
	}

	status := int(resp.Status)
	if status != 0 {
		return nil, revokeerr.Protocol("OCSP responder returned status %d (%s)", status, responseStatusName(status))
	}

	if !resp.Response.ResponseType.Equal(idPKIXOCSPBasic) {
		return nil, revokeerr.Protocol("unsupported OCSP response type %s", resp.Response.ResponseType)
	}

	var basic basicResponseASN1
	rest, err = asn1.Unmarshal(resp.Response.Response, &basic)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "decoding BasicOCSPResponse")
	}
	if len(rest) != 0 {
		return nil, revokeerr.Parse("trailing data after BasicOCSPResponse (%d bytes)", len(rest))
	}

	var matched *singleResponseASN1
	for i := range basic.TBSResponseData.Responses {
		sr := &basic.TBSResponseData.Responses[i]
		candidate := CertID{
			HashAlg:        hashAlgFromOIDOrZero(sr.CertID.HashAlgorithm.Algorithm),
			IssuerNameHash: sr.CertID.IssuerNameHash,
			IssuerKeyHash:  sr.CertID.IssuerKeyHash,
			SerialNumber:   sr.CertID.SerialNumber,
		}
		if candidate.Equal(reqCertID) {
			matched = sr
			break
		}
	}
	if matched == nil {
		return nil, revokeerr.Protocol("no response in OCSP reply matches the requested CertID")
	}

	for _, ext := range matched.SingleExtensions {
		if ext.Critical {
			return nil, revokeerr.Parse("unsupported critical single-response extension %s", ext.Id)
		}
	}

	out := &Response{
		RawDER:             der,
		ResponseStatus:     status,
		CertID:             reqCertID,
		ProducedAt:         basic.TBSResponseData.ProducedAt,
		ThisUpdate:         matched.ThisUpdate,
		SignatureAlgorithm: basic.SignatureAlgorithm,
		Signature:          basic.Signature.RightAlign(),
		TBSBytes:           append([]byte(nil), basic.TBSResponseData.Raw...),
	}
	if !matched.NextUpdate.IsZero() {
		nu := matched.NextUpdate
		out.NextUpdate = &nu
	}

	switch {
	case bool(matched.Good):
		out.Status = StatusGood
	case bool(matched.Unknown):
		out.Status = StatusUnknown
	default:
		out.Status = StatusRevoked
		out.RevocationTime = matched.Revoked.RevocationTime
		reason := int(matched.Revoked.Reason)
		out.RevocationReason = &reason
	}

	if out.Status == StatusRevoked && out.RevocationTime.IsZero() {
		return nil, revokeerr.Parse("revoked status without a revocation time")
	}
	if out.ThisUpdate.After(out.ProducedAt) {
		return nil, revokeerr.Protocol("thisUpdate (%s) is after producedAt (%s)", out.ThisUpdate, out.ProducedAt)
	}
	if out.NextUpdate != nil && !out.NextUpdate.After(out.ThisUpdate) {
		return nil, revokeerr.Protocol("nextUpdate (%s) does not follow thisUpdate (%s)", *out.NextUpdate, out.ThisUpdate)
	}

	for _, ext := range basic.TBSResponseData.ResponseExtensions {
		if ext.Id.Equal(oidExtensionNonce) {
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err != nil {
				return nil, revokeerr.ParseWrap(err, "decoding OCSP nonce extension")
			}
			out.Nonce = nonce
		}
	}

	switch basic.TBSResponseData.RawResponderID.Tag {
	case 1: // byName
		var rdn pkix.RDNSequence
		if rest, err := asn1.Unmarshal(basic.TBSResponseData.RawResponderID.Bytes, &rdn); err != nil || len(rest) != 0 {
			return nil, revokeerr.Parse("invalid OCSP responder name")
		}
		out.ResponderName = basic.TBSResponseData.RawResponderID.Bytes
	case 2: // byKey
		var keyHash []byte
		if rest, err := asn1.Unmarshal(basic.TBSResponseData.RawResponderID.Bytes, &keyHash); err != nil || len(rest) != 0 {
			return nil, revokeerr.Parse("invalid OCSP responder key hash")
		}
		out.ResponderKeyHash = keyHash
	default:
		return nil, revokeerr.Parse("unrecognized OCSP responder ID tag %d", basic.TBSResponseData.RawResponderID.Tag)
	}

	if len(basic.Certificates) > 0 {
		cert, err := x509.ParseCertificate(basic.Certificates[0].FullBytes)
		if err != nil {
			return nil, revokeerr.ParseWrap(err, "parsing embedded OCSP responder certificate")
		}
		out.EmbeddedCertificate = cert
	}

	return out, nil
}

func hashAlgFromOIDOrZero(oid asn1.ObjectIdentifier) certadapter.HashAlg {
	alg, _ := hashAlgFromOID(oid)
	return alg
}
