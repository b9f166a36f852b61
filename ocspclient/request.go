package ocspclient

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/hashicorp/revoke-core/revokeerr"
)

// oidExtensionNonce is the OCSP nonce extension (RFC 8954).
var oidExtensionNonce = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 2}

// ASN.1 wire structures for an OCSPRequest (RFC 6960 §4.1.1), mirroring the
// retrieved golang.org/x/crypto/ocsp reference.
type certIDASN1 struct {
	HashAlgorithm pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

type requestItemASN1 struct {
	Cert certIDASN1
}

type tbsRequestASN1 struct {
	Version           int               `asn1:"explicit,tag:0,default:0,optional"`
	RequestList       []requestItemASN1
	RequestExtensions []pkix.Extension `asn1:"explicit,tag:2,optional"`
}

type ocspRequestASN1 struct {
	TBSRequest tbsRequestASN1
}

// Request is a constructed-and-ready-to-send OCSP request.
// Its lifecycle is disposable: built per check, never cached.
type Request struct {
	CertID CertID
	Nonce  []byte // nil if nonces are disabled
	DER    []byte
}

// BuildRequest encodes certID (and, if nonce is non-nil, an RFC 8954 nonce
// extension) into a DER OCSPRequest.
func BuildRequest(certID CertID, nonce []byte) (*Request, error) {
	hashOID, err := hashAlgOID(certID.HashAlg)
	if err != nil {
		return nil, err
	}

	var exts []pkix.Extension
	if nonce != nil {
		val, err := asn1.Marshal(nonce)
		if err != nil {
			return nil, revokeerr.ParseWrap(err, "encoding OCSP nonce extension")
		}
		exts = append(exts, pkix.Extension{Id: oidExtensionNonce, Value: val})
	}

	wire := ocspRequestASN1{
		TBSRequest: tbsRequestASN1{
			RequestList: []requestItemASN1{{
				Cert: certIDASN1{
					HashAlgorithm: pkix.AlgorithmIdentifier{
						Algorithm:  hashOID,
						Parameters: asn1.RawValue{Tag: 5}, // ASN.1 NULL
					},
					IssuerNameHash: certID.IssuerNameHash,
					IssuerKeyHash:  certID.IssuerKeyHash,
					SerialNumber:   certID.SerialNumber,
				},
			}},
			RequestExtensions: exts,
		},
	}

	der, err := asn1.Marshal(wire)
	if err != nil {
		return nil, revokeerr.ParseWrap(err, "encoding OCSP request")
	}

	return &Request{CertID: certID, Nonce: nonce, DER: der}, nil
}

// Base64 returns the request's standard base64 encoding, for transports
// that prefer a text form over raw bytes.
func (r *Request) Base64() string {
	return base64.StdEncoding.EncodeToString(r.DER)
}

// GETURL builds the RFC 6960 appendix A.1 GET URL: baseURL joined with a
// single "/" followed by the base64 request blob with each "+" written as
// "%2B"; "/" and "=" in the blob are left as they are.
func (r *Request) GETURL(baseURL string) string {
	encoded := base64.StdEncoding.EncodeToString(r.DER)
	escaped := strings.ReplaceAll(encoded, "+", "%2B")
	return fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), escaped)
}
