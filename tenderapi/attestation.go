package tenderapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudx-io/opentender/tenderapi/parsing"
)

// AttestationCOSE is a raw COSE_Sign1 attestation document as returned by the
// Nitro Security Module.
type AttestationCOSE []byte

// AttestationCOSEBase64 is the transport form of an attestation document.
type AttestationCOSEBase64 string

// EncodeBase64 encodes the raw COSE bytes for JSON transport.
func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

func (b AttestationCOSEBase64) String() string {
	return string(b)
}

// Decode restores the raw COSE bytes.
func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(data), nil
}

// ParseAttestationDoc extracts the attestation document from the COSE_Sign1
// payload and converts it to the JSON-facing form. The second return is the
// raw user_data payload; callers decode it into the user-data type matching
// the attestation's purpose.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	raw, err := parsing.ParseNitroDocument(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   parsing.FormatPCR(raw.PCRs[0]),
			KernelHash:      parsing.FormatPCR(raw.PCRs[1]),
			ApplicationHash: parsing.FormatPCR(raw.PCRs[2]),
			IAMRoleHash:     parsing.FormatPCR(raw.PCRs[3]),
			InstanceIDHash:  parsing.FormatPCR(raw.PCRs[4]),
			SigningCertHash: parsing.FormatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    parsing.EncodeCertificateBundle(raw.CABundle),
		PublicKey:   base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:       string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

// ParseInfoAttestation parses a COSE attestation whose user data identifies a
// ledger instance.
func ParseInfoAttestation(a AttestationCOSE) (*InfoAttestationDoc, error) {
	doc, userDataBytes, err := a.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}

	var userData InfoAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse info user data: %w", err)
		}
	}
	return &InfoAttestationDoc{AttestationDoc: doc, UserData: &userData}, nil
}

// ParseEvaluationAttestation parses a COSE attestation whose user data
// commits to a minimum-finding pass.
func ParseEvaluationAttestation(a AttestationCOSE) (*EvaluationAttestationDoc, error) {
	doc, userDataBytes, err := a.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}

	var userData EvaluationAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse evaluation user data: %w", err)
		}
	}
	return &EvaluationAttestationDoc{AttestationDoc: doc, UserData: &userData}, nil
}
