package parsing

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NitroAttestationDocument is the raw CBOR attestation document embedded in
// the COSE_Sign1 payload.
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"` // milliseconds since epoch
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ParseNitroDocument unwraps a COSE_Sign1 document and decodes the raw
// attestation structure it carries.
func ParseNitroDocument(coseBytes []byte) (*NitroAttestationDocument, error) {
	payload, err := ExtractCOSEPayload(coseBytes)
	if err != nil {
		return nil, err
	}

	var doc NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}
	return &doc, nil
}

// FormatPCR renders a PCR measurement as lowercase hex.
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// EncodeCertificateBundle converts the CA bundle to base64 strings for JSON
// transport.
func EncodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}
