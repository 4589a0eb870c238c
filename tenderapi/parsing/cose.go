// Package parsing decodes the raw CBOR structures produced by the AWS Nitro
// attestation device. It stays below the wire-type layer: callers convert the
// raw document into JSON-facing types themselves.
package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ExtractCOSEPayload returns the payload element of a COSE_Sign1 document.
// COSE_Sign1 is the CBOR array [protected, unprotected, payload, signature];
// the attestation document lives in the payload.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var elements []any
	if err := cbor.Unmarshal(coseBytes, &elements); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(elements) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(elements))
	}

	payload, ok := elements[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("COSE_Sign1 payload is not a byte string")
	}

	return payload, nil
}
