// Package coproc implements both ends of the ciphertext coprocessor
// protocol: a client that satisfies core.CipherService by forwarding each
// operation over a one-shot JSON connection, and a server harness that
// exposes any backing service on a listener. The tender daemon holds no key
// material; every ciphertext operation crosses this boundary.
package coproc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/opentender/core"
)

// Service is the full surface a coprocessor daemon exposes: the ledger-facing
// cipher operations plus grant-gated decryption for authorized principals.
type Service interface {
	core.CipherService
	Decrypt(h core.Handle, principal core.Principal) (decimal.Decimal, error)
}

// Operation type discriminators.
const (
	opVerifyImport = "verify_import"
	opCompareLT    = "compare_lt"
	opSelect       = "select"
	opGrant        = "grant"
	opDecrypt      = "decrypt"
	opPing         = "ping"
)

// Wire error codes. The client rehydrates these into the sentinel errors the
// ledger and evaluator branch on; plain messages would not survive the trip.
const (
	codeInvalidProof     = "invalid_proof"
	codeUnknownHandle    = "unknown_handle"
	codeDecryptionDenied = "decryption_denied"
	codeInternal         = "internal_error"
)

type verifyImportRequest struct {
	Type       string `json:"type"`
	Ciphertext string `json:"ciphertext"`
	Proof      string `json:"proof"`
}

type compareRequest struct {
	Type string `json:"type"`
	A    string `json:"a"`
	B    string `json:"b"`
}

type selectRequest struct {
	Type    string `json:"type"`
	Cond    string `json:"cond"`
	IfTrue  string `json:"if_true"`
	IfFalse string `json:"if_false"`
}

type grantRequest struct {
	Type      string `json:"type"`
	Handle    string `json:"handle"`
	Principal string `json:"principal"`
}

type decryptRequest struct {
	Type      string `json:"type"`
	Handle    string `json:"handle"`
	Principal string `json:"principal"`
}

// opResponse is the single response shape for every operation. Handle is set
// for operations that mint ciphertexts, Value only for decrypt.
type opResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Value     string `json:"value,omitempty"`
}

func codeForError(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidCiphertextProof):
		return codeInvalidProof
	case errors.Is(err, core.ErrUnknownHandle):
		return codeUnknownHandle
	case errors.Is(err, core.ErrDecryptionDenied):
		return codeDecryptionDenied
	}
	return codeInternal
}

func errorForCode(code, message string) error {
	switch code {
	case codeInvalidProof:
		return fmt.Errorf("%s: %w", message, core.ErrInvalidCiphertextProof)
	case codeUnknownHandle:
		return fmt.Errorf("%s: %w", message, core.ErrUnknownHandle)
	case codeDecryptionDenied:
		return fmt.Errorf("%s: %w", message, core.ErrDecryptionDenied)
	}
	return errors.New(message)
}
