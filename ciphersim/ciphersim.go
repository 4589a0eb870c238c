// Package ciphersim provides an in-memory stand-in for the external
// ciphertext/authorization service. Values are held in plaintext behind
// opaque handles, so the package simulates the service's contract (proof
// checking, oblivious compare/select, grant-gated decryption) without any
// real homomorphic backend. It backs the coprocessor daemon in development
// deployments and the integration tests.
package ciphersim

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/opentender/core"
)

// sealedPayload is the CBOR envelope inside a simulated ciphertext.
type sealedPayload struct {
	Value string `cbor:"value"`
}

// entry is the plaintext the simulator hides behind a handle. A handle holds
// either a numeric value or a comparison result, never both.
type entry struct {
	num    decimal.Decimal
	isBool bool
	flag   bool
}

// Simulator implements core.CipherService. Safe for concurrent use; the
// coprocessor daemon serves each connection on its own goroutine.
type Simulator struct {
	mu      sync.Mutex
	entries map[core.Handle]entry
	grants  map[core.Handle]map[core.Principal]bool
}

func New() *Simulator {
	return &Simulator{
		entries: make(map[core.Handle]entry),
		grants:  make(map[core.Handle]map[core.Principal]bool),
	}
}

// Seal produces a (ciphertext, proof) pair that VerifyAndImport accepts:
// a CBOR envelope carrying the decimal string, and its SHA-256 digest as the
// authenticity proof. Bidders run this client-side before submitting.
func Seal(value decimal.Decimal) (ciphertext, proof []byte, err error) {
	ciphertext, err = cbor.Marshal(sealedPayload{Value: value.String()})
	if err != nil {
		return nil, nil, fmt.Errorf("encode sealed payload: %w", err)
	}
	sum := sha256.Sum256(ciphertext)
	return ciphertext, sum[:], nil
}

func (s *Simulator) mint(e entry) core.Handle {
	h := core.Handle(uuid.New().String())
	s.entries[h] = e
	return h
}

// lookup resolves a handle. Handles do not survive simulator restarts, so a
// miss after a restart is expected and maps to core.ErrUnknownHandle.
func (s *Simulator) lookup(h core.Handle) (entry, error) {
	e, ok := s.entries[h]
	if !ok {
		return entry{}, fmt.Errorf("handle %s: %w", h, core.ErrUnknownHandle)
	}
	return e, nil
}

// VerifyAndImport checks the proof against the ciphertext, decodes the
// envelope, and issues a fresh handle. Any mismatch or malformed payload
// fails with core.ErrInvalidCiphertextProof and nothing is imported.
func (s *Simulator) VerifyAndImport(ciphertext, proof []byte) (core.Handle, error) {
	sum := sha256.Sum256(ciphertext)
	if !bytes.Equal(sum[:], proof) {
		return "", fmt.Errorf("proof digest mismatch: %w", core.ErrInvalidCiphertextProof)
	}

	var payload sealedPayload
	if err := cbor.Unmarshal(ciphertext, &payload); err != nil {
		return "", fmt.Errorf("decode sealed payload: %w", core.ErrInvalidCiphertextProof)
	}
	value, err := decimal.NewFromString(payload.Value)
	if err != nil {
		return "", fmt.Errorf("sealed payload is not a decimal: %w", core.ErrInvalidCiphertextProof)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mint(entry{num: value}), nil
}

// CompareLessThan returns a handle to the sealed truth of a < b. Strict:
// equal values compare false, so a fold keeps the earlier of tied operands.
func (s *Simulator) CompareLessThan(a, b core.Handle) (core.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	left, err := s.lookup(a)
	if err != nil {
		return "", err
	}
	right, err := s.lookup(b)
	if err != nil {
		return "", err
	}
	if left.isBool || right.isBool {
		return "", fmt.Errorf("compare operands must be numeric ciphertexts")
	}
	return s.mint(entry{isBool: true, flag: left.num.Cmp(right.num) < 0}), nil
}

// SelectCiphertext returns a fresh handle aliasing ifTrue's value when cond
// is sealed true, ifFalse's otherwise. The caller cannot tell which branch
// was taken from the handle alone.
func (s *Simulator) SelectCiphertext(cond, ifTrue, ifFalse core.Handle) (core.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(cond)
	if err != nil {
		return "", err
	}
	if !c.isBool {
		return "", fmt.Errorf("handle %s is not a comparison result", cond)
	}
	t, err := s.lookup(ifTrue)
	if err != nil {
		return "", err
	}
	f, err := s.lookup(ifFalse)
	if err != nil {
		return "", err
	}
	if t.isBool || f.isBool {
		return "", fmt.Errorf("select branches must be numeric ciphertexts")
	}

	chosen := f
	if c.flag {
		chosen = t
	}
	return s.mint(entry{num: chosen.num}), nil
}

// GrantDecryption authorizes principal to decrypt h. Granting twice is a
// no-op, which lets callers re-run failed passes without bookkeeping.
func (s *Simulator) GrantDecryption(h core.Handle, principal core.Principal) error {
	if principal == "" {
		return fmt.Errorf("grant requires a principal")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(h); err != nil {
		return err
	}
	if s.grants[h] == nil {
		s.grants[h] = make(map[core.Principal]bool)
	}
	s.grants[h][principal] = true
	return nil
}

// Decrypt resolves a handle to its plaintext value for a granted principal.
func (s *Simulator) Decrypt(h core.Handle, principal core.Principal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(h)
	if err != nil {
		return decimal.Zero, err
	}
	if e.isBool {
		return decimal.Zero, fmt.Errorf("handle %s is a comparison result, not a value", h)
	}
	if !s.grants[h][principal] {
		return decimal.Zero, fmt.Errorf("principal %s on handle %s: %w", principal, h, core.ErrDecryptionDenied)
	}
	return e.num, nil
}
