package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// stubCipher implements CipherService over plaintext decimals for ledger and
// evaluator tests. Handles are deterministic ("ct-1", "ct-2", ...), call
// counts are recorded so tests can assert the fold's fixed per-step cost, and
// failures are injectable per operation.
type stubCipher struct {
	values map[Handle]decimal.Decimal
	bools  map[Handle]bool
	grants map[Handle]map[Principal]bool
	seq    int

	compares int
	selects  int

	verifyErr  error
	compareErr error
	selectErr  error
	grantErr   error
}

func newStubCipher() *stubCipher {
	return &stubCipher{
		values: make(map[Handle]decimal.Decimal),
		bools:  make(map[Handle]bool),
		grants: make(map[Handle]map[Principal]bool),
	}
}

func (s *stubCipher) mint() Handle {
	s.seq++
	return Handle(fmt.Sprintf("ct-%d", s.seq))
}

// sealPlain builds a (ciphertext, proof) pair the stub accepts: the decimal
// string as payload, its SHA-256 as the authenticity proof.
func sealPlain(price string) (ciphertext, proof []byte) {
	ciphertext = []byte(price)
	sum := sha256.Sum256(ciphertext)
	return ciphertext, sum[:]
}

func (s *stubCipher) VerifyAndImport(ciphertext, proof []byte) (Handle, error) {
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	sum := sha256.Sum256(ciphertext)
	if !bytes.Equal(sum[:], proof) {
		return "", fmt.Errorf("proof mismatch: %w", ErrInvalidCiphertextProof)
	}
	value, err := decimal.NewFromString(string(ciphertext))
	if err != nil {
		return "", fmt.Errorf("malformed payload: %w", ErrInvalidCiphertextProof)
	}
	h := s.mint()
	s.values[h] = value
	return h, nil
}

func (s *stubCipher) CompareLessThan(a, b Handle) (Handle, error) {
	if s.compareErr != nil {
		return "", s.compareErr
	}
	s.compares++
	h := s.mint()
	s.bools[h] = s.values[a].Cmp(s.values[b]) < 0
	return h, nil
}

func (s *stubCipher) SelectCiphertext(cond, ifTrue, ifFalse Handle) (Handle, error) {
	if s.selectErr != nil {
		return "", s.selectErr
	}
	s.selects++
	h := s.mint()
	if s.bools[cond] {
		s.values[h] = s.values[ifTrue]
	} else {
		s.values[h] = s.values[ifFalse]
	}
	return h, nil
}

func (s *stubCipher) GrantDecryption(h Handle, principal Principal) error {
	if s.grantErr != nil {
		return s.grantErr
	}
	if s.grants[h] == nil {
		s.grants[h] = make(map[Principal]bool)
	}
	s.grants[h][principal] = true
	return nil
}

// decrypt resolves a handle the way the external service would: only for
// principals holding a grant.
func (s *stubCipher) decrypt(h Handle, principal Principal) (decimal.Decimal, error) {
	if !s.grants[h][principal] {
		return decimal.Zero, fmt.Errorf("principal %s holds no grant on %s", principal, h)
	}
	value, ok := s.values[h]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown handle %s", h)
	}
	return value, nil
}

// recordingSink captures notifications for assertions.
type recordingSink struct {
	bids     []Principal
	bidTimes []time.Time
	minCalcs int
}

func (r *recordingSink) BidRecorded(bidder Principal, at time.Time) {
	r.bids = append(r.bids, bidder)
	r.bidTimes = append(r.bidTimes, at)
}

func (r *recordingSink) MinimumCalculated(time.Time) {
	r.minCalcs++
}

// newTestLedger builds a ledger over a fresh stub with organizer "organizer".
func newTestLedger(t *testing.T) (*Ledger, *stubCipher) {
	t.Helper()
	svc := newStubCipher()
	ledger, err := NewLedger(LedgerConfig{Cipher: svc, Organizer: "organizer"})
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	return ledger, svc
}

// mustSubmit seals price and submits it for bidder, failing the test on error.
func mustSubmit(t *testing.T, ledger *Ledger, bidder Principal, price string, now time.Time) {
	t.Helper()
	ciphertext, proof := sealPlain(price)
	if err := ledger.Submit(bidder, ciphertext, proof, now); err != nil {
		t.Fatalf("Submit(%s, %s) failed: %v", bidder, price, err)
	}
}
