package core

import (
	"fmt"
	"time"
)

// Evaluator computes the encrypted running minimum over a ledger's bids and
// manages decryption authorization on the result. It owns the Running Minimum
// state exclusively and reads ledger state by reference.
//
// The evaluator tracks only the encrypted value of the minimum, never which
// participant holds it. Associating the minimum with its owning identity
// requires an out-of-band decrypt-and-match step by an authorized principal,
// outside this package. Known limitation carried from the design, not an
// oversight.
type Evaluator struct {
	ledger *Ledger

	sealedMin  Handle
	computed   bool
	computedAt uint64 // ledger version observed when the last pass completed
}

// NewEvaluator creates an evaluator over l. The running minimum is
// initialized lazily by the first evaluation pass.
func NewEvaluator(l *Ledger) *Evaluator {
	return &Evaluator{ledger: l}
}

// EvaluateMinimum runs one minimum-finding pass over the current roster.
//
// The fold is linear and branch-free: homomorphic comparison cannot
// short-circuit, so every entry costs one CompareLessThan plus one
// SelectCiphertext regardless of the data. Do not replace this with a
// plaintext shortcut; that would leak orderings the ciphertexts are meant to
// hide.
//
// Fails with ErrEmptyLedger when no bids exist; any cipher service failure
// aborts the pass. In both cases previously computed state is left exactly as
// it was. Grants issued before a failure are external, idempotent side
// effects; re-running the pass reissues them harmlessly.
func (e *Evaluator) EvaluateMinimum(now time.Time) error {
	// Fold over a roster snapshot so a nested read during evaluation cannot
	// observe a torn pass.
	roster := e.ledger.Participants()
	if len(roster) == 0 {
		return ErrEmptyLedger
	}

	svc := e.ledger.cfg.Cipher

	first, _ := e.ledger.Bid(roster[0])
	runningMin := first.SealedPrice
	for _, bidder := range roster[1:] {
		bid, _ := e.ledger.Bid(bidder)

		isLess, err := svc.CompareLessThan(bid.SealedPrice, runningMin)
		if err != nil {
			return fmt.Errorf("compare bid of %s: %w", bidder, err)
		}
		runningMin, err = svc.SelectCiphertext(isLess, bid.SealedPrice, runningMin)
		if err != nil {
			return fmt.Errorf("select running minimum at %s: %w", bidder, err)
		}
	}

	if err := svc.GrantDecryption(runningMin, e.ledger.cfg.Organizer); err != nil {
		return fmt.Errorf("grant organizer decryption on minimum: %w", err)
	}
	if e.ledger.cfg.PublicResult {
		for _, bidder := range roster {
			if err := svc.GrantDecryption(runningMin, bidder); err != nil {
				return fmt.Errorf("grant %s decryption on minimum: %w", bidder, err)
			}
		}
	}

	e.sealedMin = runningMin
	e.computed = true
	e.computedAt = e.ledger.Version()

	e.ledger.cfg.Events.MinimumCalculated(now)
	return nil
}

// Minimum returns the sealed running minimum. The second return reports
// whether a pass has completed since the last ledger mutation; while false
// the placeholder handle is returned instead of the stale ciphertext.
func (e *Evaluator) Minimum() (Handle, bool) {
	if !e.computed || e.computedAt != e.ledger.Version() {
		return "", false
	}
	return e.sealedMin, true
}
