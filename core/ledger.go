package core

import (
	"fmt"
	"time"
)

// LedgerConfig configures a sealed-bid ledger.
type LedgerConfig struct {
	// Cipher is the ciphertext/authorization backend. Required.
	Cipher CipherService

	// Organizer is the principal granted standing decryption authorization
	// on every individual bid and on the evaluated minimum. Required.
	Organizer Principal

	// PublicResult additionally grants every participant decryption of the
	// evaluated minimum (the public-result variant). Individual bids stay
	// organizer-only either way.
	PublicResult bool

	// Events receives notifications. Optional; defaults to NopSink.
	Events EventSink
}

// Ledger owns the mapping of participant to sealed bid and the
// insertion-order roster of participants. It is not safe for concurrent use:
// the host serializes calls, which is what makes each operation atomic with
// respect to all others.
type Ledger struct {
	cfg    LedgerConfig
	bids   map[Principal]*Bid
	roster []Principal

	// version increments once per successful mutation. The evaluator compares
	// it against the version observed at computation time to decide whether
	// the running minimum is stale.
	version uint64
}

// NewLedger creates an empty ledger. The organizer identity is validated once
// here; an empty organizer is fatal (ErrUnauthorizedPrincipal) and no ledger
// is created. Passing the organizer explicitly, rather than reading a global,
// is what allows multiple independent ledgers per process.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Cipher == nil {
		return nil, fmt.Errorf("ledger requires a cipher service")
	}
	if cfg.Organizer == "" {
		return nil, ErrUnauthorizedPrincipal
	}
	if cfg.Events == nil {
		cfg.Events = NopSink{}
	}
	return &Ledger{
		cfg:  cfg,
		bids: make(map[Principal]*Bid),
	}, nil
}

// Submit records or overwrites bidder's sealed price quote.
//
// The ciphertext and proof are validated by the cipher service's authenticity
// check first; a failure aborts with no state change. On success the
// organizer is granted decryption on the imported handle, the bid is
// upserted, the bidder is appended to the roster on first submission only,
// and the running minimum is invalidated. Re-submission overwrites
// SealedPrice and SubmittedAt in place and never grows the roster.
func (l *Ledger) Submit(bidder Principal, ciphertext, proof []byte, now time.Time) error {
	if bidder == "" {
		return ErrEmptyPrincipal
	}

	handle, err := l.cfg.Cipher.VerifyAndImport(ciphertext, proof)
	if err != nil {
		return fmt.Errorf("verify sealed price: %w", err)
	}

	// Grant before mutating: a grant failure must leave the ledger untouched.
	if err := l.cfg.Cipher.GrantDecryption(handle, l.cfg.Organizer); err != nil {
		return fmt.Errorf("grant organizer decryption: %w", err)
	}

	if existing, ok := l.bids[bidder]; ok {
		existing.SealedPrice = handle
		existing.SubmittedAt = now
	} else {
		l.bids[bidder] = &Bid{
			SealedPrice: handle,
			Bidder:      bidder,
			SubmittedAt: now,
			Exists:      true,
		}
		l.roster = append(l.roster, bidder)
	}
	l.version++

	l.cfg.Events.BidRecorded(bidder, now)
	return nil
}

// RestoreBid re-inserts a previously recorded bid during host replay. Proof
// verification and the organizer grant are skipped: both happened when the
// bid was first accepted. Callers must replay in the original
// first-submission order so the roster is reconstructed faithfully.
func (l *Ledger) RestoreBid(bid Bid) error {
	if bid.Bidder == "" {
		return ErrEmptyPrincipal
	}
	if bid.SealedPrice.Zero() {
		return fmt.Errorf("restore %s: bid has no sealed price", bid.Bidder)
	}
	if existing, ok := l.bids[bid.Bidder]; ok {
		existing.SealedPrice = bid.SealedPrice
		existing.SubmittedAt = bid.SubmittedAt
	} else {
		b := bid
		b.Exists = true
		l.bids[bid.Bidder] = &b
		l.roster = append(l.roster, bid.Bidder)
	}
	l.version++
	return nil
}

// Bid returns bidder's sealed bid. The second return reports presence; absent
// bidders yield the zero Bid with the placeholder handle and Exists false.
// There is no authorization check: a handle is not plaintext, and only grant
// holders can resolve it through the cipher service.
func (l *Ledger) Bid(bidder Principal) (Bid, bool) {
	if b, ok := l.bids[bidder]; ok {
		return *b, true
	}
	return Bid{Bidder: bidder}, false
}

// HasBid reports whether bidder has a live bid.
func (l *Ledger) HasBid(bidder Principal) bool {
	_, ok := l.bids[bidder]
	return ok
}

// Participants returns a snapshot of the roster in first-submission order.
func (l *Ledger) Participants() []Principal {
	out := make([]Principal, len(l.roster))
	copy(out, l.roster)
	return out
}

// Version returns the mutation counter. Every successful Submit or RestoreBid
// increments it exactly once.
func (l *Ledger) Version() uint64 { return l.version }

// Organizer returns the principal holding standing decryption authorization.
func (l *Ledger) Organizer() Principal { return l.cfg.Organizer }

// PublicResult reports whether evaluated minimums are granted to every
// participant in addition to the organizer.
func (l *Ledger) PublicResult() bool { return l.cfg.PublicResult }
