package core

import "time"

// Principal identifies an authenticated party in the tender: a bidder or the
// organizer. Principals are opaque to the core; the transport collaborator
// authenticates callers and maps them to stable identities.
type Principal string

// Handle is an opaque reference to an encrypted value held by the ciphertext
// service. The core shuttles handles between the ledger and the service but
// can never resolve them to plaintext.
//
// The zero value is the placeholder handle: reads of absent state return it
// instead of a live ciphertext.
type Handle string

// Zero reports whether h is the placeholder handle.
func (h Handle) Zero() bool { return h == "" }

// Bid is a single participant's sealed price quote.
type Bid struct {
	// SealedPrice is the ciphertext handle for the quoted price. It is never
	// decrypted in-core; only principals holding a decryption grant can
	// resolve it through the ciphertext service.
	SealedPrice Handle

	// Bidder is the submitting participant. Unique key: at most one live Bid
	// per bidder.
	Bidder Principal

	// SubmittedAt is the logical submission timestamp supplied by the host.
	SubmittedAt time.Time

	// Exists distinguishes "no bid" from a bid whose ciphertext encodes zero.
	Exists bool
}
