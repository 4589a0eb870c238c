package core

import "errors"

var (
	// ErrInvalidCiphertextProof indicates a submitted ciphertext failed the
	// cipher service's input-authenticity check. The operation aborts with no
	// state change.
	ErrInvalidCiphertextProof = errors.New("invalid ciphertext proof")

	// ErrEmptyLedger indicates minimum evaluation was requested before any
	// bid was recorded.
	ErrEmptyLedger = errors.New("empty ledger: no bids recorded")

	// ErrUnauthorizedPrincipal indicates the organizer principal configured
	// at ledger creation is empty. The ledger cannot be created.
	ErrUnauthorizedPrincipal = errors.New("organizer principal must be non-empty")

	// ErrEmptyPrincipal indicates a submission without a bidder identity.
	// The transport collaborator must always supply an authenticated
	// principal.
	ErrEmptyPrincipal = errors.New("empty bidder principal")

	// ErrUnknownHandle is returned by cipher service implementations for
	// handles they never issued.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrDecryptionDenied is returned by cipher service implementations when
	// a principal without a grant requests decryption.
	ErrDecryptionDenied = errors.New("decryption denied: no grant for principal")
)
