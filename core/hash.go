package core

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ComputeBidHash computes the commitment to a recorded bid for attestation
// user data. This is used by both the service (to generate hashes) and
// validation (to verify hashes).
//
// Formula: SHA256(bidder + "|" + handle + "|" + nonce)
//
// The commitment covers the ciphertext handle, never a plaintext price: an
// attestation must not leak more than the ledger itself does.
func ComputeBidHash(bidder Principal, handle Handle, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s", bidder, handle, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeRosterHash computes the commitment to the participant roster. This
// is used by both the service (to generate hashes) and validation (to verify
// hashes).
//
// Formula: SHA256(nonce + "|" + p1 + "|" + p2 + ...)
//
// Participants are hashed in first-submission order, not sorted: the
// evaluation fold is defined over that order, so the order is part of the
// commitment.
func ComputeRosterHash(roster []Principal, nonce string) string {
	var b strings.Builder
	b.WriteString(nonce)
	for _, p := range roster {
		b.WriteString("|")
		b.WriteString(string(p))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}

// ComputeHandleHash computes the commitment to a single ciphertext handle.
//
// Formula: SHA256(handle + "|" + nonce)
func ComputeHandleHash(handle Handle, nonce string) string {
	data := fmt.Sprintf("%s|%s", handle, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
