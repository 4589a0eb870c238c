package core

// CipherService is the homomorphic ciphertext and authorization backend the
// ledger is built against. The core calls it as an opaque capability: it never
// implements encryption, comparison, or decryption itself, and it never holds
// key material.
//
// Production deployments bind this interface to an external FHE coprocessor
// (package coproc); tests and local demos bind it to the plaintext-simulating
// ciphersim.Simulator.
type CipherService interface {
	// VerifyAndImport checks the authenticity proof accompanying an
	// externally produced ciphertext and imports it, returning a local
	// handle. Implementations must return an error wrapping
	// ErrInvalidCiphertextProof when the input is malformed or fails
	// authentication.
	VerifyAndImport(ciphertext, proof []byte) (Handle, error)

	// CompareLessThan homomorphically computes a < b, returning a handle to
	// an encrypted boolean. The comparison is strict: equal operands encode
	// false, so a fold that keeps the incumbent on ties prefers the
	// earliest-seen minimal value.
	CompareLessThan(a, b Handle) (Handle, error)

	// SelectCiphertext returns a handle encoding the value of ifTrue when
	// cond encrypts true and ifFalse otherwise, without revealing which
	// branch was taken.
	SelectCiphertext(cond, ifTrue, ifFalse Handle) (Handle, error)

	// GrantDecryption authorizes principal to request decryption of h from
	// the service. Granting an existing authorization again is a no-op, not
	// an error.
	GrantDecryption(h Handle, principal Principal) error
}
