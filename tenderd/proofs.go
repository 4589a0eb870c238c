package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
// crypto/rand draws from the NSM-enhanced entropy pool inside an enclave and
// from the standard kernel pool in development.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateEvaluationAttestation produces the COSE attestation for a completed
// minimum-finding pass. The user data commits to the roster, every covered
// bid, and the resulting minimum handle through salted hashes; a bidder
// holding their own handle and the embedded nonce can verify inclusion
// without learning anything about other bids.
func GenerateEvaluationAttestation(
	attester EnclaveAttester,
	ledgerID string,
	ledger *core.Ledger,
	minimum core.Handle,
	requestNonce string,
) (tenderapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	rosterNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate roster hash nonce: %w", err)
	}
	bidHashNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate bid hash nonce: %w", err)
	}
	minimumNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate minimum hash nonce: %w", err)
	}

	roster := ledger.Participants()
	bidHashes := make([]string, 0, len(roster))
	for _, bidder := range roster {
		bid, ok := ledger.Bid(bidder)
		if !ok {
			return nil, fmt.Errorf("roster entry %s has no bid", bidder)
		}
		bidHashes = append(bidHashes, core.ComputeBidHash(bidder, bid.SealedPrice, bidHashNonce))
	}

	userData := &tenderapi.EvaluationAttestationUserData{
		LedgerID:         ledgerID,
		ParticipantCount: len(roster),
		RosterHash:       core.ComputeRosterHash(roster, rosterNonce),
		BidHashes:        bidHashes,
		MinimumHash:      core.ComputeHandleHash(minimum, minimumNonce),
		RosterHashNonce:  rosterNonce,
		BidHashNonce:     bidHashNonce,
		MinimumHashNonce: minimumNonce,
		Timestamp:        time.Now().UTC(),
	}

	return attest(attester, userData, requestNonce)
}

// GenerateInfoAttestation binds the daemon's identity claims to its enclave
// measurements.
func GenerateInfoAttestation(
	attester EnclaveAttester,
	userData *tenderapi.InfoAttestationUserData,
	requestNonce string,
) (tenderapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}
	return attest(attester, userData, requestNonce)
}

// attest marshals user data and requests an NSM attestation. The caller's
// nonce is embedded when provided, otherwise a random one guards against
// replay of the document itself.
func attest(attester EnclaveAttester, userData any, requestNonce string) (tenderapi.AttestationCOSE, error) {
	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}

	nonce := requestNonce
	if nonce == "" {
		nonce, err = generateNonce()
		if err != nil {
			return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
		}
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM attestation failed: %v", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Printf("INFO: NSM attestation generated: %d bytes", len(attestationCBOR))

	return tenderapi.AttestationCOSE(attestationCBOR), nil
}
