package validation

import (
	"fmt"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

// EvaluationValidationInput contains all inputs needed for evaluation attestation validation.
// Bidder, BidHandle, Participants, and MinimumHandle are all readable through the
// daemon's API (get_bid, list_participants, get_minimum); the attestation nonces
// come from the attestation itself.
type EvaluationValidationInput struct {
	AttestationCOSEBase64 tenderapi.AttestationCOSEBase64

	Bidder        string   // The validating bidder's identity
	BidHandle     string   // Sealed-price handle from the bidder's own record
	Participants  []string // Roster in first-submission order
	MinimumHandle string   // Sealed minimum handle the daemon reported
}

// ValidateEvaluationAttestation validates a minimum-evaluation attestation and verifies:
// - The bidder's sealed price was included in the evaluation
// - The roster the evaluation folded over matches the published roster, in order
// - The participant count matches
// - The published minimum handle is the one the evaluation produced
//
// All commitments are over ciphertext handles: the check proves inclusion and
// output binding without anyone learning a price.
//
// Returns:
//   - EvaluationValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateEvaluationAttestation(input *EvaluationValidationInput) (*EvaluationValidationResult, error) {
	// Perform common attestation validation (PCRs, certificate, signature)
	baseResult, err := validateCommonAttestation(input.AttestationCOSEBase64)
	if err != nil {
		return nil, err
	}

	// Parse evaluation attestation to get user data for domain validation
	evalAttestation, err := parseEvaluationAttestationFromCOSE(input.AttestationCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attestation from raw_attestation: %w", err)
	}

	result := &EvaluationValidationResult{
		BaseValidationResult: *baseResult,
	}

	// Validate user data is present
	if evalAttestation.UserData == nil {
		result.BidHashValid = false
		result.RosterHashValid = false
		result.ParticipantCountValid = false
		result.MinimumHashValid = false
		result.ValidationDetails = append(result.ValidationDetails, "Attestation user data missing")
		return result, nil
	}

	result.BidHashValid = validateBidInclusion(input, evalAttestation, result)
	result.RosterHashValid = validateRosterHash(input, evalAttestation, result)
	result.ParticipantCountValid = validateParticipantCount(input, evalAttestation, result)
	result.MinimumHashValid = validateMinimumHash(input, evalAttestation, result)

	return result, nil
}

func validateBidInclusion(input *EvaluationValidationInput, attestation *tenderapi.EvaluationAttestationDoc, result *EvaluationValidationResult) bool {
	nonce := attestation.UserData.BidHashNonce
	if nonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Bid hash nonce missing from attestation")
		return false
	}

	computedHash := core.ComputeBidHash(core.Principal(input.Bidder), core.Handle(input.BidHandle), nonce)

	for _, attestedHash := range attestation.UserData.BidHashes {
		if computedHash == attestedHash {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid hash found in attestation: %s", computedHash))
			return true
		}
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid hash NOT found in attestation. Computed: %s", computedHash))
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Total hashes in attestation: %d", len(attestation.UserData.BidHashes)))
	return false
}

func validateRosterHash(input *EvaluationValidationInput, attestation *tenderapi.EvaluationAttestationDoc, result *EvaluationValidationResult) bool {
	nonce := attestation.UserData.RosterHashNonce
	if nonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Roster hash nonce missing from attestation")
		return false
	}

	roster := make([]core.Principal, len(input.Participants))
	for i, p := range input.Participants {
		roster[i] = core.Principal(p)
	}

	computedHash := core.ComputeRosterHash(roster, nonce)
	attestedHash := attestation.UserData.RosterHash

	if computedHash == attestedHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Roster hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Roster hash mismatch: computed %s, attestation has %s", computedHash, attestedHash))
	return false
}

func validateParticipantCount(input *EvaluationValidationInput, attestation *tenderapi.EvaluationAttestationDoc, result *EvaluationValidationResult) bool {
	if len(input.Participants) == attestation.UserData.ParticipantCount {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Participant count validation passed: %d", attestation.UserData.ParticipantCount))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Participant count mismatch: expected %d, attestation has %d", len(input.Participants), attestation.UserData.ParticipantCount))
	return false
}

func validateMinimumHash(input *EvaluationValidationInput, attestation *tenderapi.EvaluationAttestationDoc, result *EvaluationValidationResult) bool {
	nonce := attestation.UserData.MinimumHashNonce
	if nonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Minimum hash nonce missing from attestation")
		return false
	}

	computedHash := core.ComputeHandleHash(core.Handle(input.MinimumHandle), nonce)
	attestedHash := attestation.UserData.MinimumHash

	if computedHash == attestedHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Minimum hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Minimum hash mismatch: computed %s, attestation has %s", computedHash, attestedHash))
	return false
}

// parseEvaluationAttestationFromCOSE parses an EvaluationAttestationDoc from base64-encoded COSE bytes
func parseEvaluationAttestationFromCOSE(attestationCOSEB64 tenderapi.AttestationCOSEBase64) (*tenderapi.EvaluationAttestationDoc, error) {
	coseBytes, err := attestationCOSEB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	return tenderapi.ParseEvaluationAttestation(coseBytes)
}
