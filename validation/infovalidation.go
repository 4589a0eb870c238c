package validation

import (
	"fmt"
	"strings"

	"github.com/cloudx-io/opentender/tenderapi"
)

// ValidateInfoAttestation validates a tender daemon's info attestation
//
// Parameters:
//   - attestationCOSEBase64: Base64-encoded COSE_Sign1 bytes from InfoResponse.RawAttestation
//   - expectedOrganizer: the organizer principal the caller was told holds decryption rights
//
// Returns:
//   - InfoValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
//
// A bidder runs this before submitting: it proves the daemon they are talking
// to runs a known enclave image and grants decryption to the organizer they
// expect, not to someone else.
func ValidateInfoAttestation(attestationCOSEBase64 tenderapi.AttestationCOSEBase64, expectedOrganizer string) (*InfoValidationResult, error) {
	// Perform common attestation validation (PCRs, certificate, signature)
	baseResult, err := validateCommonAttestation(attestationCOSEBase64)
	if err != nil {
		return nil, err
	}

	// Parse info attestation to get user data for identity validation
	infoAttestation, err := parseInfoAttestationFromCOSE(attestationCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attestation from raw_attestation: %w", err)
	}

	result := &InfoValidationResult{
		BaseValidationResult: *baseResult,
	}

	// Validate user data present and organizer matches
	if infoAttestation.UserData == nil || infoAttestation.UserData.Organizer == "" {
		result.OrganizerMatch = false
		result.ValidationDetails = append(result.ValidationDetails, "Organizer missing from attestation")
		return result, nil
	}

	expectedTrimmed := strings.TrimSpace(expectedOrganizer)
	attestedTrimmed := strings.TrimSpace(infoAttestation.UserData.Organizer)

	if expectedTrimmed == attestedTrimmed {
		result.OrganizerMatch = true
		result.ValidationDetails = append(result.ValidationDetails, "Organizer matches attestation")
	} else {
		result.OrganizerMatch = false
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Organizer mismatch: expected %q, attestation has %q", expectedTrimmed, attestedTrimmed))
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Ledger ID: %s", infoAttestation.UserData.LedgerID))
	if infoAttestation.UserData.PublicResult {
		result.ValidationDetails = append(result.ValidationDetails, "Result disclosure: all participants")
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "Result disclosure: organizer only")
	}

	return result, nil
}

// parseInfoAttestationFromCOSE parses an InfoAttestationDoc from base64-encoded COSE bytes
func parseInfoAttestationFromCOSE(attestationCOSEB64 tenderapi.AttestationCOSEBase64) (*tenderapi.InfoAttestationDoc, error) {
	coseBytes, err := attestationCOSEB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	return tenderapi.ParseInfoAttestation(coseBytes)
}
