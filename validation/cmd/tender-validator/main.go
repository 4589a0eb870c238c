package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudx-io/opentender/tenderapi"
	"github.com/cloudx-io/opentender/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	// Define CLI flags
	var (
		kind             = flag.String("kind", "", "Attestation kind: info or evaluation (required)")
		attestationInput = flag.String("attestation", "", "Daemon response JSON (file path or inline JSON) (required)")
		organizer        = flag.String("organizer", "", "Expected organizer principal (info only)")
		bidder           = flag.String("bidder", "", "Validating bidder identity (evaluation only)")
		bidHandle        = flag.String("bid-handle", "", "Sealed-price handle from the bidder's record (evaluation only)")
		participants     = flag.String("participants", "", "Comma-separated roster in first-submission order (evaluation only)")
		minimumHandle    = flag.String("minimum-handle", "", "Sealed minimum handle the daemon reported (evaluation only)")
		outputFormat     = flag.String("format", "text", "Output format: text or json")
		help             = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help {
		showUsage()
		os.Exit(0)
	}

	switch *kind {
	case "info":
		runInfoValidation(*attestationInput, *organizer, *outputFormat)
	case "evaluation":
		runEvaluationValidation(*attestationInput, *bidder, *bidHandle, *participants, *minimumHandle, *outputFormat)
	default:
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --kind must be 'info' or 'evaluation'\n")
		os.Exit(1)
	}
}

func runInfoValidation(attestationInput, organizer, outputFormat string) {
	if attestationInput == "" || organizer == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: info validation requires --attestation and --organizer\n")
		os.Exit(1)
	}

	rawAttestation, err := readRawAttestation(attestationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading attestation: %v\n", err)
		os.Exit(2)
	}

	// Validate using library
	result, err := validation.ValidateInfoAttestation(rawAttestation, organizer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if outputFormat == "json" {
		outputInfoJSON(result)
	} else {
		outputInfoText(result)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func runEvaluationValidation(attestationInput, bidder, bidHandle, participants, minimumHandle, outputFormat string) {
	if attestationInput == "" || bidder == "" || bidHandle == "" || participants == "" || minimumHandle == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: evaluation validation requires --attestation, --bidder, --bid-handle, --participants, and --minimum-handle\n")
		os.Exit(1)
	}

	rawAttestation, err := readRawAttestation(attestationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading attestation: %v\n", err)
		os.Exit(2)
	}

	// Validate using library
	result, err := validation.ValidateEvaluationAttestation(&validation.EvaluationValidationInput{
		AttestationCOSEBase64: rawAttestation,
		Bidder:                bidder,
		BidHandle:             bidHandle,
		Participants:          splitRoster(participants),
		MinimumHandle:         minimumHandle,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if outputFormat == "json" {
		outputEvaluationJSON(result)
	} else {
		outputEvaluationText(result)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Tender Attestation Validator")
	logger.Info("")
	logger.Info("Validates tender daemon attestations: the daemon's identity claims")
	logger.Info("(info) or a completed minimum evaluation (evaluation).")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  tender-validator --kind info --attestation <json> --organizer <principal> [options]")
	logger.Info("  tender-validator --kind evaluation --attestation <json> --bidder <principal> \\")
	logger.Info("      --bid-handle <handle> --participants <p1,p2,...> --minimum-handle <handle> [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --kind <info|evaluation>          Which attestation to validate")
	logger.Info("  --attestation <json>              Daemon response JSON (file path or inline)")
	logger.Info("                                    The raw_attestation field is extracted")
	logger.Info("")
	logger.Info("Info Flags:")
	logger.Info("  --organizer <principal>           Organizer expected to hold decryption rights")
	logger.Info("")
	logger.Info("Evaluation Flags:")
	logger.Info("  --bidder <principal>              Your bidder identity")
	logger.Info("  --bid-handle <handle>             sealed_price from GET /api/bids/{bidder}")
	logger.Info("  --participants <p1,p2,...>        Roster from GET /api/participants, in order")
	logger.Info("  --minimum-handle <handle>         sealed_price from GET /api/minimum")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Examples:")
	logger.Info("  # Validate a daemon before submitting a bid")
	logger.Info("  tender-validator --kind info --attestation info_response.json --organizer procurement-office")
	logger.Info("")
	logger.Info("  # Audit an evaluation your bid took part in")
	logger.Info("  tender-validator --kind evaluation --attestation evaluate_response.json \\")
	logger.Info("    --bidder acme --bid-handle 7d8e... --participants acme,globex,initech \\")
	logger.Info("    --minimum-handle 91af...")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
	logger.Info("")
	logger.Info("Library Usage:")
	logger.Info("  This CLI tool is an example. For programmatic use, import:")
	logger.Info("  github.com/cloudx-io/opentender/validation")
}

func readJSONInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline JSON
	return []byte(input), nil
}

// readRawAttestation extracts the raw_attestation field from a daemon (or
// gateway) response. Both info and evaluation responses carry it under the
// same name.
func readRawAttestation(input string) (tenderapi.AttestationCOSEBase64, error) {
	data, err := readJSONInput(input)
	if err != nil {
		return "", err
	}

	var envelope struct {
		RawAttestation tenderapi.AttestationCOSEBase64 `json:"raw_attestation"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}

	if envelope.RawAttestation == "" {
		return "", fmt.Errorf("missing raw_attestation field in response")
	}

	return envelope.RawAttestation, nil
}

func splitRoster(participants string) []string {
	parts := strings.Split(participants, ",")
	roster := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			roster = append(roster, trimmed)
		}
	}
	return roster
}

func outputInfoText(result *validation.InfoValidationResult) {
	logger.Info("Tender Info Attestation Validator")
	logger.Info("=================================")
	logger.Info("")

	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  PCRs Valid:        %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid: %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:   %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Organizer Match:   %v", result.OrganizerMatch))

	logger.Info("")
	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info(fmt.Sprintf("  - %s", detail))
	}

	logger.Info("")
	logger.Info("=================================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputInfoJSON(result *validation.InfoValidationResult) {
	output := map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"organizer_match":   result.OrganizerMatch,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	logger.Info(string(data))
}

func outputEvaluationText(result *validation.EvaluationValidationResult) {
	logger.Info("Tender Evaluation Attestation Validator")
	logger.Info("=======================================")
	logger.Info("")

	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  PCRs Valid:              %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid:       %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:         %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Bid Hash Valid:          %v", result.BidHashValid))
	logger.Info(fmt.Sprintf("  Roster Hash Valid:       %v", result.RosterHashValid))
	logger.Info(fmt.Sprintf("  Participant Count Valid: %v", result.ParticipantCountValid))
	logger.Info(fmt.Sprintf("  Minimum Hash Valid:      %v", result.MinimumHashValid))

	logger.Info("")
	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info(fmt.Sprintf("  - %s", detail))
	}

	logger.Info("")
	logger.Info("=======================================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputEvaluationJSON(result *validation.EvaluationValidationResult) {
	output := map[string]any{
		"valid":                   result.IsValid(),
		"pcrs_valid":              result.PCRsValid,
		"certificate_valid":       result.CertificateValid,
		"signature_valid":         result.SignatureValid,
		"bid_hash_valid":          result.BidHashValid,
		"roster_hash_valid":       result.RosterHashValid,
		"participant_count_valid": result.ParticipantCountValid,
		"minimum_hash_valid":      result.MinimumHashValid,
		"details":                 result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	logger.Info(string(data))
}
