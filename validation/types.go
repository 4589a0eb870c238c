package validation

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// InfoValidationResult contains validation results specific to ledger info attestations
type InfoValidationResult struct {
	BaseValidationResult
	OrganizerMatch bool
}

// IsValid returns true if all info validation checks passed
func (r *InfoValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.OrganizerMatch
}

// EvaluationValidationResult contains validation results specific to
// minimum-evaluation attestations
type EvaluationValidationResult struct {
	BaseValidationResult
	BidHashValid          bool
	RosterHashValid       bool
	ParticipantCountValid bool
	MinimumHashValid      bool
}

// IsValid returns true if all evaluation validation checks passed
func (r *EvaluationValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.BidHashValid && r.RosterHashValid && r.ParticipantCountValid && r.MinimumHashValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // opentender repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
