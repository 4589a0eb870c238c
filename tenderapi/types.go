// Package tenderapi defines the JSON wire contract between the tender host
// daemon, the HTTP gateway, and the off-host validation tooling. Requests and
// responses travel as single JSON documents over one-shot connections, with a
// "type" discriminator selecting the operation.
package tenderapi

import "time"

// Request type discriminators.
const (
	TypeSubmitBid        = "submit_bid"
	TypeGetBid           = "get_bid"
	TypeEvaluateMinimum  = "evaluate_minimum"
	TypeGetMinimum       = "get_minimum"
	TypeListParticipants = "list_participants"
	TypeHasBid           = "has_bid"
	TypeListEvents       = "list_events"
	TypeInfo             = "info_request"
	TypePing             = "ping"
)

// Wire error codes carried in response error_code fields. The codes mirror
// the service's failure taxonomy so callers can branch without string
// matching on messages.
const (
	CodeInvalidCiphertextProof = "invalid_ciphertext_proof"
	CodeEmptyLedger            = "empty_ledger"
	CodeUnauthorizedPrincipal  = "unauthorized_principal"
	CodeEmptyPrincipal         = "empty_principal"
	CodeInternal               = "internal_error"
)

// SealedBid is the externally visible form of a recorded bid. SealedPrice is
// an opaque ciphertext handle, never a plaintext amount; resolving it
// requires a decryption grant from the ciphertext service.
type SealedBid struct {
	Bidder      string    `json:"bidder"`
	SealedPrice string    `json:"sealed_price"`
	SubmittedAt time.Time `json:"submitted_at"`
	Exists      bool      `json:"exists"`
}

// SealedMinimum is the externally visible running minimum. While Computed is
// false SealedPrice is the empty placeholder, not a stale ciphertext.
type SealedMinimum struct {
	SealedPrice string `json:"sealed_price"`
	Computed    bool   `json:"computed"`
}

// LedgerEvent is one entry of the daemon's notification journal.
type LedgerEvent struct {
	Kind      string    `json:"kind"` // "bid_recorded" or "minimum_calculated"
	Bidder    string    `json:"bidder,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event kinds.
const (
	EventBidRecorded       = "bid_recorded"
	EventMinimumCalculated = "minimum_calculated"
)

// SubmitBidRequest records or overwrites the caller's sealed price quote.
// Ciphertext and Proof are base64; the daemon forwards both to the ciphertext
// service for the authenticity check before anything is recorded.
type SubmitBidRequest struct {
	Type       string `json:"type"`
	Bidder     string `json:"bidder"`
	Ciphertext string `json:"ciphertext"`
	Proof      string `json:"proof"`
}

type SubmitBidResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// BidHash commits to the accepted bid without revealing it:
	// SHA256(bidder|handle|nonce). Returned with its nonce so the bidder can
	// later check the evaluation attestation covered their submission.
	BidHash      string `json:"bid_hash,omitempty"`
	BidHashNonce string `json:"bid_hash_nonce,omitempty"`
}

type GetBidRequest struct {
	Type   string `json:"type"`
	Bidder string `json:"bidder"`
}

type GetBidResponse struct {
	Type      string     `json:"type"`
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	ErrorCode string     `json:"error_code,omitempty"`
	Bid       *SealedBid `json:"bid,omitempty"`
}

type HasBidRequest struct {
	Type   string `json:"type"`
	Bidder string `json:"bidder"`
}

type HasBidResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Exists  bool   `json:"exists"`
}

// EvaluateMinimumRequest triggers one minimum-finding pass over all recorded
// bids. Nonce, when set, is embedded in the evaluation attestation for replay
// protection.
type EvaluateMinimumRequest struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
}

type EvaluateMinimumResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	Minimum *SealedMinimum `json:"minimum,omitempty"`

	// Attestation is the parsed evaluation attestation; RawAttestation is the
	// base64 COSE_Sign1 document for off-host cryptographic validation.
	Attestation    *EvaluationAttestationDoc `json:"attestation,omitempty"`
	RawAttestation AttestationCOSEBase64     `json:"raw_attestation,omitempty"`

	ProcessingTime int64 `json:"processing_time_ms"`
}

type GetMinimumRequest struct {
	Type string `json:"type"`
}

type GetMinimumResponse struct {
	Type    string         `json:"type"`
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Minimum *SealedMinimum `json:"minimum,omitempty"`
}

type ListParticipantsRequest struct {
	Type string `json:"type"`
}

type ListParticipantsResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`

	// Participants in first-submission order. Re-submissions do not reorder.
	Participants []string `json:"participants"`
}

type ListEventsRequest struct {
	Type string `json:"type"`

	// Limit caps the number of most recent events returned; zero means the
	// daemon's default window.
	Limit int `json:"limit,omitempty"`
}

type ListEventsResponse struct {
	Type    string        `json:"type"`
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Events  []LedgerEvent `json:"events"`
}

// InfoRequest asks the daemon to identify itself. Nonce is embedded in the
// returned attestation for replay protection.
type InfoRequest struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
}

type InfoResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	Organizer        string `json:"organizer"`
	PublicResult     bool   `json:"public_result"`
	ParticipantCount int    `json:"participant_count"`
	MinimumComputed  bool   `json:"minimum_computed"`

	Attestation    *InfoAttestationDoc   `json:"attestation,omitempty"`
	RawAttestation AttestationCOSEBase64 `json:"raw_attestation,omitempty"`
}

type PingResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse is returned for undecodable or unknown request types.
type ErrorResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

// PCRs are the Platform Configuration Register measurements from the AWS
// Nitro attestation document, formatted as hex.
type PCRs struct {
	// PCR0: hash of the enclave image file
	ImageFileHash string `json:"0"`

	// PCR1: hash of the kernel and initramfs
	KernelHash string `json:"1"`

	// PCR2: hash of the user application
	ApplicationHash string `json:"2"`

	// PCR3: hash of the parent instance's IAM role
	IAMRoleHash string `json:"3"`

	// PCR4: hash of the parent instance ID
	InstanceIDHash string `json:"4"`

	// PCR8: hash of the image signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the parsed, JSON-friendly form of a Nitro attestation.
// Fields common to every attestation the daemon produces.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// InfoAttestationDoc binds a daemon's identity claims to its enclave
// measurements.
type InfoAttestationDoc struct {
	AttestationDoc
	UserData *InfoAttestationUserData `json:"user_data"`
}

// InfoAttestationUserData identifies the ledger instance inside the enclave.
type InfoAttestationUserData struct {
	LedgerID     string    `json:"ledger_id"`
	Organizer    string    `json:"organizer"`
	PublicResult bool      `json:"public_result"`
	Coprocessor  string    `json:"coprocessor"`
	CreatedAt    time.Time `json:"created_at"`
}

// EvaluationAttestationDoc proves which sealed bids a minimum-finding pass
// covered, without revealing any price or bidder identity.
type EvaluationAttestationDoc struct {
	AttestationDoc
	UserData *EvaluationAttestationUserData `json:"user_data"`
}

// EvaluationAttestationUserData commits to the evaluation's inputs and
// output. Hashes are salted with per-field nonces so the commitment reveals
// nothing on its own; a party holding the preimage can verify inclusion.
type EvaluationAttestationUserData struct {
	LedgerID         string    `json:"ledger_id"`
	ParticipantCount int       `json:"participant_count"`
	RosterHash       string    `json:"roster_hash"`
	BidHashes        []string  `json:"bid_hashes"`
	MinimumHash      string    `json:"minimum_hash"`
	RosterHashNonce  string    `json:"roster_hash_nonce"`
	BidHashNonce     string    `json:"bid_hash_nonce"`
	MinimumHashNonce string    `json:"minimum_hash_nonce"`
	Timestamp        time.Time `json:"timestamp"`
}
