package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/cloudx-io/opentender/tenderapi"
)

// principalHeader carries the caller identity. Demo-grade: a production
// deployment must have an authenticating proxy set this header.
const principalHeader = "X-Tender-Principal"

// Gateway bridges the public REST API to a tender daemon's one-shot JSON
// protocol. All ledger state lives in the daemon; the gateway is stateless
// apart from readiness flags.
type Gateway struct {
	config *Config
	tender *tenderapi.Client

	// isReady is operator-controlled via /drain and /undrain; connected
	// tracks whether the tender daemon answers pings. Both gate /readyz.
	isReady   atomic.Bool
	connected atomic.Bool
}

// NewGateway creates a gateway for the given tender daemon client.
func NewGateway(config *Config, tender *tenderapi.Client) *Gateway {
	g := &Gateway{config: config, tender: tender}
	g.isReady.Store(true)
	return g
}

// RegisterRoutes registers all HTTP routes.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/bids", g.handleSubmitBid)
		r.Get("/bids/{bidder}", g.handleGetBid)
		r.Get("/bids/{bidder}/exists", g.handleHasBid)
		r.Post("/minimum/evaluate", g.handleEvaluateMinimum)
		r.Get("/minimum", g.handleGetMinimum)
		r.Get("/participants", g.handleListParticipants)
		r.Get("/events", g.handleListEvents)
		r.Get("/info", g.handleInfo)
	})

	r.Get("/health", g.handleHealth)
	r.Get("/livez", g.handleLivenessCheck)
	r.Get("/readyz", g.handleReadinessCheck)
	r.Get("/drain", g.handleDrain)
	r.Get("/undrain", g.handleUndrain)
}

// Start begins background connectivity checks against the tender daemon.
func (g *Gateway) Start(ctx context.Context) {
	g.checkTender()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.checkTender()
		}
	}
}

func (g *Gateway) checkTender() {
	_, err := g.tender.Ping()
	wasConnected := g.connected.Swap(err == nil)
	switch {
	case err != nil && wasConnected:
		fmt.Printf("Lost contact with tender daemon: %v\n", err)
	case err == nil && !wasConnected:
		fmt.Println("Connected to tender daemon")
	}
}

// BidSubmission carries a sealed price submission. SealedPrice and Proof are
// base64-encoded; the gateway never sees a plaintext amount.
type BidSubmission struct {
	SealedPrice string `json:"sealed_price"`
	Proof       string `json:"proof"`
}

// BidReceipt confirms an accepted submission. BidHash commits to the recorded
// bid; the bidder keeps the nonce to check later attestations.
type BidReceipt struct {
	Success      bool   `json:"success"`
	BidHash      string `json:"bid_hash"`
	BidHashNonce string `json:"bid_hash_nonce"`
}

// BidResponse describes a bidder's sealed record.
type BidResponse struct {
	Bidder      string `json:"bidder"`
	SealedPrice string `json:"sealed_price"`
	SubmittedAt string `json:"submitted_at,omitempty"`
	Exists      bool   `json:"exists"`
}

// ExistsResponse answers a bid-presence query.
type ExistsResponse struct {
	Bidder string `json:"bidder"`
	Exists bool   `json:"exists"`
}

// EvaluateRequest optionally carries a caller nonce for the attestation.
type EvaluateRequest struct {
	Nonce string `json:"nonce"`
}

// EvaluationResult reports a completed minimum-finding pass.
type EvaluationResult struct {
	Success        bool                                `json:"success"`
	Minimum        *MinimumResponse                    `json:"minimum,omitempty"`
	Attestation    *tenderapi.EvaluationAttestationDoc `json:"attestation,omitempty"`
	RawAttestation tenderapi.AttestationCOSEBase64     `json:"raw_attestation,omitempty"`
	ProcessingTime int64                               `json:"processing_time_ms"`
}

// MinimumResponse is the running minimum as a sealed handle.
type MinimumResponse struct {
	SealedPrice string `json:"sealed_price"`
	Computed    bool   `json:"computed"`
}

// ParticipantsResponse lists the roster in first-submission order.
type ParticipantsResponse struct {
	Participants []string `json:"participants"`
}

// EventsResponse lists recent ledger events, oldest first.
type EventsResponse struct {
	Events []tenderapi.LedgerEvent `json:"events"`
}

// InfoResult relays the daemon's identity claims and attestation.
type InfoResult struct {
	Organizer        string                          `json:"organizer"`
	PublicResult     bool                            `json:"public_result"`
	ParticipantCount int                             `json:"participant_count"`
	MinimumComputed  bool                            `json:"minimum_computed"`
	Attestation      *tenderapi.InfoAttestationDoc   `json:"attestation,omitempty"`
	RawAttestation   tenderapi.AttestationCOSEBase64 `json:"raw_attestation,omitempty"`
}

// HealthResponse describes gateway health.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Tender    string `json:"tender"`
}

// APIError is the JSON error envelope for failed requests.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (g *Gateway) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	bidder := principalFrom(r)
	if bidder == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Error: "missing " + principalHeader + " header"})
		return
	}

	var req BidSubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Error: "invalid request body"})
		return
	}

	ciphertext, err := base64.StdEncoding.DecodeString(req.SealedPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Error: "sealed_price is not valid base64"})
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Error: "proof is not valid base64"})
		return
	}

	resp, err := g.tender.SubmitBid(bidder, ciphertext, proof)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}
	if !resp.Success {
		writeJSON(w, statusForCode(resp.ErrorCode), APIError{Error: resp.Message, Code: resp.ErrorCode})
		return
	}

	writeJSON(w, http.StatusOK, BidReceipt{
		Success:      true,
		BidHash:      resp.BidHash,
		BidHashNonce: resp.BidHashNonce,
	})
}

func (g *Gateway) handleGetBid(w http.ResponseWriter, r *http.Request) {
	bidder := chi.URLParam(r, "bidder")

	resp, err := g.tender.GetBid(bidder)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}
	if !resp.Success || resp.Bid == nil {
		writeJSON(w, statusForCode(resp.ErrorCode), APIError{Error: resp.Message, Code: resp.ErrorCode})
		return
	}

	out := BidResponse{
		Bidder:      resp.Bid.Bidder,
		SealedPrice: resp.Bid.SealedPrice,
		Exists:      resp.Bid.Exists,
	}
	if resp.Bid.Exists {
		out.SubmittedAt = resp.Bid.SubmittedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleHasBid(w http.ResponseWriter, r *http.Request) {
	bidder := chi.URLParam(r, "bidder")

	resp, err := g.tender.HasBid(bidder)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}

	writeJSON(w, http.StatusOK, ExistsResponse{Bidder: bidder, Exists: resp.Exists})
}

func (g *Gateway) handleEvaluateMinimum(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty POST runs the evaluation without a
	// caller nonce.
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, APIError{Error: "invalid request body"})
		return
	}

	resp, err := g.tender.EvaluateMinimum(req.Nonce)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}
	if !resp.Success {
		writeJSON(w, statusForCode(resp.ErrorCode), APIError{Error: resp.Message, Code: resp.ErrorCode})
		return
	}

	out := EvaluationResult{
		Success:        true,
		Attestation:    resp.Attestation,
		RawAttestation: resp.RawAttestation,
		ProcessingTime: resp.ProcessingTime,
	}
	if resp.Minimum != nil {
		out.Minimum = &MinimumResponse{
			SealedPrice: resp.Minimum.SealedPrice,
			Computed:    resp.Minimum.Computed,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleGetMinimum(w http.ResponseWriter, r *http.Request) {
	resp, err := g.tender.GetMinimum()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}

	out := MinimumResponse{}
	if resp.Minimum != nil {
		out.SealedPrice = resp.Minimum.SealedPrice
		out.Computed = resp.Minimum.Computed
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	resp, err := g.tender.ListParticipants()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}

	participants := resp.Participants
	if participants == nil {
		participants = []string{}
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Participants: participants})
}

func (g *Gateway) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, APIError{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	resp, err := g.tender.ListEvents(limit)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}

	events := resp.Events
	if events == nil {
		events = []tenderapi.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp, err := g.tender.Info(r.URL.Query().Get("nonce"))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, APIError{Error: fmt.Sprintf("failed to reach tender daemon: %v", err)})
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusBadGateway, APIError{Error: resp.Message})
		return
	}

	writeJSON(w, http.StatusOK, InfoResult{
		Organizer:        resp.Organizer,
		PublicResult:     resp.PublicResult,
		ParticipantCount: resp.ParticipantCount,
		MinimumComputed:  resp.MinimumComputed,
		Attestation:      resp.Attestation,
		RawAttestation:   resp.RawAttestation,
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := g.connected.Load()
	status := "ok"
	if !connected {
		status = "connecting"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Connected: connected,
		Tender:    tenderEndpoint(g.config.Tender),
	})
}

func (g *Gateway) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (g *Gateway) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !g.isReady.Load() || !g.connected.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (g *Gateway) handleDrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !g.isReady.Swap(false) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}

	fmt.Println("Gateway marked as not ready")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (g *Gateway) handleUndrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if g.isReady.Swap(true) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}

	fmt.Println("Gateway marked as ready")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func principalFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(principalHeader))
}

// statusForCode maps daemon error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case tenderapi.CodeInvalidCiphertextProof, tenderapi.CodeEmptyPrincipal:
		return http.StatusBadRequest
	case tenderapi.CodeUnauthorizedPrincipal:
		return http.StatusForbidden
	case tenderapi.CodeEmptyLedger:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
