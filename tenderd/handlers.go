package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

func errorCodeFor(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidCiphertextProof):
		return tenderapi.CodeInvalidCiphertextProof
	case errors.Is(err, core.ErrEmptyLedger):
		return tenderapi.CodeEmptyLedger
	case errors.Is(err, core.ErrUnauthorizedPrincipal):
		return tenderapi.CodeUnauthorizedPrincipal
	case errors.Is(err, core.ErrEmptyPrincipal):
		return tenderapi.CodeEmptyPrincipal
	}
	return tenderapi.CodeInternal
}

func (s *TenderServer) handleSubmitBid(req tenderapi.SubmitBidRequest) any {
	ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		return tenderapi.SubmitBidResponse{
			Type:      "submit_bid_response",
			Message:   fmt.Sprintf("decode ciphertext: %v", err),
			ErrorCode: tenderapi.CodeInternal,
		}
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		return tenderapi.SubmitBidResponse{
			Type:      "submit_bid_response",
			Message:   fmt.Sprintf("decode proof: %v", err),
			ErrorCode: tenderapi.CodeInternal,
		}
	}

	if err := s.ledger.Submit(core.Principal(req.Bidder), ciphertext, proof, time.Now().UTC()); err != nil {
		log.Printf("WARNING: Bid submission from %q rejected: %v", req.Bidder, err)
		return tenderapi.SubmitBidResponse{
			Type:      "submit_bid_response",
			Message:   err.Error(),
			ErrorCode: errorCodeFor(err),
		}
	}

	bid, _ := s.ledger.Bid(core.Principal(req.Bidder))
	if err := s.journal.SaveBid(bid); err != nil {
		log.Printf("WARNING: Failed to journal bid for %s: %v", req.Bidder, err)
	}

	resp := tenderapi.SubmitBidResponse{
		Type:    "submit_bid_response",
		Success: true,
		Message: "bid recorded",
	}

	// Submission receipt: a salted commitment the bidder can keep. Receipt
	// failure never fails an already recorded bid.
	if nonce, err := generateNonce(); err == nil {
		resp.BidHash = core.ComputeBidHash(bid.Bidder, bid.SealedPrice, nonce)
		resp.BidHashNonce = nonce
	} else {
		log.Printf("WARNING: Failed to generate bid receipt nonce: %v", err)
	}
	return resp
}

func (s *TenderServer) handleGetBid(req tenderapi.GetBidRequest) any {
	bid, _ := s.ledger.Bid(core.Principal(req.Bidder))
	return tenderapi.GetBidResponse{
		Type:    "get_bid_response",
		Success: true,
		Bid: &tenderapi.SealedBid{
			Bidder:      string(bid.Bidder),
			SealedPrice: string(bid.SealedPrice),
			SubmittedAt: bid.SubmittedAt,
			Exists:      bid.Exists,
		},
	}
}

func (s *TenderServer) handleHasBid(req tenderapi.HasBidRequest) any {
	return tenderapi.HasBidResponse{
		Type:    "has_bid_response",
		Success: true,
		Exists:  s.ledger.HasBid(core.Principal(req.Bidder)),
	}
}

func (s *TenderServer) handleEvaluateMinimum(attester EnclaveAttester, req tenderapi.EvaluateMinimumRequest) any {
	start := time.Now()

	if err := s.evaluator.EvaluateMinimum(start.UTC()); err != nil {
		log.Printf("WARNING: Minimum evaluation failed: %v", err)
		return tenderapi.EvaluateMinimumResponse{
			Type:           "evaluate_minimum_response",
			Message:        err.Error(),
			ErrorCode:      errorCodeFor(err),
			ProcessingTime: time.Since(start).Milliseconds(),
		}
	}

	minimum, _ := s.evaluator.Minimum()
	resp := tenderapi.EvaluateMinimumResponse{
		Type:    "evaluate_minimum_response",
		Success: true,
		Message: "minimum calculated",
		Minimum: &tenderapi.SealedMinimum{SealedPrice: string(minimum), Computed: true},
	}

	// The evaluation stands even when attestation is unavailable; callers see
	// the result with the proof section missing.
	coseBytes, err := GenerateEvaluationAttestation(attester, s.ledgerID, s.ledger, minimum, req.Nonce)
	if err != nil {
		log.Printf("ERROR: Evaluation attestation unavailable: %v", err)
		resp.Message = "minimum calculated; attestation unavailable"
	} else {
		resp.RawAttestation = coseBytes.EncodeBase64()
		doc, err := tenderapi.ParseEvaluationAttestation(coseBytes)
		if err != nil {
			log.Printf("WARNING: Failed to parse generated attestation: %v", err)
		} else {
			resp.Attestation = doc
		}
	}

	resp.ProcessingTime = time.Since(start).Milliseconds()
	return resp
}

func (s *TenderServer) handleGetMinimum() any {
	minimum, computed := s.evaluator.Minimum()
	return tenderapi.GetMinimumResponse{
		Type:    "get_minimum_response",
		Success: true,
		Minimum: &tenderapi.SealedMinimum{SealedPrice: string(minimum), Computed: computed},
	}
}

func (s *TenderServer) handleListParticipants() any {
	roster := s.ledger.Participants()
	participants := make([]string, len(roster))
	for i, bidder := range roster {
		participants[i] = string(bidder)
	}
	return tenderapi.ListParticipantsResponse{
		Type:         "list_participants_response",
		Success:      true,
		Participants: participants,
	}
}

func (s *TenderServer) handleListEvents(req tenderapi.ListEventsRequest) any {
	events, err := s.journal.RecentEvents(req.Limit)
	if err != nil {
		log.Printf("ERROR: Failed to read event journal: %v", err)
		return tenderapi.ListEventsResponse{
			Type:    "list_events_response",
			Message: fmt.Sprintf("read event journal: %v", err),
		}
	}
	return tenderapi.ListEventsResponse{
		Type:    "list_events_response",
		Success: true,
		Events:  events,
	}
}

func (s *TenderServer) handleInfo(attester EnclaveAttester, req tenderapi.InfoRequest) any {
	_, computed := s.evaluator.Minimum()
	resp := tenderapi.InfoResponse{
		Type:             "info_response",
		Success:          true,
		Organizer:        string(s.ledger.Organizer()),
		PublicResult:     s.ledger.PublicResult(),
		ParticipantCount: len(s.ledger.Participants()),
		MinimumComputed:  computed,
	}

	userData := &tenderapi.InfoAttestationUserData{
		LedgerID:     s.ledgerID,
		Organizer:    string(s.ledger.Organizer()),
		PublicResult: s.ledger.PublicResult(),
		Coprocessor:  s.coprocAddr,
		CreatedAt:    s.createdAt,
	}
	coseBytes, err := GenerateInfoAttestation(attester, userData, req.Nonce)
	if err != nil {
		log.Printf("ERROR: Info attestation unavailable: %v", err)
		resp.Message = "attestation unavailable"
		return resp
	}

	resp.RawAttestation = coseBytes.EncodeBase64()
	doc, err := tenderapi.ParseInfoAttestation(coseBytes)
	if err != nil {
		log.Printf("WARNING: Failed to parse generated attestation: %v", err)
	} else {
		resp.Attestation = doc
	}
	return resp
}
