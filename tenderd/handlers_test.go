package main

import (
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/opentender/ciphersim"
	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/store"
	"github.com/cloudx-io/opentender/tenderapi"
)

func submitBid(t *testing.T, server *TenderServer, bidder, price string) tenderapi.SubmitBidResponse {
	t.Helper()
	ciphertext, proof, err := ciphersim.Seal(decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("Seal(%s): %v", price, err)
	}
	resp := dispatchJSON(t, server, tenderapi.SubmitBidRequest{
		Type:       tenderapi.TypeSubmitBid,
		Bidder:     bidder,
		Ciphertext: encodeB64(ciphertext),
		Proof:      encodeB64(proof),
	})
	return resp.(tenderapi.SubmitBidResponse)
}

func TestDispatchPing(t *testing.T) {
	server, _ := newTestServer(t)

	resp := server.dispatch([]byte(`{"type":"ping"}`)).(tenderapi.PingResponse)
	check.Equal(t, "pong", resp.Type)
	check.True(t, resp.Timestamp > 0)
}

func TestDispatchUndecodableRequest(t *testing.T) {
	server, _ := newTestServer(t)

	resp := server.dispatch([]byte(`{not json`)).(tenderapi.ErrorResponse)
	check.Equal(t, "error", resp.Type)
	check.Equal(t, tenderapi.CodeInternal, resp.ErrorCode)
}

func TestDispatchUnknownType(t *testing.T) {
	server, _ := newTestServer(t)

	resp := server.dispatch([]byte(`{"type":"launch_missiles"}`)).(tenderapi.ErrorResponse)
	check.Equal(t, "error", resp.Type)
	check.False(t, resp.Success)
}

func TestSubmitAndGetBid(t *testing.T) {
	server, _ := newTestServer(t)

	submitResp := submitBid(t, server, "alice", "1000")
	check.True(t, submitResp.Success)
	check.NotEqual(t, "", submitResp.BidHash)
	check.NotEqual(t, "", submitResp.BidHashNonce)

	getResp := dispatchJSON(t, server, tenderapi.GetBidRequest{
		Type:   tenderapi.TypeGetBid,
		Bidder: "alice",
	}).(tenderapi.GetBidResponse)
	check.True(t, getResp.Success)
	check.True(t, getResp.Bid.Exists)
	check.Equal(t, "alice", getResp.Bid.Bidder)
	check.NotEqual(t, "", getResp.Bid.SealedPrice)

	// The receipt hash commits to the recorded handle.
	expected := core.ComputeBidHash("alice", core.Handle(getResp.Bid.SealedPrice), submitResp.BidHashNonce)
	check.Equal(t, expected, submitResp.BidHash)
}

func TestGetBidAbsent(t *testing.T) {
	server, _ := newTestServer(t)

	resp := dispatchJSON(t, server, tenderapi.GetBidRequest{
		Type:   tenderapi.TypeGetBid,
		Bidder: "nobody",
	}).(tenderapi.GetBidResponse)
	check.True(t, resp.Success)
	check.False(t, resp.Bid.Exists)
	check.Equal(t, "", resp.Bid.SealedPrice)

	hasResp := dispatchJSON(t, server, tenderapi.HasBidRequest{
		Type:   tenderapi.TypeHasBid,
		Bidder: "nobody",
	}).(tenderapi.HasBidResponse)
	check.False(t, hasResp.Exists)
}

func TestSubmitInvalidProofRejected(t *testing.T) {
	server, _ := newTestServer(t)

	ciphertext, proof, err := ciphersim.Seal(decimal.RequireFromString("1000"))
	check.Nil(t, err)
	proof[0] ^= 0xff

	resp := dispatchJSON(t, server, tenderapi.SubmitBidRequest{
		Type:       tenderapi.TypeSubmitBid,
		Bidder:     "alice",
		Ciphertext: encodeB64(ciphertext),
		Proof:      encodeB64(proof),
	}).(tenderapi.SubmitBidResponse)
	check.False(t, resp.Success)
	check.Equal(t, tenderapi.CodeInvalidCiphertextProof, resp.ErrorCode)

	hasResp := dispatchJSON(t, server, tenderapi.HasBidRequest{
		Type:   tenderapi.TypeHasBid,
		Bidder: "alice",
	}).(tenderapi.HasBidResponse)
	check.False(t, hasResp.Exists)
}

func TestSubmitEmptyBidderRejected(t *testing.T) {
	server, _ := newTestServer(t)

	resp := submitBid(t, server, "", "1000")
	check.False(t, resp.Success)
	check.Equal(t, tenderapi.CodeEmptyPrincipal, resp.ErrorCode)
}

func TestSubmitGarbageBase64Rejected(t *testing.T) {
	server, _ := newTestServer(t)

	resp := dispatchJSON(t, server, tenderapi.SubmitBidRequest{
		Type:       tenderapi.TypeSubmitBid,
		Bidder:     "alice",
		Ciphertext: "not-base64!!!",
		Proof:      "AQID",
	}).(tenderapi.SubmitBidResponse)
	check.False(t, resp.Success)
	check.Equal(t, tenderapi.CodeInternal, resp.ErrorCode)
}

func TestEvaluateMinimumFlow(t *testing.T) {
	server, sim := newTestServer(t)

	submitBid(t, server, "alice", "1000")
	submitBid(t, server, "bob", "800")
	submitBid(t, server, "carol", "1200")

	resp := dispatchJSON(t, server, tenderapi.EvaluateMinimumRequest{
		Type:  tenderapi.TypeEvaluateMinimum,
		Nonce: "caller-nonce-1",
	}).(tenderapi.EvaluateMinimumResponse)
	check.True(t, resp.Success)
	check.True(t, resp.Minimum.Computed)
	check.NotEqual(t, "", resp.Minimum.SealedPrice)

	// Only the organizer can resolve the sealed result.
	value, err := sim.Decrypt(core.Handle(resp.Minimum.SealedPrice), "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())

	_, err = sim.Decrypt(core.Handle(resp.Minimum.SealedPrice), "bob")
	check.NotNil(t, err)

	// Attestation commitments are recomputable from embedded nonces.
	check.NotNil(t, resp.Attestation)
	userData := resp.Attestation.UserData
	check.Equal(t, "ledger-test", userData.LedgerID)
	check.Equal(t, 3, userData.ParticipantCount)
	check.Equal(t, 3, len(userData.BidHashes))
	check.Equal(t, "caller-nonce-1", resp.Attestation.Nonce)

	roster := []core.Principal{"alice", "bob", "carol"}
	check.Equal(t, core.ComputeRosterHash(roster, userData.RosterHashNonce), userData.RosterHash)
	check.Equal(t,
		core.ComputeHandleHash(core.Handle(resp.Minimum.SealedPrice), userData.MinimumHashNonce),
		userData.MinimumHash)

	for i, bidder := range roster {
		bidResp := dispatchJSON(t, server, tenderapi.GetBidRequest{
			Type:   tenderapi.TypeGetBid,
			Bidder: string(bidder),
		}).(tenderapi.GetBidResponse)
		expected := core.ComputeBidHash(bidder, core.Handle(bidResp.Bid.SealedPrice), userData.BidHashNonce)
		check.Equal(t, expected, userData.BidHashes[i])
	}

	// Raw COSE parses to the same document.
	coseBytes, err := resp.RawAttestation.Decode()
	check.Nil(t, err)
	parsed, err := tenderapi.ParseEvaluationAttestation(coseBytes)
	check.Nil(t, err)
	check.Equal(t, userData.RosterHash, parsed.UserData.RosterHash)
}

func TestEvaluateMinimumEmptyLedger(t *testing.T) {
	server, _ := newTestServer(t)

	resp := dispatchJSON(t, server, tenderapi.EvaluateMinimumRequest{
		Type: tenderapi.TypeEvaluateMinimum,
	}).(tenderapi.EvaluateMinimumResponse)
	check.False(t, resp.Success)
	check.Equal(t, tenderapi.CodeEmptyLedger, resp.ErrorCode)
}

func TestEvaluateMinimumWithoutAttester(t *testing.T) {
	server, _ := newTestServer(t)
	server.attesterFactory = func() (EnclaveAttester, error) {
		return nil, fmt.Errorf("NSM not available")
	}

	submitBid(t, server, "alice", "1000")

	resp := dispatchJSON(t, server, tenderapi.EvaluateMinimumRequest{
		Type: tenderapi.TypeEvaluateMinimum,
	}).(tenderapi.EvaluateMinimumResponse)
	check.True(t, resp.Success)
	check.True(t, resp.Minimum.Computed)
	check.Nil(t, resp.Attestation)
	check.Equal(t, tenderapi.AttestationCOSEBase64(""), resp.RawAttestation)
}

func TestGetMinimumLifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	before := dispatchJSON(t, server, tenderapi.GetMinimumRequest{
		Type: tenderapi.TypeGetMinimum,
	}).(tenderapi.GetMinimumResponse)
	check.True(t, before.Success)
	check.False(t, before.Minimum.Computed)
	check.Equal(t, "", before.Minimum.SealedPrice)

	submitBid(t, server, "alice", "1000")
	dispatchJSON(t, server, tenderapi.EvaluateMinimumRequest{Type: tenderapi.TypeEvaluateMinimum})

	after := dispatchJSON(t, server, tenderapi.GetMinimumRequest{
		Type: tenderapi.TypeGetMinimum,
	}).(tenderapi.GetMinimumResponse)
	check.True(t, after.Minimum.Computed)

	// A later submission invalidates the published minimum.
	submitBid(t, server, "bob", "700")
	stale := dispatchJSON(t, server, tenderapi.GetMinimumRequest{
		Type: tenderapi.TypeGetMinimum,
	}).(tenderapi.GetMinimumResponse)
	check.False(t, stale.Minimum.Computed)
	check.Equal(t, "", stale.Minimum.SealedPrice)
}

func TestListParticipantsOrder(t *testing.T) {
	server, _ := newTestServer(t)

	submitBid(t, server, "carol", "1200")
	submitBid(t, server, "alice", "1000")
	submitBid(t, server, "carol", "1100")
	submitBid(t, server, "bob", "800")

	resp := dispatchJSON(t, server, tenderapi.ListParticipantsRequest{
		Type: tenderapi.TypeListParticipants,
	}).(tenderapi.ListParticipantsResponse)
	check.True(t, resp.Success)
	check.Equal(t, []string{"carol", "alice", "bob"}, resp.Participants)
}

func TestListEvents(t *testing.T) {
	server, _ := newTestServer(t)

	submitBid(t, server, "alice", "1000")
	submitBid(t, server, "bob", "800")
	dispatchJSON(t, server, tenderapi.EvaluateMinimumRequest{Type: tenderapi.TypeEvaluateMinimum})

	resp := dispatchJSON(t, server, tenderapi.ListEventsRequest{
		Type: tenderapi.TypeListEvents,
	}).(tenderapi.ListEventsResponse)
	check.True(t, resp.Success)
	check.Equal(t, 3, len(resp.Events))
	check.Equal(t, tenderapi.EventBidRecorded, resp.Events[0].Kind)
	check.Equal(t, "alice", resp.Events[0].Bidder)
	check.Equal(t, tenderapi.EventMinimumCalculated, resp.Events[2].Kind)

	limited := dispatchJSON(t, server, tenderapi.ListEventsRequest{
		Type:  tenderapi.TypeListEvents,
		Limit: 1,
	}).(tenderapi.ListEventsResponse)
	check.Equal(t, 1, len(limited.Events))
	check.Equal(t, tenderapi.EventMinimumCalculated, limited.Events[0].Kind)
}

func TestInfoResponse(t *testing.T) {
	server, _ := newTestServer(t)
	submitBid(t, server, "alice", "1000")

	resp := dispatchJSON(t, server, tenderapi.InfoRequest{
		Type:  tenderapi.TypeInfo,
		Nonce: "info-nonce",
	}).(tenderapi.InfoResponse)
	check.True(t, resp.Success)
	check.Equal(t, "organizer", resp.Organizer)
	check.False(t, resp.PublicResult)
	check.Equal(t, 1, resp.ParticipantCount)
	check.False(t, resp.MinimumComputed)

	check.NotNil(t, resp.Attestation)
	check.Equal(t, "ledger-test", resp.Attestation.UserData.LedgerID)
	check.Equal(t, "organizer", resp.Attestation.UserData.Organizer)
	check.Equal(t, "tcp://127.0.0.1:7000", resp.Attestation.UserData.Coprocessor)
	check.Equal(t, "info-nonce", resp.Attestation.Nonce)
}

func TestJournalReplayAcrossRestart(t *testing.T) {
	sim := ciphersim.New()
	journal := store.NewMemoryStore()

	server1, _ := newTestServerWithJournal(t, sim, journal)
	submitBid(t, server1, "carol", "1200")
	submitBid(t, server1, "alice", "1000")
	submitBid(t, server1, "bob", "800")

	firstBid := dispatchJSON(t, server1, tenderapi.GetBidRequest{
		Type:   tenderapi.TypeGetBid,
		Bidder: "alice",
	}).(tenderapi.GetBidResponse)

	// Same journal and coprocessor, fresh daemon.
	server2, _ := newTestServerWithJournal(t, sim, journal)

	roster := dispatchJSON(t, server2, tenderapi.ListParticipantsRequest{
		Type: tenderapi.TypeListParticipants,
	}).(tenderapi.ListParticipantsResponse)
	check.Equal(t, []string{"carol", "alice", "bob"}, roster.Participants)

	restored := dispatchJSON(t, server2, tenderapi.GetBidRequest{
		Type:   tenderapi.TypeGetBid,
		Bidder: "alice",
	}).(tenderapi.GetBidResponse)
	check.Equal(t, firstBid.Bid.SealedPrice, restored.Bid.SealedPrice)

	// The minimum is never carried over a restart.
	min := dispatchJSON(t, server2, tenderapi.GetMinimumRequest{
		Type: tenderapi.TypeGetMinimum,
	}).(tenderapi.GetMinimumResponse)
	check.False(t, min.Minimum.Computed)

	// Restored handles are still live on the coprocessor.
	evalResp := dispatchJSON(t, server2, tenderapi.EvaluateMinimumRequest{
		Type: tenderapi.TypeEvaluateMinimum,
	}).(tenderapi.EvaluateMinimumResponse)
	check.True(t, evalResp.Success)

	value, err := sim.Decrypt(core.Handle(evalResp.Minimum.SealedPrice), "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())
}
