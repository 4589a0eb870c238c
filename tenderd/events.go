package main

import (
	"log"
	"time"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/store"
	"github.com/cloudx-io/opentender/tenderapi"
)

// journalSink receives ledger notifications and appends them to the journal.
// A journal write failure is logged and dropped: the in-memory operation
// already succeeded, and notifications are best-effort by contract.
type journalSink struct {
	journal store.Store
}

func (s *journalSink) BidRecorded(bidder core.Principal, at time.Time) {
	log.Printf("INFO: Bid recorded for %s", bidder)
	err := s.journal.AppendEvent(tenderapi.LedgerEvent{
		Kind:      tenderapi.EventBidRecorded,
		Bidder:    string(bidder),
		Timestamp: at,
	})
	if err != nil {
		log.Printf("WARNING: Failed to journal bid_recorded event: %v", err)
	}
}

func (s *journalSink) MinimumCalculated(at time.Time) {
	log.Printf("INFO: Minimum calculated")
	err := s.journal.AppendEvent(tenderapi.LedgerEvent{
		Kind:      tenderapi.EventMinimumCalculated,
		Timestamp: at,
	})
	if err != nil {
		log.Printf("WARNING: Failed to journal minimum_calculated event: %v", err)
	}
}
