package core

import "time"

// EventSink receives ledger notifications. Sinks run inside the mutating
// operation after its state change has committed; implementations must be
// fast and must not call back into the ledger.
type EventSink interface {
	// BidRecorded fires after a bid is created or overwritten.
	BidRecorded(bidder Principal, at time.Time)

	// MinimumCalculated fires after a minimum-finding pass completes.
	MinimumCalculated(at time.Time)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) BidRecorded(Principal, time.Time) {}

func (NopSink) MinimumCalculated(time.Time) {}
