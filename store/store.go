// Package store persists the sealed-bid journal and the notification log, so
// a restarted daemon can rebuild its ledger by replay. Only ciphertext
// handles and metadata are stored; plaintext prices never exist on the host
// side to begin with.
package store

import (
	"sync"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

// Store is the journal the tender daemon writes behind every successful
// mutation.
type Store interface {
	// SaveBid upserts a bid. A bidder's journal position is assigned on
	// first save and kept across overwrites, preserving roster order.
	SaveBid(bid core.Bid) error

	// LoadBids returns all bids in first-submission order.
	LoadBids() ([]core.Bid, error)

	// AppendEvent records a notification.
	AppendEvent(event tenderapi.LedgerEvent) error

	// RecentEvents returns up to limit most recent events, oldest first.
	RecentEvents(limit int) ([]tenderapi.LedgerEvent, error)

	Close() error
}

// MemoryStore implements Store without a database. It backs tests and
// single-process deployments that can afford to lose the journal.
type MemoryStore struct {
	mu     sync.Mutex
	bids   []core.Bid
	index  map[core.Principal]int
	events []tenderapi.LedgerEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[core.Principal]int)}
}

func (s *MemoryStore) SaveBid(bid core.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[bid.Bidder]; ok {
		s.bids[i] = bid
		return nil
	}
	s.index[bid.Bidder] = len(s.bids)
	s.bids = append(s.bids, bid)
	return nil
}

func (s *MemoryStore) LoadBids() ([]core.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Bid, len(s.bids))
	copy(out, s.bids)
	return out, nil
}

func (s *MemoryStore) AppendEvent(event tenderapi.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) RecentEvents(limit int) ([]tenderapi.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]tenderapi.LedgerEvent, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
