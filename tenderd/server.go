package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/opentender/coproc"
	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/store"
	"github.com/cloudx-io/opentender/tenderapi"
)

// TenderServer hosts one sealed-bid ledger. Connections are read
// concurrently, but the mutex runs ledger operations one at a time; that
// serialization is what makes each operation atomic with respect to all
// others.
type TenderServer struct {
	cfg *serverConfig

	mu        sync.Mutex
	ledger    *core.Ledger
	evaluator *core.Evaluator
	journal   store.Store

	ledgerID   string
	coprocAddr string
	createdAt  time.Time

	// attesterFactory is resolved per request, like the NSM handle itself.
	// Tests swap in a mock.
	attesterFactory func() (EnclaveAttester, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

func NewTenderServer(cfg *serverConfig, cipher core.CipherService, journal store.Store) (*TenderServer, error) {
	s := &TenderServer{
		cfg:             cfg,
		journal:         journal,
		ledgerID:        cfg.LedgerID,
		coprocAddr:      cfg.coprocessorAddr(),
		createdAt:       time.Now().UTC(),
		attesterFactory: getEnclaveAttester,
	}

	ledger, err := core.NewLedger(core.LedgerConfig{
		Cipher:       cipher,
		Organizer:    cfg.Organizer,
		PublicResult: cfg.PublicResult,
		Events:       &journalSink{journal: journal},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}
	s.ledger = ledger
	s.evaluator = core.NewEvaluator(ledger)

	if err := s.replayJournal(); err != nil {
		return nil, err
	}

	log.Printf("INFO: Ledger %s ready (organizer=%s public_result=%t)", s.ledgerID, cfg.Organizer, cfg.PublicResult)
	return s, nil
}

// replayJournal rebuilds the ledger from persisted bids. Bid handles stay
// valid across daemon restarts because the coprocessor holds them; the
// running minimum is deliberately not persisted and gets recomputed on the
// next evaluation request.
func (s *TenderServer) replayJournal() error {
	bids, err := s.journal.LoadBids()
	if err != nil {
		return fmt.Errorf("failed to load bid journal: %w", err)
	}
	for _, bid := range bids {
		if err := s.ledger.RestoreBid(bid); err != nil {
			return fmt.Errorf("failed to restore bid for %s: %w", bid.Bidder, err)
		}
	}
	if len(bids) > 0 {
		log.Printf("INFO: Restored %d bids from journal", len(bids))
	}
	return nil
}

func (s *TenderServer) Start() error {
	var (
		listener net.Listener
		err      error
	)
	if s.cfg.TCPListen != "" {
		listener, err = net.Listen("tcp", s.cfg.TCPListen)
	} else {
		listener, err = vsock.Listen(s.cfg.Port, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: Tender daemon listening on %s", listener.Addr())

	semaphore := make(chan struct{}, s.cfg.MaxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.cfg.MaxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: Failed to accept connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *TenderServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func (s *TenderServer) dispatch(payload []byte) any {
	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return tenderapi.ErrorResponse{
			Type:      "error",
			Message:   fmt.Sprintf("undecodable request: %v", err),
			ErrorCode: tenderapi.CodeInternal,
		}
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)

	if baseReq.Type == tenderapi.TypePing {
		return tenderapi.PingResponse{Type: "pong", Message: "tender daemon is healthy", Timestamp: time.Now().Unix()}
	}

	// One ledger operation at a time, reads included.
	s.mu.Lock()
	defer s.mu.Unlock()

	switch baseReq.Type {
	case tenderapi.TypeSubmitBid:
		var req tenderapi.SubmitBidRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.handleSubmitBid(req)

	case tenderapi.TypeGetBid:
		var req tenderapi.GetBidRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.handleGetBid(req)

	case tenderapi.TypeHasBid:
		var req tenderapi.HasBidRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.handleHasBid(req)

	case tenderapi.TypeEvaluateMinimum:
		var req tenderapi.EvaluateMinimumRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.handleEvaluateMinimum(s.resolveAttester(), req)

	case tenderapi.TypeGetMinimum:
		return s.handleGetMinimum()

	case tenderapi.TypeListParticipants:
		return s.handleListParticipants()

	case tenderapi.TypeListEvents:
		var req tenderapi.ListEventsRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.handleListEvents(req)

	case tenderapi.TypeInfo:
		var req tenderapi.InfoRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return decodeError(baseReq.Type, err)
		}
		return s.handleInfo(s.resolveAttester(), req)

	default:
		return tenderapi.ErrorResponse{
			Type:      "error",
			Message:   fmt.Sprintf("Unknown request type: %s", baseReq.Type),
			ErrorCode: tenderapi.CodeInternal,
		}
	}
}

// resolveAttester returns nil when the NSM is unavailable; handlers degrade
// to unattested responses rather than failing the operation.
func (s *TenderServer) resolveAttester() EnclaveAttester {
	attester, err := s.attesterFactory()
	if err != nil {
		log.Printf("ERROR: Failed to initialize TEE attester: %v", err)
		return nil
	}
	return attester
}

func decodeError(reqType string, err error) tenderapi.ErrorResponse {
	log.Printf("ERROR: Failed to decode %s request: %v", reqType, err)
	return tenderapi.ErrorResponse{
		Type:      "error",
		Message:   fmt.Sprintf("decode %s request: %v", reqType, err),
		ErrorCode: tenderapi.CodeInternal,
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	var journal store.Store
	if cfg.Postgres != nil {
		journal, err = store.NewPostgresStore(cfg.Postgres)
		if err != nil {
			log.Fatalf("ERROR: Failed to open postgres journal: %v", err)
		}
		log.Printf("INFO: Using postgres journal at %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)
	} else {
		journal = store.NewMemoryStore()
		log.Printf("WARNING: No postgres configured, journal is in-memory only")
	}

	var dial tenderapi.DialFunc
	if cfg.CoprocTCP != "" {
		dial = tenderapi.DialTCP(cfg.CoprocTCP)
	} else {
		dial = tenderapi.DialVsock(cfg.CoprocCID, cfg.CoprocPort)
	}
	cipher := &coproc.Client{Dial: dial}

	if err := cipher.Ping(); err != nil {
		log.Printf("WARNING: Coprocessor not reachable at startup: %v", err)
	}

	server, err := NewTenderServer(cfg, cipher, journal)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	log.Fatal(server.Start())
}
