package coproc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/cloudx-io/opentender/core"
)

// Server exposes a backing cipher service on a listener, one JSON request per
// connection. The listener is the caller's choice: vsock inside an enclave
// deployment, TCP loopback in development.
type Server struct {
	Backend Service

	// MaxWorkers caps concurrent connections; beyond it new connections are
	// rejected immediately rather than queued. Zero means 4.
	MaxWorkers int
}

func (s *Server) Serve(listener net.Listener) error {
	if s.Backend == nil {
		return fmt.Errorf("coprocessor server requires a backend")
	}

	maxWorkers := s.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	semaphore := make(chan struct{}, maxWorkers)

	log.Printf("INFO: Coprocessor listening on %s with %d max concurrent workers", listener.Addr(), maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: Failed to accept coprocessor connection: %v", err)
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting coprocessor connection")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in coprocessor handler: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read coprocessor request: %v", err)
		return
	}

	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(buf.Bytes(), &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode coprocessor request: %v", err)
		s.respond(conn, opResponse{
			Type:      "error",
			Message:   fmt.Sprintf("undecodable request: %v", err),
			ErrorCode: codeInternal,
		})
		return
	}

	s.respond(conn, s.dispatch(baseReq.Type, buf.Bytes()))
}

func (s *Server) respond(conn net.Conn, resp opResponse) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Printf("ERROR: Failed to encode coprocessor response: %v", err)
	}
}

func (s *Server) dispatch(reqType string, payload []byte) opResponse {
	switch reqType {
	case opPing:
		return opResponse{Type: "pong", Success: true, Message: "coprocessor is healthy"}

	case opVerifyImport:
		var req verifyImportRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return failure(reqType, fmt.Errorf("decode request: %w", err))
		}
		ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
		if err != nil {
			return failure(reqType, fmt.Errorf("decode ciphertext: %w", err))
		}
		proof, err := base64.StdEncoding.DecodeString(req.Proof)
		if err != nil {
			return failure(reqType, fmt.Errorf("decode proof: %w", err))
		}
		handle, err := s.Backend.VerifyAndImport(ciphertext, proof)
		if err != nil {
			return failure(reqType, err)
		}
		return success(reqType, string(handle))

	case opCompareLT:
		var req compareRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return failure(reqType, fmt.Errorf("decode request: %w", err))
		}
		handle, err := s.Backend.CompareLessThan(core.Handle(req.A), core.Handle(req.B))
		if err != nil {
			return failure(reqType, err)
		}
		return success(reqType, string(handle))

	case opSelect:
		var req selectRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return failure(reqType, fmt.Errorf("decode request: %w", err))
		}
		handle, err := s.Backend.SelectCiphertext(core.Handle(req.Cond), core.Handle(req.IfTrue), core.Handle(req.IfFalse))
		if err != nil {
			return failure(reqType, err)
		}
		return success(reqType, string(handle))

	case opGrant:
		var req grantRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return failure(reqType, fmt.Errorf("decode request: %w", err))
		}
		if err := s.Backend.GrantDecryption(core.Handle(req.Handle), core.Principal(req.Principal)); err != nil {
			return failure(reqType, err)
		}
		return success(reqType, "")

	case opDecrypt:
		var req decryptRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return failure(reqType, fmt.Errorf("decode request: %w", err))
		}
		value, err := s.Backend.Decrypt(core.Handle(req.Handle), core.Principal(req.Principal))
		if err != nil {
			return failure(reqType, err)
		}
		resp := success(reqType, "")
		resp.Value = value.String()
		return resp

	default:
		return opResponse{
			Type:      "error",
			Message:   fmt.Sprintf("unknown request type: %s", reqType),
			ErrorCode: codeInternal,
		}
	}
}

func success(reqType, handle string) opResponse {
	return opResponse{Type: reqType + "_response", Success: true, Handle: handle}
}

func failure(reqType string, err error) opResponse {
	return opResponse{
		Type:      reqType + "_response",
		Message:   err.Error(),
		ErrorCode: codeForError(err),
	}
}
