package tenderapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// DialFunc opens a connection to the tender daemon. Each request uses a fresh
// connection: the daemon reads until EOF and replies once.
type DialFunc func() (net.Conn, error)

// DialVsock returns a DialFunc for a daemon listening on an enclave vsock.
func DialVsock(cid, port uint32) DialFunc {
	return func() (net.Conn, error) {
		return vsock.Dial(cid, port, nil)
	}
}

// DialTCP returns a DialFunc for a daemon listening on TCP, used in
// development deployments without enclave hardware.
func DialTCP(addr string) DialFunc {
	return func() (net.Conn, error) {
		return net.Dial("tcp", addr)
	}
}

// Client speaks the one-shot JSON protocol with a tender daemon.
type Client struct {
	// Dial opens the per-request connection. Required.
	Dial DialFunc

	// Timeout bounds each request end to end. Zero means 30 seconds.
	Timeout time.Duration
}

type closeWriter interface {
	CloseWrite() error
}

// Do sends req and decodes the daemon's reply into resp. The write side is
// half-closed after sending so the daemon sees EOF; both vsock and TCP
// connections support this.
func (c *Client) Do(req, resp any) error {
	conn, err := c.Dial()
	if err != nil {
		return fmt.Errorf("dial tender daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if cw, ok := conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			return fmt.Errorf("half-close connection: %w", err)
		}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SubmitBid records bidder's sealed price quote. The ciphertext and proof are
// transported base64-encoded.
func (c *Client) SubmitBid(bidder string, ciphertext, proof []byte) (*SubmitBidResponse, error) {
	req := SubmitBidRequest{
		Type:       TypeSubmitBid,
		Bidder:     bidder,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Proof:      base64.StdEncoding.EncodeToString(proof),
	}
	var resp SubmitBidResponse
	if err := c.Do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetBid(bidder string) (*GetBidResponse, error) {
	var resp GetBidResponse
	if err := c.Do(GetBidRequest{Type: TypeGetBid, Bidder: bidder}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) HasBid(bidder string) (*HasBidResponse, error) {
	var resp HasBidResponse
	if err := c.Do(HasBidRequest{Type: TypeHasBid, Bidder: bidder}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) EvaluateMinimum(nonce string) (*EvaluateMinimumResponse, error) {
	var resp EvaluateMinimumResponse
	if err := c.Do(EvaluateMinimumRequest{Type: TypeEvaluateMinimum, Nonce: nonce}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetMinimum() (*GetMinimumResponse, error) {
	var resp GetMinimumResponse
	if err := c.Do(GetMinimumRequest{Type: TypeGetMinimum}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListParticipants() (*ListParticipantsResponse, error) {
	var resp ListParticipantsResponse
	if err := c.Do(ListParticipantsRequest{Type: TypeListParticipants}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListEvents(limit int) (*ListEventsResponse, error) {
	var resp ListEventsResponse
	if err := c.Do(ListEventsRequest{Type: TypeListEvents, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Info(nonce string) (*InfoResponse, error) {
	var resp InfoResponse
	if err := c.Do(InfoRequest{Type: TypeInfo, Nonce: nonce}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.Do(struct {
		Type string `json:"type"`
	}{Type: TypePing}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
