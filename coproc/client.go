package coproc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

// Client forwards cipher operations to a coprocessor daemon. It satisfies
// core.CipherService, so a ledger wired to it cannot tell the difference from
// an in-process implementation.
type Client struct {
	// Dial opens the per-operation connection. Required.
	Dial tenderapi.DialFunc

	// Timeout bounds each operation end to end. Zero means 30 seconds.
	Timeout time.Duration
}

type closeWriter interface {
	CloseWrite() error
}

func (c *Client) do(req any) (*opResponse, error) {
	conn, err := c.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial coprocessor: %w", err)
	}
	defer func() { _ = conn.Close() }()

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode coprocessor request: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("send coprocessor request: %w", err)
	}
	if cw, ok := conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			return nil, fmt.Errorf("half-close coprocessor connection: %w", err)
		}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read coprocessor response: %w", err)
	}
	var resp opResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode coprocessor response: %w", err)
	}
	if !resp.Success {
		return nil, errorForCode(resp.ErrorCode, resp.Message)
	}
	return &resp, nil
}

func (c *Client) VerifyAndImport(ciphertext, proof []byte) (core.Handle, error) {
	resp, err := c.do(verifyImportRequest{
		Type:       opVerifyImport,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Proof:      base64.StdEncoding.EncodeToString(proof),
	})
	if err != nil {
		return "", err
	}
	return core.Handle(resp.Handle), nil
}

func (c *Client) CompareLessThan(a, b core.Handle) (core.Handle, error) {
	resp, err := c.do(compareRequest{Type: opCompareLT, A: string(a), B: string(b)})
	if err != nil {
		return "", err
	}
	return core.Handle(resp.Handle), nil
}

func (c *Client) SelectCiphertext(cond, ifTrue, ifFalse core.Handle) (core.Handle, error) {
	resp, err := c.do(selectRequest{
		Type:    opSelect,
		Cond:    string(cond),
		IfTrue:  string(ifTrue),
		IfFalse: string(ifFalse),
	})
	if err != nil {
		return "", err
	}
	return core.Handle(resp.Handle), nil
}

func (c *Client) GrantDecryption(h core.Handle, principal core.Principal) error {
	_, err := c.do(grantRequest{Type: opGrant, Handle: string(h), Principal: string(principal)})
	return err
}

// Decrypt resolves a handle for a granted principal. Used by operator tooling
// and tests; the tender daemon itself never decrypts.
func (c *Client) Decrypt(h core.Handle, principal core.Principal) (decimal.Decimal, error) {
	resp, err := c.do(decryptRequest{Type: opDecrypt, Handle: string(h), Principal: string(principal)})
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(resp.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decrypted value: %w", err)
	}
	return value, nil
}

// Ping checks the coprocessor is reachable.
func (c *Client) Ping() error {
	_, err := c.do(struct {
		Type string `json:"type"`
	}{Type: opPing})
	return err
}
