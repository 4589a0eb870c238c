package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/opentender/ciphersim"
	"github.com/cloudx-io/opentender/store"
)

func encodeB64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", hexStr))
	}
	return bytes
}

// createMockAttester builds an attester producing structurally valid COSE
// attestation documents with fixed measurements. Signatures are garbage; only
// the off-host validator cares.
func createMockAttester(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-67890",
				"digest":    "SHA384",
				"timestamp": uint64(1740830400000),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "8e2f316312c27e9b8b045cbacbccb63dfae35ed7df0aa72d86e9a77e7a606c15a254b05f86a1a4f13f8df910c851bd5a"),
					1: mustDecodeHex(t, "52d95353fb2fbd04dbc43b9d0eb760085253c83f7e2b24a2e70e9b9e37756fbcf301bf476a592b1fdf42d8f3a67aa172"),
					2: mustDecodeHex(t, "21b9efbc184807662e966d34f390821309eba4a1579e8d15b901eb81c00057e5e3e759a4a2285b441496cdbbca76ca22"),
					3: mustDecodeHex(t, "9c7bcd38c32c5b1f52d3d1054ee86e280fb4b0f7b32fe62dcfca3fe38bfbdb31d58060e1e468ba41ee811c35af52a53b"),
					4: mustDecodeHex(t, "03dabe3758bf9cff566bad42a8a72c7eaf4c5e05e2350a235ba9756d85b5a32ff6c4dc1e9547997e46721cf9a96db4b7"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, _ := cbor.Marshal(nestedDoc)

			// COSE_Sign1 4-element array: [protected, unprotected, payload, signature]
			result := []any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			}

			return cbor.Marshal(result)
		},
	}
}

// newTestServer wires a server to an in-process simulator and memory journal,
// with the mock attester in place of the NSM.
func newTestServer(t *testing.T) (*TenderServer, *ciphersim.Simulator) {
	t.Helper()
	return newTestServerWithJournal(t, ciphersim.New(), store.NewMemoryStore())
}

func newTestServerWithJournal(t *testing.T, sim *ciphersim.Simulator, journal store.Store) (*TenderServer, *ciphersim.Simulator) {
	t.Helper()

	cfg := &serverConfig{
		Port:         6000,
		Organizer:    "organizer",
		PublicResult: false,
		LedgerID:     "ledger-test",
		MaxWorkers:   2,
		CoprocTCP:    "127.0.0.1:7000",
	}

	server, err := NewTenderServer(cfg, sim, journal)
	if err != nil {
		t.Fatalf("NewTenderServer failed: %v", err)
	}
	mock := createMockAttester(t)
	server.attesterFactory = func() (EnclaveAttester, error) { return mock, nil }
	return server, sim
}

// dispatchJSON marshals req and runs it through the server's dispatcher.
func dispatchJSON(t *testing.T, server *TenderServer, req any) any {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return server.dispatch(payload)
}
