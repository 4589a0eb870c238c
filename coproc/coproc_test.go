package coproc

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/opentender/ciphersim"
	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

// startTestCoprocessor serves a fresh simulator on loopback TCP and returns a
// connected client.
func startTestCoprocessor(t *testing.T) (*Client, *ciphersim.Simulator) {
	t.Helper()

	sim := ciphersim.New()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	server := &Server{Backend: sim, MaxWorkers: 4}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("coprocessor server did not stop")
		}
	})

	return &Client{Dial: tenderapi.DialTCP(listener.Addr().String())}, sim
}

func sealDecimal(t *testing.T, price string) (ciphertext, proof []byte) {
	t.Helper()
	ciphertext, proof, err := ciphersim.Seal(decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("Seal(%s): %v", price, err)
	}
	return ciphertext, proof
}

func TestClientPing(t *testing.T) {
	client, _ := startTestCoprocessor(t)
	check.Nil(t, client.Ping())
}

func TestVerifyImportGrantDecryptOverWire(t *testing.T) {
	client, _ := startTestCoprocessor(t)

	ciphertext, proof := sealDecimal(t, "1234.50")
	handle, err := client.VerifyAndImport(ciphertext, proof)
	check.Nil(t, err)
	check.False(t, handle == "")

	check.Nil(t, client.GrantDecryption(handle, "organizer"))

	value, err := client.Decrypt(handle, "organizer")
	check.Nil(t, err)
	check.Equal(t, "1234.5", value.String())
}

func TestInvalidProofRehydratedAcrossWire(t *testing.T) {
	client, _ := startTestCoprocessor(t)

	ciphertext, proof := sealDecimal(t, "1000")
	proof[0] ^= 0xff

	_, err := client.VerifyAndImport(ciphertext, proof)
	check.True(t, errors.Is(err, core.ErrInvalidCiphertextProof))
}

func TestDecryptDeniedRehydratedAcrossWire(t *testing.T) {
	client, _ := startTestCoprocessor(t)

	ciphertext, proof := sealDecimal(t, "1000")
	handle, err := client.VerifyAndImport(ciphertext, proof)
	check.Nil(t, err)

	_, err = client.Decrypt(handle, "mallory")
	check.True(t, errors.Is(err, core.ErrDecryptionDenied))
}

func TestUnknownHandleRehydratedAcrossWire(t *testing.T) {
	client, _ := startTestCoprocessor(t)

	_, err := client.CompareLessThan("no-such-handle", "also-missing")
	check.True(t, errors.Is(err, core.ErrUnknownHandle))
}

func TestDialFailureSurfacesAsError(t *testing.T) {
	client := &Client{Dial: tenderapi.DialTCP("127.0.0.1:1"), Timeout: time.Second}
	_, err := client.VerifyAndImport([]byte("x"), []byte("y"))
	check.NotNil(t, err)
}

// The ledger and evaluator run unchanged against the remote service: the
// client is a drop-in core.CipherService.
func TestLedgerEvaluationOverWire(t *testing.T) {
	client, sim := startTestCoprocessor(t)

	ledger, err := core.NewLedger(core.LedgerConfig{Cipher: client, Organizer: "organizer"})
	check.Nil(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, sub := range []struct {
		bidder core.Principal
		price  string
	}{
		{"alice", "1000"},
		{"bob", "800"},
		{"carol", "1200"},
	} {
		ciphertext, proof := sealDecimal(t, sub.price)
		check.Nil(t, ledger.Submit(sub.bidder, ciphertext, proof, now))
		now = now.Add(time.Second)
	}

	eval := core.NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(now))

	min, ok := eval.Minimum()
	check.True(t, ok)

	// Decrypt through the client and directly against the backend: both see
	// the organizer grant.
	value, err := client.Decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())

	value, err = sim.Decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())

	_, err = client.Decrypt(min, "alice")
	check.True(t, errors.Is(err, core.ErrDecryptionDenied))
}
