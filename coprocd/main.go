// Command coprocd runs the ciphertext coprocessor daemon: the simulated
// cipher backend served over the coprocessor protocol, on vsock in enclave
// deployments or TCP in development. A production deployment replaces the
// backend with a real homomorphic service behind the same listener.
package main

import (
	"log"
	"net"
	"os"
	"strconv"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/opentender/ciphersim"
	"github.com/cloudx-io/opentender/coproc"
)

func main() {
	port := uint32(7000)
	if v := os.Getenv("COPROCD_PORT"); v != "" {
		p, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			log.Fatalf("ERROR: Invalid COPROCD_PORT %q: %v", v, err)
		}
		port = uint32(p)
	}

	maxWorkers := 4
	if v := os.Getenv("COPROCD_MAX_WORKERS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("ERROR: Invalid COPROCD_MAX_WORKERS %q: %v", v, err)
		}
		maxWorkers = parsed
	}

	var (
		listener net.Listener
		err      error
	)
	if addr := os.Getenv("COPROCD_TCP_LISTEN"); addr != "" {
		listener, err = net.Listen("tcp", addr)
	} else {
		listener, err = vsock.Listen(port, nil)
	}
	if err != nil {
		log.Fatalf("ERROR: Failed to create listener: %v", err)
	}

	log.Printf("WARNING: Simulated cipher backend keeps plaintext in process memory; development only")

	server := &coproc.Server{Backend: ciphersim.New(), MaxWorkers: maxWorkers}
	log.Fatal(server.Serve(listener))
}
