// Package main implements the tender gateway.
//
// The gateway is the host-side HTTP front for a tender daemon: it translates
// a REST API into the daemon's one-shot JSON protocol over vsock (or TCP in
// development). Browsers and bidder tooling talk to the gateway; the sealed
// ledger itself never leaves the daemon.
//
// # Principals
//
// The caller identity is taken from the X-Tender-Principal header. This is
// demo-grade authentication: a deployment fronting real bidders must replace
// it with an authenticating proxy (mTLS, OIDC) that sets the header from a
// verified identity.
//
// # API Endpoints
//
//	POST /api/bids                  Submit a sealed price (base64 ciphertext + proof)
//	GET  /api/bids/{bidder}         Sealed bid record for a bidder
//	GET  /api/bids/{bidder}/exists  Whether a bidder has a live bid
//	POST /api/minimum/evaluate      Run minimum selection over the current ledger
//	GET  /api/minimum               Current minimum handle, if fresh
//	GET  /api/participants          Roster in first-submission order
//	GET  /api/events                Recent ledger events
//	GET  /api/info                  Daemon identity plus attestation
//
// # Health and Diagnostics
//
//	GET  /health   Gateway status and daemon connectivity
//	GET  /livez    Liveness check
//	GET  /readyz   Readiness check (requires daemon connectivity)
//	GET  /drain    Mark not ready ahead of shutdown
//	GET  /undrain  Mark ready again
//
// # Usage
//
//	go run ./gateway --config=gateway.yaml
//	go run ./gateway --addr=:8080 --tender-tcp=127.0.0.1:6000
package main
