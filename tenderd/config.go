package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/store"
)

// serverConfig is assembled from TENDERD_* environment variables. The daemon
// runs inside an enclave, so the environment is baked into the image and
// covered by the PCR measurements.
type serverConfig struct {
	Port      uint32
	TCPListen string // development TCP listener; empty means vsock

	Organizer    core.Principal
	PublicResult bool
	LedgerID     string

	MaxWorkers int

	CoprocCID  uint32
	CoprocPort uint32
	CoprocTCP  string // development coprocessor address; empty means vsock

	Postgres *store.PostgresConfig
}

func loadConfig() (*serverConfig, error) {
	organizer := os.Getenv("TENDERD_ORGANIZER")
	if organizer == "" {
		return nil, fmt.Errorf("required environment variable TENDERD_ORGANIZER is not set")
	}

	maxWorkers, err := getRequiredEnvInt("TENDERD_MAX_WORKERS")
	if err != nil {
		return nil, fmt.Errorf("failed to get max workers config: %w", err)
	}

	cfg := &serverConfig{
		Port:         6000,
		TCPListen:    os.Getenv("TENDERD_TCP_LISTEN"),
		Organizer:    core.Principal(organizer),
		PublicResult: getEnvBool("TENDERD_PUBLIC_RESULT"),
		LedgerID:     os.Getenv("TENDERD_LEDGER_ID"),
		MaxWorkers:   maxWorkers,
		CoprocTCP:    os.Getenv("TENDERD_COPROC_TCP"),
	}

	if cfg.LedgerID == "" {
		cfg.LedgerID = uuid.New().String()
		log.Printf("INFO: TENDERD_LEDGER_ID not set, generated %s", cfg.LedgerID)
	}

	if port := os.Getenv("TENDERD_PORT"); port != "" {
		p, err := strconv.ParseUint(port, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid TENDERD_PORT %q: %w", port, err)
		}
		cfg.Port = uint32(p)
	}

	if cfg.CoprocTCP == "" {
		cid, err := getRequiredEnvInt("TENDERD_COPROC_CID")
		if err != nil {
			return nil, fmt.Errorf("failed to get coprocessor CID: %w", err)
		}
		port, err := getRequiredEnvInt("TENDERD_COPROC_PORT")
		if err != nil {
			return nil, fmt.Errorf("failed to get coprocessor port: %w", err)
		}
		cfg.CoprocCID = uint32(cid)
		cfg.CoprocPort = uint32(port)
	}

	if host := os.Getenv("TENDERD_POSTGRES_HOST"); host != "" {
		port := 5432
		if p := os.Getenv("TENDERD_POSTGRES_PORT"); p != "" {
			parsed, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid TENDERD_POSTGRES_PORT %q: %w", p, err)
			}
			port = parsed
		}
		cfg.Postgres = &store.PostgresConfig{
			Host:     host,
			Port:     port,
			User:     os.Getenv("TENDERD_POSTGRES_USER"),
			Password: os.Getenv("TENDERD_POSTGRES_PASSWORD"),
			Database: os.Getenv("TENDERD_POSTGRES_DB"),
			SSLMode:  os.Getenv("TENDERD_POSTGRES_SSLMODE"),
		}
	}

	return cfg, nil
}

// coprocessorAddr is the human-readable coprocessor location embedded in info
// attestations.
func (c *serverConfig) coprocessorAddr() string {
	if c.CoprocTCP != "" {
		return fmt.Sprintf("tcp://%s", c.CoprocTCP)
	}
	return fmt.Sprintf("vsock://%d:%d", c.CoprocCID, c.CoprocPort)
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

func getEnvBool(key string) bool {
	value := os.Getenv(key)
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("WARNING: Invalid value for %s: %s (treating as false)", key, value)
		return false
	}
	return parsed
}
