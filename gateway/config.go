package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds gateway settings. Values come from the YAML file, with
// command-line flags applied on top.
//
// Example file:
//
//	http_addr: ":8080"
//	tender:
//	  cid: 16
//	  port: 6000
//	  timeout: 30s
//	cors:
//	  allowed_origins: ["*"]
type Config struct {
	// HTTPAddr is the address the REST API listens on.
	HTTPAddr string `yaml:"http_addr"`

	// Tender selects the tender daemon endpoint.
	Tender TenderConfig `yaml:"tender"`

	// CORS configures cross-origin access for browser clients.
	CORS CORSConfig `yaml:"cors"`
}

// TenderConfig selects the tender daemon endpoint. TCPAddr takes precedence
// over CID/Port when set; it exists for development deployments without vsock.
type TenderConfig struct {
	TCPAddr string   `yaml:"tcp_addr"`
	CID     uint32   `yaml:"cid"`
	Port    uint32   `yaml:"port"`
	Timeout Duration `yaml:"timeout"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Duration parses YAML strings like "30s" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",
		Tender: TenderConfig{
			CID:     16,
			Port:    6000,
			Timeout: Duration(30 * time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
