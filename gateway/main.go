package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cloudx-io/opentender/tenderapi"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		tenderTCP  = flag.String("tender-tcp", "", "Tender daemon TCP address (development)")
		tenderCID  = flag.Uint("tender-cid", 0, "Tender daemon vsock CID")
		tenderPort = flag.Uint("tender-port", 0, "Tender daemon vsock port")
	)
	flag.Parse()

	// isFlagSet checks if a flag was explicitly provided on command line
	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	applyFlagOverrides(cfg, *addr, *tenderTCP, uint32(*tenderCID), uint32(*tenderPort),
		isFlagSet("addr"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	tender := &tenderapi.Client{
		Dial:    dialFuncFor(cfg.Tender),
		Timeout: time.Duration(cfg.Tender.Timeout),
	}

	gateway := NewGateway(cfg, tender)
	go gateway.Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", principalHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	gateway.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		fmt.Printf("Tender gateway listening on %s\n", cfg.HTTPAddr)
		fmt.Printf("Tender daemon at %s\n", tenderEndpoint(cfg.Tender))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	fmt.Println("Gateway shutdown complete")
}

func loadConfiguration(configPath string) (*Config, error) {
	if configPath != "" {
		return LoadConfig(configPath)
	}
	return DefaultConfig(), nil
}

func applyFlagOverrides(cfg *Config, addr, tenderTCP string, tenderCID, tenderPort uint32,
	addrExplicit bool) {

	if addrExplicit || cfg.HTTPAddr == "" {
		cfg.HTTPAddr = addr
	}
	if tenderTCP != "" {
		cfg.Tender.TCPAddr = tenderTCP
	}
	if tenderCID != 0 {
		cfg.Tender.CID = tenderCID
	}
	if tenderPort != 0 {
		cfg.Tender.Port = tenderPort
	}
}

func dialFuncFor(cfg TenderConfig) tenderapi.DialFunc {
	if cfg.TCPAddr != "" {
		return tenderapi.DialTCP(cfg.TCPAddr)
	}
	return tenderapi.DialVsock(cfg.CID, cfg.Port)
}

func tenderEndpoint(cfg TenderConfig) string {
	if cfg.TCPAddr != "" {
		return "tcp://" + cfg.TCPAddr
	}
	return fmt.Sprintf("vsock://%d:%d", cfg.CID, cfg.Port)
}
