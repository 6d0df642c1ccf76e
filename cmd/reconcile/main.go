// Command reconcile runs a one-shot consistency sweep over the store and
// prints what it repaired.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"beacon/internal/config"
	"beacon/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to backends: %v", err)
	}
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	report, err := srv.Reconciler().Run(context.Background())
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
}
