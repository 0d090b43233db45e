// Command replay applies a JSON-lines file of stage payloads straight to a
// store, no Kafka required. Useful for rebuilding a session from archived
// stage output or for inspecting what a payload sequence produces:
//
//	replay -file stages.jsonl -backend document -path ./data
//
// Each line is one stage payload with the usual {"session": ..., "stage": ...}
// envelope. Lines that fail to apply are reported and skipped, matching the
// pipeline's behavior for poison messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/tank-siting/internal/config"
	"github.com/couchcryptid/tank-siting/internal/domain"
	"github.com/couchcryptid/tank-siting/internal/geo"
	"github.com/couchcryptid/tank-siting/internal/observability"
	"github.com/couchcryptid/tank-siting/internal/session"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "JSON-lines stage payload file (required)")
	backend := flag.String("backend", "", "store backend override (document or sqlite)")
	path := flag.String("path", "", "store path override")
	printSnapshots := flag.Bool("print", false, "print each touched session's final snapshot")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -file stages.jsonl [-backend document|sqlite] [-path dir-or-db] [-print]")
		os.Exit(2)
	}

	if err := run(*file, *backend, *path, *printSnapshots); err != nil {
		fmt.Fprintln(os.Stderr, "replay failed:", err)
		os.Exit(1)
	}
}

func run(file, backend, path string, printSnapshots bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if backend != "" {
		cfg.StoreBackend = backend
	}
	if path != "" {
		cfg.StorePath = path
	}

	logger := observability.NewLogger(cfg.LogLevel, "text")
	metrics := observability.NewMetrics()

	projector, err := geo.NewUTMProjector(cfg.UTMZone, cfg.UTMNorthern)
	if err != nil {
		return err
	}
	calc := geo.NewBoundaryCalculator(projector)

	manager := session.NewManager(session.StoreParams{
		Backend: cfg.StoreBackend,
		Path:    cfg.StorePath,
	}, calc, logger, metrics)
	defer manager.Close()

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := context.Background()
	touched := make(map[string]bool)
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	lineNo := 0
	applied, skipped := 0, 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		sessionName, err := manager.Apply(ctx, domain.StageEvent{Value: append([]byte(nil), line...)})
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			skipped++
			continue
		}
		applied++
		if !touched[sessionName] {
			touched[sessionName] = true
			order = append(order, sessionName)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	fmt.Printf("applied %d payloads (%d skipped) across %d sessions\n", applied, skipped, len(order))

	if printSnapshots {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, name := range order {
			snap, err := manager.Snapshot(name)
			if err != nil {
				return err
			}
			if err := enc.Encode(snap); err != nil {
				return err
			}
		}
	}
	return nil
}
