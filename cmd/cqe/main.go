// Package main is the entry point for the cascade quota engine.
// It wires the credential chain, refresh engine, and snapshot history
// together and prints one status line per refresh.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/j-veylop/cascade-quota-engine/internal/config"
	"github.com/j-veylop/cascade-quota-engine/internal/credentials"
	"github.com/j-veylop/cascade-quota-engine/internal/discovery"
	"github.com/j-veylop/cascade-quota-engine/internal/engine"
	"github.com/j-veylop/cascade-quota-engine/internal/history"
	"github.com/j-veylop/cascade-quota-engine/internal/logger"
	"github.com/j-veylop/cascade-quota-engine/internal/version"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Handle help flag
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsage()
		os.Exit(0)
	}

	once := len(os.Args) > 1 && os.Args[1] == "--once"

	if err := run(once); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run contains the main application logic, separated for cleaner error handling.
func run(once bool) error {
	// 1. Load configuration from .env files and environment variables
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Open the credential store (with file watching)
	store, err := credentials.NewStore(cfg.AuthStorePath)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("error closing credential store", "error", closeErr)
		}
	}()

	// 3. Build the credential chain: local process first, then the stored
	// credential, then environment overrides
	chain := credentials.NewChain(
		credentials.NewLocalSource(discovery.NewFinder()),
		credentials.NewStoredAuthSource(store, cfg.Provider, cfg.APIBaseURL),
		credentials.NewEnvSource(cfg.APIBaseURL, cfg.APIToken),
	)

	// 4. Open the snapshot history store; history is auxiliary, so failure
	// degrades to no persistence rather than aborting
	var recorder engine.Recorder
	if hist, err := history.New(cfg.HistoryDBPath); err != nil {
		logger.Warn("snapshot history disabled", "error", err)
	} else {
		recorder = hist
		defer func() {
			if closeErr := hist.Close(); closeErr != nil {
				logger.Warn("error closing history store", "error", closeErr)
			}
		}()
	}

	// 5. Create the engine
	engineConfig := engine.DefaultConfig()
	engineConfig.PollInterval = cfg.PollInterval
	eng := engine.New(chain, recorder, engineConfig)

	if once {
		if _, err := eng.Refresh(context.Background()); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Println(eng.Report())
		return nil
	}

	eng.Start()
	defer eng.Stop()

	// 6. Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 7. Print a status line per engine event; credential store changes
	// trigger an immediate refresh
	for {
		select {
		case event := <-eng.Events():
			printEvent(eng, event)
		case <-store.Changes():
			logger.Info("credential store changed, refreshing")
			eng.TurnCompleted()
		case <-sigChan:
			return nil
		}
	}
}

func printEvent(eng *engine.Engine, event engine.Event) {
	switch event.Type {
	case engine.EventUpdated:
		if status, ok := eng.Status(); ok {
			fmt.Printf("[%s] %s (%s)\n", status.Slot, status.Text, status.Severity)
			return
		}
		fmt.Println(eng.Report())
	case engine.EventNotConfigured:
		fmt.Println("quota: not logged in / not running")
	case engine.EventError:
		fmt.Printf("quota: refresh failed: %v\n", event.Error)
	}
}

func printUsage() {
	fmt.Println(`cascade-quota-engine - usage snapshot engine for the Cascade language server

Usage:
  cqe              run the engine, printing a status line per refresh
  cqe --once       perform a single refresh, print the full report, exit
  cqe -v           print version information
  cqe -h           print this help

Environment:
  CASCADE_PROVIDER      credential store key (default "windsurf")
  CASCADE_API_URL       remote endpoint override
  CASCADE_API_TOKEN     remote credential override
  AUTH_STORE_PATH       credential store document path
  HISTORY_DB_PATH       snapshot history SQLite path
  QUOTA_POLL_INTERVAL   refresh period (default 2m)
  CQE_LOG_LEVEL         debug, info, warn, or error`)
}
