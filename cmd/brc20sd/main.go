// Ordinals / BRC-20 / BRC-20-S indexing daemon.
//
// Usage:
//
//	brc20sd [options]   Run the indexer
//	brc20sd --help      Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brc20labs/ordindexer/config"
	"github.com/brc20labs/ordindexer/internal/api"
	"github.com/brc20labs/ordindexer/internal/btcrpc"
	"github.com/brc20labs/ordindexer/internal/indexer"
	klog "github.com/brc20labs/ordindexer/internal/log"
	"github.com/brc20labs/ordindexer/internal/storage"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ──────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = cfg.LogsDir() + "/brc20sd.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("main")

	logger.Info().
		Str("network", string(cfg.Network)).
		Uint64("first_inscription_height", cfg.FirstInscriptionHeight()).
		Bool("sat_index", cfg.Index.SatIndex).
		Msg("Starting brc20sd")

	// ── 3. Open storage ──────────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.IndexDir())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.IndexDir()).Msg("Failed to open database")
	}
	defer db.Close()

	logger.Info().Str("path", cfg.IndexDir()).Msg("Database opened")

	// ── 4. Bitcoin node RPC client ───────────────────────────────────────
	rpc := btcrpc.New(btcrpc.Config{
		URL:        cfg.RPC.URL,
		User:       cfg.RPC.User,
		Password:   cfg.RPC.Password,
		CookieFile: cfg.RPC.CookieFile,
		Timeout:    30 * time.Second,
	})

	// ── 5. Build the indexer ─────────────────────────────────────────────
	ix, err := indexer.New(cfg, db, db, rpc)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize indexer")
	}

	// ── 6. Run the indexing loop in the background ───────────────────────
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- ix.Run(stop)
	}()

	// ── 7. Read API ───────────────────────────────────────────────────────
	var srv *api.Server
	if cfg.API.Enabled {
		srv = api.NewServer(db, cfg.API.Addr, cfg.API.Port, cfg.Index.SatIndex)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				klog.API.Error().Err(err).Msg("API server stopped")
			}
		}()
		klog.API.Info().Str("addr", srv.Addr()).Msg("Read API listening")
	}

	// ── 8. Wait for shutdown ─────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		close(stop)
		if err := <-done; err != nil {
			logger.Error().Err(err).Msg("Indexer stopped with error")
		}
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("Indexer exited")
		} else {
			logger.Info().Msg("Indexer reached the configured height limit")
		}
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}

	logger.Info().Msg("Goodbye!")
}
