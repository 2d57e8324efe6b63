// Package api is the read-only JSON surface the indexer serves over the
// tables it has built (SPEC_FULL.md §6). It never writes to storage.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/brc20labs/ordindexer/internal/brc20"
	"github.com/brc20labs/ordindexer/internal/brc20s"
	"github.com/brc20labs/ordindexer/internal/chainstate"
	klog "github.com/brc20labs/ordindexer/internal/log"
	"github.com/brc20labs/ordindexer/internal/inscription"
	"github.com/brc20labs/ordindexer/internal/receipt"
	"github.com/brc20labs/ordindexer/internal/satoshi"
	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/rs/zerolog"
)

// Server is a plain net/http JSON server backed by the same storage.DB the
// indexer writes to. Every handler only reads.
type Server struct {
	addr     string
	port     int
	chain    *chainstate.Store
	inscr    *inscription.Store
	brcStore *brc20.Store
	sStore   *brc20s.Store
	receipts *receipt.Store
	sat      *satoshi.Tracker

	server *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// NewServer opens read-only handles onto every table db holds and builds
// the route table. satIndexEnabled must mirror the indexer's own
// Index.SatIndex setting: the sat tracker exists in storage either way,
// but querying it when the indexer never populated it would silently
// report every sat as "unknown" rather than "disabled".
func NewServer(db storage.DB, addr string, port int, satIndexEnabled bool) *Server {
	chain, _ := chainstate.Open(db)

	var sat *satoshi.Tracker
	if satIndexEnabled {
		sat, _ = satoshi.NewTracker(db)
	}

	s := &Server{
		addr:     addr,
		port:     port,
		chain:    chain,
		inscr:    inscription.NewStore(db),
		brcStore: brc20.NewStore(db),
		sStore:   brc20s.NewStore(db),
		receipts: receipt.NewStore(db),
		sat:      sat,
		logger:   klog.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/inscription/", s.handleInscription)
	mux.HandleFunc("/sat/", s.handleSat)
	mux.HandleFunc("/tick/", s.handleTick)
	mux.HandleFunc("/brc20s/tick/", s.handleBRC20STick)
	mux.HandleFunc("/brc20s/pool/", s.handleBRC20SPool)
	mux.HandleFunc("/tx/", s.handleTxReceipts)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", addr, port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe binds the listener and blocks serving requests until the
// server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.ln = ln
	err = s.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the bound listener address (useful when Port is 0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.server.Addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
