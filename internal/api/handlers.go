package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// handleStatus reports the indexer's current tip and running counters
// (SPEC_FULL.md §6 "GET /status").
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	height, ok, err := s.chain.Height()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.chain.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Synced bool   `json:"synced"`
		Height uint64 `json:"height"`
		Stats  interface{} `json:"stats"`
	}{Synced: ok, Height: height, Stats: stats})
}

// handleInscription serves GET /inscription/{id}, id in "txidiN" form.
func (s *Server) handleInscription(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/inscription/")
	id, err := ordinal.ParseInscriptionId(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed inscription id")
		return
	}

	entry, found, err := s.inscr.Entry(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "inscription not found")
		return
	}

	satpoint, hasLocation, err := s.inscr.Satpoint(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Entry    interface{} `json:"entry"`
		Location *string     `json:"location,omitempty"`
	}{
		Entry:    entry,
		Location: satpointString(satpoint, hasLocation),
	})
}

func satpointString(sp ordinal.SatPoint, ok bool) *string {
	if !ok {
		return nil
	}
	str := sp.String()
	return &str
}

// handleSat serves GET /sat/{n}: the sat's current location, if tracked.
func (s *Server) handleSat(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/sat/")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed sat number")
		return
	}
	if s.sat == nil {
		writeError(w, http.StatusServiceUnavailable, "sat index disabled")
		return
	}

	sp, found, err := s.sat.Satpoint(ordinal.Sat(n))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "sat location unknown")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Sat      uint64 `json:"sat"`
		Location string `json:"location"`
	}{Sat: n, Location: sp.String()})
}

// handleTick serves GET /tick/{name} and GET /tick/{name}/{owner}
// (BRC-20 deploy metadata, or a script's balance of it).
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tick/")
	parts := strings.SplitN(rest, "/", 2)
	tick := parts[0]

	info, found, err := s.brcStore.Tick(tick)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "tick not deployed")
		return
	}

	if len(parts) == 1 || parts[1] == "" {
		writeJSON(w, http.StatusOK, info)
		return
	}

	owner := parts[1]
	bal, err := s.brcStore.Balance(tick, owner, info.Decimals)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// handleBRC20STick serves GET /brc20s/tick/{tick_id}.
func (s *Server) handleBRC20STick(w http.ResponseWriter, r *http.Request) {
	tickID := strings.TrimPrefix(r.URL.Path, "/brc20s/tick/")
	info, found, err := s.sStore.Tick(tickID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "tick_id not deployed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleBRC20SPool serves GET /brc20s/pool/{pid}.
func (s *Server) handleBRC20SPool(w http.ResponseWriter, r *http.Request) {
	pid := strings.TrimPrefix(r.URL.Path, "/brc20s/pool/")
	pool, found, err := s.sStore.Pool(pid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// handleTxReceipts serves GET /tx/{txid}/receipts: every BRC-20 /
// BRC-20-S receipt a transaction produced, in application order.
func (s *Server) handleTxReceipts(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tx/")
	rest = strings.TrimSuffix(rest, "/receipts")
	txid, err := ordinal.HexToTxid(rest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed txid")
		return
	}

	receipts, err := s.receipts.ForTx(txid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}
