package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/brc20labs/ordindexer/internal/brc20"
	"github.com/brc20labs/ordindexer/internal/chainstate"
	"github.com/brc20labs/ordindexer/internal/inscription"
	"github.com/brc20labs/ordindexer/internal/receipt"
	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// testEnv seeds a MemoryDB with one inscription, one deployed tick, and
// one receipt, then starts the API server against it on a random port.
type testEnv struct {
	srv *Server
	url string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemory()

	if _, err := chainstate.Open(db); err != nil {
		t.Fatalf("open chainstate: %v", err)
	}
	b := db.NewBatch()
	if err := chainstate.PutBlock(b, 1, ordinal.BlockHash{0xAA}); err != nil {
		t.Fatalf("put block: %v", err)
	}
	if err := b.Put(chainstate.KeyBlocksIndexed, be64(1)); err != nil {
		t.Fatalf("put blocks_indexed: %v", err)
	}
	if err := b.Put(chainstate.KeyInscriptions, be64(1)); err != nil {
		t.Fatalf("put inscriptions: %v", err)
	}

	id := ordinal.InscriptionId{Txid: ordinal.Txid{0x01}, Index: 0}
	entry := inscription.Entry{Id: id, Number: 0, Height: 1, ContentType: "text/plain"}
	if err := inscription.NewStore(db).PutEntry(b, entry); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	sp := ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: ordinal.Txid{0x01}, Vout: 0}, Offset: 0}
	if err := inscription.NewStore(db).PutSatpoint(b, id, sp); err != nil {
		t.Fatalf("put satpoint: %v", err)
	}

	max, _ := decimal.Parse("21000000", 18)
	brc := brc20.NewStore(db)
	if err := brc.PutTick(b, brc20.TokenInfo{Tick: "ordi", Max: max, Decimals: 18, DeployId: id, DeployHeight: 1}); err != nil {
		t.Fatalf("put tick: %v", err)
	}

	rr := receipt.Receipt{Engine: receipt.EngineBRC20, Op: "deploy", InscriptionId: id, Height: 1, Ok: true}
	if err := receipt.NewStore(db).Append(b, id.Txid, 0, rr); err != nil {
		t.Fatalf("append receipt: %v", err)
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	srv := NewServer(db, "127.0.0.1", 0, false)
	go func() {
		_ = srv.ListenAndServe()
	}()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	// ListenAndServe binds the listener asynchronously; poll until ready.
	for i := 0; i < 100 && srv.Addr() == "127.0.0.1:0"; i++ {
		time.Sleep(time.Millisecond)
	}

	return &testEnv{srv: srv, url: "http://" + srv.Addr()}
}

func be64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func getJSON(t *testing.T, url string, out interface{}) (*http.Response, interface{}) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("unmarshal %s: %v", url, err)
		}
	}
	return resp, raw
}

func TestHandleStatus(t *testing.T) {
	env := setupTestEnv(t)

	var result struct {
		Synced bool   `json:"synced"`
		Height uint64 `json:"height"`
	}
	resp, _ := getJSON(t, env.url+"/status", &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !result.Synced || result.Height != 1 {
		t.Errorf("got synced=%v height=%d, want synced=true height=1", result.Synced, result.Height)
	}
}

func TestHandleInscriptionFound(t *testing.T) {
	env := setupTestEnv(t)
	id := ordinal.InscriptionId{Txid: ordinal.Txid{0x01}, Index: 0}

	resp, raw := getJSON(t, env.url+"/inscription/"+id.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		t.Fatalf("response is not a JSON object: %v", raw)
	}
	if _, ok := obj["entry"]; !ok {
		t.Error("response missing entry field")
	}
	if _, ok := obj["location"]; !ok {
		t.Error("response missing location field")
	}
}

func TestHandleInscriptionNotFound(t *testing.T) {
	env := setupTestEnv(t)
	missing := ordinal.InscriptionId{Txid: ordinal.Txid{0x99}, Index: 0}

	resp, _ := getJSON(t, env.url+"/inscription/"+missing.String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleInscriptionMalformed(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := getJSON(t, env.url+"/inscription/not-an-id", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleTickDeployInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result struct {
		Tick string `json:"tick"`
	}
	resp, _ := getJSON(t, env.url+"/tick/ordi", &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if result.Tick != "ordi" {
		t.Errorf("tick = %q, want %q", result.Tick, "ordi")
	}
}

func TestHandleTickNotDeployed(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := getJSON(t, env.url+"/tick/zzzz", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleTickBalance(t *testing.T) {
	env := setupTestEnv(t)

	var bal struct {
		Overall decimal.Num `json:"overall"`
	}
	resp, _ := getJSON(t, env.url+"/tick/ordi/deadbeef", &bal)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleTxReceipts(t *testing.T) {
	env := setupTestEnv(t)
	txid := ordinal.Txid{0x01}

	var receipts []receipt.Receipt
	resp, _ := getJSON(t, fmt.Sprintf("%s/tx/%s/receipts", env.url, txid.String()), &receipts)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(receipts) != 1 || receipts[0].Op != "deploy" {
		t.Errorf("receipts = %+v, want one deploy receipt", receipts)
	}
}

func TestHandleSatNoIndex(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := getJSON(t, env.url+"/sat/100", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (no sat tracker wired for this db)", resp.StatusCode)
	}
}
