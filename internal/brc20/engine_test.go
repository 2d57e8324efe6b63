package brc20

import (
	"testing"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

func newTestEngine() (*Engine, *Store, *storage.MemoryDB) {
	db := storage.NewMemory()
	store := NewStore(db)
	return NewEngine(store), store, db
}

func inscID(n byte) ordinal.InscriptionId {
	var txid ordinal.Txid
	txid[0] = n
	return ordinal.InscriptionId{Txid: txid, Index: 0}
}

func deploy(t *testing.T, e *Engine, db *storage.MemoryDB, tick, max, limit string, height uint64) {
	t.Helper()
	b := db.NewBatch()
	op := Operation{Proto: "brc-20", Op: "deploy", Tick: tick, Max: max, Limit: limit}
	rcpt, err := e.Deploy(b, inscID(1), height, "alice", op)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("deploy rejected: %s", rcpt.Err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestDeployRejectsDuplicateTick(t *testing.T) {
	e, _, db := newTestEngine()
	deploy(t, e, db, "ordi", "21000000", "1000", 1)

	b := db.NewBatch()
	op := Operation{Proto: "brc-20", Op: "deploy", Tick: "ordi", Max: "100"}
	rcpt, err := e.Deploy(b, inscID(2), 2, "bob", op)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Ok {
		t.Fatal("expected duplicate-tick rejection")
	}
}

func TestDeployRejectsLimitAboveMax(t *testing.T) {
	e, _, db := newTestEngine()
	b := db.NewBatch()
	op := Operation{Proto: "brc-20", Op: "deploy", Tick: "ordi", Max: "1000", Limit: "2000"}
	rcpt, err := e.Deploy(b, inscID(1), 1, "alice", op)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Ok {
		t.Fatal("expected limit-exceeds-max rejection")
	}
}

func TestMintClampsAtRemainingSupply(t *testing.T) {
	e, store, db := newTestEngine()
	deploy(t, e, db, "ordi", "1000", "", 1)

	b := db.NewBatch()
	op := Operation{Proto: "brc-20", Op: "mint", Tick: "ordi", Amt: "1500"}
	rcpt, err := e.Mint(b, inscID(2), 2, "bob", op)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("mint rejected: %s", rcpt.Err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	bal, err := store.Balance("ordi", "bob", 18)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Overall.String() != "1000" {
		t.Fatalf("clamped mint overall = %s, want 1000", bal.Overall.String())
	}

	// Tick is now fully minted; any further mint must fail.
	b2 := db.NewBatch()
	again, err := e.Mint(b2, inscID(3), 3, "bob", op)
	if err != nil {
		t.Fatal(err)
	}
	if again.Ok {
		t.Fatal("expected minted-out rejection")
	}
}

func TestMintRejectsOverPerMintLimit(t *testing.T) {
	e, _, db := newTestEngine()
	deploy(t, e, db, "ordi", "1000000", "100", 1)

	b := db.NewBatch()
	op := Operation{Proto: "brc-20", Op: "mint", Tick: "ordi", Amt: "101"}
	rcpt, err := e.Mint(b, inscID(2), 2, "bob", op)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Ok {
		t.Fatal("expected mint-exceeds-limit rejection")
	}
}

func TestInscribeTransferThenTransferMovesBalance(t *testing.T) {
	e, store, db := newTestEngine()
	deploy(t, e, db, "ordi", "1000000", "1000", 1)

	b := db.NewBatch()
	mintOp := Operation{Proto: "brc-20", Op: "mint", Tick: "ordi", Amt: "500"}
	if _, err := e.Mint(b, inscID(2), 2, "bob", mintOp); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	b2 := db.NewBatch()
	id := inscID(3)
	xferOp := Operation{Proto: "brc-20", Op: "transfer", Tick: "ordi", Amt: "200"}
	rcpt, err := e.InscribeTransfer(b2, id, 3, "bob", xferOp)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("inscribe-transfer rejected: %s", rcpt.Err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	b3 := db.NewBatch()
	transferRcpt, err := e.Transfer(b3, id, 4, "bob", "carol", false)
	if err != nil {
		t.Fatal(err)
	}
	if !transferRcpt.Ok {
		t.Fatalf("transfer rejected: %s", transferRcpt.Err)
	}
	if err := b3.Commit(); err != nil {
		t.Fatal(err)
	}

	bobBal, _ := store.Balance("ordi", "bob", 18)
	carolBal, _ := store.Balance("ordi", "carol", 18)
	if bobBal.Overall.String() != "300" {
		t.Fatalf("bob overall = %s, want 300", bobBal.Overall.String())
	}
	if bobBal.Transferable.Sign() != 0 {
		t.Fatalf("bob transferable should be drained, got %s", bobBal.Transferable.String())
	}
	if carolBal.Overall.String() != "200" {
		t.Fatalf("carol overall = %s, want 200", carolBal.Overall.String())
	}
}

func TestTransferToCoinbaseRefundsSender(t *testing.T) {
	e, store, db := newTestEngine()
	deploy(t, e, db, "ordi", "1000000", "1000", 1)

	b := db.NewBatch()
	mintOp := Operation{Proto: "brc-20", Op: "mint", Tick: "ordi", Amt: "500"}
	if _, err := e.Mint(b, inscID(2), 2, "bob", mintOp); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	b2 := db.NewBatch()
	id := inscID(3)
	xferOp := Operation{Proto: "brc-20", Op: "transfer", Tick: "ordi", Amt: "200"}
	if _, err := e.InscribeTransfer(b2, id, 3, "bob", xferOp); err != nil {
		t.Fatal(err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	b3 := db.NewBatch()
	rcpt, err := e.Transfer(b3, id, 4, "bob", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("transfer rejected: %s", rcpt.Err)
	}
	if err := b3.Commit(); err != nil {
		t.Fatal(err)
	}

	bobBal, _ := store.Balance("ordi", "bob", 18)
	if bobBal.Overall.String() != "500" {
		t.Fatalf("bob overall after coinbase refund = %s, want 500", bobBal.Overall.String())
	}
	if bobBal.Transferable.Sign() != 0 {
		t.Fatalf("bob transferable should be drained even on refund, got %s", bobBal.Transferable.String())
	}
}

func TestTransferWithoutInscribeIsRejected(t *testing.T) {
	e, _, db := newTestEngine()
	deploy(t, e, db, "ordi", "1000000", "1000", 1)

	b := db.NewBatch()
	rcpt, err := e.Transfer(b, inscID(99), 5, "bob", "carol", false)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Ok {
		t.Fatal("expected not-armed rejection")
	}
}
