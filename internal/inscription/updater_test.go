package inscription

import (
	"testing"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

func txidN(n byte) ordinal.Txid {
	var t ordinal.Txid
	t[0] = n
	return t
}

func noSat(offset uint64) (ordinal.Sat, bool) { return 0, false }

func TestIndexTransactionCreatesNewInscriptionOnFirstOutput(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)
	u, err := NewUpdater(store, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}

	b := db.NewBatch()
	txid := txidN(1)
	env := Envelope{ContentType: []byte("text/plain"), Body: []byte("hello"), InputIndex: 0, Offset: 0}
	err = u.IndexTransaction(b, txid,
		[]ordinal.Outpoint{{Txid: txidN(0), Vout: 0}},
		[]int64{1000},
		[]int64{900},
		[]Envelope{env},
		false, noSat,
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Flush(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	if len(u.Operations) != 1 {
		t.Fatalf("len(Operations) = %d, want 1", len(u.Operations))
	}
	op := u.Operations[0]
	if op.Action != ActionNew {
		t.Fatalf("action = %v, want ActionNew", op.Action)
	}
	if op.NewSatpoint.Outpoint.Vout != 0 {
		t.Fatalf("new satpoint vout = %d, want 0", op.NewSatpoint.Outpoint.Vout)
	}

	entry, exists, err := store.Entry(op.InscriptionId)
	if err != nil || !exists {
		t.Fatalf("entry not persisted: %v %v", exists, err)
	}
	if entry.Number != 0 {
		t.Fatalf("number = %d, want 0 (first blessed)", entry.Number)
	}
	if entry.Cursed {
		t.Fatal("first inscription on its own input at offset zero must not be cursed")
	}
	if entry.Fee != 100 {
		t.Fatalf("fee = %d, want 100 (1000-900)", entry.Fee)
	}
}

func TestIndexTransactionCursesNonFirstInput(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)
	u, err := NewUpdater(store, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}

	b := db.NewBatch()
	txid := txidN(2)
	env := Envelope{ContentType: []byte("text/plain"), Body: []byte("cursed"), InputIndex: 1, Offset: 0}
	err = u.IndexTransaction(b, txid,
		[]ordinal.Outpoint{{Txid: txidN(0), Vout: 0}, {Txid: txidN(0), Vout: 1}},
		[]int64{1000, 1000},
		[]int64{2000},
		[]Envelope{env},
		false, noSat,
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	op := u.Operations[0]
	entry, _, _ := store.Entry(op.InscriptionId)
	if !entry.Cursed {
		t.Fatal("inscription revealed on a non-zero input index must be cursed")
	}
	if entry.Number >= 0 {
		t.Fatalf("cursed number = %d, want negative", entry.Number)
	}
}

func TestIndexTransactionTransportsExistingInscriptionToMatchingOutput(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)
	u, err := NewUpdater(store, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}

	// First tx: reveal an inscription on a single-input, single-output tx.
	b1 := db.NewBatch()
	firstTxid := txidN(10)
	env := Envelope{ContentType: []byte("text/plain"), Body: []byte("x"), InputIndex: 0, Offset: 0}
	if err := u.IndexTransaction(b1, firstTxid,
		[]ordinal.Outpoint{{Txid: txidN(0), Vout: 0}},
		[]int64{600},
		[]int64{600},
		[]Envelope{env}, false, noSat,
	); err != nil {
		t.Fatal(err)
	}
	if err := b1.Commit(); err != nil {
		t.Fatal(err)
	}
	id := u.Operations[0].InscriptionId

	// Second tx: spend that output, inscription should move to the new
	// single output since it carries the whole value forward.
	b2 := db.NewBatch()
	secondTxid := txidN(11)
	if err := u.IndexTransaction(b2, secondTxid,
		[]ordinal.Outpoint{{Txid: firstTxid, Vout: 0}},
		[]int64{600},
		[]int64{600},
		nil, false, noSat,
	); err != nil {
		t.Fatal(err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	var transferOp *Op
	for i := range u.Operations {
		if u.Operations[i].InscriptionId == id && u.Operations[i].Action == ActionTransfer {
			transferOp = &u.Operations[i]
		}
	}
	if transferOp == nil {
		t.Fatal("expected a transfer operation for the moved inscription")
	}
	if transferOp.NewSatpoint.Outpoint.Txid != secondTxid {
		t.Fatalf("new satpoint txid = %x, want %x", transferOp.NewSatpoint.Outpoint.Txid, secondTxid)
	}
	if transferOp.OldSatpoint == nil || transferOp.OldSatpoint.Outpoint.Txid != firstTxid {
		t.Fatal("expected old satpoint to reference the first transaction")
	}

	sp, exists, err := store.Satpoint(id)
	if err != nil || !exists {
		t.Fatalf("satpoint not persisted: %v %v", exists, err)
	}
	if sp.Outpoint.Txid != secondTxid {
		t.Fatalf("stored satpoint txid = %x, want %x", sp.Outpoint.Txid, secondTxid)
	}
}

func TestIndexTransactionOvershootingFeeCarriesToCoinbase(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)
	u, err := NewUpdater(store, 1, 1000)
	if err != nil {
		t.Fatal(err)
	}

	// A non-coinbase tx whose inscription's offset lands beyond every
	// output becomes a fee, carried into u.pending.
	b1 := db.NewBatch()
	txid1 := txidN(20)
	env := Envelope{ContentType: []byte("text/plain"), Body: []byte("fee-me"), InputIndex: 0, Offset: 0}
	if err := u.IndexTransaction(b1, txid1,
		[]ordinal.Outpoint{{Txid: txidN(0), Vout: 0}},
		[]int64{1000},
		[]int64{0}, // no output receives any value, so offset 0 falls in no output's range
		[]Envelope{env}, false, noSat,
	); err != nil {
		t.Fatal(err)
	}
	if err := b1.Commit(); err != nil {
		t.Fatal(err)
	}

	if len(u.pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1 (flotsam overshot the zero-value output)", len(u.pending))
	}

	// Coinbase transaction resolves the pending flotsam.
	b2 := db.NewBatch()
	coinbaseTxid := txidN(21)
	if err := u.IndexTransaction(b2, coinbaseTxid,
		nil, nil,
		[]int64{5000},
		nil, true, noSat,
	); err != nil {
		t.Fatal(err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	if len(u.pending) != 0 {
		t.Fatalf("pending should be drained after coinbase, got %d", len(u.pending))
	}

	found := false
	for _, op := range u.Operations {
		if op.NewSatpoint.Outpoint.Txid == coinbaseTxid && op.NewSatpoint.Outpoint.IsNull() == false {
			// not expected path; coinbase leftover resolves to the null outpoint
		}
		if op.NewSatpoint.Outpoint.IsNull() {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the carried fee flotsam to resolve to the null outpoint in the coinbase tx")
	}
}
