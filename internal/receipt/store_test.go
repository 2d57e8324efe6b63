package receipt

import (
	"testing"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

func TestAppendOrdersReceiptsByIncreasingSequence(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	var txid ordinal.Txid
	txid[0] = 0xAB

	b := db.NewBatch()
	for i, op := range []string{"deploy", "mint", "transfer"} {
		r := Receipt{Engine: EngineBRC20, Op: op, Height: 100, Ok: true, Event: op}
		if err := store.Append(b, txid, uint64(i), r); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := store.ForTx(txid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	wantOps := []string{"deploy", "mint", "transfer"}
	for i, r := range got {
		if r.Op != wantOps[i] {
			t.Fatalf("receipt[%d].Op = %q, want %q", i, r.Op, wantOps[i])
		}
	}
}

func TestForTxReturnsNilForUnknownTxid(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	var txid ordinal.Txid
	txid[0] = 0xFF

	got, err := store.ForTx(txid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no receipts, got %d", len(got))
	}
}

func TestForTxDoesNotMixDifferentTransactions(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	var txA, txB ordinal.Txid
	txA[0] = 0x01
	txB[0] = 0x02

	b := db.NewBatch()
	if err := store.Append(b, txA, 0, Receipt{Engine: EngineBRC20, Op: "deploy", Ok: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(b, txB, 0, Receipt{Engine: EngineBRC20S, Op: "stake", Ok: true}); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	gotA, err := store.ForTx(txA)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotA) != 1 || gotA[0].Op != "deploy" {
		t.Fatalf("txA receipts = %+v", gotA)
	}

	gotB, err := store.ForTx(txB)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotB) != 1 || gotB[0].Op != "stake" {
		t.Fatalf("txB receipts = %+v", gotB)
	}
}
