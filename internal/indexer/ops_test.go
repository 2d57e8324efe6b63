package indexer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/brc20labs/ordindexer/internal/brc20"
	"github.com/brc20labs/ordindexer/internal/brc20s"
	"github.com/brc20labs/ordindexer/internal/chainstate"
	"github.com/brc20labs/ordindexer/internal/inscription"
	"github.com/brc20labs/ordindexer/internal/receipt"
	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// newTestIndexer builds an Indexer directly over a MemoryDB, bypassing
// New()'s RPC/fetcher wiring: applyOperation and its helpers never touch
// the network, only the table stores.
func newTestIndexer(t *testing.T) (*Indexer, storage.DB) {
	t.Helper()
	db := storage.NewMemory()
	chain, err := chainstate.Open(db)
	if err != nil {
		t.Fatalf("open chainstate: %v", err)
	}
	brcStore := brc20.NewStore(db)
	sStore := brc20s.NewStore(db)
	return &Indexer{
		db:       db,
		chain:    chain,
		brcStore: brcStore,
		brcEng:   brc20.NewEngine(brcStore),
		sStore:   sStore,
		sEng:     brc20s.NewEngine(sStore),
		receipts: receipt.NewStore(db),
	}, db
}

func txidN(n byte) ordinal.Txid {
	var t ordinal.Txid
	t[0] = n
	return t
}

func ownerTx(pkScript []byte) *wire.MsgTx {
	return &wire.MsgTx{TxOut: []*wire.TxOut{{PkScript: pkScript}}}
}

func TestApplyOperationDeployAndMint(t *testing.T) {
	ix, db := newTestIndexer(t)
	owner := []byte{0xAA}
	tx := ownerTx(owner)
	sp := func(txid ordinal.Txid) ordinal.SatPoint {
		return ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txid, Vout: 0}}
	}

	b := db.NewBatch()
	deployID := ordinal.InscriptionId{Txid: txidN(1), Index: 0}
	deployOp := inscription.Op{
		Action:        inscription.ActionNew,
		ContentType:   "text/plain",
		Body:          []byte(`{"p":"brc-20","op":"deploy","tick":"ordi","max":"1000","lim":"100"}`),
		NewSatpoint:   sp(txidN(1)),
		InscriptionId: deployID,
	}
	seq := uint64(0)
	if err := ix.applyOperation(b, 1, false, tx, deployOp, nil, &seq); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	mintID := ordinal.InscriptionId{Txid: txidN(2), Index: 0}
	mintOp := inscription.Op{
		Action:      inscription.ActionNew,
		ContentType: "text/plain",
		Body:        []byte(`{"p":"brc-20","op":"mint","tick":"ordi","amt":"50"}`),
		NewSatpoint: sp(txidN(2)),
		InscriptionId: mintID,
	}
	if err := ix.applyOperation(b, 1, false, tx, mintOp, nil, &seq); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	info, found, err := ix.brcStore.Tick("ordi")
	if err != nil || !found {
		t.Fatalf("tick not found: found=%v err=%v", found, err)
	}
	if info.Minted.String() != "50" {
		t.Errorf("minted = %s, want 50", info.Minted.String())
	}

	deployReceipts, _ := ix.receipts.ForTx(deployID.Txid)
	if len(deployReceipts) != 1 || !deployReceipts[0].Ok || deployReceipts[0].Engine != receipt.EngineBRC20 {
		t.Errorf("deploy receipts = %+v", deployReceipts)
	}
	mintReceipts, _ := ix.receipts.ForTx(mintID.Txid)
	if len(mintReceipts) != 1 || !mintReceipts[0].Ok {
		t.Errorf("mint receipts = %+v", mintReceipts)
	}
}

func TestApplyOperationTransferTwoStep(t *testing.T) {
	ix, db := newTestIndexer(t)
	senderScript := []byte{0xAA}
	receiverScript := []byte{0xBB}

	b := db.NewBatch()
	deployID := ordinal.InscriptionId{Txid: txidN(1), Index: 0}
	deployOp := inscription.Op{
		Action:      inscription.ActionNew,
		ContentType: "text/plain",
		Body:        []byte(`{"p":"brc-20","op":"deploy","tick":"ordi","max":"1000"}`),
		NewSatpoint: ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(1), Vout: 0}},
		InscriptionId: deployID,
	}
	seq := uint64(0)
	if err := ix.applyOperation(b, 1, false, ownerTx(senderScript), deployOp, nil, &seq); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	mintID := ordinal.InscriptionId{Txid: txidN(2), Index: 0}
	mintOp := inscription.Op{
		Action:      inscription.ActionNew,
		ContentType: "text/plain",
		Body:        []byte(`{"p":"brc-20","op":"mint","tick":"ordi","amt":"100"}`),
		NewSatpoint: ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(2), Vout: 0}},
		InscriptionId: mintID,
	}
	if err := ix.applyOperation(b, 1, false, ownerTx(senderScript), mintOp, nil, &seq); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Arm a transfer: inscribe-transfer amt=40, owned by sender.
	armID := ordinal.InscriptionId{Txid: txidN(3), Index: 0}
	armOutpoint := ordinal.Outpoint{Txid: txidN(3), Vout: 0}
	armOp := inscription.Op{
		Action:      inscription.ActionNew,
		ContentType: "text/plain",
		Body:        []byte(`{"p":"brc-20","op":"transfer","tick":"ordi","amt":"40"}`),
		NewSatpoint: ordinal.SatPoint{Outpoint: armOutpoint},
		InscriptionId: armID,
	}
	if err := ix.applyOperation(b, 1, false, ownerTx(senderScript), armOp, nil, &seq); err != nil {
		t.Fatalf("arm transfer: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit block 1: %v", err)
	}

	// Block 2: the armed inscription moves from sender to receiver. The
	// old satpoint is the output it was armed on; scriptOf resolves it
	// to the sender's script, as indexTransaction would have built it
	// while walking this transaction's own inputs.
	b2 := db.NewBatch()
	scriptOf := map[ordinal.Outpoint][]byte{armOutpoint: senderScript}
	moveOp := inscription.Op{
		Action:      inscription.ActionTransfer,
		InscriptionId: armID,
		OldSatpoint: &ordinal.SatPoint{Outpoint: armOutpoint},
		NewSatpoint: ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(4), Vout: 0}},
	}
	seq2 := uint64(0)
	if err := ix.applyOperation(b2, 2, false, ownerTx(receiverScript), moveOp, scriptOf, &seq2); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatalf("commit block 2: %v", err)
	}

	senderBal, err := ix.brcStore.Balance("ordi", scriptKey(senderScript), 18)
	if err != nil {
		t.Fatalf("sender balance: %v", err)
	}
	if senderBal.Overall.String() != "60" {
		t.Errorf("sender overall = %s, want 60", senderBal.Overall.String())
	}
	receiverBal, err := ix.brcStore.Balance("ordi", scriptKey(receiverScript), 18)
	if err != nil {
		t.Fatalf("receiver balance: %v", err)
	}
	if receiverBal.Overall.String() != "40" {
		t.Errorf("receiver overall = %s, want 40", receiverBal.Overall.String())
	}

	receipts, err := ix.receipts.ForTx(txidN(4))
	if err != nil || len(receipts) != 1 || !receipts[0].Ok || receipts[0].To != scriptKey(receiverScript) {
		t.Errorf("transfer receipts = %+v err=%v", receipts, err)
	}
}

func TestApplyNewInscriptionSkipsUnbound(t *testing.T) {
	ix, db := newTestIndexer(t)
	b := db.NewBatch()
	id := ordinal.InscriptionId{Txid: txidN(5), Index: 0}
	op := inscription.Op{
		Action:      inscription.ActionNew,
		ContentType: "text/plain",
		Body:        []byte(`{"p":"brc-20","op":"deploy","tick":"ordi","max":"1000"}`),
		NewSatpoint: ordinal.SatPoint{Outpoint: ordinal.NullOutpoint},
		InscriptionId: id,
	}
	seq := uint64(0)
	if err := ix.applyOperation(b, 1, false, ownerTx([]byte{0xAA}), op, nil, &seq); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, found, err := ix.brcStore.Tick("ordi"); err != nil || found {
		t.Errorf("expected no deploy to be recorded for an unbound new inscription, found=%v err=%v", found, err)
	}
	receipts, _ := ix.receipts.ForTx(id.Txid)
	if len(receipts) != 0 {
		t.Errorf("expected no receipts for an unbound new inscription, got %+v", receipts)
	}
}

func TestApplyTransferUnresolvableOriginIsNoOp(t *testing.T) {
	ix, db := newTestIndexer(t)
	b := db.NewBatch()
	op := inscription.Op{
		Action:      inscription.ActionTransfer,
		InscriptionId: ordinal.InscriptionId{Txid: txidN(9), Index: 0},
		OldSatpoint: &ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(8), Vout: 0}},
		NewSatpoint: ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(9), Vout: 0}},
	}
	seq := uint64(0)
	if err := ix.applyOperation(b, 1, false, ownerTx([]byte{0xAA}), op, map[ordinal.Outpoint][]byte{}, &seq); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if seq != 0 {
		t.Errorf("seq advanced to %d, want 0 (no receipt recorded)", seq)
	}
}

// TestParseBRC20SRealJSONBodies decodes the literal example bodies from
// spec.md §6 straight through brc20s.ParseOperation: a previous revision
// used "brc-20-s"/"pool_id"/"tick_id" internally, none of which match the
// real wire protocol's "brc20-s"/"pid"/"tid", so every one of these
// bodies used to be rejected or decode with empty fields.
func TestParseBRC20SRealJSONBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
		want func(t *testing.T, op brc20s.Operation)
	}{
		{
			name: "deposit",
			body: `{"p":"brc20-s","op":"deposit","pid":"13395c5283#01","amt":"50"}`,
			want: func(t *testing.T, op brc20s.Operation) {
				if op.Pid != "13395c5283#01" {
					t.Errorf("pid = %q, want 13395c5283#01", op.Pid)
				}
			},
		},
		{
			name: "withdraw",
			body: `{"p":"brc20-s","op":"withdraw","pid":"13395c5283#01","amt":"1"}`,
			want: func(t *testing.T, op brc20s.Operation) {
				if op.Pid != "13395c5283#01" {
					t.Errorf("pid = %q, want 13395c5283#01", op.Pid)
				}
			},
		},
		{
			name: "mint",
			body: `{"p":"brc20-s","op":"mint","tick":"ordi1","pid":"13395c5283#01","amt":"1.1"}`,
			want: func(t *testing.T, op brc20s.Operation) {
				if op.Pid != "13395c5283#01" {
					t.Errorf("pid = %q, want 13395c5283#01", op.Pid)
				}
			},
		},
		{
			name: "transfer",
			body: `{"p":"brc20-s","op":"transfer","tid":"13395c5283","tick":"ordi1","amt":"100"}`,
			want: func(t *testing.T, op brc20s.Operation) {
				if op.TickID != "13395c5283" {
					t.Errorf("tick_id = %q, want 13395c5283", op.TickID)
				}
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			op, err := brc20s.ParseOperation("text/plain", []byte(c.body))
			if err != nil {
				t.Fatalf("ParseOperation(%s) rejected real wire json: %v", c.name, err)
			}
			if op.Op != c.name {
				t.Errorf("op = %q, want %q", op.Op, c.name)
			}
			c.want(t, op)
		})
	}
}

// TestApplyOperationBRC20SDepositWithdrawMintTransfer drives a deposit/
// withdraw/mint/transfer sequence through applyOperation using the real
// "deposit"/"withdraw" op names and "pid"/"tid" wire fields, end to end
// through the indexer dispatch (not hand-built Operation{} literals), to
// confirm the alias and tag fixes interoperate with real inscription
// bodies instead of just the engine's own struct-literal tests.
func TestApplyOperationBRC20SDepositWithdrawMintTransfer(t *testing.T) {
	ix, db := newTestIndexer(t)
	sender := []byte{0xCC}
	receiver := []byte{0xDD}

	b := db.NewBatch()
	if err := ix.sStore.CreditNative(b, scriptKey(sender), 1000); err != nil {
		t.Fatalf("credit native: %v", err)
	}
	deployID := ordinal.InscriptionId{Txid: txidN(21), Index: 0}
	deployRcpt, err := ix.sEng.Deploy(b, deployID, 1, scriptKey(sender), scriptKey(sender), brc20s.Operation{
		TickName: "stak1", Supply: "21000000", Decimals: "18", Dmax: "1000000", Erate: "10",
	})
	if err != nil || !deployRcpt.Ok {
		t.Fatalf("deploy: ok=%v err=%v", deployRcpt.Ok, err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit deploy: %v", err)
	}
	pools := findNativePool(t, ix, deployRcpt.Event)

	seq := uint64(0)
	b2 := db.NewBatch()
	depositBody := fmt.Sprintf(`{"p":"brc20-s","op":"deposit","pid":"%s","amt":"300"}`, pools.Pid)
	depositOp := inscription.Op{
		Action:        inscription.ActionNew,
		ContentType:   "text/plain",
		Body:          []byte(depositBody),
		NewSatpoint:   ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(22), Vout: 0}},
		InscriptionId: ordinal.InscriptionId{Txid: txidN(22), Index: 0},
	}
	if err := ix.applyOperation(b2, 2, false, ownerTx(sender), depositOp, nil, &seq); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatalf("commit deposit: %v", err)
	}

	b3 := db.NewBatch()
	withdrawBody := fmt.Sprintf(`{"p":"brc20-s","op":"withdraw","pid":"%s","amt":"50"}`, pools.Pid)
	withdrawOp := inscription.Op{
		Action:        inscription.ActionNew,
		ContentType:   "text/plain",
		Body:          []byte(withdrawBody),
		NewSatpoint:   ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(23), Vout: 0}},
		InscriptionId: ordinal.InscriptionId{Txid: txidN(23), Index: 0},
	}
	if err := ix.applyOperation(b3, 2, false, ownerTx(sender), withdrawOp, nil, &seq); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := b3.Commit(); err != nil {
		t.Fatalf("commit withdraw: %v", err)
	}

	depositReceipts, _ := ix.receipts.ForTx(txidN(22))
	if len(depositReceipts) != 1 || !depositReceipts[0].Ok {
		t.Fatalf("deposit (op:\"deposit\") produced no receipt, alias not wired: %+v", depositReceipts)
	}
	withdrawReceipts, _ := ix.receipts.ForTx(txidN(23))
	if len(withdrawReceipts) != 1 || !withdrawReceipts[0].Ok {
		t.Fatalf("withdraw (op:\"withdraw\") produced no receipt, alias not wired: %+v", withdrawReceipts)
	}

	// mint, then arm + complete a transfer, all via real JSON bodies.
	b4 := db.NewBatch()
	mintBody := fmt.Sprintf(`{"p":"brc20-s","op":"mint","tick":"stak1","pid":"%s","amt":"10"}`, pools.Pid)
	mintOp := inscription.Op{
		Action:        inscription.ActionNew,
		ContentType:   "text/plain",
		Body:          []byte(mintBody),
		NewSatpoint:   ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(24), Vout: 0}},
		InscriptionId: ordinal.InscriptionId{Txid: txidN(24), Index: 0},
	}
	if err := ix.applyOperation(b4, 3, false, ownerTx(sender), mintOp, nil, &seq); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b4.Commit(); err != nil {
		t.Fatalf("commit mint: %v", err)
	}
	mintReceipts, _ := ix.receipts.ForTx(txidN(24))
	if len(mintReceipts) != 1 || !mintReceipts[0].Ok {
		t.Fatalf("mint produced no ok receipt: %+v", mintReceipts)
	}

	b5 := db.NewBatch()
	armOutpoint := ordinal.Outpoint{Txid: txidN(25), Vout: 0}
	transferBody := fmt.Sprintf(`{"p":"brc20-s","op":"transfer","tid":"%s","tick":"stak1","amt":"4"}`, pools.TickID)
	armID := ordinal.InscriptionId{Txid: txidN(25), Index: 0}
	armOp := inscription.Op{
		Action:        inscription.ActionNew,
		ContentType:   "text/plain",
		Body:          []byte(transferBody),
		NewSatpoint:   ordinal.SatPoint{Outpoint: armOutpoint},
		InscriptionId: armID,
	}
	if err := ix.applyOperation(b5, 3, false, ownerTx(sender), armOp, nil, &seq); err != nil {
		t.Fatalf("arm transfer: %v", err)
	}
	if err := b5.Commit(); err != nil {
		t.Fatalf("commit arm transfer: %v", err)
	}

	b6 := db.NewBatch()
	scriptOf := map[ordinal.Outpoint][]byte{armOutpoint: sender}
	moveOp := inscription.Op{
		Action:        inscription.ActionTransfer,
		InscriptionId: armID,
		OldSatpoint:   &ordinal.SatPoint{Outpoint: armOutpoint},
		NewSatpoint:   ordinal.SatPoint{Outpoint: ordinal.Outpoint{Txid: txidN(26), Vout: 0}},
	}
	seq2 := uint64(0)
	if err := ix.applyOperation(b6, 4, false, ownerTx(receiver), moveOp, scriptOf, &seq2); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := b6.Commit(); err != nil {
		t.Fatalf("commit transfer: %v", err)
	}

	senderBal, err := ix.sStore.Balance(pools.TickID, scriptKey(sender), 18)
	if err != nil {
		t.Fatalf("sender balance: %v", err)
	}
	if senderBal.Overall.String() != "6" {
		t.Errorf("sender overall = %s, want 6", senderBal.Overall.String())
	}
	receiverBal, err := ix.sStore.Balance(pools.TickID, scriptKey(receiver), 18)
	if err != nil {
		t.Fatalf("receiver balance: %v", err)
	}
	if receiverBal.Overall.String() != "4" {
		t.Errorf("receiver overall = %s, want 4", receiverBal.Overall.String())
	}
}

// findNativePool reads back the pool Deploy just created, parsing its pid
// out of the receipt's "deployed pool <pid>" event rather than
// re-deriving tick_id independently of the engine.
func findNativePool(t *testing.T, ix *Indexer, deployEvent string) brc20s.PoolInfo {
	t.Helper()
	const prefix = "deployed pool "
	if !strings.HasPrefix(deployEvent, prefix) {
		t.Fatalf("unexpected deploy event %q", deployEvent)
	}
	pid := strings.TrimPrefix(deployEvent, prefix)
	pool, exists, err := ix.sStore.Pool(pid)
	if err != nil || !exists {
		t.Fatalf("pool not found for pid %s: exists=%v err=%v", pid, exists, err)
	}
	return pool
}

func TestAddStatsAccumulates(t *testing.T) {
	a := chainstate.Stats{BlocksIndexed: 1, Inscriptions: 2, Cursed: 1, BRC20Txs: 3, BRC20STxs: 4}
	c := chainstate.Stats{BlocksIndexed: 5, Inscriptions: 6, Cursed: 0, BRC20Txs: 1, BRC20STxs: 1}
	got := addStats(a, c)
	want := chainstate.Stats{BlocksIndexed: 6, Inscriptions: 8, Cursed: 1, BRC20Txs: 4, BRC20STxs: 5}
	if got != want {
		t.Errorf("addStats = %+v, want %+v", got, want)
	}
}
