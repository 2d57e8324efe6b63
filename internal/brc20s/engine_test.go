package brc20s

import (
	"testing"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

func newTestEngine() (*Engine, *Store, storage.DB) {
	db := storage.NewMemory()
	store := NewStore(db)
	return NewEngine(store), store, db
}

func inscID(n byte) ordinal.InscriptionId {
	var txid ordinal.Txid
	txid[0] = n
	return ordinal.InscriptionId{Txid: txid, Index: 0}
}

func deployOp(t *testing.T, e *Engine, b storage.Batch, height uint64, deployer string) (TickInfo, PoolInfo) {
	t.Helper()
	op := Operation{
		Proto: "brc20-s", Op: "deploy", TickName: "stak1",
		Supply: "21000000", Decimals: "18", Dmax: "1000000", Erate: "10",
	}
	tickID := DeriveTickID(op.TickName, mustParse(t, op.Supply, 18), 18, deployer, deployer)
	op.TickID = tickID
	rcpt, err := e.Deploy(b, inscID(1), height, deployer, deployer, op)
	if err != nil {
		t.Fatalf("Deploy error: %v", err)
	}
	if !rcpt.Ok {
		t.Fatalf("Deploy rejected: %s", rcpt.Err)
	}
	// Store reads go to the DB, not the open batch: commit before reading back.
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	store := e.store
	tick, exists, err := store.Tick(tickID)
	if err != nil || !exists {
		t.Fatalf("tick not persisted: %v %v", exists, err)
	}
	pid, exists, err := store.PidForKind(tickID, StakeKind{Tag: StakeNative})
	if err != nil || !exists {
		t.Fatalf("pid not persisted: %v %v", exists, err)
	}
	pool, exists, err := store.Pool(pid)
	if err != nil || !exists {
		t.Fatalf("pool not persisted: %v %v", exists, err)
	}
	return tick, pool
}

func mustParse(t *testing.T, s string, dec uint8) decimal.Num {
	t.Helper()
	n, err := decimal.Parse(s, dec)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return n
}

func TestDeployCreatesPoolAndRejectsDuplicateKind(t *testing.T) {
	e, _, db := newTestEngine()
	b := db.(*storage.MemoryDB).NewBatch()
	tick, pool := deployOp(t, e, b, 100, "alice")
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if tick.Deployer != "alice" {
		t.Fatalf("deployer = %q", tick.Deployer)
	}
	if pool.StakeKind.Tag != StakeNative {
		t.Fatalf("expected native stake kind, got %+v", pool.StakeKind)
	}

	// Same (tick_id, stake_kind) again must be rejected as a duplicate.
	b2 := db.(*storage.MemoryDB).NewBatch()
	op := Operation{
		Proto: "brc20-s", Op: "deploy", TickID: tick.TickID, TickName: "stak1",
		Supply: "21000000", Decimals: "18", Dmax: "100", Erate: "1",
	}
	rcpt, err := e.Deploy(b2, inscID(2), 101, "alice", "alice", op)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Ok {
		t.Fatal("expected duplicate-pool rejection")
	}
}

func TestDeployRejectsFromToMismatch(t *testing.T) {
	e, _, db := newTestEngine()
	b := db.(*storage.MemoryDB).NewBatch()
	op := Operation{
		Proto: "brc20-s", Op: "deploy", TickName: "stak1",
		Supply: "21000000", Decimals: "18", Dmax: "100", Erate: "1",
	}
	rcpt, err := e.Deploy(b, inscID(1), 1, "alice", "bob", op)
	if err != nil {
		t.Fatal(err)
	}
	if rcpt.Ok {
		t.Fatal("expected from/to mismatch rejection")
	}
}

func TestStakeAccruesRewardAcrossBlocksAndMintRespectsPending(t *testing.T) {
	e, store, db := newTestEngine()
	b := db.(*storage.MemoryDB).NewBatch()
	tick, pool := deployOp(t, e, b, 100, "alice")
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	external := mustParse(t, "500", 18)
	b2 := db.(*storage.MemoryDB).NewBatch()
	rcpt, err := e.Stake(b2, inscID(3), 100, "bob", "bob", pool.Pid, "100", external)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("stake rejected: %s", rcpt.Err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	user, exists, err := store.User(pool.Pid, "bob")
	if err != nil || !exists {
		t.Fatalf("user not persisted: %v %v", exists, err)
	}
	if user.Staked.String() != "100" {
		t.Fatalf("staked = %s, want 100", user.Staked.String())
	}

	// Advance 10 blocks: erate=10/block, sole staker, so pending = 100.
	b3 := db.(*storage.MemoryDB).NewBatch()
	mintRcpt, err := e.Mint(b3, inscID(4), 110, "bob", "bob", pool.Pid, "100")
	if err != nil {
		t.Fatal(err)
	}
	if !mintRcpt.Ok {
		t.Fatalf("mint rejected: %s", mintRcpt.Err)
	}
	if err := b3.Commit(); err != nil {
		t.Fatal(err)
	}

	user, _, _ = store.User(pool.Pid, "bob")
	if user.Overall.String() != "100" {
		t.Fatalf("overall = %s, want 100", user.Overall.String())
	}
	if user.PendingReward.Sign() != 0 {
		t.Fatalf("pending reward should be drained, got %s", user.PendingReward.String())
	}

	updatedTick, _, _ := store.Tick(tick.TickID)
	if updatedTick.Circulation.String() != "100" {
		t.Fatalf("circulation = %s, want 100", updatedTick.Circulation.String())
	}

	// Minting beyond pending must fail.
	b4 := db.(*storage.MemoryDB).NewBatch()
	overMint, err := e.Mint(b4, inscID(5), 110, "bob", "bob", pool.Pid, "1")
	if err != nil {
		t.Fatal(err)
	}
	if overMint.Ok {
		t.Fatal("expected mint-exceeds-pending rejection")
	}
}

func TestUnstakeReducesStakedAndClearsPoolOnFullWithdraw(t *testing.T) {
	e, store, db := newTestEngine()
	b := db.(*storage.MemoryDB).NewBatch()
	_, pool := deployOp(t, e, b, 50, "alice")
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	external := mustParse(t, "1000", 18)
	b2 := db.(*storage.MemoryDB).NewBatch()
	if _, err := e.Stake(b2, inscID(6), 50, "carol", "carol", pool.Pid, "200", external); err != nil {
		t.Fatal(err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	b3 := db.(*storage.MemoryDB).NewBatch()
	rcpt, err := e.Unstake(b3, inscID(7), 60, "carol", "carol", pool.Pid, "200")
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("unstake rejected: %s", rcpt.Err)
	}
	if err := b3.Commit(); err != nil {
		t.Fatal(err)
	}

	user, _, _ := store.User(pool.Pid, "carol")
	if user.Staked.Sign() != 0 {
		t.Fatalf("staked should be zero, got %s", user.Staked.String())
	}
	stakeInfo, exists, err := store.Stake("native", "carol")
	if err != nil || !exists {
		t.Fatalf("stake info missing: %v %v", exists, err)
	}
	if len(stakeInfo.PoolStakes) != 0 {
		t.Fatalf("pool_stakes should be empty after full unstake, got %v", stakeInfo.PoolStakes)
	}
}

func TestPassiveUnstakeWithdrawsWhenBalanceDropsBelowStaked(t *testing.T) {
	e, store, db := newTestEngine()
	b := db.(*storage.MemoryDB).NewBatch()
	_, pool := deployOp(t, e, b, 10, "alice")
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	external := mustParse(t, "300", 18)
	b2 := db.(*storage.MemoryDB).NewBatch()
	if _, err := e.Stake(b2, inscID(8), 10, "dave", "dave", pool.Pid, "300", external); err != nil {
		t.Fatal(err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	b3 := db.(*storage.MemoryDB).NewBatch()
	newBalance := mustParse(t, "100", 18)
	receipts, err := e.PassiveUnstake(b3, 20, "dave", StakeKind{Tag: StakeNative}, newBalance)
	if err != nil {
		t.Fatal(err)
	}
	if len(receipts) != 1 || !receipts[0].Ok {
		t.Fatalf("expected one successful passive-unstake receipt, got %+v", receipts)
	}
	if err := b3.Commit(); err != nil {
		t.Fatal(err)
	}

	user, _, _ := store.User(pool.Pid, "dave")
	if user.Staked.String() != "100" {
		t.Fatalf("staked after passive unstake = %s, want 100", user.Staked.String())
	}
}

func TestInscribeTransferThenTransferConsumesRecord(t *testing.T) {
	e, store, db := newTestEngine()
	b := db.(*storage.MemoryDB).NewBatch()
	tick, _ := deployOp(t, e, b, 1, "alice")
	if err := store.PutBalance(b, tick.TickID, "alice", Balance{Overall: mustParse(t, "10", tick.Decimals), Transferable: decimal.Zero(tick.Decimals)}); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}

	b2 := db.(*storage.MemoryDB).NewBatch()
	op := Operation{Proto: "brc20-s", Op: "transfer", TickID: tick.TickID, TickName: tick.TickName, Amt: "5"}
	id := inscID(9)
	rcpt, err := e.InscribeTransfer(b2, id, 2, "alice", op)
	if err != nil {
		t.Fatal(err)
	}
	if !rcpt.Ok {
		t.Fatalf("inscribe-transfer rejected: %s", rcpt.Err)
	}
	if err := b2.Commit(); err != nil {
		t.Fatal(err)
	}

	b3 := db.(*storage.MemoryDB).NewBatch()
	transferRcpt, err := e.Transfer(b3, id, 3, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !transferRcpt.Ok {
		t.Fatalf("transfer rejected: %s", transferRcpt.Err)
	}
	if err := b3.Commit(); err != nil {
		t.Fatal(err)
	}

	aliceBal, err := store.Balance(tick.TickID, "alice", tick.Decimals)
	if err != nil {
		t.Fatal(err)
	}
	if aliceBal.Overall.String() != "5" {
		t.Fatalf("alice overall = %s, want 5", aliceBal.Overall.String())
	}
	bobBal, err := store.Balance(tick.TickID, "bob", tick.Decimals)
	if err != nil {
		t.Fatal(err)
	}
	if bobBal.Overall.String() != "5" {
		t.Fatalf("bob overall = %s, want 5", bobBal.Overall.String())
	}

	// A second transfer against the same (now-consumed) inscription must fail.
	b4 := db.(*storage.MemoryDB).NewBatch()
	again, err := e.Transfer(b4, id, 4, "bob", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if again.Ok {
		t.Fatal("expected not-armed rejection on reused transfer record")
	}
}
