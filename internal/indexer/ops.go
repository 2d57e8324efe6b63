package indexer

import (
	"strconv"

	"github.com/btcsuite/btcd/wire"

	"github.com/brc20labs/ordindexer/internal/brc20"
	"github.com/brc20labs/ordindexer/internal/brc20s"
	"github.com/brc20labs/ordindexer/internal/inscription"
	"github.com/brc20labs/ordindexer/internal/receipt"
	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// applyOperation routes one inscription operation the updater produced
// to the BRC-20 or BRC-20-S engine it belongs to, if any, and records a
// receipt for every attempt (SPEC_FULL.md §4.6, §4.9). A plain inscription
// with no recognized protocol body, or one that landed with no owning
// script (unbound or lost to fees), produces no receipt.
func (ix *Indexer) applyOperation(
	b storage.Batch,
	height uint64,
	isCoinbase bool,
	tx *wire.MsgTx,
	op inscription.Op,
	scriptOf map[ordinal.Outpoint][]byte,
	seq *uint64,
) error {
	switch op.Action {
	case inscription.ActionNew:
		return ix.applyNewInscription(b, height, tx, op, seq)
	case inscription.ActionTransfer:
		return ix.applyTransfer(b, height, isCoinbase, tx, op, scriptOf, seq)
	}
	return nil
}

func (ix *Indexer) applyNewInscription(b storage.Batch, height uint64, tx *wire.MsgTx, op inscription.Op, seq *uint64) error {
	ix.pending.Inscriptions++
	if op.Cursed {
		ix.pending.Cursed++
	}

	if op.NewSatpoint.IsUnbound() {
		return nil
	}
	owner := scriptKey(tx.TxOut[op.NewSatpoint.Outpoint.Vout].PkScript)

	if brcOp, err := brc20.ParseOperation(op.ContentType, op.Body); err == nil {
		return ix.applyBRC20New(b, height, op.InscriptionId, owner, brcOp, seq)
	}
	if sOp, err := brc20s.ParseOperation(op.ContentType, op.Body); err == nil {
		return ix.applyBRC20SNew(b, height, op.InscriptionId, owner, sOp, seq)
	}
	return nil
}

func (ix *Indexer) applyBRC20New(b storage.Batch, height uint64, id ordinal.InscriptionId, owner string, op brc20.Operation, seq *uint64) error {
	var r brc20.Receipt
	var err error
	switch op.Op {
	case "deploy":
		r, err = ix.brcEng.Deploy(b, id, height, owner, op)
	case "mint":
		r, err = ix.brcEng.Mint(b, id, height, owner, op)
	case "transfer":
		r, err = ix.brcEng.InscribeTransfer(b, id, height, owner, op)
		if err == nil && r.Ok {
			if perr := ix.passiveUnstakeBRC20(b, height, op.Tick, owner, seq); perr != nil {
				return perr
			}
		}
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return ix.recordBRC20(b, id.Txid, seq, r)
}

func (ix *Indexer) applyBRC20SNew(b storage.Batch, height uint64, id ordinal.InscriptionId, owner string, op brc20s.Operation, seq *uint64) error {
	var r brc20s.Receipt
	var err error
	switch op.Op {
	case "deploy":
		r, err = ix.sEng.Deploy(b, id, height, owner, owner, op)
	case "stake", "deposit":
		externalBalance := decimal.Zero(0)
		if pool, exists, perr := ix.sStore.Pool(op.Pid); perr != nil {
			return perr
		} else if exists {
			externalBalance, err = ix.stakeExternalBalance(pool.StakeKind, owner, pool.Minted.Decimals())
			if err != nil {
				return err
			}
		}
		r, err = ix.sEng.Stake(b, id, height, owner, owner, op.Pid, op.Amt, externalBalance)
	case "unstake", "withdraw":
		r, err = ix.sEng.Unstake(b, id, height, owner, owner, op.Pid, op.Amt)
	case "mint":
		r, err = ix.sEng.Mint(b, id, height, owner, owner, op.Pid, op.Amt)
	case "transfer":
		r, err = ix.sEng.InscribeTransfer(b, id, height, owner, op)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return ix.recordBRC20S(b, id.Txid, seq, r)
}

// applyTransfer completes a two-step BRC-20 / BRC-20-S transfer when an
// already-armed inscription moves to a new owner. from is resolved from
// the same-block map of outpoints this block has already spent, built as
// indexTransaction walked every transaction's inputs in order: the tx
// that originally armed or last received this inscription always spent
// it as one of its own inputs earlier in this same block, or in an
// earlier block (in which case the only move possible now is the one
// this transaction itself performs, and OldSatpoint.Outpoint is one of
// this very transaction's inputs).
func (ix *Indexer) applyTransfer(
	b storage.Batch,
	height uint64,
	isCoinbase bool,
	tx *wire.MsgTx,
	op inscription.Op,
	scriptOf map[ordinal.Outpoint][]byte,
	seq *uint64,
) error {
	if op.OldSatpoint == nil {
		return nil
	}
	fromScript, ok := scriptOf[op.OldSatpoint.Outpoint]
	if !ok {
		return nil // origin owner unresolvable (pre-dates this run); nothing to reconcile
	}
	from := scriptKey(fromScript)

	to := ""
	if !op.NewSatpoint.IsUnbound() {
		to = scriptKey(tx.TxOut[op.NewSatpoint.Outpoint.Vout].PkScript)
	}

	if rec, armed, err := ix.brcStore.TransferRecord(op.InscriptionId); err != nil {
		return err
	} else if armed {
		r, err := ix.brcEng.Transfer(b, op.InscriptionId, height, from, to, isCoinbase || to == "")
		if err != nil {
			return err
		}
		_ = rec
		return ix.recordBRC20(b, op.InscriptionId.Txid, seq, r)
	}

	if _, armed, err := ix.sStore.TransferRecord(op.InscriptionId); err != nil {
		return err
	} else if armed {
		r, err := ix.sEng.Transfer(b, op.InscriptionId, height, from, to)
		if err != nil {
			return err
		}
		return ix.recordBRC20S(b, op.InscriptionId.Txid, seq, r)
	}

	return nil
}

// stakeExternalBalance resolves stake_kind_balance(user) for pool's stake
// kind (SPEC_FULL.md §4.7): the script's unspent native sat total, its
// overall BRC-20 balance, or (unreachable while GateAt disallows
// BRC-20-S-on-BRC-20-S staking) a zero placeholder.
func (ix *Indexer) stakeExternalBalance(kind brc20s.StakeKind, script string, decimals uint8) (decimal.Num, error) {
	switch kind.Tag {
	case brc20s.StakeNative:
		sats, err := ix.sStore.NativeBalance(script)
		if err != nil {
			return decimal.Num{}, err
		}
		return decimal.Parse(strconv.FormatUint(sats, 10), decimals)
	case brc20s.StakeBRC20:
		bal, err := ix.brcStore.Balance(kind.Tick, script, decimals)
		if err != nil {
			return decimal.Num{}, err
		}
		return bal.Overall, nil
	default:
		return decimal.Zero(decimals), nil
	}
}

// passiveUnstakeNative synthesizes unstake events for script's native
// stake positions after its unspent sat total has just dropped (a spend
// debited NativeBalance) — SPEC_FULL.md §4.7 "Passive-unstake".
func (ix *Indexer) passiveUnstakeNative(b storage.Batch, height uint64, txid ordinal.Txid, script string, seq *uint64) error {
	kind := brc20s.StakeKind{Tag: brc20s.StakeNative}
	return ix.passiveUnstake(b, height, txid, script, kind, seq)
}

// passiveUnstakeBRC20 mirrors passiveUnstakeNative for a script whose
// overall balance of tick just dropped (armed for transfer).
func (ix *Indexer) passiveUnstakeBRC20(b storage.Batch, height uint64, tick, script string, seq *uint64) error {
	kind := brc20s.StakeKind{Tag: brc20s.StakeBRC20, Tick: tick}
	return ix.passiveUnstake(b, height, ordinal.Txid{}, script, kind, seq)
}

func (ix *Indexer) passiveUnstake(b storage.Batch, height uint64, txid ordinal.Txid, script string, kind brc20s.StakeKind, seq *uint64) error {
	stakeInfo, exists, err := ix.sStore.Stake(kind.String(), script)
	if err != nil || !exists || len(stakeInfo.PoolStakes) == 0 {
		return err
	}

	newBalance, err := ix.stakeExternalBalance(kind, script, stakeInfo.TotalOnly.Decimals())
	if err != nil {
		return err
	}
	receipts, err := ix.sEng.PassiveUnstake(b, height, script, kind, newBalance)
	if err != nil {
		return err
	}
	for _, r := range receipts {
		if err := ix.recordBRC20S(b, txid, seq, r); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) recordBRC20(b storage.Batch, txid ordinal.Txid, seq *uint64, r brc20.Receipt) error {
	rr := receipt.Receipt{
		Engine: receipt.EngineBRC20, Op: r.Op, InscriptionId: r.InscriptionId,
		From: r.From, To: r.To, Height: r.Height, Ok: r.Ok, Event: r.Event, Err: r.Err,
	}
	if err := ix.receipts.Append(b, txid, *seq, rr); err != nil {
		return err
	}
	*seq++
	if rr.Ok {
		ix.pending.BRC20Txs++
	}
	return nil
}

func (ix *Indexer) recordBRC20S(b storage.Batch, txid ordinal.Txid, seq *uint64, r brc20s.Receipt) error {
	rr := receipt.Receipt{
		Engine: receipt.EngineBRC20S, Op: r.Op, InscriptionId: r.InscriptionId,
		From: r.From, To: r.To, Height: r.Height, Ok: r.Ok, Event: r.Event, Err: r.Err,
	}
	if err := ix.receipts.Append(b, txid, *seq, rr); err != nil {
		return err
	}
	*seq++
	if rr.Ok {
		ix.pending.BRC20STxs++
	}
	return nil
}
