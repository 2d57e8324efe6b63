// Package indexer wires the block fetcher, the inscription updater, the
// sat tracker, and the BRC-20 / BRC-20-S engines into the single-writer
// loop that turns a stream of Bitcoin blocks into the ledgers the read
// API serves (SPEC_FULL.md §4.1, §5).
package indexer

import (
	"fmt"
	"sync"

	"github.com/brc20labs/ordindexer/config"
	"github.com/brc20labs/ordindexer/internal/brc20"
	"github.com/brc20labs/ordindexer/internal/brc20s"
	"github.com/brc20labs/ordindexer/internal/btcrpc"
	"github.com/brc20labs/ordindexer/internal/chainstate"
	"github.com/brc20labs/ordindexer/internal/fetcher"
	"github.com/brc20labs/ordindexer/internal/inscription"
	"github.com/brc20labs/ordindexer/internal/log"
	"github.com/brc20labs/ordindexer/internal/receipt"
	"github.com/brc20labs/ordindexer/internal/satoshi"
	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// Indexer drives the chain from wherever it left off, one block at a
// time, applying every table update inside a single RecordingBatch per
// commit window.
type Indexer struct {
	cfg     *config.Config
	rpc     *btcrpc.Client
	db      storage.DB
	batcher storage.Batcher

	chain    *chainstate.Store
	inscr    *inscription.Store
	brcStore *brc20.Store
	brcEng   *brc20.Engine
	sStore   *brc20s.Store
	sEng     *brc20s.Engine
	sat      *satoshi.Tracker
	receipts *receipt.Store

	// persisted holds the counters last flushed to storage; pending
	// accumulates deltas produced by blocks indexed since then. Flushing
	// writes persisted+pending as an absolute value and folds pending
	// back into persisted, rather than re-deriving from storage on every
	// block the way chainstate.IncrCounter does — IncrCounter's
	// read-modify-write reads from the plain DB, which still reflects
	// the state before the open batch for every block in a multi-block
	// commit window, so successive calls would clobber each other
	// instead of accumulating.
	persisted chainstate.Stats
	pending   chainstate.Stats
}

// New opens every table store over db and restores the running stat
// counters chain already has committed.
func New(cfg *config.Config, db storage.DB, batcher storage.Batcher, rpc *btcrpc.Client) (*Indexer, error) {
	chain, err := chainstate.Open(db)
	if err != nil {
		return nil, fmt.Errorf("opening chainstate: %w", err)
	}
	stats, err := chain.Stats()
	if err != nil {
		return nil, fmt.Errorf("reading chainstate stats: %w", err)
	}
	sat, err := satoshi.NewTracker(db)
	if err != nil {
		return nil, fmt.Errorf("opening sat tracker: %w", err)
	}

	brcStore := brc20.NewStore(db)
	sStore := brc20s.NewStore(db)

	return &Indexer{
		cfg:       cfg,
		rpc:       rpc,
		db:        db,
		batcher:   batcher,
		chain:     chain,
		inscr:     inscription.NewStore(db),
		brcStore:  brcStore,
		brcEng:    brc20.NewEngine(brcStore),
		sStore:    sStore,
		sEng:      brc20s.NewEngine(sStore),
		sat:       sat,
		receipts:  receipt.NewStore(db),
		persisted: stats,
	}, nil
}

// Run indexes blocks until stop closes or the fetcher runs out of new
// blocks (reaching cfg.Index.HeightLimit, most commonly). It restarts its
// own fetcher/prefetcher pair from the recovered height whenever a reorg
// is found, and returns nil on an ordinary stop.
func (ix *Indexer) Run(stop <-chan struct{}) error {
	height, ok, err := ix.chain.Height()
	if err != nil {
		return err
	}
	next := uint64(0)
	if ok {
		next = height + 1
	}

	for {
		restart, resume, err := ix.runFrom(stop, next)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		next = resume
	}
}

// runFrom drives the fetcher/prefetcher pair starting at height until a
// stop, a clean fetcher exhaustion, a fatal error, or a reorg. A reorg
// return (restart=true) carries the height the caller should resume
// from; runFrom has already reverted storage and rebuilt ix.sat by then.
func (ix *Indexer) runFrom(outerStop <-chan struct{}, height uint64) (restart bool, resume uint64, err error) {
	localStop := make(chan struct{})
	var once sync.Once
	stopLocal := func() { once.Do(func() { close(localStop) }) }
	defer stopLocal()

	go func() {
		select {
		case <-outerStop:
			stopLocal()
		case <-localStop:
		}
	}()

	bf := fetcher.NewBlockFetcher(ix.rpc, true)
	go bf.Run(localStop, height, ix.cfg.Index.HeightLimit, ix.cfg.FirstInscriptionHeight(), ix.cfg.Index.SatIndex)

	pf := fetcher.NewPrefetcher(ix.rpc)
	defer pf.Close()

	batch := storage.NewRecordingBatch(ix.db, ix.batcher.NewBatch())
	open := 0

	commit := func() error {
		if open == 0 {
			return nil
		}
		ix.flushStats(batch)
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("committing batch: %w", err)
		}
		ix.persisted = addStats(ix.persisted, ix.pending)
		ix.pending = chainstate.Stats{}
		open = 0
		batch = storage.NewRecordingBatch(ix.db, ix.batcher.NewBatch())
		return nil
	}

	commitEvery := ix.cfg.Index.CommitInterval
	if commitEvery <= 0 {
		commitEvery = 1
	}

	for {
		select {
		case blk, ok := <-bf.Blocks():
			if !ok {
				select {
				case err := <-bf.Errors():
					if err != nil {
						return false, 0, err
					}
				default:
				}
				if err := commit(); err != nil {
					return false, 0, err
				}
				return false, 0, nil
			}

			matched, err := ix.matchesChain(blk)
			if err != nil {
				return false, 0, err
			}
			if !matched {
				if err := commit(); err != nil {
					return false, 0, err
				}
				stopLocal()
				at, err := ix.recoverReorg(blk.Height)
				if err != nil {
					return false, 0, err
				}
				tracker, err := satoshi.NewTracker(ix.db)
				if err != nil {
					return false, 0, err
				}
				ix.sat = tracker
				return true, at, nil
			}

			if !pf.PendingEmpty() {
				log.Indexer.Warn().Uint64("height", blk.Height).Msg("prefetcher response backlog at block start")
			}

			batch.BeginHeight(blk.Height)
			if err := ix.indexBlock(batch, blk, pf); err != nil {
				return false, 0, fmt.Errorf("indexing block %d: %w", blk.Height, err)
			}
			open++

			if open >= commitEvery {
				if err := commit(); err != nil {
					return false, 0, err
				}
			}

		case <-outerStop:
			if err := commit(); err != nil {
				return false, 0, err
			}
			return false, 0, nil
		}
	}
}

func addStats(a, b chainstate.Stats) chainstate.Stats {
	return chainstate.Stats{
		BlocksIndexed: a.BlocksIndexed + b.BlocksIndexed,
		Inscriptions:  a.Inscriptions + b.Inscriptions,
		Cursed:        a.Cursed + b.Cursed,
		BRC20Txs:      a.BRC20Txs + b.BRC20Txs,
		BRC20STxs:     a.BRC20STxs + b.BRC20STxs,
	}
}

// flushStats writes the absolute post-batch counters, replacing whatever
// chainstate.IncrCounter would have read-modify-written.
func (ix *Indexer) flushStats(b storage.Batch) {
	total := addStats(ix.persisted, ix.pending)
	_ = b.Put(chainstate.KeyBlocksIndexed, beUint64(total.BlocksIndexed))
	_ = b.Put(chainstate.KeyInscriptions, beUint64(total.Inscriptions))
	_ = b.Put(chainstate.KeyCursed, beUint64(total.Cursed))
	_ = b.Put(chainstate.KeyBRC20Txs, beUint64(total.BRC20Txs))
	_ = b.Put(chainstate.KeyBRC20STxs, beUint64(total.BRC20STxs))
}

func beUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(v >> (8 * i))
	}
	return buf
}

// indexBlock applies one block's transactions (coinbase last, per
// SPEC_FULL.md §4.1/§4.5), then records the block itself.
func (ix *Indexer) indexBlock(b storage.Batch, blk fetcher.Block, pf *fetcher.Prefetcher) error {
	hash := toTxid(blk.Header.Hash)

	if blk.Txs == nil {
		// Header-only block: below the first-inscription height with
		// sat indexing disabled, nothing below needs it.
		return chainstate.PutBlock(b, blk.Height, hash)
	}

	updater, err := inscription.NewUpdater(ix.inscr, blk.Height, blk.Header.Time)
	if err != nil {
		return err
	}

	// Issue every previous-output request for the whole block up front,
	// in the exact order indexTransaction will later drain Response():
	// non-coinbase transactions, in order, inputs in order.
	for i := 1; i < len(blk.Txs); i++ {
		for _, in := range blk.Txs[i].Tx.TxIn {
			pf.Request(ordinal.Outpoint{Txid: toTxid(in.PreviousOutPoint.Hash), Vout: in.PreviousOutPoint.Index})
		}
	}

	var feeRanges []satoshi.Range
	scriptOf := make(map[ordinal.Outpoint][]byte)

	order := make([]int, 0, len(blk.Txs))
	for i := 1; i < len(blk.Txs); i++ {
		order = append(order, i)
	}
	order = append(order, 0)

	for _, i := range order {
		isCoinbase := i == 0
		if err := ix.indexTransaction(b, updater, blk.Height, blk.Txs[i], isCoinbase, pf, &feeRanges, scriptOf); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	if err := updater.Flush(b); err != nil {
		return err
	}
	if err := ix.sat.FlushUncachedOutputs(b); err != nil {
		return err
	}

	ix.pending.BlocksIndexed++
	return chainstate.PutBlock(b, blk.Height, hash)
}

// indexTransaction resolves one transaction's inputs and sat ranges,
// drives the inscription updater, keeps the native-sat ledger current,
// and applies every resulting inscription operation to the BRC-20 /
// BRC-20-S engines.
func (ix *Indexer) indexTransaction(
	b storage.Batch,
	updater *inscription.Updater,
	height uint64,
	twid btcrpc.TxWithID,
	isCoinbase bool,
	pf *fetcher.Prefetcher,
	feeRanges *[]satoshi.Range,
	scriptOf map[ordinal.Outpoint][]byte,
) error {
	tx := twid.Tx
	txid := toTxid(twid.Txid)

	inputOutpoints := make([]ordinal.Outpoint, len(tx.TxIn))
	inputValues := make([]int64, len(tx.TxIn))
	inputScripts := make([][]byte, len(tx.TxIn))
	var inputRanges []satoshi.Range

	if isCoinbase {
		if ix.cfg.Index.SatIndex {
			subsidy := ordinal.Height(height).Subsidy()
			if subsidy > 0 {
				start := uint64(ordinal.Height(height).StartingSat())
				inputRanges = append(inputRanges, satoshi.Range{Start: start, End: start + subsidy})
			}
			inputRanges = append(inputRanges, *feeRanges...)
			*feeRanges = nil
		}
	} else {
		for i, in := range tx.TxIn {
			op := ordinal.Outpoint{Txid: toTxid(in.PreviousOutPoint.Hash), Vout: in.PreviousOutPoint.Index}
			inputOutpoints[i] = op

			out, err := pf.Response()
			if err != nil {
				return fmt.Errorf("resolving input %d (%s): %w", i, op, err)
			}
			inputValues[i] = out.Value
			inputScripts[i] = out.PkScript
			scriptOf[op] = out.PkScript

			if ix.cfg.Index.SatIndex {
				ranges, err := ix.sat.InputRanges(b, op)
				if err != nil {
					return fmt.Errorf("input ranges for %s: %w", op, err)
				}
				inputRanges = append(inputRanges, ranges...)
			}
		}
	}

	outputValues := make([]int64, len(tx.TxOut))
	for i, o := range tx.TxOut {
		outputValues[i] = o.Value
	}

	envelopes := inscription.ExtractEnvelopes(tx)

	var calculateSat inscription.CalculateSat
	var assigned [][]satoshi.Range
	if ix.cfg.Index.SatIndex {
		var err error
		assigned, err = satoshi.AssignOutputs(&inputRanges, outputValues)
		if err != nil {
			return fmt.Errorf("assigning sat ranges: %w", err)
		}

		offsetStart := make([]uint64, len(outputValues)+1)
		for i, v := range outputValues {
			vv := v
			if vv < 0 {
				vv = 0
			}
			offsetStart[i+1] = offsetStart[i] + uint64(vv)
		}
		calculateSat = func(offset uint64) (ordinal.Sat, bool) {
			for vout, ranges := range assigned {
				if offset < offsetStart[vout] || offset >= offsetStart[vout+1] {
					continue
				}
				within := offset - offsetStart[vout]
				var cum uint64
				for _, r := range ranges {
					if within < cum+r.Size() {
						return ordinal.Sat(r.Start + (within - cum)), true
					}
					cum += r.Size()
				}
			}
			return 0, false
		}

		// inputRanges now holds whatever AssignOutputs didn't consume:
		// a non-coinbase tx's leftover becomes fee income carried to the
		// eventual coinbase; the coinbase's own leftover is truly lost.
		if isCoinbase {
			for _, r := range inputRanges {
				if err := ix.sat.AddLostSats(b, r); err != nil {
					return err
				}
			}
		} else {
			*feeRanges = append(*feeRanges, inputRanges...)
		}
	}

	before := len(updater.Operations)
	if err := updater.IndexTransaction(b, txid, inputOutpoints, inputValues, outputValues, envelopes, isCoinbase, calculateSat); err != nil {
		return err
	}

	// Cache each of this transaction's own outputs for a later same-block
	// spend, persist non-common sat locations, and keep the native-sat
	// ledger (stake_kind_balance for StakeNative) current.
	for vout, value := range outputValues {
		op := ordinal.Outpoint{Txid: txid, Vout: uint32(vout)}
		if ix.cfg.Index.SatIndex {
			ranges := assigned[vout]
			ix.sat.CacheOutput(op, ranges)
			var cum uint64
			for _, r := range ranges {
				first := satoshi.FirstSat(r)
				if err := ix.sat.RecordSatpoint(b, first, ordinal.SatPoint{Outpoint: op, Offset: cum}); err != nil {
					return err
				}
				cum += r.Size()
			}
		}
		if value > 0 {
			script := scriptKey(tx.TxOut[vout].PkScript)
			if err := ix.sStore.CreditNative(b, script, uint64(value)); err != nil {
				return err
			}
		}
	}

	seq := uint64(0)
	if !isCoinbase {
		for i, v := range inputValues {
			if v > 0 {
				script := scriptKey(inputScripts[i])
				if err := ix.sStore.DebitNative(b, script, uint64(v)); err != nil {
					return err
				}
				if err := ix.passiveUnstakeNative(b, height, txid, script, &seq); err != nil {
					return err
				}
			}
		}
	}

	for _, op := range updater.Operations[before:] {
		if err := ix.applyOperation(b, height, isCoinbase, tx, op, scriptOf, &seq); err != nil {
			return fmt.Errorf("applying inscription op for %s: %w", op.InscriptionId, err)
		}
	}

	return nil
}
