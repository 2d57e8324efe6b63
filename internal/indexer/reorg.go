package indexer

import (
	"fmt"

	"github.com/brc20labs/ordindexer/internal/fetcher"
	"github.com/brc20labs/ordindexer/internal/log"
	"github.com/brc20labs/ordindexer/internal/storage"
)

// ErrUnrecoverableReorg is returned when no common ancestor is found
// within the configured ReorgMaxDepth (SPEC_FULL.md §4.8).
type ErrUnrecoverableReorg struct {
	Height   uint64
	MaxDepth int
}

func (e ErrUnrecoverableReorg) Error() string {
	return fmt.Sprintf("reorg at height %d exceeds max depth %d, no common ancestor found", e.Height, e.MaxDepth)
}

// matchesChain reports whether blk's declared parent matches the hash the
// indexer already committed at blk.Height-1. Height 0 has no parent to
// check against.
func (ix *Indexer) matchesChain(blk fetcher.Block) (bool, error) {
	if blk.Height == 0 {
		return true, nil
	}
	stored, err := ix.chain.HashAt(blk.Height - 1)
	if err == storage.ErrNotFound {
		// Nothing committed yet at height-1: this can only happen for the
		// very first block this run processes, which is never a reorg.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return stored == toTxid(blk.Header.PrevBlockHash), nil
}

// recoverReorg scans backward from the conflicting block's height for a
// height where the locally committed hash agrees with the node's canonical
// hash, reverts every committed height above it, and returns the height
// indexing should resume from (SPEC_FULL.md §4.8).
func (ix *Indexer) recoverReorg(height uint64) (uint64, error) {
	maxDepth := ix.cfg.Index.ReorgMaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}

	tip, ok, err := ix.chain.Height()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("reorg detected with an empty index")
	}

	ancestor := uint64(0)
	found := height == 1 // height-1 == 0 means genesis is trivially the ancestor
	if !found {
		candidate := height - 1
		for d := 1; d <= maxDepth && candidate > 0; d++ {
			candidate--
			local, err := ix.chain.HashAt(candidate)
			if err != nil {
				return 0, err
			}
			nodeHash, err := ix.rpc.GetBlockHash(candidate)
			if err != nil {
				return 0, fmt.Errorf("fetching canonical hash at height %d: %w", candidate, err)
			}
			if local == toTxid(nodeHash) {
				ancestor = candidate
				found = true
				break
			}
		}
	}
	if !found {
		return 0, ErrUnrecoverableReorg{Height: height, MaxDepth: maxDepth}
	}

	depth := height - ancestor
	log.Indexer.Warn().
		Uint64("height", height).
		Uint64("ancestor_height", ancestor).
		Uint64("depth", depth).
		Msg("reorg detected, reverting to common ancestor")

	for h := tip; h > ancestor; h-- {
		if err := storage.RevertHeight(ix.batcher, ix.db, h); err != nil {
			return 0, fmt.Errorf("reverting height %d: %w", h, err)
		}
	}

	return ancestor + 1, nil
}
