// Package fetcher runs the two I/O threads that feed the indexing loop: the
// Block Fetcher, which pulls whole blocks ahead of the indexer through a
// bounded channel, and the Prev-Output Prefetcher, which resolves spent
// outputs the index doesn't already know about (SPEC_FULL.md §4.2, §4.3).
package fetcher

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cenkalti/backoff/v4"

	"github.com/brc20labs/ordindexer/internal/btcrpc"
	"github.com/brc20labs/ordindexer/internal/log"
)

// BlockChannelCapacity is the bounded FIFO depth between the fetcher
// goroutine and the indexing loop.
const BlockChannelCapacity = 32

// MaxBackoff caps the exponential retry delay; beyond it a fetch attempt is
// abandoned rather than slept on indefinitely.
const MaxBackoff = 120 * time.Second

// Block is one block pulled off the chain, possibly header-only.
type Block struct {
	Height uint64
	Header btcrpc.BlockHeader
	Txs    []btcrpc.TxWithID // nil when only the header was fetched
}

// BlockFetcher pulls blocks from a Bitcoin node starting at a height and
// streams them to Blocks(). Retries use exponential backoff (1s -> 120s
// cap); construct with Retry: false in tests to fail fast instead.
type BlockFetcher struct {
	rpc    *btcrpc.Client
	out    chan Block
	errs   chan error
	retry  bool
}

// NewBlockFetcher constructs a fetcher against rpc. When retry is false,
// any RPC error is sent to Errors() and the fetcher stops immediately —
// used by tests that want a fetch failure to surface synchronously rather
// than retry for up to two minutes.
func NewBlockFetcher(rpc *btcrpc.Client, retry bool) *BlockFetcher {
	return &BlockFetcher{
		rpc:   rpc,
		out:   make(chan Block, BlockChannelCapacity),
		errs:  make(chan error, 1),
		retry: retry,
	}
}

// Blocks returns the channel blocks are delivered on. It is closed when the
// fetcher stops (height limit reached, no more blocks, or a fatal error).
func (f *BlockFetcher) Blocks() <-chan Block { return f.out }

// Errors returns the channel a fatal fetch error (if any) is reported on.
func (f *BlockFetcher) Errors() <-chan error { return f.errs }

// Run fetches blocks starting at height, up to heightLimit (0 = unbounded),
// fetching full block bodies from firstInscriptionHeight onward or
// immediately if indexSats is set, otherwise only headers. It closes its
// output channel when done; the caller closing the channel early (there is
// none to close, since Run owns it) isn't possible — cancel via stop
// instead.
func (f *BlockFetcher) Run(stop <-chan struct{}, height, heightLimit, firstInscriptionHeight uint64, indexSats bool) {
	defer close(f.out)

	for {
		if heightLimit != 0 && height >= heightLimit {
			return
		}

		select {
		case <-stop:
			return
		default:
		}

		block, ok, err := f.fetchWithRetries(stop, height, indexSats, firstInscriptionHeight)
		if err != nil {
			select {
			case f.errs <- err:
			default:
			}
			return
		}
		if !ok {
			return // chain isn't that tall yet
		}

		select {
		case f.out <- block:
		case <-stop:
			return
		}

		height++
	}
}

func (f *BlockFetcher) fetchWithRetries(stop <-chan struct{}, height uint64, indexSats bool, firstInscriptionHeight uint64) (Block, bool, error) {
	var result Block
	var found bool

	op := func() error {
		hash, err := f.rpc.GetBlockHash(height)
		if err != nil {
			if btcrpc.IsNotFound(err) {
				found = false
				return nil
			}
			return err
		}

		if indexSats || height >= firstInscriptionHeight {
			blk, err := f.rpc.GetBlock(hash)
			if err != nil {
				return err
			}
			result = Block{Height: height, Header: blk.Header, Txs: blk.Txs}
		} else {
			hdr, err := f.rpc.GetBlockHeader(hash)
			if err != nil {
				return err
			}
			result = Block{Height: height, Header: hdr}
		}
		found = true
		return nil
	}

	if !f.retry {
		err := op()
		return result, found, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = MaxBackoff
	bo.MaxElapsedTime = 0 // bounded by MaxInterval cap, not total elapsed time
	bo.Multiplier = 2

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		log.Fetcher.Warn().Err(err).Uint64("height", height).Dur("retry_in", wait).Int("attempt", attempt).Msg("block fetch failed, retrying")
	}

	err := backoff.RetryNotify(func() error {
		select {
		case <-stop:
			return backoff.Permanent(errStopped)
		default:
		}
		return op()
	}, backoff.WithMaxRetries(bo, maxRetries(MaxBackoff)), notify)

	return result, found, err
}

var errStopped = fetchError("fetcher stopped")

type fetchError string

func (e fetchError) Error() string { return string(e) }

// maxRetries bounds the number of doubling-backoff attempts: one per
// doubling of 1s that stays within cap (1s, 2s, 4s, ..., 64s, i.e. 7 for a
// 120s cap); the first interval that would exceed cap is not counted.
func maxRetries(cap time.Duration) uint64 {
	var n uint64
	for d := time.Second; d <= cap; d *= 2 {
		n++
	}
	return n
}

// BlockHash is a convenience re-export so callers needn't import
// chainhash directly just to reference fetched header hashes.
type BlockHash = chainhash.Hash
