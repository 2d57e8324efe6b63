package fetcher

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/brc20labs/ordindexer/internal/btcrpc"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// PrefetchBatchSize is how many missing outpoints are grouped into one
// round of parallel RPC calls.
const PrefetchBatchSize = 2048

// PrefetchParallelism is the number of concurrent getrawtransaction calls
// issued per batch; bitcoind's default rpcworkqueue is 16, so this stays
// comfortably under it to leave room for other RPC traffic.
const PrefetchParallelism = 12

// PrefetchChannelCapacity bounds the response channel. No block observed so
// far needs more outpoints resolved than this in flight at once.
const PrefetchChannelCapacity = 20_000

// TxOut is the subset of a previous output the sat tracker and inscription
// updater need: value and script.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// Prefetcher resolves previous-outputs not already known to the index by
// batching getrawtransaction calls across a small worker pool.
type Prefetcher struct {
	rpc *btcrpc.Client

	requests  chan ordinal.Outpoint
	responses chan outResult
}

type outResult struct {
	outpoint ordinal.Outpoint
	out      TxOut
	err      error
}

// NewPrefetcher starts the prefetcher's background worker loop.
func NewPrefetcher(rpc *btcrpc.Client) *Prefetcher {
	p := &Prefetcher{
		rpc:       rpc,
		requests:  make(chan ordinal.Outpoint, PrefetchChannelCapacity),
		responses: make(chan outResult, PrefetchChannelCapacity),
	}
	go p.run()
	return p
}

// Request enqueues an outpoint whose TxOut is not yet known. Safe to call
// from the indexing loop between batches; Response must be drained in the
// same request order the loop issued Requests, per the "receive channel
// empty at the start of each block" invariant (SPEC_FULL.md §4.3).
func (p *Prefetcher) Request(o ordinal.Outpoint) {
	p.requests <- o
}

// Response blocks for the next resolved TxOut, in request order.
func (p *Prefetcher) Response() (TxOut, error) {
	r := <-p.responses
	return r.out, r.err
}

// PendingEmpty reports whether the response channel currently has nothing
// buffered — checked at the start of each block per the spec's channel
// invariant; a non-empty channel here means the previous block left
// prefetch work unconsumed, a programming error.
func (p *Prefetcher) PendingEmpty() bool {
	return len(p.responses) == 0
}

// Close stops the background worker loop. Only safe once every Request
// already issued has had its Response drained; used when abandoning a
// prefetcher on a reorg restart rather than leaking its goroutine.
func (p *Prefetcher) Close() {
	close(p.requests)
}

func (p *Prefetcher) run() {
	for first := range p.requests {
		batch := []ordinal.Outpoint{first}
		for len(batch) < PrefetchBatchSize {
			select {
			case o := <-p.requests:
				batch = append(batch, o)
			default:
				goto full
			}
		}
	full:
		p.resolveBatch(batch)
	}
}

func (p *Prefetcher) resolveBatch(batch []ordinal.Outpoint) {
	chunkSize := (len(batch) / PrefetchParallelism) + 1

	var wg sync.WaitGroup
	results := make([]outResult, len(batch))

	for start := 0; start < len(batch); start += chunkSize {
		end := start + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]
		offset := start

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, o := range chunk {
				// o.Txid stores bytes in bitcoind's display order;
				// chainhash.Hash is wire (reversed) order, so this must
				// go through the string form rather than a raw byte copy.
				txid, err := chainhash.NewHashFromStr(o.Txid.String())
				if err != nil {
					results[offset+i] = outResult{outpoint: o, err: err}
					continue
				}
				tx, err := p.rpc.GetRawTransaction(*txid)
				if err != nil {
					results[offset+i] = outResult{outpoint: o, err: fmt.Errorf("fetching prev tx %s: %w", o.Txid, err)}
					continue
				}
				if int(o.Vout) >= len(tx.TxOut) {
					results[offset+i] = outResult{outpoint: o, err: fmt.Errorf("outpoint %s: vout out of range", o)}
					continue
				}
				txOut := tx.TxOut[o.Vout]
				results[offset+i] = outResult{outpoint: o, out: TxOut{Value: txOut.Value, PkScript: txOut.PkScript}}
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		p.responses <- r
	}
}
