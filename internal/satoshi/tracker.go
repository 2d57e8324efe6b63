package satoshi

import (
	"fmt"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

var (
	prefixOutpointToSatRanges = []byte("s/o2r/") // outpoint -> encoded []Range
	prefixSatToSatpoint       = []byte("s/s2p/") // sat(8) -> satpoint
	keyLostSats               = []byte("s/stat/lost")
)

// Tracker assigns and persists sat ranges across a run of transactions. It
// keeps a small in-memory cache of ranges produced earlier in the same
// block (range_cache in the original), so an output spent later in the
// same block never round-trips through storage.
type Tracker struct {
	db    storage.DB
	cache map[ordinal.Outpoint][]Range

	// lostSats accumulates sats burned by outputs with no claimant (an
	// unrecognized OP_RETURN, excess fees beyond what outputs consume,
	// etc). It is seeded from storage at NewTracker and flushed back on
	// every AddLostSats call.
	lostSats uint64
}

// NewTracker opens a tracker over db, restoring the running lost-sats
// counter.
func NewTracker(db storage.DB) (*Tracker, error) {
	t := &Tracker{db: db, cache: make(map[ordinal.Outpoint][]Range)}
	data, err := db.Get(keyLostSats)
	if err == storage.ErrNotFound {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 8 {
		t.lostSats = be64(data)
	}
	return t, nil
}

// LostSats returns the running total of unclaimed sats.
func (t *Tracker) LostSats() uint64 { return t.lostSats }

// InputRanges retrieves the sat ranges consumed by spending outpoint,
// preferring the in-block cache, then falling back to storage. The entry
// is removed either way: a UTXO is spent exactly once. The removal goes
// through b, not a direct t.db.Delete, so it lands in the same undo log
// as the rest of the block's writes and a reorg can restore it.
func (t *Tracker) InputRanges(b storage.Batch, outpoint ordinal.Outpoint) ([]Range, error) {
	if ranges, ok := t.cache[outpoint]; ok {
		delete(t.cache, outpoint)
		return ranges, nil
	}
	data, err := t.db.Get(outpointKey(outpoint))
	if err == storage.ErrNotFound {
		return nil, fmt.Errorf("could not find outpoint %s in sat range index", outpoint)
	}
	if err != nil {
		return nil, err
	}
	if err := b.Delete(outpointKey(outpoint)); err != nil {
		return nil, err
	}
	return DecodeRanges(data)
}

// CacheOutput stashes freshly assigned ranges for an output created
// earlier in the same block, so a same-block spend doesn't need storage.
func (t *Tracker) CacheOutput(outpoint ordinal.Outpoint, ranges []Range) {
	t.cache[outpoint] = ranges
}

// FlushUncachedOutputs writes every output still sitting in the in-memory
// cache at the end of a block (outputs not spent within the same block)
// and clears the cache.
func (t *Tracker) FlushUncachedOutputs(b storage.Batch) error {
	for outpoint, ranges := range t.cache {
		if err := b.Put(outpointKey(outpoint), EncodeRanges(ranges)); err != nil {
			return err
		}
	}
	t.cache = make(map[ordinal.Outpoint][]Range)
	return nil
}

// RecordSatpoint indexes a non-common sat's current location. Common sats
// are never indexed individually (SPEC_FULL.md §3).
func (t *Tracker) RecordSatpoint(b storage.Batch, sat ordinal.Sat, sp ordinal.SatPoint) error {
	if sat.IsCommon() {
		return nil
	}
	return b.Put(satKey(sat), sp.Bytes())
}

// Satpoint looks up the current location of a tracked (non-common) sat.
func (t *Tracker) Satpoint(sat ordinal.Sat) (ordinal.SatPoint, bool, error) {
	data, err := t.db.Get(satKey(sat))
	if err == storage.ErrNotFound {
		return ordinal.SatPoint{}, false, nil
	}
	if err != nil {
		return ordinal.SatPoint{}, false, err
	}
	sp, err := ordinal.ParseSatPointBytes(data)
	return sp, true, err
}

// AddLostSats accumulates the sats in r, which had no output to receive
// them (fees beyond what the coinbase range covers, or an unrecognized
// destination). The first sat of any non-common lost range is recorded
// against the null outpoint with an incrementing offset, matching how the
// original distinguishes individually lost sats from common ones.
func (t *Tracker) AddLostSats(b storage.Batch, r Range) error {
	if !ordinal.Sat(r.Start).IsCommon() {
		sp := ordinal.SatPoint{Outpoint: ordinal.NullOutpoint, Offset: t.lostSats}
		if err := b.Put(satKey(ordinal.Sat(r.Start)), sp.Bytes()); err != nil {
			return err
		}
	}
	t.lostSats += r.Size()
	return b.Put(keyLostSats, be64Bytes(t.lostSats))
}

func outpointKey(o ordinal.Outpoint) []byte {
	key := make([]byte, len(prefixOutpointToSatRanges)+36)
	copy(key, prefixOutpointToSatRanges)
	n := copy(key[len(prefixOutpointToSatRanges):], o.Txid.Bytes())
	putBE32(key[len(prefixOutpointToSatRanges)+n:], o.Vout)
	return key
}

func satKey(s ordinal.Sat) []byte {
	key := make([]byte, len(prefixSatToSatpoint)+8)
	copy(key, prefixSatToSatpoint)
	copy(key[len(prefixSatToSatpoint):], be64Bytes(uint64(s)))
	return key
}

func putBE32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

func be64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func be64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(v >> (8 * i))
	}
	return buf
}
