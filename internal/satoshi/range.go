// Package satoshi assigns sat ranges to transaction outputs in input
// order, the core of ordinal theory (SPEC_FULL.md §4.4), grounded on the
// original indexer's Updater::index_transaction_sats.
package satoshi

import (
	"encoding/binary"
	"fmt"

	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// Range is a half-open [Start, End) span of sat ordinal numbers.
type Range struct {
	Start, End uint64
}

// Size returns the number of sats in the range.
func (r Range) Size() uint64 { return r.End - r.Start }

// rangeEncodedSize is the on-disk width of one (start, end) pair: an
// 11-byte varint-ish pair in the original; Go stores two big-endian
// uint64s packed as 8+8=16 bytes here for simplicity and alignment
// (SPEC_FULL.md doesn't mandate wire compatibility with the original).
const rangeEncodedSize = 16

// EncodeRanges serializes a slice of ranges for storage under an outpoint key.
func EncodeRanges(ranges []Range) []byte {
	buf := make([]byte, len(ranges)*rangeEncodedSize)
	for i, r := range ranges {
		off := i * rangeEncodedSize
		binary.BigEndian.PutUint64(buf[off:off+8], r.Start)
		binary.BigEndian.PutUint64(buf[off+8:off+16], r.End)
	}
	return buf
}

// DecodeRanges parses the byte form written by EncodeRanges.
func DecodeRanges(data []byte) ([]Range, error) {
	if len(data)%rangeEncodedSize != 0 {
		return nil, fmt.Errorf("corrupt sat range data: %d bytes not a multiple of %d", len(data), rangeEncodedSize)
	}
	ranges := make([]Range, len(data)/rangeEncodedSize)
	for i := range ranges {
		off := i * rangeEncodedSize
		ranges[i] = Range{
			Start: binary.BigEndian.Uint64(data[off : off+8]),
			End:   binary.BigEndian.Uint64(data[off+8 : off+16]),
		}
	}
	return ranges, nil
}

// AssignOutputs consumes ranges from input (a FIFO queue of the
// transaction's combined input sat ranges) and assigns them to each output
// value in outputValues, in order. It returns, per output index, the
// ranges assigned to that output, and mutates input to reflect what's left
// over (fed forward to the next transaction, or to the coinbase as fees,
// per SPEC_FULL.md §4.4).
//
// A Range is split when it's larger than the remaining room in the
// current output; the leftover goes back to the front of input. An output
// with value 0 (OP_RETURN et al.) consumes nothing.
func AssignOutputs(input *[]Range, outputValues []int64) ([][]Range, error) {
	assigned := make([][]Range, len(outputValues))

	for i, value := range outputValues {
		var remaining uint64
		if value > 0 {
			remaining = uint64(value)
		}
		var out []Range
		for remaining > 0 {
			if len(*input) == 0 {
				return nil, fmt.Errorf("insufficient input sat ranges for transaction outputs")
			}
			r := (*input)[0]
			*input = (*input)[1:]

			count := r.Size()
			var take Range
			if count > remaining {
				middle := r.Start + remaining
				take = Range{Start: r.Start, End: middle}
				*input = append([]Range{{Start: middle, End: r.End}}, *input...)
			} else {
				take = r
			}
			out = append(out, take)
			remaining -= take.Size()
		}
		assigned[i] = out
	}

	return assigned, nil
}

// FirstSat returns the first sat of each assigned range, the ones whose
// non-common rarity gets indexed into sat_to_satpoint (SPEC_FULL.md §3:
// "only non-common sats are individually indexed").
func FirstSat(r Range) ordinal.Sat { return ordinal.Sat(r.Start) }
