package ordinal

import (
	"fmt"
	"strconv"
	"strings"
)

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	Txid  Txid   `json:"txid"`
	Vout  uint32 `json:"vout"`
}

// NullOutpoint is the reserved all-zero-txid outpoint that owns every
// unbound inscription and every lost sat.
var NullOutpoint = Outpoint{}

// IsNull reports whether this is the reserved unbound/lost-sat outpoint.
func (o Outpoint) IsNull() bool {
	return o.Txid.IsZero() && o.Vout == 0
}

// String returns "txid:vout".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid.String(), o.Vout)
}

// ParseOutpoint parses a "txid:vout" string.
func ParseOutpoint(s string) (Outpoint, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Outpoint{}, fmt.Errorf("invalid outpoint %q: missing ':'", s)
	}
	txid, err := HexToTxid(s[:i])
	if err != nil {
		return Outpoint{}, fmt.Errorf("invalid outpoint %q: %w", s, err)
	}
	vout, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("invalid outpoint %q: %w", s, err)
	}
	return Outpoint{Txid: txid, Vout: uint32(vout)}, nil
}

// SatPoint is the position of a single satoshi within a UTXO: the
// outpoint holding it plus the offset in satoshis from the start of
// that output's value.
type SatPoint struct {
	Outpoint Outpoint `json:"outpoint"`
	Offset   uint64   `json:"offset"`
}

// UnboundSatPoint builds the satpoint of the n-th unbound inscription.
func UnboundSatPoint(n uint64) SatPoint {
	return SatPoint{Outpoint: NullOutpoint, Offset: n}
}

// IsUnbound reports whether this satpoint lives at the reserved null outpoint.
func (s SatPoint) IsUnbound() bool {
	return s.Outpoint.IsNull()
}

// String returns "txid:vout:offset".
func (s SatPoint) String() string {
	return fmt.Sprintf("%s:%d", s.Outpoint.String(), s.Offset)
}

// satPointSize is the fixed on-disk width of an encoded SatPoint: a 32-byte
// txid, a 4-byte vout, and an 8-byte offset.
const satPointSize = 32 + 4 + 8

// Bytes encodes the satpoint as a fixed-width big-endian record.
func (s SatPoint) Bytes() []byte {
	buf := make([]byte, satPointSize)
	copy(buf[:32], s.Outpoint.Txid.Bytes())
	putUint32(buf[32:36], s.Outpoint.Vout)
	putUint64(buf[36:44], s.Offset)
	return buf
}

// ParseSatPointBytes decodes the fixed-width record written by Bytes.
func ParseSatPointBytes(data []byte) (SatPoint, error) {
	if len(data) != satPointSize {
		return SatPoint{}, fmt.Errorf("corrupt satpoint: %d bytes, want %d", len(data), satPointSize)
	}
	var txid Txid
	copy(txid[:], data[:32])
	vout := getUint32(data[32:36])
	offset := getUint64(data[36:44])
	return SatPoint{Outpoint: Outpoint{Txid: txid, Vout: vout}, Offset: offset}, nil
}

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

func getUint32(buf []byte) uint32 {
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(v >> (8 * i))
	}
}

func getUint64(buf []byte) uint64 {
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v
}

// InscriptionId identifies an inscription by the transaction that
// created its envelope (the "commit" becomes visible at reveal time)
// and the index of that envelope within the transaction's inputs.
type InscriptionId struct {
	Txid  Txid   `json:"txid"`
	Index uint32 `json:"index"`
}

// String returns "txidiindex", the canonical ordinals inscription id format.
func (id InscriptionId) String() string {
	return fmt.Sprintf("%si%d", id.Txid.String(), id.Index)
}

// ParseInscriptionId parses a "txidiindex" string.
func ParseInscriptionId(s string) (InscriptionId, error) {
	i := strings.LastIndexByte(s, 'i')
	if i < 0 {
		return InscriptionId{}, fmt.Errorf("invalid inscription id %q: missing 'i'", s)
	}
	txid, err := HexToTxid(s[:i])
	if err != nil {
		return InscriptionId{}, fmt.Errorf("invalid inscription id %q: %w", s, err)
	}
	index, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return InscriptionId{}, fmt.Errorf("invalid inscription id %q: %w", s, err)
	}
	return InscriptionId{Txid: txid, Index: uint32(index)}, nil
}

// ParseInscriptionIdBytes decodes the 36-byte binary form of an
// inscription id used in envelope "parent"/"delegate" field values: a
// 32-byte txid followed by a 4-byte little-endian index.
func ParseInscriptionIdBytes(data []byte) (InscriptionId, bool) {
	if len(data) != 36 {
		return InscriptionId{}, false
	}
	var txid Txid
	copy(txid[:], data[:32])
	index := uint32(data[32]) | uint32(data[33])<<8 | uint32(data[34])<<16 | uint32(data[35])<<24
	return InscriptionId{Txid: txid, Index: index}, true
}

// Sat identifies a single satoshi by its absolute index in the subsidy
// timeline (its ordinal number).
type Sat uint64

// SubsidyHalvingInterval is the number of blocks between Bitcoin subsidy
// halvings.
const SubsidyHalvingInterval = 210_000

// Epoch returns the halving epoch this sat was mined in.
func (s Sat) Epoch() uint32 {
	epoch := uint32(0)
	start := Sat(0)
	subsidy := uint64(50 * 100_000_000)
	for {
		blocks := uint64(SubsidyHalvingInterval)
		rangeSize := Sat(subsidy * blocks)
		if s < start+rangeSize || subsidy == 0 {
			return epoch
		}
		start += rangeSize
		subsidy /= 2
		epoch++
		if epoch > 32 {
			return epoch
		}
	}
}

// Height returns the block height this sat was mined at (first sat of the
// subsidy in that block).
func (s Sat) Height() uint32 {
	epoch := s.Epoch()
	subsidy := uint64(50*100_000_000) >> epoch
	epochStart := epochStartSat(epoch)
	blockInEpoch := uint32(uint64(s-epochStart) / subsidy)
	return epoch*SubsidyHalvingInterval + blockInEpoch
}

func epochStartSat(epoch uint32) Sat {
	var total Sat
	subsidy := uint64(50 * 100_000_000)
	for e := uint32(0); e < epoch; e++ {
		total += Sat(subsidy * SubsidyHalvingInterval)
		subsidy /= 2
	}
	return total
}

// Degree names the four-part "rarity address" of a sat: (hour, minute,
// second, third) where hour = halving epoch, minute = block-in-halving-epoch,
// second = block-in-difficulty-period, third = sat-index-in-block.
type Degree struct {
	Hour   uint32
	Minute uint32
	Second uint32
	Third  uint64
}
