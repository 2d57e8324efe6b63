// Package brc20s implements the staking-pool ledger described by
// SPEC_FULL.md §4.7: tick/pool deploy, stake/unstake, passive-unstake,
// mint, and the two-step inscribe-transfer, keyed by tick_id/pid.
package brc20s

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/brc20labs/ordindexer/pkg/decimal"
)

// TickIDSize is the byte length of a tick_id (spec.md §4.7: "5-byte hex
// prefix").
const TickIDSize = 5

// NativeTick is the reserved staking-kind name for bare BTC/sats.
const NativeTick = "btc"

// DeriveTickID computes the 5-byte hex tick_id from a deploy's
// identifying fields. Grounded on the teacher's token.go
// derive-id-from-hash structural pattern
// (internal/token/token.go:DeriveTokenID), substituting sha256 for the
// teacher's BLAKE3 per spec.md's explicit formula.
func DeriveTickID(name string, supply decimal.Num, decimals uint8, deployerScript, toScript string) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte(supply.String()))
	h.Write([]byte{decimals})
	h.Write([]byte(deployerScript))
	h.Write([]byte(toScript))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:TickIDSize])
}

// ValidTickName reports whether name meets the 4-6 byte requirement, or
// is the reserved native "btc" identifier.
func ValidTickName(name string) bool {
	if name == NativeTick {
		return true
	}
	n := len([]byte(name))
	return n >= 4 && n <= 6
}

// Pid builds the 13-ASCII-byte pool identifier: tick_id (5-byte hex)
// followed by '#' and a 2-byte hex pool number.
func Pid(tickID string, poolNumber uint8) string {
	return fmt.Sprintf("%s#%02x", tickID, poolNumber)
}

// SplitPid parses a pid back into its tick_id and pool number.
func SplitPid(pid string) (tickID string, poolNumber uint8, ok bool) {
	i := strings.IndexByte(pid, '#')
	if i != TickIDSize*2 || len(pid) != i+1+2 {
		return "", 0, false
	}
	var n uint8
	if _, err := fmt.Sscanf(pid[i+1:], "%02x", &n); err != nil {
		return "", 0, false
	}
	return pid[:i], n, true
}

// StakeKindTag distinguishes what a pool's stake is denominated in.
type StakeKindTag int

const (
	StakeNative StakeKindTag = iota
	StakeBRC20
	StakeBRC20S
)

// StakeKind identifies a stakeable asset: native BTC, a BRC-20 tick, or
// another BRC-20-S tick_id.
type StakeKind struct {
	Tag  StakeKindTag `json:"tag"`
	Tick string       `json:"tick,omitempty"` // brc-20 4-byte tick or brc-20-s tick_id
}

// String renders the stake kind canonically for use as a map/index key.
func (k StakeKind) String() string {
	switch k.Tag {
	case StakeBRC20:
		return "brc20:" + k.Tick
	case StakeBRC20S:
		return "brc20s:" + k.Tick
	default:
		return "native"
	}
}
