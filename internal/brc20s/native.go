package brc20s

import (
	"encoding/binary"

	"github.com/brc20labs/ordindexer/internal/storage"
)

// prefixNativeBalance tracks each script's total unspent sat value, the
// `stake_kind_balance(user)` spec.md §4.7 calls for when stake_kind is
// Native: a BRC-20-S "only" pool caps staked native sats against what the
// script actually still holds, so Stake/PassiveUnstake need it kept live
// alongside the rest of the ledger instead of re-deriving it from the
// UTXO set on every call.
var prefixNativeBalance = []byte("30/n/") // 30/n/<script hex> -> u64

// NativeBalance returns a script's currently tracked unspent sat total.
func (s *Store) NativeBalance(script string) (uint64, error) {
	data, err := s.db.Get(nativeKey(script))
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// CreditNative adds amount to script's tracked balance, called when the
// indexer assigns a fresh output to script.
func (s *Store) CreditNative(b storage.Batch, script string, amount uint64) error {
	cur, err := s.NativeBalance(script)
	if err != nil {
		return err
	}
	return b.Put(nativeKey(script), nativeBytes(cur+amount))
}

// DebitNative subtracts amount from script's tracked balance, called when
// the indexer spends an output previously credited to script. Clamps at
// zero rather than underflowing: a script's very first output predates
// this table only across a schema migration, which SPEC_FULL.md doesn't
// need to support for a fresh index.
func (s *Store) DebitNative(b storage.Batch, script string, amount uint64) error {
	cur, err := s.NativeBalance(script)
	if err != nil {
		return err
	}
	if amount > cur {
		amount = cur
	}
	return b.Put(nativeKey(script), nativeBytes(cur-amount))
}

func nativeKey(script string) []byte {
	return append(append([]byte{}, prefixNativeBalance...), []byte(script)...)
}

func nativeBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
