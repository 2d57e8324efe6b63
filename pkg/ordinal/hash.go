// Package ordinal defines the core identifier and value types shared by the
// sat tracker, inscription updater, and BRC-20 / BRC-20-S engines.
package ordinal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// TxidSize is the length of a transaction id in bytes.
const TxidSize = 32

// Txid is a 256-bit transaction hash, stored internally in the same
// byte order bitcoind returns it (big-endian / display order), not the
// internal little-endian wire order.
type Txid [TxidSize]byte

// IsZero reports whether the txid is all zeros (used for the null outpoint).
func (h Txid) IsZero() bool {
	return h == Txid{}
}

// String returns the hex-encoded txid.
func (h Txid) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the txid as a byte slice.
func (h Txid) Bytes() []byte {
	b := make([]byte, TxidSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the txid as a hex string.
func (h Txid) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a txid.
func (h *Txid) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Txid{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid txid hex: %w", err)
	}
	if len(decoded) != TxidSize {
		return fmt.Errorf("txid must be %d bytes, got %d", TxidSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToTxid converts a hex string to a Txid.
func HexToTxid(s string) (Txid, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Txid{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != TxidSize {
		return Txid{}, fmt.Errorf("txid must be %d bytes, got %d", TxidSize, len(b))
	}
	var h Txid
	copy(h[:], b)
	return h, nil
}

// BlockHash is a 256-bit block header hash.
type BlockHash = Txid
