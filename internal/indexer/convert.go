package indexer

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// toTxid bridges a btcd chainhash.Hash (wire/little-endian order) to the
// ordinal package's display-order Txid. The two types store the same 32
// bytes in opposite order, so the only correct bridge is the canonical
// hex string, never a raw byte copy (pkg/ordinal/hash.go).
func toTxid(h chainhash.Hash) ordinal.Txid {
	txid, err := ordinal.HexToTxid(h.String())
	if err != nil {
		// h.String() always yields 64 hex chars for a chainhash.Hash;
		// this can't fail in practice.
		panic("indexer: malformed chainhash -> txid conversion: " + err.Error())
	}
	return txid
}

// toChainhash is the inverse of toTxid.
func toChainhash(t ordinal.Txid) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(t.String())
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}
