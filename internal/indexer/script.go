package indexer

import "encoding/hex"

// scriptKey is the identity BRC-20 and BRC-20-S balances are keyed by
// (SPEC_FULL.md §3: "script_key"): the hex-encoded scriptPubKey of the
// output an inscription currently sits in. Using the raw script instead
// of a decoded human address avoids depending on a specific address
// encoding (bech32/base58/taproot all collapse to their scripts) and
// matches the spec's own vocabulary.
func scriptKey(pkScript []byte) string {
	return hex.EncodeToString(pkScript)
}
