// Package receipt records the per-transaction outcome of every BRC-20
// and BRC-20-S operation, successful or not (SPEC_FULL.md §4.9).
package receipt

import "github.com/brc20labs/ordindexer/pkg/ordinal"

// Engine names which ledger produced a receipt.
type Engine string

const (
	EngineBRC20  Engine = "brc-20"
	EngineBRC20S Engine = "brc-20-s"
)

// Receipt is one operation's outcome, good or bad. Consumers distinguish
// "not yet indexed" from "no events" by comparing the queried height
// against the indexer's current height before consulting the store.
type Receipt struct {
	Engine        Engine                `json:"engine"`
	Op            string                `json:"op"`
	InscriptionId ordinal.InscriptionId `json:"inscription_id"`
	From          string                `json:"from,omitempty"`
	To            string                `json:"to,omitempty"`
	Height        uint64                `json:"height"`
	Ok            bool                  `json:"ok"`
	Event         string                `json:"event,omitempty"` // human-readable summary on success
	Err           string                `json:"error,omitempty"` // typed error string on failure
}
