package inscription

import "github.com/brc20labs/ordindexer/pkg/ordinal"

// Entry is the permanent record created the moment an inscription is
// assigned a number; it never changes afterward (SPEC_FULL.md §3/§4.5).
type Entry struct {
	Id          ordinal.InscriptionId `json:"id"`
	Number      int64                 `json:"number"` // >=0 blessed, <0 cursed
	Fee         uint64                `json:"fee"`
	Height      uint64                `json:"height"`
	Timestamp   int64                 `json:"timestamp"`
	Sat         *ordinal.Sat          `json:"sat,omitempty"`
	Parent      *ordinal.InscriptionId `json:"parent,omitempty"`
	ContentType string                `json:"content_type,omitempty"`
	Body        []byte                `json:"body,omitempty"`
	Cursed      bool                  `json:"cursed"`
	Unbound     bool                  `json:"unbound"`
}

// Action is what happened to an inscription in a given transaction.
type Action int

const (
	ActionTransfer Action = iota
	ActionNew
)

// Op is one inscription-affecting event inside a transaction, handed off
// to the BRC-20 / BRC-20-S engines (SPEC_FULL.md §4.5 step 8).
type Op struct {
	Txid               ordinal.Txid
	InscriptionId      ordinal.InscriptionId
	InscriptionNumber  int64
	Action             Action
	Cursed             bool
	Unbound            bool
	ContentType        string
	Body               []byte
	OldSatpoint        *ordinal.SatPoint
	NewSatpoint        ordinal.SatPoint
}
