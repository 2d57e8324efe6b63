// Package brc20 implements the fungible-token ledger described by
// SPEC_FULL.md §4.6: deploy, mint, and the two-step inscribe-transfer.
package brc20

import (
	"strings"

	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// TickLength is the fixed byte length of a BRC-20 ticker.
const TickLength = 4

// NormalizeTick lowercases and validates a ticker string.
func NormalizeTick(tick string) (string, bool) {
	if len([]byte(tick)) != TickLength {
		return "", false
	}
	return strings.ToLower(tick), true
}

// TokenInfo is a deployed tick's permanent metadata plus its running
// mint total.
type TokenInfo struct {
	Tick        string       `json:"tick"`
	Max         decimal.Num  `json:"max"`
	Limit       *decimal.Num `json:"limit,omitempty"`
	Decimals    uint8        `json:"decimals"`
	Minted      decimal.Num  `json:"minted"`
	Deployer    string       `json:"deployer"`
	DeployId    ordinal.InscriptionId `json:"deploy_id"`
	DeployHeight uint64      `json:"deploy_height"`
}

// Balance is one script's holdings of one tick.
type Balance struct {
	Overall      decimal.Num `json:"overall"`
	Transferable decimal.Num `json:"transferable"`
}

// TransferableRecord is created by inscribe-transfer and consumed by
// the matching transfer; its presence is what "arms" an inscription.
type TransferableRecord struct {
	InscriptionId ordinal.InscriptionId `json:"inscription_id"`
	Tick          string                `json:"tick"`
	Amount        decimal.Num           `json:"amount"`
	Owner         string                `json:"owner"`
}
