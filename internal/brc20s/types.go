package brc20s

import "github.com/brc20labs/ordindexer/pkg/decimal"

// RewardScale is the fixed-point scale applied to acc_reward_per_share
// so that integer division doesn't truncate reward accrual to zero
// between updates (spec.md §4.7 pool math).
const RewardScale = 1_000_000_000_000 // 1e12

// TickInfo is a deployed tick_id's permanent metadata and running
// allocation ledger, shared by every pool created under it.
type TickInfo struct {
	TickID       string      `json:"tick_id"`
	TickName     string      `json:"tick_name"`
	Decimals     uint8       `json:"decimals"`
	Supply       decimal.Num `json:"supply"`
	Allocated    decimal.Num `json:"allocated"` // dmax committed across all pools so far
	Circulation  decimal.Num `json:"circulation"`
	Deployer     string      `json:"deployer"`
	DeployHeight uint64      `json:"deploy_height"`
}

// PoolInfo is one staking pool's parameters and running accumulator
// state (spec.md §4.7 pool math).
type PoolInfo struct {
	Pid             string      `json:"pid"`
	TickID          string      `json:"tick_id"`
	StakeKind       StakeKind   `json:"stake_kind"`
	Only            bool        `json:"only"`
	Dmax            decimal.Num `json:"dmax"`
	Erate           decimal.Num `json:"erate"` // reward units minted per block
	Staked          decimal.Num `json:"staked"`
	Minted          decimal.Num `json:"minted"`
	AccRewardPerShare decimal.Num `json:"acc_reward_per_share"` // scaled by RewardScale * 10^decimals(stake)
	LastUpdateBlock uint64      `json:"last_update_block"`
	DeployHeight    uint64      `json:"deploy_height"`
}

// Balance is one script's tick_id-denominated holdings, moved by the
// two-step inscribe-transfer/transfer pair the same way BRC-20 balances
// are (spec.md §4.7 "identical two-step pattern as BRC-20").
type Balance struct {
	Overall      decimal.Num `json:"overall"`
	Transferable decimal.Num `json:"transferable"`
}

// UserInfo is one user's position within a single pool.
type UserInfo struct {
	Pid           string      `json:"pid"`
	User          string      `json:"user"`
	Staked        decimal.Num `json:"staked"`
	RewardDebt    decimal.Num `json:"reward_debt"`
	PendingReward decimal.Num `json:"pending_reward"`
	Overall       decimal.Num `json:"overall"` // minted-and-withdrawn balance in this tick
}

// StakeInfo tracks a user's cross-pool staking posture for one
// stake_kind: which pools they hold a position in (insertion order,
// for the passive-unstake greedy walk), how much is committed to
// only-pools, and the largest single shared-pool stake (spec.md §4.7
// "Unstake"/"Passive-unstake").
type StakeInfo struct {
	User       string      `json:"user"`
	StakeKind  string       `json:"stake_kind"` // StakeKind.String()
	PoolStakes []string    `json:"pool_stakes"` // ordered pids
	TotalOnly  decimal.Num `json:"total_only"`
	MaxShare   decimal.Num `json:"max_share"`
}
