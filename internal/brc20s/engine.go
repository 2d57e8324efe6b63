package brc20s

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// Validation errors, one per distinct spec.md §4.7 rejection. Grounded
// on the teacher's internal/token/validate.go typed-error style.
var (
	ErrBadJSON           = errors.New("malformed brc-20-s operation json")
	ErrBadTickName       = errors.New("tick_name must be 4-6 bytes or \"btc\"")
	ErrFromToMismatch    = errors.New("from and to scripts must match")
	ErrTickIDMismatch    = errors.New("tick_id does not match derivation")
	ErrNotOriginalDeployer = errors.New("only the original deployer may add pools")
	ErrSupplyExhausted   = errors.New("dmax exceeds remaining undistributed supply")
	ErrDuplicatePool     = errors.New("tick_id/stake_kind pool already exists")
	ErrStakeKindNotAllowed = errors.New("stake kind not permitted at this height")
	ErrTickNotFound      = errors.New("tick_id not deployed")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrOverOnlyCap       = errors.New("stake exceeds only-pool balance cap")
	ErrOverSharedCap     = errors.New("stake exceeds shared-pool balance cap")
	ErrTooManyPools      = errors.New("user already staked in max_staked_pool_num pools")
	ErrInsufficientStake = errors.New("insufficient staked amount")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrExceedsPending    = errors.New("amount exceeds pending reward")
	ErrInsufficientBal   = errors.New("insufficient overall balance")
	ErrNotArmed          = errors.New("inscription is not an armed transfer")
)

// Operation is the decoded JSON body of a brc-20-s inscription.
type Operation struct {
	Proto     string `json:"p"`
	Op        string `json:"op"`
	TickName  string `json:"tick"`
	TickID    string `json:"tid,omitempty"`
	Pid       string `json:"pid,omitempty"`
	StakeKind string `json:"stake,omitempty"` // "" / tick4 / tick_id, per stake_kind
	Supply    string `json:"total,omitempty"`
	Decimals  string `json:"dec,omitempty"`
	Dmax      string `json:"dmax,omitempty"`
	Erate     string `json:"erate,omitempty"`
	Only      string `json:"only,omitempty"`
	Amt       string `json:"amt,omitempty"`
}

// ErrBadContentType rejects any inscription content-type that doesn't
// start with text/plain (an omitted one is accepted), matching the brc-20
// engine's gate (spec.md §6).
var ErrBadContentType = errors.New("content-type must be text/plain or omitted")

// ParseOperation decodes an inscription body as a brc-20-s operation.
func ParseOperation(contentType string, body []byte) (Operation, error) {
	if contentType != "" && !strings.HasPrefix(contentType, "text/plain") {
		return Operation{}, ErrBadContentType
	}
	var op Operation
	if err := json.Unmarshal(body, &op); err != nil {
		return Operation{}, fmt.Errorf("%w: %s", ErrBadJSON, err)
	}
	if op.Proto != "brc20-s" {
		return Operation{}, fmt.Errorf("%w: p=%q", ErrBadJSON, op.Proto)
	}
	return op, nil
}

// VersionGate describes the height-dependent staking-kind/pool-count
// limits (spec.md §4.7 "initial mainnet gate disallows BRC-20-S-on-
// BRC-20-S staking").
type VersionGate struct {
	AllowBRC20SStaking bool
	MaxStakedPoolNum   int
}

// GateAt returns the rules in effect at height. The initial mainnet
// gate (height 0 onward until a future activation) disallows staking a
// BRC-20-S tick into another pool and caps a user at 5 concurrent
// pools; a later gate (not yet scheduled) raises the cap to 128 once
// BRC-20-S-on-BRC-20-S staking is allowed.
func GateAt(height uint64) VersionGate {
	return VersionGate{AllowBRC20SStaking: false, MaxStakedPoolNum: 5}
}

// Engine applies brc-20-s operations to the ledger.
type Engine struct {
	store *Store
}

// NewEngine wraps store.
func NewEngine(store *Store) *Engine { return &Engine{store: store} }

// Receipt mirrors receipt.Receipt without importing it directly so the
// caller (internal/indexer) controls the Engine tag before persisting.
type Receipt struct {
	Op            string
	InscriptionId ordinal.InscriptionId
	From          string
	To            string
	Height        uint64
	Ok            bool
	Event         string
	Err           string
}

func fail(op string, id ordinal.InscriptionId, height uint64, from, to string, err error) Receipt {
	return Receipt{Op: op, InscriptionId: id, From: from, To: to, Height: height, Ok: false, Err: err.Error()}
}

func ok(op string, id ordinal.InscriptionId, height uint64, from, to, event string) Receipt {
	return Receipt{Op: op, InscriptionId: id, From: from, To: to, Height: height, Ok: true, Event: event}
}

func parseStakeKind(raw string) StakeKind {
	switch {
	case raw == "" || raw == NativeTick:
		return StakeKind{Tag: StakeNative}
	case len(raw) == TickIDSize*2:
		return StakeKind{Tag: StakeBRC20S, Tick: raw}
	default:
		return StakeKind{Tag: StakeBRC20, Tick: strings.ToLower(raw)}
	}
}

// Deploy creates a tick (if new) and always creates exactly one pool
// under it (spec.md §4.7 "Deploy").
func (e *Engine) Deploy(b storage.Batch, id ordinal.InscriptionId, height uint64, from, to string, op Operation) (Receipt, error) {
	if from != to {
		return fail("deploy", id, height, from, to, ErrFromToMismatch), nil
	}
	if !ValidTickName(op.TickName) {
		return fail("deploy", id, height, from, to, ErrBadTickName), nil
	}

	dec := uint8(18)
	if op.Decimals != "" {
		n, err := decimal.Parse(op.Decimals, 0)
		if err == nil {
			if v, err2 := n.Uint64(); err2 == nil && v <= 18 {
				dec = uint8(v)
			}
		}
	}
	supply, err := decimal.Parse(op.Supply, dec)
	if err != nil || supply.Sign() <= 0 {
		return fail("deploy", id, height, from, to, ErrZeroAmount), nil
	}

	tickID := DeriveTickID(op.TickName, supply, dec, from, to)
	if op.TickID != "" && op.TickID != tickID {
		return fail("deploy", id, height, from, to, ErrTickIDMismatch), nil
	}

	dmax, err := decimal.Parse(op.Dmax, dec)
	if err != nil || dmax.Sign() <= 0 {
		return fail("deploy", id, height, from, to, ErrZeroAmount), nil
	}
	erate, err := decimal.Parse(op.Erate, dec)
	if err != nil || erate.Sign() < 0 {
		return fail("deploy", id, height, from, to, ErrZeroAmount), nil
	}

	tick, exists, err := e.store.Tick(tickID)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		tick = TickInfo{
			TickID:       tickID,
			TickName:     op.TickName,
			Decimals:     dec,
			Supply:       supply,
			Allocated:    decimal.Zero(dec),
			Circulation:  decimal.Zero(dec),
			Deployer:     from,
			DeployHeight: height,
		}
	} else if tick.Deployer != from {
		return fail("deploy", id, height, from, to, ErrNotOriginalDeployer), nil
	}

	remaining := tick.Supply.Sub(tick.Allocated)
	if dmax.Cmp(remaining) > 0 {
		return fail("deploy", id, height, from, to, ErrSupplyExhausted), nil
	}

	kind := parseStakeKind(op.StakeKind)
	gate := GateAt(height)
	if kind.Tag == StakeBRC20S && !gate.AllowBRC20SStaking {
		return fail("deploy", id, height, from, to, ErrStakeKindNotAllowed), nil
	}
	if _, dup, err := e.store.PidForKind(tickID, kind); err != nil {
		return Receipt{}, err
	} else if dup {
		return fail("deploy", id, height, from, to, ErrDuplicatePool), nil
	}

	poolNumber := poolCountHint(tick.Allocated, dmax)
	for poolNumber < 255 {
		_, taken, err := e.store.Pool(Pid(tickID, poolNumber))
		if err != nil {
			return Receipt{}, err
		}
		if !taken {
			break
		}
		poolNumber++
	}
	pid := Pid(tickID, poolNumber)
	pool := PoolInfo{
		Pid:               pid,
		TickID:            tickID,
		StakeKind:         kind,
		Only:              op.Only == "1" || op.Only == "true",
		Dmax:              dmax,
		Erate:             erate,
		Staked:            decimal.Zero(dec),
		Minted:            decimal.Zero(dec),
		AccRewardPerShare: decimal.Zero(dec),
		LastUpdateBlock:   height,
		DeployHeight:      height,
	}

	tick.Allocated = tick.Allocated.Add(dmax)
	if err := e.store.PutTick(b, tick); err != nil {
		return Receipt{}, err
	}
	if err := e.store.PutPool(b, pool); err != nil {
		return Receipt{}, err
	}
	if err := e.store.PutPidForKind(b, tickID, kind, pid); err != nil {
		return Receipt{}, err
	}

	return ok("deploy", id, height, from, to, fmt.Sprintf("deployed pool %s", pid)), nil
}

// poolCountHint picks a starting pool number for a tick by how much of
// its supply is already allocated relative to this pool's own dmax.
// Two pools of one tick can get the same hint (a second pool whose dmax
// exceeds the amount already allocated gets 0 again), so Deploy moves
// up from the hint to the first pool number not already in use, up to
// 255.
func poolCountHint(allocatedBefore, dmax decimal.Num) uint8 {
	if dmax.Sign() == 0 {
		return 0
	}
	ratio := new(big.Int).Quo(allocatedBefore.Big(), dmax.Big())
	if !ratio.IsUint64() || ratio.Uint64() > 255 {
		return 255
	}
	return uint8(ratio.Uint64())
}

// settle advances a pool's accumulator to height and returns the
// updated pool (not yet persisted) — spec.md §4.7 pool math.
func settle(pool PoolInfo, height uint64) PoolInfo {
	if height <= pool.LastUpdateBlock {
		return pool
	}
	pendingBlocks := height - pool.LastUpdateBlock
	reward := pool.Erate.MulUint64(pendingBlocks)
	if pool.Staked.Sign() > 0 {
		delta := new(big.Int).Mul(reward.Big(), big.NewInt(RewardScale))
		delta.Quo(delta, pool.Staked.Big())
		acc := new(big.Int).Add(pool.AccRewardPerShare.Big(), delta)
		pool.AccRewardPerShare = decimal.FromBig(acc, pool.AccRewardPerShare.Decimals())
		pool.Minted = pool.Minted.Add(reward)
	}
	pool.LastUpdateBlock = height
	return pool
}

// pendingReward computes a user's accrued-but-unclaimed reward against
// pool (already settled to the current height).
func pendingReward(user UserInfo, pool PoolInfo) decimal.Num {
	gross := new(big.Int).Mul(user.Staked.Big(), pool.AccRewardPerShare.Big())
	gross.Quo(gross, big.NewInt(RewardScale))
	gross.Sub(gross, user.RewardDebt.Big())
	return decimal.FromBig(gross, pool.Minted.Decimals())
}

func repin(user UserInfo, pool PoolInfo) UserInfo {
	debt := new(big.Int).Mul(user.Staked.Big(), pool.AccRewardPerShare.Big())
	debt.Quo(debt, big.NewInt(RewardScale))
	user.RewardDebt = decimal.FromBig(debt, pool.Minted.Decimals())
	return user
}

// settleUser withdraws a pool's newly-settled pending reward into the
// user's PendingReward balance and repins their debt, the common first
// half of stake/unstake/mint (spec.md §4.7).
func settleUser(pool PoolInfo, user UserInfo, height uint64) (PoolInfo, UserInfo) {
	pool = settle(pool, height)
	earned := pendingReward(user, pool)
	user.PendingReward = user.PendingReward.Add(earned)
	return pool, user
}

// Stake handles stake/deposit (spec.md §4.7 "Stake").
func (e *Engine) Stake(b storage.Batch, id ordinal.InscriptionId, height uint64, from, to string, pid string, amtStr string, externalBalance decimal.Num) (Receipt, error) {
	if from != to {
		return fail("stake", id, height, from, to, ErrFromToMismatch), nil
	}
	pool, exists, err := e.store.Pool(pid)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return fail("stake", id, height, from, to, ErrPoolNotFound), nil
	}
	amt, err := decimal.Parse(amtStr, pool.Minted.Decimals())
	if err != nil || amt.Sign() <= 0 {
		return fail("stake", id, height, from, to, ErrZeroAmount), nil
	}

	kindStr := pool.StakeKind.String()
	stakeInfo, _, err := e.store.Stake(kindStr, from)
	if err != nil {
		return Receipt{}, err
	}
	if stakeInfo.User == "" {
		stakeInfo = StakeInfo{User: from, StakeKind: kindStr, TotalOnly: decimal.Zero(pool.Minted.Decimals()), MaxShare: decimal.Zero(pool.Minted.Decimals())}
	}

	if pool.Only {
		if stakeInfo.TotalOnly.Add(amt).Cmp(externalBalance) > 0 {
			return fail("stake", id, height, from, to, ErrOverOnlyCap), nil
		}
	} else {
		user, _, err := e.store.User(pid, from)
		if err != nil {
			return Receipt{}, err
		}
		shareAfter := user.Staked.Add(amt)
		max := stakeInfo.MaxShare
		if shareAfter.Cmp(max) > 0 {
			max = shareAfter
		}
		if stakeInfo.TotalOnly.Add(max).Cmp(externalBalance) > 0 {
			return fail("stake", id, height, from, to, ErrOverSharedCap), nil
		}
	}

	alreadyIn := containsPid(stakeInfo.PoolStakes, pid)
	if !alreadyIn && len(stakeInfo.PoolStakes) >= GateAt(height).MaxStakedPoolNum {
		return fail("stake", id, height, from, to, ErrTooManyPools), nil
	}

	user, _, err := e.store.User(pid, from)
	if err != nil {
		return Receipt{}, err
	}
	if user.User == "" {
		user = UserInfo{Pid: pid, User: from, Staked: decimal.Zero(pool.Minted.Decimals()), RewardDebt: decimal.Zero(pool.Minted.Decimals()), PendingReward: decimal.Zero(pool.Minted.Decimals()), Overall: decimal.Zero(pool.Minted.Decimals())}
	}

	pool, user = settleUser(pool, user, height)
	user.Staked = user.Staked.Add(amt)
	pool.Staked = pool.Staked.Add(amt)
	user = repin(user, pool)

	if pool.Only {
		stakeInfo.TotalOnly = stakeInfo.TotalOnly.Add(amt)
	} else if user.Staked.Cmp(stakeInfo.MaxShare) > 0 {
		stakeInfo.MaxShare = user.Staked
	}
	if !alreadyIn {
		stakeInfo.PoolStakes = append(stakeInfo.PoolStakes, pid)
	}

	if err := e.store.PutPool(b, pool); err != nil {
		return Receipt{}, err
	}
	if err := e.store.PutUser(b, user); err != nil {
		return Receipt{}, err
	}
	if err := e.store.PutStake(b, stakeInfo); err != nil {
		return Receipt{}, err
	}
	return ok("stake", id, height, from, to, fmt.Sprintf("staked %s into %s", amt.String(), pid)), nil
}

// Unstake handles unstake/withdraw (spec.md §4.7 "Unstake").
func (e *Engine) Unstake(b storage.Batch, id ordinal.InscriptionId, height uint64, from, to string, pid string, amtStr string) (Receipt, error) {
	if from != to {
		return fail("unstake", id, height, from, to, ErrFromToMismatch), nil
	}
	pool, exists, err := e.store.Pool(pid)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return fail("unstake", id, height, from, to, ErrPoolNotFound), nil
	}
	user, exists, err := e.store.User(pid, from)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return fail("unstake", id, height, from, to, ErrInsufficientStake), nil
	}
	amt, err := decimal.Parse(amtStr, pool.Minted.Decimals())
	if err != nil || amt.Sign() <= 0 {
		return fail("unstake", id, height, from, to, ErrZeroAmount), nil
	}
	if amt.Cmp(user.Staked) > 0 {
		return fail("unstake", id, height, from, to, ErrInsufficientStake), nil
	}

	pool, user, stakeInfo, err := e.unstake(b, pool, user, from, amt, height)
	if err != nil {
		return Receipt{}, err
	}
	_ = stakeInfo
	return ok("unstake", id, height, from, to, fmt.Sprintf("unstaked %s from %s", amt.String(), pid)), nil
}

// unstake is the shared settle/withdraw/subtract/repin path used by
// both a direct unstake operation and the passive-unstake walk.
func (e *Engine) unstake(b storage.Batch, pool PoolInfo, user UserInfo, from string, amt decimal.Num, height uint64) (PoolInfo, UserInfo, StakeInfo, error) {
	pool, user = settleUser(pool, user, height)
	user.Staked = user.Staked.Sub(amt)
	pool.Staked = pool.Staked.Sub(amt)
	user = repin(user, pool)

	kindStr := pool.StakeKind.String()
	stakeInfo, _, err := e.store.Stake(kindStr, from)
	if err != nil {
		return pool, user, StakeInfo{}, err
	}
	if pool.Only {
		stakeInfo.TotalOnly = stakeInfo.TotalOnly.Sub(amt)
	}

	if user.Staked.Sign() == 0 {
		stakeInfo.PoolStakes = removePid(stakeInfo.PoolStakes, pool.Pid)
	}
	if !pool.Only {
		stakeInfo.MaxShare = decimal.Zero(pool.Minted.Decimals())
		for _, otherPid := range stakeInfo.PoolStakes {
			other, exists, err := e.store.User(otherPid, from)
			if err != nil {
				return pool, user, stakeInfo, err
			}
			if !exists {
				continue
			}
			otherPool, exists, err := e.store.Pool(otherPid)
			if err != nil {
				return pool, user, stakeInfo, err
			}
			if exists && !otherPool.Only && other.Staked.Cmp(stakeInfo.MaxShare) > 0 {
				stakeInfo.MaxShare = other.Staked
			}
		}
	}

	if err := e.store.PutPool(b, pool); err != nil {
		return pool, user, stakeInfo, err
	}
	if err := e.store.PutUser(b, user); err != nil {
		return pool, user, stakeInfo, err
	}
	if err := e.store.PutStake(b, stakeInfo); err != nil {
		return pool, user, stakeInfo, err
	}
	return pool, user, stakeInfo, nil
}

// PassiveUnstake synthesizes unstake events against a user's staked
// positions when an external balance check (BRC-20 or native transfer)
// finds their externally visible balance has fallen below what they've
// staked (spec.md §4.7 "Passive-unstake"). Returns one Receipt per pool
// touched, each tagged op="passive-unstake".
func (e *Engine) PassiveUnstake(b storage.Batch, height uint64, user string, stakeKind StakeKind, newBalance decimal.Num) ([]Receipt, error) {
	kindStr := stakeKind.String()
	stakeInfo, exists, err := e.store.Stake(kindStr, user)
	if err != nil || !exists {
		return nil, err
	}

	committed := stakeInfo.TotalOnly.Add(stakeInfo.MaxShare)
	if committed.Cmp(newBalance) <= 0 {
		return nil, nil
	}
	alter := committed.Sub(newBalance)

	var receipts []Receipt
	for _, pid := range append([]string{}, stakeInfo.PoolStakes...) {
		if alter.Sign() <= 0 {
			break
		}
		pool, exists, err := e.store.Pool(pid)
		if err != nil {
			return receipts, err
		}
		if !exists {
			continue
		}
		u, exists, err := e.store.User(pid, user)
		if err != nil || !exists {
			continue
		}
		withdraw := u.Staked
		if alter.Cmp(withdraw) < 0 {
			withdraw = alter
		}
		if withdraw.Sign() <= 0 {
			continue
		}
		pool, u, stakeInfo, err = e.unstake(b, pool, u, user, withdraw, height)
		if err != nil {
			return receipts, err
		}
		alter = alter.Sub(withdraw)
		receipts = append(receipts, ok("passive-unstake", ordinal.InscriptionId{}, height, user, user, fmt.Sprintf("withdrew %s from %s", withdraw.String(), pid)))
	}
	return receipts, nil
}

// Mint handles a mint operation (spec.md §4.7 "Mint").
func (e *Engine) Mint(b storage.Batch, id ordinal.InscriptionId, height uint64, from, to string, pid string, amtStr string) (Receipt, error) {
	if from != to {
		return fail("mint", id, height, from, to, ErrFromToMismatch), nil
	}
	pool, exists, err := e.store.Pool(pid)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return fail("mint", id, height, from, to, ErrPoolNotFound), nil
	}
	user, exists, err := e.store.User(pid, from)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return fail("mint", id, height, from, to, ErrExceedsPending), nil
	}

	pool = settle(pool, height)
	pending := pendingReward(user, pool)

	amt, err := decimal.Parse(amtStr, pool.Minted.Decimals())
	if err != nil || amt.Sign() <= 0 {
		return fail("mint", id, height, from, to, ErrZeroAmount), nil
	}
	if amt.Cmp(pending) > 0 {
		return fail("mint", id, height, from, to, ErrExceedsPending), nil
	}

	user.PendingReward = pending.Sub(amt)
	user = repin(user, pool)
	user.Overall = user.Overall.Add(amt)

	tick, exists, err := e.store.Tick(pool.TickID)
	if err != nil {
		return Receipt{}, err
	}
	if exists {
		tick.Circulation = tick.Circulation.Add(amt)
		if err := e.store.PutTick(b, tick); err != nil {
			return Receipt{}, err
		}
	}

	bal, err := e.store.Balance(pool.TickID, from, pool.Minted.Decimals())
	if err != nil {
		return Receipt{}, err
	}
	bal.Overall = bal.Overall.Add(amt)
	if err := e.store.PutBalance(b, pool.TickID, from, bal); err != nil {
		return Receipt{}, err
	}

	if err := e.store.PutPool(b, pool); err != nil {
		return Receipt{}, err
	}
	if err := e.store.PutUser(b, user); err != nil {
		return Receipt{}, err
	}
	return ok("mint", id, height, from, to, fmt.Sprintf("minted %s from %s", amt.String(), pid)), nil
}

// InscribeTransfer arms amt of a tick_id's overall balance for transfer
// (spec.md §4.7 "Inscribe-transfer & transfer").
func (e *Engine) InscribeTransfer(b storage.Batch, id ordinal.InscriptionId, height uint64, owner string, op Operation) (Receipt, error) {
	tick, exists, err := e.store.Tick(op.TickID)
	if err != nil {
		return Receipt{}, err
	}
	if !exists || tick.TickName != op.TickName {
		return fail("inscribe-transfer", id, height, owner, owner, ErrTickNotFound), nil
	}
	amt, err := decimal.Parse(op.Amt, tick.Decimals)
	if err != nil || amt.Sign() <= 0 {
		return fail("inscribe-transfer", id, height, owner, owner, ErrZeroAmount), nil
	}

	bal, err := e.store.Balance(tick.TickID, owner, tick.Decimals)
	if err != nil {
		return Receipt{}, err
	}
	available := bal.Overall.Sub(bal.Transferable)
	if available.Cmp(amt) < 0 {
		return fail("inscribe-transfer", id, height, owner, owner, ErrInsufficientBal), nil
	}

	bal.Transferable = bal.Transferable.Add(amt)
	if err := e.store.PutBalance(b, tick.TickID, owner, bal); err != nil {
		return Receipt{}, err
	}

	rec := TransferableRecord{InscriptionId: id, TickID: tick.TickID, TickName: tick.TickName, Amount: amt, Owner: owner}
	if err := e.store.PutTransferRecord(b, rec); err != nil {
		return Receipt{}, err
	}
	return ok("inscribe-transfer", id, height, owner, owner, fmt.Sprintf("armed %s %s", amt.String(), tick.TickName)), nil
}

// Transfer completes a two-step transfer (spec.md §4.7 "identical
// two-step pattern as BRC-20"): it debits the sender's armed amount out
// of Transferable, and — unless the inscription came back to the same
// script it left — moves the value out of Overall and into the
// recipient's Overall. An inscription that lands on no output (to=="")
// returns to the sender, same as brc20.Engine.Transfer's coinbase case.
func (e *Engine) Transfer(b storage.Batch, id ordinal.InscriptionId, height uint64, from, to string) (Receipt, error) {
	rec, armed, err := e.store.TransferRecord(id)
	if err != nil {
		return Receipt{}, err
	}
	if !armed {
		return fail("transfer", id, height, from, to, ErrNotArmed), nil
	}
	if err := e.store.DeleteTransferRecord(b, id); err != nil {
		return Receipt{}, err
	}

	tick, exists, err := e.store.Tick(rec.TickID)
	if err != nil {
		return Receipt{}, err
	}
	if !exists {
		return fail("transfer", id, height, from, to, ErrTickNotFound), nil
	}

	recipient := to
	if recipient == "" {
		recipient = from
	}

	fromBal, err := e.store.Balance(rec.TickID, from, tick.Decimals)
	if err != nil {
		return Receipt{}, err
	}
	fromBal.Transferable = fromBal.Transferable.Sub(rec.Amount)
	if recipient != from {
		fromBal.Overall = fromBal.Overall.Sub(rec.Amount)
	}
	if err := e.store.PutBalance(b, rec.TickID, from, fromBal); err != nil {
		return Receipt{}, err
	}

	if recipient != from {
		toBal, err := e.store.Balance(rec.TickID, recipient, tick.Decimals)
		if err != nil {
			return Receipt{}, err
		}
		toBal.Overall = toBal.Overall.Add(rec.Amount)
		if err := e.store.PutBalance(b, rec.TickID, recipient, toBal); err != nil {
			return Receipt{}, err
		}
	}

	return ok("transfer", id, height, from, to, fmt.Sprintf("transferred %s %s", rec.Amount.String(), rec.TickName)), nil
}

func containsPid(pids []string, pid string) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}

func removePid(pids []string, pid string) []string {
	out := pids[:0]
	for _, p := range pids {
		if p != pid {
			out = append(out, p)
		}
	}
	return out
}
