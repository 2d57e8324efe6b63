package brc20s

import (
	"encoding/json"
	"fmt"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// Key prefixes. Grounded on the teacher's internal/utxo/store.go
// compound-key index pattern (a/<addr><outpoint>, k/<pubkey><outpoint>):
// here the dual table is (tick_id, stake_kind) -> pid and its inverse,
// instead of address/stake-pubkey -> outpoint.
var (
	prefixTickInfo    = []byte("30/t/")  // 30/t/<tick_id> -> TickInfo JSON
	prefixPoolInfo    = []byte("30/p/")  // 30/p/<pid> -> PoolInfo JSON
	prefixUserInfo    = []byte("30/u/")  // 30/u/<pid>/<user> -> UserInfo JSON
	prefixStakeInfo   = []byte("30/s/")  // 30/s/<stake_kind>/<user> -> StakeInfo JSON
	prefixKindToPid   = []byte("30/k/")  // 30/k/<tick_id>/<stake_kind> -> pid (dup rejection)
	prefixTransferRec = []byte("30/x/")  // 30/x/<inscription id> -> TransferableRecord JSON
	prefixBalance     = []byte("30/b/")  // 30/b/<tick_id>/<owner> -> Balance JSON
)

// Store persists tick/pool/user/stake tables for the staking engine.
type Store struct {
	db storage.DB
}

// NewStore wraps db.
func NewStore(db storage.DB) *Store { return &Store{db: db} }

func (s *Store) Tick(tickID string) (TickInfo, bool, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixTickInfo...), []byte(tickID)...))
	if err == storage.ErrNotFound {
		return TickInfo{}, false, nil
	}
	if err != nil {
		return TickInfo{}, false, err
	}
	var t TickInfo
	return t, true, json.Unmarshal(data, &t)
}

func (s *Store) PutTick(b storage.Batch, t TickInfo) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("brc20s tick marshal: %w", err)
	}
	return b.Put(append(append([]byte{}, prefixTickInfo...), []byte(t.TickID)...), data)
}

func (s *Store) Pool(pid string) (PoolInfo, bool, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixPoolInfo...), []byte(pid)...))
	if err == storage.ErrNotFound {
		return PoolInfo{}, false, nil
	}
	if err != nil {
		return PoolInfo{}, false, err
	}
	var p PoolInfo
	return p, true, json.Unmarshal(data, &p)
}

func (s *Store) PutPool(b storage.Batch, p PoolInfo) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("brc20s pool marshal: %w", err)
	}
	return b.Put(append(append([]byte{}, prefixPoolInfo...), []byte(p.Pid)...), data)
}

func (s *Store) User(pid, user string) (UserInfo, bool, error) {
	data, err := s.db.Get(userKey(pid, user))
	if err == storage.ErrNotFound {
		return UserInfo{}, false, nil
	}
	if err != nil {
		return UserInfo{}, false, err
	}
	var u UserInfo
	return u, true, json.Unmarshal(data, &u)
}

func (s *Store) PutUser(b storage.Batch, u UserInfo) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("brc20s user marshal: %w", err)
	}
	return b.Put(userKey(u.Pid, u.User), data)
}

func (s *Store) Stake(stakeKind, user string) (StakeInfo, bool, error) {
	data, err := s.db.Get(stakeKey(stakeKind, user))
	if err == storage.ErrNotFound {
		return StakeInfo{}, false, nil
	}
	if err != nil {
		return StakeInfo{}, false, err
	}
	var si StakeInfo
	return si, true, json.Unmarshal(data, &si)
}

func (s *Store) PutStake(b storage.Batch, si StakeInfo) error {
	data, err := json.Marshal(si)
	if err != nil {
		return fmt.Errorf("brc20s stake marshal: %w", err)
	}
	return b.Put(stakeKey(si.StakeKind, si.User), data)
}

// PidForKind looks up whether (tickID, kind) already has a pool, for
// duplicate-pool rejection on deploy.
func (s *Store) PidForKind(tickID string, kind StakeKind) (string, bool, error) {
	data, err := s.db.Get(kindKey(tickID, kind))
	if err == storage.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *Store) PutPidForKind(b storage.Batch, tickID string, kind StakeKind, pid string) error {
	return b.Put(kindKey(tickID, kind), []byte(pid))
}

func (s *Store) TransferRecord(id ordinal.InscriptionId) (TransferableRecord, bool, error) {
	data, err := s.db.Get(append(append([]byte{}, prefixTransferRec...), []byte(id.String())...))
	if err == storage.ErrNotFound {
		return TransferableRecord{}, false, nil
	}
	if err != nil {
		return TransferableRecord{}, false, err
	}
	var rec TransferableRecord
	return rec, true, json.Unmarshal(data, &rec)
}

func (s *Store) PutTransferRecord(b storage.Batch, rec TransferableRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("brc20s transfer record marshal: %w", err)
	}
	return b.Put(append(append([]byte{}, prefixTransferRec...), []byte(rec.InscriptionId.String())...), data)
}

func (s *Store) DeleteTransferRecord(b storage.Batch, id ordinal.InscriptionId) error {
	return b.Delete(append(append([]byte{}, prefixTransferRec...), []byte(id.String())...))
}

// Balance returns owner's holdings of tickID. A not-found result yields
// the zero value at the tick's decimal precision; the caller must
// supply decimals since an absent balance has never been scaled.
func (s *Store) Balance(tickID, owner string, decimals uint8) (Balance, error) {
	data, err := s.db.Get(balanceKey(tickID, owner))
	if err == storage.ErrNotFound {
		return Balance{Overall: decimal.Zero(decimals), Transferable: decimal.Zero(decimals)}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	var bal Balance
	if err := json.Unmarshal(data, &bal); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

func (s *Store) PutBalance(b storage.Batch, tickID, owner string, bal Balance) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return fmt.Errorf("brc20s balance marshal: %w", err)
	}
	return b.Put(balanceKey(tickID, owner), data)
}

func balanceKey(tickID, owner string) []byte {
	key := append(append([]byte{}, prefixBalance...), []byte(tickID)...)
	key = append(key, '/')
	return append(key, []byte(owner)...)
}

func userKey(pid, user string) []byte {
	key := append(append([]byte{}, prefixUserInfo...), []byte(pid)...)
	key = append(key, '/')
	return append(key, []byte(user)...)
}

func stakeKey(stakeKind, user string) []byte {
	key := append(append([]byte{}, prefixStakeInfo...), []byte(stakeKind)...)
	key = append(key, '/')
	return append(key, []byte(user)...)
}

func kindKey(tickID string, kind StakeKind) []byte {
	key := append(append([]byte{}, prefixKindToPid...), []byte(tickID)...)
	key = append(key, '/')
	return append(key, []byte(kind.String())...)
}

// TransferableRecord is created by inscribe-transfer and consumed by
// the matching transfer, keyed additionally by tick_name/tick_id so
// both can be cross-checked against the stored tick on decode
// (spec.md §4.7 "Inscribe-transfer & transfer").
type TransferableRecord struct {
	InscriptionId ordinal.InscriptionId `json:"inscription_id"`
	TickID        string                `json:"tick_id"`
	TickName      string                `json:"tick_name"`
	Amount        decimal.Num           `json:"amount"`
	Owner         string                `json:"owner"`
}
