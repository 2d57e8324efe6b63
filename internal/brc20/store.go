package brc20

import (
	"encoding/json"
	"fmt"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/decimal"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

var (
	prefixTick        = []byte("20/t/")  // 20/t/<tick(4)> -> TokenInfo JSON
	prefixBalance     = []byte("20/b/")  // 20/b/<tick(4)>/<owner> -> Balance JSON
	prefixTransferRec = []byte("20/x/")  // 20/x/<inscription id> -> TransferableRecord JSON
)

// Store persists tick metadata, per-owner balances, and armed
// inscribe-transfer records. Grounded on the teacher's token metadata
// store's prefix/Put/Get/ForEach shape (internal/token/store.go),
// extended with the two extra tables BRC-20 needs.
type Store struct {
	db storage.DB
}

// NewStore wraps db.
func NewStore(db storage.DB) *Store { return &Store{db: db} }

func (s *Store) Tick(tick string) (TokenInfo, bool, error) {
	data, err := s.db.Get(tickKey(tick))
	if err == storage.ErrNotFound {
		return TokenInfo{}, false, nil
	}
	if err != nil {
		return TokenInfo{}, false, err
	}
	var info TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return TokenInfo{}, false, err
	}
	return info, true, nil
}

func (s *Store) PutTick(b storage.Batch, info TokenInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("brc20 tick marshal: %w", err)
	}
	return b.Put(tickKey(info.Tick), data)
}

// Balance returns owner's holdings of tick. A not-found result yields
// the zero value at the tick's decimal precision; the caller must
// supply decimals since an absent balance has never been scaled.
func (s *Store) Balance(tick, owner string, decimals uint8) (Balance, error) {
	data, err := s.db.Get(balanceKey(tick, owner))
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

func (s *Store) PutBalance(b storage.Batch, tick, owner string, bal Balance) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return fmt.Errorf("brc20 balance marshal: %w", err)
	}
	return b.Put(balanceKey(tick, owner), data)
}

func (s *Store) TransferRecord(id ordinal.InscriptionId) (TransferableRecord, bool, error) {
	data, err := s.db.Get(transferKey(id))
	if err == storage.ErrNotFound {
		return TransferableRecord{}, false, nil
	}
	if err != nil {
		return TransferableRecord{}, false, err
	}
	var rec TransferableRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TransferableRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) PutTransferRecord(b storage.Batch, rec TransferableRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("brc20 transfer record marshal: %w", err)
	}
	return b.Put(transferKey(rec.InscriptionId), data)
}

func (s *Store) DeleteTransferRecord(b storage.Batch, id ordinal.InscriptionId) error {
	return b.Delete(transferKey(id))
}

func tickKey(tick string) []byte {
	return append(append([]byte{}, prefixTick...), []byte(tick)...)
}

func balanceKey(tick, owner string) []byte {
	key := append(append([]byte{}, prefixBalance...), []byte(tick)...)
	key = append(key, '/')
	return append(key, []byte(owner)...)
}

func transferKey(id ordinal.InscriptionId) []byte {
	return append(append([]byte{}, prefixTransferRec...), []byte(id.String())...)
}
