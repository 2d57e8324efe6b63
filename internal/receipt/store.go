package receipt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// prefixTxReceipts indexes receipts by txid, multimap-style: the
// sequence number keeps operation order stable within a transaction
// without needing a read-modify-write append.
var prefixTxReceipts = []byte("r/tx/") // r/tx/<txid(32)>/<seq(8)> -> Receipt JSON

// Store persists the append-only per-txid receipt log shared by both
// engines. Grounded on the teacher's token metadata store's
// prefix/Put/Get/ForEach shape, keyed by txid instead of token tick.
type Store struct {
	db storage.DB
}

// NewStore wraps db.
func NewStore(db storage.DB) *Store { return &Store{db: db} }

// Append adds r to txid's ordered receipt log. seq must be the next
// sequence number for this txid (the caller tracks it per-transaction
// while walking the inscription operation list).
func (s *Store) Append(b storage.Batch, txid ordinal.Txid, seq uint64, r Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("receipt marshal: %w", err)
	}
	return b.Put(receiptKey(txid, seq), data)
}

// ForTx returns every receipt recorded for txid, in operation order.
// A nil, nil return means no receipts were ever recorded for this txid
// — the caller must separately check whether the containing block has
// been indexed yet to distinguish "no events" from "not yet indexed".
func (s *Store) ForTx(txid ordinal.Txid) ([]Receipt, error) {
	prefix := append(append([]byte{}, prefixTxReceipts...), txid.Bytes()...)
	prefix = append(prefix, '/')

	var receipts []Receipt
	err := s.db.ForEach(prefix, func(_, value []byte) error {
		var r Receipt
		if err := json.Unmarshal(value, &r); err != nil {
			return nil // skip corrupt entries rather than fail the whole scan
		}
		receipts = append(receipts, r)
		return nil
	})
	return receipts, err
}

func receiptKey(txid ordinal.Txid, seq uint64) []byte {
	key := make([]byte, len(prefixTxReceipts)+32+1+8)
	n := copy(key, prefixTxReceipts)
	n += copy(key[n:], txid.Bytes())
	key[n] = '/'
	n++
	binary.BigEndian.PutUint64(key[n:], seq)
	return key
}
