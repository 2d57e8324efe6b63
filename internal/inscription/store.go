package inscription

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

var (
	prefixIdToEntry       = []byte("n/i2e/")
	prefixIdToSatpoint    = []byte("n/i2s/")
	prefixSatpointToId    = []byte("n/s2i/") // multimap: prefix + satpoint(44) + "/" + id -> ""
	prefixSatToId         = []byte("n/sat2i/")
	prefixNumberToId      = []byte("n/num2i/")
	prefixIdToChildren    = []byte("n/i2c/") // multimap
	prefixReinscriptionSeq = []byte("n/reinsc/")

	keyNextNumber       = []byte("n/s/next")
	keyNextCursedNumber = []byte("n/s/nextcursed")
	keyUnboundCount     = []byte("n/s/unbound")
)

// Store persists inscription identity and location tables.
type Store struct {
	db storage.DB
}

// NewStore wraps db.
func NewStore(db storage.DB) *Store { return &Store{db: db} }

// NextNumbers returns the next blessed and cursed numbers to assign,
// restoring them from storage (0 / -1 on a fresh index).
func (s *Store) NextNumbers() (next, nextCursed int64, err error) {
	next = 0
	nextCursed = -1
	if data, err := s.db.Get(keyNextNumber); err == nil {
		next = int64(be64(data))
	} else if err != storage.ErrNotFound {
		return 0, 0, err
	}
	if data, err := s.db.Get(keyNextCursedNumber); err == nil {
		nextCursed = -int64(be64(data)) - 1
	} else if err != storage.ErrNotFound {
		return 0, 0, err
	}
	return next, nextCursed, nil
}

func (s *Store) PutNextNumbers(b storage.Batch, next, nextCursed int64) error {
	if err := b.Put(keyNextNumber, be64Bytes(uint64(next))); err != nil {
		return err
	}
	return b.Put(keyNextCursedNumber, be64Bytes(uint64(-nextCursed-1)))
}

// UnboundCount returns how many inscriptions have been placed at the
// unbound outpoint so far.
func (s *Store) UnboundCount() (uint64, error) {
	data, err := s.db.Get(keyUnboundCount)
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return be64(data), nil
}

func (s *Store) PutUnboundCount(b storage.Batch, n uint64) error {
	return b.Put(keyUnboundCount, be64Bytes(n))
}

// PutEntry writes an inscription's permanent entry and the number->id index.
func (s *Store) PutEntry(b storage.Batch, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal inscription entry: %w", err)
	}
	if err := b.Put(idKey(e.Id), data); err != nil {
		return err
	}
	return b.Put(numberKey(e.Number), []byte(e.Id.String()))
}

// Entry fetches an inscription's permanent record.
func (s *Store) Entry(id ordinal.InscriptionId) (Entry, bool, error) {
	data, err := s.db.Get(idKey(id))
	if err == storage.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// EntryByNumber resolves an inscription by its assigned number.
func (s *Store) EntryByNumber(number int64) (Entry, bool, error) {
	data, err := s.db.Get(numberKey(number))
	if err == storage.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	id, err := ordinal.ParseInscriptionId(string(data))
	if err != nil {
		return Entry{}, false, err
	}
	return s.Entry(id)
}

// PutSatpoint records where an inscription currently sits, maintaining
// both the forward (id->satpoint) and reverse (satpoint->ids) indexes.
func (s *Store) PutSatpoint(b storage.Batch, id ordinal.InscriptionId, sp ordinal.SatPoint) error {
	if err := b.Put(idToSatpointKey(id), sp.Bytes()); err != nil {
		return err
	}
	return b.Put(satpointToIdKey(sp, id), nil)
}

// RemoveSatpoint removes the reverse index entry for an inscription's old
// location; used when a satpoint is spent and the inscription moves on.
func (s *Store) RemoveSatpoint(b storage.Batch, old ordinal.SatPoint, id ordinal.InscriptionId) error {
	return b.Delete(satpointToIdKey(old, id))
}

// Satpoint looks up an inscription's current location.
func (s *Store) Satpoint(id ordinal.InscriptionId) (ordinal.SatPoint, bool, error) {
	data, err := s.db.Get(idToSatpointKey(id))
	if err == storage.ErrNotFound {
		return ordinal.SatPoint{}, false, nil
	}
	if err != nil {
		return ordinal.SatPoint{}, false, err
	}
	sp, err := ordinal.ParseSatPointBytes(data)
	return sp, true, err
}

// OldInscription pairs an inscription transferred by spending an input
// with its satpoint on that input.
type OldInscription struct {
	Satpoint ordinal.SatPoint
	Id       ordinal.InscriptionId
}

// InscriptionsOnOutpoint returns, in reinscription sequence order, every
// inscription currently sitting anywhere within outpoint's value — the
// set of inscriptions a transaction spending that outpoint carries
// forward (SPEC_FULL.md §4.5 step 1).
func (s *Store) InscriptionsOnOutpoint(outpoint ordinal.Outpoint) ([]OldInscription, error) {
	prefix := append(append([]byte{}, prefixSatpointToId...), outpoint.Txid.Bytes()...)
	prefix = appendUint32(prefix, outpoint.Vout)

	const satpointLen = 44
	var entries []struct {
		old OldInscription
		seq uint64
	}
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		rest := key[len(prefixSatpointToId):]
		sp, err := ordinal.ParseSatPointBytes(rest[:satpointLen])
		if err != nil {
			return err
		}
		idStr := string(rest[satpointLen+1:]) // skip the '/' separator
		id, err := ordinal.ParseInscriptionId(idStr)
		if err != nil {
			return err
		}
		seq, _ := s.ReinscriptionSeq(id)
		entries = append(entries, struct {
			old OldInscription
			seq uint64
		}{OldInscription{Satpoint: sp, Id: id}, seq})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	result := make([]OldInscription, len(entries))
	for i, e := range entries {
		result[i] = e.old
	}
	return result, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ReinscriptionCount returns how many reinscriptions have been recorded so
// far across the whole index — used as the next reinscription's sequence
// number, mirroring the original's `reinscription_id_to_seq_num.len()`.
func (s *Store) ReinscriptionCount() (uint64, error) {
	var n uint64
	err := s.db.ForEach(prefixReinscriptionSeq, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// PutReinscriptionSeq records the sequence number a reinscription was
// assigned.
func (s *Store) PutReinscriptionSeq(b storage.Batch, id ordinal.InscriptionId, seq uint64) error {
	return b.Put(reinscriptionKey(id), be64Bytes(seq))
}

// ReinscriptionSeq looks up a previously recorded sequence number (0 if
// the inscription was never a reinscription).
func (s *Store) ReinscriptionSeq(id ordinal.InscriptionId) (uint64, bool) {
	data, err := s.db.Get(reinscriptionKey(id))
	if err != nil {
		return 0, false
	}
	return be64(data), true
}

// PutSat indexes a non-common sat's carried inscription.
func (s *Store) PutSat(b storage.Batch, sat ordinal.Sat, id ordinal.InscriptionId) error {
	return b.Put(satToIdKey(sat, id), nil)
}

// PutChild records a parent/child relationship.
func (s *Store) PutChild(b storage.Batch, parent, child ordinal.InscriptionId) error {
	return b.Put(childKey(parent, child), nil)
}

func idKey(id ordinal.InscriptionId) []byte {
	return append(append([]byte{}, prefixIdToEntry...), []byte(id.String())...)
}

func idToSatpointKey(id ordinal.InscriptionId) []byte {
	return append(append([]byte{}, prefixIdToSatpoint...), []byte(id.String())...)
}

func satpointToIdKey(sp ordinal.SatPoint, id ordinal.InscriptionId) []byte {
	key := append(append([]byte{}, prefixSatpointToId...), sp.Bytes()...)
	key = append(key, '/')
	return append(key, []byte(id.String())...)
}

func satToIdKey(sat ordinal.Sat, id ordinal.InscriptionId) []byte {
	key := append(append([]byte{}, prefixSatToId...), be64Bytes(uint64(sat))...)
	key = append(key, '/')
	return append(key, []byte(id.String())...)
}

func numberKey(n int64) []byte {
	// Bias so negative (cursed) numbers sort before zero/positive ones in
	// the same lexical order as their signed integer order.
	return append(append([]byte{}, prefixNumberToId...), be64Bytes(uint64(n+(1<<63)))...)
}

func childKey(parent, child ordinal.InscriptionId) []byte {
	key := append(append([]byte{}, prefixIdToChildren...), []byte(parent.String())...)
	key = append(key, '/')
	return append(key, []byte(child.String())...)
}

func reinscriptionKey(id ordinal.InscriptionId) []byte {
	return append(append([]byte{}, prefixReinscriptionSeq...), []byte(id.String())...)
}

func be64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func be64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(v >> (8 * i))
	}
	return buf
}
