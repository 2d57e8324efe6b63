// Package chainstate tracks the chain the indexer has already processed:
// the height-to-hash table used to detect reorgs, running statistics, and
// the schema version gate described in SPEC_FULL.md §4.1 and §4.11.
package chainstate

import (
	"encoding/binary"
	"fmt"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// SchemaVersion is bumped whenever the on-disk key layout changes in a way
// that is not backward compatible. Store refuses to open a database stamped
// with a newer version than it knows, and wipes/rebuilds one stamped with an
// older version is left to the caller (SPEC_FULL.md §4.11).
const SchemaVersion = 1

var (
	prefixHeightToHash = []byte("c/h2b/") // height(8) -> block hash (32)
	prefixHashToHeight = []byte("c/b2h/") // block hash (32) -> height(8)

	keySchemaVersion  = []byte("c/s/schema")
	keyHeight         = []byte("c/s/height")
	keyTipHash        = []byte("c/s/tip")
	keyBlocksIndexed  = []byte("c/s/stat/blocks")
	keyInscriptions   = []byte("c/s/stat/inscriptions")
	keyCursed         = []byte("c/s/stat/cursed")
	keyBRC20Txs       = []byte("c/s/stat/brc20txs")
	keyBRC20STxs      = []byte("c/s/stat/brc20stxs")
)

// ErrSchemaMismatch is returned by Open when the database's stamped schema
// version is newer than this binary understands.
type ErrSchemaMismatch struct {
	Got, Want int
}

func (e ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("chainstate: database schema version %d is newer than supported version %d", e.Got, e.Want)
}

// Store is the height<->hash table plus running counters for the chain the
// indexer has committed so far.
type Store struct {
	db storage.DB
}

// Open wraps db and verifies (or stamps) the schema version.
func Open(db storage.DB) (*Store, error) {
	s := &Store{db: db}

	data, err := db.Get(keySchemaVersion)
	if err == storage.ErrNotFound {
		if err := s.putUint64(keySchemaVersion, uint64(SchemaVersion)); err != nil {
			return nil, fmt.Errorf("stamping schema version: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	got := int(binary.BigEndian.Uint64(data))
	if got > SchemaVersion {
		return nil, ErrSchemaMismatch{Got: got, Want: SchemaVersion}
	}
	return s, nil
}

// Height returns the height of the last block committed, and false if the
// index is empty.
func (s *Store) Height() (uint64, bool, error) {
	data, err := s.db.Get(keyHeight)
	if err == storage.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// Tip returns the hash of the last block committed.
func (s *Store) Tip() (ordinal.BlockHash, error) {
	data, err := s.db.Get(keyTipHash)
	if err == storage.ErrNotFound {
		return ordinal.BlockHash{}, nil
	}
	if err != nil {
		return ordinal.BlockHash{}, err
	}
	var h ordinal.BlockHash
	copy(h[:], data)
	return h, nil
}

// HashAt returns the hash committed at height, or storage.ErrNotFound.
func (s *Store) HashAt(height uint64) (ordinal.BlockHash, error) {
	data, err := s.db.Get(heightKey(height))
	if err != nil {
		return ordinal.BlockHash{}, err
	}
	var h ordinal.BlockHash
	copy(h[:], data)
	return h, nil
}

// HeightOf returns the height committed for hash, or storage.ErrNotFound.
func (s *Store) HeightOf(hash ordinal.BlockHash) (uint64, error) {
	data, err := s.db.Get(hashKey(hash))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// PutBlock records that hash was committed at height, advancing the tip.
// Callers batch this via storage.Batch during normal indexing (§3:
// "1..=200 blocks" per write transaction).
func PutBlock(b storage.Batch, height uint64, hash ordinal.BlockHash) error {
	if err := b.Put(heightKey(height), hash[:]); err != nil {
		return err
	}
	if err := b.Put(hashKey(hash), heightBytes(height)); err != nil {
		return err
	}
	if err := b.Put(keyHeight, heightBytes(height)); err != nil {
		return err
	}
	if err := b.Put(keyTipHash, hash[:]); err != nil {
		return err
	}
	return nil
}

// RemoveBlock undoes PutBlock for a block being rolled back during a reorg.
// newTipHeight/newTipHash become the new recorded tip.
func RemoveBlock(b storage.Batch, height uint64, hash ordinal.BlockHash, newTipHeight uint64, newTipHash ordinal.BlockHash) error {
	if err := b.Delete(heightKey(height)); err != nil {
		return err
	}
	if err := b.Delete(hashKey(hash)); err != nil {
		return err
	}
	if err := b.Put(keyHeight, heightBytes(newTipHeight)); err != nil {
		return err
	}
	if err := b.Put(keyTipHash, newTipHash[:]); err != nil {
		return err
	}
	return nil
}

// Stats holds the running counters surfaced by the read API.
type Stats struct {
	BlocksIndexed uint64
	Inscriptions  uint64
	Cursed        uint64
	BRC20Txs      uint64
	BRC20STxs     uint64
}

// Stats returns the current running counters.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	var err error
	if st.BlocksIndexed, err = s.getCounter(keyBlocksIndexed); err != nil {
		return st, err
	}
	if st.Inscriptions, err = s.getCounter(keyInscriptions); err != nil {
		return st, err
	}
	if st.Cursed, err = s.getCounter(keyCursed); err != nil {
		return st, err
	}
	if st.BRC20Txs, err = s.getCounter(keyBRC20Txs); err != nil {
		return st, err
	}
	if st.BRC20STxs, err = s.getCounter(keyBRC20STxs); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Store) getCounter(key []byte) (uint64, error) {
	data, err := s.db.Get(key)
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// IncrCounter bumps the running counter stored under key by delta inside a
// write batch, reading the current value from db. The counter
// keys aren't contended across goroutines: the indexer is single-writer
// (SPEC_FULL.md §4.1).
func IncrCounter(b storage.Batch, db storage.DB, key []byte, delta uint64) error {
	cur, err := readCounter(db, key)
	if err != nil {
		return err
	}
	return b.Put(key, heightBytes(cur+delta))
}

func readCounter(db storage.DB, key []byte) (uint64, error) {
	data, err := db.Get(key)
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// Counter keys exposed for callers that batch increments themselves.
var (
	KeyBlocksIndexed = keyBlocksIndexed
	KeyInscriptions  = keyInscriptions
	KeyCursed        = keyCursed
	KeyBRC20Txs      = keyBRC20Txs
	KeyBRC20STxs     = keyBRC20STxs
)

func (s *Store) putUint64(key []byte, v uint64) error {
	return s.db.Put(key, heightBytes(v))
}

func heightBytes(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return buf
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeightToHash)+8)
	copy(key, prefixHeightToHash)
	binary.BigEndian.PutUint64(key[len(prefixHeightToHash):], height)
	return key
}

func hashKey(hash ordinal.BlockHash) []byte {
	key := make([]byte, len(prefixHashToHeight)+32)
	copy(key, prefixHashToHeight)
	copy(key[len(prefixHashToHeight):], hash[:])
	return key
}
