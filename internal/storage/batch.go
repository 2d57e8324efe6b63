package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// undoPrefix namespaces the per-height undo logs written alongside a
// block's own table writes, so a later reorg can restore any height
// within the retained window without Badger-native snapshots.
var undoPrefix = []byte("$undo/")

func undoKey(height uint64) []byte {
	key := make([]byte, len(undoPrefix)+8)
	copy(key, undoPrefix)
	binary.BigEndian.PutUint64(key[len(undoPrefix):], height)
	return key
}

// UndoEntry records a key's value immediately before a write touched it,
// so the write can be reversed: Existed distinguishes "the key was
// absent" (reverse with Delete) from "the key held OldValue" (reverse
// with Put).
type UndoEntry struct {
	Key      []byte `json:"k"`
	OldValue []byte `json:"v,omitempty"`
	Existed  bool   `json:"e"`
}

// RecordingBatch wraps a Batch, recording each key's pre-write value the
// first time it is touched at the current height, so the batch's writes
// can be reverted per height later. This generalizes the teacher's
// single-table UndoData (internal/chain/reorg.go) to an arbitrary number
// of tables (inscriptions, sat ranges, BRC-20/BRC-20-S ledgers,
// receipts) by recording raw key/value pairs instead of one typed undo
// struct per table.
//
// Call BeginHeight before indexing each block; every Put/Delete that
// follows is attributed to that height until the next BeginHeight.
// Commit flushes the accumulated undo logs (one per height touched
// since the last Commit) into the same underlying transaction as the
// writes themselves, so undo data and the writes it describes are never
// observed out of sync.
type RecordingBatch struct {
	db     DB
	inner  Batch
	height uint64
	undo   map[uint64][]UndoEntry
	seen   map[uint64]map[string]bool
}

// NewRecordingBatch wraps inner, reading pre-images from db.
func NewRecordingBatch(db DB, inner Batch) *RecordingBatch {
	return &RecordingBatch{
		db:    db,
		inner: inner,
		undo:  make(map[uint64][]UndoEntry),
		seen:  make(map[uint64]map[string]bool),
	}
}

// BeginHeight starts (or resumes) the undo bucket for height.
func (r *RecordingBatch) BeginHeight(height uint64) {
	r.height = height
	if r.seen[height] == nil {
		r.seen[height] = make(map[string]bool)
	}
}

func (r *RecordingBatch) record(key []byte) error {
	seen := r.seen[r.height]
	k := string(key)
	if seen[k] {
		return nil
	}
	seen[k] = true

	val, err := r.db.Get(key)
	if err == ErrNotFound {
		r.undo[r.height] = append(r.undo[r.height], UndoEntry{Key: append([]byte(nil), key...), Existed: false})
		return nil
	}
	if err != nil {
		return fmt.Errorf("record undo for %x: %w", key, err)
	}
	r.undo[r.height] = append(r.undo[r.height], UndoEntry{
		Key:      append([]byte(nil), key...),
		OldValue: append([]byte(nil), val...),
		Existed:  true,
	})
	return nil
}

// Put records the key's pre-image, then forwards to the inner batch.
func (r *RecordingBatch) Put(key, value []byte) error {
	if err := r.record(key); err != nil {
		return err
	}
	return r.inner.Put(key, value)
}

// Delete records the key's pre-image, then forwards to the inner batch.
func (r *RecordingBatch) Delete(key []byte) error {
	if err := r.record(key); err != nil {
		return err
	}
	return r.inner.Delete(key)
}

// Commit writes every height's accumulated undo log, then commits the
// underlying transaction so the writes and their undo data land
// atomically together.
func (r *RecordingBatch) Commit() error {
	for height, entries := range r.undo {
		data, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshal undo log for height %d: %w", height, err)
		}
		if err := r.inner.Put(undoKey(height), data); err != nil {
			return fmt.Errorf("write undo log for height %d: %w", height, err)
		}
	}
	r.undo = make(map[uint64][]UndoEntry)
	r.seen = make(map[uint64]map[string]bool)
	return r.inner.Commit()
}

// LoadUndoLog reads back the undo entries committed for height, if any.
func LoadUndoLog(db DB, height uint64) ([]UndoEntry, bool, error) {
	data, err := db.Get(undoKey(height))
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []UndoEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false, fmt.Errorf("unmarshal undo log for height %d: %w", height, err)
	}
	return entries, true, nil
}

// RevertHeight reverses the writes an undo log recorded for height, then
// deletes the log itself, using one batch so the revert is atomic.
func RevertHeight(db Batcher, plain DB, height uint64) error {
	entries, ok, err := LoadUndoLog(plain, height)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no undo log retained for height %d", height)
	}

	b := db.NewBatch()
	for _, e := range entries {
		if e.Existed {
			if err := b.Put(e.Key, e.OldValue); err != nil {
				return fmt.Errorf("revert restore %x: %w", e.Key, err)
			}
			continue
		}
		if err := b.Delete(e.Key); err != nil {
			return fmt.Errorf("revert delete %x: %w", e.Key, err)
		}
	}
	if err := b.Delete(undoKey(height)); err != nil {
		return fmt.Errorf("drop undo log for height %d: %w", height, err)
	}
	return b.Commit()
}
