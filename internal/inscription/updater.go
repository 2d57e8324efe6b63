package inscription

import (
	"sort"

	"github.com/brc20labs/ordindexer/internal/storage"
	"github.com/brc20labs/ordindexer/pkg/ordinal"
)

// Origin distinguishes an inscription moving with its carrying sat
// (Old) from one freshly revealed in the current transaction (New).
type Origin int

const (
	OriginOld Origin = iota
	OriginNew
)

// Flotsam is an inscription in transit during a transaction: not yet
// assigned to an output. The name and mechanics follow the original
// indexer's Updater::flotsam handling (SPEC_FULL.md §4.5).
type Flotsam struct {
	InscriptionId ordinal.InscriptionId
	Offset        uint64
	Origin        Origin

	// Old
	OldSatpoint ordinal.SatPoint

	// New
	Cursed      bool
	Unbound     bool
	Fee         uint64
	Parent      *ordinal.InscriptionId
	ContentType string
	Body        []byte
}

// CalculateSat maps an offset within a transaction's combined input sat
// ranges back to the absolute sat number at that position. The updater
// doesn't own sat-range bookkeeping itself (internal/satoshi does); the
// caller supplies this closure built from that transaction's ranges. A
// false second return means the offset has no tracked sat (commonly
// because sat indexing is disabled).
type CalculateSat func(offset uint64) (ordinal.Sat, bool)

// Updater drives the inscription curse/transport state machine across a
// block, one transaction at a time.
type Updater struct {
	store *Store

	height    uint64
	timestamp int64
	reward    uint64 // remaining coinbase reward available for fees/lost sats

	nextNumber         int64
	nextCursedNumber   int64
	unboundCount       uint64
	reinscriptionCount uint64

	// carried forward across transactions within the same block: flotsam
	// that overshot every output's value and is treated as a fee, to be
	// resolved against the coinbase transaction's excess reward.
	pending []Flotsam

	Operations []Op
}

// NewUpdater opens an updater for the block at height, restoring
// counters from store.
func NewUpdater(store *Store, height uint64, timestamp int64) (*Updater, error) {
	next, nextCursed, err := store.NextNumbers()
	if err != nil {
		return nil, err
	}
	unbound, err := store.UnboundCount()
	if err != nil {
		return nil, err
	}
	reinscriptions, err := store.ReinscriptionCount()
	if err != nil {
		return nil, err
	}
	return &Updater{
		store:              store,
		height:             height,
		timestamp:          timestamp,
		reward:             ordinal.Height(height).Subsidy(),
		nextNumber:         next,
		nextCursedNumber:   nextCursed,
		unboundCount:       unbound,
		reinscriptionCount: reinscriptions,
	}, nil
}

// Flush persists the updater's running counters. Call once per block
// after every transaction has been indexed.
func (u *Updater) Flush(b storage.Batch) error {
	if err := u.store.PutNextNumbers(b, u.nextNumber, u.nextCursedNumber); err != nil {
		return err
	}
	return u.store.PutUnboundCount(b, u.unboundCount)
}

// IndexTransaction runs the inscription state machine for one
// transaction: gathering inscriptions riding along on its inputs,
// discovering new envelopes, computing curse/unbound/fee for each, and
// transporting every resulting flotsam onto the transaction's outputs
// (or carrying it forward as a fee).
//
// inputOutpoints and inputValues are parallel to tx.TxIn; outputValues
// is parallel to tx.TxOut. isCoinbase marks the block's first
// transaction, whose leftover flotsam resolves against the block
// reward instead of being carried to a following transaction.
func (u *Updater) IndexTransaction(
	b storage.Batch,
	txid ordinal.Txid,
	inputOutpoints []ordinal.Outpoint,
	inputValues []int64,
	outputValues []int64,
	envelopes []Envelope,
	isCoinbase bool,
	calculateSat CalculateSat,
) error {
	var flotsam []Flotsam
	var totalInputValue uint64
	inscribedOffsets := make(map[uint64]int)

	// Step 1: enumerate existing inscriptions on each input, in order,
	// recording the sat offset (from the start of the transaction's
	// combined input value) each one currently sits at.
	for i, outpoint := range inputOutpoints {
		old, err := u.store.InscriptionsOnOutpoint(outpoint)
		if err != nil {
			return err
		}
		for _, oi := range old {
			offset := totalInputValue + oi.Satpoint.Offset
			flotsam = append(flotsam, Flotsam{
				InscriptionId: oi.Id,
				Offset:        offset,
				Origin:        OriginOld,
				OldSatpoint:   oi.Satpoint,
			})
			inscribedOffsets[offset]++
		}
		totalInputValue += uint64(valueAt(inputValues, i))
	}

	// potentialParents is the set of inscription ids this transaction
	// itself reveals, the only ones a same-transaction `parent` field
	// may reference without already being indexed.
	potentialParents := make(map[ordinal.InscriptionId]bool)
	idCounter := 0
	var newFlotsam []Flotsam

	for _, env := range envelopes {
		inputOffset := cumulativeInputValue(inputValues, env.InputIndex)
		satOffset := inputOffset

		curse := false
		switch {
		case env.UnrecognizedEvenField:
			curse = true
		case env.InputIndex != 0:
			curse = true
		case env.Offset != 0:
			curse = true
		case inscribedOffsets[satOffset] > 0:
			// Reinscription: special-cased below once we know whether
			// the sat's initial inscription was itself cursed.
			curse = true
		}

		cursed := curse
		if curse && env.Offset == 0 && env.InputIndex == 0 && !env.UnrecognizedEvenField && inscribedOffsets[satOffset] > 0 {
			firstReinscription := u.reinscriptionCount == 0 || inscribedOffsets[satOffset] == 1
			initialCursed := u.isInitialInscriptionCursed(flotsam, satOffset)
			cursed = !(firstReinscription && initialCursed)
		}

		unbound := valueAt(inputValues, env.InputIndex) == 0 || env.Offset != 0 || env.UnrecognizedEvenField

		id := ordinal.InscriptionId{Txid: txid, Index: uint32(idCounter)}
		idCounter++
		potentialParents[id] = true

		var parent *ordinal.InscriptionId
		if pid, ok := ordinal.ParseInscriptionIdBytes(env.Parent); ok {
			parent = &pid
		}

		fs := Flotsam{
			InscriptionId: id,
			Offset:        satOffset,
			Origin:        OriginNew,
			Cursed:        cursed,
			Unbound:       unbound,
			Parent:        parent,
			ContentType:   string(env.ContentType),
			Body:          env.Body,
		}
		newFlotsam = append(newFlotsam, fs)
		inscribedOffsets[satOffset]++
	}

	// Step: validate parents. A parent reference only counts if it is
	// already indexed, or was itself revealed earlier in this same
	// transaction.
	for i := range newFlotsam {
		fs := &newFlotsam[i]
		if fs.Parent == nil {
			continue
		}
		if potentialParents[*fs.Parent] {
			continue
		}
		if _, ok, err := u.store.Entry(*fs.Parent); err != nil {
			return err
		} else if ok {
			continue
		}
		fs.Parent = nil
	}

	// Step: split the transaction's net value loss evenly across every
	// newly revealed inscription as its creation fee.
	var totalOutputValue uint64
	for _, v := range outputValues {
		if v > 0 {
			totalOutputValue += uint64(v)
		}
	}
	if len(newFlotsam) > 0 && totalInputValue > totalOutputValue {
		fee := (totalInputValue - totalOutputValue) / uint64(len(newFlotsam))
		for i := range newFlotsam {
			newFlotsam[i].Fee = fee
		}
	}

	flotsam = append(flotsam, newFlotsam...)

	// A coinbase transaction also receives every flotsam carried over
	// from earlier transactions in the block (fees accumulated so far).
	if isCoinbase {
		flotsam = append(flotsam, u.pending...)
		u.pending = nil
	}

	sort.SliceStable(flotsam, func(i, j int) bool { return flotsam[i].Offset < flotsam[j].Offset })

	// Transport: walk the outputs in order, handing each flotsam to the
	// output range containing its offset.
	var cumulative uint64
	fi := 0
	for vout, value := range outputValues {
		v := value
		if v < 0 {
			v = 0
		}
		end := cumulative + uint64(v)
		for fi < len(flotsam) && flotsam[fi].Offset < end {
			fs := flotsam[fi]
			newSatpoint := ordinal.SatPoint{
				Outpoint: ordinal.Outpoint{Txid: txid, Vout: uint32(vout)},
				Offset:   fs.Offset - cumulative,
			}
			if err := u.transport(b, txid, fs, newSatpoint, calculateSat); err != nil {
				return err
			}
			fi++
		}
		cumulative = end
	}

	// Whatever remains didn't fit in any output: it's a fee. Coinbase
	// resolves it against lost sats (handled by the satoshi tracker
	// from the leftover input ranges, not here); non-coinbase carries
	// it forward, rebased onto the eventual coinbase's reward.
	for ; fi < len(flotsam); fi++ {
		fs := flotsam[fi]
		if isCoinbase {
			newSatpoint := ordinal.SatPoint{
				Outpoint: ordinal.NullOutpoint,
				Offset:   u.reward + fs.Offset - cumulative,
			}
			if err := u.transport(b, txid, fs, newSatpoint, calculateSat); err != nil {
				return err
			}
			continue
		}
		fs.Offset = u.reward + fs.Offset - cumulative
		u.pending = append(u.pending, fs)
	}
	if !isCoinbase {
		u.reward += totalInputValue - totalOutputValue
	}

	return nil
}

// transport finalizes one flotsam's placement: assigning a number if
// it's newly revealed, writing its permanent entry, and recording its
// location.
func (u *Updater) transport(b storage.Batch, txid ordinal.Txid, fs Flotsam, newSatpoint ordinal.SatPoint, calculateSat CalculateSat) error {
	if fs.Origin == OriginOld {
		if err := u.store.RemoveSatpoint(b, fs.OldSatpoint, fs.InscriptionId); err != nil {
			return err
		}
		old := fs.OldSatpoint
		return u.finalizeLocation(b, txid, fs.InscriptionId, &old, newSatpoint, false, false, nil)
	}

	var number int64
	if fs.Cursed {
		number = u.nextCursedNumber
		u.nextCursedNumber--
	} else {
		number = u.nextNumber
		u.nextNumber++
	}

	var sat *ordinal.Sat
	if !fs.Unbound && calculateSat != nil {
		if s, ok := calculateSat(fs.Offset); ok {
			sat = &s
		}
	}

	entry := Entry{
		Id:          fs.InscriptionId,
		Number:      number,
		Fee:         fs.Fee,
		Height:      u.height,
		Timestamp:   u.timestamp,
		Sat:         sat,
		Parent:      fs.Parent,
		ContentType: fs.ContentType,
		Body:        fs.Body,
		Cursed:      fs.Cursed,
		Unbound:     fs.Unbound,
	}
	if err := u.store.PutEntry(b, entry); err != nil {
		return err
	}
	if sat != nil {
		if err := u.store.PutSat(b, *sat, fs.InscriptionId); err != nil {
			return err
		}
	}
	if fs.Parent != nil {
		if err := u.store.PutChild(b, *fs.Parent, fs.InscriptionId); err != nil {
			return err
		}
	}
	if fs.Cursed {
		seq := u.reinscriptionCount
		u.reinscriptionCount++
		if err := u.store.PutReinscriptionSeq(b, fs.InscriptionId, seq); err != nil {
			return err
		}
	}

	return u.finalizeLocation(b, txid, fs.InscriptionId, nil, newSatpoint, true, fs.Unbound, &entry)
}

// finalizeLocation records an inscription's satpoint and appends the
// resulting Op. known carries the entry assigned earlier in this same
// batch for newly-revealed inscriptions: the store's entry for it isn't
// readable yet (PutEntry only becomes visible to Get after the batch
// commits), so a fresh read here would miss it and the engines downstream
// would never see the envelope body they need to parse.
func (u *Updater) finalizeLocation(b storage.Batch, txid ordinal.Txid, id ordinal.InscriptionId, oldSatpoint *ordinal.SatPoint, newSatpoint ordinal.SatPoint, isNew, unbound bool, known *Entry) error {
	final := newSatpoint
	if isNew && unbound {
		final = ordinal.UnboundSatPoint(u.unboundCount)
		u.unboundCount++
	}
	if err := u.store.PutSatpoint(b, id, final); err != nil {
		return err
	}

	action := ActionTransfer
	if isNew {
		action = ActionNew
	}
	op := Op{
		Txid:          txid,
		InscriptionId: id,
		Action:        action,
		OldSatpoint:   oldSatpoint,
		NewSatpoint:   final,
	}
	if known != nil {
		op.InscriptionNumber = known.Number
		op.Cursed = known.Cursed
		op.Unbound = known.Unbound
		op.ContentType = known.ContentType
		op.Body = known.Body
	} else if entry, ok, err := u.store.Entry(id); err == nil && ok {
		op.InscriptionNumber = entry.Number
		op.Cursed = entry.Cursed
		op.Unbound = entry.Unbound
		op.ContentType = entry.ContentType
		op.Body = entry.Body
	}
	u.Operations = append(u.Operations, op)
	return nil
}

func (u *Updater) isInitialInscriptionCursed(flotsam []Flotsam, offset uint64) bool {
	for _, fs := range flotsam {
		if fs.Offset == offset && fs.Origin == OriginOld {
			// already-indexed: its curse status comes from its stored entry
			entry, ok, err := u.store.Entry(fs.InscriptionId)
			return err == nil && ok && entry.Cursed
		}
	}
	return true
}

func cumulativeInputValue(values []int64, uptoInputIndex int) uint64 {
	var total uint64
	for i := 0; i < uptoInputIndex && i < len(values); i++ {
		if values[i] > 0 {
			total += uint64(values[i])
		}
	}
	return total
}

func valueAt(values []int64, i int) int64 {
	if i < 0 || i >= len(values) {
		return 0
	}
	return values[i]
}
