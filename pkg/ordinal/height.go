package ordinal

// Height is a block height, used for subsidy and starting-sat arithmetic —
// the inverse direction of Sat.Height/Sat.Epoch.
type Height uint64

// Subsidy returns the block reward at this height, in satoshis.
func (h Height) Subsidy() uint64 {
	epoch := uint64(h) / SubsidyHalvingInterval
	if epoch >= 64 {
		return 0
	}
	return (50 * 100_000_000) >> epoch
}

// StartingSat returns the ordinal number of the first sat mined at this
// height (the first sat of its block's coinbase subsidy range).
func (h Height) StartingSat() Sat {
	epoch := uint32(uint64(h) / SubsidyHalvingInterval)
	epochStart := epochStartSat(epoch)
	blocksIntoEpoch := uint64(h) - uint64(epoch)*SubsidyHalvingInterval
	subsidy := subsidyAt(epoch)
	return epochStart + Sat(subsidy*blocksIntoEpoch)
}
