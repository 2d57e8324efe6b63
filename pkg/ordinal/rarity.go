package ordinal

// DifficultyAdjustmentInterval is the number of blocks between Bitcoin
// difficulty retargets.
const DifficultyAdjustmentInterval = 2016

// Rarity classifies a sat by its position in the subsidy timeline.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
	RarityMythic
)

func (r Rarity) String() string {
	switch r {
	case RarityUncommon:
		return "uncommon"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	case RarityMythic:
		return "mythic"
	default:
		return "common"
	}
}

// Degree computes the sat's (hour, minute, second, third) rarity address.
func (s Sat) Degree() Degree {
	height := s.Height()
	epoch := s.Epoch()
	epochStart := epoch * SubsidyHalvingInterval
	blockStartSat := epochStartSat(epoch) + Sat(subsidyAt(epoch))*Sat(height-epochStart)

	return Degree{
		Hour:   epoch,
		Minute: height - epochStart,
		Second: height % DifficultyAdjustmentInterval,
		Third:  uint64(s - blockStartSat),
	}
}

func subsidyAt(epoch uint32) uint64 {
	return uint64(50*100_000_000) >> epoch
}

// Rarity classifies the sat.
func (s Sat) Rarity() Rarity {
	d := s.Degree()
	switch {
	case d.Hour == 0 && d.Minute == 0 && d.Second == 0 && d.Third == 0:
		return RarityMythic
	case d.Minute == 0 && d.Second == 0 && d.Third == 0:
		return RarityLegendary
	case d.Second == 0 && d.Third == 0:
		return RarityEpic
	case d.Minute == 0 && d.Third == 0:
		return RarityRare
	case d.Third == 0:
		return RarityUncommon
	default:
		return RarityCommon
	}
}

// IsCommon reports whether the sat has no special rarity; only
// non-common sats get a `sat_number -> satpoint` index entry (spec §3).
func (s Sat) IsCommon() bool {
	return s.Rarity() == RarityCommon
}
