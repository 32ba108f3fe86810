package wire

import "fmt"

// FeeTiers is the fixed ascending tier array fee values are snapped to
// before transmission, trading fee precision for one byte on the wire
// (spec.md §4.B). Values are satoshis.
var FeeTiers = []uint64{
	0, 1, 2, 5, 10, 20, 50, 100, 200, 500,
	1_000, 2_000, 5_000, 10_000, 20_000, 50_000,
	100_000, 200_000, 500_000, 1_000_000,
	2_000_000, 5_000_000, 10_000_000, 21_000_000,
	50_000_000, 100_000_000, 200_000_000, 500_000_000,
	1_000_000_000, 2_000_000_000, 5_000_000_000, 10_000_000_000,
}

// EncodeFeeTier maps fee to the smallest tier >= fee in FeeTiers and
// returns its index as a single byte. If fee exceeds every tier, the last
// (highest) tier is used.
func EncodeFeeTier(fee uint64) byte {
	for i, tier := range FeeTiers {
		if tier >= fee {
			return byte(i)
		}
	}
	return byte(len(FeeTiers) - 1)
}

// DecodeFeeTier returns the fee value for a tier byte produced by
// EncodeFeeTier.
func DecodeFeeTier(tier byte) (uint64, error) {
	if int(tier) >= len(FeeTiers) {
		return 0, fmt.Errorf("wire: fee tier: index %d out of range", tier)
	}
	return FeeTiers[tier], nil
}
