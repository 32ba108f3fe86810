// Package dutycycle enforces per-region regulatory airtime limits and gates
// transmissions against a sliding-window ledger (spec.md §4.E).
package dutycycle

// Band is one sub-band of a regional preset (spec.md §3 DutyCycleBand).
type Band struct {
	MinMHz           float64
	MaxMHz           float64
	DutyCyclePercent float64
	MaxEIRPdBm       float64
}

func (b Band) contains(mhz float64) bool {
	return mhz >= b.MinMHz && mhz <= b.MaxMHz
}

// Region is a compile-time regulatory preset: a set of bands plus
// hopping/dwell rules (spec.md §6 "Regional configuration").
type Region struct {
	Code              string
	RegulatoryBody    string
	Bands             []Band
	FrequencyHopping  bool
	DwellTimeMs       int
}

// BandOf returns the band covering mhz, if any.
func (r Region) BandOf(mhz float64) (Band, bool) {
	for _, b := range r.Bands {
		if b.contains(mhz) {
			return b, true
		}
	}
	return Band{}, false
}

// Regions is the compile-time table of regulatory presets (spec.md §6).
// EU868 sub-bands are given exactly by the spec; the remaining regions use
// the single headline duty-cycle/EIRP figure commonly cited for each
// region's license-free ISM allocation.
var Regions = map[string]Region{
	"EU": {
		Code:           "EU",
		RegulatoryBody: "ETSI EN 300 220 / ERC REC 70-03",
		Bands: []Band{
			{MinMHz: 863.0, MaxMHz: 865.0, DutyCyclePercent: 0.1, MaxEIRPdBm: 14},
			{MinMHz: 865.0, MaxMHz: 868.0, DutyCyclePercent: 1.0, MaxEIRPdBm: 14},
			{MinMHz: 868.0, MaxMHz: 868.6, DutyCyclePercent: 1.0, MaxEIRPdBm: 14},
			{MinMHz: 868.7, MaxMHz: 869.2, DutyCyclePercent: 0.1, MaxEIRPdBm: 14},
			{MinMHz: 869.4, MaxMHz: 869.65, DutyCyclePercent: 10.0, MaxEIRPdBm: 27},
			{MinMHz: 869.7, MaxMHz: 870.0, DutyCyclePercent: 1.0, MaxEIRPdBm: 14},
		},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"US": {
		Code:             "US",
		RegulatoryBody:   "FCC Part 15.247",
		Bands:            []Band{{MinMHz: 902.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: true,
		DwellTimeMs:      400,
	},
	"CA": {
		Code:             "CA",
		RegulatoryBody:   "ISED RSS-247",
		Bands:            []Band{{MinMHz: 902.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: true,
		DwellTimeMs:      400,
	},
	"MX": {
		Code:             "MX",
		RegulatoryBody:   "IFT",
		Bands:            []Band{{MinMHz: 902.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: true,
		DwellTimeMs:      400,
	},
	"JP": {
		Code:             "JP",
		RegulatoryBody:   "ARIB STD-T108",
		Bands:            []Band{{MinMHz: 920.0, MaxMHz: 928.0, DutyCyclePercent: 10, MaxEIRPdBm: 13}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"AU": {
		Code:             "AU",
		RegulatoryBody:   "ACMA",
		Bands:            []Band{{MinMHz: 915.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"NZ": {
		Code:             "NZ",
		RegulatoryBody:   "RSM",
		Bands:            []Band{{MinMHz: 915.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"BR": {
		Code:             "BR",
		RegulatoryBody:   "ANATEL",
		Bands:            []Band{{MinMHz: 902.0, MaxMHz: 907.5, DutyCyclePercent: 100, MaxEIRPdBm: 30}, {MinMHz: 915.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"AR": {
		Code:             "AR",
		RegulatoryBody:   "ENACOM",
		Bands:            []Band{{MinMHz: 902.0, MaxMHz: 928.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"IN": {
		Code:             "IN",
		RegulatoryBody:   "WPC",
		Bands:            []Band{{MinMHz: 865.0, MaxMHz: 867.0, DutyCyclePercent: 100, MaxEIRPdBm: 30}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"RU": {
		Code:             "RU",
		RegulatoryBody:   "GKRCh",
		Bands:            []Band{{MinMHz: 864.0, MaxMHz: 870.0, DutyCyclePercent: 1.0, MaxEIRPdBm: 14}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"KR": {
		Code:             "KR",
		RegulatoryBody:   "KCC",
		Bands:            []Band{{MinMHz: 920.0, MaxMHz: 923.0, DutyCyclePercent: 100, MaxEIRPdBm: 23}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"CN": {
		Code:             "CN",
		RegulatoryBody:   "MIIT",
		Bands:            []Band{{MinMHz: 470.0, MaxMHz: 510.0, DutyCyclePercent: 1.0, MaxEIRPdBm: 19}, {MinMHz: 779.0, MaxMHz: 787.0, DutyCyclePercent: 1.0, MaxEIRPdBm: 12.15}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
	"ZA": {
		Code:             "ZA",
		RegulatoryBody:   "ICASA",
		Bands:            []Band{{MinMHz: 863.0, MaxMHz: 868.0, DutyCyclePercent: 1.0, MaxEIRPdBm: 14}},
		FrequencyHopping: false,
		DwellTimeMs:      0,
	},
}
