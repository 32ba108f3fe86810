package dutycycle

import (
	"rubin.dev/mesh/internal/meshtransport"
)

// TransmissionRecord is an append-only audit entry for one frame sent
// on-air (spec.md §3).
type TransmissionRecord struct {
	StartMs     int64
	DurationMs  int64
	Frequency   float64
	PowerLevel  float64
	MessageType meshtransport.MessageType
}

func (r TransmissionRecord) endMs() int64 { return r.StartMs + r.DurationMs }

// Config controls one node's duty-cycle manager (spec.md §6).
type Config struct {
	Region                   string
	MaxDutyCyclePercentOverride float64 // 0 disables the override
	TrackingWindowHours      float64
	MaxTransmissionTimeMs    int64
	EmergencyOverrideEnabled bool
	StrictComplianceMode     bool
	WarnThreshold            float64
}

// DefaultConfig mirrors the reference defaults.
func DefaultConfig(region string) Config {
	return Config{
		Region:                region,
		TrackingWindowHours:   1,
		MaxTransmissionTimeMs: 2000,
		WarnThreshold:         0.80,
	}
}

// Ledger keeps a sliding-window record of transmissions and answers
// admission questions against a Region's per-band duty cycle (spec.md §4.E).
type Ledger struct {
	cfg     Config
	region  Region
	records []TransmissionRecord
}

// NewLedger returns a ledger for cfg, failing with ConfigInvalid if the
// region is unrecognized.
func NewLedger(cfg Config) (*Ledger, error) {
	region, ok := Regions[cfg.Region]
	if !ok {
		return nil, meshtransport.New(meshtransport.ConfigInvalid, "dutycycle.NewLedger", nil)
	}
	if cfg.TrackingWindowHours <= 0 {
		cfg.TrackingWindowHours = 1
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = 0.80
	}
	return &Ledger{cfg: cfg, region: region}, nil
}

func (l *Ledger) windowMs() int64 {
	return int64(l.cfg.TrackingWindowHours * 3600 * 1000)
}

// prune drops records that have fully slid out of the window as of nowMs.
func (l *Ledger) prune(nowMs int64) {
	cutoff := nowMs - l.windowMs()
	kept := l.records[:0]
	for _, r := range l.records {
		if r.endMs() > cutoff {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

// UsedMs returns total airtime used within the tracking window by band b, as
// of nowMs.
func (l *Ledger) UsedMs(b Band, nowMs int64) int64 {
	l.prune(nowMs)
	cutoff := nowMs - l.windowMs()
	var used int64
	for _, r := range l.records {
		band, ok := l.region.BandOf(r.Frequency)
		if !ok || band != b {
			continue
		}
		start := r.StartMs
		if start < cutoff {
			start = cutoff
		}
		end := r.endMs()
		if end > nowMs {
			end = nowMs
		}
		if end > start {
			used += end - start
		}
	}
	return used
}

func (l *Ledger) limitPercent(b Band) float64 {
	if l.cfg.MaxDutyCyclePercentOverride > 0 {
		return l.cfg.MaxDutyCyclePercentOverride
	}
	return b.DutyCyclePercent
}

// Admissible reports whether a transmission of durationMs at frequency f is
// allowed without exceeding the band's duty cycle (spec.md §4.E).
func (l *Ledger) Admissible(f float64, durationMs int64, nowMs int64) (bool, Band, error) {
	band, ok := l.region.BandOf(f)
	if !ok {
		return false, Band{}, meshtransport.New(meshtransport.ConfigInvalid, "dutycycle.Admissible", nil)
	}
	used := l.UsedMs(band, nowMs)
	limit := l.limitPercent(band) / 100 * float64(l.windowMs())
	return float64(used+durationMs) <= limit, band, nil
}

// Utilization returns the fraction of the band's duty cycle currently used
// (used/limit, not used/window), so 1.0 means the band is at its regulatory
// cap.
func (l *Ledger) Utilization(b Band, nowMs int64) float64 {
	used := l.UsedMs(b, nowMs)
	limit := l.limitPercent(b) / 100 * float64(l.windowMs())
	if limit <= 0 {
		return 0
	}
	return float64(used) / limit
}

// EarliestAdmissibleAt computes the moment at which durationMs becomes
// admissible again on f, by finding when enough of the oldest contributing
// records will have slid out of the window.
func (l *Ledger) EarliestAdmissibleAt(f float64, durationMs int64, nowMs int64) (int64, error) {
	band, ok := l.region.BandOf(f)
	if !ok {
		return 0, meshtransport.New(meshtransport.ConfigInvalid, "dutycycle.EarliestAdmissibleAt", nil)
	}
	l.prune(nowMs)
	limit := l.limitPercent(band) / 100 * float64(l.windowMs())

	type span struct{ start, end int64 }
	var spans []span
	for _, r := range l.records {
		b2, ok := l.region.BandOf(r.Frequency)
		if !ok || b2 != band {
			continue
		}
		spans = append(spans, span{r.StartMs, r.endMs()})
	}
	// Try candidate release times at each record's window-exit instant,
	// earliest first, until admission would succeed.
	for _, s := range spans {
		candidate := s.end + l.windowMs()
		var used int64
		cutoff := candidate - l.windowMs()
		for _, s2 := range spans {
			start, end := s2.start, s2.end
			if start < cutoff {
				start = cutoff
			}
			if end > candidate {
				end = candidate
			}
			if end > start {
				used += end - start
			}
		}
		if float64(used+durationMs) <= limit {
			return candidate, nil
		}
	}
	return nowMs, nil
}

// Record appends a transmission record to the ledger.
func (l *Ledger) Record(r TransmissionRecord) {
	l.records = append(l.records, r)
}

// Records returns a copy of the currently retained transmission records.
func (l *Ledger) Records() []TransmissionRecord {
	return append([]TransmissionRecord(nil), l.records...)
}

// Restore replaces the ledger's retained records wholesale, e.g. after a
// restart repopulates it from persisted state (spec.md §6 "Persisted
// state: transmission records").
func (l *Ledger) Restore(records []TransmissionRecord) {
	l.records = append([]TransmissionRecord(nil), records...)
}
