package dutycycle

import (
	"fmt"
	"math"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// LoRaParams are the radio parameters time-on-air estimation needs
// (spec.md §4.E "estimate on-air time from payload size and the configured
// spreading factor"). Bandwidth is Hz; the rest follow the standard LoRa
// time-on-air model (Semtech AN1200.13).
type LoRaParams struct {
	SpreadingFactor int
	BandwidthHz     float64
	CodingRate      int // 1..4, for 4/(4+CR)
	PreambleSymbols int
	ExplicitHeader  bool
	CRCEnabled      bool
}

// DefaultLoRaParams mirrors a conservative long-range EU868 configuration.
var DefaultLoRaParams = LoRaParams{
	SpreadingFactor: 9,
	BandwidthHz:     125000,
	CodingRate:      1,
	PreambleSymbols: 8,
	ExplicitHeader:  true,
	CRCEnabled:      true,
}

// EstimateAirtimeMs computes the on-air duration in milliseconds for a frame
// of payloadBytes under params, using the standard LoRa time-on-air formula.
func EstimateAirtimeMs(payloadBytes int, params LoRaParams) int64 {
	sf := float64(params.SpreadingFactor)
	bw := params.BandwidthHz
	symDuration := math.Pow(2, sf) / bw // seconds

	lowDataRateOptimize := 0.0
	if params.SpreadingFactor >= 11 {
		lowDataRateOptimize = 1
	}
	ih := 0.0
	if !params.ExplicitHeader {
		ih = 1
	}
	crc := 0.0
	if params.CRCEnabled {
		crc = 1
	}

	numerator := 8*float64(payloadBytes) - 4*sf + 28 + 16*crc - 20*ih
	denominator := 4 * (sf - 2*lowDataRateOptimize)
	payloadSymbNb := 8.0
	if numerator > 0 {
		payloadSymbNb += math.Ceil(numerator/denominator) * float64(params.CodingRate+4)
	}

	preambleTime := (float64(params.PreambleSymbols) + 4.25) * symDuration
	payloadTime := payloadSymbNb * symDuration
	totalSeconds := preambleTime + payloadTime
	return int64(math.Ceil(totalSeconds * 1000))
}

// Decision is the outcome of Scheduler.Admit.
type Decision struct {
	Admitted         bool
	Forced           bool
	Band             Band
	DurationMs       int64
	EarliestRetryMs  int64
}

// Scheduler gates transmissions against a Ledger and fires warning/violation
// callbacks (spec.md §4.E). The scheduler's Config is fixed at construction;
// it exposes no setters, and the orchestrator's single loop is its only
// mutator (spec.md §5).
type Scheduler struct {
	ledger *Ledger
	cfg    Config
	params LoRaParams

	OnWarning   func(meshtransport.DutyCycleWarningEvent)
	OnViolation func(meshtransport.DutyCycleViolationEvent)
}

// NewScheduler returns a scheduler backed by a fresh ledger for cfg.
func NewScheduler(cfg Config, params LoRaParams) (*Scheduler, error) {
	ledger, err := NewLedger(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheduler{ledger: ledger, cfg: cfg, params: params}, nil
}

// Admit decides whether a transmission at frequency f carrying payloadBytes
// may proceed now. emergency signals the caller's message had emergencyFlag
// set; admission bypasses the duty-cycle limit when emergency and
// EmergencyOverrideEnabled, reporting Forced=true and firing OnViolation
// under StrictComplianceMode.
func (s *Scheduler) Admit(f float64, payloadBytes int, emergency bool, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	duration := EstimateAirtimeMs(payloadBytes, s.params)
	if s.cfg.MaxTransmissionTimeMs > 0 && duration > s.cfg.MaxTransmissionTimeMs {
		duration = s.cfg.MaxTransmissionTimeMs
	}

	admissible, band, err := s.ledger.Admissible(f, duration, nowMs)
	if err != nil {
		return Decision{}, err
	}

	util := s.ledger.Utilization(band, nowMs)
	if util >= s.cfg.WarnThreshold && s.OnWarning != nil {
		s.OnWarning(meshtransport.DutyCycleWarningEvent{
			Band:        bandLabel(band),
			Utilization: util,
			Threshold:   s.cfg.WarnThreshold,
			At:          now,
		})
	}

	if admissible {
		s.ledger.Record(TransmissionRecord{StartMs: nowMs, DurationMs: duration, Frequency: f})
		return Decision{Admitted: true, Band: band, DurationMs: duration}, nil
	}

	if emergency && s.cfg.EmergencyOverrideEnabled {
		s.ledger.Record(TransmissionRecord{StartMs: nowMs, DurationMs: duration, Frequency: f})
		if s.cfg.StrictComplianceMode && s.OnViolation != nil {
			s.OnViolation(meshtransport.DutyCycleViolationEvent{
				Band:        bandLabel(band),
				Utilization: s.ledger.Utilization(band, nowMs),
				Limit:       1.0,
				Forced:      true,
				At:          now,
			})
		}
		return Decision{Admitted: true, Forced: true, Band: band, DurationMs: duration}, nil
	}

	earliest, err := s.ledger.EarliestAdmissibleAt(f, duration, nowMs)
	if err != nil {
		return Decision{}, err
	}
	if s.cfg.StrictComplianceMode {
		return Decision{Admitted: false, Band: band, DurationMs: duration, EarliestRetryMs: earliest},
			meshtransport.New(meshtransport.DutyCycleBlocked, "dutycycle.Admit", nil)
	}
	return Decision{Admitted: false, Band: band, DurationMs: duration, EarliestRetryMs: earliest},
		meshtransport.New(meshtransport.DutyCycleBlocked, "dutycycle.Admit", nil)
}

func bandLabel(b Band) string {
	return fmt.Sprintf("%g-%gMHz", b.MinMHz, b.MaxMHz)
}

// Utilization returns the current duty-cycle utilization fraction for the
// band containing frequency f.
func (s *Scheduler) Utilization(f float64, now time.Time) (float64, error) {
	band, ok := s.ledger.region.BandOf(f)
	if !ok {
		return 0, meshtransport.New(meshtransport.ConfigInvalid, "dutycycle.Utilization", nil)
	}
	return s.ledger.Utilization(band, now.UnixMilli()), nil
}

// Records exposes the ledger's retained transmission history.
func (s *Scheduler) Records() []TransmissionRecord { return s.ledger.Records() }

// Restore repopulates the underlying ledger's transmission history from
// persisted records.
func (s *Scheduler) Restore(records []TransmissionRecord) { s.ledger.Restore(records) }
