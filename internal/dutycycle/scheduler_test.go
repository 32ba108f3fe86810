package dutycycle

import (
	"testing"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

func TestEstimateAirtimeMsIncreasesWithPayload(t *testing.T) {
	small := EstimateAirtimeMs(10, DefaultLoRaParams)
	large := EstimateAirtimeMs(200, DefaultLoRaParams)
	if large <= small {
		t.Fatalf("expected larger payload to take longer on air: small=%d large=%d", small, large)
	}
}

func TestSchedulerAdmitsUnderCapAndBlocksOverCap(t *testing.T) {
	cfg := DefaultConfig("EU")
	sched, err := NewScheduler(cfg, DefaultLoRaParams)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	base := time.UnixMilli(0)

	// Pre-load the ledger near the 868.0-868.6 sub-band's 1% cap (36s/hour).
	sched.ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 35_500, Frequency: 868.3})

	d, err := sched.Admit(868.3, 10, false, base.Add(35500*time.Millisecond))
	if err != nil {
		t.Fatalf("expected admission near but under cap: %v", err)
	}
	if !d.Admitted {
		t.Fatalf("expected admission")
	}

	_, err = sched.Admit(868.3, 2000, false, base.Add(35510*time.Millisecond))
	kind, ok := meshtransport.KindOf(err)
	if !ok || kind != meshtransport.DutyCycleBlocked {
		t.Fatalf("expected DutyCycleBlocked, got %v", err)
	}
}

func TestSchedulerEmergencyOverrideBypassesLimit(t *testing.T) {
	cfg := DefaultConfig("EU")
	cfg.EmergencyOverrideEnabled = true
	cfg.StrictComplianceMode = true
	sched, err := NewScheduler(cfg, DefaultLoRaParams)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	sched.ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 36_000, Frequency: 868.3})

	var violated bool
	sched.OnViolation = func(meshtransport.DutyCycleViolationEvent) { violated = true }

	d, err := sched.Admit(868.3, 200, true, time.UnixMilli(36_000))
	if err != nil {
		t.Fatalf("expected emergency override to admit despite cap: %v", err)
	}
	if !d.Admitted || !d.Forced {
		t.Fatalf("expected forced admission, got %+v", d)
	}
	if !violated {
		t.Fatalf("expected OnViolation to fire under strict compliance mode")
	}
}

func TestSchedulerWarningFiresNearThreshold(t *testing.T) {
	cfg := DefaultConfig("EU")
	sched, err := NewScheduler(cfg, DefaultLoRaParams)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	// 80% of the 36s cap is 28.8s.
	sched.ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 29_000, Frequency: 868.3})

	var warned bool
	sched.OnWarning = func(meshtransport.DutyCycleWarningEvent) { warned = true }

	if _, err := sched.Admit(868.3, 5, false, time.UnixMilli(29_000)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !warned {
		t.Fatalf("expected OnWarning to fire once utilization crosses warnThreshold")
	}
}
