package dutycycle

import (
	"testing"
)

func TestEU868SubBandLimits(t *testing.T) {
	region := Regions["EU"]
	band, ok := region.BandOf(868.3)
	if !ok {
		t.Fatalf("expected 868.3 MHz to resolve to a band")
	}
	if band.DutyCyclePercent != 1.0 {
		t.Fatalf("expected 1%% duty cycle for 868.0-868.6 sub-band, got %v", band.DutyCyclePercent)
	}
	band, ok = region.BandOf(869.5)
	if !ok {
		t.Fatalf("expected 869.5 MHz to resolve to a band")
	}
	if band.DutyCyclePercent != 10.0 {
		t.Fatalf("expected 10%% duty cycle for 869.4-869.65 sub-band, got %v", band.DutyCyclePercent)
	}
}

func TestDutyCycleAdmissionWithinWindow(t *testing.T) {
	cfg := DefaultConfig("EU")
	ledger, err := NewLedger(cfg)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	// 36s of prior usage on the 1% sub-band (868.0-868.6) within a 3600s
	// window: the limit is 1% of 3600s = 36s, so 36s prior usage is already
	// at the cap and a further 1s transmission (37s > 36s) must be rejected.
	ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 36_000, Frequency: 868.3})
	ok, _, err := ledger.Admissible(868.3, 1000, 36_000)
	if err != nil {
		t.Fatalf("admissible: %v", err)
	}
	if ok {
		t.Fatalf("expected transmission to be rejected once band is at its duty-cycle cap")
	}
}

func TestDutyCycleAdmissionUnderCap(t *testing.T) {
	cfg := DefaultConfig("EU")
	ledger, err := NewLedger(cfg)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 35_000, Frequency: 868.3})
	ok, _, err := ledger.Admissible(868.3, 1000, 35_000)
	if err != nil {
		t.Fatalf("admissible: %v", err)
	}
	if !ok {
		t.Fatalf("expected transmission to be admitted: 35s + 1s = 36s == 1%% of 3600s window")
	}
}

func TestLedgerPrunesOutOfWindowRecords(t *testing.T) {
	cfg := DefaultConfig("EU")
	ledger, err := NewLedger(cfg)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 36_000, Frequency: 868.3})
	// Once the window has advanced past the record's end entirely, its
	// contribution drops to zero.
	nowMs := int64(36_000 + 3600_000 + 1000)
	ok, _, err := ledger.Admissible(868.3, 1000, nowMs)
	if err != nil {
		t.Fatalf("admissible: %v", err)
	}
	if !ok {
		t.Fatalf("expected admission once prior usage has slid out of the window")
	}
}

func TestEarliestAdmissibleAtAdvancesPastWindowExit(t *testing.T) {
	cfg := DefaultConfig("EU")
	ledger, err := NewLedger(cfg)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ledger.Record(TransmissionRecord{StartMs: 0, DurationMs: 36_000, Frequency: 868.3})
	earliest, err := ledger.EarliestAdmissibleAt(868.3, 1000, 36_000)
	if err != nil {
		t.Fatalf("earliest admissible: %v", err)
	}
	if earliest <= 36_000 {
		t.Fatalf("expected earliest admissible time to be in the future, got %d", earliest)
	}
}

func TestNewLedgerRejectsUnknownRegion(t *testing.T) {
	_, err := NewLedger(Config{Region: "XX"})
	if err == nil {
		t.Fatalf("expected error for unknown region")
	}
}
