package config

import (
	"testing"

	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/meshtransport"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig(dutycycle.Regions["EU"])
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsMissingRegion(t *testing.T) {
	cfg := DefaultConfig(dutycycle.Regions["EU"])
	cfg.Region = dutycycle.Region{}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error for empty region")
	}
	if kind, ok := meshtransport.KindOf(err); !ok || kind != meshtransport.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsInvertedFeeThresholds(t *testing.T) {
	cfg := DefaultConfig(dutycycle.Regions["EU"])
	cfg.HighFeeSatoshiPerByte = 1
	cfg.NormalFeeSatoshiPerByte = 10
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when high fee threshold <= normal")
	}
}

func TestValidateRejectsZeroQueueCapacity(t *testing.T) {
	cfg := DefaultConfig(dutycycle.Regions["EU"])
	cfg.QueueCapacity.MaxTotalMessages = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero queue capacity")
	}
}
