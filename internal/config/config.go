// Package config defines the recognised tuning options for the mesh
// transport stack (spec.md §6 "Configuration"). Loading configuration from
// disk/flags/env is explicitly out of scope (spec.md §1); this package
// only defines the struct, its defaults, and validation.
package config

import (
	"time"

	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/priority"
)

// QueueCapacity mirrors spec.md §6 `queueCapacity.*`.
type QueueCapacity struct {
	MaxTotalMessages        int
	MemoryLimitBytes        int
	CapacityByPriority      map[meshtransport.MessagePriority]int
	EmergencyCapacityReserve int
}

// RetryPolicy mirrors spec.md §6 `retryPolicy.*`.
type RetryPolicy struct {
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      time.Duration
	MaxAttempts int
}

// FragmentCaps mirrors spec.md §6 "fragment caps per type".
type FragmentCaps struct {
	UTXOTransaction int
	Block           int
	MerkleProof     int
	Default         int
}

// Config is the full set of recognised options (spec.md §6).
type Config struct {
	Region dutycycle.Region

	MaxDutyCyclePercentOverride float64
	TrackingWindowHours         int
	MaxTransmissionTimeMs       int64
	EmergencyOverrideEnabled    bool
	StrictComplianceMode        bool

	QueueCapacity QueueCapacity
	RetryPolicy   RetryPolicy

	AckTimeoutMs              int64
	DuplicateTrackingWindowMs int64

	RouteDiscoveryTimeout time.Duration
	MaxFloodTTL           int
	MaxPathLength         int
	FloodCacheSize        int
	RouteExpiryTime       time.Duration
	HoldDownTime          time.Duration
	MaxRoutingTableSize   int

	FragmentCaps FragmentCaps

	HighFeeSatoshiPerByte  float64
	NormalFeeSatoshiPerByte float64
}

// DefaultConfig returns the spec's default configuration for region.
func DefaultConfig(region dutycycle.Region) Config {
	return Config{
		Region: region,

		TrackingWindowHours:      1,
		MaxTransmissionTimeMs:    2000,
		EmergencyOverrideEnabled: false,
		StrictComplianceMode:     false,

		QueueCapacity: QueueCapacity{
			MaxTotalMessages:         priority.DefaultCapacityConfig.MaxTotalMessages,
			MemoryLimitBytes:         priority.DefaultCapacityConfig.MemoryLimitBytes,
			CapacityByPriority:       map[meshtransport.MessagePriority]int{},
			EmergencyCapacityReserve: priority.DefaultCapacityConfig.EmergencyCapacityReserve,
		},
		RetryPolicy: RetryPolicy{
			Base:        1 * time.Second,
			Max:         30 * time.Second,
			Multiplier:  1.5,
			Jitter:      500 * time.Millisecond,
			MaxAttempts: 3,
		},

		AckTimeoutMs:              30_000,
		DuplicateTrackingWindowMs: 300_000,

		RouteDiscoveryTimeout: 30 * time.Second,
		MaxFloodTTL:           10,
		MaxPathLength:         15,
		FloodCacheSize:        500,
		RouteExpiryTime:       5 * time.Minute,
		HoldDownTime:          60 * time.Second,
		MaxRoutingTableSize:   500,

		FragmentCaps: FragmentCaps{
			UTXOTransaction: 180,
			Block:           197,
			MerkleProof:     150,
			Default:         197,
		},

		HighFeeSatoshiPerByte:   10,
		NormalFeeSatoshiPerByte: 1,
	}
}

// Validate checks the configuration, returning a meshtransport.ConfigInvalid
// error describing the first problem found. spec.md §7: ConfigInvalid is
// the only error raised synchronously from construction.
func (c Config) Validate() error {
	if c.Region.Code == "" {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("region"))
	}
	if c.TrackingWindowHours <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("trackingWindowHours must be > 0"))
	}
	if c.MaxTransmissionTimeMs <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("maxTransmissionTimeMs must be > 0"))
	}
	if c.QueueCapacity.MaxTotalMessages <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("queueCapacity.maxTotalMessages must be > 0"))
	}
	if c.RetryPolicy.MaxAttempts <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("retryPolicy.attempts must be > 0"))
	}
	if c.MaxFloodTTL <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("maxFloodTTL must be > 0"))
	}
	if c.MaxPathLength <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("maxPathLength must be > 0"))
	}
	if c.FloodCacheSize <= 0 {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("floodCacheSize must be > 0"))
	}
	if c.HighFeeSatoshiPerByte <= c.NormalFeeSatoshiPerByte {
		return meshtransport.New(meshtransport.ConfigInvalid, "config.Validate", errRequired("highFeeSatoshiPerByte must exceed normalFeeSatoshiPerByte"))
	}
	return nil
}

type validationErr string

func (e validationErr) Error() string { return string(e) }

func errRequired(msg string) error { return validationErr(msg) }
