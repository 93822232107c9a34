package gbdt

import (
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// Feature vector layout. Order is consensus-critical: models are trained
// against these indexes.
const (
	FeatUptime = iota
	FeatLatencyInv
	FeatHonesty
	FeatProposalRate
	FeatVerificationRate
	FeatStakeWeight

	FeatureCount
)

// featureCeiling is the upper clamp of every normalized feature.
var featureCeiling = fixed.FromInt(10_000)

// FeatureConfig holds the normalization bounds. The bounds are part of the
// scoring input: changing them changes scores, so they live in consensus
// rules territory, not node-local config.
type FeatureConfig struct {
	// MaxLatencyUS saturates the latency feature; anything slower scores the
	// same as this bound.
	MaxLatencyUS uint64
	// MaxStakeMicro saturates the stake feature.
	MaxStakeMicro uint64
}

// DefaultFeatureConfig mirrors the protocol defaults: 1s latency bound and a
// 1M token stake bound.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		MaxLatencyUS:  1_000_000,
		MaxStakeMicro: 1_000_000 * 100_000_000,
	}
}

// NormalizeFeatures projects raw telemetry into the model's feature space.
// Every feature is clamped into [0, 10000]: out-of-range telemetry is
// saturated, never rejected, so one noisy counter cannot knock a validator
// out of scoring entirely. Integer arithmetic only.
func NormalizeFeatures(t *inter.ValidatorTelemetry, cfg FeatureConfig) []fixed.Fixed {
	f := make([]fixed.Fixed, FeatureCount)

	f[FeatUptime] = clampBps(int64(t.UptimeBps))

	// Latency is inverted: faster responses score higher.
	latBps := int64(0)
	if cfg.MaxLatencyUS > 0 {
		lat := t.AvgLatencyUS
		if lat > cfg.MaxLatencyUS {
			lat = cfg.MaxLatencyUS
		}
		latBps = int64(lat * 10_000 / cfg.MaxLatencyUS)
	}
	f[FeatLatencyInv] = clampBps(10_000 - latBps)

	f[FeatHonesty] = clampBps(int64(t.HonestyBps))

	if t.RoundsActive > 0 {
		f[FeatProposalRate] = clampBps(int64(t.BlocksProposed * 10_000 / t.RoundsActive))
		f[FeatVerificationRate] = clampBps(int64(t.BlocksVerified * 10_000 / t.RoundsActive))
	}

	if cfg.MaxStakeMicro >= 10_000 {
		// Divide the bound first so the product cannot overflow uint64.
		unit := cfg.MaxStakeMicro / 10_000
		f[FeatStakeWeight] = clampBps(int64(t.StakeMicro / unit))
	}

	return f
}

func clampBps(v int64) fixed.Fixed {
	return fixed.FromInt(v).Clamp(fixed.Zero, featureCeiling)
}
