package inter

// Participation summarizes one validator's involvement in a single round. The
// round state machine emits these when it closes; telemetry accumulates them.
type Participation struct {
	Validator ValidatorID
	// Proposed and Verified count the validator's blocks admitted in this
	// round in each role.
	Proposed uint32
	Verified uint32
	// Online reports whether the validator responded within the round window.
	Online bool
	// LatencyUS samples how long the validator took to respond, in
	// microseconds. Zero when Online is false.
	LatencyUS uint64
}

// ValidatorTelemetry accumulates a validator's long-running performance
// counters. Ratio fields are scaled basis points in [0, 10000]; the scoring
// pipeline normalizes them into model features. All updates are integer
// arithmetic so every node derives identical telemetry from identical
// participation streams.
type ValidatorTelemetry struct {
	Validator ValidatorID

	// UptimeBps is an exponential moving average of round responsiveness,
	// 10000 meaning the validator answered every recent round.
	UptimeBps uint64

	// AvgLatencyUS is an exponential moving average of response latency.
	AvgLatencyUS uint64

	// HonestyBps tracks protocol compliance; slashing events decrement it.
	HonestyBps uint64

	// BlocksProposed and BlocksVerified are lifetime counters.
	BlocksProposed uint64
	BlocksVerified uint64

	// StakeMicro is the bonded stake in micro units, mirrored here so the
	// feature extractor sees a single snapshot.
	StakeMicro uint64

	// RoundsActive counts rounds since registration.
	RoundsActive uint64

	// SlashCount counts slashing events over the validator's lifetime.
	SlashCount uint32
}

// NewValidatorTelemetry starts a fresh record at full uptime and honesty, the
// neutral prior for a newly bonded validator.
func NewValidatorTelemetry(v ValidatorID) *ValidatorTelemetry {
	return &ValidatorTelemetry{
		Validator:  v,
		UptimeBps:  10000,
		HonestyBps: 10000,
	}
}

// emaWeight is the per-round retention of the moving averages: 90% history,
// 10% new sample, in basis points.
const emaWeight = 9000

// ApplyRound folds one round's participation into the record. The moving
// averages use integer EMA so the result is bit-identical on every node.
func (t *ValidatorTelemetry) ApplyRound(p Participation) {
	var online uint64
	if p.Online {
		online = 10000
	}
	t.UptimeBps = (emaWeight*t.UptimeBps + (10000-emaWeight)*online) / 10000
	if p.Online {
		t.AvgLatencyUS = (emaWeight*t.AvgLatencyUS + (10000-emaWeight)*p.LatencyUS) / 10000
	}
	t.BlocksProposed += uint64(p.Proposed)
	t.BlocksVerified += uint64(p.Verified)
	t.RoundsActive++
}

// ApplySlash records a slashing event: the counter increments and honesty
// drops by 1000 bps per event, floored at zero.
func (t *ValidatorTelemetry) ApplySlash() {
	t.SlashCount++
	if t.HonestyBps >= 1000 {
		t.HonestyBps -= 1000
	} else {
		t.HonestyBps = 0
	}
}
