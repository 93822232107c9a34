package hashtime

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrSkewRejected is returned by Ingest when a peer-reported time deviates
// beyond the configured outlier bound. The sample is dropped; the condition
// is not fatal to the node.
var ErrSkewRejected = errors.New("hashtime: peer sample beyond skew bound")

// ClockConfig bounds how far peer samples may steer the local view of time.
type ClockConfig struct {
	// MaxSkewUS is the ceiling applied when minting: WallUS never exceeds
	// medianPeerTime + MaxSkewUS.
	MaxSkewUS uint64
	// MaxOutlierUS rejects peer samples whose drift from the local clock
	// exceeds this bound (they never enter the median window).
	MaxOutlierUS int64
	// MaxStepUS limits how much a single ingested sample may move the
	// correction offset, so a burst of hostile samples converges slowly.
	MaxStepUS int64
	// SampleWindow is the number of recent peer drift samples retained for
	// the median.
	SampleWindow int
}

// DefaultClockConfig mirrors the protocol defaults: ±5ms per-step correction,
// ±10s outlier rejection, a 21-sample median window and a 100ms skew ceiling.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		MaxSkewUS:    100_000,
		MaxOutlierUS: 10_000_000,
		MaxStepUS:    5_000,
		SampleWindow: 21,
	}
}

// Clock is the per-node time window service. It samples an injected
// wall-clock source, folds bounded peer drift samples into a median offset,
// and mints monotonic HashTimers. There is no process-wide clock: every
// node (and every test) owns its own instance.
type Clock struct {
	mu sync.Mutex

	cfg    ClockConfig
	source func() uint64 // wall clock in microseconds

	offsetUS int64   // smoothed correction toward the peer median
	samples  []int64 // recent peer drifts, oldest first
	last     HashTimer
	seq      uint64

	log *logrus.Entry
}

// NewClock builds a clock over the given wall-clock source. A nil source
// uses the system clock.
func NewClock(cfg ClockConfig, source func() uint64) *Clock {
	if source == nil {
		source = systemNowUS
	}
	return &Clock{
		cfg:    cfg,
		source: source,
		log:    logrus.WithField("module", "hashtime"),
	}
}

func systemNowUS() uint64 {
	return uint64(time.Now().UnixMicro())
}

// Ingest folds one peer-reported wall-clock sample (microseconds) into the
// drift window. Samples beyond MaxOutlierUS are rejected with
// ErrSkewRejected and do not pollute the accepted set.
func (c *Clock) Ingest(peerTimeUS uint64) error {
	now := c.source()
	drift := int64(peerTimeUS) - int64(now)
	if drift > c.cfg.MaxOutlierUS || drift < -c.cfg.MaxOutlierUS {
		c.log.WithFields(logrus.Fields{
			"drift_us": drift,
			"bound_us": c.cfg.MaxOutlierUS,
		}).Warn("dropping peer time sample")
		return ErrSkewRejected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, drift)
	if len(c.samples) > c.cfg.SampleWindow {
		c.samples = c.samples[len(c.samples)-c.cfg.SampleWindow:]
	}

	// Move the correction toward the median, at most MaxStepUS per sample.
	target := median(c.samples)
	delta := target - c.offsetUS
	if delta > c.cfg.MaxStepUS {
		delta = c.cfg.MaxStepUS
	} else if delta < -c.cfg.MaxStepUS {
		delta = -c.cfg.MaxStepUS
	}
	c.offsetUS += delta
	return nil
}

// Now mints the next HashTimer for the given payload. The wall reading is
// clamped into [last.WallUS, medianPeerTime+MaxSkewUS] and therefore never
// moves backward; the sequence number strictly increases so even two mints
// within the same microsecond stay totally ordered.
func (c *Clock) Now(context string, payload ...[]byte) HashTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.source()
	candidate := addOffset(now, c.offsetUS)

	// Upper bound: never run ahead of the peer median by more than MaxSkewUS.
	ceiling := addOffset(now, median(c.samples)) + c.cfg.MaxSkewUS
	if candidate > ceiling {
		candidate = ceiling
	}
	// Lower bound: never move backward.
	if candidate < c.last.WallUS {
		candidate = c.last.WallUS
	}

	c.seq++
	t := Derive(context, c.last, candidate, c.seq, payload...)
	c.last = t
	return t
}

// Last returns the most recently minted timer (zero value before the first
// mint).
func (c *Clock) Last() HashTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// OffsetUS exposes the current smoothed peer correction, for diagnostics.
func (c *Clock) OffsetUS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetUS
}

// SampleCount reports how many peer drift samples are currently retained.
func (c *Clock) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func addOffset(wallUS uint64, offset int64) uint64 {
	if offset >= 0 {
		return wallUS + uint64(offset)
	}
	neg := uint64(-offset)
	if neg > wallUS {
		return 0
	}
	return wallUS - neg
}

func median(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
