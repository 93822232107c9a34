package hashtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a manually advanced wall clock.
type fakeSource struct {
	nowUS uint64
}

func (s *fakeSource) now() uint64 {
	return s.nowUS
}

func newTestClock(src *fakeSource) *Clock {
	return NewClock(DefaultClockConfig(), src.now)
}

func TestNowIsMonotonic(t *testing.T) {
	require := require.New(t)
	src := &fakeSource{nowUS: 1_000_000}
	c := newTestClock(src)

	var prev HashTimer
	for i := 0; i < 100; i++ {
		cur := c.Now("test", []byte("payload"))
		require.True(prev.Less(cur), "timers must strictly increase")
		prev = cur
		if i%3 == 0 {
			src.nowUS += 17
		}
	}
}

func TestNowSurvivesClockRewind(t *testing.T) {
	require := require.New(t)
	src := &fakeSource{nowUS: 5_000_000}
	c := newTestClock(src)

	before := c.Now("test")
	src.nowUS = 1_000_000 // wall clock jumps backward
	after := c.Now("test")

	require.True(before.Less(after))
	require.GreaterOrEqual(after.WallUS, before.WallUS)
}

func TestIngestRejectsOutliers(t *testing.T) {
	require := require.New(t)
	src := &fakeSource{nowUS: 10_000_000}
	c := newTestClock(src)

	require.NoError(c.Ingest(src.nowUS + 500))
	require.NoError(c.Ingest(src.nowUS - 250))
	countBefore := c.SampleCount()
	offsetBefore := c.OffsetUS()

	err := c.Ingest(src.nowUS + 20_000_000) // > 10s skew
	require.ErrorIs(err, ErrSkewRejected)
	err = c.Ingest(src.nowUS - 25_000_000)
	require.ErrorIs(err, ErrSkewRejected)

	assert.Equal(t, countBefore, c.SampleCount(), "outliers must not be recorded")
	assert.Equal(t, offsetBefore, c.OffsetUS(), "outliers must not move the offset")
}

func TestIngestConvergesTowardMedian(t *testing.T) {
	require := require.New(t)
	src := &fakeSource{nowUS: 10_000_000}
	cfg := DefaultClockConfig()
	c := NewClock(cfg, src.now)

	// Constant +2ms peer drift: the offset should converge to it, bounded by
	// MaxStepUS per sample.
	for i := 0; i < 10; i++ {
		require.NoError(c.Ingest(src.nowUS + 2_000))
	}
	require.Equal(int64(2_000), c.OffsetUS())

	// A single extreme-but-accepted sample barely moves the median.
	require.NoError(c.Ingest(src.nowUS + 9_000_000))
	require.LessOrEqual(c.OffsetUS(), int64(2_000)+cfg.MaxStepUS)
}

func TestCorrectionStepIsBounded(t *testing.T) {
	src := &fakeSource{nowUS: 10_000_000}
	cfg := DefaultClockConfig()
	c := NewClock(cfg, src.now)

	require.NoError(t, c.Ingest(src.nowUS+8_000_000))
	assert.Equal(t, cfg.MaxStepUS, c.OffsetUS(), "first step clamped to MaxStepUS")
}

func TestNowHonorsSkewCeiling(t *testing.T) {
	require := require.New(t)
	src := &fakeSource{nowUS: 10_000_000}
	cfg := DefaultClockConfig()
	c := NewClock(cfg, src.now)

	// Push the smoothed offset up while the median stays near zero.
	for i := 0; i < 5; i++ {
		require.NoError(c.Ingest(src.nowUS + 9_900_000))
	}
	for i := 0; i < 6; i++ {
		require.NoError(c.Ingest(src.nowUS))
	}

	got := c.Now("test")
	ceiling := src.nowUS + uint64(c.OffsetUS()) + cfg.MaxSkewUS
	require.LessOrEqual(got.WallUS, ceiling)
}

func TestCompareIsLexicographic(t *testing.T) {
	a := HashTimer{WallUS: 1, Seq: 9}
	b := HashTimer{WallUS: 2, Seq: 1}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))

	c := HashTimer{WallUS: 1, Seq: 1}
	d := HashTimer{WallUS: 1, Seq: 2}
	assert.Equal(t, -1, c.Compare(d))
	assert.Equal(t, 0, c.Compare(c))
}

func TestDeriveIsDeterministic(t *testing.T) {
	require := require.New(t)
	prev := HashTimer{WallUS: 100, Seq: 1}

	a := Derive("block", prev, 200, 2, []byte("payload"))
	b := Derive("block", prev, 200, 2, []byte("payload"))
	require.Equal(a, b)

	// Context isolation: same inputs, different domain, different chain.
	c := Derive("round", prev, 200, 2, []byte("payload"))
	require.NotEqual(a.HashChain, c.HashChain)

	// Payload binding.
	d := Derive("block", prev, 200, 2, []byte("other"))
	require.NotEqual(a.HashChain, d.HashChain)
}

func TestWindowContains(t *testing.T) {
	start := HashTimer{WallUS: 100}
	end := HashTimer{WallUS: 200}
	w := Window{Round: 7, Start: start, End: end}

	assert.True(t, w.Contains(HashTimer{WallUS: 100}))
	assert.True(t, w.Contains(HashTimer{WallUS: 150}))
	assert.True(t, w.Contains(HashTimer{WallUS: 200}))
	assert.False(t, w.Contains(HashTimer{WallUS: 99}))
	assert.False(t, w.Contains(HashTimer{WallUS: 201}))
}
