package economy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
)

func vid(b byte) inter.ValidatorID {
	return inter.BytesToValidatorID([]byte{b})
}

func TestEmissionSchedule(t *testing.T) {
	e := dlc.DefaultEconomyRules()

	// Genesis emits nothing.
	assert.Equal(t, uint64(0), EmissionForRound(0, e))

	// First era pays r0.
	assert.Equal(t, e.InitialRoundRewardMicro, EmissionForRound(1, e))
	assert.Equal(t, e.InitialRoundRewardMicro, EmissionForRound(inter.Round(e.HalvingIntervalRounds-1), e))

	// Each era halves.
	assert.Equal(t, e.InitialRoundRewardMicro/2, EmissionForRound(inter.Round(e.HalvingIntervalRounds), e))
	assert.Equal(t, e.InitialRoundRewardMicro/4, EmissionForRound(inter.Round(2*e.HalvingIntervalRounds), e))
}

func TestEmissionIsMonotoneNonIncreasing(t *testing.T) {
	e := dlc.DefaultEconomyRules()
	e.HalvingIntervalRounds = 10

	prev := EmissionForRound(1, e)
	for r := inter.Round(2); r < 1000; r++ {
		cur := EmissionForRound(r, e)
		require.LessOrEqual(t, cur, prev, "round %d", r)
		prev = cur
	}
}

func TestEmissionZeroAfter64Halvings(t *testing.T) {
	e := dlc.DefaultEconomyRules()
	e.InitialRoundRewardMicro = 1
	e.HalvingIntervalRounds = 1

	// With r0=1 and interval 1, round 64 is the 64th halving: exactly zero,
	// and zero forever after.
	assert.NotZero(t, EmissionForRound(1, e)>>0)
	assert.Equal(t, uint64(0), EmissionForRound(64, e))
	assert.Equal(t, uint64(0), EmissionForRound(65, e))
	assert.Equal(t, uint64(0), EmissionForRound(1<<40, e))
}

func TestEmissionCapped(t *testing.T) {
	require := require.New(t)
	e := dlc.DefaultEconomyRules()

	got, err := EmissionForRoundCapped(1, 0, e)
	require.NoError(err)
	require.Equal(e.InitialRoundRewardMicro, got)

	// One micro short of fitting: the mint must fail, not shrink.
	issued := e.MaxSupplyMicro - e.InitialRoundRewardMicro + 1
	_, err = EmissionForRoundCapped(1, issued, e)
	require.ErrorIs(err, ErrHardCapExceeded)

	// Exactly at the cap boundary still fits.
	issued = e.MaxSupplyMicro - e.InitialRoundRewardMicro
	got, err = EmissionForRoundCapped(1, issued, e)
	require.NoError(err)
	require.Equal(e.InitialRoundRewardMicro, got)
}

func TestCapNeverExceededUnderRandomSequences(t *testing.T) {
	require := require.New(t)

	e := dlc.DefaultEconomyRules()
	e.InitialRoundRewardMicro = 1_000
	e.HalvingIntervalRounds = 50
	e.MaxSupplyMicro = 123_456

	r := rand.New(rand.NewSource(42))
	var issued uint64
	round := inter.Round(1)
	for i := 0; i < 10_000; i++ {
		round += inter.Round(r.Intn(3)) // sometimes repeat, sometimes skip
		got, err := EmissionForRoundCapped(round, issued, e)
		if err != nil {
			require.ErrorIs(err, ErrHardCapExceeded)
			break
		}
		issued += got
		require.LessOrEqual(issued, e.MaxSupplyMicro)
		round++
	}
	require.LessOrEqual(issued, e.MaxSupplyMicro)
}

func TestDistributionSplitAndProportionality(t *testing.T) {
	require := require.New(t)
	e := dlc.DefaultEconomyRules()

	proposer := map[inter.ValidatorID]uint64{vid(1): 1}
	// Verifier A admitted twice the blocks of B: exactly twice the payout.
	verifiers := map[inter.ValidatorID]uint64{vid(2): 2, vid(3): 1}

	d := DistributeRound(1_000_000, 0, proposer, verifiers, e)

	// 20/80 role split.
	require.Equal(uint64(200_000), d.Payouts[vid(1)])
	require.Equal(d.Payouts[vid(3)]*2, d.Payouts[vid(2)])

	// Verifier pool 800_000 over 3 blocks leaves a remainder for the sink.
	require.Equal(uint64(800_000/3*2), d.Payouts[vid(2)])
	require.Equal(d.EmissionMicro, d.TotalPaid()+d.SinkMicro)
}

func TestDistributionFeeCap(t *testing.T) {
	require := require.New(t)
	e := dlc.DefaultEconomyRules() // 10% cap, 100% recycling

	proposer := map[inter.ValidatorID]uint64{vid(1): 1}
	verifiers := map[inter.ValidatorID]uint64{vid(2): 1}

	// Fees at 20% of emission: only 10% enters the pool.
	d := DistributeRound(1_000_000, 200_000, proposer, verifiers, e)
	require.Equal(uint64(100_000), d.CappedFeeMicro)
	require.Equal(uint64(100_000), d.ExcessFeeMicro)
	require.Equal(uint64(0), d.BurnedFeeMicro)
	require.Equal(d.EmissionMicro+d.CappedFeeMicro, d.TotalPaid()+d.SinkMicro)

	// Fees under the cap pass through whole.
	d = DistributeRound(1_000_000, 50_000, proposer, verifiers, e)
	require.Equal(uint64(50_000), d.CappedFeeMicro)
	require.Equal(uint64(0), d.ExcessFeeMicro)
}

func TestDistributionFeeRecycling(t *testing.T) {
	e := dlc.DefaultEconomyRules()
	e.FeeRecyclingBps = 5000 // recycle half, burn half

	proposer := map[inter.ValidatorID]uint64{vid(1): 1}
	verifiers := map[inter.ValidatorID]uint64{vid(2): 1}

	d := DistributeRound(1_000_000, 100_000, proposer, verifiers, e)
	assert.Equal(t, uint64(50_000), d.CappedFeeMicro)
	assert.Equal(t, uint64(50_000), d.BurnedFeeMicro)
	assert.Equal(t, d.EmissionMicro+d.CappedFeeMicro, d.TotalPaid()+d.SinkMicro)
}

func TestDistributionRoundsAtTheUnit(t *testing.T) {
	require := require.New(t)
	e := dlc.DefaultEconomyRules()

	proposer := map[inter.ValidatorID]uint64{vid(1): 1}
	verifiers := map[inter.ValidatorID]uint64{vid(2): 1}

	// A pool below the bps denominator still splits: 9_999 * 2000 / 10_000
	// floors at the micro unit, not at the denominator.
	d := DistributeRound(9_999, 0, proposer, verifiers, e)
	require.Equal(uint64(1_999), d.Payouts[vid(1)])
	require.Equal(uint64(8_000), d.Payouts[vid(2)])
	require.Equal(d.EmissionMicro, d.TotalPaid()+d.SinkMicro)

	// Fees below the denominator survive full recycling instead of burning.
	d = DistributeRound(10_000_000, 4_000, proposer, verifiers, e)
	require.Equal(uint64(4_000), d.CappedFeeMicro)
	require.Equal(uint64(0), d.BurnedFeeMicro)
	require.Equal(d.EmissionMicro+d.CappedFeeMicro, d.TotalPaid()+d.SinkMicro)
}

func TestDistributionEmptyRoles(t *testing.T) {
	require := require.New(t)
	e := dlc.DefaultEconomyRules()

	// No verifiers: their whole pool lands in the sink.
	d := DistributeRound(1_000_000, 0, map[inter.ValidatorID]uint64{vid(1): 1}, nil, e)
	require.Equal(uint64(200_000), d.Payouts[vid(1)])
	require.Equal(uint64(800_000), d.SinkMicro)

	// Nobody at all: everything sinks.
	d = DistributeRound(1_000_000, 0, nil, nil, e)
	require.Empty(d.Payouts)
	require.Equal(uint64(1_000_000), d.SinkMicro)

	// Zero pool: nothing moves.
	d = DistributeRound(0, 0, map[inter.ValidatorID]uint64{vid(1): 1}, nil, e)
	require.Empty(d.Payouts)
	require.Zero(d.SinkMicro)
}

func TestEpochAutoBurn(t *testing.T) {
	assert.Equal(t, uint64(0), EpochAutoBurn(100, 100))
	assert.Equal(t, uint64(0), EpochAutoBurn(100, 150))
	assert.Equal(t, uint64(40), EpochAutoBurn(100, 60))
}
