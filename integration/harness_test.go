package integration

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/hashtime"
	"github.com/dlc-foundation/go-dlc/round"
	"github.com/dlc-foundation/go-dlc/selection"
)

func testHarness(t *testing.T, validators int) *Harness {
	t.Helper()
	h, err := NewHarness(Config{
		Rules:            dlc.FakeNetRules(),
		Validators:       FakeValidators(validators, 100*dlc.MicroPerToken),
		FeePerBlockMicro: 100,
	})
	require.NoError(t, err)
	return h
}

func TestGenesisHashIsRulesBound(t *testing.T) {
	require.Equal(t, GenesisHash(dlc.FakeNetRules()), GenesisHash(dlc.FakeNetRules()))
	require.NotEqual(t, GenesisHash(dlc.FakeNetRules()), GenesisHash(dlc.MainNetRules()))
}

func TestFakeValidatorsAreDeterministic(t *testing.T) {
	a := FakeValidators(4, dlc.MicroPerToken)
	b := FakeValidators(4, dlc.MicroPerToken)
	require.Equal(t, a, b)
	require.NotEqual(t, a[0].Key.ValidatorID(), a[1].Key.ValidatorID())
	for _, v := range a {
		require.NoError(t, v.Key.Validate())
	}
}

func TestHarnessRunsOneRound(t *testing.T) {
	require := require.New(t)

	h := testHarness(t, 4)
	res, err := h.RunRound(context.Background())
	require.NoError(err)
	require.Equal(round.Distributed, res.State)
	require.Equal(inter.Round(1), h.Round())

	// Every online validator contributed a block.
	require.Len(res.Ordered, 4)
	require.NotZero(h.IssuedMicro())

	// The certificate is on disk and the latest round advanced.
	latest, err := h.DB().LatestRound()
	require.NoError(err)
	require.Equal(h.Round(), latest)
	cert, err := h.DB().GetRoundCertificate(h.Round())
	require.NoError(err)
	require.Equal(h.Round(), cert.Round)
}

func TestHarnessChainsRounds(t *testing.T) {
	require := require.New(t)

	h := testHarness(t, 4)
	require.NoError(h.RunRounds(context.Background(), 5))
	require.EqualValues(5, h.Round())

	// Supply is exactly rounds x per-round emission, well under any halving.
	require.Equal(5*h.rules.Economy.InitialRoundRewardMicro, h.IssuedMicro())

	// Conservation: everything minted or recycled was paid or sat in the
	// sink; nothing appeared from nowhere.
	var paid uint64
	for _, p := range h.Payouts() {
		paid += p
	}
	require.LessOrEqual(paid, h.IssuedMicro()+h.CollectedFeesMicro())
}

func TestHarnessWithClock(t *testing.T) {
	require := require.New(t)

	h, err := NewHarness(Config{
		Rules:      dlc.FakeNetRules(),
		Validators: FakeValidators(4, 100*dlc.MicroPerToken),
		Clock:      hashtime.NewClock(hashtime.DefaultClockConfig(), nil),
	})
	require.NoError(err)

	// Windows come from the live clock; rounds still finalize.
	require.NoError(h.RunRounds(context.Background(), 3))
	require.EqualValues(3, h.Round())

	// A sane peer sample is accepted, a wildly skewed one is rejected and
	// counted.
	now := uint64(time.Now().UnixMicro())
	require.NoError(h.IngestPeerTime(now))
	require.ErrorIs(h.IngestPeerTime(now+3_600_000_000), hashtime.ErrSkewRejected)
	require.Equal(1.0, testutil.ToFloat64(h.met.SkewRejects))
}

func TestSlashFeedsTelemetryAndCandidacy(t *testing.T) {
	require := require.New(t)

	h := testHarness(t, 4)
	h.bonds.OnRoundStart(1)
	v := h.Validators()[0]

	burned, err := h.Slash(v, selection.OffenceDowntime)
	require.NoError(err)
	require.NotZero(burned)

	// The event reached persisted telemetry, not just the bond.
	rec, err := h.DB().GetTelemetry(v)
	require.NoError(err)
	require.EqualValues(1, rec.SlashCount)
	require.EqualValues(9000, rec.HonestyBps)

	// Three more events pass the lifetime threshold: the validator drops out
	// of the candidate set for good, the others are untouched.
	for i := 0; i < 3; i++ {
		_, err = h.Slash(v, selection.OffenceDowntime)
		require.NoError(err)
	}
	cs := h.candidates(100)
	require.Len(cs, 3)
	for _, c := range cs {
		require.NotEqual(v, c.Validator)
	}
}

func TestEpochAutoBurnOnAbortedRounds(t *testing.T) {
	require := require.New(t)

	rules := dlc.FakeNetRules()
	rules.Rounds.EpochRounds = 5
	h, err := NewHarness(Config{
		Rules:        rules,
		Validators:   FakeValidators(4, 100*dlc.MicroPerToken),
		RoundTimeout: 50 * time.Millisecond,
	})
	require.NoError(err)

	// With every validator offline no round can finalize, so the whole
	// epoch's scheduled emission goes unminted.
	for _, v := range h.Validators() {
		h.SetOffline(v, true)
	}
	require.NoError(h.RunRounds(context.Background(), 5))

	require.Zero(h.IssuedMicro())
	require.Equal(5*rules.Economy.InitialRoundRewardMicro, h.AutoBurnedMicro())
}

func TestHarnessSurvivesOfflineMinority(t *testing.T) {
	require := require.New(t)

	// Five validators, four drawn as verifiers per round: losing one node
	// still leaves 3 of 4 approvals, above the 2/3 weight quorum.
	h := testHarness(t, 5)
	h.SetOffline(h.Validators()[0], true)

	for i := 0; i < 10; i++ {
		res, err := h.RunRound(context.Background())
		require.NoError(err)
		require.Equal(round.Distributed, res.State, "round %d", i+1)
	}
}
