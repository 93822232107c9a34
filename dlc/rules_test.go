package dlc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsAreValid(t *testing.T) {
	for _, r := range []Rules{MainNetRules(), TestNetRules(), FakeNetRules()} {
		t.Run(r.Name, func(t *testing.T) {
			require.NoError(t, r.Validate())
		})
	}
}

func TestValidateRejectsBrokenRules(t *testing.T) {
	cases := map[string]func(*Rules){
		"zero window":        func(r *Rules) { r.Rounds.WindowDuration = 0 },
		"zero verifiers":     func(r *Rules) { r.Rounds.Verifiers = 0 },
		"quorum >= 1":        func(r *Rules) { r.Rounds.QuorumNumer = 3 },
		"zero quorum denom":  func(r *Rules) { r.Rounds.QuorumDenom = 0 },
		"zero fee cap denom": func(r *Rules) { r.Economy.FeeCapDenom = 0 },
		"split != 10000":     func(r *Rules) { r.Economy.ProposerWeightBps = 3000 },
		"recycling > 10000":  func(r *Rules) { r.Economy.FeeRecyclingBps = 10001 },
		"zero max parents":   func(r *Rules) { r.Dag.MaxParents = 0 },
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			r := MainNetRules()
			breakIt(&r)
			require.Error(t, r.Validate())
		})
	}
}

func TestQuorumWeight(t *testing.T) {
	rr := DefaultRoundRules() // 2/3

	// 2/3 of 21 is 14, plus one.
	assert.Equal(t, uint64(15), rr.QuorumWeight(21))
	// Integer division truncates before the +1.
	assert.Equal(t, uint64(3), rr.QuorumWeight(4))
	assert.Equal(t, uint64(1), rr.QuorumWeight(1))
}

func TestEconomyDefaults(t *testing.T) {
	e := DefaultEconomyRules()
	assert.Equal(t, uint64(10_000_000), e.InitialRoundRewardMicro)
	assert.Equal(t, uint64(2_100_000_000_000_000), e.MaxSupplyMicro)
	assert.Equal(t, uint64(2000), e.ProposerWeightBps)
	assert.Equal(t, uint64(8000), e.VerifierWeightBps)
}

func TestRulesJSONRoundTrip(t *testing.T) {
	require := require.New(t)

	r := FakeNetRules()
	b, err := json.Marshal(&r)
	require.NoError(err)

	var got Rules
	require.NoError(json.Unmarshal(b, &got))
	require.Equal(r, got)
}
