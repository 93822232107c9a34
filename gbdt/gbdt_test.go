package gbdt

import (
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// testModel splits on feature 0 at 50: left leaf 100, right leaf 200.
func testModel() *Model {
	tree := Tree{
		Nodes: []Node{
			InternalNode(0, 0, fixed.FromInt(50), 1, 2),
			LeafNode(1, fixed.FromInt(100)),
			LeafNode(2, fixed.FromInt(200)),
		},
		Weight: fixed.One,
	}
	return NewModel([]Tree{tree}, fixed.Zero)
}

func features(f0 int64) []fixed.Fixed {
	f := make([]fixed.Fixed, FeatureCount)
	f[0] = fixed.FromInt(f0)
	return f
}

func TestScoreBranches(t *testing.T) {
	m := testModel()
	assert.Equal(t, fixed.FromInt(100), m.Score(features(30)))
	assert.Equal(t, fixed.FromInt(200), m.Score(features(60)))
	// Ties take the left branch.
	assert.Equal(t, fixed.FromInt(100), m.Score(features(50)))
}

func TestScoreBiasAndEnsemble(t *testing.T) {
	m := testModel()
	m.Bias = fixed.FromInt(5)
	assert.Equal(t, fixed.FromInt(105), m.Score(features(30)))

	m = testModel()
	m.Trees = append(m.Trees, m.Trees[0])
	assert.Equal(t, fixed.FromInt(400), m.Score(features(60)))

	// Half-weighted tree contributes half its leaf.
	m = testModel()
	half, err := fixed.FromRatio(1, 2)
	require.NoError(t, err)
	m.Trees[0].Weight = half
	assert.Equal(t, fixed.FromInt(100), m.Score(features(60)))
}

func TestScoreClampsToDomain(t *testing.T) {
	m := NewModel([]Tree{{
		Nodes:  []Node{LeafNode(0, fixed.FromInt(50_000))},
		Weight: fixed.One,
	}}, fixed.Zero)
	assert.Equal(t, MaxScore, m.Score(features(0)))

	m.Bias = fixed.FromInt(-100_000)
	assert.Equal(t, fixed.Zero, m.Score(features(0)))
}

func TestScoreIsDeterministic(t *testing.T) {
	m := testModel()
	f := features(45)
	first := m.Score(f)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, m.Score(f))
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, testModel().Validate())

	bad := testModel()
	bad.Version = 2
	require.Error(t, bad.Validate())

	bad = testModel()
	bad.Scale = 0
	require.Error(t, bad.Validate())

	bad = testModel()
	bad.Trees[0].Nodes[0].Left = 99
	require.Error(t, bad.Validate())

	bad = testModel()
	bad.Trees = append(bad.Trees, Tree{})
	require.Error(t, bad.Validate())
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	require := require.New(t)

	canon, err := CanonicalJSON(testModel())
	require.NoError(err)

	// Top-level keys appear in lexicographic order.
	s := string(canon)
	require.Regexp(`^\{"bias":.*"post_scale":.*"scale":.*"trees":.*"version":`, s)

	// Canonicalization is stable.
	again, err := CanonicalJSON(testModel())
	require.NoError(err)
	require.Equal(canon, again)
}

func TestModelHashSensitivity(t *testing.T) {
	require := require.New(t)

	h1, err := ModelHash(testModel())
	require.NoError(err)
	h2, err := ModelHash(testModel())
	require.NoError(err)
	require.Equal(h1, h2)

	changed := testModel()
	changed.Bias = fixed.FromMicro(1)
	h3, err := ModelHash(changed)
	require.NoError(err)
	require.NotEqual(h1, h3)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "model.json")
	m := testModel()
	require.NoError(SaveModel(m, path))

	pinned, err := ReadSidecarHash(path)
	require.NoError(err)

	loaded, h, err := LoadModel(path, pinned)
	require.NoError(err)
	require.Equal(pinned, h)
	require.Equal(m.Score(features(60)), loaded.Score(features(60)))
}

func TestLoadRejectsMismatchedHash(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(SaveModel(testModel(), path))

	wrong := hash.BytesToHash([]byte{1, 2, 3})
	_, _, err := LoadModel(path, wrong)
	require.ErrorIs(err, ErrModelHashMismatch)
}

func TestNormalizeFeatures(t *testing.T) {
	require := require.New(t)
	cfg := DefaultFeatureConfig()

	tel := inter.NewValidatorTelemetry(inter.BytesToValidatorID([]byte{1}))
	tel.AvgLatencyUS = 500_000 // half the bound
	tel.BlocksProposed = 5
	tel.BlocksVerified = 20
	tel.RoundsActive = 10
	tel.StakeMicro = cfg.MaxStakeMicro / 4

	f := NormalizeFeatures(tel, cfg)
	require.Len(f, FeatureCount)
	require.Equal(fixed.FromInt(10_000), f[FeatUptime])
	require.Equal(fixed.FromInt(5_000), f[FeatLatencyInv])
	require.Equal(fixed.FromInt(10_000), f[FeatHonesty])
	require.Equal(fixed.FromInt(5_000), f[FeatProposalRate])
	// 20 blocks over 10 rounds saturates at the ceiling.
	require.Equal(fixed.FromInt(10_000), f[FeatVerificationRate])
	require.Equal(fixed.FromInt(2_500), f[FeatStakeWeight])
}

func TestNormalizeFeaturesSaturates(t *testing.T) {
	cfg := DefaultFeatureConfig()
	tel := inter.NewValidatorTelemetry(inter.BytesToValidatorID([]byte{1}))
	tel.AvgLatencyUS = cfg.MaxLatencyUS * 10
	tel.StakeMicro = cfg.MaxStakeMicro * 2

	f := NormalizeFeatures(tel, cfg)
	assert.Equal(t, fixed.Zero, f[FeatLatencyInv])
	assert.Equal(t, fixed.FromInt(10_000), f[FeatStakeWeight])
}

func TestFallbackScore(t *testing.T) {
	// A perfect validator scores the ceiling; an absent one scores zero.
	perfect := make([]fixed.Fixed, FeatureCount)
	for i := range perfect {
		perfect[i] = fixed.FromInt(10_000)
	}
	assert.Equal(t, MaxScore, FallbackScore(perfect))
	assert.Equal(t, fixed.Zero, FallbackScore(make([]fixed.Fixed, FeatureCount)))

	// Monotone in uptime.
	better := make([]fixed.Fixed, FeatureCount)
	better[FeatUptime] = fixed.FromInt(10_000)
	worse := make([]fixed.Fixed, FeatureCount)
	worse[FeatUptime] = fixed.FromInt(5_000)
	assert.Equal(t, 1, FallbackScore(better).Cmp(FallbackScore(worse)))
}

func TestComputeScoresMatchesSerial(t *testing.T) {
	require := require.New(t)

	m := testModel()
	in := make(map[inter.ValidatorID][]fixed.Fixed)
	for i := byte(0); i < 50; i++ {
		in[inter.BytesToValidatorID([]byte{i})] = features(int64(i) * 2)
	}

	parallel := ComputeScores(m, in)
	require.Len(parallel, len(in))
	for id, f := range in {
		require.Equal(m.Score(f), parallel[id])
	}
}

func TestStoreSwapAndFallback(t *testing.T) {
	require := require.New(t)

	store := NewStore()
	require.Nil(store.Active())

	// No model: the fallback path scores.
	in := map[inter.ValidatorID][]fixed.Fixed{
		inter.BytesToValidatorID([]byte{1}): make([]fixed.Fixed, FeatureCount),
	}
	got := store.Scores(in)
	require.Equal(FallbackScores(in), got)

	m := testModel()
	require.NoError(store.Activate(m, hash.Hash{}))
	require.NotNil(store.Active())
	require.Equal(ComputeScores(m, in), store.Scores(in))

	// A bad swap leaves the active model untouched.
	before := store.Active().Hash
	err := store.Activate(testModel(), hash.BytesToHash([]byte{0xff}))
	require.ErrorIs(err, ErrModelHashMismatch)
	require.Equal(before, store.Active().Hash)
}
