package gbdt

import (
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// fallbackWeightsBps is the authority-style scoring used when no model is
// active: a plain weighted average over the normalized features, weights in
// basis points summing to 10000.
var fallbackWeightsBps = [FeatureCount]int64{
	FeatUptime:           2500,
	FeatLatencyInv:       1500,
	FeatHonesty:          2500,
	FeatProposalRate:     1000,
	FeatVerificationRate: 1000,
	FeatStakeWeight:      1500,
}

// FallbackScore computes the no-model score: a deterministic weighted
// average of the feature vector, landing in the same [0, MaxScore] domain as
// model inference so selection never cares which path produced a score.
func FallbackScore(features []fixed.Fixed) fixed.Fixed {
	var sum fixed.Fixed
	for i, w := range fallbackWeightsBps {
		if i >= len(features) {
			break
		}
		contribution := features[i].SatMul(fixed.FromMicro(w * fixed.Scale / 10_000))
		sum = sum.SatAdd(contribution)
	}
	return sum.Clamp(fixed.Zero, MaxScore)
}

// FallbackScores scores a whole validator set without a model.
func FallbackScores(features map[inter.ValidatorID][]fixed.Fixed) map[inter.ValidatorID]fixed.Fixed {
	scores := make(map[inter.ValidatorID]fixed.Fixed, len(features))
	for id, f := range features {
		scores[id] = FallbackScore(f)
	}
	return scores
}
