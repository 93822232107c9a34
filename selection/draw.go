package selection

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/zeebo/blake3"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// ErrNoCandidates means the draw had no candidate with positive weight.
// The round cannot proceed and must abort.
var ErrNoCandidates = errors.New("selection: no candidates with positive weight")

// Candidate pairs a validator with its selection inputs for one round.
type Candidate struct {
	Validator  inter.ValidatorID
	Score      fixed.Fixed
	StakeMicro uint64
}

// Weight is the candidate's draw weight: score (integer part, [0, 10000])
// times bonded whole tokens. Both factors are bounded, so the product fits
// comfortably in uint64 and sums cannot wrap across a 21M token supply.
func (c Candidate) Weight() uint64 {
	score := c.Score.Int()
	if score < 0 {
		return 0
	}
	return uint64(score) * (c.StakeMicro / dlc.MicroPerToken)
}

// Seed is the deterministic entropy for one round's draws, derived from
// consensus data every node agrees on.
type Seed [32]byte

// DeriveSeed builds the round seed from the round number and the previous
// round's closing state (certificate hash, or the genesis hash for round 1).
func DeriveSeed(round inter.Round, prev hash.Hash) Seed {
	h := blake3.New()
	_, _ = h.Write([]byte("dlc/selection/seed"))
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(round))
	_, _ = h.Write(num[:])
	_, _ = h.Write(prev.Bytes())
	var s Seed
	copy(s[:], h.Sum(nil))
	return s
}

// draw picks one candidate by weighted lottery. Candidates are visited in
// ValidatorID order; the target index comes from a BLAKE3 stream over the
// seed, the salt, and every (id, weight) pair, so any change to the
// candidate set reshuffles the outcome and no node can predict a draw
// without the full set.
func draw(seed Seed, salt uint64, candidates []Candidate) (inter.ValidatorID, error) {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Validator.Compare(ordered[j].Validator) < 0
	})

	var total uint64
	for _, c := range ordered {
		total += c.Weight()
	}
	if total == 0 {
		return inter.ValidatorID{}, ErrNoCandidates
	}

	h := blake3.New()
	_, _ = h.Write([]byte("dlc/selection/draw"))
	_, _ = h.Write(seed[:])
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], salt)
	_, _ = h.Write(num[:])
	for _, c := range ordered {
		_, _ = h.Write(c.Validator.Bytes())
		binary.BigEndian.PutUint64(num[:], c.Weight())
		_, _ = h.Write(num[:])
	}
	digest := h.Sum(nil)
	target := binary.BigEndian.Uint64(digest[:8]) % total

	for _, c := range ordered {
		w := c.Weight()
		if w == 0 {
			continue
		}
		if target < w {
			return c.Validator, nil
		}
		target -= w
	}
	// Unreachable: target < total and weights sum to total.
	return ordered[len(ordered)-1].Validator, nil
}

// SelectProposer draws the round's proposer.
func SelectProposer(seed Seed, candidates []Candidate) (inter.ValidatorID, error) {
	return draw(seed, 0, candidates)
}

// SelectVerifiers draws k distinct verifiers, excluding the proposer. Each
// draw advances the salt and removes the winner, so the result is a
// dependent sample without replacement. Fewer than k eligible candidates is
// not an error; the round's quorum math sees the smaller set.
func SelectVerifiers(seed Seed, candidates []Candidate, proposer inter.ValidatorID, k uint32) ([]inter.ValidatorID, error) {
	remaining := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Validator != proposer {
			remaining = append(remaining, c)
		}
	}

	verifiers := make([]inter.ValidatorID, 0, k)
	for salt := uint64(1); uint32(len(verifiers)) < k && len(remaining) > 0; salt++ {
		winner, err := draw(seed, salt, remaining)
		if err != nil {
			if errors.Is(err, ErrNoCandidates) && len(verifiers) > 0 {
				break
			}
			return nil, err
		}
		verifiers = append(verifiers, winner)
		for i, c := range remaining {
			if c.Validator == winner {
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}
	if len(verifiers) == 0 {
		return nil, ErrNoCandidates
	}
	return verifiers, nil
}

// RankByScore orders validators by score descending, ValidatorID ascending
// on ties. Telemetry reports and diagnostics use this order.
func RankByScore(scores map[inter.ValidatorID]fixed.Fixed) []inter.ValidatorID {
	ids := make([]inter.ValidatorID, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c := scores[ids[i]].Cmp(scores[ids[j]]); c != 0 {
			return c > 0
		}
		return ids[i].Compare(ids[j]) < 0
	})
	return ids
}
