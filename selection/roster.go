package selection

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"

	"github.com/dlc-foundation/go-dlc/inter"
)

// Roster is one round's eligible validator set with its weight bookkeeping.
// Consensus identities are 32-byte ValidatorIDs; the roster maps them onto
// compact indexes so the weighted-set machinery can do quorum math on them.
// Index assignment follows ValidatorID order and is therefore identical on
// every node given the same candidate set.
type Roster struct {
	// Members in ValidatorID order.
	Members []Candidate

	validators *pos.Validators
	index      map[inter.ValidatorID]idx.ValidatorID
	reverse    map[idx.ValidatorID]inter.ValidatorID
}

// NewRoster builds the roster from an already-sorted candidate slice (the
// order Registry.Candidates returns). Weight is bonded stake in micro units.
func NewRoster(candidates []Candidate) *Roster {
	r := &Roster{
		Members: candidates,
		index:   make(map[inter.ValidatorID]idx.ValidatorID, len(candidates)),
		reverse: make(map[idx.ValidatorID]inter.ValidatorID, len(candidates)),
	}
	builder := pos.NewBigBuilder()
	for i, c := range candidates {
		id := idx.ValidatorID(i + 1)
		r.index[c.Validator] = id
		r.reverse[id] = c.Validator
		builder.Set(id, new(big.Int).SetUint64(c.StakeMicro))
	}
	r.validators = builder.Build()
	return r
}

// Validators exposes the weighted set for quorum math.
func (r *Roster) Validators() *pos.Validators {
	return r.validators
}

// WeightOf returns the normalized weight of a validator, zero if absent.
func (r *Roster) WeightOf(v inter.ValidatorID) pos.Weight {
	id, ok := r.index[v]
	if !ok {
		return 0
	}
	return r.validators.Get(id)
}

// TotalWeightOf sums the normalized weights of the given validators,
// skipping unknowns. Round finalization compares this against the quorum
// threshold.
func (r *Roster) TotalWeightOf(vs []inter.ValidatorID) pos.Weight {
	var total pos.Weight
	for _, v := range vs {
		total += r.WeightOf(v)
	}
	return total
}

// Contains reports roster membership.
func (r *Roster) Contains(v inter.ValidatorID) bool {
	_, ok := r.index[v]
	return ok
}

// Len returns the roster size.
func (r *Roster) Len() int {
	return len(r.Members)
}
