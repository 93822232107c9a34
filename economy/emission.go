// Package economy implements the emission schedule and the DAG-Fair reward
// distribution. All amounts are micro units and all math is integer-only:
// given the same round inputs, every node computes identical payouts.
package economy

import (
	"errors"
	"fmt"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
)

// ErrHardCapExceeded means minting the round's emission would cross the
// supply cap. The engine halts issuance rather than partially minting.
var ErrHardCapExceeded = errors.New("economy: emission would exceed hard cap")

// EmissionForRound returns the uncapped base emission of a round:
// r0 halved once per elapsed halving interval. Round 0 is genesis and emits
// nothing; after 64 halvings the shift would clear any uint64, so emission
// is exactly zero forever.
func EmissionForRound(round inter.Round, e dlc.EconomyRules) uint64 {
	if round == 0 {
		return 0
	}
	halvings := uint64(round) / e.HalvingIntervalRounds
	if halvings >= 64 {
		return 0
	}
	return e.InitialRoundRewardMicro >> halvings
}

// EmissionForRoundCapped returns the round emission, enforcing the supply
// cap. If the full base emission no longer fits under the cap the call fails
// with ErrHardCapExceeded and nothing may be minted: the cap is never
// crossed and never approached with a partial mint.
func EmissionForRoundCapped(round inter.Round, issuedMicro uint64, e dlc.EconomyRules) (uint64, error) {
	base := EmissionForRound(round, e)
	if base == 0 {
		return 0, nil
	}
	if issuedMicro >= e.MaxSupplyMicro || base > e.MaxSupplyMicro-issuedMicro {
		return 0, fmt.Errorf("%w: issued %d, base %d, cap %d",
			ErrHardCapExceeded, issuedMicro, base, e.MaxSupplyMicro)
	}
	return base, nil
}

// EpochAutoBurn returns the unclaimed remainder of an epoch: the difference
// between what the schedule expected to pay and what was actually paid out.
// It is bookkeeping only; the amount was simply never minted.
func EpochAutoBurn(expectedMicro, actualMicro uint64) uint64 {
	if actualMicro >= expectedMicro {
		return 0
	}
	return expectedMicro - actualMicro
}
