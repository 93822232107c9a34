package economy

import (
	"math/bits"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
)

// Distribution is the full accounting of one round's rewards. The invariant
// checked by every consumer: EmissionMicro + CappedFeeMicro equals the sum
// of Payouts plus SinkMicro, and ExcessFeeMicro + BurnedFeeMicro accounts
// for every collected fee that was not distributed.
type Distribution struct {
	// Payouts per validator, in micro units.
	Payouts map[inter.ValidatorID]uint64

	// EmissionMicro is the newly minted amount entering the pool.
	EmissionMicro uint64
	// CappedFeeMicro is the fee amount that entered the pool after the fee
	// cap and recycling.
	CappedFeeMicro uint64
	// ExcessFeeMicro is fee volume above the cap; it never enters the pool.
	ExcessFeeMicro uint64
	// BurnedFeeMicro is the non-recycled share of capped fees.
	BurnedFeeMicro uint64
	// SinkMicro collects integer-division remainders and the pools of empty
	// roles. It belongs to the protocol sink account.
	SinkMicro uint64
}

// TotalPaid sums the per-validator payouts.
func (d *Distribution) TotalPaid() uint64 {
	var total uint64
	for _, p := range d.Payouts {
		total += p
	}
	return total
}

// DistributeRound computes one finalized round's payouts.
//
// The pipeline, in order: fees are capped at the configured fraction of
// emission; the capped fees are recycled into the pool at the recycling
// rate (the rest burns); the pool splits between the proposer and verifier
// roles by basis points; within each role, validators are paid
// proportionally to their admitted block count. Integer division throughout,
// with every remainder credited to the sink so the round balances exactly.
func DistributeRound(
	emissionMicro, feeMicro uint64,
	proposerBlocks, verifierBlocks map[inter.ValidatorID]uint64,
	e dlc.EconomyRules,
) Distribution {
	d := Distribution{
		Payouts:       make(map[inter.ValidatorID]uint64),
		EmissionMicro: emissionMicro,
	}

	// Fee cap: fees join the pool only up to capNumer/capDenom of the
	// round's emission.
	maxFee := mulDiv(emissionMicro, e.FeeCapNumer, e.FeeCapDenom)
	capped := feeMicro
	if capped > maxFee {
		capped = maxFee
	}
	d.ExcessFeeMicro = feeMicro - capped

	// Recycling: the protocol may burn part of the capped fees instead of
	// paying them out.
	recycled := mulDiv(capped, e.FeeRecyclingBps, 10_000)
	d.BurnedFeeMicro = capped - recycled
	d.CappedFeeMicro = recycled

	pool := emissionMicro + recycled
	if pool == 0 {
		return d
	}

	proposerPool := mulDiv(pool, e.ProposerWeightBps, 10_000)
	verifierPool := pool - proposerPool

	d.SinkMicro += payRole(d.Payouts, proposerPool, proposerBlocks)
	d.SinkMicro += payRole(d.Payouts, verifierPool, verifierBlocks)
	return d
}

// mulDiv computes x*num/den through a 128-bit intermediate, so fractions of
// large pools floor at the unit, not at the divisor. Rules validation keeps
// num at or below den, so the quotient fits uint64.
func mulDiv(x, num, den uint64) uint64 {
	hi, lo := bits.Mul64(x, num)
	q, _ := bits.Div64(hi, lo, den)
	return q
}

// payRole splits a role pool proportionally to block counts and returns the
// undistributed remainder. An empty role returns its whole pool.
func payRole(payouts map[inter.ValidatorID]uint64, pool uint64, blocks map[inter.ValidatorID]uint64) uint64 {
	var totalBlocks uint64
	for _, n := range blocks {
		totalBlocks += n
	}
	if totalBlocks == 0 || pool == 0 {
		return pool
	}

	var paid uint64
	for v, n := range blocks {
		share := pool / totalBlocks * n
		if share == 0 {
			continue
		}
		payouts[v] += share
		paid += share
	}
	return pool - paid
}
