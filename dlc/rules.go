// Package dlc defines the network rules for a Deterministic Learning
// Consensus deployment.
//
// This package provides:
//   - Network identification constants (MainNet, TestNet, FakeNet)
//   - DAG rules bounding block shape and admission
//   - Round rules (window duration, verifier count, quorum fraction)
//   - Economy rules (emission, halving, fee caps, reward split, bonding)
//
// The Rules type is the central configuration structure: every
// consensus-critical parameter of a network deployment lives here, so two
// nodes with equal Rules and equal inputs reach bit-identical state.
package dlc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dlc-foundation/go-dlc/inter"
)

// Network identification constants.
const (
	// MainNetworkID is the chain ID of the production network.
	MainNetworkID uint64 = 0xd1c

	// TestNetworkID is the chain ID of the public test network.
	TestNetworkID uint64 = 0xd1c2

	// FakeNetworkID is the chain ID for local networks used in testing.
	FakeNetworkID uint64 = 0xd1c3
)

// RulesRLP is the serializable form of Rules. Field order is
// consensus-critical: the encoding feeds genesis hashes.
type RulesRLP struct {
	// Name identifies the network ("main", "test", "fake").
	Name string
	// NetworkID is the chain ID.
	NetworkID uint64

	// Dag bounds block shape and DAG admission.
	Dag DagRules

	// Rounds configures the round state machine.
	Rounds RoundRules

	// Economy configures emission and reward distribution.
	Economy EconomyRules
}

// Rules describes the complete configuration of a network deployment.
type Rules RulesRLP

// DagRules bounds the shape of blocks entering the round DAG.
type DagRules struct {
	// MaxParents is the maximum number of parent references per block.
	MaxParents uint32

	// MaxBlocksPerValidator caps how many blocks one validator may get
	// admitted within a single round.
	MaxBlocksPerValidator uint32

	// MaxTxsPerBlock caps the transaction references per block.
	MaxTxsPerBlock uint32
}

// RoundRules configures the round state machine and finalization quorum.
type RoundRules struct {
	// WindowDuration is the length of the round's time window in
	// microseconds. Blocks whose HashTimer falls outside the window are
	// rejected.
	WindowDuration inter.Timestamp

	// Verifiers is k, the number of distinct verifiers drawn per round in
	// addition to the proposer.
	Verifiers uint32

	// QuorumNumer/QuorumDenom define the approval quorum as a fraction of
	// total verifier weight. The threshold is strict-majority style:
	// weight*numer/denom + 1, so 2/3 yields the usual BFT bound.
	QuorumNumer uint64
	QuorumDenom uint64

	// EpochRounds is the number of rounds per epoch, the granularity of
	// auto-burn bookkeeping and telemetry snapshots.
	EpochRounds uint64
}

// QuorumWeight returns the minimum approving weight that finalizes a round,
// given the total weight of the drawn verifier set.
func (r RoundRules) QuorumWeight(totalWeight uint64) uint64 {
	return totalWeight*r.QuorumNumer/r.QuorumDenom + 1
}

// SlashingRules sets the stake fraction burned per offence, in basis points.
type SlashingRules struct {
	DoubleSignBps   uint64
	DowntimeBps     uint64
	InvalidBlockBps uint64
}

// EconomyRules contains all economic parameters: emission schedule, fee
// handling, the proposer/verifier reward split, and bonding bounds. Amounts
// are micro units throughout; integer math only.
type EconomyRules struct {
	// InitialRoundRewardMicro is r0, the reward of the first halving era.
	InitialRoundRewardMicro uint64

	// HalvingIntervalRounds is the era length; the reward halves each era.
	HalvingIntervalRounds uint64

	// MaxSupplyMicro is the hard cap. Emission that would cross it is an
	// error, never a partial mint.
	MaxSupplyMicro uint64

	// FeeCapNumer/FeeCapDenom cap the fees distributable in a round at a
	// fraction of that round's emission. Excess fees carry to the sink.
	FeeCapNumer uint64
	FeeCapDenom uint64

	// ProposerWeightBps and VerifierWeightBps split the round pool between
	// roles. They must sum to 10000.
	ProposerWeightBps uint64
	VerifierWeightBps uint64

	// FeeRecyclingBps is the share of collected fees returned to the reward
	// pool; the rest is burned.
	FeeRecyclingBps uint64

	// MinStakeMicro is the bond floor for candidacy.
	MinStakeMicro uint64

	// UnbondingRounds is the time-lock on withdrawn stake.
	UnbondingRounds uint64

	// Slashing sets per-offence penalty fractions.
	Slashing SlashingRules

	// MaxSlashEvents is the lifetime slash-count threshold: a validator
	// whose count exceeds it loses candidacy for good. Zero disables the
	// threshold.
	MaxSlashEvents uint32
}

// MicroPerToken is the number of micro units per whole token.
const MicroPerToken uint64 = 100_000_000

// MainNetRules returns the production network configuration.
func MainNetRules() Rules {
	return Rules{
		Name:      "main",
		NetworkID: MainNetworkID,
		Dag:       DefaultDagRules(),
		Rounds:    DefaultRoundRules(),
		Economy:   DefaultEconomyRules(),
	}
}

// TestNetRules returns the public test network configuration. It matches
// mainnet so testing is realistic.
func TestNetRules() Rules {
	return Rules{
		Name:      "test",
		NetworkID: TestNetworkID,
		Dag:       DefaultDagRules(),
		Rounds:    DefaultRoundRules(),
		Economy:   DefaultEconomyRules(),
	}
}

// FakeNetRules returns accelerated rules for local networks: a small verifier
// set, short epochs and a low bond floor, so a handful of in-process
// validators can drive rounds quickly.
func FakeNetRules() Rules {
	r := Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		Dag:       DefaultDagRules(),
		Rounds:    DefaultRoundRules(),
		Economy:   DefaultEconomyRules(),
	}
	r.Rounds.Verifiers = 4
	r.Rounds.EpochRounds = 100
	r.Economy.MinStakeMicro = MicroPerToken // 1 token
	r.Economy.UnbondingRounds = 10
	return r
}

// DefaultDagRules returns the DAG bounds shared by all networks.
func DefaultDagRules() DagRules {
	return DagRules{
		MaxParents:            10,
		MaxBlocksPerValidator: 4,
		MaxTxsPerBlock:        10000,
	}
}

// DefaultRoundRules returns the mainnet round configuration: 200ms windows,
// 21 verifiers, 2/3 quorum by weight.
func DefaultRoundRules() RoundRules {
	return RoundRules{
		WindowDuration: inter.Timestamp(200 * time.Millisecond / time.Microsecond),
		Verifiers:      21,
		QuorumNumer:    2,
		QuorumDenom:    3,
		EpochRounds:    432_000, // one day at 200ms rounds
	}
}

// DefaultEconomyRules returns the mainnet economy: 0.1 token per round,
// halving roughly every two years of 200ms rounds, a 21M token hard cap, a
// 10% fee cap and the 20/80 proposer/verifier split.
func DefaultEconomyRules() EconomyRules {
	return EconomyRules{
		InitialRoundRewardMicro: 10_000_000,
		HalvingIntervalRounds:   315_000_000,
		MaxSupplyMicro:          2_100_000_000_000_000,
		FeeCapNumer:             1,
		FeeCapDenom:             10,
		ProposerWeightBps:       2000,
		VerifierWeightBps:       8000,
		FeeRecyclingBps:         10000,
		MinStakeMicro:           10 * MicroPerToken,
		UnbondingRounds:         100_000,
		Slashing: SlashingRules{
			DoubleSignBps:   5000,
			DowntimeBps:     100,
			InvalidBlockBps: 1000,
		},
		MaxSlashEvents: 3,
	}
}

// Validate checks internal consistency. Governance is expected to call it
// before activating a rules change; the engine trusts validated rules.
func (r Rules) Validate() error {
	if r.Rounds.WindowDuration == 0 {
		return fmt.Errorf("rules %q: zero round window", r.Name)
	}
	if r.Rounds.Verifiers == 0 {
		return fmt.Errorf("rules %q: zero verifier count", r.Name)
	}
	if r.Rounds.QuorumDenom == 0 || r.Rounds.QuorumNumer >= r.Rounds.QuorumDenom {
		return fmt.Errorf("rules %q: quorum fraction %d/%d out of range",
			r.Name, r.Rounds.QuorumNumer, r.Rounds.QuorumDenom)
	}
	if r.Economy.FeeCapDenom == 0 {
		return fmt.Errorf("rules %q: zero fee cap denominator", r.Name)
	}
	if r.Economy.FeeCapNumer > r.Economy.FeeCapDenom {
		return fmt.Errorf("rules %q: fee cap %d/%d above unity",
			r.Name, r.Economy.FeeCapNumer, r.Economy.FeeCapDenom)
	}
	s := r.Economy.Slashing
	if s.DoubleSignBps > 10000 || s.DowntimeBps > 10000 || s.InvalidBlockBps > 10000 {
		return fmt.Errorf("rules %q: slashing fraction above 10000 bps", r.Name)
	}
	if r.Economy.ProposerWeightBps+r.Economy.VerifierWeightBps != 10000 {
		return fmt.Errorf("rules %q: reward split %d+%d != 10000 bps",
			r.Name, r.Economy.ProposerWeightBps, r.Economy.VerifierWeightBps)
	}
	if r.Economy.FeeRecyclingBps > 10000 {
		return fmt.Errorf("rules %q: fee recycling %d bps > 10000", r.Name, r.Economy.FeeRecyclingBps)
	}
	if r.Economy.MaxSupplyMicro < r.Economy.InitialRoundRewardMicro {
		return fmt.Errorf("rules %q: hard cap below initial round reward", r.Name)
	}
	if r.Dag.MaxParents == 0 {
		return fmt.Errorf("rules %q: zero max parents", r.Name)
	}
	return nil
}

// Copy returns a value copy of the rules. Rules carry no reference types, so
// the copy is trivially deep; the method exists so call sites stay correct if
// that ever changes.
func (r Rules) Copy() Rules {
	return r
}

// String returns a JSON rendering for logs and debugging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
