// Package selection implements validator candidacy, the bonding state
// machine, and the deterministic proposer/verifier draws.
package selection

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
)

// BondState is the lifecycle state of a validator's bond.
type BondState int

const (
	// Unbonded: no active stake; not a candidate.
	Unbonded BondState = iota
	// Bonding: stake deposited, activates at the next round boundary.
	Bonding
	// Bonded: active stake; eligible for selection.
	Bonded
	// Unbonding: withdrawal initiated, stake time-locked.
	Unbonding
	// Slashed: penalized; barred from candidacy until released.
	Slashed
)

func (s BondState) String() string {
	switch s {
	case Unbonded:
		return "unbonded"
	case Bonding:
		return "bonding"
	case Bonded:
		return "bonded"
	case Unbonding:
		return "unbonding"
	case Slashed:
		return "slashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Offence classifies slashable behavior.
type Offence int

const (
	OffenceDoubleSign Offence = iota
	OffenceDowntime
	OffenceInvalidBlock
)

func (o Offence) String() string {
	switch o {
	case OffenceDoubleSign:
		return "double-sign"
	case OffenceDowntime:
		return "downtime"
	case OffenceInvalidBlock:
		return "invalid-block"
	default:
		return fmt.Sprintf("offence(%d)", int(o))
	}
}

// Bond is one validator's stake record.
type Bond struct {
	Validator  inter.ValidatorID
	State      BondState
	StakeMicro uint64
	// UnlockRound is set while Unbonding or Slashed: the round at which the
	// stake (or its remainder) releases.
	UnlockRound inter.Round
	// SlashedRound records the most recent offence; candidacy is barred for
	// that round and the next.
	SlashedRound inter.Round
	// SlashCount counts offences over the bond's lifetime. Past the rules'
	// MaxSlashEvents threshold the validator loses candidacy for good.
	SlashCount uint32
	// TotalSlashedMicro accumulates burned stake over the bond's lifetime.
	TotalSlashedMicro uint64
}

var (
	ErrBondExists   = errors.New("selection: bond already exists")
	ErrBondNotFound = errors.New("selection: bond not found")
	ErrBondState    = errors.New("selection: operation invalid in current bond state")
	ErrStakeTooLow  = errors.New("selection: stake below bond floor")
	ErrStakeLocked  = errors.New("selection: unbonding lock has not expired")
)

// Registry tracks every bond and drives state transitions at round
// boundaries. It is mutex-guarded: the round driver is its single writer,
// but RPC surfaces may read concurrently.
type Registry struct {
	mu    sync.Mutex
	rules dlc.EconomyRules
	bonds map[inter.ValidatorID]*Bond
	log   *logrus.Entry
}

// NewRegistry builds an empty registry under the given economy rules.
func NewRegistry(rules dlc.EconomyRules) *Registry {
	return &Registry{
		rules: rules,
		bonds: make(map[inter.ValidatorID]*Bond),
		log:   logrus.WithField("module", "bonding"),
	}
}

// Deposit creates a bond in Bonding state. The stake must meet the bond
// floor up front; it becomes eligible at the next round boundary.
func (r *Registry) Deposit(v inter.ValidatorID, stakeMicro uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bonds[v]; ok && b.State != Unbonded {
		return fmt.Errorf("%w: %s is %s", ErrBondExists, v, b.State)
	}
	if stakeMicro < r.rules.MinStakeMicro {
		return fmt.Errorf("%w: %d < %d", ErrStakeTooLow, stakeMicro, r.rules.MinStakeMicro)
	}
	r.bonds[v] = &Bond{Validator: v, State: Bonding, StakeMicro: stakeMicro}
	r.log.WithFields(logrus.Fields{"validator": v.String(), "stake": stakeMicro}).Info("bond deposited")
	return nil
}

// AddStake tops up an active bond.
func (r *Registry) AddStake(v inter.ValidatorID, amountMicro uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bonds[v]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBondNotFound, v)
	}
	if b.State != Bonded && b.State != Bonding {
		return fmt.Errorf("%w: %s is %s", ErrBondState, v, b.State)
	}
	b.StakeMicro += amountMicro
	return nil
}

// BeginUnbond moves Bonded -> Unbonding and starts the time-lock.
func (r *Registry) BeginUnbond(v inter.ValidatorID, current inter.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bonds[v]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBondNotFound, v)
	}
	if b.State != Bonded {
		return fmt.Errorf("%w: %s is %s", ErrBondState, v, b.State)
	}
	b.State = Unbonding
	b.UnlockRound = current + inter.Round(r.rules.UnbondingRounds)
	return nil
}

// CompleteUnbond releases a time-locked stake once the lock expired,
// returning the released amount and moving the bond to Unbonded.
func (r *Registry) CompleteUnbond(v inter.ValidatorID, current inter.Round) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bonds[v]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrBondNotFound, v)
	}
	if b.State != Unbonding && b.State != Slashed {
		return 0, fmt.Errorf("%w: %s is %s", ErrBondState, v, b.State)
	}
	if current < b.UnlockRound {
		return 0, fmt.Errorf("%w: unlocks at round %d", ErrStakeLocked, b.UnlockRound)
	}
	released := b.StakeMicro
	b.StakeMicro = 0
	b.State = Unbonded
	return released, nil
}

// Slash burns the offence's stake fraction, bars the validator from
// candidacy for this round and the next, and time-locks the remainder. The
// burned amount is returned for supply bookkeeping.
func (r *Registry) Slash(v inter.ValidatorID, offence Offence, current inter.Round) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bonds[v]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrBondNotFound, v)
	}
	if b.State == Unbonded {
		return 0, fmt.Errorf("%w: %s is %s", ErrBondState, v, b.State)
	}

	var bps uint64
	switch offence {
	case OffenceDoubleSign:
		bps = r.rules.Slashing.DoubleSignBps
	case OffenceDowntime:
		bps = r.rules.Slashing.DowntimeBps
	case OffenceInvalidBlock:
		bps = r.rules.Slashing.InvalidBlockBps
	default:
		return 0, fmt.Errorf("selection: unknown offence %d", offence)
	}

	burned := slashPortion(b.StakeMicro, bps)
	b.StakeMicro -= burned
	b.TotalSlashedMicro += burned
	b.SlashedRound = current
	b.SlashCount++

	// Minor offences keep the bond alive but bar candidacy for this round
	// and the next. Double-signing, or dropping below the floor, ends the
	// bond: the remainder time-locks and then releases.
	if offence == OffenceDoubleSign || b.StakeMicro < r.rules.MinStakeMicro {
		b.State = Slashed
		b.UnlockRound = current + inter.Round(r.rules.UnbondingRounds)
	}

	r.log.WithFields(logrus.Fields{
		"validator": v.String(),
		"offence":   offence.String(),
		"burned":    burned,
		"remaining": b.StakeMicro,
	}).Warn("validator slashed")
	return burned, nil
}

// OnRoundStart promotes Bonding bonds to Bonded. Called once per round by
// the round driver before candidates are gathered.
func (r *Registry) OnRoundStart(current inter.Round) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bonds {
		if b.State == Bonding {
			b.State = Bonded
		}
	}
}

// Bond returns a copy of the validator's bond record.
func (r *Registry) Bond(v inter.ValidatorID) (Bond, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bonds[v]
	if !ok {
		return Bond{}, false
	}
	return *b, true
}

// Candidates returns the validators eligible for selection in the given
// round: Bonded, stake at or above the floor, not slashed in this round or
// the previous one, and not past the lifetime slash-count threshold. The
// slice is sorted by ValidatorID so every caller sees the same candidate
// order.
func (r *Registry) Candidates(current inter.Round) []Bond {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Bond, 0, len(r.bonds))
	for _, b := range r.bonds {
		if b.State != Bonded {
			continue
		}
		if b.StakeMicro < r.rules.MinStakeMicro {
			continue
		}
		if b.SlashedRound != 0 && current <= b.SlashedRound+1 {
			continue
		}
		if r.rules.MaxSlashEvents != 0 && b.SlashCount > r.rules.MaxSlashEvents {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Validator.Compare(out[j].Validator) < 0
	})
	return out
}

// slashPortion computes stakeMicro*bps/10_000 through a 128-bit intermediate
// so large stakes lose nothing to the divide. Rules validation bounds bps at
// 10000, so the quotient fits uint64.
func slashPortion(stakeMicro, bps uint64) uint64 {
	hi, lo := bits.Mul64(stakeMicro, bps)
	q, _ := bits.Div64(hi, lo, 10_000)
	return q
}

// TotalBondedMicro sums active stake, for diagnostics.
func (r *Registry) TotalBondedMicro() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total uint64
	for _, b := range r.bonds {
		if b.State == Bonded {
			total += b.StakeMicro
		}
	}
	return total
}
