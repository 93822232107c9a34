// Package dag implements the per-round block DAG: admission of candidate
// blocks during the round window and their deterministic ordering once the
// window closes.
//
// A RoundDAG is single-writer by construction: every mutation goes through
// one mutex, and admission either fully accepts a block or rejects it with a
// typed reason, never leaving partial state behind. Ordering depends only on
// the admitted set, not on the order blocks arrived in.
package dag

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/hashtime"
)

// Phase is the lifecycle state of a round DAG.
type Phase int

const (
	// Open: created, window not started, no admissions yet.
	Open Phase = iota
	// Admitting: inside the round window, accepting blocks.
	Admitting
	// Ordered: window closed, the canonical order is fixed.
	Ordered
	// Closed: the round is done with this DAG; all further calls fail.
	Closed
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Admitting:
		return "admitting"
	case Ordered:
		return "ordered"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RejectCode classifies why a block was refused.
type RejectCode int

const (
	RejectDuplicate RejectCode = iota
	RejectWrongRound
	RejectOutsideWindow
	RejectUnknownParent
	RejectNoParents
	RejectTooManyParents
	RejectTooManyTxs
	RejectCreatorQuota
	RejectPhase
)

func (c RejectCode) String() string {
	switch c {
	case RejectDuplicate:
		return "duplicate"
	case RejectWrongRound:
		return "wrong-round"
	case RejectOutsideWindow:
		return "outside-window"
	case RejectUnknownParent:
		return "unknown-parent"
	case RejectNoParents:
		return "no-parents"
	case RejectTooManyParents:
		return "too-many-parents"
	case RejectTooManyTxs:
		return "too-many-txs"
	case RejectCreatorQuota:
		return "creator-quota"
	case RejectPhase:
		return "phase"
	default:
		return fmt.Sprintf("reject(%d)", int(c))
	}
}

// Rejection is the non-fatal admission failure: the block is refused, the
// DAG is unchanged, and the round continues.
type Rejection struct {
	Code   RejectCode
	Detail string
}

func (r *Rejection) Error() string {
	return "dag: block rejected: " + r.Code.String() + ": " + r.Detail
}

// RoundDAG holds the blocks admitted in one round, plus the tips carried
// over from previous rounds that this round's blocks may reference as
// parents.
type RoundDAG struct {
	mu sync.Mutex

	phase  Phase
	round  inter.Round
	window hashtime.Window
	rules  dlc.DagRules

	blocks   map[hash.Hash]*inter.Block
	children map[hash.Hash][]hash.Hash
	tips     map[hash.Hash]struct{}
	// carried holds block IDs from earlier rounds that are valid parents
	// here but are not part of this round's ordering.
	carried    map[hash.Hash]struct{}
	perCreator map[inter.ValidatorID]uint32

	rejections uint64

	log *logrus.Entry
}

// NewRoundDAG builds the DAG for one round. carryOver lists the block IDs
// from previous rounds (typically their tips) that blocks of this round may
// use as parents. The DAG starts in Open and admits nothing until
// StartAdmission.
func NewRoundDAG(round inter.Round, window hashtime.Window, rules dlc.DagRules, carryOver []hash.Hash) *RoundDAG {
	carried := make(map[hash.Hash]struct{}, len(carryOver))
	tips := make(map[hash.Hash]struct{}, len(carryOver))
	for _, id := range carryOver {
		carried[id] = struct{}{}
		tips[id] = struct{}{}
	}
	return &RoundDAG{
		phase:      Open,
		round:      round,
		window:     window,
		rules:      rules,
		blocks:     make(map[hash.Hash]*inter.Block),
		children:   make(map[hash.Hash][]hash.Hash),
		tips:       tips,
		carried:    carried,
		perCreator: make(map[inter.ValidatorID]uint32),
		log:        logrus.WithFields(logrus.Fields{"module": "dag", "round": uint64(round)}),
	}
}

// Round returns the round this DAG serves.
func (d *RoundDAG) Round() inter.Round {
	return d.round
}

// Phase returns the current lifecycle state.
func (d *RoundDAG) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// StartAdmission moves Open -> Admitting. It is idempotent while admitting
// and fails once ordering has happened.
func (d *RoundDAG) StartAdmission() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.phase {
	case Open:
		d.phase = Admitting
		return nil
	case Admitting:
		return nil
	default:
		return fmt.Errorf("dag: cannot admit in phase %s", d.phase)
	}
}

// Admit validates and inserts one block. On failure it returns a *Rejection
// and the DAG state is exactly as before the call: all checks run before any
// mutation.
func (d *RoundDAG) Admit(b *inter.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != Admitting {
		return &Rejection{Code: RejectPhase, Detail: "phase is " + d.phase.String()}
	}

	id := b.ID()
	if rej := d.validate(b, id); rej != nil {
		d.rejections++
		d.log.WithFields(logrus.Fields{
			"block":   id.Hex(),
			"creator": b.Creator.String(),
			"reason":  rej.Code.String(),
		}).Warn("block rejected")
		return rej
	}

	for _, p := range b.Parents {
		d.children[p] = append(d.children[p], id)
		delete(d.tips, p)
	}
	d.tips[id] = struct{}{}
	d.blocks[id] = b
	d.perCreator[b.Creator]++
	return nil
}

// validate runs every admission check without touching state.
func (d *RoundDAG) validate(b *inter.Block, id hash.Hash) *Rejection {
	if _, ok := d.blocks[id]; ok {
		return &Rejection{Code: RejectDuplicate, Detail: id.Hex()}
	}
	if b.Round != d.round {
		return &Rejection{Code: RejectWrongRound,
			Detail: fmt.Sprintf("block round %d, open round %d", b.Round, d.round)}
	}
	if !d.window.Contains(b.Timer) {
		return &Rejection{Code: RejectOutsideWindow,
			Detail: fmt.Sprintf("timer %d outside window", b.Timer.WallUS)}
	}
	if uint32(len(b.Parents)) > d.rules.MaxParents {
		return &Rejection{Code: RejectTooManyParents,
			Detail: fmt.Sprintf("%d parents, max %d", len(b.Parents), d.rules.MaxParents)}
	}
	if uint32(len(b.Txs)) > d.rules.MaxTxsPerBlock {
		return &Rejection{Code: RejectTooManyTxs,
			Detail: fmt.Sprintf("%d txs, max %d", len(b.Txs), d.rules.MaxTxsPerBlock)}
	}
	// Only the genesis round mints parentless blocks.
	if len(b.Parents) == 0 && (len(d.carried) > 0 || len(d.blocks) > 0) {
		return &Rejection{Code: RejectNoParents, Detail: "non-genesis block without parents"}
	}
	for _, p := range b.Parents {
		if _, ok := d.blocks[p]; ok {
			continue
		}
		if _, ok := d.carried[p]; ok {
			continue
		}
		return &Rejection{Code: RejectUnknownParent, Detail: p.Hex()}
	}
	if d.perCreator[b.Creator] >= d.rules.MaxBlocksPerValidator {
		return &Rejection{Code: RejectCreatorQuota,
			Detail: fmt.Sprintf("creator %s at quota %d", b.Creator, d.rules.MaxBlocksPerValidator)}
	}
	return nil
}

// Order fixes and returns the round's canonical block order: ascending
// (HashTimer, BlockID). It moves the DAG to Ordered; the result depends only
// on the admitted set. Carried-over blocks are parents, not members, and do
// not appear.
func (d *RoundDAG) Order() ([]*inter.Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.phase {
	case Admitting, Ordered:
	default:
		return nil, fmt.Errorf("dag: cannot order in phase %s", d.phase)
	}
	d.phase = Ordered

	ordered := make([]*inter.Block, 0, len(d.blocks))
	for _, b := range d.blocks {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return inter.Less(ordered[i], ordered[j])
	})
	return ordered, nil
}

// Close retires the DAG. Every later call fails with a phase error.
func (d *RoundDAG) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = Closed
}

// Tips returns the current tip IDs in bytewise order. The next round seeds
// its carry-over set from these.
func (d *RoundDAG) Tips() []hash.Hash {
	d.mu.Lock()
	defer d.mu.Unlock()

	tips := make([]hash.Hash, 0, len(d.tips))
	for id := range d.tips {
		tips = append(tips, id)
	}
	sort.Slice(tips, func(i, j int) bool {
		return bytes.Compare(tips[i].Bytes(), tips[j].Bytes()) < 0
	})
	return tips
}

// Stats reports admission counters for diagnostics.
type Stats struct {
	Phase     Phase
	Admitted  int
	Rejected  uint64
	Tips      int
	CarryOver int
}

// Stats snapshots the DAG counters.
func (d *RoundDAG) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Phase:     d.phase,
		Admitted:  len(d.blocks),
		Rejected:  d.rejections,
		Tips:      len(d.tips),
		CarryOver: len(d.carried),
	}
}

// WinningTxs resolves transaction conflicts over an ordered block list: the
// first block in the canonical order that carries a transaction wins it;
// later occurrences are duplicates. The ordering is the only arbiter.
func WinningTxs(ordered []*inter.Block) map[common.Hash]hash.Hash {
	winners := make(map[common.Hash]hash.Hash)
	for _, b := range ordered {
		id := b.ID()
		for _, tx := range b.Txs {
			if _, taken := winners[tx]; !taken {
				winners[tx] = id
			}
		}
	}
	return winners
}
