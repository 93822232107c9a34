// Package round drives the lifecycle of a single consensus round: proposer
// and verifier selection, block admission into the round DAG, certificate
// signing, and reward distribution once the verifier quorum is reached.
//
// One goroutine owns the whole round. Candidate blocks and verifier approvals
// arrive on buffered channels; everything else is private state, so the
// machine needs no locks on its hot path. A round that runs out of time or is
// cancelled aborts without a certificate, and its admitted blocks carry over
// into the next round's DAG.
package round

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/sirupsen/logrus"

	"github.com/dlc-foundation/go-dlc/dag"
	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/economy"
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/hashtime"
	"github.com/dlc-foundation/go-dlc/metrics"
	"github.com/dlc-foundation/go-dlc/selection"
)

// State is the round lifecycle state.
type State int

const (
	// Collecting: the round started; candidate set is being prepared.
	Collecting State = iota
	// ProposerSelected: the deterministic proposer draw is done.
	ProposerSelected
	// BlockProduction: candidate blocks are admitted into the round DAG.
	BlockProduction
	// Verifying: the block set is sealed; verifier approvals accumulate.
	Verifying
	// Finalized: quorum reached, the certificate exists.
	Finalized
	// Distributed: rewards computed; the round is complete.
	Distributed
	// Aborted: the window expired or the round was cancelled before quorum.
	Aborted
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case ProposerSelected:
		return "proposer-selected"
	case BlockProduction:
		return "block-production"
	case Verifying:
		return "verifying"
	case Finalized:
		return "finalized"
	case Distributed:
		return "distributed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrRoundOver means a submission arrived after the round completed.
	ErrRoundOver = errors.New("round: already complete")
	// ErrBacklog means the submission channel is full. The sender should
	// treat the block or approval as dropped.
	ErrBacklog = errors.New("round: submission backlog full")
)

// Approval is one verifier's signed approval of the sealed block set.
type Approval struct {
	Verifier inter.ValidatorID
	// CertHash must equal the hash of the round's draft certificate;
	// approvals for any other hash are discarded.
	CertHash hash.Hash
	Sig      []byte
}

// Config assembles everything a round needs before it starts. The caller
// (the node's round executor) fills it from the previous round's result.
type Config struct {
	Round  inter.Round
	Window hashtime.Window

	// PrevHash is the previous round's certificate hash (or the genesis
	// hash for round 1); it seeds the selection draws.
	PrevHash hash.Hash

	// Candidates is the eligible validator set with scores and stakes,
	// as produced by the bonding registry and the scoring pipeline.
	Candidates []selection.Candidate

	// CarryOver lists block IDs from earlier rounds usable as parents.
	CarryOver []hash.Hash

	Rules dlc.Rules

	// IssuedMicro is the supply minted so far; emission is checked against
	// the hard cap before distribution.
	IssuedMicro uint64

	// Timeout bounds the round in wall time. Zero means the rules' window
	// duration.
	Timeout time.Duration

	// Metrics receives admission reject counts; nil disables reporting.
	Metrics *metrics.Metrics
}

// Result is the round's outcome. Certificate is non-nil only when the round
// reached Distributed; on abort, Pending and CarryOver let the next round
// resume from the admitted blocks.
type Result struct {
	State       State
	Certificate *inter.RoundCertificate

	// Ordered is the canonical block order of the admitted set. Filled on
	// both finalization and abort (aborted blocks re-enter the next round).
	Ordered []*inter.Block

	// CarryOver is the DAG tip set, the parent anchors for the next round.
	CarryOver []hash.Hash

	// Participation per roster member, for the telemetry accumulator.
	Participation []inter.Participation

	// Distribution is the round's payout accounting; zero-valued on abort.
	Distribution economy.Distribution

	// EmissionMicro is the amount minted this round; zero on abort.
	EmissionMicro uint64
}

// Round is the state machine for one consensus round. Construct with New,
// drive with Run, feed with SubmitBlock / Seal / SubmitApproval.
type Round struct {
	cfg    Config
	dag    *dag.RoundDAG
	roster *selection.Roster
	seed   selection.Seed

	mu    sync.Mutex
	state State

	blocksCh    chan *inter.Block
	approvalsCh chan Approval
	sealCh      chan struct{}
	done        chan struct{}

	proposer  inter.ValidatorID
	verifiers []inter.ValidatorID
	isDrawn   map[inter.ValidatorID]bool

	draft     *inter.RoundCertificate
	draftHash hash.Hash
	ordered   []*inter.Block

	sigs      map[inter.ValidatorID][]byte
	latencyUS map[inter.ValidatorID]uint64
	approved  uint64 // accumulated approval weight
	quorum    uint64

	started time.Time

	log *logrus.Entry
}

// New builds the round machine. The DAG opens with the carry-over tips; no
// admission happens until Run.
func New(cfg Config) *Round {
	return &Round{
		cfg:         cfg,
		dag:         dag.NewRoundDAG(cfg.Round, cfg.Window, cfg.Rules.Dag, cfg.CarryOver),
		roster:      selection.NewRoster(cfg.Candidates),
		seed:        selection.DeriveSeed(cfg.Round, cfg.PrevHash),
		state:       Collecting,
		blocksCh:    make(chan *inter.Block, 256),
		approvalsCh: make(chan Approval, 64),
		sealCh:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		isDrawn:     make(map[inter.ValidatorID]bool),
		sigs:        make(map[inter.ValidatorID][]byte),
		latencyUS:   make(map[inter.ValidatorID]uint64),
		log: logrus.WithFields(logrus.Fields{
			"module": "round",
			"round":  uint64(cfg.Round),
		}),
	}
}

// State returns the current lifecycle state.
func (r *Round) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Round) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.log.WithField("state", s.String()).Info("round state")
}

// Proposer returns the selected proposer. Valid once the state passed
// ProposerSelected.
func (r *Round) Proposer() inter.ValidatorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proposer
}

// Verifiers returns the drawn verifier set in ValidatorID order. Valid once
// the state passed ProposerSelected.
func (r *Round) Verifiers() []inter.ValidatorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inter.ValidatorID, len(r.verifiers))
	copy(out, r.verifiers)
	return out
}

// CertHash returns the draft certificate hash verifiers must sign. Valid
// once the state is Verifying.
func (r *Round) CertHash() hash.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draftHash
}

// SubmitBlock hands a candidate block to the round. It never blocks; a full
// backlog or a completed round is the sender's problem to retry or drop.
func (r *Round) SubmitBlock(b *inter.Block) error {
	select {
	case <-r.done:
		return ErrRoundOver
	default:
	}
	select {
	case r.blocksCh <- b:
		return nil
	case <-r.done:
		return ErrRoundOver
	default:
		return ErrBacklog
	}
}

// Seal closes block production: the DAG is ordered and the draft certificate
// goes out for verification. Idempotent.
func (r *Round) Seal() {
	select {
	case r.sealCh <- struct{}{}:
	default:
	}
}

// SubmitApproval hands a verifier approval to the round. Approvals arriving
// before the seal are buffered and examined once Verifying begins.
func (r *Round) SubmitApproval(a Approval) error {
	select {
	case <-r.done:
		return ErrRoundOver
	default:
	}
	select {
	case r.approvalsCh <- a:
		return nil
	case <-r.done:
		return ErrRoundOver
	default:
		return ErrBacklog
	}
}

// Run drives the round to completion and returns its result. It is the only
// goroutine touching round state. A cancelled context or an expired timeout
// aborts the round; that is a normal outcome, not an error. The only error
// is the emission hard cap, which must halt the engine.
func (r *Round) Run(ctx context.Context) (*Result, error) {
	defer close(r.done)
	r.started = time.Now()

	timeout := r.cfg.Timeout
	if timeout == 0 {
		timeout = time.Duration(r.cfg.Rules.Rounds.WindowDuration) * time.Microsecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if err := r.dag.StartAdmission(); err != nil {
		return nil, err
	}

	if !r.selectRoles() {
		return r.abort("no eligible candidates"), nil
	}
	r.setState(BlockProduction)

	// Channel gating: a nil channel never fires, so each state enables only
	// the inputs it consumes.
	for {
		var (
			blocks    chan *inter.Block
			approvals chan Approval
			seal      chan struct{}
		)
		switch r.State() {
		case BlockProduction:
			blocks = r.blocksCh
			seal = r.sealCh
		case Verifying:
			approvals = r.approvalsCh
		}

		select {
		case <-ctx.Done():
			return r.abort("cancelled"), nil

		case <-deadline.C:
			return r.abort("window expired without quorum"), nil

		case b := <-blocks:
			if err := r.dag.Admit(b); err != nil {
				var rej *dag.Rejection
				if !errors.As(err, &rej) {
					return nil, err
				}
				if r.cfg.Metrics != nil {
					r.cfg.Metrics.BlockRejects.WithLabelValues(rej.Code.String()).Inc()
				}
				continue
			}
			r.markOnline(b.Creator)

		case <-seal:
			if err := r.seal(); err != nil {
				return nil, err
			}

		case a := <-approvals:
			finalized, err := r.applyApproval(a)
			if err != nil {
				return nil, err
			}
			if finalized {
				return r.finalize()
			}
		}
	}
}

// selectRoles runs the deterministic proposer and verifier draws. False
// means the candidate set cannot carry a round.
func (r *Round) selectRoles() bool {
	proposer, err := selection.SelectProposer(r.seed, r.cfg.Candidates)
	if err != nil {
		r.log.WithError(err).Warn("proposer draw failed")
		return false
	}
	r.mu.Lock()
	r.proposer = proposer
	r.mu.Unlock()
	r.setState(ProposerSelected)

	verifiers, err := selection.SelectVerifiers(r.seed, r.cfg.Candidates, proposer, r.cfg.Rules.Rounds.Verifiers)
	if err != nil {
		r.log.WithError(err).Warn("verifier draw failed")
		return false
	}
	sort.Slice(verifiers, func(i, j int) bool {
		return verifiers[i].Compare(verifiers[j]) < 0
	})
	r.mu.Lock()
	r.verifiers = verifiers
	for _, v := range verifiers {
		r.isDrawn[v] = true
	}
	r.quorum = r.cfg.Rules.Rounds.QuorumWeight(uint64(r.roster.TotalWeightOf(verifiers)))
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"proposer":  proposer.String(),
		"verifiers": len(verifiers),
		"quorum":    r.quorum,
	}).Info("roles selected")
	return true
}

// seal fixes the block order and publishes the draft certificate.
func (r *Round) seal() error {
	ordered, err := r.dag.Order()
	if err != nil {
		return err
	}

	blockIDs := make([]hash.Hash, len(ordered))
	for i, b := range ordered {
		blockIDs[i] = b.ID()
	}
	draft := &inter.RoundCertificate{
		Round:       r.cfg.Round,
		WindowStart: r.cfg.Window.Start,
		WindowEnd:   r.cfg.Window.End,
		Proposer:    r.proposer,
		Verifiers:   r.verifiers,
		Blocks:      blockIDs,
	}

	r.mu.Lock()
	r.ordered = ordered
	r.draft = draft
	r.draftHash = draft.Hash()
	r.mu.Unlock()

	r.setState(Verifying)
	r.log.WithFields(logrus.Fields{
		"blocks": len(ordered),
		"cert":   r.draftHash.Hex(),
	}).Info("round sealed")
	return nil
}

// applyApproval folds in one verifier approval and reports whether quorum
// was reached. Approvals from outside the drawn set, duplicates, and wrong
// hashes are dropped with a warning.
func (r *Round) applyApproval(a Approval) (bool, error) {
	log := r.log.WithField("verifier", a.Verifier.String())
	if !r.isDrawn[a.Verifier] {
		log.Warn("approval from undrawn validator")
		return false, nil
	}
	if _, dup := r.sigs[a.Verifier]; dup {
		log.Warn("duplicate approval")
		return false, nil
	}
	if a.CertHash != r.draftHash {
		log.WithField("got", a.CertHash.Hex()).Warn("approval for wrong certificate")
		return false, nil
	}

	r.sigs[a.Verifier] = a.Sig
	r.latencyUS[a.Verifier] = uint64(time.Since(r.started) / time.Microsecond)
	r.approved += uint64(r.roster.WeightOf(a.Verifier))
	log.WithFields(logrus.Fields{
		"approved": r.approved,
		"quorum":   r.quorum,
	}).Debug("approval accepted")
	return r.approved >= r.quorum, nil
}

// finalize assembles the certificate and runs distribution.
func (r *Round) finalize() (*Result, error) {
	r.setState(Finalized)

	cert := r.draft
	cert.Sigs = make([][]byte, len(cert.Verifiers))
	for i, v := range cert.Verifiers {
		cert.Sigs[i] = r.sigs[v]
	}

	emission, err := economy.EmissionForRoundCapped(r.cfg.Round, r.cfg.IssuedMicro, r.cfg.Rules.Economy)
	if err != nil {
		r.log.WithError(err).Error("emission refused, halting issuance")
		return nil, err
	}

	var fees uint64
	proposerBlocks := make(map[inter.ValidatorID]uint64)
	verifierBlocks := make(map[inter.ValidatorID]uint64)
	for _, b := range r.ordered {
		fees += b.FeeMicro
	}
	proposerBlocks[r.proposer] = 1
	for v := range r.sigs {
		verifierBlocks[v] = 1
	}
	dist := economy.DistributeRound(emission, fees, proposerBlocks, verifierBlocks, r.cfg.Rules.Economy)

	r.setState(Distributed)
	r.log.WithFields(logrus.Fields{
		"blocks":   len(r.ordered),
		"emission": emission,
		"fees":     fees,
		"paid":     dist.TotalPaid(),
	}).Info("round distributed")

	return &Result{
		State:         Distributed,
		Certificate:   cert,
		Ordered:       r.ordered,
		CarryOver:     r.dag.Tips(),
		Participation: r.participation(),
		Distribution:  dist,
		EmissionMicro: emission,
	}, nil
}

// abort ends the round without a certificate. The admitted blocks are still
// ordered and carried over so the next round can resume from them.
func (r *Round) abort(reason string) *Result {
	r.setState(Aborted)
	r.log.WithField("reason", reason).Warn("round aborted")

	ordered := r.ordered
	if ordered == nil {
		// Never sealed; order whatever was admitted.
		ordered, _ = r.dag.Order()
	}
	return &Result{
		State:         Aborted,
		Ordered:       ordered,
		CarryOver:     r.dag.Tips(),
		Participation: r.participation(),
	}
}

func (r *Round) markOnline(v inter.ValidatorID) {
	if _, ok := r.latencyUS[v]; !ok {
		r.latencyUS[v] = uint64(time.Since(r.started) / time.Microsecond)
	}
}

// participation builds the per-validator activity records the telemetry
// accumulator consumes.
func (r *Round) participation() []inter.Participation {
	proposed := make(map[inter.ValidatorID]uint32)
	for _, b := range r.ordered {
		proposed[b.Creator]++
	}

	out := make([]inter.Participation, 0, r.roster.Len())
	for _, c := range r.roster.Members {
		latency, online := r.latencyUS[c.Validator]
		p := inter.Participation{
			Validator: c.Validator,
			Proposed:  proposed[c.Validator],
			Online:    online,
			LatencyUS: latency,
		}
		if _, signed := r.sigs[c.Validator]; signed {
			p.Verified = uint32(len(r.ordered))
		}
		out = append(out, p)
	}
	return out
}
