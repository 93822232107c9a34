// Package integration assembles the engine's components into a runnable
// in-process network: bonding registry, scoring pipeline, round state
// machine, persistence and metrics wired together the way a node runs them.
// The launcher uses it for fakenet mode; the simulation tests drive it for
// thousands of rounds.
package integration

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/economy"
	"github.com/dlc-foundation/go-dlc/gbdt"
	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
	"github.com/dlc-foundation/go-dlc/inter/hashtime"
	"github.com/dlc-foundation/go-dlc/inter/validatorpk"
	"github.com/dlc-foundation/go-dlc/metrics"
	"github.com/dlc-foundation/go-dlc/round"
	"github.com/dlc-foundation/go-dlc/selection"
	"github.com/dlc-foundation/go-dlc/store"
)

// ValidatorConfig declares one in-process validator.
type ValidatorConfig struct {
	Key        validatorpk.PubKey
	StakeMicro uint64
}

// FakeValidators derives n deterministic validators for fakenet runs: key
// material is a BLAKE3 stream over the slot index, stake is the given amount
// for every slot.
func FakeValidators(n int, stakeMicro uint64) []ValidatorConfig {
	out := make([]ValidatorConfig, 0, n)
	for i := 0; i < n; i++ {
		var slot [8]byte
		binary.BigEndian.PutUint64(slot[:], uint64(i+1))
		raw := blake3.Sum256(append([]byte("dlc/fakenet/key"), slot[:]...))
		out = append(out, ValidatorConfig{
			Key:        validatorpk.PubKey{Type: validatorpk.Types.Ed25519, Raw: raw[:]},
			StakeMicro: stakeMicro,
		})
	}
	return out
}

// Config assembles a harness. DB and Metrics may be nil; an in-memory store
// and a fresh registry are used then.
type Config struct {
	Rules      dlc.Rules
	Validators []ValidatorConfig

	DB      store.Store
	Metrics *metrics.Metrics

	// FeePerBlockMicro is attached to every produced block, exercising the
	// fee cap and recycling paths.
	FeePerBlockMicro uint64

	// RoundTimeout bounds each simulated round in wall time. Zero means one
	// second, generous for in-process rounds.
	RoundTimeout time.Duration

	// Clock, when set, mints round windows and block timers from the node's
	// time window service instead of the synthetic schedule. Simulation
	// tests leave it nil so runs stay bit-reproducible.
	Clock *hashtime.Clock
}

// Harness is an in-process DLC network. All validators run in one process
// and behave honestly unless taken offline; the consensus artifacts they
// produce are the real ones (blocks, certificates, payouts, telemetry).
type Harness struct {
	rules dlc.Rules
	db    store.Store
	met   *metrics.Metrics

	models *gbdt.Store
	bonds  *selection.Registry
	feats  gbdt.FeatureConfig
	clock  *hashtime.Clock

	validators []inter.ValidatorID
	telemetry  map[inter.ValidatorID]*inter.ValidatorTelemetry
	offline    map[inter.ValidatorID]bool

	current   inter.Round
	prevCert  hash.Hash
	carryOver []hash.Hash
	prevTimer hashtime.HashTimer

	issued  uint64
	burned  uint64
	payouts map[inter.ValidatorID]uint64
	fees    uint64

	epochExpected uint64
	epochActual   uint64
	autoBurned    uint64

	feePerBlock  uint64
	roundTimeout time.Duration

	log *logrus.Entry
}

// GenesisHash is the seed anchor of round 1: the BLAKE3 digest of the RLP
// encoded network rules. Every node with the same rules derives the same
// first-round selection.
func GenesisHash(rules dlc.Rules) hash.Hash {
	buf, err := rlp.EncodeToBytes((*dlc.RulesRLP)(&rules))
	if err != nil {
		panic("rules are not RLP-encodable: " + err.Error())
	}
	return hash.Hash(blake3.Sum256(buf))
}

// NewHarness bonds every validator and prepares round 1.
func NewHarness(cfg Config) (*Harness, error) {
	if len(cfg.Validators) == 0 {
		return nil, fmt.Errorf("integration: no validators configured")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}

	db := cfg.DB
	if db == nil {
		db = store.NewMemStore()
	}
	met := cfg.Metrics
	if met == nil {
		met = metrics.New()
	}
	timeout := cfg.RoundTimeout
	if timeout == 0 {
		timeout = time.Second
	}

	h := &Harness{
		rules:        cfg.Rules,
		db:           db,
		met:          met,
		models:       gbdt.NewStore(),
		bonds:        selection.NewRegistry(cfg.Rules.Economy),
		feats:        gbdt.DefaultFeatureConfig(),
		clock:        cfg.Clock,
		telemetry:    make(map[inter.ValidatorID]*inter.ValidatorTelemetry),
		offline:      make(map[inter.ValidatorID]bool),
		prevCert:     GenesisHash(cfg.Rules),
		payouts:      make(map[inter.ValidatorID]uint64),
		feePerBlock:  cfg.FeePerBlockMicro,
		roundTimeout: timeout,
		log:          logrus.WithField("module", "integration"),
	}

	for _, v := range cfg.Validators {
		if err := v.Key.Validate(); err != nil {
			return nil, err
		}
		id := v.Key.ValidatorID()
		if err := h.bonds.Deposit(id, v.StakeMicro); err != nil {
			return nil, err
		}
		h.validators = append(h.validators, id)
		h.telemetry[id] = inter.NewValidatorTelemetry(id)
	}
	return h, nil
}

// Models exposes the scoring model store, so callers can activate a trained
// model; without one, scoring runs on the authority fallback.
func (h *Harness) Models() *gbdt.Store {
	return h.models
}

// Bonds exposes the bonding registry for stake operations and slashing.
func (h *Harness) Bonds() *selection.Registry {
	return h.bonds
}

// DB exposes the harness's store.
func (h *Harness) DB() store.Store {
	return h.db
}

// SetOffline toggles a validator's liveness. Offline validators produce no
// blocks and sign nothing; the network keeps running as long as quorum holds.
func (h *Harness) SetOffline(v inter.ValidatorID, off bool) {
	h.offline[v] = off
}

// Validators returns the configured validator IDs in configuration order.
func (h *Harness) Validators() []inter.ValidatorID {
	out := make([]inter.ValidatorID, len(h.validators))
	copy(out, h.validators)
	return out
}

// IssuedMicro returns total minted supply so far.
func (h *Harness) IssuedMicro() uint64 {
	return h.issued
}

// BurnedMicro returns total fees burned by recycling so far.
func (h *Harness) BurnedMicro() uint64 {
	return h.burned
}

// AutoBurnedMicro returns the scheduled emission that went unminted across
// completed epochs, per the epoch auto-burn bookkeeping.
func (h *Harness) AutoBurnedMicro() uint64 {
	return h.autoBurned
}

// CollectedFeesMicro returns total fees attached to finalized blocks.
func (h *Harness) CollectedFeesMicro() uint64 {
	return h.fees
}

// Payouts returns the accumulated per-validator rewards.
func (h *Harness) Payouts() map[inter.ValidatorID]uint64 {
	out := make(map[inter.ValidatorID]uint64, len(h.payouts))
	for v, p := range h.payouts {
		out[v] = p
	}
	return out
}

// Round returns the last completed round number.
func (h *Harness) Round() inter.Round {
	return h.current
}

// Slash burns the offence's stake fraction and folds the event into the
// validator's telemetry, so repeat offenders lose score and, past the rules'
// slash-count threshold, candidacy. The burned amount is returned.
func (h *Harness) Slash(v inter.ValidatorID, offence selection.Offence) (uint64, error) {
	burned, err := h.bonds.Slash(v, offence, h.current+1)
	if err != nil {
		return 0, err
	}
	if tel := h.telemetry[v]; tel != nil {
		tel.ApplySlash()
		if err := h.db.PutTelemetry(tel); err != nil {
			h.log.WithError(err).Error("telemetry not persisted")
		}
	}
	return burned, nil
}

// IngestPeerTime folds a peer-reported wall-clock sample into the node's
// clock. Samples the clock rejects as outliers are counted and the error is
// passed through; a clockless harness ignores peer time entirely.
func (h *Harness) IngestPeerTime(peerTimeUS uint64) error {
	if h.clock == nil {
		return nil
	}
	err := h.clock.Ingest(peerTimeUS)
	if errors.Is(err, hashtime.ErrSkewRejected) {
		h.met.SkewRejects.Inc()
	}
	return err
}

// candidates builds the scored candidate slice for a round: eligible bonds,
// telemetry projected into feature space, scores from the active model or
// the fallback.
func (h *Harness) candidates(r inter.Round) []selection.Candidate {
	bonds := h.bonds.Candidates(r)
	features := make(map[inter.ValidatorID][]fixed.Fixed, len(bonds))
	for _, b := range bonds {
		tel := h.telemetry[b.Validator]
		tel.StakeMicro = b.StakeMicro
		features[b.Validator] = gbdt.NormalizeFeatures(tel, h.feats)
	}
	scores := h.models.Scores(features)

	out := make([]selection.Candidate, 0, len(bonds))
	for _, b := range bonds {
		out = append(out, selection.Candidate{
			Validator:  b.Validator,
			Score:      scores[b.Validator],
			StakeMicro: b.StakeMicro,
		})
	}
	return out
}

// window derives the round's time slice. Without a clock it is purely
// arithmetic over the round number, so every simulated node agrees on it;
// with a clock the window opens at the clock's current reading.
func (h *Harness) window(r inter.Round) hashtime.Window {
	dur := uint64(h.rules.Rounds.WindowDuration)
	if h.clock != nil {
		var num [8]byte
		binary.BigEndian.PutUint64(num[:], uint64(r))
		start := h.clock.Now("round", num[:])
		return hashtime.Window{
			Round: uint64(r),
			Start: start,
			End:   hashtime.HashTimer{WallUS: start.WallUS + dur},
		}
	}
	base := uint64(r) * dur
	return hashtime.Window{
		Round: uint64(r),
		Start: hashtime.HashTimer{WallUS: base},
		End:   hashtime.HashTimer{WallUS: base + dur},
	}
}

// RunRound drives one full round: selection, block production by every
// online validator, sealing, verification, distribution, and telemetry
// accounting. An aborted round is a normal result; the error return is for
// engine-halting conditions only.
func (h *Harness) RunRound(ctx context.Context) (*round.Result, error) {
	next := h.current + 1
	h.bonds.OnRoundStart(next)

	window := h.window(next)
	r := round.New(round.Config{
		Round:       next,
		Window:      window,
		PrevHash:    h.prevCert,
		Candidates:  h.candidates(next),
		CarryOver:   h.carryOver,
		Rules:       h.rules,
		IssuedMicro: h.issued,
		Timeout:     h.roundTimeout,
		Metrics:     h.met,
	})

	resCh := make(chan *round.Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := r.Run(ctx)
		resCh <- res
		errCh <- err
	}()

	h.produceBlocks(r, window)
	r.Seal()
	h.approve(r)

	res := <-resCh
	if err := <-errCh; err != nil {
		return nil, err
	}

	h.current = next
	h.apply(res)
	return res, nil
}

// RunRounds drives n consecutive rounds, stopping early on context
// cancellation or an engine-halting error.
func (h *Harness) RunRounds(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := h.RunRound(ctx); err != nil {
			return err
		}
	}
	return nil
}

// produceBlocks submits one block per online validator. Blocks chain: the
// first anchors on the carry-over tips, each next one on its predecessor, so
// admission never sees an unknown parent.
func (h *Harness) produceBlocks(r *round.Round, window hashtime.Window) {
	if !h.waitState(r, round.BlockProduction) {
		return
	}

	parents := h.carryOver
	prev := h.prevTimer
	seq := uint64(0)
	for _, v := range h.validators {
		if h.offline[v] {
			continue
		}
		seq++
		wallUS := window.Start.WallUS + seq
		timer := hashtime.Derive("block", prev, wallUS, seq, v.Bytes())
		b := &inter.Block{
			Round:    inter.Round(window.Round),
			Creator:  v,
			Parents:  parents,
			Timer:    timer,
			FeeMicro: h.feePerBlock,
			Sig:      v.Bytes(),
		}
		if err := r.SubmitBlock(b); err != nil {
			h.log.WithError(err).WithField("creator", v.String()).Warn("block not submitted")
			continue
		}
		parents = []hash.Hash{b.ID()}
		prev = timer
	}
	h.prevTimer = prev
}

// approve signs the sealed certificate with every online drawn verifier.
func (h *Harness) approve(r *round.Round) {
	if !h.waitState(r, round.Verifying) {
		return
	}
	certHash := r.CertHash()
	for _, v := range r.Verifiers() {
		if h.offline[v] {
			continue
		}
		err := r.SubmitApproval(round.Approval{
			Verifier: v,
			CertHash: certHash,
			Sig:      v.Bytes(),
		})
		if err != nil && err != round.ErrRoundOver {
			h.log.WithError(err).Warn("approval not submitted")
		}
	}
}

// waitState polls until the round reaches the state or completes. In-process
// rounds pass through states in microseconds; the poll is a formality.
func (h *Harness) waitState(r *round.Round, want round.State) bool {
	deadline := time.Now().Add(h.roundTimeout)
	for time.Now().Before(deadline) {
		switch s := r.State(); {
		case s == want:
			return true
		case s == round.Aborted || s == round.Distributed:
			return false
		}
		time.Sleep(50 * time.Microsecond)
	}
	return false
}

// apply folds a round result into the harness state: telemetry, persistence,
// metrics, supply accounting, and the anchors of the next round.
func (h *Harness) apply(res *round.Result) {
	for _, p := range res.Participation {
		tel := h.telemetry[p.Validator]
		if tel == nil {
			continue
		}
		tel.ApplyRound(p)
		if err := h.db.PutTelemetry(tel); err != nil {
			h.log.WithError(err).Error("telemetry not persisted")
		}
	}

	h.carryOver = res.CarryOver
	h.epochExpected += economy.EmissionForRound(h.current, h.rules.Economy)

	if res.State != round.Distributed {
		h.met.AbortedRounds.Inc()
		h.tickEpoch()
		return
	}

	for _, b := range res.Ordered {
		if err := h.db.PutBlock(b); err != nil {
			h.log.WithError(err).Error("block not persisted")
		}
		h.fees += b.FeeMicro
	}
	if err := h.db.PutRoundCertificate(res.Certificate); err != nil {
		h.log.WithError(err).Error("certificate not persisted")
	}

	h.issued += res.EmissionMicro
	h.epochActual += res.EmissionMicro
	h.burned += res.Distribution.BurnedFeeMicro
	for v, p := range res.Distribution.Payouts {
		h.payouts[v] += p
	}
	h.prevCert = res.Certificate.Hash()

	h.met.FinalizedRounds.Inc()
	h.met.EmissionMicro.Add(float64(res.EmissionMicro))
	h.met.BurnedFeeMicro.Add(float64(res.Distribution.BurnedFeeMicro))
	h.met.IssuedSupplyMicro.Set(float64(h.issued))

	h.tickEpoch()
}

// tickEpoch reconciles scheduled against minted emission at each epoch
// boundary. Rounds that aborted leave their scheduled emission unminted; the
// difference is recorded as auto-burned and the epoch accumulators reset.
func (h *Harness) tickEpoch() {
	ep := h.rules.Rounds.EpochRounds
	if ep == 0 || uint64(h.current)%ep != 0 {
		return
	}
	if burn := economy.EpochAutoBurn(h.epochExpected, h.epochActual); burn != 0 {
		h.autoBurned += burn
		h.log.WithFields(logrus.Fields{
			"epoch": uint64(h.current) / ep,
			"burn":  burn,
		}).Info("epoch auto-burn")
	}
	h.epochExpected, h.epochActual = 0, 0
}
