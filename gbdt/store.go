package gbdt

import (
	"sync/atomic"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// Snapshot is an immutable, hash-verified model. Scorers hold a snapshot for
// the duration of a round so a concurrent swap cannot split one round's
// scores across two models.
type Snapshot struct {
	Model *Model
	Hash  hash.Hash
}

// Store holds the active model behind an atomic pointer. Swaps are rare
// (governance model upgrades); reads happen every round on the scoring hot
// path and take no lock. A store with no active model scores through the
// authority fallback.
type Store struct {
	active atomic.Pointer[Snapshot]
	log    *logrus.Entry
}

// NewStore returns an empty store, scoring via fallback until a model is
// activated.
func NewStore() *Store {
	return &Store{
		log: logrus.WithField("module", "gbdt"),
	}
}

// Activate verifies the model against the pinned hash and swaps it in. On
// ErrModelHashMismatch the previously active model stays in place.
func (s *Store) Activate(m *Model, pinned hash.Hash) error {
	if err := m.Validate(); err != nil {
		return err
	}
	h, err := ModelHash(m)
	if err != nil {
		return err
	}
	if pinned != (hash.Hash{}) && h != pinned {
		s.log.WithFields(logrus.Fields{
			"got":    common.Bytes2Hex(h.Bytes()),
			"pinned": common.Bytes2Hex(pinned.Bytes()),
		}).Error("refusing to activate model")
		return ErrModelHashMismatch
	}
	s.active.Store(&Snapshot{Model: m, Hash: h})
	s.log.WithFields(logrus.Fields{
		"hash":  common.Bytes2Hex(h.Bytes()),
		"trees": len(m.Trees),
	}).Info("model activated")
	return nil
}

// ActivateFile loads a model from disk, verifies it against its ".hash"
// sidecar and swaps it in.
func (s *Store) ActivateFile(path string) error {
	pinned, err := ReadSidecarHash(path)
	if err != nil {
		return err
	}
	m, _, err := LoadModel(path, pinned)
	if err != nil {
		return err
	}
	return s.Activate(m, pinned)
}

// Active returns the current snapshot, or nil when no model is active.
func (s *Store) Active() *Snapshot {
	return s.active.Load()
}

// Scores computes the full score map with whichever scorer is active. The
// snapshot is captured once, so every validator in the call is scored by the
// same model even if a swap lands mid-call.
func (s *Store) Scores(features map[inter.ValidatorID][]fixed.Fixed) map[inter.ValidatorID]fixed.Fixed {
	snap := s.active.Load()
	if snap == nil {
		return FallbackScores(features)
	}
	return ComputeScores(snap.Model, features)
}
