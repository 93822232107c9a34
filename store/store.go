// Package store persists the consensus engine's durable state: blocks,
// round certificates, and validator telemetry. The Store interface is the
// engine-facing contract; LevelDB is the production implementation.
package store

import (
	"errors"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/dlc-foundation/go-dlc/inter"
)

// ErrNotFound means the requested record is not in the store.
var ErrNotFound = errors.New("store: not found")

// Store is the engine's persistence contract. Implementations must be safe
// for concurrent use; the round executor and the telemetry accumulator call
// it from separate goroutines.
type Store interface {
	// PutBlock persists a block under its content ID.
	PutBlock(b *inter.Block) error
	// GetBlock loads a block by ID, ErrNotFound if absent.
	GetBlock(id hash.Hash) (*inter.Block, error)

	// PutRoundCertificate persists a finalized round's certificate and
	// advances LatestRound if the certificate's round is newer.
	PutRoundCertificate(c *inter.RoundCertificate) error
	// GetRoundCertificate loads a round's certificate, ErrNotFound if the
	// round never finalized here.
	GetRoundCertificate(round inter.Round) (*inter.RoundCertificate, error)

	// LatestRound returns the highest finalized round, zero before any
	// certificate was stored. The value survives restarts.
	LatestRound() (inter.Round, error)

	// PutTelemetry persists a validator's telemetry record.
	PutTelemetry(t *inter.ValidatorTelemetry) error
	// GetTelemetry loads a validator's telemetry, ErrNotFound if the
	// validator was never seen.
	GetTelemetry(v inter.ValidatorID) (*inter.ValidatorTelemetry, error)

	Close() error
}
