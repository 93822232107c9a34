// Package inter defines the core consensus data structures shared between the
// DAG ordering engine, the round state machine, validator selection and the
// economy. Everything here is deterministic and RLP-encodable where persisted:
// two nodes serializing the same logical value must produce identical bytes,
// because those bytes feed consensus hashes.
package inter

import (
	"bytes"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

// Timestamp is a consensus wall-clock reading in microseconds since the Unix
// epoch. Consensus never reads the OS clock directly; timestamps originate
// from the hashtime clock service.
type Timestamp uint64

// Time converts the timestamp to a standard library time for display only.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t)/1e6, (int64(t)%1e6)*1000)
}

// Round numbers consensus rounds from genesis. Round 0 is genesis itself and
// never emits rewards.
type Round uint64

// Epoch groups a fixed run of rounds for reward bookkeeping and auto-burn
// accounting.
type Epoch uint64

// ValidatorID is the 32-byte validator identity, derived from the validator's
// public key. It is the sole consensus-visible identity: ordering tie-breaks,
// selection draws and telemetry records all key on it.
type ValidatorID [32]byte

// BytesToValidatorID converts bytes to a ValidatorID, zero-padding or
// truncating on the left the way hash conversions do.
func BytesToValidatorID(b []byte) ValidatorID {
	var id ValidatorID
	if len(b) > len(id) {
		b = b[len(b)-32:]
	}
	copy(id[32-len(b):], b)
	return id
}

// PubkeyToValidatorID derives the consensus identity from raw public key
// bytes. The derivation is a plain BLAKE3 digest, so identities are uniform
// regardless of the key scheme.
func PubkeyToValidatorID(pubkey []byte) ValidatorID {
	return ValidatorID(blake3.Sum256(pubkey))
}

// Bytes returns the identity as a value-copied slice.
func (v ValidatorID) Bytes() []byte {
	return v[:]
}

// Hex returns the full hex form with 0x prefix.
func (v ValidatorID) Hex() string {
	return "0x" + common.Bytes2Hex(v[:])
}

// String returns an abbreviated hex form for logs.
func (v ValidatorID) String() string {
	return "0x" + common.Bytes2Hex(v[:4]) + "…"
}

// IsZero reports whether the identity is unset.
func (v ValidatorID) IsZero() bool {
	return v == ValidatorID{}
}

// Compare orders identities bytewise. This order is the canonical tie-break
// everywhere scores or timers collide.
func (v ValidatorID) Compare(other ValidatorID) int {
	return bytes.Compare(v[:], other[:])
}
