// Package hashtime implements the HashTimer primitive and the per-node time
// window service that feeds it.
//
// A HashTimer is a hybrid timestamp: a wall-clock microsecond reading paired
// with a BLAKE3 hash chain and a node-local sequence number. The hash chain
// makes the timestamp content-addressed (it commits to the payload it was
// minted for and to the previous timer), while the (WallUS, HashChain, Seq)
// triple gives every event a strict total order that all nodes agree on.
package hashtime

import (
	"bytes"
	"encoding/binary"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/zeebo/blake3"
)

// HashTimer is a moment in consensus time. It is immutable once minted and
// is compared lexicographically on (WallUS, HashChain, Seq).
type HashTimer struct {
	// WallUS is the clamped wall-clock reading in microseconds. The Clock
	// guarantees it never decreases per node and never exceeds the peer
	// median plus the configured skew bound.
	WallUS uint64
	// HashChain commits to the previous timer and the payload this timer
	// was minted for.
	HashChain hash.Hash
	// Seq is the node-local emission counter, the final tie-break.
	Seq uint64
}

// Compare returns -1, 0 or +1 under the canonical (WallUS, HashChain, Seq)
// lexicographic order.
func (t HashTimer) Compare(other HashTimer) int {
	switch {
	case t.WallUS < other.WallUS:
		return -1
	case t.WallUS > other.WallUS:
		return 1
	}
	if c := bytes.Compare(t.HashChain.Bytes(), other.HashChain.Bytes()); c != 0 {
		return c
	}
	switch {
	case t.Seq < other.Seq:
		return -1
	case t.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// Less reports whether t orders strictly before other.
func (t HashTimer) Less(other HashTimer) bool {
	return t.Compare(other) < 0
}

// Bytes returns the canonical encoding: 8-byte big-endian WallUS, the
// 32-byte hash chain, 8-byte big-endian Seq. This encoding feeds hash
// derivations and must never change.
func (t HashTimer) Bytes() []byte {
	b := make([]byte, 0, 48)
	b = binary.BigEndian.AppendUint64(b, t.WallUS)
	b = append(b, t.HashChain.Bytes()...)
	b = binary.BigEndian.AppendUint64(b, t.Seq)
	return b
}

// Derive mints the successor of prev for the given payload. The context
// string isolates derivation domains ("block", "round", ...) so identical
// payloads in different domains can never collide.
func Derive(context string, prev HashTimer, wallUS uint64, seq uint64, payload ...[]byte) HashTimer {
	h := blake3.New()
	_, _ = h.Write([]byte(context))
	_, _ = h.Write(prev.HashChain.Bytes())
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], wallUS)
	_, _ = h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], seq)
	_, _ = h.Write(num[:])
	for _, p := range payload {
		_, _ = h.Write(p)
	}
	var chain [32]byte
	copy(chain[:], h.Sum(nil))
	return HashTimer{
		WallUS:    wallUS,
		HashChain: hash.Hash(chain),
		Seq:       seq,
	}
}

// Window is the time slice a round accepts blocks in. It is created at round
// start and immutable once the round closes.
type Window struct {
	Round uint64
	Start HashTimer
	End   HashTimer
}

// Contains reports whether t falls inside the window (inclusive bounds).
func (w Window) Contains(t HashTimer) bool {
	return w.Start.Compare(t) <= 0 && t.Compare(w.End) <= 0
}
