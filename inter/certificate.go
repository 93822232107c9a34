package inter

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/zeebo/blake3"

	"github.com/dlc-foundation/go-dlc/inter/hashtime"
)

// RoundCertificate is the finality artifact of a round. It is emitted exactly
// once, when the verifier quorum is reached, and fixes the ordered block set
// that later rounds and the economy build on. A round that aborts emits no
// certificate.
type RoundCertificate struct {
	// Round the certificate finalizes.
	Round Round

	// WindowStart and WindowEnd bound the time slice the round accepted
	// blocks in.
	WindowStart hashtime.HashTimer
	WindowEnd   hashtime.HashTimer

	// Proposer is the validator selected to lead the round.
	Proposer ValidatorID

	// Verifiers is the verifier set drawn for the round, in ValidatorID
	// order.
	Verifiers []ValidatorID

	// Blocks is the round's block set in the canonical (Timer, ID) order
	// produced by DAG ordering.
	Blocks []hash.Hash

	// Sigs holds the verifier signatures over the certificate hash, aligned
	// with Verifiers. A verifier that never approved leaves a nil slot; the
	// non-nil slots carry at least quorum weight.
	Sigs [][]byte
}

// unsignedCertificate is the portion covered by verifier signatures.
type unsignedCertificate struct {
	Round       Round
	WindowStart hashtime.HashTimer
	WindowEnd   hashtime.HashTimer
	Proposer    ValidatorID
	Verifiers   []ValidatorID
	Blocks      []hash.Hash
}

// Hash returns the certificate's content hash: BLAKE3 over the RLP encoding
// of every field except the signatures. Verifiers sign this hash.
func (c *RoundCertificate) Hash() hash.Hash {
	buf, err := rlp.EncodeToBytes(&unsignedCertificate{
		Round:       c.Round,
		WindowStart: c.WindowStart,
		WindowEnd:   c.WindowEnd,
		Proposer:    c.Proposer,
		Verifiers:   c.Verifiers,
		Blocks:      c.Blocks,
	})
	if err != nil {
		panic("certificate is not RLP-encodable: " + err.Error())
	}
	return hash.Hash(blake3.Sum256(buf))
}
