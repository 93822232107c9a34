package inter

import (
	"bytes"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/zeebo/blake3"

	"github.com/dlc-foundation/go-dlc/inter/hashtime"
)

// Block is a unit of the round DAG. A validator mints a block inside a round
// window, linking it to the DAG tips it observed as parents. Blocks become
// final only when the round that admitted them reaches a certificate.
//
// The structure is RLP-encoded both for persistence and for hashing, so field
// order and types are consensus-critical.
type Block struct {
	// Round the block was minted for. Admission rejects a block whose round
	// does not match the open round.
	Round Round

	// Creator is the minting validator's identity.
	Creator ValidatorID

	// Parents are the IDs of the DAG tips the creator observed. Genesis-round
	// blocks have no parents; every later block has at least one.
	Parents []hash.Hash

	// Timer is the HashTimer minted for this block. It fixes the block's
	// position in the total order and must fall inside the round window.
	Timer hashtime.HashTimer

	// Txs references the transactions carried by the block. Payloads are
	// stored separately; consensus only orders the references.
	Txs []common.Hash

	// FeeMicro is the total fee attached to the block's transactions, in
	// micro units. It feeds the round's distributable pool.
	FeeMicro uint64

	// Sig is the creator's signature over the block ID.
	Sig []byte
}

// unsignedBlock is the portion of the block covered by the creator's
// signature.
type unsignedBlock struct {
	Round    Round
	Creator  ValidatorID
	Parents  []hash.Hash
	Timer    hashtime.HashTimer
	Txs      []common.Hash
	FeeMicro uint64
}

// ID returns the block's content hash: BLAKE3 over the RLP encoding of every
// field except the signature. It is stable across re-serialization.
func (b *Block) ID() hash.Hash {
	buf, err := rlp.EncodeToBytes(&unsignedBlock{
		Round:    b.Round,
		Creator:  b.Creator,
		Parents:  b.Parents,
		Timer:    b.Timer,
		Txs:      b.Txs,
		FeeMicro: b.FeeMicro,
	})
	if err != nil {
		panic("block is not RLP-encodable: " + err.Error())
	}
	return hash.Hash(blake3.Sum256(buf))
}

// Less reports whether a orders strictly before b under the canonical
// (Timer, ID) order used by DAG ordering and conflict resolution.
func Less(a, b *Block) bool {
	if c := a.Timer.Compare(b.Timer); c != 0 {
		return c < 0
	}
	aID, bID := a.ID(), b.ID()
	return bytes.Compare(aID.Bytes(), bID.Bytes()) < 0
}
