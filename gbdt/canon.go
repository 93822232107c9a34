package gbdt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

// CanonicalJSON encodes the model into its canonical form: object keys
// sorted lexicographically at every depth, no insignificant whitespace,
// integers rendered exactly. The model hash commits to these exact bytes, so
// this encoding must never change.
func CanonicalJSON(m *Model) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("gbdt: encode model: %w", err)
	}

	// Round-trip through an untyped value to sort keys. UseNumber keeps
	// int64 values exact instead of degrading them to float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("gbdt: canonicalize model: %w", err)
	}
	// encoding/json sorts map keys on output.
	return json.Marshal(v)
}

// ModelHash computes the model's content hash: BLAKE3 over the canonical
// JSON encoding.
func ModelHash(m *Model) (hash.Hash, error) {
	canon, err := CanonicalJSON(m)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Hash(blake3.Sum256(canon)), nil
}

// SaveModel writes the canonical encoding to path and the hex model hash to
// a ".hash" sidecar next to it.
func SaveModel(m *Model, path string) error {
	canon, err := CanonicalJSON(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, canon, 0o644); err != nil {
		return fmt.Errorf("gbdt: write model: %w", err)
	}
	h := hash.Hash(blake3.Sum256(canon))
	sidecar := common.Bytes2Hex(h.Bytes()) + "\n"
	if err := os.WriteFile(path+".hash", []byte(sidecar), 0o644); err != nil {
		return fmt.Errorf("gbdt: write model hash sidecar: %w", err)
	}
	return nil
}

// LoadModel reads and validates a model file. If pinned is non-zero the
// model's canonical hash must match it exactly; a mismatch returns
// ErrModelHashMismatch and the caller must treat the node as unable to score.
func LoadModel(path string, pinned hash.Hash) (*Model, hash.Hash, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, hash.Hash{}, fmt.Errorf("gbdt: read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, hash.Hash{}, fmt.Errorf("gbdt: decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, hash.Hash{}, err
	}
	h, err := ModelHash(&m)
	if err != nil {
		return nil, hash.Hash{}, err
	}
	if pinned != (hash.Hash{}) && h != pinned {
		return nil, h, fmt.Errorf("%w: got %s, pinned %s",
			ErrModelHashMismatch, common.Bytes2Hex(h.Bytes()), common.Bytes2Hex(pinned.Bytes()))
	}
	return &m, h, nil
}

// ReadSidecarHash parses the ".hash" sidecar written by SaveModel.
func ReadSidecarHash(modelPath string) (hash.Hash, error) {
	raw, err := os.ReadFile(modelPath + ".hash")
	if err != nil {
		return hash.Hash{}, fmt.Errorf("gbdt: read model hash sidecar: %w", err)
	}
	hex := strings.TrimSpace(string(raw))
	b := common.Hex2Bytes(hex)
	if len(b) != 32 {
		return hash.Hash{}, fmt.Errorf("gbdt: malformed hash sidecar %q", hex)
	}
	return hash.BytesToHash(b), nil
}
