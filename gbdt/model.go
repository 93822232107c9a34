// Package gbdt implements the deterministic gradient-boosted decision tree
// used for validator scoring.
//
// Everything here is integer-only fixed-point arithmetic: the same model and
// the same features produce bit-identical scores on every platform. Models
// are content-addressed by a BLAKE3 hash over their canonical JSON encoding,
// so a node can prove which model produced a score.
package gbdt

import (
	"errors"
	"fmt"

	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// Errors returned by model loading and verification.
var (
	// ErrModelHashMismatch means a loaded model does not match the pinned
	// hash. This is fatal: a node must not score with an unverified model.
	ErrModelHashMismatch = errors.New("gbdt: model hash mismatch")
)

// MaxScore bounds the score domain: every score lands in [0, MaxScore].
var MaxScore = fixed.FromInt(10_000)

// modelVersion is the only supported model format version.
const modelVersion = 1

// Node is one decision tree node. Internal nodes split on
// features[FeatureIdx] <= Threshold (ties take the left branch); leaf nodes
// carry the prediction in Leaf and use -1 sentinels elsewhere.
type Node struct {
	ID         int32        `json:"id"`
	Left       int32        `json:"left"`
	Right      int32        `json:"right"`
	FeatureIdx int32        `json:"feature_idx"`
	Threshold  fixed.Fixed  `json:"threshold"`
	Leaf       *fixed.Fixed `json:"leaf"`
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.FeatureIdx < 0 || n.Leaf != nil
}

// InternalNode builds a split node.
func InternalNode(id, featureIdx int32, threshold fixed.Fixed, left, right int32) Node {
	return Node{ID: id, Left: left, Right: right, FeatureIdx: featureIdx, Threshold: threshold}
}

// LeafNode builds a leaf carrying the given prediction.
func LeafNode(id int32, value fixed.Fixed) Node {
	v := value
	return Node{ID: id, Left: -1, Right: -1, FeatureIdx: -1, Leaf: &v}
}

// Tree is a single decision tree. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
	// Weight scales the tree's leaf contribution in the ensemble sum.
	Weight fixed.Fixed `json:"weight"`
}

// Model is a complete scoring model. The JSON field names are part of the
// wire format: the canonical encoding of these exact keys is what the model
// hash commits to.
type Model struct {
	Version   int32       `json:"version"`
	Scale     int64       `json:"scale"`
	Trees     []Tree      `json:"trees"`
	Bias      fixed.Fixed `json:"bias"`
	PostScale int64       `json:"post_scale"`
}

// NewModel builds a model over the given trees with the default scales.
func NewModel(trees []Tree, bias fixed.Fixed) *Model {
	return &Model{
		Version:   modelVersion,
		Scale:     fixed.Scale,
		Trees:     trees,
		Bias:      bias,
		PostScale: fixed.Scale,
	}
}

// Validate checks structural sanity: supported version, positive scales, and
// per-tree child indexes in range. A model that fails validation must never
// be scored with.
func (m *Model) Validate() error {
	if m.Version != modelVersion {
		return fmt.Errorf("gbdt: unsupported model version %d", m.Version)
	}
	if m.Scale <= 0 {
		return fmt.Errorf("gbdt: invalid scale %d", m.Scale)
	}
	if m.PostScale <= 0 {
		return fmt.Errorf("gbdt: invalid post_scale %d", m.PostScale)
	}
	for i, tree := range m.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("gbdt: tree %d is empty", i)
		}
		for j, n := range tree.Nodes {
			if n.IsLeaf() {
				if n.Leaf == nil {
					return fmt.Errorf("gbdt: tree %d node %d: leaf without value", i, j)
				}
				continue
			}
			if int(n.Left) >= len(tree.Nodes) || int(n.Right) >= len(tree.Nodes) ||
				n.Left < 0 || n.Right < 0 {
				return fmt.Errorf("gbdt: tree %d node %d: child index out of range", i, j)
			}
		}
	}
	return nil
}
