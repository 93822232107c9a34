package gbdt

import (
	"runtime"
	"sync"

	"github.com/dlc-foundation/go-dlc/inter"
	"github.com/dlc-foundation/go-dlc/inter/fixed"
)

// evalTree walks one tree to a leaf. Out-of-range feature indexes and
// malformed structures evaluate to zero rather than panicking, matching
// Validate's guarantees defensively at the boundary.
func evalTree(tree *Tree, features []fixed.Fixed) fixed.Fixed {
	idx := 0
	for steps := 0; steps <= len(tree.Nodes); steps++ {
		if idx < 0 || idx >= len(tree.Nodes) {
			return fixed.Zero
		}
		n := &tree.Nodes[idx]
		if n.IsLeaf() {
			if n.Leaf == nil {
				return fixed.Zero
			}
			return *n.Leaf
		}
		if int(n.FeatureIdx) >= len(features) {
			return fixed.Zero
		}
		// Ties take the left branch.
		if features[n.FeatureIdx].Cmp(n.Threshold) <= 0 {
			idx = int(n.Left)
		} else {
			idx = int(n.Right)
		}
	}
	// Cycle in the node graph.
	return fixed.Zero
}

// Score runs deterministic inference over one feature vector. Each tree's
// leaf is weighted by the tree weight (the multiplication divides by the
// fixed-point scale), the bias is added, and the sum is clamped into
// [0, MaxScore]. Saturating arithmetic keeps hostile models from wrapping.
func (m *Model) Score(features []fixed.Fixed) fixed.Fixed {
	sum := m.Bias
	for i := range m.Trees {
		leaf := evalTree(&m.Trees[i], features)
		sum = sum.SatAdd(leaf.SatMul(m.Trees[i].Weight))
	}
	return sum.Clamp(fixed.Zero, MaxScore)
}

// ComputeScores scores every validator in the set. Scoring is read-only over
// the model, so validators are fanned out across a worker pool; the result
// map is identical regardless of scheduling.
func ComputeScores(m *Model, features map[inter.ValidatorID][]fixed.Fixed) map[inter.ValidatorID]fixed.Fixed {
	type job struct {
		id       inter.ValidatorID
		features []fixed.Fixed
	}
	jobs := make(chan job, len(features))
	for id, f := range features {
		jobs <- job{id: id, features: f}
	}
	close(jobs)

	var (
		mu     sync.Mutex
		scores = make(map[inter.ValidatorID]fixed.Fixed, len(features))
		wg     sync.WaitGroup
	)
	workers := runtime.NumCPU()
	if workers > len(features) {
		workers = len(features)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				s := m.Score(j.features)
				mu.Lock()
				scores[j.id] = s
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return scores
}
