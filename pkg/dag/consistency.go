package dag

import (
	"errors"
	"fmt"
)

// ErrInconsistentProof reports a structural defect in a finished
// lower-bound graph.
var ErrInconsistentProof = errors.New("inconsistent proof graph")

// CheckProof verifies the structure of a completed adversary-win
// graph: every reachable non-leaf adversary vertex commits to exactly
// one item, every algorithm vertex covers every distinct legal
// placement, and each edge's endpoint carries the configuration its
// label implies.
func (d *Dag) CheckProof() error {
	if d.Root == nil {
		return fmt.Errorf("%w: no root", ErrInconsistentProof)
	}
	d.ClearVisited()
	return d.checkAdv(d.Root)
}

func (d *Dag) checkAdv(v *AdvVertex) error {
	if v.Visited {
		return nil
	}
	v.Visited = true

	if err := v.BC.Consistency(); err != nil {
		return fmt.Errorf("%w: adversary vertex %d: %v", ErrInconsistentProof, v.ID, err)
	}

	switch {
	case v.Task, v.Leaf == LeafBoundary, v.Leaf == LeafAssumption:
		// Boundary vertices carry their proof elsewhere.
		return nil
	case v.HeurStrategy != nil:
		// A heuristic vertex may stand without outedges; when edges
		// exist they must follow the strategy's single move.
		if len(v.Out) > 1 {
			return fmt.Errorf("%w: heuristic adversary vertex %d has %d outedges", ErrInconsistentProof, v.ID, len(v.Out))
		}
	default:
		if len(v.Out) != 1 {
			return fmt.Errorf("%w: adversary vertex %d has %d outedges, want exactly one",
				ErrInconsistentProof, v.ID, len(v.Out))
		}
	}

	for _, e := range v.Out {
		child := e.To
		if child.NextItem != e.Item {
			return fmt.Errorf("%w: edge %d->%d labelled %d but child expects %d",
				ErrInconsistentProof, v.ID, child.ID, e.Item, child.NextItem)
		}
		if !child.BC.Equal(v.BC) {
			return fmt.Errorf("%w: algorithm vertex %d configuration differs from its parent %d",
				ErrInconsistentProof, child.ID, v.ID)
		}
		if err := d.checkAlg(child); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dag) checkAlg(v *AlgVertex) error {
	if v.Visited {
		return nil
	}
	v.Visited = true

	p := v.BC.Tables().Params()

	// Distinct legal placements: loads are sorted, so equal loads in
	// sequence yield identical children and only the first counts.
	legal := make(map[int]bool)
	for i := 1; i <= p.Bins; i++ {
		if i > 1 && v.BC.Loads[i] == v.BC.Loads[i-1] {
			continue
		}
		if v.BC.Loads[i]+v.NextItem < p.R {
			legal[i] = true
		}
	}

	if len(legal) == 0 {
		if len(v.Out) != 0 {
			return fmt.Errorf("%w: algorithm vertex %d has no legal placement but %d outedges",
				ErrInconsistentProof, v.ID, len(v.Out))
		}
		return nil
	}

	covered := make(map[int]bool)
	for _, e := range v.Out {
		if !legal[e.TargetBin] {
			return fmt.Errorf("%w: algorithm vertex %d places item %d into illegal bin %d",
				ErrInconsistentProof, v.ID, v.NextItem, e.TargetBin)
		}
		if covered[e.TargetBin] {
			return fmt.Errorf("%w: algorithm vertex %d places into bin %d twice",
				ErrInconsistentProof, v.ID, e.TargetBin)
		}
		covered[e.TargetBin] = true

		expect := v.BC.Clone()
		expect.AssignAndRehash(v.NextItem, e.TargetBin)
		if !e.To.BC.Equal(expect) {
			return fmt.Errorf("%w: edge %d->%d [bin=%d] does not produce the child configuration",
				ErrInconsistentProof, v.ID, e.To.ID, e.TargetBin)
		}
	}
	if len(covered) != len(legal) {
		return fmt.Errorf("%w: algorithm vertex %d covers %d of %d legal placements",
			ErrInconsistentProof, v.ID, len(covered), len(legal))
	}

	for _, e := range v.Out {
		if err := d.checkAdv(e.To); err != nil {
			return err
		}
	}
	return nil
}
