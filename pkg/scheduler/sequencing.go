package scheduler

import (
	"fmt"

	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
)

// BuildSaplings plays a forced initial item sequence from the root
// before the parallel search begins: the adversary's moves are fixed,
// the algorithm's replies branch. Every leaf of the resulting prefix
// tree becomes a sapling for the scheduler to process; the prefix
// vertices are marked fixed so later passes leave them alone.
//
// A branch where some forced item cannot be placed at all is already an
// adversary win and produces no sapling. A sequence infeasible for the
// offline optimum is a user error.
func BuildSaplings(d *dag.Dag, root *dag.AdvVertex, seq []int) ([]*dag.AdvVertex, error) {
	if len(seq) == 0 {
		root.Sapling = true
		return []*dag.AdvVertex{root}, nil
	}

	sc := dynprog.NewScratch(1)
	var leaves []*dag.AdvVertex

	var expand func(v *dag.AdvVertex, depth int) error
	expand = func(v *dag.AdvVertex, depth int) error {
		if depth == len(seq) {
			// Different placement orders can merge into one leaf.
			if !v.Sapling {
				v.Sapling = true
				leaves = append(leaves, v)
			}
			return nil
		}
		if v.State == dag.StateFixed {
			return nil
		}
		item := seq[depth]
		p := v.BC.Tables().Params()

		v.BC.AddItemVirtual(item, 1)
		feasible := dynprog.Feasible(v.BC, sc)
		v.BC.RemoveItemVirtual(item, 1)
		if !feasible {
			return fmt.Errorf("scheduler: initial sequence item %d at depth %d is offline-infeasible", item, depth)
		}

		v.State = dag.StateFixed
		alg, _ := d.AttachAdvMove(v, item)

		placed := false
		for bin := 1; bin <= p.Bins; bin++ {
			if bin > 1 && v.BC.Loads[bin] == v.BC.Loads[bin-1] {
				continue
			}
			if v.BC.Loads[bin]+item >= p.R {
				continue
			}
			placed = true
			bc := v.BC.Clone()
			bc.AssignAndRehash(item, bin)
			child, _ := d.AttachAlgMove(alg, bc, bin, 0)
			// Prefix vertices are not regrown task descendants.
			child.RegrowLevel = 0
			if err := expand(child, depth+1); err != nil {
				return err
			}
		}
		if !placed {
			// The forced item cannot be placed anywhere: this branch
			// is already won.
			alg.Win = game.Adv
			alg.Leaf = dag.LeafTrue
			v.Win = game.Adv
		} else {
			alg.State = dag.StateFixed
		}
		return nil
	}

	if err := expand(root, 0); err != nil {
		return nil, err
	}
	return leaves, nil
}

// sequencePrefixDecided folds the fixed prefix after all saplings are
// solved: the adversary's forced moves win exactly when every
// algorithm branch below them wins.
func sequencePrefixDecided(saplings []*dag.AdvVertex) game.Victory {
	for _, s := range saplings {
		if s.Win != game.Adv {
			return game.Alg
		}
	}
	return game.Adv
}
