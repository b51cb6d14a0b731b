package scheduler

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/game"
)

// Regrowing: a task vertex proven adversary-winning carries no subtree,
// only a certificate from some worker. When search.regrow_limit is
// positive, such vertices are re-entered as saplings and expanded into
// explicit deeper proofs, up to the configured level.

// collectRegrow gathers proven task vertices below root that are still
// within the regrow budget.
func collectRegrow(d *dag.Dag, root *dag.AdvVertex, limit int) []*dag.AdvVertex {
	d.ClearVisited()
	var out []*dag.AdvVertex
	var walkAdv func(v *dag.AdvVertex)
	var walkAlg func(v *dag.AlgVertex)
	walkAdv = func(v *dag.AdvVertex) {
		if v.Visited {
			return
		}
		v.Visited = true
		if v.Task && v.Win == game.Adv && len(v.Out) == 0 && v.RegrowLevel <= limit {
			out = append(out, v)
			return
		}
		for _, e := range v.Out {
			walkAlg(e.To)
		}
	}
	walkAlg = func(v *dag.AlgVertex) {
		if v.Visited {
			return
		}
		v.Visited = true
		for _, e := range v.Out {
			walkAdv(e.To)
		}
	}
	walkAdv(root)
	return out
}

// regrow expands every proven task leaf under the sapling, breadth
// first, re-running the scheduler on each. Newly generated boundary
// vertices inherit an increased regrow level, so the expansion bottoms
// out at the limit.
func (q *Queen) regrow(sapling *dag.AdvVertex) error {
	limit := q.cfg.Search.RegrowLimit
	queue := collectRegrow(q.Dag, sapling, limit)

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		log.Info().Uint64("vertex", v.ID).Int("level", v.RegrowLevel).Msg("Regrowing task vertex")
		v.Task = false
		v.Leaf = dag.LeafNone
		v.State = dag.StateExpanding
		v.Win = game.Uncertain

		vic, err := q.solveSapling(v)
		if err != nil {
			return err
		}
		if vic != game.Adv {
			// The task was proven adv-winning; re-expansion is the
			// same deterministic computation and must agree.
			return fmt.Errorf("scheduler: regrow of vertex %d flipped a proven win to %s", v.ID, vic)
		}
		queue = append(queue, collectRegrow(q.Dag, v, limit)...)
	}
	return nil
}
