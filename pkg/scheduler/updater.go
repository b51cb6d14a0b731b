package scheduler

import (
	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/tasks"
)

// Updater folds worker results back into the DAG: a slimmed-down
// minimax that reads task statuses at boundary leaves, propagates
// outcomes by the game rule, and prunes branches made redundant by a
// proven winning move.
type Updater struct {
	d       *dag.Dag
	col     *tasks.Collection
	tstatus *tasks.StatusArray
}

// NewUpdater binds an updater to the current round's task collection.
func NewUpdater(d *dag.Dag, col *tasks.Collection, tstatus *tasks.StatusArray) *Updater {
	return &Updater{d: d, col: col, tstatus: tstatus}
}

// Update propagates outcomes from the tasks up to root and returns the
// root value (Uncertain while undecided tasks remain). Tasks that fell
// out of the reachable graph are marked pruned so their workers stop.
func (u *Updater) Update(root *dag.AdvVertex) game.Victory {
	u.d.ClearVisited()
	result := u.updateAdv(root)

	// Anything the traversal did not reach is no longer relevant to
	// the round's outcome.
	for id := range u.col.Tasks {
		st := u.tstatus.Load(id)
		if st != tasks.Available && st != tasks.InProgress {
			continue
		}
		v, ok := u.d.AdvByHash[u.col.Tasks[id].BC.StateHash()]
		if !ok || !v.Visited {
			u.tstatus.Store(id, tasks.Pruned)
		}
	}
	return result
}

func (u *Updater) updateAdv(v *dag.AdvVertex) game.Victory {
	if v.Win == game.Adv || v.Win == game.Alg {
		return v.Win
	}
	if v.Visited {
		return v.Win
	}
	v.Visited = true

	result := game.Alg

	if v.Task {
		id := u.col.TaskID(v)
		if id == -1 {
			return game.Uncertain
		}
		result = u.tstatus.Load(id).Victory()
	} else {
		rightMove := -1
		// Iterate over a copy: refuted branches are removed mid-walk.
		out := append([]*dag.AdvOutedge(nil), v.Out...)
		for _, e := range out {
			below := u.updateAlg(e.To)
			if below == game.Adv {
				result = game.Adv
				rightMove = e.Item
				break
			} else if below == game.Alg {
				u.d.RemoveAdvEdge(e)
			} else {
				if result == game.Alg {
					result = game.Uncertain
				}
			}
		}
		if result == game.Adv {
			u.d.RemoveOutedgesExcept(v, rightMove)
		}
	}

	if result == game.Adv || result == game.Alg {
		v.Win = result
	}
	return result
}

func (u *Updater) updateAlg(v *dag.AlgVertex) game.Victory {
	if v.Win == game.Adv || v.Win == game.Alg {
		return v.Win
	}
	if v.Visited {
		return v.Win
	}
	v.Visited = true

	result := game.Adv
	for _, e := range v.Out {
		below := u.updateAdv(e.To)
		if below == game.Alg {
			result = game.Alg
			break
		} else if below == game.Uncertain {
			if result == game.Adv {
				result = game.Uncertain
			}
		}
	}

	if result == game.Adv || result == game.Alg {
		v.Win = result
	}
	return result
}
