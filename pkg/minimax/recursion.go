package minimax

import (
	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/heur"
)

// advNotes and algNotes record the descent-scoped values restored on
// ascent. The recursion mutates the bin configuration in place:
// descend, recurse, revert.
type advNotes struct {
	oldLargest    int
	oldMaxFeas    int
	strategyMoved bool
}

type algNotes struct {
	prevLastItem int
	bcPos        int
	olPos        int
	olOverflow   bool
}

func (c *Computation) adversaryDescend(n *advNotes, item, maxFeas int) {
	c.calldepth++
	n.oldLargest = c.largestSinceRoot
	n.oldMaxFeas = c.prevMaxFeasible
	if item > c.largestSinceRoot {
		c.largestSinceRoot = item
	}
	c.prevMaxFeasible = maxFeas
	if c.currentStrategy != nil {
		c.strategyDepth++
		n.strategyMoved = true
	}
}

func (c *Computation) adversaryAscend(n *advNotes) {
	c.calldepth--
	c.largestSinceRoot = n.oldLargest
	c.prevMaxFeasible = n.oldMaxFeas
	if n.strategyMoved && c.currentStrategy != nil {
		c.strategyDepth--
	}
}

func (c *Computation) algorithmDescend(n *algNotes, item, bin int) {
	c.calldepth++
	c.itemdepth++
	n.prevLastItem = c.BState.LastItem
	n.bcPos = c.BState.AssignAndRehash(item, bin)
	n.olPos, n.olOverflow = c.OL.Assign(item)
}

func (c *Computation) algorithmAscend(n *algNotes, item int) {
	c.calldepth--
	c.itemdepth--
	c.BState.UnassignAndRehash(item, n.bcPos, n.prevLastItem)
	c.OL.Unassign(item, n.olPos, n.olOverflow)
}

// adversary evaluates a position where the adversary moves. advVertex
// is nil while exploring (no DAG is grown there).
func (c *Computation) adversary(advVertex *dag.AdvVertex, parentAlg *dag.AlgVertex) game.Victory {
	switchedToHeuristic := false

	if c.generating() {
		if advVertex.Visited {
			return advVertex.Win
		}
		advVertex.Visited = true
		c.Meas.AdvVerticesVisited++

		// Finished and fixed vertices carry settled outcomes from
		// earlier saplings; generation does not descend below them.
		if advVertex.State == dag.StateFinished || advVertex.State == dag.StateFixed {
			return advVertex.Win
		}

		// A vertex touched by generation stops being a boundary; the
		// cut-off predicate below may restore the mark.
		if advVertex.Leaf == dag.LeafBoundary {
			advVertex.Leaf = dag.LeafNone
		}
	}

	if c.UseAdvHeuristics && !c.heuristicRegime {
		strat, vic := heur.Adversary(c.BState, c.Oracle, &c.HeurMeas)
		if vic == game.Adv {
			if c.exploring() {
				return game.Adv
			}
			switchedToHeuristic = true
			c.heuristicRegime = true
			c.strategyDepth = 0
			c.currentStrategy = strat
		}
	}

	if c.generating() && c.heuristicRegime {
		advVertex.HeurStrategy = c.currentStrategy
		advVertex.Win = game.Adv
		advVertex.Leaf = dag.LeafHeuristical
	}

	// The task cut-off: deep or heavy enough positions become
	// boundary tasks instead of being expanded further.
	if c.generating() && !c.heuristicRegime && c.RegrowLevel <= c.RegrowLimit &&
		len(advVertex.Out) == 0 &&
		(advVertex.State == dag.StateFresh || advVertex.State == dag.StateExpanding) &&
		c.Boundary != nil &&
		c.Boundary.PossibleTask(c.BState, c.calldepth, c.largestSinceRoot) {
		if advVertex.Win == game.Uncertain {
			advVertex.Leaf = dag.LeafBoundary
			c.Meas.TasksGenerated++
		}
		return advVertex.Win
	}

	if c.exploring() {
		if c.cancelCheck() {
			return game.Irrelevant
		}
		if found, win := c.StateCache.Lookup(c.BState.StateHash()); found {
			return win
		}
	}

	win := game.Alg
	maxFeas := c.prevMaxFeasible

	var candidates []int
	if c.heuristicRegime {
		candidates = append(candidates, c.currentStrategy.NextItem(c.BState, c.strategyDepth, c.Oracle))
	} else {
		lowest := c.LowestSendable(c.BState.LastItem)
		maxFeas = dynprog.MaximumFeasible(c.BState, lowest, c.prevMaxFeasible,
			c.OL, c.Guar, c.Scratch, &c.EngMeas)
		if maxFeas != dynprog.Infeasible {
			candidates = c.Candidates.Candidates(candidates, maxFeas, lowest)
		}
	}

	for _, item := range candidates {
		var upcomingAlg *dag.AlgVertex
		var edge *dag.AdvOutedge
		if c.generating() {
			upcomingAlg, edge = c.Dag.AttachAdvMove(advVertex, item)
		}

		var notes advNotes
		c.adversaryDescend(&notes, item, maxFeas)
		below := c.algorithm(item, upcomingAlg, advVertex)
		c.adversaryAscend(&notes)

		if below == game.Irrelevant {
			return game.Irrelevant
		}

		switch below {
		case game.Adv:
			win = game.Adv
			if c.generating() {
				c.Dag.RemoveOutedgesExcept(advVertex, item)
			}
		case game.Alg:
			// This move loses for the adversary; drop the branch.
			if c.generating() {
				c.Dag.RemoveAdvEdge(edge)
			}
		case game.Uncertain:
			if win == game.Alg {
				win = game.Uncertain
			}
		}
		if win == game.Adv {
			break
		}
	}

	if c.exploring() {
		c.StateCache.Insert(c.BState.StateHash(), win)
	}

	if switchedToHeuristic {
		c.heuristicRegime = false
		c.currentStrategy = nil
	}

	if c.generating() {
		advVertex.Win = win
	}
	return win
}

// algorithm evaluates a position where the algorithm must place item.
// algVertex is nil while exploring.
func (c *Computation) algorithm(item int, algVertex *dag.AlgVertex, parentAdv *dag.AdvVertex) game.Victory {
	if c.generating() {
		if algVertex.Visited {
			return algVertex.Win
		}
		algVertex.Visited = true
		c.Meas.AlgVerticesVisited++

		if c.heuristicRegime {
			algVertex.Leaf = dag.LeafHeuristical
		}

		if algVertex.State == dag.StateFinished || algVertex.State == dag.StateFixed {
			return algVertex.Win
		}
	}

	if c.exploring() && c.UseHeuristicVisit {
		quick := c.heuristicVisitAlg(item)
		if quick != game.Uncertain {
			c.Meas.HeuristicVisitHit++
			return quick
		}
		c.Meas.HeuristicVisitMiss++
	} else {
		c.simpleFillMoves(item)
	}

	if c.UseGoodSituations {
		if _, ok := heur.GoodSituation(c.BState, item); ok {
			c.HeurMeas.GoodSituations++
			if c.generating() {
				algVertex.Win = game.Alg
				algVertex.Leaf = dag.LeafHeuristical
			}
			return game.Alg
		}
	}

	win := game.Adv
	moves := c.algMoves[c.calldepth]

	for pos := 0; moves[pos] != 0; pos++ {
		bin := moves[pos]

		var notes algNotes
		c.algorithmDescend(&notes, item, bin)

		var upcomingAdv *dag.AdvVertex
		if c.generating() {
			upcomingAdv, _ = c.Dag.AttachAlgMove(algVertex, c.BState, bin, c.RegrowLevel)
		}

		below := c.adversary(upcomingAdv, algVertex)
		c.algorithmAscend(&notes, item)

		if below == game.Irrelevant {
			return game.Irrelevant
		}

		switch below {
		case game.Alg:
			// One safe placement is enough. The whole subtree below
			// this vertex becomes irrelevant to the lower bound.
			if c.generating() {
				c.Dag.RemoveAlgOutedges(algVertex)
				algVertex.Win = game.Alg
			}
			return game.Alg
		case game.Adv:
			// Keep trying other bins; the edge stays.
		case game.Uncertain:
			if win == game.Adv {
				win = game.Uncertain
			}
		}
	}

	if c.generating() {
		algVertex.Win = win
		if win == game.Adv && len(algVertex.Out) == 0 {
			algVertex.Leaf = dag.LeafTrue
		}
	}
	return win
}

// simpleFillMoves records every distinct legal placement for item at
// the current call depth: bins with the same load as their left
// neighbour are skipped by sort symmetry, and a placement reaching R
// loses outright. The list is zero-terminated.
func (c *Computation) simpleFillMoves(item int) {
	p := c.BState.Tables().Params()
	moves := c.algMoves[c.calldepth]
	next := 0
	for i := 1; i <= p.Bins; i++ {
		if i > 1 && c.BState.Loads[i] == c.BState.Loads[i-1] {
			continue
		}
		if c.BState.Loads[i]+item < p.R {
			moves[next] = i
			next++
		}
	}
	moves[next] = 0
}

// heuristicVisitAlg peeks at the state cache for every child position
// without descending. A cached algorithm win anywhere answers
// immediately; cached adversary wins eliminate their bins; the rest are
// recorded as the uncertain moves for the real recursion.
func (c *Computation) heuristicVisitAlg(item int) game.Victory {
	p := c.BState.Tables().Params()
	moves := c.algMoves[c.calldepth]
	next := 0
	ret := game.Adv

	for i := 1; i <= p.Bins; i++ {
		if i > 1 && c.BState.Loads[i] == c.BState.Loads[i-1] {
			continue
		}
		if c.BState.Loads[i]+item >= p.R {
			continue
		}
		found, win := c.StateCache.Lookup(c.BState.VirtualStateHash(item, i))
		if found && win == game.Alg {
			return game.Alg
		}
		if found {
			// A cached adversary win: the bin is refuted, no need to
			// recurse into it.
			continue
		}
		ret = game.Uncertain
		moves[next] = i
		next++
	}

	moves[next] = 0
	return ret
}
