// Package minimax implements the alternating adversary/algorithm game
// recursion in its two modes: generating (growing the DAG at the queen
// and cutting boundary tasks out of it) and exploring (cache-backed
// evaluation of one task inside a worker).
package minimax

import (
	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/heur"
	"github.com/bohm/binstretch/pkg/tasks"
)

// Mode selects the recursion variant.
type Mode int

const (
	Generating Mode = iota
	Exploring
)

// checkInterval is how many recursion steps pass between polls of the
// cancellation signal while exploring.
const checkInterval = 1000

// Measurements counts recursion traffic for one computation.
type Measurements struct {
	AdvVerticesVisited uint64 `json:"adv_vertices_visited"`
	AlgVerticesVisited uint64 `json:"alg_vertices_visited"`
	HeuristicVisitHit  uint64 `json:"heuristic_visit_hit"`
	HeuristicVisitMiss uint64 `json:"heuristic_visit_miss"`
	TasksGenerated     uint64 `json:"tasks_generated"`
}

// Add folds another measurement set into this one.
func (m *Measurements) Add(other Measurements) {
	m.AdvVerticesVisited += other.AdvVerticesVisited
	m.AlgVerticesVisited += other.AlgVerticesVisited
	m.HeuristicVisitHit += other.HeuristicVisitHit
	m.HeuristicVisitMiss += other.HeuristicVisitMiss
	m.TasksGenerated += other.TasksGenerated
}

// Computation is the per-goroutine state of one minimax run: the
// in-place bin configuration, the auxiliary value stacks, the caches
// and the DAG (generating mode only). Never shared between goroutines;
// the caches it points to provide their own interior mutability.
type Computation struct {
	Mode Mode

	BState *game.BinConf
	OL     *dynprog.OnlineLoads

	Guar       cache.FeasibilityCache
	StateCache *cache.StateCache
	Scratch    *dynprog.Scratch
	Oracle     *heur.Oracle

	// Generating mode only.
	Dag         *dag.Dag
	Boundary    *tasks.Boundary
	RegrowLevel int
	RegrowLimit int

	// Exploring mode only.
	TaskID  int
	TStatus *tasks.StatusArray
	// CheckCancel polls the round-wide cancellation signal. May be
	// nil when the computation cannot be cancelled.
	CheckCancel func() bool

	// Monotonicity restricts the adversary: after sending x, nothing
	// below LowestSendable(x) may follow.
	Monotonicity int

	// Heuristic adversary moves can be turned off (for exploration,
	// where the original runs them only in generation by default, and
	// for machine verification).
	UseAdvHeuristics  bool
	UseHeuristicVisit bool
	UseGoodSituations bool

	Candidates CandidateOrder

	Meas     Measurements
	HeurMeas heur.Measurements
	EngMeas  dynprog.EngineMeasurements

	// Descent-scoped values, pushed and popped around recursive calls.
	calldepth        int
	itemdepth        int
	prevMaxFeasible  int
	largestSinceRoot int

	heuristicRegime bool
	strategyDepth   int
	currentStrategy heur.Strategy

	// algMoves[d] holds the zero-terminated list of bins still
	// uncertain at call depth d.
	algMoves [][]int

	iterations uint64
	cancelled  bool
}

// NewComputation prepares the per-goroutine state for one run over the
// given configuration. The caches may be shared across computations.
func NewComputation(mode Mode, z *game.Tables, guar cache.FeasibilityCache,
	state *cache.StateCache, sc *dynprog.Scratch, monotonicity int) *Computation {

	p := z.Params()
	// Call depth advances on both players' plies, two per item.
	maxDepth := 2*p.MaxItems() + 4
	moves := make([][]int, maxDepth)
	for i := range moves {
		moves[i] = make([]int, p.Bins+1)
	}
	c := &Computation{
		Mode:              mode,
		Guar:              guar,
		StateCache:        state,
		Scratch:           sc,
		Monotonicity:      monotonicity,
		UseAdvHeuristics:  true,
		UseHeuristicVisit: mode == Exploring,
		UseGoodSituations: true,
		Candidates:        DescendingOrder{},
		algMoves:          moves,
	}
	c.Oracle = &heur.Oracle{Guar: guar, Scratch: sc}
	return c
}

// LowestSendable is the smallest item the adversary may send after an
// item of size last under the current monotonicity: at 0 the sequence
// is non-decreasing, at S the restriction disappears.
func (c *Computation) LowestSendable(last int) int {
	low := last - c.Monotonicity
	if low < 1 {
		low = 1
	}
	return low
}

func (c *Computation) generating() bool { return c.Mode == Generating }
func (c *Computation) exploring() bool  { return c.Mode == Exploring }

// cancelCheck polls the termination signal every checkInterval
// iterations.
func (c *Computation) cancelCheck() bool {
	if c.cancelled {
		return true
	}
	c.iterations++
	if c.iterations%checkInterval != 0 || c.CheckCancel == nil {
		return false
	}
	if c.CheckCancel() {
		c.cancelled = true
		return true
	}
	if c.TStatus != nil && c.TaskID >= 0 && c.TStatus.Load(c.TaskID) == tasks.Pruned {
		c.cancelled = true
		return true
	}
	return false
}

// Explore evaluates a task position to a definite outcome (or
// Irrelevant under cancellation). The configuration is copied into the
// computation's in-place state.
func Explore(bc *game.BinConf, c *Computation) game.Victory {
	c.BState = bc.Clone()
	c.BState.HashInit()
	c.OL = dynprog.NewOnlineLoads(c.BState)
	c.calldepth = 0
	c.itemdepth = c.BState.ItemCount
	c.prevMaxFeasible = c.BState.Tables().Params().S
	c.largestSinceRoot = 0
	return c.adversary(nil, nil)
}

// Generate grows the sapling's sub-DAG, marking boundary vertices, and
// returns the root outcome (Uncertain when tasks remain).
func Generate(sapling *dag.AdvVertex, c *Computation) game.Victory {
	c.BState = sapling.BC.Clone()
	c.BState.HashInit()
	c.OL = dynprog.NewOnlineLoads(c.BState)
	c.calldepth = 0
	c.itemdepth = c.BState.ItemCount
	c.prevMaxFeasible = c.BState.Tables().Params().S
	c.largestSinceRoot = 0
	c.RegrowLevel = sapling.RegrowLevel
	return c.adversary(sapling, nil)
}
