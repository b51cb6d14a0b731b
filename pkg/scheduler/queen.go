package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bohm/binstretch/internal/config"
	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/metrics"
	"github.com/bohm/binstretch/pkg/minimax"
	"github.com/bohm/binstretch/pkg/net"
	"github.com/bohm/binstretch/pkg/tasks"
)

// Queen owns the DAG and the task array, generates sapling sub-DAGs,
// distributes tasks over the messaging layer and folds results back
// with the updater until each sapling is decided.
type Queen struct {
	cfg  *config.Config
	z    *game.Tables
	comm net.QueenComm

	Dag   *dag.Dag
	RunID uuid.UUID

	guar    cache.FeasibilityCache
	state   *cache.StateCache
	scratch *dynprog.Scratch

	meters *metrics.Engine

	saplingSeq int
}

// NewQueen prepares the queen's own caches (used while generating).
func NewQueen(cfg *config.Config, z *game.Tables, comm net.QueenComm, meters *metrics.Engine) (*Queen, error) {
	var guar cache.FeasibilityCache
	var err error
	if cfg.Cache.LockedGuarantee {
		guar, err = cache.NewLockedGuaranteeCache(cfg.Cache.GuaranteeLogBytes, z.Params())
	} else {
		guar, err = cache.NewGuaranteeCache(cfg.Cache.GuaranteeLogBytes)
	}
	if err != nil {
		return nil, err
	}
	state, err := cache.NewStateCache(cfg.Cache.StateLogBytes)
	if err != nil {
		return nil, err
	}
	return &Queen{
		cfg:     cfg,
		z:       z,
		comm:    comm,
		guar:    guar,
		state:   state,
		scratch: dynprog.NewScratch(1),
		meters:  meters,
		RunID:   uuid.New(),
	}, nil
}

// Solve runs the whole computation for the given root configuration:
// sequencing, then one sapling at a time, then the final round
// broadcast. Returns Adv when the lower bound holds.
func (q *Queen) Solve(rootBC *game.BinConf) (game.Victory, error) {
	q.Dag = dag.New(q.z)
	root := q.Dag.AddRoot(rootBC)

	saplings, err := BuildSaplings(q.Dag, root, q.cfg.Search.InitialSequence)
	if err != nil {
		return game.Uncertain, err
	}
	log.Info().Str("run_id", q.RunID.String()).Str("game", q.z.Params().String()).
		Int("saplings", len(saplings)).Msg("Queen starting computation")

	result := game.Adv
	for i, sapling := range saplings {
		vic, err := q.solveSapling(sapling)
		if err != nil {
			q.broadcastFinal()
			return game.Uncertain, err
		}
		log.Info().Int("sapling", i).Str("outcome", vic.String()).Msg("Sapling decided")
		if vic != game.Adv {
			result = game.Alg
			break
		}
		if q.cfg.Search.RegrowLimit > 0 {
			if err := q.regrow(sapling); err != nil {
				q.broadcastFinal()
				return game.Uncertain, err
			}
		}
	}

	if result == game.Adv && len(saplings) > 1 {
		result = sequencePrefixDecided(saplings)
	}

	q.broadcastFinal()
	return result, nil
}

func (q *Queen) broadcastFinal() {
	if err := q.comm.BroadcastRoundStart(net.RoundStart{Final: true}); err != nil {
		log.Error().Err(err).Msg("Final round broadcast failed")
		return
	}
	if err := q.comm.AwaitRoundEnd(); err != nil {
		log.Error().Err(err).Msg("Final round end failed")
	}
}

// solveSapling iterates monotonicity levels until the adversary wins or
// the levels run out.
func (q *Queen) solveSapling(sapling *dag.AdvVertex) (game.Victory, error) {
	p := q.z.Params()
	q.saplingSeq++

	for m := q.cfg.Search.StartMonotonicity; m <= p.S-1; m++ {
		if q.meters != nil {
			q.meters.MonotonicityLevel.Set(float64(m))
		}
		log.Info().Int("monotonicity", m).Msg("Starting monotonicity iteration")

		purgeSapling(q.Dag, sapling)

		vic, err := q.runRound(sapling, m)
		if err != nil {
			return game.Uncertain, err
		}
		if vic == game.Adv {
			return game.Adv, nil
		}
		// The algorithm survived this restriction; relax it and let
		// the overseers invalidate their cached algorithm wins.
	}
	return game.Alg, nil
}

// runRound generates the sapling's sub-DAG, ships the boundary tasks
// out and processes results until the sapling is decided.
func (q *Queen) runRound(sapling *dag.AdvVertex, monotonicity int) (game.Victory, error) {
	boundary, err := tasks.NewBoundary(tasks.BoundaryMode(q.cfg.Search.Boundary),
		q.cfg.Search.TaskLoad, q.cfg.Search.TaskDepth, sapling.BC, sapling.BC.ItemCount)
	if err != nil {
		return game.Uncertain, err
	}

	comp := minimax.NewComputation(minimax.Generating, q.z, q.guar, q.state, q.scratch, monotonicity)
	comp.Dag = q.Dag
	comp.Boundary = boundary
	comp.RegrowLimit = q.cfg.Search.RegrowLimit
	if q.cfg.Search.CandidateOrder == "frequency" {
		comp.Candidates = minimax.NineteenFourteenOrder{}
	}

	q.Dag.ClearVisited()
	vic := minimax.Generate(sapling, comp)
	if q.meters != nil {
		q.meters.ObserveMinimax(comp.Meas)
		q.meters.ObserveEngine(comp.EngMeas)
		q.meters.ObserveCache("queen_guarantee", q.guar.Meas())
		q.meters.ObserveCache("queen_state", q.state.Meas())
	}
	if vic != game.Uncertain {
		log.Info().Str("outcome", vic.String()).Msg("Sapling decided during generation")
		q.Dag.EraseUnreachable()
		return vic, nil
	}

	marked := tasks.Mark(q.Dag, sapling)
	col := tasks.Collect(q.Dag, sapling)
	if len(col.Tasks) == 0 {
		return game.Uncertain, fmt.Errorf("scheduler: generation uncertain but no tasks emitted")
	}
	tstatus := tasks.NewStatusArray(len(col.Tasks))
	log.Info().Int("tasks", marked).Msg("Generated task array")
	if q.meters != nil {
		q.meters.TasksOutstanding.Set(float64(len(col.Tasks)))
		q.meters.RoundNumber.Inc()
	}

	flats := make([]tasks.Flat, len(col.Tasks))
	for i, t := range col.Tasks {
		flats[i] = t.Flatten()
	}
	if err := q.comm.BroadcastRoundStart(net.RoundStart{
		Sapling:      q.saplingSeq,
		Monotonicity: monotonicity,
		Tasks:        flats,
	}); err != nil {
		return game.Uncertain, err
	}

	vic = q.processRound(sapling, col, tstatus)

	if err := q.comm.BroadcastRootSolved(); err != nil {
		return game.Uncertain, err
	}
	if err := q.comm.AwaitRoundEnd(); err != nil {
		return game.Uncertain, err
	}
	// Drop stragglers flushed after the root-solved broadcast; their
	// ids index this round's task array, not the next one's.
	for {
		if _, ok := q.comm.TryCollectSolution(); !ok {
			break
		}
	}
	q.Dag.EraseUnreachable()
	return vic, nil
}

// processRound is the queen's round loop: hand out batches on demand,
// collect solutions, tick the updater, stop when the sapling decides.
func (q *Queen) processRound(sapling *dag.AdvVertex, col *tasks.Collection, tstatus *tasks.StatusArray) game.Victory {
	updater := NewUpdater(q.Dag, col, tstatus)
	tick := time.Duration(q.cfg.Scheduler.TickMillis) * time.Millisecond
	head := 0
	collected := 0
	ticks := 0
	outstanding := len(col.Tasks)

	for {
		for {
			overseer, ok := q.comm.NextBatchRequest()
			if !ok {
				break
			}
			batch := q.nextBatch(&head, len(col.Tasks))
			if err := q.comm.SendBatch(overseer, batch); err != nil {
				log.Error().Err(err).Int("overseer", overseer).Msg("Batch dispatch failed")
			}
		}

		for {
			s, ok := q.comm.TryCollectSolution()
			if !ok {
				break
			}
			if s.TaskID < 0 || s.TaskID >= tstatus.Len() {
				log.Warn().Int("task", s.TaskID).Msg("Solution for unknown task dropped")
				continue
			}
			st := tasks.StatusFromVictory(s.Winner)
			if st == tasks.AdvWin || st == tasks.AlgWin {
				tstatus.Store(s.TaskID, st)
				collected++
				outstanding--
				if q.meters != nil {
					q.meters.TaskCompleted(st.String())
					q.meters.TasksOutstanding.Set(float64(outstanding))
				}
			}
		}

		ticks++
		if collected >= q.cfg.Scheduler.TickTasks || outstanding <= 0 || (collected > 0 && ticks >= 10) {
			collected = 0
			ticks = 0
			vic := updater.Update(sapling)
			if vic != game.Uncertain {
				return vic
			}
		}

		time.Sleep(tick)
	}
}

// nextBatch slices the next set of task ids off the flat array.
func (q *Queen) nextBatch(head *int, total int) net.Batch {
	size := q.cfg.Scheduler.BatchSize
	if *head >= total {
		return net.Batch{}
	}
	end := *head + size
	if end > total {
		end = total
	}
	batch := make(net.Batch, 0, end-*head)
	for id := *head; id < end; id++ {
		batch = append(batch, id)
	}
	*head = end
	return batch
}

// purgeSapling resets a sapling before a fresh generation pass,
// dropping everything generated below it in earlier iterations.
func purgeSapling(d *dag.Dag, sapling *dag.AdvVertex) {
	d.RemoveAdvOutedges(sapling)
	sapling.Win = game.Uncertain
	sapling.Leaf = dag.LeafNone
	sapling.Task = false
	sapling.State = dag.StateFresh
	sapling.HeurStrategy = nil
}
