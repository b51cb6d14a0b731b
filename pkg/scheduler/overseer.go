package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bohm/binstretch/internal/config"
	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/net"
	"github.com/bohm/binstretch/pkg/tasks"
)

// Overseer owns one machine's caches and worker pool. It pulls batches
// of task ids from the queen, feeds them to workers through an atomic
// index over a shared id list, and pushes finished solutions back.
type Overseer struct {
	ID   int
	cfg  *config.Config
	z    *game.Tables
	comm net.OverseerComm

	props config.ServerProperties

	guar  cache.FeasibilityCache
	state *cache.StateCache

	// Round-scoped state.
	tasks    []*tasks.Task
	tstatus  *tasks.StatusArray
	ids      []int
	idsMu    sync.RWMutex
	nextTask atomic.Int64
	finished []*tasks.SemiAtomicQueue

	lastSapling      int
	lastMonotonicity int
}

// NewOverseer builds the overseer and its caches from the machine's
// server properties.
func NewOverseer(id int, cfg *config.Config, z *game.Tables, comm net.OverseerComm) (*Overseer, error) {
	props := cfg.PropertiesForHost()
	var guar cache.FeasibilityCache
	var err error
	if cfg.Cache.LockedGuarantee {
		guar, err = cache.NewLockedGuaranteeCache(props.GuaranteeLogBytes, z.Params())
	} else {
		guar, err = cache.NewGuaranteeCache(props.GuaranteeLogBytes)
	}
	if err != nil {
		return nil, err
	}
	state, err := cache.NewStateCache(props.StateLogBytes)
	if err != nil {
		return nil, err
	}
	return &Overseer{
		ID:               id,
		cfg:              cfg,
		z:                z,
		comm:             comm,
		props:            props,
		guar:             guar,
		state:            state,
		lastSapling:      -1,
		lastMonotonicity: -1,
	}, nil
}

// Run processes rounds until the queen broadcasts finality.
func (o *Overseer) Run() error {
	log.Info().Int("overseer", o.ID).Int("workers", o.props.Workers).Msg("Overseer reporting for duty")

	for {
		rs, err := o.comm.AwaitRoundStart()
		if err != nil {
			return err
		}
		if rs.Final {
			log.Info().Int("overseer", o.ID).Msg("Final round, terminating")
			o.logCacheStats()
			return o.comm.ConfirmRoundEnd()
		}
		if err := o.runRound(rs); err != nil {
			return err
		}
		if err := o.comm.ConfirmRoundEnd(); err != nil {
			return err
		}
	}
}

func (o *Overseer) runRound(rs net.RoundStart) error {
	// Cache retention between rounds: a relaxed monotonicity flips
	// only algorithm wins; a new sapling (or tightened restriction)
	// invalidates everything.
	if o.lastSapling == rs.Sapling && rs.Monotonicity > o.lastMonotonicity {
		o.state.ClearAlgWins(o.props.Workers)
	} else if o.lastSapling >= 0 {
		o.state.ClearAll(o.props.Workers)
	}
	o.lastSapling = rs.Sapling
	o.lastMonotonicity = rs.Monotonicity

	o.tasks = make([]*tasks.Task, len(rs.Tasks))
	for i, f := range rs.Tasks {
		t, err := tasks.Unflatten(o.z, f)
		if err != nil {
			return fmt.Errorf("overseer %d: %w", o.ID, err)
		}
		o.tasks[i] = t
	}
	o.tstatus = tasks.NewStatusArray(len(o.tasks))
	o.ids = o.ids[:0]
	o.nextTask.Store(0)
	o.finished = make([]*tasks.SemiAtomicQueue, o.props.Workers)
	for w := range o.finished {
		o.finished[w] = tasks.NewSemiAtomicQueue(len(o.tasks))
	}

	var roundDone atomic.Bool
	var group errgroup.Group
	for w := 0; w < o.props.Workers; w++ {
		w := w
		group.Go(func() error {
			o.workerLoop(w, &roundDone)
			return nil
		})
	}

	tick := time.Duration(o.cfg.Scheduler.TickMillis) * time.Millisecond
	batchRequested := false
	noMoreBatches := false

	for {
		if o.comm.RootSolved() {
			roundDone.Store(true)
			break
		}

		o.processFinished()

		if !batchRequested && !noMoreBatches && o.runningLow() {
			if err := o.comm.RequestBatch(); err != nil {
				return err
			}
			batchRequested = true
		}
		if batchRequested {
			if batch, ok := o.comm.TryReceiveBatch(); ok {
				batchRequested = false
				if len(batch) == 0 {
					noMoreBatches = true
				} else {
					o.idsMu.Lock()
					o.ids = append(o.ids, batch...)
					o.idsMu.Unlock()
				}
			}
		}

		time.Sleep(tick)
	}

	if err := group.Wait(); err != nil {
		return err
	}
	// Flush stragglers so the queen's count stays consistent; it
	// discards anything after the root-solved broadcast itself.
	o.processFinished()
	return nil
}

// runningLow reports whether the local queue is close to drained.
func (o *Overseer) runningLow() bool {
	o.idsMu.RLock()
	defer o.idsMu.RUnlock()
	return len(o.ids)-int(o.nextTask.Load()) <= o.cfg.Scheduler.BatchThreshold
}

// processFinished forwards every finished task with a definite outcome
// to the queen.
func (o *Overseer) processFinished() {
	for w := range o.finished {
		for {
			id := o.finished[w].PopIfAble()
			if id == -1 {
				break
			}
			st := o.tstatus.Load(id)
			if st != tasks.AdvWin && st != tasks.AlgWin {
				continue
			}
			if err := o.comm.SendSolution(net.Solution{TaskID: id, Winner: st.Victory()}); err != nil {
				log.Error().Err(err).Int("task", id).Msg("Solution transmit failed")
			}
		}
	}
}

func (o *Overseer) logCacheStats() {
	st := o.state.Meas().Snapshot()
	gu := o.guar.Meas().Snapshot()
	log.Info().Int("overseer", o.ID).
		Uint64("state_hits", st.LookupHit).Uint64("state_evictions", st.InsertRandom).
		Uint64("guarantee_hits", gu.LookupHit).Uint64("guarantee_evictions", gu.InsertRandom).
		Msg("Cache statistics")
}
