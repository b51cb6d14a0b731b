package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/minimax"
	"github.com/bohm/binstretch/pkg/tasks"
)

// workerLoop repeatedly claims the next task id, explores its position
// in a fresh computation over the shared caches, and reports the
// outcome. Ends when the round is over; tasks cancelled mid-flight
// come back irrelevant and are dropped without further cache writes.
func (o *Overseer) workerLoop(wid int, roundDone *atomic.Bool) {
	scratch := dynprog.NewScratch(int64(o.ID)<<16 | int64(wid))
	tick := time.Duration(o.cfg.Scheduler.TickMillis) * time.Millisecond
	solved := uint64(0)

	for {
		if roundDone.Load() {
			log.Debug().Int("overseer", o.ID).Int("worker", wid).Uint64("tasks", solved).Msg("Worker retiring")
			return
		}

		// Claim the next index only if it points at delivered work;
		// blindly incrementing past the end could skip a task when a
		// batch lands mid-claim.
		cur := o.nextTask.Load()
		o.idsMu.RLock()
		inRange := int(cur) < len(o.ids)
		var id int
		if inRange {
			id = o.ids[cur]
		}
		o.idsMu.RUnlock()

		if !inRange {
			time.Sleep(tick)
			continue
		}
		if !o.nextTask.CompareAndSwap(cur, cur+1) {
			continue
		}

		if !o.tstatus.CompareAndSwap(id, tasks.Available, tasks.InProgress) {
			continue
		}

		comp := minimax.NewComputation(minimax.Exploring, o.z, o.guar, o.state, scratch, o.lastMonotonicity)
		comp.TaskID = id
		comp.TStatus = o.tstatus
		comp.CheckCancel = o.comm.RootSolved
		if o.cfg.Search.CandidateOrder == "frequency" {
			comp.Candidates = minimax.NineteenFourteenOrder{}
		}

		vic := minimax.Explore(o.tasks[id].BC, comp)
		switch vic {
		case game.Adv, game.Alg:
			o.tstatus.Store(id, tasks.StatusFromVictory(vic))
			o.finished[wid].Push(id)
			solved++
		default:
			// Irrelevant: the round ended or the task was pruned
			// while we worked on it. Drop the result silently.
			o.tstatus.CompareAndSwap(id, tasks.InProgress, tasks.Irrelevant)
		}
	}
}
