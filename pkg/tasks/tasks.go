// Package tasks holds the unit of work distribution: boundary
// positions cut out of the generated graph, their atomic status array,
// and the queues that move task ids between the scheduler roles.
package tasks

import (
	"fmt"
	"sync/atomic"

	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/game"
)

// Status is the lifecycle state of one task, held in an atomic array
// indexed by task id.
type Status int32

const (
	Available Status = iota
	InProgress
	AdvWin
	AlgWin
	Pruned
	Irrelevant
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case InProgress:
		return "in progress"
	case AdvWin:
		return "adv win"
	case AlgWin:
		return "alg win"
	case Pruned:
		return "pruned"
	case Irrelevant:
		return "irrelevant"
	default:
		return "unknown"
	}
}

// Victory converts a finished status into a game outcome.
func (s Status) Victory() game.Victory {
	switch s {
	case AdvWin:
		return game.Adv
	case AlgWin:
		return game.Alg
	default:
		return game.Uncertain
	}
}

// StatusFromVictory converts a worker's outcome into a status.
func StatusFromVictory(v game.Victory) Status {
	switch v {
	case game.Adv:
		return AdvWin
	case game.Alg:
		return AlgWin
	default:
		return Irrelevant
	}
}

// Task is a flat record carrying exactly what a worker needs to
// re-enter the minimax recursion at a boundary position.
type Task struct {
	BC             *game.BinConf
	RegrowLevel    int
	ExpansionDepth int
}

// Flat is the wire form of a task, marshalled between the queen and
// remote overseers.
type Flat struct {
	Loads          []int  `json:"loads"`
	Items          []int  `json:"items"`
	LastItem       int    `json:"last_item"`
	RegrowLevel    int    `json:"regrow_level"`
	ExpansionDepth int    `json:"expansion_depth"`
	TotalLoad      int    `json:"total_load"`
	ItemCount      int    `json:"item_count"`
	LoadHash       uint64 `json:"load_hash"`
	ItemHash       uint64 `json:"item_hash"`
}

// Flatten serializes the task.
func (t *Task) Flatten() Flat {
	return Flat{
		Loads:          append([]int(nil), t.BC.Loads...),
		Items:          append([]int(nil), t.BC.Items...),
		LastItem:       t.BC.LastItem,
		RegrowLevel:    t.RegrowLevel,
		ExpansionDepth: t.ExpansionDepth,
		TotalLoad:      t.BC.TotalLoad,
		ItemCount:      t.BC.ItemCount,
		LoadHash:       t.BC.LoadHash,
		ItemHash:       t.BC.ItemHash,
	}
}

// Unflatten rebuilds a task against the local Zobrist tables. The
// transmitted hashes must agree with a local recompute; a mismatch
// means the processes run different tables and the computation cannot
// proceed.
func Unflatten(z *game.Tables, f Flat) (*Task, error) {
	p := z.Params()
	if len(f.Loads) != p.Bins+1 || len(f.Items) != p.S+1 {
		return nil, fmt.Errorf("tasks: flat task dimensions %dx%d do not match game %s",
			len(f.Loads), len(f.Items), p)
	}
	bc := game.NewBinConf(z)
	copy(bc.Loads, f.Loads)
	copy(bc.Items, f.Items)
	bc.LastItem = f.LastItem
	bc.TotalLoad = f.TotalLoad
	bc.ItemCount = f.ItemCount
	bc.HashInit()
	if bc.LoadHash != f.LoadHash || bc.ItemHash != f.ItemHash {
		return nil, fmt.Errorf("tasks: hash mismatch unflattening task (Zobrist tables differ between processes)")
	}
	return &Task{BC: bc, RegrowLevel: f.RegrowLevel, ExpansionDepth: f.ExpansionDepth}, nil
}

// StatusArray is the shared per-round task state.
type StatusArray struct {
	arr []atomic.Int32
}

// NewStatusArray creates count slots, all Available.
func NewStatusArray(count int) *StatusArray {
	return &StatusArray{arr: make([]atomic.Int32, count)}
}

// Len returns the slot count.
func (a *StatusArray) Len() int { return len(a.arr) }

// Load reads a slot.
func (a *StatusArray) Load(id int) Status { return Status(a.arr[id].Load()) }

// Store writes a slot.
func (a *StatusArray) Store(id int, s Status) { a.arr[id].Store(int32(s)) }

// CompareAndSwap transitions a slot if it still holds old.
func (a *StatusArray) CompareAndSwap(id int, old, new Status) bool {
	return a.arr[id].CompareAndSwap(int32(old), int32(new))
}

// Collection is the flat task array of one round, with the inverse map
// from position hashes to task ids.
type Collection struct {
	Tasks []*Task
	ByPos map[uint64]int
}

// Collect walks the generated graph from root and gathers every vertex
// marked as a task into a flat array, assigning ids in DFS order.
func Collect(d *dag.Dag, root *dag.AdvVertex) *Collection {
	col := &Collection{ByPos: make(map[uint64]int)}
	d.ClearVisited()
	col.collectAdv(root)
	return col
}

func (c *Collection) collectAdv(v *dag.AdvVertex) {
	if v.Visited || v.State == dag.StateFinished {
		return
	}
	v.Visited = true

	if v.Task {
		if v.Win != game.Uncertain {
			// A decided vertex must never have been marked as a
			// task; the generator has a bug if this trips.
			panic(fmt.Sprintf("tasks: task vertex %d already decided as %v", v.ID, v.Win))
		}
		t := &Task{
			BC:             v.BC.Clone(),
			RegrowLevel:    v.RegrowLevel,
			ExpansionDepth: v.ExpansionDepth,
		}
		c.ByPos[v.BC.StateHash()] = len(c.Tasks)
		c.Tasks = append(c.Tasks, t)
		return
	}
	for _, e := range v.Out {
		c.collectAlg(e.To)
	}
}

func (c *Collection) collectAlg(v *dag.AlgVertex) {
	if v.Visited || v.State == dag.StateFinished {
		return
	}
	v.Visited = true
	for _, e := range v.Out {
		c.collectAdv(e.To)
	}
}

// Mark turns every undecided boundary vertex reachable from root into
// a task and returns how many were marked. Run after generation,
// before collection.
func Mark(d *dag.Dag, root *dag.AdvVertex) int {
	d.ClearVisited()
	return markAdv(root)
}

func markAdv(v *dag.AdvVertex) int {
	if v.Visited {
		return 0
	}
	v.Visited = true
	if v.Leaf == dag.LeafBoundary && v.Win == game.Uncertain {
		v.Task = true
		return 1
	}
	marked := 0
	for _, e := range v.Out {
		marked += markAlg(e.To)
	}
	return marked
}

func markAlg(v *dag.AlgVertex) int {
	if v.Visited {
		return 0
	}
	v.Visited = true
	marked := 0
	for _, e := range v.Out {
		marked += markAdv(e.To)
	}
	return marked
}

// TaskID returns the id of the task sitting at the vertex, or -1.
func (c *Collection) TaskID(v *dag.AdvVertex) int {
	if id, ok := c.ByPos[v.BC.StateHash()]; ok {
		return id
	}
	return -1
}
