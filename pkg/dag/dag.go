// Package dag stores the game state graph: adversary and algorithm
// vertices joined by item- and bin-labelled edges. The position graph
// is a DAG rather than a tree (different item orderings reach the same
// configuration), so vertices are deduplicated by position hash during
// generation. The queen owns the single instance; workers never touch
// it.
package dag

import (
	"fmt"

	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/heur"
)

// VertState tracks where a vertex stands in the generate/expand cycle.
type VertState int

const (
	StateFresh VertState = iota
	StateExpanding
	StateExpandable
	StateFixed
	StateFinished
)

func (s VertState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateExpanding:
		return "expanding"
	case StateExpandable:
		return "expandable"
	case StateFixed:
		return "fixed"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// LeafType classifies why a vertex has no (or prescribed) descendants.
type LeafType int

const (
	LeafNone LeafType = iota
	LeafBoundary
	LeafTrue
	LeafHeuristical
	LeafAssumption
)

// AdvVertex is a position where the adversary picks the next item.
type AdvVertex struct {
	BC  *game.BinConf
	ID  uint64
	Out []*AdvOutedge
	In  []*AlgOutedge

	Win     game.Victory
	State   VertState
	Leaf    LeafType
	Visited bool

	Task    bool
	Sapling bool

	HeurStrategy heur.Strategy

	RegrowLevel    int
	ExpansionDepth int

	// OldName preserves the vertex id found in a loaded file.
	OldName int
}

// AlgVertex is a position where the algorithm must place NextItem.
type AlgVertex struct {
	BC       *game.BinConf
	NextItem int
	ID       uint64
	Out      []*AlgOutedge
	In       []*AdvOutedge

	Win     game.Victory
	State   VertState
	Leaf    LeafType
	Visited bool

	// Optimal carries an offline packing hint when loaded from a
	// file; the search itself never consults it.
	Optimal string

	OldName int
}

// AdvOutedge leads from an adversary vertex to the algorithm vertex
// where the sent item is pending placement.
type AdvOutedge struct {
	From *AdvVertex
	To   *AlgVertex
	Item int
	ID   uint64
}

// AlgOutedge leads from an algorithm vertex to the adversary position
// reached by placing the pending item into TargetBin.
type AlgOutedge struct {
	From      *AlgVertex
	To        *AdvVertex
	TargetBin int
	ID        uint64
}

// Dag is the vertex store with its two hash indices (deduplication
// during generation) and two id indices (stable iteration).
type Dag struct {
	z *game.Tables

	vertexCounter uint64
	edgeCounter   uint64

	AdvByHash map[uint64]*AdvVertex
	AlgByHash map[uint64]*AlgVertex
	AdvByID   map[uint64]*AdvVertex
	AlgByID   map[uint64]*AlgVertex

	Root *AdvVertex
}

// New returns an empty DAG bound to the Zobrist tables.
func New(z *game.Tables) *Dag {
	return &Dag{
		z:         z,
		AdvByHash: make(map[uint64]*AdvVertex),
		AlgByHash: make(map[uint64]*AlgVertex),
		AdvByID:   make(map[uint64]*AdvVertex),
		AlgByID:   make(map[uint64]*AlgVertex),
	}
}

// Tables returns the Zobrist tables the DAG hashes with.
func (d *Dag) Tables() *game.Tables { return d.z }

// AddRoot installs the root adversary vertex for the configuration.
func (d *Dag) AddRoot(bc *game.BinConf) *AdvVertex {
	root := d.AddAdvVertex(bc)
	d.Root = root
	return root
}

// AddAdvVertex creates an adversary vertex for a copy of bc and indexes
// it. The caller is responsible for having checked AdvByHash first;
// duplicate hashes overwrite the index entry.
func (d *Dag) AddAdvVertex(bc *game.BinConf) *AdvVertex {
	d.vertexCounter++
	v := &AdvVertex{
		BC:      bc.Clone(),
		ID:      d.vertexCounter,
		Win:     game.Uncertain,
		OldName: -1,
	}
	d.AdvByHash[v.BC.StateHash()] = v
	d.AdvByID[v.ID] = v
	return v
}

// AddAlgVertex creates an algorithm vertex for a copy of bc with the
// pending item and indexes it by the parent position's algorithm hash.
func (d *Dag) AddAlgVertex(bc *game.BinConf, nextItem int) *AlgVertex {
	d.vertexCounter++
	v := &AlgVertex{
		BC:       bc.Clone(),
		NextItem: nextItem,
		ID:       d.vertexCounter,
		Win:      game.Uncertain,
		OldName:  -1,
	}
	d.AlgByHash[v.BC.AlgHash(nextItem)] = v
	d.AlgByID[v.ID] = v
	return v
}

// AddAdvOutedge links an adversary vertex to the algorithm vertex
// reached by sending item.
func (d *Dag) AddAdvOutedge(from *AdvVertex, to *AlgVertex, item int) *AdvOutedge {
	d.edgeCounter++
	e := &AdvOutedge{From: from, To: to, Item: item, ID: d.edgeCounter}
	from.Out = append(from.Out, e)
	to.In = append(to.In, e)
	return e
}

// AddAlgOutedge links an algorithm vertex to the adversary vertex
// reached by placing into bin.
func (d *Dag) AddAlgOutedge(from *AlgVertex, to *AdvVertex, bin int) *AlgOutedge {
	d.edgeCounter++
	e := &AlgOutedge{From: from, To: to, TargetBin: bin, ID: d.edgeCounter}
	from.Out = append(from.Out, e)
	to.In = append(to.In, e)
	return e
}

// AttachAdvMove finds or creates the algorithm vertex reached from adv
// by sending item, plus the connecting edge. Deduplicates by the
// (position hash, next item) pair.
func (d *Dag) AttachAdvMove(adv *AdvVertex, item int) (*AlgVertex, *AdvOutedge) {
	if alg, ok := d.AlgByHash[adv.BC.AlgHash(item)]; ok {
		for _, e := range adv.Out {
			if e.Item == item {
				return alg, e
			}
		}
		return alg, d.AddAdvOutedge(adv, alg, item)
	}
	alg := d.AddAlgVertex(adv.BC, item)
	return alg, d.AddAdvOutedge(adv, alg, item)
}

// AttachAlgMove finds or creates the adversary vertex for the
// configuration after placement (already applied to bc) reached from
// alg via targetBin, plus the connecting edge.
func (d *Dag) AttachAlgMove(alg *AlgVertex, bc *game.BinConf, targetBin, regrowLevel int) (*AdvVertex, *AlgOutedge) {
	if adv, ok := d.AdvByHash[bc.StateHash()]; ok {
		for _, e := range alg.Out {
			if e.TargetBin == targetBin {
				return adv, e
			}
		}
		return adv, d.AddAlgOutedge(alg, adv, targetBin)
	}
	adv := d.AddAdvVertex(bc)
	adv.RegrowLevel = regrowLevel + 1
	return adv, d.AddAlgOutedge(alg, adv, targetBin)
}

// ClearVisited resets the DFS marks on every vertex.
func (d *Dag) ClearVisited() {
	for _, v := range d.AdvByID {
		v.Visited = false
	}
	for _, v := range d.AlgByID {
		v.Visited = false
	}
}

// NumAdvVertices returns the adversary vertex count.
func (d *Dag) NumAdvVertices() int { return len(d.AdvByID) }

// NumAlgVertices returns the algorithm vertex count.
func (d *Dag) NumAlgVertices() int { return len(d.AlgByID) }

func (v *AdvVertex) String() string {
	return fmt.Sprintf("adv %d [%s] win=%s", v.ID, v.BC.String(), v.Win)
}

func (v *AlgVertex) String() string {
	return fmt.Sprintf("alg %d [%s] next=%d win=%s", v.ID, v.BC.String(), v.NextItem, v.Win)
}
