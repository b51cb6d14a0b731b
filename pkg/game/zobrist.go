package game

import "math/rand"

// zobristSeed is fixed so that every process in a computation generates
// identical tables. Tasks travel between processes as bin
// configurations plus hashes, so the tables must agree everywhere.
const zobristSeed = 182371293

// Tables holds the Zobrist tables for one set of game parameters.
//
// loads is indexed by bin position and load: entry (i, l) sits at
// i*(R+1)+l for i in 1..Bins and l in 0..R. items is indexed by item
// size and multiplicity: entry (s, c) at s*(MaxItems+1)+c. The zero
// rows are generated too, which lets a hash "unhash" a zero count.
// low and next are small auxiliary tables mixed into the two derived
// position hashes (state hash and algorithm-vertex hash).
type Tables struct {
	params Params

	loads []uint64
	items []uint64
	low   []uint64
	next  []uint64
}

// NewTables generates the Zobrist tables for p from the fixed seed.
func NewTables(p Params) *Tables {
	rng := rand.New(rand.NewSource(zobristSeed))

	t := &Tables{
		params: p,
		loads:  make([]uint64, (p.Bins+1)*(p.R+1)),
		items:  make([]uint64, (p.S+1)*(p.MaxItems()+1)),
		low:    make([]uint64, p.S+1),
		next:   make([]uint64, p.S+1),
	}

	for i := range t.loads {
		t.loads[i] = rng.Uint64()
	}
	for i := range t.items {
		t.items[i] = rng.Uint64()
	}
	for i := range t.low {
		t.low[i] = rng.Uint64()
	}
	for i := range t.next {
		t.next[i] = rng.Uint64()
	}
	return t
}

// Params returns the game parameters the tables were generated for.
func (t *Tables) Params() Params {
	return t.params
}

func (t *Tables) loadEntry(pos, load int) uint64 {
	return t.loads[pos*(t.params.R+1)+load]
}

func (t *Tables) itemEntry(size, count int) uint64 {
	return t.items[size*(t.params.MaxItems()+1)+count]
}
