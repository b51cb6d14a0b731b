package dynprog

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohm/binstretch/pkg/game"
)

func smallGame(t *testing.T) *game.Tables {
	t.Helper()
	p := game.Params{Bins: 3, R: 4, S: 3}
	require.NoError(t, p.Validate())
	return game.NewTables(p)
}

// confWithItems builds a configuration holding the given histogram
// (index 0 = size 1), packed arbitrarily; only the multiset matters to
// the offline DP.
func confWithItems(z *game.Tables, counts ...int) *game.BinConf {
	bc := game.NewBinConf(z)
	for i, c := range counts {
		if c > 0 {
			bc.AddItemVirtual(i+1, c)
		}
	}
	return bc
}

func TestMaxFeasibleEmpty(t *testing.T) {
	z := smallGame(t)
	sc := NewScratch(1)
	assert.Equal(t, 3, MaxFeasible(game.NewBinConf(z), sc))
}

func TestFullBinsOfS(t *testing.T) {
	z := smallGame(t)
	sc := NewScratch(1)

	// Bins copies of size S fill every bin exactly: feasible, nothing
	// can be added.
	bc := confWithItems(z, 0, 0, 3)
	assert.Equal(t, 0, MaxFeasible(bc, sc))
	assert.True(t, Feasible(bc, sc))

	// One more copy than bins cannot pack.
	over := confWithItems(z, 0, 0, 4)
	assert.Equal(t, Infeasible, MaxFeasible(over, sc))
	assert.False(t, Feasible(over, sc))
}

func TestMaxFeasibleKnownValues(t *testing.T) {
	z := smallGame(t)
	sc := NewScratch(1)

	// One size-3 item leaves two empty bins.
	assert.Equal(t, 3, MaxFeasible(confWithItems(z, 0, 0, 1), sc))

	// Three 2s pack one per bin, leaving slack 1 everywhere.
	assert.Equal(t, 1, MaxFeasible(confWithItems(z, 0, 3, 0), sc))

	// 2+2+2+1: the 1 shares a bin with a 2, slack 1 remains elsewhere.
	assert.Equal(t, 1, MaxFeasible(confWithItems(z, 1, 3, 0), sc))

	// Only ones: remaining volume bounded by a single bin's capacity.
	assert.Equal(t, 3, MaxFeasible(confWithItems(z, 4, 0, 0), sc))
	assert.Equal(t, 1, MaxFeasible(confWithItems(z, 8, 0, 0), sc))
	assert.Equal(t, 0, MaxFeasible(confWithItems(z, 9, 0, 0), sc))
	assert.Equal(t, Infeasible, MaxFeasible(confWithItems(z, 10, 0, 0), sc))
}

// bruteForceFeasible checks packability by exhaustive assignment.
func bruteForceFeasible(p game.Params, items []int) bool {
	var flat []int
	for s := 1; s <= p.S; s++ {
		for k := 0; k < items[s]; k++ {
			flat = append(flat, s)
		}
	}
	loads := make([]int, p.Bins)
	var rec func(i int) bool
	rec = func(i int) bool {
		if i == len(flat) {
			return true
		}
		for b := 0; b < p.Bins; b++ {
			if loads[b]+flat[i] <= p.S {
				loads[b] += flat[i]
				if rec(i + 1) {
					return true
				}
				loads[b] -= flat[i]
			}
		}
		return false
	}
	return rec(0)
}

func TestDPAgainstBruteForce(t *testing.T) {
	p := game.Params{Bins: 3, R: 4, S: 3}
	z := game.NewTables(p)
	sc := NewScratch(7)

	properties := gopter.NewProperties(nil)

	properties.Property("DP matches exhaustive packing", prop.ForAll(
		func(c1, c2, c3 int) bool {
			bc := confWithItems(z, c1, c2, c3)
			items := []int{0, c1, c2, c3}
			return Feasible(bc, sc) == bruteForceFeasible(p, items)
		},
		gen.IntRange(0, 5), gen.IntRange(0, 4), gen.IntRange(0, 4),
	))

	properties.Property("max-feasible is the largest addable size", prop.ForAll(
		func(c1, c2, c3 int) bool {
			bc := confWithItems(z, c1, c2, c3)
			got := MaxFeasible(bc, sc)
			want := Infeasible
			if bruteForceFeasible(p, []int{0, c1, c2, c3}) {
				want = 0
				for x := p.S; x >= 1; x-- {
					bc.AddItemVirtual(x, 1)
					fits := Feasible(bc, sc)
					bc.RemoveItemVirtual(x, 1)
					if fits {
						want = x
						break
					}
				}
			}
			return got == want
		},
		gen.IntRange(0, 5), gen.IntRange(0, 4), gen.IntRange(0, 4),
	))

	properties.Property("feasibility is monotone under item removal", prop.ForAll(
		func(c1, c2, c3, drop int) bool {
			bc := confWithItems(z, c1, c2, c3)
			if !Feasible(bc, sc) {
				return true
			}
			size := drop%p.S + 1
			if bc.Items[size] == 0 {
				return true
			}
			bc.RemoveItemVirtual(size, 1)
			return Feasible(bc, sc)
		},
		gen.IntRange(0, 4), gen.IntRange(0, 4), gen.IntRange(0, 4), gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestAllPackings(t *testing.T) {
	z := smallGame(t)
	sc := NewScratch(3)

	packings := AllPackings(confWithItems(z, 0, 3, 0), sc)
	require.NotEmpty(t, packings)
	for _, lc := range packings {
		assert.Equal(t, 6, lc.LoadSum())
		for i := 1; i <= 3; i++ {
			assert.LessOrEqual(t, lc.Loads[i], 3)
		}
	}

	assert.Empty(t, AllPackings(confWithItems(z, 0, 0, 4), sc))
}

func TestBestFitWitness(t *testing.T) {
	z := smallGame(t)

	w, ok := BestFitWitness(confWithItems(z, 0, 3, 0))
	require.True(t, ok)
	assert.Equal(t, 1, w)

	w, ok = BestFitWitness(game.NewBinConf(z))
	require.True(t, ok)
	assert.Equal(t, 3, w)

	_, ok = BestFitWitness(confWithItems(z, 0, 0, 4))
	assert.False(t, ok)
}

func TestOnlineLoads(t *testing.T) {
	z := smallGame(t)
	bc := game.NewBinConf(z)
	ol := NewOnlineLoads(bc)
	assert.Equal(t, 3, ol.Witness())

	pos1, of1 := ol.Assign(3)
	assert.False(t, of1)
	assert.Equal(t, 3, ol.Witness())

	pos2, of2 := ol.Assign(3)
	pos3, of3 := ol.Assign(3)
	assert.Equal(t, 0, ol.Witness())

	// A fourth size-3 item cannot fit within S anywhere; the witness
	// collapses until the overflow is reverted.
	pos4, of4 := ol.Assign(3)
	assert.True(t, of4)
	assert.Equal(t, 0, ol.Witness())
	ol.Unassign(3, pos4, of4)
	assert.Equal(t, 0, ol.Witness())

	ol.Unassign(3, pos3, of3)
	ol.Unassign(3, pos2, of2)
	ol.Unassign(3, pos1, of1)
	assert.Equal(t, 3, ol.Witness())
	assert.Equal(t, 0, ol.LoadSum())
}
