package tasks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/game"
)

func testTables(t *testing.T) *game.Tables {
	t.Helper()
	return game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
}

func TestFlattenRoundTrip(t *testing.T) {
	z := testTables(t)
	bc := game.NewBinConf(z)
	bc.AssignAndRehash(2, 1)
	bc.AssignAndRehash(1, 2)

	task := &Task{BC: bc, RegrowLevel: 1, ExpansionDepth: 2}
	flat := task.Flatten()

	back, err := Unflatten(z, flat)
	require.NoError(t, err)
	assert.True(t, back.BC.Equal(bc))
	assert.Equal(t, 1, back.RegrowLevel)
	assert.Equal(t, 2, back.ExpansionDepth)
	assert.Equal(t, bc.LoadHash, back.BC.LoadHash)

	// A corrupted hash marks diverging Zobrist tables.
	flat.ItemHash ^= 1
	_, err = Unflatten(z, flat)
	assert.Error(t, err)

	// Dimension mismatch against a different game.
	z2 := game.NewTables(game.Params{Bins: 2, R: 4, S: 3})
	_, err = Unflatten(z2, task.Flatten())
	assert.Error(t, err)
}

func TestStatusArray(t *testing.T) {
	arr := NewStatusArray(4)
	assert.Equal(t, Available, arr.Load(2))
	arr.Store(2, InProgress)
	assert.Equal(t, InProgress, arr.Load(2))
	assert.True(t, arr.CompareAndSwap(2, InProgress, AdvWin))
	assert.False(t, arr.CompareAndSwap(2, InProgress, AlgWin))
	assert.Equal(t, AdvWin, arr.Load(2))

	assert.Equal(t, game.Adv, AdvWin.Victory())
	assert.Equal(t, game.Alg, AlgWin.Victory())
	assert.Equal(t, game.Uncertain, Pruned.Victory())
	assert.Equal(t, AdvWin, StatusFromVictory(game.Adv))
	assert.Equal(t, Irrelevant, StatusFromVictory(game.Irrelevant))
}

func TestSemiAtomicQueue(t *testing.T) {
	q := NewSemiAtomicQueue(100)
	assert.Equal(t, -1, q.PopIfAble())

	var got []int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for len(got) < 100 {
			if id := q.PopIfAble(); id != -1 {
				got = append(got, id)
			}
		}
	}()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, id := range got {
		assert.Equal(t, i, id)
	}

	q.Reset(10)
	assert.Equal(t, -1, q.PopIfAble())
}

func TestBoundaryPredicates(t *testing.T) {
	z := testTables(t)
	root := game.NewBinConf(z)

	bc := game.NewBinConf(z)
	bc.AssignAndRehash(2, 1)
	bc.AssignAndRehash(2, 2)

	mixed, err := NewBoundary(BoundaryMixed, 4, 6, root, 0)
	require.NoError(t, err)
	assert.True(t, mixed.PossibleTask(bc, 2, 2))  // load gain 4 >= 4
	assert.True(t, mixed.PossibleTask(root, 6, 2)) // depth 6 >= 6
	assert.False(t, mixed.PossibleTask(root, 2, 2))

	depth, err := NewBoundary(BoundaryDepth, 4, 2, root, 0)
	require.NoError(t, err)
	assert.True(t, depth.PossibleTask(root, 2, 3))
	assert.False(t, depth.PossibleTask(bc, 1, 3))

	load, err := NewBoundary(BoundaryLoad, 3, 1, root, 0)
	require.NoError(t, err)
	assert.True(t, load.PossibleTask(bc, 0, 3))
	assert.False(t, load.PossibleTask(root, 9, 3))

	adj, err := NewBoundary(BoundarySizeAdjusted, 0, 2, root, 0)
	require.NoError(t, err)
	// Small largest item pushes the cut three plies deeper.
	assert.False(t, adj.PossibleTask(bc, 2, 1))
	assert.True(t, adj.PossibleTask(bc, 5, 1))
	assert.True(t, adj.PossibleTask(bc, 2, 3))

	_, err = NewBoundary("bogus", 0, 0, root, 0)
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	z := testTables(t)
	d := dag.New(z)
	root := d.AddRoot(game.NewBinConf(z))

	alg, _ := d.AttachAdvMove(root, 1)
	bc := root.BC.Clone()
	bc.AssignAndRehash(1, 1)
	child, _ := d.AttachAlgMove(alg, bc, 1, 0)
	child.Task = true
	child.Leaf = dag.LeafBoundary

	col := Collect(d, root)
	require.Len(t, col.Tasks, 1)
	assert.True(t, col.Tasks[0].BC.Equal(child.BC))
	assert.Equal(t, 0, col.TaskID(child))
	assert.Equal(t, -1, col.TaskID(root))
}
