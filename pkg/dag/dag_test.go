package dag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohm/binstretch/pkg/game"
)

func testTables(t *testing.T) *game.Tables {
	t.Helper()
	return game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
}

// buildSmallProof constructs by hand the two-ply graph
// root --2--> alg --bin1--> child.
func buildSmallProof(t *testing.T, z *game.Tables) *Dag {
	t.Helper()
	d := New(z)
	root := d.AddRoot(game.NewBinConf(z))

	alg, _ := d.AttachAdvMove(root, 2)
	bc := root.BC.Clone()
	bc.AssignAndRehash(2, 1)
	adv, _ := d.AttachAlgMove(alg, bc, 1, 0)
	adv.Win = game.Adv
	return d
}

func TestAttachDeduplicates(t *testing.T) {
	z := testTables(t)
	d := New(z)
	root := d.AddRoot(game.NewBinConf(z))

	alg1, e1 := d.AttachAdvMove(root, 2)
	alg2, e2 := d.AttachAdvMove(root, 2)
	assert.Same(t, alg1, alg2)
	assert.Same(t, e1, e2)
	assert.Len(t, root.Out, 1)

	alg3, _ := d.AttachAdvMove(root, 1)
	assert.NotSame(t, alg1, alg3)
	assert.Len(t, root.Out, 2)

	// Two placements reaching the same sorted configuration merge.
	bcA := root.BC.Clone()
	bcA.AssignAndRehash(2, 2)
	advA, _ := d.AttachAlgMove(alg1, bcA, 2, 0)

	bcB := root.BC.Clone()
	bcB.AssignAndRehash(2, 3)
	advB, _ := d.AttachAlgMove(alg1, bcB, 3, 0)
	assert.Same(t, advA, advB)
	assert.Len(t, alg1.Out, 2)
}

func TestRemoveOutedgesExcept(t *testing.T) {
	z := testTables(t)
	d := New(z)
	root := d.AddRoot(game.NewBinConf(z))
	for _, item := range []int{1, 2, 3} {
		d.AttachAdvMove(root, item)
	}
	require.Equal(t, 1, d.NumAdvVertices())
	require.Equal(t, 3, d.NumAlgVertices())

	d.RemoveOutedgesExcept(root, 2)
	require.Len(t, root.Out, 1)
	assert.Equal(t, 2, root.Out[0].Item)
	// Orphaned children are deleted.
	assert.Equal(t, 1, d.NumAlgVertices())
}

func TestCascadeRemoval(t *testing.T) {
	z := testTables(t)
	d := buildSmallProof(t, z)
	require.Equal(t, 2, d.NumAdvVertices())
	require.Equal(t, 1, d.NumAlgVertices())

	d.RemoveAdvOutedges(d.Root)
	assert.Equal(t, 1, d.NumAdvVertices())
	assert.Equal(t, 0, d.NumAlgVertices())
}

func TestEraseUnreachable(t *testing.T) {
	z := testTables(t)
	d := buildSmallProof(t, z)

	// A stray vertex not connected to the root.
	stray := game.NewBinConf(z)
	stray.AssignAndRehash(1, 1)
	d.AddAdvVertex(stray)
	require.Equal(t, 3, d.NumAdvVertices())

	d.EraseUnreachable()
	assert.Equal(t, 2, d.NumAdvVertices())
	assert.Equal(t, 1, d.NumAlgVertices())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	z := testTables(t)
	d := buildSmallProof(t, z)
	d.Root.Sapling = true

	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf, []int{2}))
	text := buf.String()
	assert.Contains(t, text, "strict digraph")
	assert.Contains(t, text, "overlap = none;")
	assert.Contains(t, text, "1 initial: 2")
	assert.Contains(t, text, "player=adv")
	assert.Contains(t, text, "[next=2]")
	assert.Contains(t, text, "[bin=1]")

	res, err := Load(z, strings.NewReader(text))
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, []int{2}, res.InitialItems)
	assert.Equal(t, 2, res.Dag.NumAdvVertices())
	assert.Equal(t, 1, res.Dag.NumAlgVertices())
	require.NotNil(t, res.Dag.Root)
	assert.True(t, res.Dag.Root.Sapling)
	assert.True(t, res.Dag.Root.BC.Equal(d.Root.BC))
}

func TestLoadPartialAndPopulate(t *testing.T) {
	z := testTables(t)
	text := `strict digraph binstretch_dag {
overlap = none;
0 initial:
1 [player=adv];
2 [player=alg,next_item=2];
3 [player=adv];
1 -> 2 [next=2]
2 -> 3 [bin=3]
}
`
	res, err := Load(z, strings.NewReader(text))
	require.NoError(t, err)
	assert.True(t, res.Partial)

	require.NoError(t, res.PopulateFromRoot(game.NewBinConf(z)))
	assert.False(t, res.Partial)

	child := res.Dag.Root.Out[0].To.Out[0].To
	assert.Equal(t, []int{2, 0, 0}, child.BC.Loads[1:])
	assert.Equal(t, 1, child.BC.Items[2])
	require.NoError(t, child.BC.Consistency())
}

func TestLoadMalformedReportsLine(t *testing.T) {
	z := testTables(t)
	text := "strict digraph binstretch_dag {\noverlap = none;\ngarbage here\n}\n"
	_, err := Load(z, strings.NewReader(text))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDag)
	assert.Contains(t, err.Error(), "line 3")

	_, err = Load(z, strings.NewReader("1 [player=adv];\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header")
}

func TestCheckProof(t *testing.T) {
	z := testTables(t)
	d := buildSmallProof(t, z)

	// The deepest adversary vertex has no committed move yet, so the
	// graph is not a complete proof.
	err := d.CheckProof()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentProof)

	// Marking it as a boundary defers its proof elsewhere.
	for _, v := range d.AdvByID {
		if len(v.Out) == 0 {
			v.Leaf = LeafBoundary
		}
	}
	assert.NoError(t, d.CheckProof())

	// An edge whose label disagrees with the child's pending item is
	// rejected.
	d.Root.Out[0].Item = 1
	err = d.CheckProof()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentProof)
}
