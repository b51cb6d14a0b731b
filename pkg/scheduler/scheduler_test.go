package scheduler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohm/binstretch/internal/config"
	"github.com/bohm/binstretch/pkg/dag"
	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/tasks"
)

func smallGameConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Game = config.GameConfig{Bins: 3, R: 4, S: 3}
	cfg.Cache.StateLogBytes = 18
	cfg.Cache.GuaranteeLogBytes = 18
	cfg.Scheduler.Overseers = 1
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.TickMillis = 1
	cfg.Scheduler.TickTasks = 1
	cfg.Scheduler.BatchSize = 8
	cfg.Scheduler.BatchThreshold = 4
	return cfg
}

func TestUpdaterPropagation(t *testing.T) {
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	d := dag.New(z)
	root := d.AddRoot(game.NewBinConf(z))

	// Two candidate moves; each leads through an algorithm vertex to
	// boundary tasks.
	makeBranch := func(item, bin int) *dag.AdvVertex {
		alg, _ := d.AttachAdvMove(root, item)
		bc := root.BC.Clone()
		bc.AssignAndRehash(item, bin)
		child, _ := d.AttachAlgMove(alg, bc, bin, 0)
		child.Task = true
		child.Leaf = dag.LeafBoundary
		return child
	}
	t0 := makeBranch(1, 1)
	t1 := makeBranch(2, 1)

	col := tasks.Collect(d, root)
	require.Len(t, col.Tasks, 2)
	tstatus := tasks.NewStatusArray(2)
	u := NewUpdater(d, col, tstatus)

	// Nothing decided yet.
	assert.Equal(t, game.Uncertain, u.Update(root))

	// One branch decides for the adversary: the root follows and the
	// other branch is pruned.
	id0 := col.TaskID(t0)
	id1 := col.TaskID(t1)
	require.NotEqual(t, -1, id0)
	require.NotEqual(t, -1, id1)

	tstatus.Store(id0, tasks.AdvWin)
	assert.Equal(t, game.Adv, u.Update(root))
	assert.Equal(t, game.Adv, root.Win)
	require.Len(t, root.Out, 1)
	assert.Equal(t, tasks.Pruned, tstatus.Load(id1))
}

func TestUpdaterAlgWinPrunesBranch(t *testing.T) {
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	d := dag.New(z)
	root := d.AddRoot(game.NewBinConf(z))

	alg, _ := d.AttachAdvMove(root, 1)
	bc := root.BC.Clone()
	bc.AssignAndRehash(1, 1)
	child, _ := d.AttachAlgMove(alg, bc, 1, 0)
	child.Task = true
	child.Leaf = dag.LeafBoundary

	col := tasks.Collect(d, root)
	tstatus := tasks.NewStatusArray(1)
	tstatus.Store(0, tasks.AlgWin)

	u := NewUpdater(d, col, tstatus)
	assert.Equal(t, game.Alg, u.Update(root))
	assert.Equal(t, game.Alg, root.Win)
	assert.Empty(t, root.Out)
}

// The empty start: the adversary wins the 4/3 game on three bins with
// the classical three-item escalation. Running generation to full
// depth yields the canonical proof graph.
func TestSolveEmptyRootGenerationOnly(t *testing.T) {
	cfg := smallGameConfig()
	cfg.Search.Boundary = "depth"
	cfg.Search.TaskDepth = 50 // deeper than any play of this game

	vic, queen, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, game.Adv, vic)

	require.NoError(t, queen.Dag.CheckProof())
	assert.Equal(t, 7, queen.Dag.NumAdvVertices())
	assert.Equal(t, 7, queen.Dag.NumAlgVertices())

	// The saved proof loads back and re-verifies: the path verify-dag
	// takes over a file written by search --save.
	var buf bytes.Buffer
	require.NoError(t, queen.Dag.Save(&buf, nil))
	res, err := dag.Load(game.NewTables(cfg.Game.Params()), strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.False(t, res.Partial)
	require.NoError(t, res.Dag.CheckProof())
	assert.Equal(t, 7, res.Dag.NumAdvVertices())
	assert.Equal(t, 7, res.Dag.NumAlgVertices())
}

// The same game solved through the full task machinery: cut at two
// plies, ship tasks to workers, fold results back.
func TestSolveEmptyRootWithTasks(t *testing.T) {
	cfg := smallGameConfig()
	cfg.Search.Boundary = "depth"
	cfg.Search.TaskDepth = 2

	vic, queen, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, game.Adv, vic)
	require.NotNil(t, queen.Dag.Root)
	assert.Equal(t, game.Adv, queen.Dag.Root.Win)
	require.NoError(t, queen.Dag.CheckProof())
}

// With regrowing enabled, proven task leaves are re-expanded into
// explicit subtrees: the finished proof carries no bare certificates
// within the regrow budget.
func TestSolveWithRegrow(t *testing.T) {
	cfg := smallGameConfig()
	cfg.Search.Boundary = "depth"
	cfg.Search.TaskDepth = 2
	cfg.Search.RegrowLimit = 1

	vic, queen, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, game.Adv, vic)
	require.NoError(t, queen.Dag.CheckProof())

	for _, v := range queen.Dag.AdvByID {
		if v.Task && v.Win == game.Adv && len(v.Out) == 0 {
			assert.Greater(t, v.RegrowLevel, cfg.Search.RegrowLimit)
		}
	}
}

// Forcing the first item through sequencing produces one sapling per
// distinct reply and the same verdict.
func TestSolveWithInitialSequence(t *testing.T) {
	cfg := smallGameConfig()
	cfg.Search.Boundary = "depth"
	cfg.Search.TaskDepth = 50
	cfg.Search.InitialSequence = []int{1}

	vic, _, err := Run(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, game.Adv, vic)
}

func TestBuildSaplings(t *testing.T) {
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	d := dag.New(z)
	root := d.AddRoot(game.NewBinConf(z))

	// No sequence: the root itself is the only sapling.
	saplings, err := BuildSaplings(d, root, nil)
	require.NoError(t, err)
	require.Len(t, saplings, 1)
	assert.True(t, saplings[0].Sapling)

	// A two-item prefix branches over the algorithm's replies: after
	// 1,1 the replies merge into (2,0,0) and (1,1,0).
	d2 := dag.New(z)
	root2 := d2.AddRoot(game.NewBinConf(z))
	saplings, err = BuildSaplings(d2, root2, []int{1, 1})
	require.NoError(t, err)
	assert.Len(t, saplings, 2)
	assert.Equal(t, dag.StateFixed, root2.State)

	// An infeasible sequence is a user error.
	d3 := dag.New(z)
	root3 := d3.AddRoot(game.NewBinConf(z))
	_, err = BuildSaplings(d3, root3, []int{3, 3, 3, 3})
	assert.Error(t, err)
}

func TestPurgeSapling(t *testing.T) {
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	d := dag.New(z)
	root := d.AddRoot(game.NewBinConf(z))
	alg, _ := d.AttachAdvMove(root, 1)
	bc := root.BC.Clone()
	bc.AssignAndRehash(1, 1)
	d.AttachAlgMove(alg, bc, 1, 0)
	root.Win = game.Alg

	purgeSapling(d, root)
	assert.Empty(t, root.Out)
	assert.Equal(t, game.Uncertain, root.Win)
	assert.Equal(t, 1, d.NumAdvVertices())
	assert.Equal(t, 0, d.NumAlgVertices())
}
