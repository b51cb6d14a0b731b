package cache

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohm/binstretch/pkg/game"
)

func testConf(t *testing.T, items ...int) *game.BinConf {
	t.Helper()
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	bc := game.NewBinConf(z)
	for i, c := range items {
		if c > 0 {
			bc.AddItemVirtual(i+1, c)
		}
	}
	return bc
}

func TestGuaranteeInsertLookup(t *testing.T) {
	c, err := NewGuaranteeCache(16)
	require.NoError(t, err)

	bc := testConf(t, 1, 2, 0)
	found, _ := c.Lookup(bc)
	assert.False(t, found)

	c.Insert(bc, true)
	found, feasible := c.Lookup(bc)
	assert.True(t, found)
	assert.True(t, feasible)

	// Re-inserting the same key counts as a duplicate, not a new slot.
	c.Insert(bc, true)
	assert.Equal(t, uint64(1), c.Meas().Snapshot().InsertDuplicate)

	other := testConf(t, 0, 1, 1)
	c.Insert(other, false)
	found, feasible = c.Lookup(other)
	assert.True(t, found)
	assert.False(t, feasible)

	// The first key still reads back its own value.
	found, feasible = c.Lookup(bc)
	assert.True(t, found)
	assert.True(t, feasible)
}

func TestGuaranteeCacheSizing(t *testing.T) {
	c, err := NewGuaranteeCache(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<13, c.Size())

	_, err = NewGuaranteeCache(2)
	assert.Error(t, err)
	_, err = NewGuaranteeCache(60)
	assert.Error(t, err)
}

// A stream of inserts and lookups never yields a value other than the
// last one written for the key (the 63-bit collision rate is far too
// small to exercise here).
func TestGuaranteeNoWrongValues(t *testing.T) {
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	c, err := NewGuaranteeCache(20)
	require.NoError(t, err)

	written := make(map[uint64]bool)

	properties := gopter.NewProperties(nil)
	properties.Property("lookup returns the written value", prop.ForAll(
		func(c1, c2, c3 int, feasible bool) bool {
			bc := game.NewBinConf(z)
			for i, cnt := range []int{c1, c2, c3} {
				if cnt > 0 {
					bc.AddItemVirtual(i+1, cnt)
				}
			}
			c.Insert(bc, feasible)
			written[bc.ItemOnlyHash()] = feasible

			found, got := c.Lookup(bc)
			if !found {
				// Eviction within the probe window is legitimate.
				return true
			}
			return got == written[bc.ItemOnlyHash()]
		},
		gen.IntRange(0, 6), gen.IntRange(0, 6), gen.IntRange(0, 6), gen.Bool(),
	))
	properties.TestingRun(t)
}

func TestGuaranteeRandomEviction(t *testing.T) {
	// A tiny table (16 slots) overflows quickly; inserts must keep
	// succeeding via random replacement and count the evictions.
	c, err := NewGuaranteeCache(7)
	require.NoError(t, err)
	z := game.NewTables(game.Params{Bins: 3, R: 19, S: 14})

	for i := 0; i <= 13; i++ {
		for j := 0; j <= 13; j++ {
			bc := game.NewBinConf(z)
			bc.AddItemVirtual(i%14+1, 1)
			bc.AddItemVirtual(j%14+1, 1)
			c.Insert(bc, true)
		}
	}
	m := c.Meas().Snapshot()
	assert.Greater(t, m.InsertRandom, uint64(0))
}

func TestStateCacheValues(t *testing.T) {
	c, err := NewStateCache(16)
	require.NoError(t, err)

	found, _ := c.Lookup(0xdeadbeef)
	assert.False(t, found)

	c.Insert(0xdeadbeef, game.Adv)
	found, win := c.Lookup(0xdeadbeef)
	assert.True(t, found)
	assert.Equal(t, game.Adv, win)

	c.Insert(0xcafef00d, game.Alg)
	found, win = c.Lookup(0xcafef00d)
	assert.True(t, found)
	assert.Equal(t, game.Alg, win)

	// Undecided values are never stored.
	c.Insert(0x1234, game.Uncertain)
	found, _ = c.Lookup(0x1234)
	assert.False(t, found)
}

func TestStateCacheClears(t *testing.T) {
	c, err := NewStateCache(16)
	require.NoError(t, err)

	advKeys := []uint64{0x1111111111111111, 0x3333333333333333}
	algKeys := []uint64{0x5555555555555555, 0x7777777777777777}
	for _, k := range advKeys {
		c.Insert(k, game.Adv)
	}
	for _, k := range algKeys {
		c.Insert(k, game.Alg)
	}

	// Relaxing monotonicity keeps adversary wins, drops algorithm
	// wins.
	c.ClearAlgWins(3)
	for _, k := range advKeys {
		found, win := c.Lookup(k)
		assert.True(t, found)
		assert.Equal(t, game.Adv, win)
	}
	for _, k := range algKeys {
		found, _ := c.Lookup(k)
		assert.False(t, found)
	}

	c.ClearAll(3)
	for _, k := range advKeys {
		found, _ := c.Lookup(k)
		assert.False(t, found)
	}
}

func TestLockedGuaranteeExactness(t *testing.T) {
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})
	c, err := NewLockedGuaranteeCache(16, z.Params())
	require.NoError(t, err)

	bc := testConf(t, 2, 1, 0)
	c.Insert(bc, true)
	found, feasible := c.Lookup(bc)
	assert.True(t, found)
	assert.True(t, feasible)

	other := testConf(t, 0, 0, 2)
	found, _ = c.Lookup(other)
	assert.False(t, found)
}

func TestGuaranteeConcurrentAccess(t *testing.T) {
	c, err := NewGuaranteeCache(18)
	require.NoError(t, err)
	z := game.NewTables(game.Params{Bins: 3, R: 4, S: 3})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				bc := game.NewBinConf(z)
				bc.AddItemVirtual((seed+i)%3+1, i%4)
				c.Insert(bc, i%2 == 0)
				c.Lookup(bc)
			}
		}(w)
	}
	wg.Wait()
}
