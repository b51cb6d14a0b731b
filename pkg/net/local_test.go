package net

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohm/binstretch/pkg/game"
)

func TestLocalCommRound(t *testing.T) {
	l := NewLocalComm(2)
	queen := l.Queen()

	for i := 0; i < 2; i++ {
		go func(id int) {
			o := l.Overseer(id)
			rs, err := o.AwaitRoundStart()
			assert.NoError(t, err)
			assert.Equal(t, 1, rs.Monotonicity)
			assert.False(t, rs.Final)

			assert.NoError(t, o.RequestBatch())
			var batch Batch
			for {
				if b, ok := o.TryReceiveBatch(); ok {
					batch = b
					break
				}
				time.Sleep(time.Millisecond)
			}
			assert.Equal(t, Batch{0, 1}, batch)

			assert.NoError(t, o.SendSolution(Solution{TaskID: batch[0], Winner: game.Adv}))

			for !o.RootSolved() {
				time.Sleep(time.Millisecond)
			}
			assert.NoError(t, o.ConfirmRoundEnd())
		}(i)
	}

	require.NoError(t, queen.BroadcastRoundStart(RoundStart{Monotonicity: 1}))

	served := 0
	solutions := 0
	deadline := time.Now().Add(5 * time.Second)
	for (served < 2 || solutions < 2) && time.Now().Before(deadline) {
		if id, ok := queen.NextBatchRequest(); ok {
			require.NoError(t, queen.SendBatch(id, Batch{0, 1}))
			served++
		}
		if s, ok := queen.TryCollectSolution(); ok {
			assert.Equal(t, game.Adv, s.Winner)
			solutions++
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 2, served)
	require.Equal(t, 2, solutions)

	require.NoError(t, queen.BroadcastRootSolved())
	require.NoError(t, queen.AwaitRoundEnd())
}

func TestLocalCommNonBlocking(t *testing.T) {
	l := NewLocalComm(1)
	queen := l.Queen()

	_, ok := queen.TryCollectSolution()
	assert.False(t, ok)
	_, ok = queen.NextBatchRequest()
	assert.False(t, ok)

	o := l.Overseer(0)
	_, ok = o.TryReceiveBatch()
	assert.False(t, ok)
	assert.False(t, o.RootSolved())
}
