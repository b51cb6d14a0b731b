// Package net is the messaging layer between the queen and its
// overseers. The scheduler depends only on the two interfaces here;
// the backends are a single-process channel implementation and a
// websocket implementation for runs spanning machines.
package net

import (
	"errors"

	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/tasks"
)

// ErrCommClosed reports a backend torn down mid-operation.
var ErrCommClosed = errors.New("net: communication channel closed")

// RoundStart is the queen's round broadcast: the finality flag, the
// monotonicity for the round and the full task table.
type RoundStart struct {
	Final        bool         `json:"final"`
	Sapling      int          `json:"sapling"`
	Monotonicity int          `json:"monotonicity"`
	Tasks        []tasks.Flat `json:"tasks"`
}

// Solution is one finished task reported back to the queen.
type Solution struct {
	TaskID int          `json:"task_id"`
	Winner game.Victory `json:"winner"`
}

// Batch is a set of task ids assigned to one overseer.
type Batch []int

// QueenComm is the queen's side of the channel.
type QueenComm interface {
	// BroadcastRoundStart opens a round on every overseer (or, with
	// Final set, tells them to terminate).
	BroadcastRoundStart(rs RoundStart) error
	// TryCollectSolution drains one pending solution, non-blocking.
	TryCollectSolution() (Solution, bool)
	// NextBatchRequest drains one pending batch request, non-blocking.
	// Returns the requesting overseer's index.
	NextBatchRequest() (int, bool)
	// SendBatch hands a batch of task ids to one overseer.
	SendBatch(overseer int, b Batch) error
	// BroadcastRootSolved raises the round-cancellation signal.
	BroadcastRootSolved() error
	// AwaitRoundEnd blocks until every overseer confirmed round end.
	AwaitRoundEnd() error
}

// OverseerComm is the overseer's side of the channel.
type OverseerComm interface {
	// AwaitRoundStart blocks until the queen opens a round.
	AwaitRoundStart() (RoundStart, error)
	// SendSolution reports one finished task.
	SendSolution(s Solution) error
	// RequestBatch asks the queen for more task ids.
	RequestBatch() error
	// TryReceiveBatch drains one pending batch, non-blocking.
	TryReceiveBatch() (Batch, bool)
	// RootSolved reports whether the cancellation signal is up. Cheap;
	// polled from worker hot loops.
	RootSolved() bool
	// ConfirmRoundEnd signals this overseer finished the round.
	ConfirmRoundEnd() error
}
