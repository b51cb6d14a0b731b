package net

import (
	"sync/atomic"
)

// LocalComm connects a queen and its overseers inside one process.
// Broadcasts fan out over per-recipient channels; the root-solved
// signal is a plain atomic flag each worker can poll without
// synchronisation cost.
type LocalComm struct {
	overseers int

	roundCh    []chan RoundStart
	batchCh    []chan Batch
	solutionCh chan Solution
	requestCh  chan int
	roundEndCh chan int

	rootSolved atomic.Bool
}

// NewLocalComm wires channels for the given overseer count.
func NewLocalComm(overseers int) *LocalComm {
	l := &LocalComm{
		overseers:  overseers,
		roundCh:    make([]chan RoundStart, overseers),
		batchCh:    make([]chan Batch, overseers),
		solutionCh: make(chan Solution, 4096),
		requestCh:  make(chan int, overseers),
		roundEndCh: make(chan int, overseers),
	}
	for i := 0; i < overseers; i++ {
		l.roundCh[i] = make(chan RoundStart, 1)
		l.batchCh[i] = make(chan Batch, 4)
	}
	return l
}

// Queen returns the queen's endpoint.
func (l *LocalComm) Queen() QueenComm { return &localQueen{l} }

// Overseer returns the endpoint of overseer i.
func (l *LocalComm) Overseer(i int) OverseerComm { return &localOverseer{l: l, id: i} }

type localQueen struct{ l *LocalComm }

func (q *localQueen) BroadcastRoundStart(rs RoundStart) error {
	q.l.rootSolved.Store(false)
	for _, ch := range q.l.roundCh {
		ch <- rs
	}
	return nil
}

func (q *localQueen) TryCollectSolution() (Solution, bool) {
	select {
	case s := <-q.l.solutionCh:
		return s, true
	default:
		return Solution{}, false
	}
}

func (q *localQueen) NextBatchRequest() (int, bool) {
	select {
	case id := <-q.l.requestCh:
		return id, true
	default:
		return 0, false
	}
}

func (q *localQueen) SendBatch(overseer int, b Batch) error {
	q.l.batchCh[overseer] <- b
	return nil
}

func (q *localQueen) BroadcastRootSolved() error {
	q.l.rootSolved.Store(true)
	return nil
}

func (q *localQueen) AwaitRoundEnd() error {
	for confirmed := 0; confirmed < q.l.overseers; confirmed++ {
		<-q.l.roundEndCh
	}
	return nil
}

type localOverseer struct {
	l  *LocalComm
	id int
}

func (o *localOverseer) AwaitRoundStart() (RoundStart, error) {
	rs, ok := <-o.l.roundCh[o.id]
	if !ok {
		return RoundStart{}, ErrCommClosed
	}
	return rs, nil
}

func (o *localOverseer) SendSolution(s Solution) error {
	o.l.solutionCh <- s
	return nil
}

func (o *localOverseer) RequestBatch() error {
	o.l.requestCh <- o.id
	return nil
}

func (o *localOverseer) TryReceiveBatch() (Batch, bool) {
	select {
	case b := <-o.l.batchCh[o.id]:
		return b, true
	default:
		return nil, false
	}
}

func (o *localOverseer) RootSolved() bool {
	return o.l.rootSolved.Load()
}

func (o *localOverseer) ConfirmRoundEnd() error {
	o.l.roundEndCh <- o.id
	return nil
}
