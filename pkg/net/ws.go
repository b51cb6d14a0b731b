package net

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Websocket backend: the queen listens, overseers dial in. Frames are
// JSON; the channel semantics mirror the local backend exactly, so the
// scheduler cannot tell the two apart.

const (
	frameRoundStart   = "round_start"
	frameSolution     = "solution"
	frameBatchRequest = "batch_request"
	frameBatch        = "batch"
	frameRootSolved   = "root_solved"
	frameRoundEnd     = "round_end"
)

type frame struct {
	Type     string      `json:"type"`
	Round    *RoundStart `json:"round,omitempty"`
	Solution *Solution   `json:"solution,omitempty"`
	Batch    Batch       `json:"batch,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
}

type wsPeer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *wsPeer) send(f frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(f)
}

// WSQueen is the queen's endpoint of the websocket backend.
type WSQueen struct {
	peers      []*wsPeer
	solutionCh chan Solution
	requestCh  chan int
	roundEndCh chan int
	server     *http.Server
}

// ListenWSQueen serves the overseer endpoint on addr and blocks until
// the expected number of overseers has connected.
func ListenWSQueen(addr string, overseers int) (*WSQueen, error) {
	q := &WSQueen{
		solutionCh: make(chan Solution, 4096),
		requestCh:  make(chan int, overseers),
		roundEndCh: make(chan int, overseers),
	}

	type joined struct {
		peer *wsPeer
	}
	joinCh := make(chan joined, overseers)

	mux := http.NewServeMux()
	mux.HandleFunc("/overseer", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Overseer connection upgrade failed")
			return
		}
		joinCh <- joined{peer: &wsPeer{conn: conn}}
	})

	q.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := q.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Queen websocket server error")
		}
	}()

	log.Info().Str("address", addr).Int("overseers", overseers).Msg("Waiting for overseers to connect")
	for len(q.peers) < overseers {
		j := <-joinCh
		id := len(q.peers)
		q.peers = append(q.peers, j.peer)
		go q.readLoop(id, j.peer)
		log.Info().Int("overseer", id).Str("remote", j.peer.conn.RemoteAddr().String()).Msg("Overseer connected")
	}
	return q, nil
}

func (q *WSQueen) readLoop(id int, p *wsPeer) {
	for {
		var f frame
		if err := p.conn.ReadJSON(&f); err != nil {
			log.Warn().Err(err).Int("overseer", id).Msg("Overseer connection lost")
			return
		}
		switch f.Type {
		case frameSolution:
			if f.Solution != nil {
				q.solutionCh <- *f.Solution
			}
		case frameBatchRequest:
			q.requestCh <- id
		case frameRoundEnd:
			q.roundEndCh <- id
		default:
			log.Warn().Str("type", f.Type).Msg("Unexpected frame from overseer")
		}
	}
}

// BroadcastRoundStart implements QueenComm.
func (q *WSQueen) BroadcastRoundStart(rs RoundStart) error {
	for i, p := range q.peers {
		if err := p.send(frame{Type: frameRoundStart, Round: &rs}); err != nil {
			return fmt.Errorf("net: round start to overseer %d: %w", i, err)
		}
	}
	return nil
}

// TryCollectSolution implements QueenComm.
func (q *WSQueen) TryCollectSolution() (Solution, bool) {
	select {
	case s := <-q.solutionCh:
		return s, true
	default:
		return Solution{}, false
	}
}

// NextBatchRequest implements QueenComm.
func (q *WSQueen) NextBatchRequest() (int, bool) {
	select {
	case id := <-q.requestCh:
		return id, true
	default:
		return 0, false
	}
}

// SendBatch implements QueenComm.
func (q *WSQueen) SendBatch(overseer int, b Batch) error {
	return q.peers[overseer].send(frame{Type: frameBatch, Batch: b})
}

// BroadcastRootSolved implements QueenComm.
func (q *WSQueen) BroadcastRootSolved() error {
	for i, p := range q.peers {
		if err := p.send(frame{Type: frameRootSolved}); err != nil {
			return fmt.Errorf("net: root solved to overseer %d: %w", i, err)
		}
	}
	return nil
}

// AwaitRoundEnd implements QueenComm.
func (q *WSQueen) AwaitRoundEnd() error {
	for confirmed := 0; confirmed < len(q.peers); confirmed++ {
		<-q.roundEndCh
	}
	return nil
}

// Close tears the server down after the final round.
func (q *WSQueen) Close() error {
	for _, p := range q.peers {
		p.conn.Close()
	}
	return q.server.Close()
}

// WSOverseer is an overseer's endpoint of the websocket backend.
type WSOverseer struct {
	peer       *wsPeer
	roundCh    chan RoundStart
	batchCh    chan Batch
	rootSolved atomic.Bool
}

// DialWSOverseer connects to the queen at queenURL (ws://host:port).
func DialWSOverseer(queenURL string) (*WSOverseer, error) {
	conn, _, err := websocket.DefaultDialer.Dial(queenURL+"/overseer", nil)
	if err != nil {
		return nil, fmt.Errorf("net: dialing queen at %s: %w", queenURL, err)
	}
	o := &WSOverseer{
		peer:    &wsPeer{conn: conn},
		roundCh: make(chan RoundStart, 1),
		batchCh: make(chan Batch, 4),
	}
	go o.readLoop()
	return o, nil
}

func (o *WSOverseer) readLoop() {
	for {
		var f frame
		if err := o.peer.conn.ReadJSON(&f); err != nil {
			log.Warn().Err(err).Msg("Queen connection lost")
			close(o.roundCh)
			return
		}
		switch f.Type {
		case frameRoundStart:
			o.rootSolved.Store(false)
			if f.Round != nil {
				o.roundCh <- *f.Round
			}
		case frameBatch:
			o.batchCh <- f.Batch
		case frameRootSolved:
			o.rootSolved.Store(true)
		default:
			log.Warn().Str("type", f.Type).Msg("Unexpected frame from queen")
		}
	}
}

// AwaitRoundStart implements OverseerComm.
func (o *WSOverseer) AwaitRoundStart() (RoundStart, error) {
	rs, ok := <-o.roundCh
	if !ok {
		return RoundStart{}, ErrCommClosed
	}
	return rs, nil
}

// SendSolution implements OverseerComm.
func (o *WSOverseer) SendSolution(s Solution) error {
	return o.peer.send(frame{Type: frameSolution, Solution: &s})
}

// RequestBatch implements OverseerComm.
func (o *WSOverseer) RequestBatch() error {
	return o.peer.send(frame{Type: frameBatchRequest})
}

// TryReceiveBatch implements OverseerComm.
func (o *WSOverseer) TryReceiveBatch() (Batch, bool) {
	select {
	case b := <-o.batchCh:
		return b, true
	default:
		return nil, false
	}
}

// RootSolved implements OverseerComm.
func (o *WSOverseer) RootSolved() bool {
	return o.rootSolved.Load()
}

// ConfirmRoundEnd implements OverseerComm.
func (o *WSOverseer) ConfirmRoundEnd() error {
	return o.peer.send(frame{Type: frameRoundEnd})
}

// Close drops the connection.
func (o *WSOverseer) Close() error {
	return o.peer.conn.Close()
}
