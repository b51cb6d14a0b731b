package cache

import (
	"sync"
	"sync/atomic"

	"github.com/bohm/binstretch/pkg/game"
)

// StateCache maps adversary position state hashes to the proven winner.
// Used only during exploration; generation records outcomes in the DAG
// instead. Slot layout matches GuaranteeCache: bottom bit 1 means the
// algorithm wins, 0 the adversary.
type StateCache struct {
	slots   []atomic.Uint64
	logsize int
	evict   atomic.Uint64
	meas    Measurements
}

// NewStateCache sizes the table from a log2 byte budget.
func NewStateCache(logbytes int) (*StateCache, error) {
	size, logsize, err := tableSizeFromLogBytes(logbytes)
	if err != nil {
		return nil, err
	}
	return &StateCache{
		slots:   make([]atomic.Uint64, size),
		logsize: logsize,
	}, nil
}

// Size returns the slot count.
func (c *StateCache) Size() uint64 { return uint64(len(c.slots)) }

// Meas exposes the traffic counters.
func (c *StateCache) Meas() *Measurements { return &c.meas }

// Lookup probes for a position state hash.
func (c *StateCache) Lookup(h uint64) (found bool, win game.Victory) {
	base := logPart(h, c.logsize)
	limit := c.probeLimit(base)
	for i := uint64(0); i < limit; i++ {
		slot := c.slots[base+i].Load()
		if slot == 0 {
			c.meas.LookupMissEmpty.Add(1)
			return false, game.Uncertain
		}
		if zeroLastBit(slot) == zeroLastBit(h) {
			c.meas.LookupHit.Add(1)
			if lastBit(slot) == 1 {
				return true, game.Alg
			}
			return true, game.Adv
		}
	}
	c.meas.LookupMissFull.Add(1)
	return false, game.Uncertain
}

// Insert records the winner of a position. Only Adv and Alg are legal
// values; anything else is ignored.
func (c *StateCache) Insert(h uint64, win game.Victory) {
	if win != game.Adv && win != game.Alg {
		return
	}
	value := zeroLastBit(h)
	if win == game.Alg {
		value |= 1
	}
	base := logPart(h, c.logsize)
	limit := c.probeLimit(base)
	for i := uint64(0); i < limit; i++ {
		slot := c.slots[base+i].Load()
		if slot == 0 {
			c.meas.InsertEmpty.Add(1)
			c.slots[base+i].Store(value)
			return
		}
		if zeroLastBit(slot) == zeroLastBit(h) {
			c.meas.InsertDuplicate.Add(1)
			c.slots[base+i].Store(value)
			return
		}
	}
	c.meas.InsertRandom.Add(1)
	c.slots[base+c.evict.Add(evictStep)%limit].Store(value)
}

// ClearAll zeroes every slot, partitioning the table across workers.
// Called between saplings.
func (c *StateCache) ClearAll(workers int) {
	c.clearSegments(workers, func(slot uint64) bool { return true })
}

// ClearAlgWins zeroes only slots recording an algorithm win. When the
// scheduler relaxes the monotonicity constraint, positions previously
// lost by the adversary may become winnable and must be re-evaluated;
// adversary wins survive relaxation and are kept.
func (c *StateCache) ClearAlgWins(workers int) {
	c.clearSegments(workers, func(slot uint64) bool { return lastBit(slot) == 1 })
}

func (c *StateCache) clearSegments(workers int, doomed func(uint64) bool) {
	if workers < 1 {
		workers = 1
	}
	size := c.Size()
	segment := size/uint64(workers) + 1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := uint64(w) * segment
		end := start + segment
		if end > size {
			end = size
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end uint64) {
			defer wg.Done()
			for i := start; i < end; i++ {
				slot := c.slots[i].Load()
				if slot != 0 && doomed(slot) {
					c.slots[i].Store(0)
				}
			}
		}(start, end)
	}
	wg.Wait()
}

func (c *StateCache) probeLimit(base uint64) uint64 {
	limit := uint64(ProbeLimit)
	if base+limit > c.Size() {
		limit = c.Size() - base
	}
	return limit
}
