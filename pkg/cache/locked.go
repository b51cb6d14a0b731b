package cache

import (
	"sync"
	"sync/atomic"

	"github.com/bohm/binstretch/pkg/game"
)

// lockBlock is the number of slots sharing one reader/writer lock in
// the locked variant.
const lockBlock = 1024

// lockedSlot stores the full item histogram, so matches are exact and
// the 63-bit false-positive rate of the word-sized variant disappears.
type lockedSlot struct {
	occupied bool
	feasible bool
	hash     uint64
	items    []int
}

// LockedGuaranteeCache is the full-itemlist guarantee cache variant:
// open addressing with the same probe discipline as GuaranteeCache, but
// each slot holds the complete histogram for exact comparison, guarded
// by sharded read/write locks (one per fixed-size block of slots).
type LockedGuaranteeCache struct {
	slots   []lockedSlot
	locks   []sync.RWMutex
	logsize int
	evict   atomic.Uint64
	meas    Measurements
}

// NewLockedGuaranteeCache sizes the table from a log2 byte budget,
// approximating the per-slot cost by the histogram size.
func NewLockedGuaranteeCache(logbytes int, p game.Params) (*LockedGuaranteeCache, error) {
	size, logsize, err := tableSizeFromLogBytes(logbytes)
	if err != nil {
		return nil, err
	}
	// The histogram makes slots fatter than a word; shrink the count
	// to keep roughly within budget.
	for size > 1 && size*uint64(p.S+4)*8 > uint64(1)<<logbytes {
		size >>= 1
		logsize--
	}
	return &LockedGuaranteeCache{
		slots:   make([]lockedSlot, size),
		locks:   make([]sync.RWMutex, (size+lockBlock-1)/lockBlock),
		logsize: logsize,
	}, nil
}

// Meas exposes the traffic counters.
func (c *LockedGuaranteeCache) Meas() *Measurements { return &c.meas }

func (c *LockedGuaranteeCache) lockFor(pos uint64) *sync.RWMutex {
	return &c.locks[pos/lockBlock]
}

func (c *LockedGuaranteeCache) probeLimit(base uint64) uint64 {
	limit := uint64(ProbeLimit)
	if base+limit > uint64(len(c.slots)) {
		limit = uint64(len(c.slots)) - base
	}
	return limit
}

func itemsEqual(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Lookup probes for the exact item multiset of bc.
func (c *LockedGuaranteeCache) Lookup(bc *game.BinConf) (found, feasible bool) {
	h := bc.ItemOnlyHash()
	base := logPart(h, c.logsize)
	limit := c.probeLimit(base)
	for i := uint64(0); i < limit; i++ {
		pos := base + i
		lk := c.lockFor(pos)
		lk.RLock()
		slot := &c.slots[pos]
		if !slot.occupied {
			lk.RUnlock()
			c.meas.LookupMissEmpty.Add(1)
			return false, false
		}
		if slot.hash == h && itemsEqual(slot.items, bc.Items[1:]) {
			feasible = slot.feasible
			lk.RUnlock()
			c.meas.LookupHit.Add(1)
			return true, feasible
		}
		lk.RUnlock()
	}
	c.meas.LookupMissFull.Add(1)
	return false, false
}

// Insert records the feasibility of bc's exact item multiset.
func (c *LockedGuaranteeCache) Insert(bc *game.BinConf, feasible bool) {
	h := bc.ItemOnlyHash()
	base := logPart(h, c.logsize)
	limit := c.probeLimit(base)
	for i := uint64(0); i < limit; i++ {
		pos := base + i
		lk := c.lockFor(pos)
		lk.Lock()
		slot := &c.slots[pos]
		if !slot.occupied {
			c.storeLocked(slot, h, bc, feasible)
			lk.Unlock()
			c.meas.InsertEmpty.Add(1)
			return
		}
		if slot.hash == h && itemsEqual(slot.items, bc.Items[1:]) {
			slot.feasible = feasible
			lk.Unlock()
			c.meas.InsertDuplicate.Add(1)
			return
		}
		lk.Unlock()
	}
	pos := base + c.evict.Add(evictStep)%limit
	lk := c.lockFor(pos)
	lk.Lock()
	c.storeLocked(&c.slots[pos], h, bc, feasible)
	lk.Unlock()
	c.meas.InsertRandom.Add(1)
}

func (c *LockedGuaranteeCache) storeLocked(slot *lockedSlot, h uint64, bc *game.BinConf, feasible bool) {
	slot.occupied = true
	slot.feasible = feasible
	slot.hash = h
	if slot.items == nil {
		slot.items = make([]int, len(bc.Items)-1)
	}
	copy(slot.items, bc.Items[1:])
}
