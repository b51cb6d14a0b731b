package cache

import (
	"sync/atomic"

	"github.com/bohm/binstretch/pkg/game"
)

// FeasibilityCache is the contract shared by the guarantee cache
// variants: a concurrent map from an item multiset to its offline
// feasibility. Insert is idempotent; duplicate inserts are counted.
// Lookup may report a false positive at the truncated-hash collision
// rate of the 64-bit variant; the locked variant is exact.
type FeasibilityCache interface {
	Lookup(bc *game.BinConf) (found, feasible bool)
	Insert(bc *game.BinConf, feasible bool)
	Meas() *Measurements
}

// GuaranteeCache is the 64-bit slot variant: the bottom bit of a slot
// holds the feasibility value, the upper 63 bits the truncated item
// hash. A slot of zero is empty. Lock-free: slots are single atomic
// words loaded and stored whole.
type GuaranteeCache struct {
	slots   []atomic.Uint64
	logsize int
	evict   atomic.Uint64
	meas    Measurements
}

// NewGuaranteeCache sizes the table from a log2 byte budget.
func NewGuaranteeCache(logbytes int) (*GuaranteeCache, error) {
	size, logsize, err := tableSizeFromLogBytes(logbytes)
	if err != nil {
		return nil, err
	}
	return &GuaranteeCache{
		slots:   make([]atomic.Uint64, size),
		logsize: logsize,
	}, nil
}

// Size returns the slot count.
func (c *GuaranteeCache) Size() uint64 { return uint64(len(c.slots)) }

// Meas exposes the traffic counters.
func (c *GuaranteeCache) Meas() *Measurements { return &c.meas }

// Lookup probes for the item multiset of bc.
func (c *GuaranteeCache) Lookup(bc *game.BinConf) (found, feasible bool) {
	return c.LookupHash(bc.ItemOnlyHash())
}

// LookupHash probes by a precomputed item hash.
func (c *GuaranteeCache) LookupHash(h uint64) (found, feasible bool) {
	base := logPart(h, c.logsize)
	limit := c.probeLimit(base)
	for i := uint64(0); i < limit; i++ {
		slot := c.slots[base+i].Load()
		if slot == 0 {
			c.meas.LookupMissEmpty.Add(1)
			return false, false
		}
		if zeroLastBit(slot) == zeroLastBit(h) {
			c.meas.LookupHit.Add(1)
			return true, lastBit(slot) == 1
		}
	}
	c.meas.LookupMissFull.Add(1)
	return false, false
}

// Insert records the feasibility of bc's item multiset. On a full probe
// window a random slot inside the window is overwritten.
func (c *GuaranteeCache) Insert(bc *game.BinConf, feasible bool) {
	c.InsertHash(bc.ItemOnlyHash(), feasible)
}

// InsertHash records by a precomputed item hash.
func (c *GuaranteeCache) InsertHash(h uint64, feasible bool) {
	value := zeroLastBit(h)
	if feasible {
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
			// Same key. Last writer wins on a value mismatch,
			// which only a 63-bit collision can produce.
			c.meas.InsertDuplicate.Add(1)
			c.slots[base+i].Store(value)
			return
		}
	}
	c.meas.InsertRandom.Add(1)
	c.slots[base+c.evict.Add(evictStep)%limit].Store(value)
}

func (c *GuaranteeCache) probeLimit(base uint64) uint64 {
	limit := uint64(ProbeLimit)
	if base+limit > c.Size() {
		limit = c.Size() - base
	}
	return limit
}
