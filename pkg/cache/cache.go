// Package cache implements the two concurrent transposition tables of
// the search: the guarantee cache (item multiset -> offline
// feasibility) and the state cache (adversary position -> winner).
// Both are fixed-size open-addressed tables with a short linear probe
// and random replacement on a full probe window; they are sized once
// at startup and never resized or compacted.
package cache

import (
	"fmt"
	"sync/atomic"
)

// ProbeLimit is the linear probe length shared by all tables.
const ProbeLimit = 4

// evictStep advances the eviction sequence; an odd constant so the
// low bits cycle through the whole probe window.
const evictStep = 0x9e3779b97f4a7c15

// Measurements counts cache traffic. All fields are atomically updated
// and may be read while the search runs.
type Measurements struct {
	LookupHit       atomic.Uint64
	LookupMissEmpty atomic.Uint64
	LookupMissFull  atomic.Uint64
	InsertEmpty     atomic.Uint64
	InsertDuplicate atomic.Uint64
	InsertRandom    atomic.Uint64
}

// Snapshot is a plain copy of the counters.
type Snapshot struct {
	LookupHit       uint64 `json:"lookup_hit"`
	LookupMissEmpty uint64 `json:"lookup_miss_empty"`
	LookupMissFull  uint64 `json:"lookup_miss_full"`
	InsertEmpty     uint64 `json:"insert_empty"`
	InsertDuplicate uint64 `json:"insert_duplicate"`
	InsertRandom    uint64 `json:"insert_random"`
}

// Snapshot returns the current counter values.
func (m *Measurements) Snapshot() Snapshot {
	return Snapshot{
		LookupHit:       m.LookupHit.Load(),
		LookupMissEmpty: m.LookupMissEmpty.Load(),
		LookupMissFull:  m.LookupMissFull.Load(),
		InsertEmpty:     m.InsertEmpty.Load(),
		InsertDuplicate: m.InsertDuplicate.Load(),
		InsertRandom:    m.InsertRandom.Load(),
	}
}

// Add folds another snapshot into this one.
func (s *Snapshot) Add(other Snapshot) {
	s.LookupHit += other.LookupHit
	s.LookupMissEmpty += other.LookupMissEmpty
	s.LookupMissFull += other.LookupMissFull
	s.InsertEmpty += other.InsertEmpty
	s.InsertDuplicate += other.InsertDuplicate
	s.InsertRandom += other.InsertRandom
}

// zeroLastBit masks the value bit off a slot or a key.
func zeroLastBit(x uint64) uint64 { return (x >> 1) << 1 }

// lastBit extracts the value bit.
func lastBit(x uint64) uint64 { return x & 1 }

// tableSizeFromLogBytes converts a log2 byte budget into a power-of-two
// slot count for 8-byte slots.
func tableSizeFromLogBytes(logbytes int) (size uint64, logsize int, err error) {
	if logbytes < 4 || logbytes > 40 {
		return 0, 0, fmt.Errorf("cache: logbytes %d outside [4,40]", logbytes)
	}
	logsize = logbytes - 3 // 2^3 bytes per slot
	return uint64(1) << logsize, logsize, nil
}

// logPart maps a 64-bit hash onto a table of 2^logsize slots by its top
// bits, so that nearby probe positions come from distant hashes.
func logPart(h uint64, logsize int) uint64 {
	return h >> (64 - logsize)
}
