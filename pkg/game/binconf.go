package game

import (
	"fmt"
	"strings"
)

// LoadConf is the load part of a bin configuration: the loads of the
// Bins bins, kept sorted non-increasingly, plus the incrementally
// maintained Zobrist hash over (bin position, load) pairs. Index 0 of
// Loads is unused; bins are 1-based like everywhere else in the
// engine.
type LoadConf struct {
	z        *Tables
	Loads    []int
	LoadHash uint64
}

// NewLoadConf returns an empty load configuration bound to the given
// Zobrist tables.
func NewLoadConf(z *Tables) *LoadConf {
	lc := &LoadConf{
		z:     z,
		Loads: make([]int, z.params.Bins+1),
	}
	lc.HashInitLoads()
	return lc
}

// Tables returns the Zobrist tables this configuration hashes with.
func (lc *LoadConf) Tables() *Tables { return lc.z }

// HashInitLoads recomputes LoadHash from scratch.
func (lc *LoadConf) HashInitLoads() {
	lc.LoadHash = 0
	for i := 1; i <= lc.z.params.Bins; i++ {
		lc.LoadHash ^= lc.z.loadEntry(i, lc.Loads[i])
	}
}

// sortOneIncreased restores sortedness after the load at position i
// increased. Returns the new position of the increased load.
func (lc *LoadConf) sortOneIncreased(i int) int {
	for !(i == 1 || lc.Loads[i-1] >= lc.Loads[i]) {
		lc.Loads[i], lc.Loads[i-1] = lc.Loads[i-1], lc.Loads[i]
		i--
	}
	return i
}

// sortOneDecreased restores sortedness after the load at position i
// decreased. Returns the new position of the decreased load.
func (lc *LoadConf) sortOneDecreased(i int) int {
	bins := lc.z.params.Bins
	for !(i == bins || lc.Loads[i+1] <= lc.Loads[i]) {
		lc.Loads[i], lc.Loads[i+1] = lc.Loads[i+1], lc.Loads[i]
		i++
	}
	return i
}

// rehashLoadsIncreasedRange fixes LoadHash after an item was added at
// position `to` and the loads bubbled up to position `from`. Every
// position in [from, to] changed its load and must be rehashed; missing
// any of them silently poisons every cache keyed off this hash.
func (lc *LoadConf) rehashLoadsIncreasedRange(item, from, to int) {
	if from == to {
		lc.LoadHash ^= lc.z.loadEntry(from, lc.Loads[from]-item)
		lc.LoadHash ^= lc.z.loadEntry(from, lc.Loads[from])
		return
	}
	// Positions in [from, to) shifted: position i+1 now holds what
	// position i held before the sort.
	for i := from; i < to; i++ {
		lc.LoadHash ^= lc.z.loadEntry(i, lc.Loads[i+1])
		lc.LoadHash ^= lc.z.loadEntry(i, lc.Loads[i])
	}
	// The last position holds the pre-increase value of the bin the
	// item landed on.
	lc.LoadHash ^= lc.z.loadEntry(to, lc.Loads[from]-item)
	lc.LoadHash ^= lc.z.loadEntry(to, lc.Loads[to])
}

// rehashLoadsDecreasedRange is the inverse of rehashLoadsIncreasedRange.
func (lc *LoadConf) rehashLoadsDecreasedRange(item, from, to int) {
	if from == to {
		lc.LoadHash ^= lc.z.loadEntry(from, lc.Loads[from]+item)
		lc.LoadHash ^= lc.z.loadEntry(from, lc.Loads[from])
		return
	}
	for i := from + 1; i <= to; i++ {
		lc.LoadHash ^= lc.z.loadEntry(i, lc.Loads[i-1])
		lc.LoadHash ^= lc.z.loadEntry(i, lc.Loads[i])
	}
	lc.LoadHash ^= lc.z.loadEntry(from, lc.Loads[to]+item)
	lc.LoadHash ^= lc.z.loadEntry(from, lc.Loads[from])
}

// AssignLoad adds an item to the given bin and rehashes. Returns the
// position the increased load settled at, which the caller must pass
// back to UnassignLoad.
func (lc *LoadConf) AssignLoad(item, bin int) int {
	lc.Loads[bin] += item
	from := lc.sortOneIncreased(bin)
	lc.rehashLoadsIncreasedRange(item, from, bin)
	return from
}

// UnassignLoad removes an item from the bin position returned by
// AssignLoad, restoring the previous loads and hash exactly.
func (lc *LoadConf) UnassignLoad(item, pos int) {
	lc.Loads[pos] -= item
	to := lc.sortOneDecreased(pos)
	lc.rehashLoadsDecreasedRange(item, pos, to)
}

// AssignLoadNoHash adds an item without touching the hash. Used by the
// dynamic program's frontier tuples before their first HashInitLoads.
func (lc *LoadConf) AssignLoadNoHash(item, bin int) int {
	lc.Loads[bin] += item
	return lc.sortOneIncreased(bin)
}

// UnassignLoadNoHash reverts AssignLoadNoHash given the position it
// returned.
func (lc *LoadConf) UnassignLoadNoHash(item, pos int) {
	lc.Loads[pos] -= item
	lc.sortOneDecreased(pos)
}

// LoadSum is the total of all loads, computed explicitly.
func (lc *LoadConf) LoadSum() int {
	total := 0
	for i := 1; i <= lc.z.params.Bins; i++ {
		total += lc.Loads[i]
	}
	return total
}

// CloneLoads returns an independent copy sharing the Zobrist tables.
func (lc *LoadConf) CloneLoads() *LoadConf {
	cp := &LoadConf{
		z:        lc.z,
		Loads:    make([]int, len(lc.Loads)),
		LoadHash: lc.LoadHash,
	}
	copy(cp.Loads, lc.Loads)
	return cp
}

// LoadString renders the loads as a space-separated list, the form
// used by the loads attribute of saved DAG files.
func (lc *LoadConf) LoadString() string {
	var sb strings.Builder
	for i := 1; i <= lc.z.params.Bins; i++ {
		if i > 1 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d", lc.Loads[i])
	}
	return sb.String()
}

// BinConf is a full bin configuration: loads plus the histogram of
// items played so far, totals, the two Zobrist hashes and the size of
// the most recently played item. It is the in-place mutable state of
// the minimax recursion: descend with AssignAndRehash, recurse, revert
// with UnassignAndRehash.
type BinConf struct {
	LoadConf
	Items     []int
	ItemHash  uint64
	TotalLoad int
	ItemCount int
	LastItem  int
}

// NewBinConf returns the empty configuration (no items played).
func NewBinConf(z *Tables) *BinConf {
	bc := &BinConf{
		LoadConf: LoadConf{
			z:     z,
			Loads: make([]int, z.params.Bins+1),
		},
		Items: make([]int, z.params.S+1),
	}
	bc.HashInit()
	return bc
}

// HashInit recomputes both hashes from scratch.
func (bc *BinConf) HashInit() {
	bc.HashInitLoads()
	bc.ItemHash = 0
	for s := 1; s <= bc.z.params.S; s++ {
		bc.ItemHash ^= bc.z.itemEntry(s, bc.Items[s])
	}
}

// AssignAndRehash plays an item into the given bin: loads, histogram,
// totals, both hashes and LastItem are updated in O(Bins). Returns the
// sorted position of the increased load; the caller passes it (and the
// previous LastItem) back to UnassignAndRehash.
func (bc *BinConf) AssignAndRehash(item, bin int) int {
	bc.Loads[bin] += item
	bc.TotalLoad += item
	bc.Items[item]++
	bc.ItemCount++
	from := bc.sortOneIncreased(bin)
	bc.rehashLoadsIncreasedRange(item, from, bin)
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item]-1)
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item])
	bc.LastItem = item
	return from
}

// UnassignAndRehash reverts AssignAndRehash. pos is the position the
// forward call returned; prevLast is the LastItem value before it.
func (bc *BinConf) UnassignAndRehash(item, pos, prevLast int) {
	bc.Loads[pos] -= item
	bc.TotalLoad -= item
	bc.Items[item]--
	bc.ItemCount--
	to := bc.sortOneDecreased(pos)
	bc.rehashLoadsDecreasedRange(item, pos, to)
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item]+1)
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item])
	bc.LastItem = prevLast
}

// AddItemVirtual adds an item to the histogram only, without packing it
// into any bin. The configuration is transiently inconsistent (totals
// include an unpacked item); the feasibility engine uses this to ask
// "does the multiset plus this item still pack" and must revert with
// RemoveItemVirtual before anyone else sees the state.
func (bc *BinConf) AddItemVirtual(item, count int) {
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item])
	bc.Items[item] += count
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item])
	bc.ItemCount += count
	bc.TotalLoad += count * item
}

// RemoveItemVirtual reverts AddItemVirtual.
func (bc *BinConf) RemoveItemVirtual(item, count int) {
	bc.TotalLoad -= count * item
	bc.ItemCount -= count
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item])
	bc.Items[item] -= count
	bc.ItemHash ^= bc.z.itemEntry(item, bc.Items[item])
}

// StateHash identifies the full adversary position: loads, items and
// the last played item (which constrains the adversary's next moves
// under monotonicity). Keys the state cache.
func (bc *BinConf) StateHash() uint64 {
	return bc.LoadHash ^ bc.ItemHash ^ bc.z.low[bc.LastItem]
}

// ItemOnlyHash identifies the played multiset irrespective of how the
// online algorithm has distributed it. Keys the guarantee cache.
func (bc *BinConf) ItemOnlyHash() uint64 {
	return bc.ItemHash
}

// AlgHash identifies the algorithm vertex reached from this position by
// the adversary sending nextItem.
func (bc *BinConf) AlgHash(nextItem int) uint64 {
	return bc.LoadHash ^ bc.ItemHash ^ bc.z.next[nextItem]
}

// VirtualStateHash returns the state hash of the position reached by
// placing item into bin, without mutating the configuration. Used by
// the heuristic visit to peek at the cache one ply below.
func (bc *BinConf) VirtualStateHash(item, bin int) uint64 {
	newLoad := bc.Loads[bin] + item
	from := bin
	for from > 1 && bc.Loads[from-1] < newLoad {
		from--
	}
	h := bc.LoadHash
	if from == bin {
		h ^= bc.z.loadEntry(bin, bc.Loads[bin])
		h ^= bc.z.loadEntry(bin, newLoad)
	} else {
		// After insertion at from, positions (from, bin] hold what
		// their left neighbour held before.
		h ^= bc.z.loadEntry(from, bc.Loads[from])
		h ^= bc.z.loadEntry(from, newLoad)
		for i := from + 1; i <= bin; i++ {
			h ^= bc.z.loadEntry(i, bc.Loads[i])
			h ^= bc.z.loadEntry(i, bc.Loads[i-1])
		}
	}
	ih := bc.ItemHash
	ih ^= bc.z.itemEntry(item, bc.Items[item])
	ih ^= bc.z.itemEntry(item, bc.Items[item]+1)
	return h ^ ih ^ bc.z.low[item]
}

// Clone returns an independent deep copy sharing the Zobrist tables.
func (bc *BinConf) Clone() *BinConf {
	cp := &BinConf{
		LoadConf: LoadConf{
			z:        bc.z,
			Loads:    make([]int, len(bc.Loads)),
			LoadHash: bc.LoadHash,
		},
		Items:     make([]int, len(bc.Items)),
		ItemHash:  bc.ItemHash,
		TotalLoad: bc.TotalLoad,
		ItemCount: bc.ItemCount,
		LastItem:  bc.LastItem,
	}
	copy(cp.Loads, bc.Loads)
	copy(cp.Items, bc.Items)
	return cp
}

// CopyFrom overwrites bc with the contents of other. Both must share
// parameters.
func (bc *BinConf) CopyFrom(other *BinConf) {
	copy(bc.Loads, other.Loads)
	copy(bc.Items, other.Items)
	bc.LoadHash = other.LoadHash
	bc.ItemHash = other.ItemHash
	bc.TotalLoad = other.TotalLoad
	bc.ItemCount = other.ItemCount
	bc.LastItem = other.LastItem
}

// Equal reports load-wise and item-wise equality.
func (bc *BinConf) Equal(other *BinConf) bool {
	for i := 1; i <= bc.z.params.Bins; i++ {
		if bc.Loads[i] != other.Loads[i] {
			return false
		}
	}
	for s := 1; s <= bc.z.params.S; s++ {
		if bc.Items[s] != other.Items[s] {
			return false
		}
	}
	return bc.LastItem == other.LastItem
}

// Consistency verifies the structural invariants: sorted loads, totals
// matching both the loads and the histogram, and both incremental
// hashes matching a from-scratch recompute. Any violation is a
// programming error in the mutation path.
func (bc *BinConf) Consistency() error {
	p := bc.z.params
	for i := 2; i <= p.Bins; i++ {
		if bc.Loads[i] > bc.Loads[i-1] {
			return fmt.Errorf("loads out of order at position %d: %v", i, bc.Loads[1:])
		}
	}
	loadTotal := bc.LoadSum()
	itemTotal := 0
	count := 0
	for s := 1; s <= p.S; s++ {
		itemTotal += s * bc.Items[s]
		count += bc.Items[s]
	}
	if bc.TotalLoad != itemTotal || count != bc.ItemCount {
		return fmt.Errorf("totals mismatch: total load %d, histogram weight %d, item count %d vs %d",
			bc.TotalLoad, itemTotal, bc.ItemCount, count)
	}
	if loadTotal != bc.TotalLoad {
		return fmt.Errorf("load sum %d does not match total load %d", loadTotal, bc.TotalLoad)
	}
	check := bc.Clone()
	check.HashInit()
	if check.LoadHash != bc.LoadHash || check.ItemHash != bc.ItemHash {
		return fmt.Errorf("incremental hash mismatch: loads %#x vs %#x, items %#x vs %#x",
			bc.LoadHash, check.LoadHash, bc.ItemHash, check.ItemHash)
	}
	return nil
}

// String renders "l1 l2 ... | i1 i2 ... | last", the form used by the
// binconf attribute of saved DAG files.
func (bc *BinConf) String() string {
	var sb strings.Builder
	sb.WriteString(bc.LoadString())
	sb.WriteString(" | ")
	for s := 1; s <= bc.z.params.S; s++ {
		if s > 1 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d", bc.Items[s])
	}
	fmt.Fprintf(&sb, " | %d", bc.LastItem)
	return sb.String()
}

// ParseBinConf parses the String form back into a configuration bound
// to the given tables.
func ParseBinConf(z *Tables, s string) (*BinConf, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("binconf %q: want three |-separated sections, got %d", s, len(parts))
	}
	bc := NewBinConf(z)
	loads := strings.Fields(parts[0])
	if len(loads) != z.params.Bins {
		return nil, fmt.Errorf("binconf %q: want %d loads, got %d", s, z.params.Bins, len(loads))
	}
	for i, f := range loads {
		if _, err := fmt.Sscanf(f, "%d", &bc.Loads[i+1]); err != nil {
			return nil, fmt.Errorf("binconf %q: bad load %q: %w", s, f, err)
		}
	}
	items := strings.Fields(parts[1])
	if len(items) != z.params.S {
		return nil, fmt.Errorf("binconf %q: want %d item counts, got %d", s, z.params.S, len(items))
	}
	for i, f := range items {
		if _, err := fmt.Sscanf(f, "%d", &bc.Items[i+1]); err != nil {
			return nil, fmt.Errorf("binconf %q: bad item count %q: %w", s, f, err)
		}
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[2]), "%d", &bc.LastItem); err != nil {
		return nil, fmt.Errorf("binconf %q: bad last item: %w", s, err)
	}
	for sz := 1; sz <= z.params.S; sz++ {
		bc.ItemCount += bc.Items[sz]
		bc.TotalLoad += sz * bc.Items[sz]
	}
	bc.HashInit()
	return bc, nil
}
