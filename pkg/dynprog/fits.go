package dynprog

import "github.com/bohm/binstretch/pkg/game"

// BestFitWitness packs bc's items into Bins bins of capacity S by best
// fit decreasing. On success it returns the slack of the least-loaded
// bin, a feasibility witness: the multiset plus any item up to that
// size is certainly packable. ok is false when BFD fails to place some
// item, which proves nothing about feasibility.
func BestFitWitness(bc *game.BinConf) (witness int, ok bool) {
	p := bc.Tables().Params()
	loads := make([]int, p.Bins+1)

	for size := p.S; size >= 1; size-- {
		for k := bc.Items[size]; k > 0; k-- {
			best := -1
			leastRemainder := p.R + 1
			for bin := 1; bin <= p.Bins; bin++ {
				remainder := p.S - (loads[bin] + size)
				if remainder >= 0 && remainder < leastRemainder {
					leastRemainder = remainder
					best = bin
				}
			}
			if best == -1 {
				return 0, false
			}
			loads[best] += size
		}
	}

	least := loads[1]
	for bin := 2; bin <= p.Bins; bin++ {
		if loads[bin] < least {
			least = loads[bin]
		}
	}
	return p.S - least, true
}

// OnlineLoads tracks a greedy best-fit offline packing of the items as
// they are played, one Assign/Unassign per ply of the recursion. While
// every item has fitted within capacity S the slack of the least-loaded
// bin is a certainly-feasible next item; once any item overflows the
// tracker stops certifying anything until the overflow is reverted.
type OnlineLoads struct {
	lc       *game.LoadConf
	overflow int
}

// NewOnlineLoads builds the tracker for the items already in bc, placed
// by best fit decreasing.
func NewOnlineLoads(bc *game.BinConf) *OnlineLoads {
	ol := &OnlineLoads{lc: game.NewLoadConf(bc.Tables())}
	p := bc.Tables().Params()
	for size := p.S; size >= 1; size-- {
		for k := bc.Items[size]; k > 0; k-- {
			ol.Assign(size)
		}
	}
	return ol
}

// Assign places an item by best fit: the most-loaded bin it still fits
// into (loads are sorted non-increasingly, so the first fitting
// position scanning from the top). If no bin fits within S, it lands on
// the least-loaded bin and the packing stops being a witness. Returns
// the sorted position for Unassign and whether the item overflowed.
func (ol *OnlineLoads) Assign(item int) (pos int, overflowed bool) {
	p := ol.lc.Tables().Params()
	for bin := 1; bin <= p.Bins; bin++ {
		if ol.lc.Loads[bin]+item <= p.S {
			return ol.lc.AssignLoadNoHash(item, bin), false
		}
	}
	ol.overflow++
	return ol.lc.AssignLoadNoHash(item, p.Bins), true
}

// Unassign reverts an Assign given its results.
func (ol *OnlineLoads) Unassign(item, pos int, overflowed bool) {
	ol.lc.UnassignLoadNoHash(item, pos)
	if overflowed {
		ol.overflow--
	}
}

// Witness returns a certainly-feasible next item size: the slack of the
// least-loaded bin of the tracked packing, or 0 when the packing has
// overflowed and certifies nothing.
func (ol *OnlineLoads) Witness() int {
	if ol.overflow > 0 {
		return 0
	}
	p := ol.lc.Tables().Params()
	return p.S - ol.lc.Loads[p.Bins]
}

// LoadSum is the total load of the tracked packing.
func (ol *OnlineLoads) LoadSum() int {
	return ol.lc.LoadSum()
}
