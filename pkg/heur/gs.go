package heur

import "github.com/bohm/binstretch/pkg/game"

// Good situations: O(1) rules by which the online algorithm certifies
// it survives every continuation. Implemented for three bins; other bin
// counts fall through. The pending item is not yet packed into bc; the
// rules account for it through the remaining offline volume, which
// bounds everything the adversary may still send (the played multiset
// plus all future items must pack into Bins bins of size S).

// GoodSituation reports whether the algorithm wins outright from bc
// with presItem pending, and which rule fired (for telemetry).
func GoodSituation(bc *game.BinConf, presItem int) (rule int, ok bool) {
	p := bc.Tables().Params()
	if p.Bins != 3 {
		return 0, false
	}

	// Everything the adversary may still send, the pending item
	// included, fits in the remaining offline volume.
	rem := p.S*p.Bins - bc.TotalLoad
	if rem < 0 {
		return 0, false
	}

	// GS1: the whole remaining volume fits into the least-loaded bin.
	if bc.Loads[p.Bins]+rem <= p.R-1 {
		return 1, true
	}

	// GS2: two bins absorb the remainder by first fit. A failing item
	// x fits in neither bin, so both exceed R-1-x >= R-1-S; summing
	// shows more than c2+c3-S of volume must arrive first, where c_i
	// is the free capacity R-1-load. Under the bound below that never
	// happens.
	c2 := p.R - 1 - bc.Loads[2]
	c3 := p.R - 1 - bc.Loads[3]
	if rem <= c2+c3-p.S {
		return 2, true
	}

	return 0, false
}
