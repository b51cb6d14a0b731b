package heur

import (
	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
)

// FiveNine runs the five-nine recogniser, specific to the 19/14 game.
//
// Once every bin is non-empty, two nines do not fit together into any
// bin; a bin holding one five cannot take a fourteen and a bin holding
// two fives cannot take a nine. The heuristic therefore sends fives
// until either a sequence of nines or a sequence of fourteens yields a
// load of nineteen. Returns the number of fives to send first.
//
// bc is mutated during the probe and restored before returning.
func FiveNine(bc *game.BinConf, guar cache.FeasibilityCache, sc *dynprog.Scratch) (*FiveNineStrategy, bool) {
	p := bc.Tables().Params()
	if p.S != 14 || p.R != 19 {
		return nil, false
	}

	// Sending Bins more fives makes no sense, and the last bin must be
	// non-empty so that two nines never share a bin of capacity 18.
	if bc.Loads[1] < 5 || bc.Loads[p.Bins] == 0 {
		return nil, false
	}

	ninesThreat := dynprog.PackQueryCompute(bc, 9, p.Bins, guar, sc)
	if !ninesThreat {
		return nil, false
	}

	// Loads are sorted, so the bins at five or more form a prefix; when
	// every bin qualifies the boundary sits at the last one.
	lastAboveFive := p.Bins
	for bin := 1; bin <= p.Bins-1; bin++ {
		if bc.Loads[bin] >= 5 && bc.Loads[bin+1] < 5 {
			lastAboveFive = bin
			break
		}
	}

	fives := 0
	fourteenSequence := p.Bins - lastAboveFive + 1
	for ninesThreat && fourteenSequence >= 1 && lastAboveFive <= p.Bins {
		if dynprog.PackQueryCompute(bc, 14, fourteenSequence, guar, sc) {
			bc.RemoveItemVirtual(5, fives)
			return &FiveNineStrategy{Fives: fives}, true
		}

		// Virtually hand a five to one bin below the threshold and
		// retry with a shorter fourteen sequence.
		lastAboveFive++
		fourteenSequence--
		bc.AddItemVirtual(5, 1)
		fives++

		ninesThreat = dynprog.PackQueryCompute(bc, 9, p.Bins, guar, sc)
	}

	bc.RemoveItemVirtual(5, fives)
	return nil, false
}
