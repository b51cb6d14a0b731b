package heur

import (
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
)

// compatible reports whether the packing a leaves room for the large
// items recorded in lb: pair the largest remaining items with the
// least-loaded bins of a (both are sorted non-increasingly). The items
// in lb are chosen so that no two of them share a bin.
func compatible(a, lb *game.LoadConf, p game.Params) bool {
	for i := 1; i <= p.Bins; i++ {
		if lb.Loads[i] == 0 {
			break
		}
		if lb.Loads[i]+a.Loads[p.Bins-i+1] > p.S {
			return false
		}
	}
	return true
}

// matchLoadConfs returns the index of the first large-item
// configuration compatible with any of the packings, or -1.
func matchLoadConfs(packings, choices []*game.LoadConf, p game.Params) int {
	for i, choice := range choices {
		for _, packing := range packings {
			if compatible(packing, choice, p) {
				return i
			}
		}
	}
	return -1
}

// buildLargeItemChoices enumerates, per bin position, the shortest
// sequence of equal large items that forces a load of R: an item that
// cannot fit twice into the least-loaded bin and not at all into bin i
// must open its own bin, and there are not enough bins.
func buildLargeItemChoices(bc *game.BinConf) []*game.LoadConf {
	p := bc.Tables().Params()
	z := bc.Tables()
	var choices []*game.LoadConf

	notTwiceIntoLast := (p.R - bc.Loads[p.Bins] + 1) / 2
	// With odd remaining capacity on the last bin, one of the items
	// may be slightly smaller than half.
	odd := (p.R-bc.Loads[p.Bins])%2 == 1

	for i := p.Bins; i >= 1; i-- {
		notOnceIntoCurrent := p.R - bc.Loads[i]
		itemsToSend := p.Bins - i + 1

		if notOnceIntoCurrent > p.S {
			continue
		}

		choice := game.NewLoadConf(z)
		if odd && notOnceIntoCurrent <= notTwiceIntoLast-1 {
			for j := 1; j <= itemsToSend-1; j++ {
				choice.AssignLoad(notTwiceIntoLast, j)
			}
			choice.AssignLoad(notTwiceIntoLast-1, itemsToSend)
		} else {
			item := notTwiceIntoLast
			if notOnceIntoCurrent > item {
				item = notOnceIntoCurrent
			}
			for j := 1; j <= itemsToSend; j++ {
				choice.AssignLoad(item, j)
			}
		}
		choices = append(choices, choice)
	}
	return choices
}

// LargeItem runs the large-item recogniser: if some forcing sequence of
// large items is offline-compatible with a feasible packing of the
// current multiset, the adversary wins by sending it. Returns the
// winning sequence as a strategy.
func LargeItem(bc *game.BinConf, sc *dynprog.Scratch) (*ListStrategy, bool) {
	p := bc.Tables().Params()
	choices := buildLargeItemChoices(bc)
	if len(choices) == 0 {
		return nil, false
	}
	packings := dynprog.AllPackings(bc, sc)
	idx := matchLoadConfs(packings, choices, p)
	if idx == -1 {
		return nil, false
	}

	var items []int
	for i := 1; i <= p.Bins; i++ {
		if choices[idx].Loads[i] == 0 {
			break
		}
		items = append(items, choices[idx].Loads[i])
	}
	return &ListStrategy{Items: items}, true
}
