package heur

import (
	"github.com/bohm/binstretch/pkg/game"
)

// Measurements counts recogniser traffic for one worker.
type Measurements struct {
	LargeItemCalls uint64 `json:"large_item_calls"`
	LargeItemHits  uint64 `json:"large_item_hits"`
	FiveNineCalls  uint64 `json:"five_nine_calls"`
	FiveNineHits   uint64 `json:"five_nine_hits"`
	GoodSituations uint64 `json:"good_situations"`
}

// Add folds another measurement set into this one.
func (m *Measurements) Add(other Measurements) {
	m.LargeItemCalls += other.LargeItemCalls
	m.LargeItemHits += other.LargeItemHits
	m.FiveNineCalls += other.FiveNineCalls
	m.FiveNineHits += other.FiveNineHits
	m.GoodSituations += other.GoodSituations
}

// Adversary runs the adversary-side heuristics on the current position.
// On a win it returns the strategy that realises it; otherwise the
// position stays uncertain. bc is restored before returning.
func Adversary(bc *game.BinConf, o *Oracle, meas *Measurements) (Strategy, game.Victory) {
	p := bc.Tables().Params()

	// A much weaker variant of the large-item heuristic in O(1) time:
	// with total load at most S and the second bin already at R-S,
	// sending Bins-1 items of size S forces a load of R.
	if bc.TotalLoad <= p.S && bc.Loads[2] >= p.R-p.S {
		items := make([]int, p.Bins-1)
		for i := range items {
			items[i] = p.S
		}
		return &ListStrategy{Items: items}, game.Adv
	}

	meas.LargeItemCalls++
	if strat, ok := LargeItem(bc, o.Scratch); ok {
		meas.LargeItemHits++
		return strat, game.Adv
	}

	if p.S == 14 && p.R == 19 {
		meas.FiveNineCalls++
		if strat, ok := FiveNine(bc, o.Guar, o.Scratch); ok {
			meas.FiveNineHits++
			return strat, game.Adv
		}
	}

	return nil, game.Uncertain
}
