package dynprog

import (
	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/game"
)

// EngineMeasurements counts the work done by the maximum-feasible
// engine for one worker. Not shared between goroutines; folded together
// by the overseer at round end.
type EngineMeasurements struct {
	MaximumFeasibleCalls uint64 `json:"maximum_feasible_calls"`
	OnlineFitSufficient  uint64 `json:"online_fit_sufficient"`
	BestFitCalls         uint64 `json:"best_fit_calls"`
	BestFitSufficient    uint64 `json:"best_fit_sufficient"`
	DynprogCalls         uint64 `json:"dynprog_calls"`
}

// Add folds another measurement set into this one.
func (m *EngineMeasurements) Add(other EngineMeasurements) {
	m.MaximumFeasibleCalls += other.MaximumFeasibleCalls
	m.OnlineFitSufficient += other.OnlineFitSufficient
	m.BestFitCalls += other.BestFitCalls
	m.BestFitSufficient += other.BestFitSufficient
	m.DynprogCalls += other.DynprogCalls
}

// PackAndQuery asks the guarantee cache whether bc's multiset plus
// count items of the given size is feasible. bc is restored before
// returning.
func PackAndQuery(bc *game.BinConf, item, count int, guar cache.FeasibilityCache) (found, feasible bool) {
	bc.AddItemVirtual(item, count)
	found, feasible = guar.Lookup(bc)
	bc.RemoveItemVirtual(item, count)
	return found, feasible
}

// PackAndEncache records the feasibility of bc's multiset plus count
// items of the given size. bc is restored before returning.
func PackAndEncache(bc *game.BinConf, item, count int, feasible bool, guar cache.FeasibilityCache) {
	bc.AddItemVirtual(item, count)
	guar.Insert(bc, feasible)
	bc.RemoveItemVirtual(item, count)
}

// PackQueryCompute answers the feasibility of bc's multiset plus count
// items of the given size, consulting the cache first and falling back
// to the dynamic program (caching the answer).
func PackQueryCompute(bc *game.BinConf, item, count int, guar cache.FeasibilityCache, sc *Scratch) bool {
	bc.AddItemVirtual(item, count)
	found, feasible := guar.Lookup(bc)
	if !found {
		feasible = MaxFeasible(bc, sc) != Infeasible
		guar.Insert(bc, feasible)
	}
	bc.RemoveItemVirtual(item, count)
	return feasible
}

// MaximumFeasible returns the largest item size m in
// [cannotSendLess, initialUB] such that bc's multiset plus m remains
// offline-feasible, or Infeasible when no such m exists. Most search
// time is spent here; the expensive dynamic program runs only after the
// online-fit bound, the guarantee cache and a best-fit-decreasing
// witness have all failed to pin the answer down.
func MaximumFeasible(bc *game.BinConf, cannotSendLess, initialUB int,
	ol *OnlineLoads, guar cache.FeasibilityCache, sc *Scratch, meas *EngineMeasurements) int {

	p := bc.Tables().Params()
	meas.MaximumFeasibleCalls++

	lb := ol.Witness() // certainly feasible
	ub := p.S*p.Bins - bc.TotalLoad
	if initialUB < ub {
		ub = initialUB
	}

	if cannotSendLess > ub {
		return Infeasible
	}
	if lb > ub {
		// Feasibility is monotone downward in the item size, so
		// shrinking a certainly-feasible bound keeps it certain.
		lb = ub
	}

	lbCertain := true
	if lb < cannotSendLess {
		lb = cannotSendLess
		lbCertain = false
		if found, feasible := PackAndQuery(bc, lb, 1, guar); found {
			if !feasible {
				return Infeasible
			}
			lbCertain = true
		}
	}

	if lb == ub && lbCertain {
		meas.OnlineFitSufficient++
		return lb
	}

	// Walk the cache from the top: every known-feasible value raises
	// the bound from below, every known-infeasible one caps it.
	for q := ub; q >= lb; q-- {
		found, feasible := PackAndQuery(bc, q, 1, guar)
		if !found {
			continue
		}
		if feasible {
			lb = q
			lbCertain = true
			break
		}
		ub = q - 1
	}

	cacheLB, cacheUB := lb, ub
	if lb > ub {
		return Infeasible
	}
	if lb == ub && lbCertain {
		return lb
	}

	meas.BestFitCalls++
	if witness, ok := BestFitWitness(bc); ok {
		if witness > ub {
			witness = ub
		}
		if witness >= lb {
			for x := lb; x <= witness; x++ {
				PackAndEncache(bc, x, 1, true, guar)
			}
			lb = witness
			lbCertain = true
		}
	}
	if lb == ub && lbCertain {
		meas.BestFitSufficient++
		return lb
	}

	meas.DynprogCalls++
	maxFeas := MaxFeasible(bc, sc)
	for i := maxFeas + 1; i <= cacheUB; i++ {
		if i >= 1 {
			PackAndEncache(bc, i, 1, false, guar)
		}
	}
	for i := cacheLB; i <= maxFeas; i++ {
		if i >= 1 {
			PackAndEncache(bc, i, 1, true, guar)
		}
	}

	if maxFeas < lb {
		return Infeasible
	}
	return maxFeas
}
