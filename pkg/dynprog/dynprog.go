// Package dynprog decides offline feasibility: whether the multiset of
// items played so far still packs into Bins bins of capacity S. It
// drives the adversary's move generator through the maximum-feasible
// engine, with best-fit and online-fit heuristics providing cheap
// bounds before the full dynamic program runs.
package dynprog

import (
	"math/rand"

	"github.com/bohm/binstretch/pkg/game"
)

// Infeasible is the sentinel returned when no item (not even the empty
// addition) keeps the multiset packable.
const Infeasible = -1

// loadTableSize is the size of the per-round "already seen" set used to
// deduplicate frontier tuples. Must be a power of two.
const loadTableSize = 1 << 13

// Scratch is the per-worker state of the dynamic program: the two
// frontier queues, the dedup table and the salt source. Never shared
// between goroutines.
type Scratch struct {
	oldq, newq []*game.LoadConf
	seen       [loadTableSize]uint64
	rng        *rand.Rand
}

// NewScratch allocates scratch state. The seed only perturbs the salted
// dedup hashing inside a single DP run; results are deterministic
// regardless of it.
func NewScratch(seed int64) *Scratch {
	return &Scratch{
		oldq: make([]*game.LoadConf, 0, 256),
		newq: make([]*game.LoadConf, 0, 256),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (sc *Scratch) reset() uint64 {
	sc.oldq = sc.oldq[:0]
	sc.newq = sc.newq[:0]
	for i := range sc.seen {
		sc.seen[i] = 0
	}
	return sc.rng.Uint64()
}

func (sc *Scratch) seenBefore(h uint64) bool {
	return sc.seen[pos(h)] == h
}

func (sc *Scratch) markSeen(h uint64) {
	sc.seen[pos(h)] = h
}

func pos(h uint64) uint64 { return h & (loadTableSize - 1) }

// MaxFeasible returns the largest item size m such that the multiset of
// bc's items plus one item of size m still packs into Bins bins of
// capacity S, or 0 when the multiset packs but nothing can be added, or
// Infeasible when the multiset itself does not pack. Only the item
// histogram of bc is consulted; the online loads play no role offline.
//
// The frontier is expanded size by size from S downwards; bins with the
// same load as their right neighbour are skipped (placing into either
// yields the same sorted tuple) and a salted hash table drops tuples
// already on the frontier.
func MaxFeasible(bc *game.BinConf, sc *Scratch) int {
	z := bc.Tables()
	p := z.Params()
	salt := sc.reset()

	if bc.ItemCount == 0 {
		return p.S
	}

	smallest := 0
	for s := 1; s <= p.S; s++ {
		if bc.Items[s] > 0 {
			smallest = s
			break
		}
	}

	maxOverall := Infeasible
	initialPhase := true

	// Items of size S occupy whole bins; peel them off first.
	if bc.Items[p.S] > 0 {
		if bc.Items[p.S] > p.Bins {
			return Infeasible
		}
		if smallest == p.S {
			if bc.Items[p.S] == p.Bins {
				return 0
			}
			return p.S
		}
		first := game.NewLoadConf(z)
		for i := 1; i <= bc.Items[p.S]; i++ {
			first.Loads[i] = p.S
		}
		first.HashInitLoads()
		sc.newq = append(sc.newq, first)
		initialPhase = false
		sc.oldq, sc.newq = sc.newq, sc.oldq[:0]
	}

	for size := p.S - 1; size >= 2; size-- {
		for k := bc.Items[size]; k > 0; k-- {
			if initialPhase {
				first := game.NewLoadConf(z)
				first.AssignLoad(size, 1)
				sc.newq = append(sc.newq, first)
				initialPhase = false
				if size == smallest && k == 1 {
					return p.S
				}
			} else {
				for _, tuple := range sc.oldq {
					for i := p.Bins; i >= 1; i-- {
						if i < p.Bins && tuple.Loads[i] == tuple.Loads[i+1] {
							continue
						}
						if tuple.Loads[i]+size > p.S {
							break
						}
						newpos := tuple.AssignLoad(size, i)
						if !sc.seenBefore(tuple.LoadHash ^ salt) {
							if size == smallest && k == 1 {
								if slack := p.S - tuple.Loads[p.Bins]; slack > maxOverall {
									maxOverall = slack
								}
							}
							sc.newq = append(sc.newq, tuple.CloneLoads())
							sc.markSeen(tuple.LoadHash ^ salt)
						}
						tuple.UnassignLoad(size, newpos)
					}
				}
				if len(sc.newq) == 0 {
					return Infeasible
				}
			}
			sc.oldq, sc.newq = sc.newq, sc.oldq[:0]
		}
	}

	// Items of size one reduce to a volume check.
	if bc.Items[1] > 0 {
		freeVolume := p.S*p.Bins - bc.TotalLoad
		if freeVolume < 0 {
			return Infeasible
		}
		if freeVolume == 0 {
			return 0
		}
		for _, tuple := range sc.oldq {
			slack := p.S - tuple.Loads[p.Bins]
			if slack > freeVolume {
				slack = freeVolume
			}
			if slack > maxOverall {
				maxOverall = slack
			}
		}
		if initialPhase {
			// Only items of size one were played.
			if freeVolume > p.S {
				return p.S
			}
			return freeVolume
		}
	}

	return maxOverall
}

// Feasible reports whether bc's item multiset packs into Bins bins of
// capacity S.
func Feasible(bc *game.BinConf, sc *Scratch) bool {
	return MaxFeasible(bc, sc) != Infeasible
}

// AllPackings expands the full frontier and returns every reachable
// sorted load tuple of a complete packing. Used by the large-item
// heuristic, which needs the packings themselves rather than the
// maximum slack.
func AllPackings(bc *game.BinConf, sc *Scratch) []*game.LoadConf {
	z := bc.Tables()
	p := z.Params()
	salt := sc.reset()

	initialPhase := true
	for size := p.S; size >= 1; size-- {
		for k := bc.Items[size]; k > 0; k-- {
			if initialPhase {
				first := game.NewLoadConf(z)
				first.AssignLoad(size, 1)
				sc.newq = append(sc.newq, first)
				initialPhase = false
			} else {
				for _, tuple := range sc.oldq {
					for i := p.Bins; i >= 1; i-- {
						if i < p.Bins && tuple.Loads[i] == tuple.Loads[i+1] {
							continue
						}
						if tuple.Loads[i]+size > p.S {
							break
						}
						newpos := tuple.AssignLoad(size, i)
						if !sc.seenBefore(tuple.LoadHash ^ salt) {
							sc.newq = append(sc.newq, tuple.CloneLoads())
							sc.markSeen(tuple.LoadHash ^ salt)
						}
						tuple.UnassignLoad(size, newpos)
					}
				}
				if len(sc.newq) == 0 {
					return nil
				}
			}
			sc.oldq, sc.newq = sc.newq, sc.oldq[:0]
		}
	}

	out := make([]*game.LoadConf, len(sc.oldq))
	copy(out, sc.oldq)
	return out
}
