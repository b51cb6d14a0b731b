// Package heur holds the adversary-side heuristics of the search: the
// large-item and five-nine recognisers with their replayable strategy
// objects, and the algorithm-side good-situation rules.
package heur

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bohm/binstretch/pkg/cache"
	"github.com/bohm/binstretch/pkg/dynprog"
	"github.com/bohm/binstretch/pkg/game"
)

// Kind discriminates the strategy variants.
type Kind int

const (
	KindLargeItem Kind = iota
	KindFiveNine
)

// Oracle bundles the feasibility machinery a strategy may consult when
// producing its next move. Per-worker, never shared.
type Oracle struct {
	Guar    cache.FeasibilityCache
	Scratch *dynprog.Scratch
}

// Strategy prescribes all further adversary moves once a heuristic has
// recognised a won position. Strategies serialize into the heur
// attribute of saved DAG files and parse back.
type Strategy interface {
	// NextItem returns the item to send at the given depth below the
	// position where the heuristic fired.
	NextItem(bc *game.BinConf, relativeDepth int, o *Oracle) int
	Kind() Kind
	// Contents exposes the underlying data as a list of integers.
	Contents() []int
	String() string
}

// ListStrategy sends a fixed list of items, one per depth. Produced by
// the large-item recogniser.
type ListStrategy struct {
	Items []int
}

// NextItem returns the prescribed item for the given depth.
func (s *ListStrategy) NextItem(bc *game.BinConf, relativeDepth int, o *Oracle) int {
	if relativeDepth >= len(s.Items) {
		// Asking past the end of the list means the win condition
		// should already have been reached; a programming error.
		panic(fmt.Sprintf("heur: list strategy %v asked for depth %d", s.Items, relativeDepth))
	}
	return s.Items[relativeDepth]
}

func (s *ListStrategy) Kind() Kind      { return KindLargeItem }
func (s *ListStrategy) Contents() []int { return s.Items }

func (s *ListStrategy) String() string {
	parts := make([]string, len(s.Items))
	for i, it := range s.Items {
		parts[i] = strconv.Itoa(it)
	}
	return strings.Join(parts, ",")
}

// FiveNineStrategy replays the five-nine heuristic: a controlled number
// of fives, then nines or fourteens depending on the configuration
// reached. Specific to S=14, R=19.
type FiveNineStrategy struct {
	Fives int
}

// NextItem decides the move from the current configuration: fourteens
// if a finishing sequence of them fits, nines once some bin is loaded
// to ten or more, and fives otherwise.
func (s *FiveNineStrategy) NextItem(bc *game.BinConf, relativeDepth int, o *Oracle) int {
	p := bc.Tables().Params()

	aboveFive := firstWithLoad(bc, 5)
	if aboveFive >= 1 && dynprog.PackQueryCompute(bc, 14, p.Bins-aboveFive+1, o.Guar, o.Scratch) {
		return 14
	}
	if firstWithLoad(bc, 10) != -1 {
		return 9
	}
	return 5
}

func (s *FiveNineStrategy) Kind() Kind      { return KindFiveNine }
func (s *FiveNineStrategy) Contents() []int { return []int{s.Fives} }

func (s *FiveNineStrategy) String() string {
	return fmt.Sprintf("FN(%d)", s.Fives)
}

// firstWithLoad returns the largest bin position with load at least
// threshold, or -1. Loads are sorted non-increasingly, so this is the
// last such bin.
func firstWithLoad(bc *game.BinConf, threshold int) int {
	p := bc.Tables().Params()
	for i := p.Bins; i >= 1; i-- {
		if bc.Loads[i] >= threshold {
			return i
		}
	}
	return -1
}

// ParseStrategy reads the serialized form: "FN(k)" for five-nine,
// otherwise a comma-separated item list.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "FN(") {
		var fives int
		if _, err := fmt.Sscanf(s, "FN(%d)", &fives); err != nil || fives < 0 {
			return nil, fmt.Errorf("heur: cannot parse five-nine strategy %q", s)
		}
		return &FiveNineStrategy{Fives: fives}, nil
	}
	parts := strings.Split(s, ",")
	items := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("heur: cannot parse item list %q: %w", s, err)
		}
		items = append(items, n)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("heur: empty strategy string")
	}
	return &ListStrategy{Items: items}, nil
}
