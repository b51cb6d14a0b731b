package tasks

import (
	"fmt"

	"github.com/bohm/binstretch/pkg/game"
)

// BoundaryMode selects the predicate that decides when generation stops
// descending and emits a task.
type BoundaryMode string

const (
	// BoundaryMixed cuts on load gained since the computation root OR
	// on call depth, whichever triggers first. The default.
	BoundaryMixed BoundaryMode = "mixed"
	// BoundaryDepth cuts on call depth alone.
	BoundaryDepth BoundaryMode = "depth"
	// BoundaryLoad cuts on gained load alone.
	BoundaryLoad BoundaryMode = "load"
	// BoundarySizeAdjusted prefers deeper cuts while the largest item
	// played since the root is small, where positions stay cheap.
	BoundarySizeAdjusted BoundaryMode = "size-adjusted"
)

// Boundary evaluates the cut-off predicate for a candidate position
// during generation.
type Boundary struct {
	Mode      BoundaryMode
	LoadGain  int // tau: load above the computation root
	DepthCut  int // delta: plies below the computation root
	rootLoad  int
	rootDepth int
}

// NewBoundary binds the thresholds to a computation root.
func NewBoundary(mode BoundaryMode, loadGain, depthCut int, root *game.BinConf, rootDepth int) (*Boundary, error) {
	switch mode {
	case BoundaryMixed, BoundaryDepth, BoundaryLoad, BoundarySizeAdjusted:
	default:
		return nil, fmt.Errorf("tasks: unknown boundary mode %q", mode)
	}
	return &Boundary{
		Mode:      mode,
		LoadGain:  loadGain,
		DepthCut:  depthCut,
		rootLoad:  root.TotalLoad,
		rootDepth: rootDepth,
	}, nil
}

// PossibleTask reports whether the position qualifies as a boundary
// task. depth is the generator's call depth below the root;
// largestSinceRoot the largest item played since the root.
func (b *Boundary) PossibleTask(bc *game.BinConf, depth, largestSinceRoot int) bool {
	switch b.Mode {
	case BoundaryDepth:
		return depth >= b.DepthCut
	case BoundaryLoad:
		return bc.TotalLoad-b.rootLoad >= b.LoadGain
	case BoundarySizeAdjusted:
		p := bc.Tables().Params()
		target := b.DepthCut
		if largestSinceRoot < 3 {
			target += 3
		} else if largestSinceRoot < p.S/4 {
			target += 1
		}
		return depth >= target
	default: // BoundaryMixed
		return bc.TotalLoad-b.rootLoad >= b.LoadGain || depth >= b.DepthCut
	}
}
