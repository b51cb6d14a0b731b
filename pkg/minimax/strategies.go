package minimax

// CandidateOrder decides the order in which the adversary tries its
// feasible items. Every order must cover exactly the integers in
// [lowest, maxFeas].
type CandidateOrder interface {
	Candidates(dst []int, maxFeas, lowest int) []int
}

// DescendingOrder tries items from the maximum feasible downwards, the
// default: large items constrain the algorithm most.
type DescendingOrder struct{}

// Candidates appends maxFeas..lowest to dst.
func (DescendingOrder) Candidates(dst []int, maxFeas, lowest int) []int {
	for item := maxFeas; item >= lowest; item-- {
		dst = append(dst, item)
	}
	return dst
}

// NineteenFourteenOrder tries item sizes in the frequency order
// observed in solved 19/14 instances, which tends to find refutations
// sooner than plain descending order.
type NineteenFourteenOrder struct{}

var nineteenFourteenFreqs = [...]int{11, 9, 10, 12, 6, 7, 5, 4, 3, 8, 13, 2, 1, 14}

// Candidates appends the frequency-ordered sizes within range.
func (NineteenFourteenOrder) Candidates(dst []int, maxFeas, lowest int) []int {
	for _, item := range nineteenFourteenFreqs {
		if item >= lowest && item <= maxFeas {
			dst = append(dst, item)
		}
	}
	return dst
}
