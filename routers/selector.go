package routers

// scoredCandidate pairs an eligible candidate with its comparison metric.
type scoredCandidate struct {
	candidate
	estimate CostEstimate
}

// pickBest scans the eligible candidates once and returns the minimum-cost
// one, or nil for an empty input. Ties are broken by uniform reservoir
// sampling: the k-th candidate tied with the current best replaces it with
// probability 1/k, so every tied deployment wins equally often no matter
// where it sits in the input. Deterministic order-based tie-breaking would
// starve later-listed equally good deployments.
func pickBest(candidates []scoredCandidate, randFloat func() float64) *scoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	best := &candidates[0]
	ties := 1
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		switch compareEstimates(c.estimate, best.estimate) {
		case -1:
			best = c
			ties = 1
		case 0:
			ties++
			if randFloat() < 1.0/float64(ties) {
				best = c
			}
		}
	}
	return best
}

// compareEstimates orders two comparison metrics. Priced and volume metrics
// are not numerically commensurable, so any priced deployment ranks ahead
// of any volume-mode one; within the same mode, lower metric wins.
func compareEstimates(a, b CostEstimate) int {
	ra, rb := modeRank(a.Mode), modeRank(b.Mode)
	switch {
	case ra != rb:
		if ra < rb {
			return -1
		}
		return 1
	case a.Metric < b.Metric:
		return -1
	case a.Metric > b.Metric:
		return 1
	default:
		return 0
	}
}

func modeRank(m CostMode) int {
	if m == CostModePriced {
		return 0
	}
	return 1
}
