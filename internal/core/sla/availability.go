package sla

// Ratio returns the share of successes in window. ok is false for an
// empty window, which has no defined ratio.
func Ratio(window []bool) (ratio float64, ok bool) {
	if len(window) == 0 {
		return 0, false
	}
	var up int
	for _, v := range window {
		if v {
			up++
		}
	}
	return float64(up) / float64(len(window)), true
}

// Evaluate reports whether the success ratio of window is strictly above
// threshold. A ratio equal to the threshold reads as down.
//
// An empty window evaluates to false: until a target has produced at
// least one outcome there is no evidence that it is available.
func Evaluate(window []bool, threshold float64) bool {
	ratio, ok := Ratio(window)
	if !ok {
		return false
	}
	return ratio > threshold
}
