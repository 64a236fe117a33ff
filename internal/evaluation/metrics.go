package evaluation

// Rate returns count/total, or 0.0 when total is zero.
func Rate(count, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return float64(count) / float64(total)
}

// Mean returns the arithmetic mean of values, or 0.0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Agreement is the fraction of positions where predicted equals expected.
// Positions past the shorter slice count as disagreement.
func Agreement(expected, predicted []Decision) float64 {
	n := max(len(expected), len(predicted))
	if n == 0 {
		return 0.0
	}
	matches := 0
	for i := 0; i < min(len(expected), len(predicted)); i++ {
		if expected[i] == predicted[i] {
			matches++
		}
	}
	return float64(matches) / float64(n)
}
