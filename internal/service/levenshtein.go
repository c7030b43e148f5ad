package service

// levenshtein computes the rune-level edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// withinDistance reports whether levenshtein(a, b) is in (0, tolerance].
// Pairs whose lengths differ by more than tolerance are rejected without
// running the full computation.
func withinDistance(a, b string, tolerance int) bool {
	if a == b || tolerance <= 0 {
		return false
	}
	diff := len([]rune(a)) - len([]rune(b))
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return false
	}
	return levenshtein(a, b) <= tolerance
}
