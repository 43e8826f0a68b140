package util

import "math"

const jaroWinklerScaling = 0.1

// JaroWinkler returns a similarity in [0,1]; 1 means identical. Two empty
// strings are identical, an empty string against anything else scores 0.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1
	}
	left, right := []rune(a), []rune(b)
	m, halfTranspositions, prefix := jaroMatches(left, right)
	if m == 0 {
		return 0
	}
	fm := float64(m)
	j := (fm/float64(len(left)) + fm/float64(len(right)) + (fm-float64(halfTranspositions)/2)/fm) / 3
	if j < 0.7 {
		return j
	}
	return j + jaroWinklerScaling*float64(prefix)*(1-j)
}

func jaroMatches(first, second []rune) (matches, halfTranspositions, prefix int) {
	long, short := second, first
	if len(first) > len(second) {
		long, short = first, second
	}
	window := int(math.Max(float64(len(long)/2-1), 0))

	matchIndexes := make([]int, len(short))
	matchFlags := make([]bool, len(long))
	for i := range matchIndexes {
		matchIndexes[i] = -1
	}
	for si, c := range short {
		lo := max(si-window, 0)
		hi := min(si+window+1, len(long))
		for li := lo; li < hi; li++ {
			if !matchFlags[li] && c == long[li] {
				matchIndexes[si] = li
				matchFlags[li] = true
				matches++
				break
			}
		}
	}

	fromShort := make([]rune, 0, matches)
	for i, idx := range matchIndexes {
		if idx != -1 {
			fromShort = append(fromShort, short[i])
		}
	}
	fromLong := make([]rune, 0, matches)
	for i, flagged := range matchFlags {
		if flagged {
			fromLong = append(fromLong, long[i])
		}
	}
	for i := range fromShort {
		if fromShort[i] != fromLong[i] {
			halfTranspositions++
		}
	}

	for i := 0; i < min(4, len(short)); i++ {
		if first[i] != second[i] {
			break
		}
		prefix++
	}
	return matches, halfTranspositions, prefix
}
