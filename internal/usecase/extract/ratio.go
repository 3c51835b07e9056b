package extract

// matchRatio computes the similarity of two strings as
// 2*M / (len(a)+len(b)), where M is the total length of the matching
// blocks found by recursively taking the longest common substring.
// Equivalent to a sequence-matcher ratio without junk handling.
func matchRatio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	m := matchingBlocks(a, b)
	return 2.0 * float64(m) / float64(total)
}

func matchingBlocks(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}

	return size +
		matchingBlocks(a[:ai], b[:bi]) +
		matchingBlocks(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// prev[j] holds the match length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
