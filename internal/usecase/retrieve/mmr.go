package retrieve

import (
	"math"
	"regexp"
	"strings"
)

// SimFunc reports the similarity of candidates i and j in [0,1].
type SimFunc func(i, j int) float64

// MMR greedily selects up to k of n candidates by maximal marginal
// relevance: each step picks the candidate maximizing
// lambda*relevance - (1-lambda)*maxSimToSelected. With lambda 1 this
// degenerates to relevance-only top-k. The returned indices are unique
// and in selection order.
func MMR(relevance []float64, sim SimFunc, lambda float64, k int) []int {
	n := len(relevance)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	selected := make([]int, 0, k)
	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < k {
		bestPos := -1
		bestScore := math.Inf(-1)
		for pos, i := range remaining {
			score := relevance[i]
			if lambda < 1 {
				maxSim := 0.0
				for _, j := range selected {
					if s := sim(i, j); s > maxSim {
						maxSim = s
					}
				}
				score = lambda*relevance[i] - (1-lambda)*maxSim
			}
			if score > bestScore {
				bestScore = score
				bestPos = pos
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

var simTokenRegex = regexp.MustCompile(`[a-z0-9]+`)

// TextSim builds a token-overlap similarity over the given texts:
// |a ∩ b| / sqrt(|a| * |b|) over lowercase word sets.
func TextSim(texts []string) SimFunc {
	sets := make([]map[string]struct{}, len(texts))
	for i, t := range texts {
		set := make(map[string]struct{})
		for _, tok := range simTokenRegex.FindAllString(strings.ToLower(t), -1) {
			set[tok] = struct{}{}
		}
		sets[i] = set
	}

	return func(i, j int) float64 {
		a, b := sets[i], sets[j]
		if len(a) == 0 || len(b) == 0 {
			return 0
		}
		inter := 0
		for tok := range a {
			if _, ok := b[tok]; ok {
				inter++
			}
		}
		return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
	}
}

// VectorSim builds a cosine similarity over the given embeddings.
// Vectors are L2-normalized up front so each pair costs one dot
// product.
func VectorSim(vectors [][]float32) SimFunc {
	normed := make([][]float32, len(vectors))
	for i, v := range vectors {
		normed[i] = l2Normalize(v)
	}

	return func(i, j int) float64 {
		a, b := normed[i], normed[j]
		if len(a) == 0 || len(a) != len(b) {
			return 0
		}
		var dot float64
		for k := range a {
			dot += float64(a[k]) * float64(b[k])
		}
		if dot < 0 {
			return 0
		}
		return dot
	}
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
