package domain

import "strings"

// Vocabulary is a snapshot of the known catalog colors and types, all
// lowercased. Snapshots are immutable once built; the cache swaps
// whole snapshots on refresh.
type Vocabulary struct {
	Colors map[string]struct{}
	Types  map[string]struct{}
}

// NewVocabulary builds a snapshot from raw value lists, lowercasing
// and dropping empties.
func NewVocabulary(colors, types []string) Vocabulary {
	return Vocabulary{Colors: toSet(colors), Types: toSet(types)}
}

// HasColor reports whether the (lowercased) token is a known color.
func (v Vocabulary) HasColor(tok string) bool {
	_, ok := v.Colors[tok]
	return ok
}

// HasType reports whether the (lowercased) token is a known type.
func (v Vocabulary) HasType(tok string) bool {
	_, ok := v.Types[tok]
	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, val := range values {
		if val == "" {
			continue
		}
		set[strings.ToLower(val)] = struct{}{}
	}
	return set
}
