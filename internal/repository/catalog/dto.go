package catalog

import (
	"encoding/json"
	"strings"

	"github.com/cove-labs/concierge/internal/domain"
)

// docFromFields hydrates a domain Document from a flat RediSearch hash.
// The meta field carries the structured metadata as a JSON blob; a
// malformed blob degrades to empty metadata rather than failing the
// search.
func (s *Store) docFromFields(key string, m map[string]string) domain.Document {
	doc := domain.Document{
		ID:    strings.TrimPrefix(key, s.keyPrefix()),
		Kind:  m["kind"],
		Title: m["title"],
		Text:  m["__content"],
		URL:   m["url"],
	}

	if raw, ok := m["meta"]; ok && raw != "" {
		var meta domain.Metadata
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			doc.Meta = normalizeMeta(meta)
		}
	}

	return doc
}

// normalizeMeta rejects stock values outside a plausible range. Values
// above the cap are treated as prices that leaked into the stock column.
const maxPlausibleStock = 50

func normalizeMeta(meta domain.Metadata) domain.Metadata {
	for i, c := range meta.Colors {
		if len(c.Sizes) == 0 {
			continue
		}
		sizes := make(map[domain.Size]int, len(c.Sizes))
		for size, n := range c.Sizes {
			if n < 0 || n > maxPlausibleStock {
				continue
			}
			sizes[size] = n
		}
		meta.Colors[i].Sizes = sizes
	}
	return meta
}
