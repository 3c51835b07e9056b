package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Document kinds stored in the catalog index.
const (
	KindProduct = "product"
	KindPolicy  = "policy"
)

// Size is a catalog garment size. The enumeration is fixed; metadata
// carrying any other size key is ignored.
type Size string

// Supported sizes.
const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// AllSizes lists the supported sizes in canonical XS..XXL order.
var AllSizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}

var sizeOrder = func() map[Size]int {
	m := make(map[Size]int, len(AllSizes))
	for i, s := range AllSizes {
		m[s] = i
	}
	return m
}()

// ParseSize normalizes a raw size label. Returns false for labels
// outside the supported enumeration.
func ParseSize(raw string) (Size, bool) {
	s := Size(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := sizeOrder[s]
	return s, ok
}

// SizeRank returns the position of s in canonical order, or -1 if s is
// not a supported size.
func SizeRank(s Size) int {
	if i, ok := sizeOrder[s]; ok {
		return i
	}
	return -1
}

// ColorVariant is one color of a product with its per-size stock.
type ColorVariant struct {
	Name      string       `json:"colorName"`
	VariantID string       `json:"variantId,omitempty"`
	Sizes     map[Size]int `json:"sizes,omitempty"`
}

// UnmarshalJSON tolerates the loosely typed upstream sizes map: keys
// outside the size enumeration are dropped, and decimal values are
// rejected as prices that leaked into a stock column.
func (c *ColorVariant) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name      string                 `json:"colorName"`
		VariantID string                 `json:"variantId"`
		Sizes     map[string]json.Number `json:"sizes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.VariantID = raw.VariantID
	c.Sizes = nil
	if len(raw.Sizes) == 0 {
		return nil
	}
	c.Sizes = make(map[Size]int, len(raw.Sizes))
	for k, v := range raw.Sizes {
		size, ok := ParseSize(k)
		if !ok {
			continue
		}
		s := v.String()
		if strings.ContainsAny(s, ".,") {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		c.Sizes[size] = n
	}
	return nil
}

// Metadata is the structured portion of a catalog document. Fields are
// optional; absent values stay nil/empty rather than being probed for.
type Metadata struct {
	Slug       string         `json:"slug,omitempty"`
	Type       string         `json:"type,omitempty"`
	Tier       string         `json:"tier,omitempty"`
	Gender     string         `json:"gender,omitempty"`
	Material   string         `json:"material,omitempty"`
	Price      *float64       `json:"price,omitempty"`
	Popularity *float64       `json:"popularity,omitempty"`
	Colors     []ColorVariant `json:"colors,omitempty"`
}

// ColorNames returns the lowercased color names present in the metadata.
func (m Metadata) ColorNames() []string {
	names := make([]string, 0, len(m.Colors))
	for _, c := range m.Colors {
		if n := strings.ToLower(strings.TrimSpace(c.Name)); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Color finds a variant by case-insensitive color name.
func (m Metadata) Color(name string) (ColorVariant, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range m.Colors {
		if strings.ToLower(strings.TrimSpace(c.Name)) == want {
			return c, true
		}
	}
	return ColorVariant{}, false
}

// SizeKeys returns the union of size keys across all color variants.
func (m Metadata) SizeKeys() map[Size]struct{} {
	keys := make(map[Size]struct{})
	for _, c := range m.Colors {
		for s := range c.Sizes {
			keys[s] = struct{}{}
		}
	}
	return keys
}

// InStockSizes returns sizes with positive stock in any color variant,
// in canonical order.
func (m Metadata) InStockSizes() []Size {
	stock := make(map[Size]int)
	for _, c := range m.Colors {
		for s, n := range c.Sizes {
			if n > 0 {
				stock[s] += n
			}
		}
	}
	out := make([]Size, 0, len(stock))
	for _, s := range AllSizes {
		if _, ok := stock[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Document is a catalog document as read from the store. The catalog
// collaborator owns and mutates these rows; this service only reads
// them per request.
type Document struct {
	ID     string
	Kind   string
	Title  string
	Text   string
	URL    string
	Meta   Metadata
	Vector []float32
}
