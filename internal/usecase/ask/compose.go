package ask

import (
	"strings"

	"github.com/cove-labs/concierge/internal/domain"
)

// maxColorListings bounds how many products get a color listing line.
const maxColorListings = 2

var shrinkageWords = []string{"shrink", "shrinkage", "wash", "washing", "dryer", "drying"}

// compose builds the final answer text. Requested colors produce
// store-verified stock lines; without a color the cited products'
// color ranges are listed. When no structured line applies, the
// verified model answer stands.
func (s *Service) compose(
	query string, attrs domain.AttributeFilter, verified string,
	ground []domain.Document, hits []domain.RetrievalHit,
) string {
	var lines []string

	if asksShrinkage(query) {
		lines = append(lines, s.shrinkageLine(verified, hits))
	}

	if len(attrs.Colors) > 0 {
		lines = append(lines, s.colorStockLines(attrs.Colors, ground)...)
	} else if listing := colorListing(ground, attrs.Types); listing != "" {
		lines = append(lines, listing)
	}

	if len(lines) == 0 {
		return withPeriod(verified)
	}
	return strings.Join(lines, " ")
}

// colorStockLines reports, per requested color, which sizes the cited
// products actually have in stock. Stock levels surface only as a
// "few left" hint, never as counts.
func (s *Service) colorStockLines(colors []string, ground []domain.Document) []string {
	lines := make([]string, 0, len(colors))
	for _, color := range colors {
		variant, ok := findColor(ground, color)
		if !ok {
			lines = append(lines, titleCase(color)+" not found in cited products.")
			continue
		}

		var sized []string
		for _, size := range domain.AllSizes {
			n, has := variant.Sizes[size]
			if !has || n <= 0 {
				continue
			}
			entry := string(size)
			if s.opts.SurfaceStockHints && n <= s.opts.LowStockThreshold {
				entry += " (few left)"
			}
			sized = append(sized, entry)
		}

		if len(sized) == 0 {
			lines = append(lines, titleCase(color)+" in stock: sizes not listed.")
			continue
		}
		lines = append(lines, titleCase(color)+" in stock: "+strings.Join(sized, ", ")+".")
	}
	return lines
}

// colorListing enumerates the color range of the first cited products,
// filtered to the requested types when any were extracted.
func colorListing(ground []domain.Document, types []string) string {
	wanted := make(map[string]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	var listed []string
	for _, d := range ground {
		if len(listed) == maxColorListings {
			break
		}
		if d.Kind != domain.KindProduct {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[strings.ToLower(d.Meta.Type)]; !ok {
				continue
			}
		}
		names := d.Meta.ColorNames()
		if len(names) == 0 {
			continue
		}
		pretty := make([]string, len(names))
		for i, n := range names {
			pretty[i] = titleCase(n)
		}
		title := d.Title
		if title == "" {
			title = "Product"
		}
		listed = append(listed, title+": "+strings.Join(pretty, ", ")+".")
	}

	if len(listed) == 0 {
		return ""
	}
	return "Available colors: " + strings.Join(listed, " ")
}

// shrinkageLine answers care questions from the model draft when the
// retrieved context covers shrinkage, and says so when it does not.
func (s *Service) shrinkageLine(verified string, hits []domain.RetrievalHit) string {
	covered := false
	for _, h := range hits {
		if strings.Contains(strings.ToLower(h.Doc.Text), "shrink") {
			covered = true
			break
		}
	}
	if !covered {
		return "Shrinkage: not stated in catalog."
	}
	first, _, _ := strings.Cut(verified, ".")
	first = strings.TrimSpace(first)
	if first == "" {
		return "Shrinkage: not stated in catalog."
	}
	return withPeriod(first)
}

// findColor locates a color variant by name across the cited products.
func findColor(ground []domain.Document, color string) (domain.ColorVariant, bool) {
	for _, d := range ground {
		if d.Kind != domain.KindProduct {
			continue
		}
		if v, ok := d.Meta.Color(color); ok {
			return v, true
		}
	}
	return domain.ColorVariant{}, false
}

func asksShrinkage(query string) bool {
	q := strings.ToLower(query)
	for _, w := range shrinkageWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

func withPeriod(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
