package ask

import (
	"strings"
	"testing"

	"github.com/cove-labs/concierge/internal/domain"
)

func TestColorStockLines_HintGating(t *testing.T) {
	ground := []domain.Document{hoodieDoc()}

	t.Run("hints off", func(t *testing.T) {
		svc := &Service{opts: Options{LowStockThreshold: 3, SurfaceStockHints: false}}
		lines := svc.colorStockLines([]string{"black"}, ground)
		if len(lines) != 1 || lines[0] != "Black in stock: S, L." {
			t.Errorf("got %v", lines)
		}
	})

	t.Run("hints on", func(t *testing.T) {
		svc := &Service{opts: Options{LowStockThreshold: 3, SurfaceStockHints: true}}
		lines := svc.colorStockLines([]string{"black"}, ground)
		if len(lines) != 1 || lines[0] != "Black in stock: S (few left), L (few left)." {
			t.Errorf("got %v", lines)
		}
	})

	t.Run("unknown color", func(t *testing.T) {
		svc := &Service{}
		lines := svc.colorStockLines([]string{"red"}, ground)
		if len(lines) != 1 || lines[0] != "Red not found in cited products." {
			t.Errorf("got %v", lines)
		}
	})
}

func TestColorListing(t *testing.T) {
	mk := func(title, typ string, colors ...string) domain.Document {
		variants := make([]domain.ColorVariant, len(colors))
		for i, c := range colors {
			variants[i] = domain.ColorVariant{Name: c}
		}
		return domain.Document{
			Kind:  domain.KindProduct,
			Title: title,
			Meta:  domain.Metadata{Type: typ, Colors: variants},
		}
	}

	ground := []domain.Document{
		mk("Black Hoodie", "hoodie", "black", "cream"),
		mk("Linen Dress", "dress", "white"),
		mk("Denim Jacket", "jacket", "blue"),
	}

	t.Run("caps at two products", func(t *testing.T) {
		got := colorListing(ground, nil)
		if !strings.Contains(got, "Black Hoodie") || !strings.Contains(got, "Linen Dress") {
			t.Errorf("got %q", got)
		}
		if strings.Contains(got, "Denim Jacket") {
			t.Errorf("listing should stop at %d products: %q", maxColorListings, got)
		}
	})

	t.Run("filters by requested type", func(t *testing.T) {
		got := colorListing(ground, []string{"dress"})
		if !strings.Contains(got, "Linen Dress") || strings.Contains(got, "Black Hoodie") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("nothing to list", func(t *testing.T) {
		if got := colorListing(nil, nil); got != "" {
			t.Errorf("got %q", got)
		}
	})
}

func TestShrinkageLine(t *testing.T) {
	svc := &Service{}

	hit := domain.RetrievalHit{Doc: domain.Document{Text: "Pre-washed cotton, minimal shrinkage expected."}}

	t.Run("covered by context", func(t *testing.T) {
		got := svc.shrinkageLine("Minimal shrinkage expected. Wash cold.", []domain.RetrievalHit{hit})
		if got != "Minimal shrinkage expected." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("not covered", func(t *testing.T) {
		plain := domain.RetrievalHit{Doc: domain.Document{Text: "A soft hoodie."}}
		got := svc.shrinkageLine("Something.", []domain.RetrievalHit{plain})
		if got != "Shrinkage: not stated in catalog." {
			t.Errorf("got %q", got)
		}
	})
}
