package answer

import (
	"testing"

	"github.com/cove-labs/concierge/internal/domain"
)

func productDoc(price float64, sizes map[domain.Size]int) domain.Document {
	return domain.Document{
		ID:    "p1",
		Kind:  domain.KindProduct,
		Title: "Black Hoodie",
		Meta: domain.Metadata{
			Slug:  "black-hoodie",
			Price: &price,
			Colors: []domain.ColorVariant{
				{Name: "black", Sizes: sizes},
			},
		},
	}
}

func TestVerify_RewritesUnsupportedPrice(t *testing.T) {
	docs := []domain.Document{productDoc(49.99, map[domain.Size]int{domain.SizeM: 3})}
	v := NewVerifier()

	got, corr := v.Verify("The hoodie costs 59.99 dollars.", docs)

	if got != "The hoodie costs 49.99 dollars." {
		t.Errorf("got %q", got)
	}
	if corr["59.99"] != "49.99" {
		t.Errorf("expected a 59.99 -> 49.99 correction, got %v", corr)
	}
}

func TestVerify_SupportedPriceUntouched(t *testing.T) {
	docs := []domain.Document{productDoc(49.99, nil)}
	v := NewVerifier()

	got, corr := v.Verify("It costs 49.99.", docs)

	if got != "It costs 49.99." || corr != nil {
		t.Errorf("expected no correction, got %q / %v", got, corr)
	}
}

func TestVerify_RemovesOutOfStockSize(t *testing.T) {
	docs := []domain.Document{productDoc(49.99, map[domain.Size]int{
		domain.SizeS: 2,
		domain.SizeM: 0,
		domain.SizeL: 1,
	})}
	v := NewVerifier()

	got, corr := v.Verify("Available in S, M and L.", docs)

	if _, ok := corr["M"]; !ok {
		t.Fatalf("expected M to be corrected, got %v", corr)
	}
	if got != "Available in S, and L." {
		t.Errorf("got %q", got)
	}
	// S and L are in stock and must survive.
	if _, bad := corr["S"]; bad {
		t.Errorf("S should not be corrected")
	}
	if _, bad := corr["L"]; bad {
		t.Errorf("L should not be corrected")
	}
}

func TestVerify_FailsOpenWithoutCitedData(t *testing.T) {
	v := NewVerifier()

	text := "Returns are free within 30 days, sizes S to XL."
	got, corr := v.Verify(text, []domain.Document{{ID: "policy", Kind: domain.KindPolicy, Title: "Returns"}})

	if got != text || corr != nil {
		t.Errorf("expected pass-through, got %q / %v", got, corr)
	}
}

func TestVerify_Idempotent(t *testing.T) {
	docs := []domain.Document{productDoc(49.99, map[domain.Size]int{domain.SizeS: 1})}
	v := NewVerifier()

	once, _ := v.Verify("Costs 59.99, sizes S and M.", docs)
	twice, corr := v.Verify(once, docs)

	if twice != once {
		t.Errorf("second pass changed the answer: %q vs %q", twice, once)
	}
	if len(corr) != 0 {
		t.Errorf("second pass found corrections: %v", corr)
	}
}

func TestVerify_WholeTokenOnly(t *testing.T) {
	docs := []domain.Document{productDoc(9.5, map[domain.Size]int{domain.SizeS: 1})}
	v := NewVerifier()

	// 49 appears inside 49.99; only the full literal may be rewritten.
	got, _ := v.Verify("Was 49.99, now 9.5.", docs)

	if got != "Was 9.5, now 9.5." {
		t.Errorf("got %q", got)
	}
}

func TestApplyCorrections_LeavesSupportedDecimalIntact(t *testing.T) {
	// A correction for the bare integer must not rewrite the same
	// digits inside a longer decimal literal.
	got := applyCorrections("Only 49 left at 49.99.", domain.Correction{"49": "59.99"})

	if got != "Only 59.99 left at 49.99." {
		t.Errorf("got %q", got)
	}
}

func TestClaimedPrices_SkipsGluedDigits(t *testing.T) {
	got := claimedPrices("order 12345678 total 19.99")

	for _, p := range got {
		if p == "1234" || p == "5678" {
			t.Errorf("split fragment of a long literal claimed: %v", got)
		}
	}
	found := false
	for _, p := range got {
		if p == "19.99" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 19.99 in %v", got)
	}
}
