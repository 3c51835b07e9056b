package domain

// IntentKind classifies what a question is asking for.
type IntentKind string

// Intent categories. Anything unclassifiable is treated as a product
// lookup.
const (
	IntentPolicy        IntentKind = "policy"
	IntentSizeFit       IntentKind = "size_fit"
	IntentLookupProduct IntentKind = "lookup_product"
	IntentMulti         IntentKind = "multi"
)

// MaxSubQueries caps how many sub-questions a compound query splits into.
const MaxSubQueries = 4

// Intent is the classified intent of a question, optionally carrying
// the sub-questions of a compound query.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	SubQueries []string   `json:"subqueries,omitempty"`
}
