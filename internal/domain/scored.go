package domain

// ScoredDoc pairs a document with a single raw search score. Used at
// the store boundary before signals are merged into RetrievalHits.
type ScoredDoc struct {
	Doc   Document
	Score float64
}
