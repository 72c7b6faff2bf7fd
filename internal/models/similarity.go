package models

// SimilarPublisher is one row of a similarity matrix entry
type SimilarPublisher struct {
	PublisherID string  `json:"source"`
	Score       float64 `json:"score"`
}

// SimilarityMatrix maps a publisher id to publishers judged topically similar
type SimilarityMatrix map[string][]SimilarPublisher

// VisitWeighting maps hostnames to visit frequency normalized to [0,1]
type VisitWeighting map[string]float64
