package domain

import "github.com/google/uuid"

// RankedNode is a request-scoped projection of a node plus its source
// document and a relevance score in [0, 1]. Never persisted.
type RankedNode struct {
	Node         Node
	DocumentID   uuid.UUID
	DocumentName string
	DocumentType string
	Score        float64
}
