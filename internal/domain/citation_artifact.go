package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CitationArtifact is one cache row of the resolved-artifact cache. The
// unique index on (document_id, node_id) is the cache's core correctness
// guarantee: at most one row per key, concurrent writers race benignly.
type CitationArtifact struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_citation_artifact_key" json:"document_id"`
	NodeID     string    `gorm:"column:node_id;not null;uniqueIndex:idx_citation_artifact_key" json:"node_id"`

	URL       string         `gorm:"column:url;not null" json:"url"`
	MimeType  string         `gorm:"column:mime_type" json:"mime_type"`
	IsVirtual bool           `gorm:"column:is_virtual;not null;default:false" json:"is_virtual"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CitationArtifact) TableName() string { return "citation_artifact" }

// ArtifactMetadata records how the artifact was derived.
type ArtifactMetadata struct {
	Location  NodeLocation `json:"location"`
	SourceURL string       `json:"source_url,omitempty"`
	Address   string       `json:"address,omitempty"`
}

func (m ArtifactMetadata) Encode() datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
