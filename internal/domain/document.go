package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DocumentTypePDF   = "pdf"
	DocumentTypeImage = "image"
	DocumentTypeVideo = "video"
	DocumentTypeAudio = "audio"

	DocumentStatusReady = "ready"
)

// Document is a source artifact (PDF, video, audio, image) uploaded by a
// user. NodeMap is filled lazily by ingestion and replaced wholesale on
// re-ingest; individual nodes are never mutated in place.
type Document struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"column:name;not null" json:"name"`
	Type string    `gorm:"column:type;not null;index" json:"type"`

	StorageKey string `gorm:"column:storage_key" json:"storage_key"`
	FileURL    string `gorm:"column:file_url;not null" json:"file_url"`
	MimeType   string `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes  int64  `gorm:"column:size_bytes" json:"size_bytes"`
	Status     string `gorm:"column:status;not null;default:'uploaded'" json:"status"`

	NodeMap datatypes.JSON `gorm:"column:node_map;type:jsonb" json:"node_map,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

// HasNodeMap reports whether ingestion has populated the cached map.
func (d *Document) HasNodeMap() bool {
	return len(d.NodeMap) > 0 && string(d.NodeMap) != "null"
}

// DecodeNodeMap unmarshals the cached map. Returns ErrNoNodeMap-like nil map
// when the column is empty.
func (d *Document) DecodeNodeMap() (*NodeMap, error) {
	if !d.HasNodeMap() {
		return nil, nil
	}
	var m NodeMap
	if err := json.Unmarshal(d.NodeMap, &m); err != nil {
		return nil, fmt.Errorf("decode node map for document %s: %w", d.ID, err)
	}
	return &m, nil
}

// Modality maps the document type to the ingestion modality hint.
func (d *Document) Modality() string {
	switch d.Type {
	case DocumentTypeVideo:
		return "video"
	case DocumentTypeAudio:
		return "audio"
	case DocumentTypeImage:
		return "image"
	default:
		return "document"
	}
}

// IsTimeBased reports whether node locations are time ranges rather than
// page ranges.
func (d *Document) IsTimeBased() bool {
	return d.Type == DocumentTypeVideo || d.Type == DocumentTypeAudio
}
