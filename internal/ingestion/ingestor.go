package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/abdushakurob/getstuddy-backend/internal/domain"
)

// Modality hints passed to Ingest. Mirror domain.Document.Modality.
const (
	ModalityDocument = "document"
	ModalityImage    = "image"
	ModalityVideo    = "video"
	ModalityAudio    = "audio"
)

type IngestOptions struct {
	DocumentID uuid.UUID
}

type ResolveOptions struct {
	// Virtual asks for a location-only address instead of a physically
	// derived output file.
	Virtual bool
	// SourcePath is the locally available source file. Required for
	// physical resolution; implementations that hold their own copy of the
	// source may ignore it.
	SourcePath string
}

// Evidence is what the ingestion backend hands back for one node.
type Evidence struct {
	Address  string
	Location domain.NodeLocation
	// OutputPath points at the derived file for physical resolution.
	// Empty in virtual mode.
	OutputPath string
}

// Ingestor is the ingestion collaborator as a capability: building a node
// map from a source file, returning it, and resolving one node into either
// a virtual address or a derived artifact on disk. The production backend
// does OCR and scene detection; the engine only depends on this surface.
type Ingestor interface {
	Ingest(ctx context.Context, sourcePath, modality string, opts IngestOptions) error
	GetMap(ctx context.Context, documentID uuid.UUID) (*domain.NodeMap, error)
	Resolve(ctx context.Context, documentID uuid.UUID, nodeID string, opts ResolveOptions) (*Evidence, error)
}
