package ingestion

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	pkgerrors "github.com/abdushakurob/getstuddy-backend/internal/pkg/errors"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
	"github.com/abdushakurob/getstuddy-backend/internal/platform/localmedia"
)

const defaultSegmentSeconds = 60

// localIngestor is the ffmpeg/poppler-backed Ingestor. It has no semantic
// understanding of content: av media is segmented into fixed windows, paged
// documents get one node per page. Good enough for self-hosted deployments
// without the hosted ingestion backend.
type localIngestor struct {
	log   *logger.Logger
	tools localmedia.Tools

	segmentSeconds float64

	mu      sync.RWMutex
	entries map[uuid.UUID]*localEntry
}

type localEntry struct {
	nodeMap    *domain.NodeMap
	sourcePath string
	modality   string
}

func NewLocalIngestor(baseLog *logger.Logger, tools localmedia.Tools) Ingestor {
	return &localIngestor{
		log:            baseLog.With("service", "LocalIngestor"),
		tools:          tools,
		segmentSeconds: defaultSegmentSeconds,
		entries:        make(map[uuid.UUID]*localEntry),
	}
}

func (li *localIngestor) Ingest(ctx context.Context, sourcePath, modality string, opts IngestOptions) error {
	if opts.DocumentID == uuid.Nil {
		return fmt.Errorf("ingest: %w: document id required", pkgerrors.ErrInvalidArgument)
	}
	if sourcePath == "" {
		return fmt.Errorf("ingest: %w: source path required", pkgerrors.ErrInvalidArgument)
	}

	var (
		nodeMap *domain.NodeMap
		err     error
	)
	switch modality {
	case ModalityVideo, ModalityAudio:
		nodeMap, err = li.segmentMedia(ctx, sourcePath, modality)
	case ModalityImage:
		nodeMap = &domain.NodeMap{Nodes: []domain.Node{{
			ID:       "1",
			Label:    "Image",
			Location: domain.NodeLocation{Modality: domain.ModalityPage, Pages: []int{1}},
		}}}
	default:
		nodeMap, err = li.paginateDocument(ctx, sourcePath)
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", opts.DocumentID, err)
	}

	li.mu.Lock()
	li.entries[opts.DocumentID] = &localEntry{
		nodeMap:    nodeMap,
		sourcePath: sourcePath,
		modality:   modality,
	}
	li.mu.Unlock()

	li.log.Info("ingested document", "document_id", opts.DocumentID, "modality", modality, "nodes", len(nodeMap.Nodes))
	return nil
}

func (li *localIngestor) GetMap(ctx context.Context, documentID uuid.UUID) (*domain.NodeMap, error) {
	li.mu.RLock()
	entry, ok := li.entries[documentID]
	li.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("map for document %s: %w", documentID, pkgerrors.ErrNotFound)
	}
	return entry.nodeMap, nil
}

func (li *localIngestor) Resolve(ctx context.Context, documentID uuid.UUID, nodeID string, opts ResolveOptions) (*Evidence, error) {
	li.mu.RLock()
	entry, ok := li.entries[documentID]
	li.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve %s/%s: %w", documentID, nodeID, pkgerrors.ErrNotFound)
	}
	node := entry.nodeMap.FindByID(nodeID)
	if node == nil {
		return nil, fmt.Errorf("resolve %s/%s: node: %w", documentID, nodeID, pkgerrors.ErrNotFound)
	}

	loc := node.Location
	ev := &Evidence{Location: loc}

	switch loc.Modality {
	case domain.ModalityVideo, domain.ModalityAudio:
		ev.Address = fmt.Sprintf("t=%s", strconv.FormatFloat(loc.Start, 'f', -1, 64))
		if !opts.Virtual {
			src := opts.SourcePath
			if src == "" {
				src = entry.sourcePath
			}
			out, err := li.tools.SliceMedia(ctx, src, loc.Start, loc.End)
			if err != nil {
				return nil, err
			}
			ev.OutputPath = out
		}
	default:
		page := 1
		if len(loc.Pages) > 0 {
			page = loc.Pages[0]
		}
		ev.Address = fmt.Sprintf("page=%d", page)
		if !opts.Virtual {
			src := opts.SourcePath
			if src == "" {
				src = entry.sourcePath
			}
			if entry.modality == ModalityImage {
				ev.OutputPath = src
				break
			}
			out, err := li.tools.RenderPDFPage(ctx, src, page)
			if err != nil {
				return nil, err
			}
			ev.OutputPath = out
		}
	}

	return ev, nil
}

func (li *localIngestor) segmentMedia(ctx context.Context, sourcePath, modality string) (*domain.NodeMap, error) {
	duration, err := li.tools.ProbeDurationSeconds(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	window := li.segmentSeconds
	count := int(math.Ceil(duration / window))
	if count < 1 {
		count = 1
	}

	locModality := domain.ModalityVideo
	if modality == ModalityAudio {
		locModality = domain.ModalityAudio
	}

	nodes := make([]domain.Node, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * window
		end := math.Min(start+window, duration)
		nodes = append(nodes, domain.Node{
			ID:    strconv.Itoa(i + 1),
			Label: fmt.Sprintf("Segment %d (%s–%s)", i+1, clockLabel(start), clockLabel(end)),
			Location: domain.NodeLocation{
				Modality: locModality,
				Start:    start,
				End:      end,
			},
		})
	}
	return &domain.NodeMap{Nodes: nodes}, nil
}

func (li *localIngestor) paginateDocument(ctx context.Context, sourcePath string) (*domain.NodeMap, error) {
	pages, err := li.tools.CountPDFPages(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	nodes := make([]domain.Node, 0, pages)
	for p := 1; p <= pages; p++ {
		nodes = append(nodes, domain.Node{
			ID:    strconv.Itoa(p),
			Label: fmt.Sprintf("Page %d", p),
			Location: domain.NodeLocation{
				Modality: domain.ModalityPage,
				Pages:    []int{p},
			},
		})
	}
	return &domain.NodeMap{Nodes: nodes}, nil
}

func clockLabel(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
