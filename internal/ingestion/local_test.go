package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	pkgerrors "github.com/abdushakurob/getstuddy-backend/internal/pkg/errors"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

type fakeTools struct {
	duration float64
	pages    int
	workDir  string

	sliceCalls  []float64
	renderCalls []int
}

func (f *fakeTools) AssertReady(ctx context.Context) error { return nil }
func (f *fakeTools) WorkDir() string                       { return f.workDir }

func (f *fakeTools) ProbeDurationSeconds(ctx context.Context, mediaPath string) (float64, error) {
	return f.duration, nil
}

func (f *fakeTools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	return f.pages, nil
}

func (f *fakeTools) SliceMedia(ctx context.Context, mediaPath string, start, end float64) (string, error) {
	f.sliceCalls = append(f.sliceCalls, start, end)
	out := filepath.Join(f.workDir, "slice.mp4")
	if err := os.WriteFile(out, []byte("clip"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeTools) RenderPDFPage(ctx context.Context, pdfPath string, page int) (string, error) {
	f.renderCalls = append(f.renderCalls, page)
	out := filepath.Join(f.workDir, "page.png")
	if err := os.WriteFile(out, []byte("png"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeTools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	out := filepath.Join(f.workDir, "tmp"+suffix)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", func() {}, err
	}
	return out, func() { _ = os.Remove(out) }, nil
}

func TestLocalIngestorSegmentsMedia(t *testing.T) {
	tools := &fakeTools{duration: 150, workDir: t.TempDir()}
	ing := NewLocalIngestor(logger.NewNop(), tools)
	docID := uuid.New()
	ctx := context.Background()

	if err := ing.Ingest(ctx, "/src/lecture.mp4", ModalityVideo, IngestOptions{DocumentID: docID}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	m, err := ing.GetMap(ctx, docID)
	if err != nil {
		t.Fatalf("get map: %v", err)
	}
	if len(m.Nodes) != 3 {
		t.Fatalf("150s at 60s windows should yield 3 segments, got %d", len(m.Nodes))
	}
	last := m.Nodes[2]
	if last.Location.Start != 120 || last.Location.End != 150 {
		t.Fatalf("last segment should cover [120, 150], got [%f, %f]", last.Location.Start, last.Location.End)
	}
	if last.Location.Modality != domain.ModalityVideo {
		t.Fatalf("expected video modality, got %q", last.Location.Modality)
	}
}

func TestLocalIngestorPaginatesDocuments(t *testing.T) {
	tools := &fakeTools{pages: 4, workDir: t.TempDir()}
	ing := NewLocalIngestor(logger.NewNop(), tools)
	docID := uuid.New()
	ctx := context.Background()

	if err := ing.Ingest(ctx, "/src/notes.pdf", ModalityDocument, IngestOptions{DocumentID: docID}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	m, err := ing.GetMap(ctx, docID)
	if err != nil {
		t.Fatalf("get map: %v", err)
	}
	if len(m.Nodes) != 4 {
		t.Fatalf("expected 4 page nodes, got %d", len(m.Nodes))
	}
	if !m.Nodes[2].Location.ContainsPage(3) {
		t.Fatalf("third node should cover page 3")
	}
}

func TestLocalIngestorResolveVirtual(t *testing.T) {
	tools := &fakeTools{duration: 150, workDir: t.TempDir()}
	ing := NewLocalIngestor(logger.NewNop(), tools)
	docID := uuid.New()
	ctx := context.Background()

	if err := ing.Ingest(ctx, "/src/lecture.mp4", ModalityVideo, IngestOptions{DocumentID: docID}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	ev, err := ing.Resolve(ctx, docID, "2", ResolveOptions{Virtual: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ev.Address != "t=60" {
		t.Fatalf("expected time address t=60, got %q", ev.Address)
	}
	if ev.OutputPath != "" {
		t.Fatalf("virtual resolution must not produce a file")
	}
	if len(tools.sliceCalls) != 0 {
		t.Fatalf("virtual resolution must not slice")
	}
}

func TestLocalIngestorResolvePhysical(t *testing.T) {
	tools := &fakeTools{duration: 150, workDir: t.TempDir()}
	ing := NewLocalIngestor(logger.NewNop(), tools)
	docID := uuid.New()
	ctx := context.Background()

	if err := ing.Ingest(ctx, "/src/lecture.mp4", ModalityVideo, IngestOptions{DocumentID: docID}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	ev, err := ing.Resolve(ctx, docID, "3", ResolveOptions{Virtual: false, SourcePath: "/src/lecture.mp4"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ev.OutputPath == "" {
		t.Fatalf("physical resolution must produce a file")
	}
	if len(tools.sliceCalls) != 2 || tools.sliceCalls[0] != 120 || tools.sliceCalls[1] != 150 {
		t.Fatalf("expected slice of [120, 150], got %v", tools.sliceCalls)
	}
}

func TestLocalIngestorUnknownDocument(t *testing.T) {
	ing := NewLocalIngestor(logger.NewNop(), &fakeTools{workDir: t.TempDir()})

	if _, err := ing.GetMap(context.Background(), uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := ing.Resolve(context.Background(), uuid.New(), "1", ResolveOptions{Virtual: true}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
