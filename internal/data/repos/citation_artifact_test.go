package repos

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Document{}, &domain.CitationArtifact{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestInsertIgnoreKeepsOneRowPerKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewCitationArtifactRepo(db, logger.NewNop())
	ctx := context.Background()

	docID := uuid.New()
	first := &domain.CitationArtifact{
		DocumentID: docID,
		NodeID:     "n1",
		URL:        "https://cdn.test/citations/a",
		MimeType:   "video/mp4",
	}
	inserted, err := repo.InsertIgnore(ctx, nil, first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatalf("first insert should land")
	}

	// A concurrent cold resolution derives its own artifact and races the
	// write. The duplicate must be ignored, not error.
	second := &domain.CitationArtifact{
		DocumentID: docID,
		NodeID:     "n1",
		URL:        "https://cdn.test/citations/b",
		MimeType:   "video/mp4",
	}
	inserted, err = repo.InsertIgnore(ctx, nil, second)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate insert should be ignored")
	}

	stored, err := repo.GetByKey(ctx, nil, docID, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored == nil {
		t.Fatalf("expected stored artifact")
	}
	if stored.URL != first.URL {
		t.Fatalf("first writer should win, got %q", stored.URL)
	}

	var count int64
	if err := db.Model(&domain.CitationArtifact{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row per key, got %d", count)
	}
}

func TestInsertIgnoreDistinctKeys(t *testing.T) {
	db := newTestDB(t)
	repo := NewCitationArtifactRepo(db, logger.NewNop())
	ctx := context.Background()

	docID := uuid.New()
	for _, nodeID := range []string{"n1", "n2"} {
		inserted, err := repo.InsertIgnore(ctx, nil, &domain.CitationArtifact{
			DocumentID: docID,
			NodeID:     nodeID,
			URL:        "https://cdn.test/" + nodeID,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", nodeID, err)
		}
		if !inserted {
			t.Fatalf("insert %s should land", nodeID)
		}
	}
}

func TestGetByKeyMissReturnsNil(t *testing.T) {
	db := newTestDB(t)
	repo := NewCitationArtifactRepo(db, logger.NewNop())

	artifact, err := repo.GetByKey(context.Background(), nil, uuid.New(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if artifact != nil {
		t.Fatalf("expected nil on miss, got %+v", artifact)
	}
}

func TestUpdateNodeMap(t *testing.T) {
	db := newTestDB(t)
	log := logger.NewNop()
	docRepo := NewDocumentRepo(db, log)
	ctx := context.Background()

	doc := &domain.Document{
		ID:      uuid.New(),
		Name:    "Notes",
		Type:    domain.DocumentTypePDF,
		FileURL: "https://files.test/notes.pdf",
		Status:  domain.DocumentStatusReady,
	}
	if _, err := docRepo.Create(ctx, nil, []*domain.Document{doc}); err != nil {
		t.Fatalf("create: %v", err)
	}

	m := &domain.NodeMap{Nodes: []domain.Node{
		{ID: "1", Label: "Page 1", Location: domain.NodeLocation{Modality: domain.ModalityPage, Pages: []int{1}}},
	}}
	raw, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := docRepo.UpdateNodeMap(ctx, nil, doc.ID, raw); err != nil {
		t.Fatalf("update node map: %v", err)
	}

	reloaded, err := docRepo.GetByID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	decoded, err := reloaded.DecodeNodeMap()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded == nil || len(decoded.Nodes) != 1 || decoded.Nodes[0].ID != "1" {
		t.Fatalf("round-tripped map mismatch: %+v", decoded)
	}
}
