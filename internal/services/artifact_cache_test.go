package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

func TestArtifactCachePutDuplicateReturnsOwnURL(t *testing.T) {
	db := newTestDB(t)
	log := logger.NewNop()
	cache := NewArtifactCache(log, repos.NewCitationArtifactRepo(db, log), nil)
	ctx := context.Background()

	docID := uuid.New()
	winner := &domain.CitationArtifact{DocumentID: docID, NodeID: "n1", URL: "https://cdn.test/a"}
	if _, err := cache.Put(ctx, nil, winner); err != nil {
		t.Fatalf("first put: %v", err)
	}

	// The losing side of a duplicate derivation keeps serving the URL it
	// derived; the table keeps the first row.
	loser := &domain.CitationArtifact{DocumentID: docID, NodeID: "n1", URL: "https://cdn.test/b"}
	got, err := cache.Put(ctx, nil, loser)
	if err != nil {
		t.Fatalf("duplicate put: %v", err)
	}
	if got.URL != "https://cdn.test/b" {
		t.Fatalf("duplicate writer should keep its own URL, got %q", got.URL)
	}

	stored, err := cache.Get(ctx, nil, docID, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.URL != "https://cdn.test/a" {
		t.Fatalf("table should keep the first row, got %q", stored.URL)
	}
}

func TestArtifactCacheGetMiss(t *testing.T) {
	db := newTestDB(t)
	log := logger.NewNop()
	cache := NewArtifactCache(log, repos.NewCitationArtifactRepo(db, log), nil)

	got, err := cache.Get(context.Background(), nil, uuid.New(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %+v", got)
	}
}
