package services

import (
	"context"
	"errors"
	"testing"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	pkgerrors "github.com/abdushakurob/getstuddy-backend/internal/pkg/errors"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

func TestNodeByPage(t *testing.T) {
	m := pdfNodeMap()

	if got := NodeByPage(m, 2); got == nil || got.ID != "intro" {
		t.Fatalf("page 2 should map to intro, got %v", got)
	}
	if got := NodeByPage(m, 4); got == nil || got.ID != "n1" {
		t.Fatalf("page 4 should map to n1, got %v", got)
	}
	if got := NodeByPage(m, 99); got != nil {
		t.Fatalf("page 99 should map to nothing, got %v", got)
	}
}

func TestNodeByTimestamp(t *testing.T) {
	m := &domain.NodeMap{Nodes: []domain.Node{
		{ID: "1", Location: domain.NodeLocation{Modality: domain.ModalityVideo, Start: 0, End: 60}},
		{ID: "2", Location: domain.NodeLocation{Modality: domain.ModalityVideo, Start: 60, End: 120}},
		{ID: "p", Location: domain.NodeLocation{Modality: domain.ModalityPage, Pages: []int{1}}},
	}}

	if got := NodeByTimestamp(m, 30); got == nil || got.ID != "1" {
		t.Fatalf("t=30 should map to node 1, got %v", got)
	}
	if got := NodeByTimestamp(m, 60); got == nil || got.ID != "1" {
		t.Fatalf("t=60 sits on the boundary and should map to the first covering node, got %v", got)
	}
	if got := NodeByTimestamp(m, 500); got != nil {
		t.Fatalf("t=500 should map to nothing, got %v", got)
	}
}

func TestLookupServiceLoadsDocument(t *testing.T) {
	db := newTestDB(t)
	log := logger.NewNop()
	docRepo := repos.NewDocumentRepo(db, log)
	doc := pdfDocument(t, pdfNodeMap())
	if _, err := docRepo.Create(context.Background(), nil, []*domain.Document{doc}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	svc := NewLookupService(db, log, docRepo)

	node, err := svc.FindNodeByPage(context.Background(), doc.ID, 3)
	if err != nil {
		t.Fatalf("find by page: %v", err)
	}
	if node == nil || node.ID != "n1" {
		t.Fatalf("expected n1, got %v", node)
	}

	unmapped := pdfDocument(t, nil)
	if _, err := docRepo.Create(context.Background(), nil, []*domain.Document{unmapped}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if _, err := svc.FindNodeByPage(context.Background(), unmapped.ID, 1); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not-found for unmapped document, got %v", err)
	}
}
