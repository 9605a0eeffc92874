package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	pkgerrors "github.com/abdushakurob/getstuddy-backend/internal/pkg/errors"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

// LookupService translates raw media-player positions into the semantic
// node IDs the resolver and ranker operate on.
type LookupService interface {
	FindNodeByPage(ctx context.Context, documentID uuid.UUID, page int) (*domain.Node, error)
	FindNodeByTimestamp(ctx context.Context, documentID uuid.UUID, seconds float64) (*domain.Node, error)
}

type lookupService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
}

func NewLookupService(db *gorm.DB, baseLog *logger.Logger, documentRepo repos.DocumentRepo) LookupService {
	return &lookupService{
		db:           db,
		log:          baseLog.With("service", "LookupService"),
		documentRepo: documentRepo,
	}
}

func (ls *lookupService) FindNodeByPage(ctx context.Context, documentID uuid.UUID, page int) (*domain.Node, error) {
	nodeMap, err := ls.loadMap(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return NodeByPage(nodeMap, page), nil
}

func (ls *lookupService) FindNodeByTimestamp(ctx context.Context, documentID uuid.UUID, seconds float64) (*domain.Node, error) {
	nodeMap, err := ls.loadMap(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return NodeByTimestamp(nodeMap, seconds), nil
}

func (ls *lookupService) loadMap(ctx context.Context, documentID uuid.UUID) (*domain.NodeMap, error) {
	doc, err := ls.documentRepo.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, fmt.Errorf("lookup: load document %s: %w", documentID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("lookup: document %s: %w", documentID, pkgerrors.ErrNotFound)
	}
	nodeMap, err := doc.DecodeNodeMap()
	if err != nil {
		return nil, err
	}
	if nodeMap == nil {
		return nil, fmt.Errorf("lookup: document %s has no node map: %w", documentID, pkgerrors.ErrNotFound)
	}
	return nodeMap, nil
}

// NodeByPage returns the first node whose page set contains page, or nil.
func NodeByPage(m *domain.NodeMap, page int) *domain.Node {
	for i := range m.Nodes {
		if m.Nodes[i].Location.ContainsPage(page) {
			return &m.Nodes[i]
		}
	}
	return nil
}

// NodeByTimestamp returns the first time-based node whose interval contains
// seconds, or nil.
func NodeByTimestamp(m *domain.NodeMap, seconds float64) *domain.Node {
	for i := range m.Nodes {
		if m.Nodes[i].Location.ContainsTime(seconds) {
			return &m.Nodes[i]
		}
	}
	return nil
}
