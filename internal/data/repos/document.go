package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, docs []*domain.Document) ([]*domain.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Document, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Document, error)
	GetReadyByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Document, error)
	UpdateNodeMap(ctx context.Context, tx *gorm.DB, id uuid.UUID, nodeMap datatypes.JSON) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, docs []*domain.Document) ([]*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(docs) == 0 {
		return []*domain.Document{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var doc domain.Document
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Document
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) GetReadyByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Document
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, domain.DocumentStatusReady).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) UpdateNodeMap(ctx context.Context, tx *gorm.DB, id uuid.UUID, nodeMap datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"node_map":   nodeMap,
			"updated_at": time.Now(),
		}).Error; err != nil {
		return err
	}
	return nil
}
