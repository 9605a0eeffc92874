package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

type CitationArtifactRepo interface {
	GetByKey(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, nodeID string) (*domain.CitationArtifact, error)
	// InsertIgnore writes a cache row unless one already exists for the
	// (document_id, node_id) key. The duplicate case is benign: concurrent
	// cold resolutions of the same key both derive, only one row lands.
	InsertIgnore(ctx context.Context, tx *gorm.DB, artifact *domain.CitationArtifact) (bool, error)
	FullDeleteByDocumentIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) error
}

type citationArtifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCitationArtifactRepo(db *gorm.DB, baseLog *logger.Logger) CitationArtifactRepo {
	repoLog := baseLog.With("repo", "CitationArtifactRepo")
	return &citationArtifactRepo{db: db, log: repoLog}
}

func (r *citationArtifactRepo) GetByKey(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, nodeID string) (*domain.CitationArtifact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var artifact domain.CitationArtifact
	if err := transaction.WithContext(ctx).
		Where("document_id = ? AND node_id = ?", documentID, nodeID).
		First(&artifact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}

func (r *citationArtifactRepo) InsertIgnore(ctx context.Context, tx *gorm.DB, artifact *domain.CitationArtifact) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "node_id"}},
			DoNothing: true,
		}).
		Create(artifact)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *citationArtifactRepo) FullDeleteByDocumentIDs(ctx context.Context, tx *gorm.DB, documentIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(documentIDs) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Unscoped().
		Where("document_id IN ?", documentIDs).
		Delete(&domain.CitationArtifact{}).Error; err != nil {
		return err
	}
	return nil
}
