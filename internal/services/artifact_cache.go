package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

const artifactHotTTL = 24 * time.Hour

// ArtifactCache fronts the citation_artifact table, optionally with a redis
// read-through layer. Redis failures are logged and ignored: the table is
// the source of truth, the hot layer only skips a query.
type ArtifactCache interface {
	Get(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, nodeID string) (*domain.CitationArtifact, error)
	// Put inserts the row unless the key already exists. The passed
	// artifact is returned either way: a losing concurrent writer keeps
	// serving its own freshly derived URL.
	Put(ctx context.Context, tx *gorm.DB, artifact *domain.CitationArtifact) (*domain.CitationArtifact, error)
}

type artifactCache struct {
	log  *logger.Logger
	repo repos.CitationArtifactRepo
	rdb  *goredis.Client
}

// NewArtifactCache builds the cache facade. rdb may be nil to run without
// the hot layer.
func NewArtifactCache(baseLog *logger.Logger, repo repos.CitationArtifactRepo, rdb *goredis.Client) ArtifactCache {
	return &artifactCache{
		log:  baseLog.With("service", "ArtifactCache"),
		repo: repo,
		rdb:  rdb,
	}
}

func hotKey(documentID uuid.UUID, nodeID string) string {
	return fmt.Sprintf("citation:%s:%s", documentID, nodeID)
}

func (c *artifactCache) Get(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, nodeID string) (*domain.CitationArtifact, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, hotKey(documentID, nodeID)).Bytes()
		if err == nil {
			var artifact domain.CitationArtifact
			if uErr := json.Unmarshal(raw, &artifact); uErr == nil {
				return &artifact, nil
			}
			c.log.Warn("corrupt hot cache entry, falling through", "document_id", documentID, "node_id", nodeID)
		} else if err != goredis.Nil {
			c.log.Warn("hot cache read failed", "error", err)
		}
	}

	artifact, err := c.repo.GetByKey(ctx, tx, documentID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("artifact cache get %s/%s: %w", documentID, nodeID, err)
	}
	if artifact != nil {
		c.warm(ctx, artifact)
	}
	return artifact, nil
}

func (c *artifactCache) Put(ctx context.Context, tx *gorm.DB, artifact *domain.CitationArtifact) (*domain.CitationArtifact, error) {
	inserted, err := c.repo.InsertIgnore(ctx, tx, artifact)
	if err != nil {
		return nil, fmt.Errorf("artifact cache put %s/%s: %w", artifact.DocumentID, artifact.NodeID, err)
	}
	if !inserted {
		c.log.Debug("duplicate cache write ignored", "document_id", artifact.DocumentID, "node_id", artifact.NodeID)
	}
	c.warm(ctx, artifact)
	return artifact, nil
}

func (c *artifactCache) warm(ctx context.Context, artifact *domain.CitationArtifact) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(artifact)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, hotKey(artifact.DocumentID, artifact.NodeID), raw, artifactHotTTL).Err(); err != nil {
		c.log.Warn("hot cache write failed", "error", err)
	}
}
