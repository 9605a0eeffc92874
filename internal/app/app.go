package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/ingestion"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
	"github.com/abdushakurob/getstuddy-backend/internal/platform/gcp"
	"github.com/abdushakurob/getstuddy-backend/internal/platform/localmedia"
	"github.com/abdushakurob/getstuddy-backend/internal/services"
)

// App wires the citation engine for in-process use by the application
// layer. No HTTP or CLI surface lives here.
type App struct {
	Log *logger.Logger
	DB  *gorm.DB

	DocumentRepo repos.DocumentRepo
	ArtifactRepo repos.CitationArtifactRepo

	Resolution services.ResolutionService
	Retrieval  services.RetrievalService
	Lookup     services.LookupService
}

func New() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Document{}, &domain.CitationArtifact{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 5 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Warn("redis unreachable, running without hot cache", "error", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			cancel()
		}
	}

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return nil, fmt.Errorf("init bucket service: %w", err)
	}

	documentRepo := repos.NewDocumentRepo(db, log)
	artifactRepo := repos.NewCitationArtifactRepo(db, log)

	tools := localmedia.New(log, cfg.WorkDir)
	ingestor := ingestion.NewLocalIngestor(log, tools)

	cache := services.NewArtifactCache(log, artifactRepo, rdb)
	downloader := services.NewHTTPDownloader(log, cfg.DownloadTTL)

	resolution := services.NewResolutionService(
		db, log, documentRepo, cache, ingestor, bucket, downloader,
		services.ResolutionConfig{WorkDir: cfg.WorkDir},
	)
	retrieval := services.NewRetrievalService(db, log, documentRepo)
	lookup := services.NewLookupService(db, log, documentRepo)

	return &App{
		Log:          log,
		DB:           db,
		DocumentRepo: documentRepo,
		ArtifactRepo: artifactRepo,
		Resolution:   resolution,
		Retrieval:    retrieval,
		Lookup:       lookup,
	}, nil
}
