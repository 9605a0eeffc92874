package gcp

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/abdushakurob/getstuddy-backend/internal/pkg/envutil"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

// BucketService is the durable-storage collaborator: derived citation
// artifacts are uploaded here and served by URL.
type BucketService interface {
	Upload(ctx context.Context, key string, body io.Reader, mimeType string) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type bucketService struct {
	log        *logger.Logger
	client     *storage.Client
	bucketName string
	cdnDomain  string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")
	bucket := envutil.String("GCS_BUCKET_NAME", "")
	if bucket == "" {
		return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
	}
	cdnDomain := envutil.String("CDN_DOMAIN", "")
	saPath := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")

	ctx := context.Background()
	var client *storage.Client
	var err error
	if saPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
	} else {
		client, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	}
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &bucketService{
		log:        serviceLog,
		client:     client,
		bucketName: bucket,
		cdnDomain:  cdnDomain,
	}, nil
}

func (bs *bucketService) Upload(ctx context.Context, key string, body io.Reader, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.client.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
	if mimeType != "" {
		w.ContentType = mimeType
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %q: %w", key, err)
	}
	return bs.PublicURL(key), nil
}

func (bs *bucketService) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := bs.client.Bucket(bs.bucketName).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (bs *bucketService) PublicURL(key string) string {
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}
