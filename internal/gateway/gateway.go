package gateway

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Gateway is a stateless wrapper over a MinIO/S3 bucket. It only issues
// presigned URLs and listings; object data never flows through this process.
type Gateway struct {
	client *minio.Client
	bucket string
}

// New creates the object store client and ensures the bucket exists. A
// failure to create the bucket is logged but not fatal; it may be created
// out of band.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	g := &Gateway{client: client, bucket: cfg.Bucket}
	if err := g.ensureBucket(ctx); err != nil {
		log.Printf("gateway: could not ensure bucket %s: %v", cfg.Bucket, err)
	}
	return g, nil
}

func (g *Gateway) ensureBucket(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return g.client.MakeBucket(ctx, g.bucket, minio.MakeBucketOptions{})
}

// PresignUpload returns a presigned PUT URL for the given key.
func (g *Gateway) PresignUpload(ctx context.Context, key string, expires time.Duration) (string, error) {
	u, err := g.client.PresignedPutObject(ctx, g.bucket, key, expires)
	if err != nil {
		return "", fmt.Errorf("presign upload for %s: %w", key, err)
	}
	return u.String(), nil
}

// PresignDownload returns a presigned GET URL for the given key.
func (g *Gateway) PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error) {
	u, err := g.client.PresignedGetObject(ctx, g.bucket, key, expires, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download for %s: %w", key, err)
	}
	return u.String(), nil
}

// ObjectInfo describes one object in the bucket listing.
type ObjectInfo struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ListObjects returns the bucket contents.
func (g *Gateway) ListObjects(ctx context.Context) ([]ObjectInfo, error) {
	items := []ObjectInfo{}
	for obj := range g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		items = append(items, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}
