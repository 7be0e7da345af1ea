package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// BlobConfig holds configuration for S3-compatible blob storage
type BlobConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for R2, DO Spaces, MinIO, etc.
	AccessKeyID     string
	SecretAccessKey string
}

// BlobStore uploads snapshot artifacts to S3-compatible storage
type BlobStore struct {
	client *s3.Client
	bucket string
}

// NewBlobStore creates a new blob store
func NewBlobStore(ctx context.Context, cfg BlobConfig) (*BlobStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Upload writes data under the given key
func (b *BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w: %v", key, ErrStorageWrite, err)
	}
	return nil
}

// SnapshotKey builds the canonical blob key for one snapshot artifact.
func SnapshotKey(jobID, snapshotID uuid.UUID, artifact string) string {
	return fmt.Sprintf("snapshots/%s/%s/%s", jobID, snapshotID, artifact)
}

// ArtifactContentType maps artifact file names to MIME types.
func ArtifactContentType(artifact string) string {
	switch artifact {
	case "data.json":
		return "application/json"
	case "screenshot.png":
		return "image/png"
	case "render.pdf":
		return "application/pdf"
	case "extract.md":
		return "text/markdown"
	default:
		return "text/html"
	}
}
