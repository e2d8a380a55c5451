package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient implements Client using MinIO/S3-compatible storage.
type MinioClient struct {
	core   *minio.Core
	bucket string
	region string
	// PageSize bounds the objects per listing page. Zero lets the server decide.
	PageSize int
}

// MinioConfig holds configuration for S3-compatible storage.
type MinioConfig struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// ResponseTimeout bounds the wait for response headers. Listing has no
	// context in the core API, so this is its only deadline.
	ResponseTimeout time.Duration
}

// NewMinioClient creates a new MinioClient with the given configuration.
func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	if cfg.ResponseTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.ResponseTimeout
	}

	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
		// RetryingClient retries whole operations
		MaxRetries: 1,
	})
	if err != nil {
		return nil, err
	}

	return &MinioClient{
		core:   core,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// EnsureBucket ensures the bucket exists, creating it if necessary.
func (c *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.BucketExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return c.core.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{
		Region: c.region,
	})
}

func (c *MinioClient) BucketExists(ctx context.Context) (bool, error) {
	return c.core.BucketExists(ctx, c.bucket)
}

// ListObjects lists one page. Listings carry no user metadata, so the hash
// of every object is read with a stat call.
func (c *MinioClient) ListObjects(ctx context.Context, prefix, continuation string) (Page, error) {
	res, err := c.core.ListObjectsV2(c.bucket, prefix, "", continuation, "", c.PageSize)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchBucket" {
			return Page{}, ErrBucketMissing
		}
		return Page{}, err
	}

	page := Page{Objects: make([]Object, 0, len(res.Contents))}
	for _, obj := range res.Contents {
		info, err := c.core.StatObject(ctx, c.bucket, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			return Page{}, fmt.Errorf("stat %s: %w", obj.Key, err)
		}
		page.Objects = append(page.Objects, Object{
			Key:          obj.Key,
			Hash:         hashFromMetadata(info.UserMetadata),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	if res.IsTruncated {
		page.NextToken = res.NextContinuationToken
	}
	return page, nil
}

func (c *MinioClient) PutObject(ctx context.Context, key, path string, headers Headers) error {
	meta := map[string]string{HashMetadataKey: headers.Hash}
	if headers.PublicRead {
		meta["x-amz-acl"] = "public-read"
	}

	_, err := c.core.FPutObject(ctx, c.bucket, key, path, minio.PutObjectOptions{
		ContentType:  headers.ContentType,
		CacheControl: headers.CacheControl,
		UserMetadata: meta,
	})
	return err
}

func (c *MinioClient) RemoveObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objectsCh <- minio.ObjectInfo{Key: k}
	}
	close(objectsCh)

	for rerr := range c.core.RemoveObjects(ctx, c.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return nil
}

// GetObject retrieves an object by key.
func (c *MinioClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.core.Client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// Check if object exists by getting stat
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return io.ReadAll(obj)
}

// PresignedURL generates a presigned download URL for key.
func (c *MinioClient) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := c.core.PresignedGetObject(ctx, c.bucket, key, expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

var _ Client = (*MinioClient)(nil)
