package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client implements Client with the AWS SDK.
type S3Client struct {
	s3Client *s3.Client
	bucket   string
	// PageSize bounds the objects per listing page. Zero lets the server decide.
	PageSize int32
}

// S3Config selects the bucket and, optionally, a custom endpoint with static
// credentials. Without credentials the default AWS chain is used.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// NewS3Client creates an S3 client from the default AWS configuration.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Client{s3Client: client, bucket: cfg.Bucket}, nil
}

func (c *S3Client) BucketExists(ctx context.Context) (bool, error) {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("head bucket %s: %w", c.bucket, err)
}

// ListObjects lists one page and reads every object's hash with a head call.
func (c *S3Client) ListObjects(ctx context.Context, prefix, continuation string) (Page, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	if continuation != "" {
		in.ContinuationToken = aws.String(continuation)
	}
	if c.PageSize > 0 {
		in.MaxKeys = aws.Int32(c.PageSize)
	}

	resp, err := c.s3Client.ListObjectsV2(ctx, in)
	if err != nil {
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noBucket) {
			return Page{}, ErrBucketMissing
		}
		return Page{}, fmt.Errorf("list s3://%s/%s: %w", c.bucket, prefix, err)
	}

	page := Page{Objects: make([]Object, 0, len(resp.Contents))}
	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		head, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			return Page{}, fmt.Errorf("head s3://%s/%s: %w", c.bucket, key, err)
		}
		page.Objects = append(page.Objects, Object{
			Key:          key,
			Hash:         hashFromMetadata(head.Metadata),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(resp.IsTruncated) {
		page.NextToken = aws.ToString(resp.NextContinuationToken)
	}
	return page, nil
}

func (c *S3Client) PutObject(ctx context.Context, key, path string, headers Headers) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(headers.ContentType),
		Metadata:    map[string]string{HashMetadataKey: headers.Hash},
	}
	if headers.CacheControl != "" {
		in.CacheControl = aws.String(headers.CacheControl)
	}
	if headers.PublicRead {
		in.ACL = types.ObjectCannedACLPublicRead
	}

	if _, err := c.s3Client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

func (c *S3Client) RemoveObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}

	resp, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(c.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete from s3://%s: %w", c.bucket, err)
	}
	if len(resp.Errors) > 0 {
		e := resp.Errors[0]
		return fmt.Errorf("delete s3://%s/%s: %s", c.bucket, aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

func (c *S3Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object s3://%s/%s: %w", c.bucket, key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// PresignedURL generates a presigned download URL for key.
func (c *S3Client) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s3.NewPresignClient(c.s3Client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", c.bucket, key, err)
	}
	return req.URL, nil
}

var _ Client = (*S3Client)(nil)
