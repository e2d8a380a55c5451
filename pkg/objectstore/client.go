// Package objectstore publishes the distribution tree to S3-compatible
// storage and applies retention to what was published.
package objectstore

import (
	"context"
	"strings"
	"time"
)

// HashMetadataKey is the user metadata entry holding the checksum of the
// published file.
const HashMetadataKey = "cwa-hash"

// Object is a stored object as returned by a listing.
type Object struct {
	Key          string
	Hash         string
	Size         int64
	LastModified time.Time
}

// Page is one page of a listing. NextToken is empty on the last page.
type Page struct {
	Objects   []Object
	NextToken string
}

// Headers are sent with every upload.
type Headers struct {
	ContentType  string
	CacheControl string
	Hash         string
	PublicRead   bool
}

// Client is the minimal object store surface the publisher needs.
type Client interface {
	// ListObjects returns one page of objects under prefix, starting at the
	// continuation token returned by the previous page.
	ListObjects(ctx context.Context, prefix, continuation string) (Page, error)

	// PutObject uploads the local file at path under key.
	PutObject(ctx context.Context, key, path string, headers Headers) error

	// RemoveObjects deletes keys. Missing keys are not an error.
	RemoveObjects(ctx context.Context, keys []string) error

	BucketExists(ctx context.Context) (bool, error)

	GetObject(ctx context.Context, key string) ([]byte, error)
}

// ListAll follows continuation tokens until the listing is exhausted.
func ListAll(ctx context.Context, c Client, prefix string) ([]Object, error) {
	var (
		out   []Object
		token string
	)
	for {
		page, err := c.ListObjects(ctx, prefix, token)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Objects...)
		if page.NextToken == "" {
			return out, nil
		}
		token = page.NextToken
	}
}

// hashFromMetadata finds the checksum entry regardless of how the backend
// canonicalised the header name.
func hashFromMetadata(meta map[string]string) string {
	for k, v := range meta {
		if strings.EqualFold(strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-"), HashMetadataKey) {
			return v
		}
	}
	return ""
}
