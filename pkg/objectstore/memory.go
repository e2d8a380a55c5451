package objectstore

import (
	"context"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// StoredObject is an object held by a MemoryClient.
type StoredObject struct {
	Content []byte
	Headers Headers
}

// MemoryClient is an in-process Client used for dry runs and tests.
type MemoryClient struct {
	mu      sync.Mutex
	objects map[string]StoredObject

	// PageSize bounds listing pages. Zero returns everything at once.
	PageSize int
	// FailPut, when set, is consulted before every upload.
	FailPut func(key string) error
	// FailList, when set, is returned by every listing.
	FailList error
	// FailRemove, when set, is consulted before every batch removal.
	FailRemove func(keys []string) error

	puts    int
	lists   int
	removes int
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: map[string]StoredObject{}}
}

func (c *MemoryClient) BucketExists(context.Context) (bool, error) {
	return true, nil
}

func (c *MemoryClient) ListObjects(ctx context.Context, prefix, continuation string) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++

	if c.FailList != nil {
		return Page{}, c.FailList
	}

	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	start := 0
	if continuation != "" {
		n, err := strconv.Atoi(continuation)
		if err != nil {
			return Page{}, err
		}
		start = min(n, len(keys))
	}
	end := len(keys)
	if c.PageSize > 0 {
		end = min(start+c.PageSize, len(keys))
	}

	var page Page
	for _, k := range keys[start:end] {
		o := c.objects[k]
		page.Objects = append(page.Objects, Object{Key: k, Hash: o.Headers.Hash, Size: int64(len(o.Content))})
	}
	if end < len(keys) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (c *MemoryClient) PutObject(ctx context.Context, key, path string, headers Headers) error {
	c.mu.Lock()
	c.puts++
	fail := c.FailPut
	c.mu.Unlock()

	if fail != nil {
		if err := fail(key); err != nil {
			return err
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = StoredObject{Content: content, Headers: headers}
	return nil
}

func (c *MemoryClient) RemoveObjects(ctx context.Context, keys []string) error {
	c.mu.Lock()
	c.removes++
	fail := c.FailRemove
	c.mu.Unlock()

	if fail != nil {
		if err := fail(keys); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.objects, k)
	}
	return nil
}

func (c *MemoryClient) GetObject(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Content, nil
}

// Object returns the stored object under key.
func (c *MemoryClient) Object(key string) (StoredObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[key]
	return o, ok
}

// Keys returns all stored keys in order.
func (c *MemoryClient) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Puts returns the number of upload attempts so far.
func (c *MemoryClient) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// Lists returns the number of listing calls so far.
func (c *MemoryClient) Lists() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

// Removes returns the number of delete calls so far.
func (c *MemoryClient) Removes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removes
}

var _ Client = (*MemoryClient)(nil)
