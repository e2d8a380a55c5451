package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/quatton/expodist/pkg/assembly"
)

// writeTree writes files and their checksum siblings below root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
		sum := assembly.Checksum([]byte(content))
		if err := os.WriteFile(p+assembly.ChecksumSuffix, []byte(sum), 0o644); err != nil {
			t.Fatalf("write checksum %s: %v", rel, err)
		}
	}
}

func sampleTree(t *testing.T) string {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"version/index": `["v1","v2"]`,
		"version/v1/diagnosis-keys/country/index":                                `["DE"]`,
		"version/v1/diagnosis-keys/country/DE/date/2021-05-01/index":             "zip-day",
		"version/v1/diagnosis-keys/country/DE/date/2021-05-01/hour/451872/index": "zip-hour",
	})
	return root
}

func newTestPublisher(c Client, max int, mutate func(*PublisherConfig)) *Publisher {
	cfg := DefaultPublisherConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPublisher(c, NewFailedOperationsCounter(max), cfg)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"version/index", "version"},
		{"version/v1/diagnosis-keys/country/DE/date/2021-05-01/index", "version/v1/diagnosis-keys/country/DE/date/2021-05-01"},
		{"version/v1/twp/country/DE/hour/index", "version/v1/twp/country/DE/hour"},
		{"version/v1/app_config", "version/v1/app_config"},
		{"index", ""},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := ObjectKey(tt.rel); got != tt.want {
				t.Errorf("Expected key %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScanLocal(t *testing.T) {
	root := sampleTree(t)
	files, err := ScanLocal(root)
	if err != nil {
		t.Fatalf("ScanLocal failed: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("Expected 4 files without checksum siblings, got %d", len(files))
	}
	for _, f := range files {
		content, _ := os.ReadFile(f.Path)
		if f.Hash != assembly.Checksum(content) {
			t.Errorf("Expected hash of %s to come from its checksum file", f.Key)
		}
	}
}

func TestPublish_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := sampleTree(t)
	c := NewMemoryClient()

	res, err := newTestPublisher(c, 5, nil).Publish(ctx, root)
	if err != nil {
		t.Fatalf("first Publish failed: %v", err)
	}
	if res.Uploaded != 4 || res.Skipped != 0 {
		t.Errorf("Expected 4 uploads on first run, got %+v", res)
	}

	puts := c.Puts()
	res, err = newTestPublisher(c, 5, nil).Publish(ctx, root)
	if err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}
	if c.Puts() != puts || res.Uploaded != 0 || res.Skipped != 4 {
		t.Errorf("Expected no uploads on second run, got %d puts and %+v", c.Puts()-puts, res)
	}
}

func TestPublish_UploadsChangedFiles(t *testing.T) {
	ctx := context.Background()
	root := sampleTree(t)
	c := NewMemoryClient()
	if _, err := newTestPublisher(c, 5, nil).Publish(ctx, root); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	writeTree(t, root, map[string]string{"version/v1/diagnosis-keys/country/index": `["DE","EUR"]`})
	res, err := newTestPublisher(c, 5, nil).Publish(ctx, root)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !slices.Equal(res.Keys, []string{"version/v1/diagnosis-keys/country"}) {
		t.Errorf("Expected only the changed listing to be uploaded, got %v", res.Keys)
	}
	if o, _ := c.Object("version/v1/diagnosis-keys/country"); string(o.Content) != `["DE","EUR"]` {
		t.Errorf("Expected new content, got %s", o.Content)
	}
}

func TestPublish_FollowsPagination(t *testing.T) {
	ctx := context.Background()
	root := sampleTree(t)
	c := NewMemoryClient()
	if _, err := newTestPublisher(c, 5, nil).Publish(ctx, root); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	c.PageSize = 1
	lists := c.Lists()
	res, err := newTestPublisher(c, 5, nil).Publish(ctx, root)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := c.Lists() - lists; got != 4 {
		t.Errorf("Expected 4 page requests, got %d", got)
	}
	if res.Uploaded != 0 {
		t.Errorf("Expected objects on later pages to be recognized, got %d uploads", res.Uploaded)
	}
}

func TestPublish_ListFailureUploadsEverything(t *testing.T) {
	ctx := context.Background()
	root := sampleTree(t)
	c := NewMemoryClient()
	if _, err := newTestPublisher(c, 5, nil).Publish(ctx, root); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	c.FailList = errors.New("list unavailable")
	p := newTestPublisher(c, 5, nil)
	res, err := p.Publish(ctx, root)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if res.Uploaded != 4 {
		t.Errorf("Expected every file uploaded after a failed listing, got %d", res.Uploaded)
	}
	if p.counter.Count() != 1 {
		t.Errorf("Expected the listing failure to be counted, got %d", p.counter.Count())
	}
}

func TestPublish_AbortsAfterThreshold(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	files := map[string]string{}
	for _, h := range []string{"451870", "451871", "451872", "451873", "451874", "451875"} {
		files["version/v1/twp/country/DE/hour/"+h+"/index"] = "zip-" + h
	}
	writeTree(t, root, files)

	c := NewMemoryClient()
	c.FailPut = func(string) error { return errors.New("upload refused") }

	const max = 2
	p := newTestPublisher(c, max, func(cfg *PublisherConfig) { cfg.MaxThreads = 1 })
	res, err := p.Publish(ctx, root)
	if !errors.Is(err, ErrThresholdExceeded) {
		t.Fatalf("Expected ErrThresholdExceeded, got %v", err)
	}
	if c.Puts() != max+1 {
		t.Errorf("Expected %d upload attempts before aborting, got %d", max+1, c.Puts())
	}
	if res.Failed != max+1 || res.Uploaded != 0 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestPublish_Headers(t *testing.T) {
	ctx := context.Background()
	root := sampleTree(t)
	c := NewMemoryClient()
	p := newTestPublisher(c, 5, func(cfg *PublisherConfig) {
		cfg.PublicRead = true
		cfg.CacheMaxAge = 60
	})
	if _, err := p.Publish(ctx, root); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	archive, _ := c.Object("version/v1/diagnosis-keys/country/DE/date/2021-05-01/hour/451872")
	if archive.Headers.ContentType != "application/zip" {
		t.Errorf("Expected application/zip, got %s", archive.Headers.ContentType)
	}
	if archive.Headers.Hash != assembly.Checksum([]byte("zip-hour")) {
		t.Errorf("Expected checksum header, got %s", archive.Headers.Hash)
	}
	if !archive.Headers.PublicRead || archive.Headers.CacheControl != "public,max-age=60" {
		t.Errorf("Unexpected headers %+v", archive.Headers)
	}

	listing, _ := c.Object("version")
	if listing.Headers.ContentType != "application/json" {
		t.Errorf("Expected application/json, got %s", listing.Headers.ContentType)
	}
}

func TestPublish_ForceUpdateKeyFiles(t *testing.T) {
	ctx := context.Background()
	root := sampleTree(t)
	c := NewMemoryClient()
	if _, err := newTestPublisher(c, 5, nil).Publish(ctx, root); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	res, err := newTestPublisher(c, 5, func(cfg *PublisherConfig) { cfg.ForceUpdateKeyFiles = true }).Publish(ctx, root)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	want := []string{
		"version/v1/diagnosis-keys/country/DE/date/2021-05-01",
		"version/v1/diagnosis-keys/country/DE/date/2021-05-01/hour/451872",
	}
	if !slices.Equal(res.Keys, want) {
		t.Errorf("Expected key files %v re-uploaded, got %v", want, res.Keys)
	}
}
