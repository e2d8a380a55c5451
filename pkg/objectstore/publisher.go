package objectstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/quatton/expodist/pkg/dlog"
)

// PublisherConfig controls uploads.
type PublisherConfig struct {
	// Prefix is the root folder of the tree in the bucket.
	Prefix     string
	MaxThreads int
	// CacheMaxAge is the max-age of the Cache-Control header in seconds.
	// Zero omits the header.
	CacheMaxAge int
	PublicRead  bool
	// ForceUpdateKeyFiles uploads key archives even when unchanged.
	ForceUpdateKeyFiles bool
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{Prefix: "version", MaxThreads: 8, CacheMaxAge: 300}
}

// Result summarizes a publish.
type Result struct {
	Scanned  int
	Uploaded int
	Skipped  int
	Failed   int
	Keys     []string
}

// Publisher uploads the files of a local tree that are missing remotely or
// whose hash changed.
type Publisher struct {
	client  Client
	counter *FailedOperationsCounter
	cfg     PublisherConfig
}

func NewPublisher(client Client, counter *FailedOperationsCounter, cfg PublisherConfig) *Publisher {
	if cfg.MaxThreads < 1 {
		cfg.MaxThreads = 1
	}
	return &Publisher{client: client, counter: counter, cfg: cfg}
}

// Publish uploads the changed files below root. It returns
// ErrThresholdExceeded once too many operations failed; no uploads are
// started after that.
func (p *Publisher) Publish(ctx context.Context, root string) (Result, error) {
	logger := dlog.FromContext(ctx)

	local, err := ScanLocal(root)
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", root, err)
	}
	res := Result{Scanned: len(local)}

	diff := local
	published, err := ListAll(ctx, p.client, p.cfg.Prefix)
	if err != nil {
		if cerr := p.counter.Inc(ctx, err); cerr != nil {
			return res, cerr
		}
		logger.Warn("Listing published objects failed, uploading everything", "error", err)
	} else {
		diff = p.changed(local, published)
	}
	res.Skipped = len(local) - len(diff)
	logger.Info("Beginning upload", "files", len(diff), "unchanged", res.Skipped)

	var (
		uploaded, failed atomic.Int64
		mu               sync.Mutex
		g                errgroup.Group
	)
	g.SetLimit(p.cfg.MaxThreads)

	for _, f := range diff {
		if p.counter.Tripped() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if p.counter.Tripped() {
				return nil
			}
			if err := p.client.PutObject(ctx, f.Key, f.Path, p.headers(f)); err != nil {
				failed.Inc()
				return p.counter.Inc(ctx, fmt.Errorf("upload %s: %w", f.Key, err))
			}
			uploaded.Inc()
			mu.Lock()
			res.Keys = append(res.Keys, f.Key)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	res.Uploaded, res.Failed = int(uploaded.Load()), int(failed.Load())
	slices.Sort(res.Keys)
	logger.Info("Upload completed", "uploaded", res.Uploaded, "failed", res.Failed)

	if err == nil && p.counter.Tripped() {
		err = ErrThresholdExceeded
	}
	if err == nil {
		err = ctx.Err()
	}
	return res, err
}

func (p *Publisher) changed(local []LocalFile, published []Object) []LocalFile {
	remote := make(map[string]string, len(published))
	for _, o := range published {
		remote[o.Key] = o.Hash
	}

	var out []LocalFile
	for _, f := range local {
		if p.cfg.ForceUpdateKeyFiles && f.IsKeyFile() {
			out = append(out, f)
			continue
		}
		if hash, ok := remote[f.Key]; !ok || hash != f.Hash {
			out = append(out, f)
		}
	}
	return out
}

func (p *Publisher) headers(f LocalFile) Headers {
	h := Headers{
		ContentType: f.ContentType(),
		Hash:        f.Hash,
		PublicRead:  p.cfg.PublicRead,
	}
	if p.cfg.CacheMaxAge > 0 {
		h.CacheControl = fmt.Sprintf("public,max-age=%d", p.cfg.CacheMaxAge)
	}
	return h
}

// IsThresholdExceeded reports whether err aborted a run because of failures.
func IsThresholdExceeded(err error) bool {
	return errors.Is(err, ErrThresholdExceeded)
}
