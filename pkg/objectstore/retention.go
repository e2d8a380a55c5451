package objectstore

import (
	"context"
	"fmt"
	"path"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/dlog"
)

// Cutoffs are the oldest buckets that survive retention.
type Cutoffs struct {
	// Date applies to every object carrying a date.
	Date buckets.Date
	// Hour applies to trace warning hour folders.
	Hour buckets.Hour
	// KeyHour applies to diagnosis key hour folders.
	KeyHour buckets.Hour
}

// NewCutoffs derives the cutoffs for a run at now. Diagnosis key hour folders
// only exist for dates after today minus hourFileDays.
func NewCutoffs(now time.Time, days, hourFileDays int) (Cutoffs, error) {
	date, err := buckets.CutoffDate(now, days)
	if err != nil {
		return Cutoffs{}, err
	}
	hour, err := buckets.RetentionThresholdHour(now, days)
	if err != nil {
		return Cutoffs{}, err
	}
	keyDate, err := buckets.CutoffDate(now, hourFileDays)
	if err != nil {
		return Cutoffs{}, err
	}
	return Cutoffs{Date: date, Hour: hour, KeyHour: keyDate.AddDays(1).FirstHour()}, nil
}

// RetentionConfig names the published folders retention walks.
type RetentionConfig struct {
	Prefix                string
	KeyCountries          []string
	TraceWarningCountries []string
	// BatchSize bounds the keys per delete call.
	BatchSize int
	// MaxThreads bounds the concurrent delete calls.
	MaxThreads int
}

// RetentionPolicy removes published objects older than the cutoffs.
type RetentionPolicy struct {
	client  Client
	counter *FailedOperationsCounter
	cfg     RetentionConfig
}

func NewRetentionPolicy(client Client, counter *FailedOperationsCounter, cfg RetentionConfig) *RetentionPolicy {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1000
	}
	if cfg.MaxThreads < 1 {
		cfg.MaxThreads = 1
	}
	return &RetentionPolicy{client: client, counter: counter, cfg: cfg}
}

// Apply deletes expired objects except those in keep. It returns the deleted
// keys, sorted. Once the counter trips no further deletes are started.
func (r *RetentionPolicy) Apply(ctx context.Context, cutoffs Cutoffs, keep map[string]bool) ([]string, error) {
	logger := dlog.FromContext(ctx)

	type removal struct {
		prefix string
		keys   []string
	}
	var removals []removal

	for _, scope := range r.scopes(cutoffs) {
		objects, err := ListAll(ctx, r.client, scope.prefix)
		if err != nil {
			if cerr := r.counter.Inc(ctx, fmt.Errorf("list %s: %w", scope.prefix, err)); cerr != nil {
				return nil, cerr
			}
			continue
		}

		var expired []string
		for _, o := range objects {
			if !keep[o.Key] && scope.expired(o.Key) {
				expired = append(expired, o.Key)
			}
		}
		if len(expired) == 0 {
			continue
		}
		logger.Info("Applying retention", "prefix", scope.prefix, "expired", len(expired))

		for batch := range slices.Chunk(expired, r.cfg.BatchSize) {
			removals = append(removals, removal{prefix: scope.prefix, keys: batch})
		}
	}

	var (
		deleted []string
		mu      sync.Mutex
		g       errgroup.Group
	)
	g.SetLimit(r.cfg.MaxThreads)

	for _, rm := range removals {
		if r.counter.Tripped() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.counter.Tripped() {
				return nil
			}
			if err := r.client.RemoveObjects(ctx, rm.keys); err != nil {
				return r.counter.Inc(ctx, fmt.Errorf("remove under %s: %w", rm.prefix, err))
			}
			mu.Lock()
			deleted = append(deleted, rm.keys...)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	slices.Sort(deleted)

	if err == nil && r.counter.Tripped() {
		err = ErrThresholdExceeded
	}
	if err == nil {
		err = ctx.Err()
	}
	return deleted, err
}

type retentionScope struct {
	prefix  string
	hour    buckets.Hour
	date    buckets.Date
	hasDate bool
}

func (s retentionScope) expired(key string) bool {
	if buckets.IsHourPath(key) {
		h, ok := buckets.HourFromPath(key)
		return ok && h < s.hour
	}
	if !s.hasDate {
		return false
	}
	d, ok := buckets.DateFromPath(key)
	return ok && d < s.date
}

func (r *RetentionPolicy) scopes(c Cutoffs) []retentionScope {
	var out []retentionScope
	for _, country := range r.cfg.KeyCountries {
		out = append(out, retentionScope{
			prefix:  path.Join(r.cfg.Prefix, "v1", "diagnosis-keys", "country", country, "date") + "/",
			hour:    c.KeyHour,
			date:    c.Date,
			hasDate: true,
		})
	}
	for _, version := range []string{"v1", "v2"} {
		for _, country := range r.cfg.TraceWarningCountries {
			out = append(out, retentionScope{
				prefix: path.Join(r.cfg.Prefix, version, "twp", "country", country, "hour") + "/",
				hour:   c.Hour,
			})
		}
	}
	return out
}
