package bundler

import (
	"context"
	"time"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
)

// Bucketer groups records by country and submission hour.
type Bucketer[R any] struct {
	Distribution[R]

	opts        Options
	hourOf      func(R) buckets.Hour
	countriesOf func(R) []string
}

func NewBucketer[R any](opts Options, hourOf func(R) buckets.Hour, countriesOf func(R) []string) *Bucketer[R] {
	return &Bucketer[R]{opts: opts, hourOf: hourOf, countriesOf: countriesOf}
}

// Bundle replaces the current distribution with records falling into the
// window ending at asOf.
func (b *Bucketer[R]) Bundle(ctx context.Context, records []R, asOf time.Time) error {
	from, to, err := window(asOf, b.opts.RetentionDays)
	if err != nil {
		return err
	}
	b.reset(from, to)

	for _, r := range records {
		h := b.hourOf(r)
		if !b.inWindow(h) {
			continue
		}
		for _, country := range b.countriesOf(r) {
			b.add(country, h, r)
		}
	}
	return b.enforceLimit(ctx, b.opts.MaxRecordsPerBucket, b.opts.Strict)
}

// NewTraceWarningBundler buckets v1 warnings for a single country.
func NewTraceWarningBundler(opts Options, country string) *Bucketer[models.TraceTimeIntervalWarning] {
	return NewBucketer(opts,
		func(w models.TraceTimeIntervalWarning) buckets.Hour { return buckets.Hour(w.SubmissionTimestamp) },
		func(models.TraceTimeIntervalWarning) []string { return []string{country} },
	)
}

// NewCheckInReportBundler buckets v2 reports for a single country.
func NewCheckInReportBundler(opts Options, country string) *Bucketer[models.CheckInProtectedReport] {
	return NewBucketer(opts,
		func(r models.CheckInProtectedReport) buckets.Hour { return buckets.Hour(r.SubmissionTimestamp) },
		func(models.CheckInProtectedReport) []string { return []string{country} },
	)
}
