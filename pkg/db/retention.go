package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
	"github.com/quatton/expodist/pkg/dlog"
)

// RetentionResult holds the number of rows removed per table.
type RetentionResult struct {
	DiagnosisKeys       int64
	TraceWarnings       int64
	CheckInReports      int64
	StatisticsDownloads int64
}

func (r RetentionResult) Total() int64 {
	return r.DiagnosisKeys + r.TraceWarnings + r.CheckInReports + r.StatisticsDownloads
}

// Thresholds hold the oldest surviving bucket per table. Rows below them
// are removed.
type Thresholds struct {
	// Hour applies to trace warnings and check-in reports.
	Hour buckets.Hour
	// DiagnosisKeys may lie before Hour while keys are still pending
	// distribution.
	DiagnosisKeys buckets.Hour
	// Seconds applies to statistics downloads.
	Seconds int64
}

// NewThresholds keeps the rows of the last days before now. Rows exactly at
// the threshold are kept.
func NewThresholds(now time.Time, days int) (Thresholds, error) {
	hour, err := buckets.RetentionThresholdHour(now, days)
	if err != nil {
		return Thresholds{}, err
	}
	seconds, err := buckets.RetentionThresholdSeconds(now, days)
	if err != nil {
		return Thresholds{}, err
	}
	return Thresholds{Hour: hour, DiagnosisKeys: hour, Seconds: seconds}, nil
}

// KeepKeysSince lowers the diagnosis key threshold to since.
func (t Thresholds) KeepKeysSince(since buckets.Hour) Thresholds {
	if since < t.DiagnosisKeys {
		t.DiagnosisKeys = since
	}
	return t
}

// ApplyRetention deletes the rows below th.
func (s *Store) ApplyRetention(ctx context.Context, th Thresholds) (RetentionResult, error) {
	var result RetentionResult

	sweeps := []struct {
		table     string
		model     any
		column    string
		threshold int64
		deleted   *int64
	}{
		{"diagnosis_keys", (*models.DiagnosisKey)(nil), "submission_timestamp", int64(th.DiagnosisKeys), &result.DiagnosisKeys},
		{"trace_time_interval_warnings", (*models.TraceTimeIntervalWarning)(nil), "submission_timestamp", int64(th.Hour), &result.TraceWarnings},
		{"check_in_protected_reports", (*models.CheckInProtectedReport)(nil), "submission_timestamp", int64(th.Hour), &result.CheckInReports},
		{"statistics_downloads", (*models.StatisticsDownload)(nil), "downloaded_at", th.Seconds, &result.StatisticsDownloads},
	}

	for _, sw := range sweeps {
		n, err := s.sweep(ctx, sw.table, sw.model, sw.column, sw.threshold)
		if err != nil {
			return result, err
		}
		*sw.deleted = n
	}
	return result, nil
}

func (s *Store) sweep(ctx context.Context, table string, model any, column string, threshold int64) (int64, error) {
	logger := dlog.FromContext(ctx)

	count, err := s.db.NewSelect().
		Model(model).
		Where("? < ?", bun.Ident(column), threshold).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count expired %s: %w", table, err)
	}

	logger.Info("Deleting expired rows", "table", table, "count", count, "threshold", threshold)
	if count == 0 {
		return 0, nil
	}

	res, err := s.deleteExpired(model, column, threshold).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *Store) deleteExpired(model any, column string, threshold int64) *bun.DeleteQuery {
	return s.db.NewDelete().
		Model(model).
		Where("? < ?", bun.Ident(column), threshold)
}
