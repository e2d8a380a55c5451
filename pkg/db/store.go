package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/db/models"
)

// Store reads and writes the submission tables.
type Store struct {
	db bun.IDB
}

func NewStore(db bun.IDB) *Store {
	return &Store{db: db}
}

// DiagnosisKeys returns the keys submitted at or after since.
func (s *Store) DiagnosisKeys(ctx context.Context, since buckets.Hour) ([]models.DiagnosisKey, error) {
	var keys []models.DiagnosisKey
	err := s.db.NewSelect().
		Model(&keys).
		Where("submission_timestamp >= ?", int64(since)).
		OrderExpr("submission_timestamp ASC, key_data ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load diagnosis keys: %w", err)
	}
	return keys, nil
}

// TraceWarnings returns the v1 warnings submitted at or after since.
func (s *Store) TraceWarnings(ctx context.Context, since buckets.Hour) ([]models.TraceTimeIntervalWarning, error) {
	var warnings []models.TraceTimeIntervalWarning
	err := s.db.NewSelect().
		Model(&warnings).
		Where("submission_timestamp >= ?", int64(since)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trace warnings: %w", err)
	}
	return warnings, nil
}

// CheckInReports returns the v2 reports submitted at or after since.
func (s *Store) CheckInReports(ctx context.Context, since buckets.Hour) ([]models.CheckInProtectedReport, error) {
	var reports []models.CheckInProtectedReport
	err := s.db.NewSelect().
		Model(&reports).
		Where("submission_timestamp >= ?", int64(since)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load check-in reports: %w", err)
	}
	return reports, nil
}

// DiagnosisKeyHours lists the distinct submission hours at or after since.
func (s *Store) DiagnosisKeyHours(ctx context.Context, since buckets.Hour) ([]buckets.Hour, error) {
	var raw []int64
	err := s.db.NewSelect().
		Model((*models.DiagnosisKey)(nil)).
		ColumnExpr("DISTINCT submission_timestamp").
		Where("submission_timestamp >= ?", int64(since)).
		Scan(ctx, &raw)
	if err != nil {
		return nil, fmt.Errorf("load submission hours: %w", err)
	}
	hours := make([]buckets.Hour, len(raw))
	for i, h := range raw {
		hours[i] = buckets.Hour(h)
	}
	return hours, nil
}

// LatestDiagnosisKeyHour returns the newest submission hour of keys from
// origin. ok is false when there are none.
func (s *Store) LatestDiagnosisKeyHour(ctx context.Context, origin string) (hour buckets.Hour, ok bool, err error) {
	var latest sql.NullInt64
	err = s.db.NewSelect().
		Model((*models.DiagnosisKey)(nil)).
		ColumnExpr("MAX(submission_timestamp)").
		Where("origin_country = ?", origin).
		Scan(ctx, &latest)
	if err != nil {
		return 0, false, fmt.Errorf("load latest submission of %s: %w", origin, err)
	}
	return buckets.Hour(latest.Int64), latest.Valid, nil
}

// InsertDiagnosisKeys stores keys, skipping key data that already exists.
func (s *Store) InsertDiagnosisKeys(ctx context.Context, keys []models.DiagnosisKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res, err := s.db.NewInsert().
		Model(&keys).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert diagnosis keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) InsertTraceWarnings(ctx context.Context, warnings []models.TraceTimeIntervalWarning) error {
	if len(warnings) == 0 {
		return nil
	}
	if _, err := s.db.NewInsert().Model(&warnings).Exec(ctx); err != nil {
		return fmt.Errorf("insert trace warnings: %w", err)
	}
	return nil
}

func (s *Store) InsertCheckInReports(ctx context.Context, reports []models.CheckInProtectedReport) error {
	if len(reports) == 0 {
		return nil
	}
	if _, err := s.db.NewInsert().Model(&reports).Exec(ctx); err != nil {
		return fmt.Errorf("insert check-in reports: %w", err)
	}
	return nil
}
