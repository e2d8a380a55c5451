package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		stmts := []string{
			"CREATE INDEX IF NOT EXISTS diagnosis_keys_submission_timestamp_idx ON exposure.diagnosis_keys (submission_timestamp)",
			"CREATE INDEX IF NOT EXISTS trace_time_interval_warnings_submission_timestamp_idx ON exposure.trace_time_interval_warnings (submission_timestamp)",
			"CREATE INDEX IF NOT EXISTS check_in_protected_reports_submission_timestamp_idx ON exposure.check_in_protected_reports (submission_timestamp)",
			"CREATE INDEX IF NOT EXISTS statistics_downloads_downloaded_at_idx ON exposure.statistics_downloads (downloaded_at)",
		}

		for _, stmt := range stmts {
			if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		stmts := []string{
			"DROP INDEX IF EXISTS exposure.statistics_downloads_downloaded_at_idx",
			"DROP INDEX IF EXISTS exposure.check_in_protected_reports_submission_timestamp_idx",
			"DROP INDEX IF EXISTS exposure.trace_time_interval_warnings_submission_timestamp_idx",
			"DROP INDEX IF EXISTS exposure.diagnosis_keys_submission_timestamp_idx",
		}

		for _, stmt := range stmts {
			if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	})
}
