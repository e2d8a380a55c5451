package migrations

import (
	"context"
	"fmt"

	"github.com/quatton/expodist/pkg/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		_, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS exposure").Exec(ctx)
		if err != nil {
			return err
		}

		tables := []any{
			(*models.DiagnosisKey)(nil),
			(*models.TraceTimeIntervalWarning)(nil),
			(*models.CheckInProtectedReport)(nil),
			(*models.StatisticsDownload)(nil),
		}
		for _, model := range tables {
			_, err = db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return err
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		tables := []any{
			(*models.StatisticsDownload)(nil),
			(*models.CheckInProtectedReport)(nil),
			(*models.TraceTimeIntervalWarning)(nil),
			(*models.DiagnosisKey)(nil),
		}
		for _, model := range tables {
			_, err := db.NewDropTable().Model(model).IfExists().Exec(ctx)
			if err != nil {
				return err
			}
		}

		_, err := db.NewRaw("DROP SCHEMA IF EXISTS exposure").Exec(ctx)
		return err
	})
}
