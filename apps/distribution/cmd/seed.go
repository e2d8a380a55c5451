package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/utils"
	"github.com/quatton/expodist/pkg/db"
	"github.com/quatton/expodist/pkg/dlog"
	"github.com/quatton/expodist/pkg/seed"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate test diagnosis keys",
	Long: `Inserts pseudo-random diagnosis keys for every hour since the latest
submission of each supported country. Refused in production.`,
	RunE: seedKeys,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seedKeys(cmd *cobra.Command, args []string) error {
	if utils.IsProd() {
		return errors.New("test data generation is disabled in production")
	}
	ctx := cmd.Context()
	now := time.Now().UTC()

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	store := db.NewStore(database)

	gen := seed.NewGenerator(seed.Config{
		Seed:                cfg.TestData.Seed,
		ExposuresPerHour:    cfg.TestData.ExposuresPerHour,
		RetentionDays:       cfg.RetentionDays,
		SupportedCountries:  cfg.SupportedCountries,
		ConsentToFederation: cfg.TestData.ConsentToFederation,
	})

	for _, country := range cfg.SupportedCountries {
		latest, ok, err := store.LatestDiagnosisKeyHour(ctx, country)
		if err != nil {
			return err
		}
		keys := gen.Generate(ctx, country, latest, ok, now)
		inserted, err := store.InsertDiagnosisKeys(ctx, keys)
		if err != nil {
			return err
		}
		dlog.FromContext(ctx).Info("Generated test keys", "country", country, "generated", len(keys), "inserted", inserted)
	}
	log.Println("✓ Test data generated")
	return nil
}
