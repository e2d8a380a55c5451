package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/db"
	"github.com/quatton/expodist/pkg/objectstore"
)

// retentionCmd represents the retention command
var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Remove expired submissions and objects",
	Long:  `Deletes database rows and published objects older than the retention period.`,
	RunE:  retention,
}

var retentionSkipObjects bool

func init() {
	rootCmd.AddCommand(retentionCmd)
	retentionCmd.Flags().BoolVar(&retentionSkipObjects, "db-only", false, "Only apply retention to the database")
}

func retention(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	now := time.Now().UTC()

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	locks, err := newLocks(cfg)
	if err != nil {
		return err
	}
	defer locks.Close()

	deps := runner.Deps{Retention: db.NewStore(database), State: locks}
	res, err := runner.New(cfg, deps).ApplyDBRetention(ctx, now)
	if err != nil {
		return err
	}
	log.Printf("✓ Removed %d expired rows\n", res.Total())

	if retentionSkipObjects {
		return nil
	}

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	deps.Client = store.client
	counter := objectstore.NewFailedOperationsCounter(cfg.ObjectStore.MaxFailedOperations)
	deleted, err := runner.New(cfg, deps).ApplyObjectRetention(ctx, now, counter)
	if err != nil {
		return err
	}
	log.Printf("✓ Removed %d expired objects\n", len(deleted))
	return nil
}
