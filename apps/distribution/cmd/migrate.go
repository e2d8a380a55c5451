package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quatton/expodist/pkg/db"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		_, err = db.Migrate(ctx, database)
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
