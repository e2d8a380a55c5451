package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the distribution once",
	Long: `Applies database retention, assembles and signs the distribution tree,
publishes changed files and removes expired objects from the bucket.`,
	RunE: runDistribution,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDistribution(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg.Print(log.Printf)

	d, err := newDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	report, err := d.runner.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("✓ Run %s: %d uploaded, %d unchanged, %d removed\n",
		report.ID, report.Published.Uploaded, report.Published.Skipped, report.Deleted)
	return nil
}
