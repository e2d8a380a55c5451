package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/objectstore"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the output directory",
	Long:  `Uploads the files of an already written distribution tree whose hash differs from the published one.`,
	RunE:  publish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func publish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	r := runner.New(cfg, runner.Deps{Client: store.client})
	counter := objectstore.NewFailedOperationsCounter(cfg.ObjectStore.MaxFailedOperations)
	res, err := r.Publish(ctx, counter)
	if err != nil {
		return err
	}
	log.Printf("✓ %d of %d files uploaded, %d unchanged\n", res.Uploaded, res.Scanned, res.Skipped)
	return nil
}
