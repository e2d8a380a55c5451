package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/db"
	"github.com/quatton/expodist/pkg/signing"
)

// assembleCmd represents the assemble command
var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Write the distribution tree without publishing",
	Long:  `Bundles the submissions of the retention window and writes the signed tree to the output directory.`,
	RunE:  assemble,
}

var assembleAt string

func init() {
	rootCmd.AddCommand(assembleCmd)
	assembleCmd.Flags().StringVar(&assembleAt, "at", "", "Assemble as of this RFC 3339 time instead of now")
}

func assemble(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	now := time.Now().UTC()
	if assembleAt != "" {
		at, err := time.Parse(time.RFC3339, assembleAt)
		if err != nil {
			return err
		}
		now = at.UTC()
	}

	database, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	signer, err := signing.NewSigner(signing.FileKeyProvider{Path: cfg.PrivateKeyPath})
	if err != nil {
		return err
	}

	// shift anchors of the scheduled runs, read only
	state, err := newLocks(cfg)
	if err != nil {
		return err
	}
	defer state.Close()

	r := runner.New(cfg, runner.Deps{Records: db.NewStore(database), State: state, Signer: signer})
	if err := r.WriteTree(ctx, now); err != nil {
		return err
	}
	log.Printf("✓ Distribution tree written to %s\n", cfg.OutputDir)
	return nil
}
