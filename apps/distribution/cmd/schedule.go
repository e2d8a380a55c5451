package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/runner"
	"github.com/quatton/expodist/pkg/dlog"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the distribution on the configured cron schedule",
	RunE:  schedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

// startScheduler runs r on the configured schedule until ctx is done.
// A tick is skipped while the previous run is still going.
func startScheduler(ctx context.Context, r *runner.Runner) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := c.AddFunc(cfg.Schedule, func() {
		if _, err := r.Run(ctx); err != nil {
			dlog.FromContext(ctx).Warn("Scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("⏰ Scheduled distribution runs: %s\n", cfg.Schedule)
	return c, nil
}

func schedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Print(log.Printf)

	d, err := newDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	c, err := startScheduler(ctx, d.runner)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Println("Waiting for the current run to finish...")
	<-c.Stop().Done()
	return nil
}
