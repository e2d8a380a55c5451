package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/routes"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operator API",
	Long: `Serves /health, /status and POST /runs. With --schedule the cron
schedule runs in the same process.`,
	RunE: serve,
}

var serveWithSchedule bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithSchedule, "schedule", false, "Also run the distribution on the configured schedule")
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Print(log.Printf)

	d, err := newDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	api := routes.NewApi()
	svcs := &routes.Services{
		Runs:    d.runner,
		Objects: d.objects.presigner,
		Checks:  d.checks(cfg),
		Logger:  logger,
	}
	routes.RegisterRoutes(api.Api, svcs)

	if serveWithSchedule {
		c, err := startScheduler(ctx, d.runner)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{Addr: addr, Handler: api.Router, ReadHeaderTimeout: 10 * time.Second}

	log.Printf("🚀 Distribution API starting on %s\n", addr)
	log.Printf("📚 OpenAPI docs: http://localhost%s/docs\n", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdown); err != nil {
		return err
	}

	// triggered runs hold the lock for at most its TTL
	pending, cancelPending := context.WithTimeout(context.WithoutCancel(ctx), cfg.LockTTL)
	defer cancelPending()
	if err := svcs.Wait(pending); err != nil {
		return fmt.Errorf("waiting for triggered runs: %w", err)
	}
	return nil
}
