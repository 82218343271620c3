package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the deferred ingestion workers",
	Long: `Run ingestion workers that extract faces from queued uploads.

Use this with INGEST_MODE=deferred to scale extraction separately from the
API server. Workers wake on new jobs and retry failed ones up to
INGEST_MAX_ATTEMPTS times.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Int("workers", 0, "Number of workers (defaults to INGEST_WORKERS)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, "deferred")
	if err != nil {
		return err
	}
	defer a.Close()

	pool := a.workerPool(mustGetInt(cmd, "workers"))
	pool.Start(ctx)
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	pool.Stop()
	return nil
}
