package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/ingest"
	"github.com/kozaktomas/face-search/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Search API server.

Uploaded images are processed inline or queued for the ingestion workers
depending on INGEST_MODE. In deferred mode the workers run in-process
unless --workers is 0.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (defaults to WEB_HOST)")
	serveCmd.Flags().Int("workers", -1, "In-process ingestion workers in deferred mode (-1 uses INGEST_WORKERS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer a.Close()

	var pool *ingest.WorkerPool
	if cfg.Ingest.Mode == "deferred" {
		if workers := mustGetInt(cmd, "workers"); workers != 0 {
			pool = a.workerPool(workers)
			pool.Start(ctx)
		} else {
			fmt.Println("Deferred mode without in-process workers; run 'face-search worker' separately")
		}
	}

	server := web.NewServer(cfg, a.gallery, Version)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Search API on http://%s:%d (ingest mode: %s)\n", cfg.Web.Host, cfg.Web.Port, cfg.Ingest.Mode)
	fmt.Println("Press Ctrl+C to stop")

	err = server.Start()
	if pool != nil {
		pool.Stop()
	}
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
