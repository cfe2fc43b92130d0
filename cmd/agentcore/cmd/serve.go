package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop and expose a Prometheus /metrics endpoint",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", ":9090", "address to serve /metrics on")
}

func runServe(c *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer app.Scheduler.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	server := &http.Server{Addr: serveAddr, Handler: mux}
	go func() {
		_ = server.ListenAndServe()
	}()
	defer server.Shutdown(context.Background())

	app.Log.Info("agentcore serving", map[string]interface{}{"metrics_addr": serveAddr, "db": flagDBPath})

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			app.Log.Info("agentcore shutting down", nil)
			return nil
		case <-ticker.C:
			sampleResources(app)
		}
	}
}
