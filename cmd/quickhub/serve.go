package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/internal/server"
	"github.com/caffeineduck/quickhub/search"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and HTTP API",
	Long: `Start an HTTP server with the QuickHub page and its JSON API.

Endpoints:
  GET    /                       Single-page UI (?q= fills the active tab)
  GET    /api/tabs               List tabs and the active id
  POST   /api/tabs               Open a tab
  POST   /api/tabs/{id}/select   Activate a tab
  PATCH  /api/tabs/{id}          Set {"title"} and/or {"query"}
  DELETE /api/tabs/{id}          Close a tab
  GET    /api/search?q=          Redirect to the search results
  POST   /api/console/run        Run {"code"}, returns {"id"}
  GET    /api/console/log        Console entries
  DELETE /api/console/log        Clear the console
  GET    /ws/console             WebSocket stream of console entries
  GET    /health                 Health check
  GET    /metrics                Prometheus metrics`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8080)")
	serveCmd.Flags().Float64("run-rate", 0, "Run requests per second per client (default 5)")
	serveCmd.Flags().Int("run-burst", 0, "Run request burst per client (default 10)")
	serveCmd.Flags().StringSlice("allow-origin", nil, "Extra CORS origin (repeatable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	// Searches become redirects; nothing is opened on the server's desktop.
	a, cfg, logger := openApp(cmd, app.WithOpener(&search.RecordingOpener{}))
	defer a.Close()

	if cmd.Flags().Changed("addr") {
		cfg.ServerAddr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("run-rate") {
		cfg.RunRate, _ = cmd.Flags().GetFloat64("run-rate")
	}
	if cmd.Flags().Changed("run-burst") {
		cfg.RunBurst, _ = cmd.Flags().GetInt("run-burst")
	}
	origins, _ := cmd.Flags().GetStringSlice("allow-origin")

	cors := server.DefaultCORSConfig(cfg.ServerAddr)
	cors.AllowOrigins = append(cors.AllowOrigins, origins...)

	srv := server.New(a, server.Config{
		Addr:     cfg.ServerAddr,
		RunRate:  cfg.RunRate,
		RunBurst: cfg.RunBurst,
		CORS:     cors,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "QuickHub listening on http://%s\n", cfg.ServerAddr)
	if err := srv.Run(ctx); err != nil {
		a.Close()
		fail(err)
	}
}
