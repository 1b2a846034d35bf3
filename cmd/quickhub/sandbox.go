package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/caffeineduck/quickhub/internal/logging"
	"github.com/caffeineduck/quickhub/sandbox"
	"github.com/spf13/cobra"
)

// sandboxCmd is the child side of process isolation. The parent starts it
// with an empty environment, so its limits arrive as flags.
var sandboxCmd = &cobra.Command{
	Use:    "sandbox",
	Short:  "Serve the sandbox protocol on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run:    runSandbox,
}

var sandboxOptions func() []sandbox.Option

func init() {
	sandboxOptions = sandbox.Flags(sandboxCmd.Flags())
	rootCmd.AddCommand(sandboxCmd)
}

func runSandbox(cmd *cobra.Command, args []string) {
	logger, err := logging.New(logging.DefaultConfig())
	if err != nil {
		logger = logging.NewNop()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := append(sandboxOptions(), sandbox.WithLogger(logger.Named("sandbox")))
	if err := sandbox.Serve(ctx, os.Stdin, os.Stdout, opts...); err != nil && ctx.Err() == nil {
		fail(err)
	}
}
