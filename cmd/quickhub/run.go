package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/console"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a script in the sandbox",
	Long: `Execute JavaScript in the sandbox and print its console output and result.

The script is the body of an async function: use return to produce a value
and await for promises and timers.

Code can be provided via:
  - File argument: quickhub run script.js
  - Inline flag: quickhub run -c 'return 1 + 1'
  - Stdin: echo 'return 1 + 1' | quickhub run`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
}

func runRun(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("code")

	var source string
	switch {
	case code != "":
		source = code
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			fail(err)
		}
		source = string(data)
	default:
		// Check if stdin has data (not a terminal)
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			cmd.Help()
			return
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail(err)
		}
		source = string(data)
		if source == "" {
			cmd.Help()
			return
		}
	}

	a, cfg, _ := openApp(cmd)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printer := console.NewPrinter(cmd.OutOrStdout(), cfg.NoColor).Hide(console.KindInfo)
	if ok := evalAndPrint(ctx, a, source, printer, cmd.OutOrStdout()); !ok {
		a.Close()
		os.Exit(1)
	}
}

// evalAndPrint runs code, printing console output as it is rendered and
// then the value. It reports whether the script succeeded.
func evalAndPrint(ctx context.Context, a *app.App, code string, printer *console.Printer, out io.Writer) bool {
	detach := printer.Attach(a.Console())
	res, ran, err := a.Eval(ctx, code)
	if werr := detach(); werr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", werr)
		return false
	}

	if err != nil {
		// Already on the console as an [error] entry.
		return false
	}
	if !ran {
		return true
	}
	if res.OK && res.Value != "undefined" {
		fmt.Fprintln(out, res.Value)
	}
	return res.OK
}
