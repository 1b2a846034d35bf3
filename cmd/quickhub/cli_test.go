package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/console"
	"github.com/caffeineduck/quickhub/internal/config"
	"github.com/caffeineduck/quickhub/search"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags returns every flag to its default. rootCmd is a package
// global, so values would otherwise leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func assertContainsAll(t *testing.T, output string, phrases ...string) {
	t.Helper()
	for _, phrase := range phrases {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)

	assertContainsAll(t, output,
		"quickhub",
		"sandbox",
		"run",
		"repl",
		"serve",
		"tabs",
		"search",
		"--isolation",
		"--storage-path",
	)
	assert.NotContains(t, output, "Serve the sandbox protocol", "sandbox command is hidden")
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--help")
	require.NoError(t, err)
	assertContainsAll(t, output, "--code", "return", "await")
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "repl", "--help")
	require.NoError(t, err)
	assertContainsAll(t, output, "--history", "Command history", "Multi-line", ".clear")
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	require.NoError(t, err)
	assertContainsAll(t, output, "--addr", "--run-rate", "--allow-origin", "/api/tabs", "/ws/console", "/metrics")
}

func TestCLITabsHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "tabs", "--help")
	require.NoError(t, err)
	assertContainsAll(t, output, "list", "new", "select", "close", "rename", "query")
}

func TestCLITabsFlow(t *testing.T) {
	store := filepath.Join(t.TempDir(), "store.json")
	tabs := func(args ...string) string {
		t.Helper()
		argv := append(append([]string{"tabs"}, args...), "--no-color", "--storage-path", store)
		out, err := executeCommand(rootCmd, argv...)
		require.NoError(t, err)
		return out
	}

	out := tabs("list")
	assert.Contains(t, out, "* 1 ")
	assert.Contains(t, out, "New Tab")

	out = tabs("new", "golang generics")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "* 2 "))
	assert.Contains(t, lines[1], "golang generics")

	out = tabs("select", "1")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "* 1 "))

	out = tabs("rename", "2", "Go")
	assert.Contains(t, out, "Go  (golang generics)")

	out = tabs("query", "1", "a query that is far too long to be a title")
	assert.Contains(t, out, "a query that is far too …")

	out = tabs("close", "1")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "* 1 "))
	assert.Contains(t, lines[0], "Go")

	// State survives between invocations.
	out = tabs()
	assert.Contains(t, out, "Go  (golang generics)")
}

func TestCLISearchPrint(t *testing.T) {
	output, err := executeCommand(rootCmd, "search", "--memory", "--print", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/search?q=hello+world\n", output)
}

func TestCLISearchCustomEndpoint(t *testing.T) {
	output, err := executeCommand(rootCmd, "search", "--memory", "--print",
		"--search-url", "https://duckduckgo.com/", "quick", "hub")
	require.NoError(t, err)
	assert.Equal(t, "https://duckduckgo.com/?q=quick+hub\n", output)
}

func TestCLIRunInline(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--memory", "--no-color", "-c",
		`console.log("hi"); return 1 + 1`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n2\n", output)
}

func TestCLIRunUndefinedPrintsNothing(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--memory", "--no-color", "-c", `let x = 1`)
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestCLICompletionCommands(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			output, err := executeCommand(rootCmd, "completion", shell)
			require.NoError(t, err)
			assert.NotEmpty(t, output)
		})
	}
}

// slowWriter counts lines and takes its time about each write.
type slowWriter struct {
	mu    sync.Mutex
	lines int
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(50 * time.Microsecond)
	w.mu.Lock()
	w.lines += bytes.Count(p, []byte("\n"))
	w.mu.Unlock()
	return len(p), nil
}

func TestEvalAndPrintKeepsEveryLine(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	a, err := app.New(cfg, app.WithOpener(&search.RecordingOpener{}))
	require.NoError(t, err)
	defer a.Close()

	w := &slowWriter{}
	printer := console.NewPrinter(w, true).Hide(console.KindInfo)

	const n = 3000
	code := fmt.Sprintf("for (let i = 0; i < %d; i++) console.log(i); return 1;", n)
	ok := evalAndPrint(context.Background(), a, code, printer, w)
	require.True(t, ok)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, n+1, w.lines, "every log line plus the value")
}
