package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Open web search results",
	Long: `Open the results page for a query in the default browser.

With no query, the active tab's query is used. --print writes the URL
instead of opening it.`,
	Run: runSearch,
}

func init() {
	searchCmd.Flags().BoolP("print", "p", false, "Print the results URL instead of opening a browser")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	printOnly, _ := cmd.Flags().GetBool("print")

	var opener search.Opener = search.BrowserOpener{}
	if printOnly {
		opener = search.WriterOpener{W: cmd.OutOrStdout()}
	}

	a, _, _ := openApp(cmd, app.WithLazySandbox(), app.WithOpener(opener))
	defer a.Close()

	var (
		target string
		err    error
	)
	if len(args) == 0 {
		target, err = a.SearchActive(context.Background())
	} else {
		target, err = a.SearchQuery(context.Background(), strings.Join(args, " "))
	}
	if err != nil {
		a.Close()
		fail(err)
	}
	if !printOnly {
		fmt.Fprintf(os.Stderr, "Opened %s\n", target)
	}
}
