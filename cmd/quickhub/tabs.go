package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/caffeineduck/quickhub/app"
	"github.com/caffeineduck/quickhub/tabs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "Manage search tabs",
	Long: `List and edit the saved search tabs.

Tabs are addressed by id or by their 1-based position in the list.`,
	Run: runTabsList,
}

var tabsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tabs (the active one is marked with *)",
	Args:  cobra.NoArgs,
	Run:   runTabsList,
}

var tabsNewCmd = &cobra.Command{
	Use:   "new [query]",
	Short: "Open a tab and make it active",
	Args:  cobra.MaximumNArgs(1),
	Run:   runTabsNew,
}

var tabsSelectCmd = &cobra.Command{
	Use:   "select <tab>",
	Short: "Make a tab active",
	Args:  cobra.ExactArgs(1),
	Run:   runTabsSelect,
}

var tabsCloseCmd = &cobra.Command{
	Use:   "close <tab>",
	Short: "Close a tab",
	Args:  cobra.ExactArgs(1),
	Run:   runTabsClose,
}

var tabsRenameCmd = &cobra.Command{
	Use:   "rename <tab> [title]",
	Short: "Set a tab's title (no title resets it)",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runTabsRename,
}

var tabsQueryCmd = &cobra.Command{
	Use:   "query <tab> <query>",
	Short: "Set a tab's query",
	Args:  cobra.ExactArgs(2),
	Run:   runTabsQuery,
}

func init() {
	tabsCmd.AddCommand(tabsListCmd)
	tabsCmd.AddCommand(tabsNewCmd)
	tabsCmd.AddCommand(tabsSelectCmd)
	tabsCmd.AddCommand(tabsCloseCmd)
	tabsCmd.AddCommand(tabsRenameCmd)
	tabsCmd.AddCommand(tabsQueryCmd)
	rootCmd.AddCommand(tabsCmd)
}

// openTabs opens the app without starting the sandbox.
func openTabs(cmd *cobra.Command) (*app.App, *tabs.Store, bool) {
	a, cfg, _ := openApp(cmd, app.WithLazySandbox())
	return a, a.Tabs(), cfg.NoColor
}

// resolveTab accepts a tab id or a 1-based position.
func resolveTab(store *tabs.Store, ref string) (tabs.Tab, error) {
	if t, err := store.Get(ref); err == nil {
		return t, nil
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return tabs.Tab{}, fmt.Errorf("%w: %s", tabs.ErrTabNotFound, ref)
	}
	list := store.List()
	if n < 1 || n > len(list) {
		return tabs.Tab{}, fmt.Errorf("%w: %s", tabs.ErrTabNotFound, ref)
	}
	return list[n-1], nil
}

func printTabs(w io.Writer, store *tabs.Store, noColor bool) {
	active := color.New(color.FgGreen, color.Bold)
	if noColor {
		active.DisableColor()
	}

	activeID := store.Active().ID
	for i, t := range store.List() {
		line := fmt.Sprintf("%d  %s  %s", i+1, t.ID, t.Title)
		if t.Query != "" && t.Query != t.Title {
			line += "  (" + t.Query + ")"
		}
		if t.ID == activeID {
			active.Fprintln(w, "* "+line)
			continue
		}
		fmt.Fprintln(w, "  "+line)
	}
}

func runTabsList(cmd *cobra.Command, args []string) {
	a, store, noColor := openTabs(cmd)
	defer a.Close()
	printTabs(cmd.OutOrStdout(), store, noColor)
}

func runTabsNew(cmd *cobra.Command, args []string) {
	a, store, noColor := openTabs(cmd)
	defer a.Close()

	t := store.Add()
	if len(args) > 0 {
		if _, err := store.SetQuery(t.ID, args[0]); err != nil {
			fail(err)
		}
	}
	printTabs(cmd.OutOrStdout(), store, noColor)
}

func runTabsSelect(cmd *cobra.Command, args []string) {
	a, store, noColor := openTabs(cmd)
	defer a.Close()

	t, err := resolveTab(store, args[0])
	if err != nil {
		fail(err)
	}
	if err := store.Select(t.ID); err != nil {
		fail(err)
	}
	printTabs(cmd.OutOrStdout(), store, noColor)
}

func runTabsClose(cmd *cobra.Command, args []string) {
	a, store, noColor := openTabs(cmd)
	defer a.Close()

	t, err := resolveTab(store, args[0])
	if err != nil {
		fail(err)
	}
	if err := store.Close(t.ID); err != nil {
		fail(err)
	}
	printTabs(cmd.OutOrStdout(), store, noColor)
}

func runTabsRename(cmd *cobra.Command, args []string) {
	a, store, noColor := openTabs(cmd)
	defer a.Close()

	t, err := resolveTab(store, args[0])
	if err != nil {
		fail(err)
	}
	var title string
	if len(args) > 1 {
		title = strings.TrimSpace(args[1])
	}
	if _, err := store.Rename(t.ID, title); err != nil {
		fail(err)
	}
	printTabs(cmd.OutOrStdout(), store, noColor)
}

func runTabsQuery(cmd *cobra.Command, args []string) {
	a, store, noColor := openTabs(cmd)
	defer a.Close()

	t, err := resolveTab(store, args[0])
	if err != nil {
		fail(err)
	}
	if _, err := store.SetQuery(t.ID, args[1]); err != nil {
		fail(err)
	}
	printTabs(cmd.OutOrStdout(), store, noColor)
}
