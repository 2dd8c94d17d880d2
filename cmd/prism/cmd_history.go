package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"prism/cmd/prism/ui"
	"prism/internal/history"
)

var (
	historyType   string
	historyQuery  string
	historyLimit  int
	historyRemote bool
	historyFull   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse previously asked questions",
	RunE:  runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List history, newest first",
	Long: `Lists the local history cache, newest first. --remote shows the
history the backend itself logged instead.

Examples:
  prism history --type image
  prism history --query refund --full`,
	RunE: runHistoryList,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one history record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("deleted %s", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the whole local history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes && !confirm(os.Stdin, "Clear all history?") {
			printInfo("cancelled")
			return nil
		}
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		printSuccess("history cleared")
		return nil
	},
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	filter := history.Filter{
		Type:  history.Type(strings.ToLower(historyType)),
		Query: historyQuery,
		Limit: historyLimit,
	}
	switch filter.Type {
	case "", history.TypeDocument, history.TypeImage, history.TypeAudio, history.TypeSearch:
	default:
		return fmt.Errorf("unknown history type %q", historyType)
	}

	var records []history.Record
	if historyRemote {
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		records, err = history.NewRemote(a.client).List(cmd.Context(), filter)
		if err != nil {
			return err
		}
	} else {
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		records, err = store.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
	}

	if historyFull {
		for _, r := range records {
			printRecord(r)
		}
		if len(records) == 0 {
			fmt.Println(styles.Muted.Render("No history."))
		}
		return nil
	}

	table := ui.NewTable("History", "ID", "When", "Type", "Question", "Context")
	table.Empty = "No history."
	for _, r := range records {
		table.AddRow(r.ID, when(r), string(r.Type), truncate(r.Query, 48), r.Context)
	}
	fmt.Print(table.View(styles))
	return nil
}

func printRecord(r history.Record) {
	fmt.Println(styles.Title.Render(r.Query))
	fmt.Println(styles.Muted.Render(fmt.Sprintf("%s · %s · %s", r.ID, r.Type, when(r))))
	fmt.Println(r.Response)
	for _, s := range r.Sources {
		fmt.Println(styles.Source.Render("  " + s.Label()))
	}
	fmt.Println()
}

func when(r history.Record) string {
	if r.Timestamp.IsZero() {
		return ""
	}
	return humanize.Time(r.Timestamp)
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().StringVar(&historyType, "type", "", "Only this type: document, image, audio, search")
		c.Flags().StringVarP(&historyQuery, "query", "q", "", "Case-insensitive text to match in question or answer")
		c.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most n records")
		c.Flags().BoolVar(&historyRemote, "remote", false, "Show the backend's history instead of the local cache")
		c.Flags().BoolVar(&historyFull, "full", false, "Print full answers and sources")
	}
	historyClearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	historyCmd.AddCommand(historyListCmd, historyDeleteCmd, historyClearCmd)
}
