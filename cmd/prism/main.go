// Command prism is the terminal client for a Prism document Q&A backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prism/cmd/prism/chat"
	"prism/cmd/prism/ui"
	"prism/internal/config"
	"prism/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	baseURL    string

	cfg    *config.Config
	styles ui.Styles
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Prism - ask questions about your documents, images and audio",
	Long: `prism is a terminal client for a Prism backend.

Upload files and folders, watch server-side processing, and ask questions
scoped to a document, an image, an audio clip or a whole folder.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if baseURL != "" {
			cfg.Backend.BaseURL = baseURL
		}
		styles = ui.NewStyles(ui.DetectTheme(cfg.UI.Theme))

		// The TUI owns the terminal, so it logs to a file (debug mode only).
		interactive := cmd == cmd.Root()
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Initialize(logging.Options{
			Level:      level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			DebugMode:  cfg.Logging.DebugMode || (interactive && verbose),
			Categories: cfg.Logging.Categories,
			Stderr:     !interactive,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runInteractiveChat,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.prism/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend URL, overrides config and PRISM_BASE_URL")

	rootCmd.AddCommand(
		uploadCmd,
		askCmd,
		foldersCmd,
		filesCmd,
		historyCmd,
		modelCmd,
		watchCmd,
		configCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, styles.Error.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// runInteractiveChat launches the TUI.
func runInteractiveChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return chat.Run(cmd.Context(), chat.Config{
		Library:            a.library,
		Asker:              a.asker,
		Pipeline:           a.pipeline,
		Tracker:            a.tracker,
		Model:              a.client,
		History:            a.history,
		Styles:             styles,
		TypewriterInterval: cfg.GetTypewriterInterval(),
		StatusRefresh:      cfg.GetStatusRefresh(),
		Markdown:           cfg.UI.Markdown,
	})
}
