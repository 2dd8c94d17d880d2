package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"prism/internal/api"
	"prism/internal/conversation"
	"prism/internal/library"
	"prism/internal/typewriter"
)

var (
	askFile   string
	askFolder string
)

// askCmd asks one question
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your files",
	Long: `Asks the backend a question. Without a context the question is asked
across every document; a general question with no relevant documents
falls back to plain chat.

Examples:
  prism ask "What is the refund policy?"
  prism ask --folder Policies "Which policies changed in 2024?"
  prism ask --file diagram.png "What does the red arrow point at?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askFile, "file", "", "Ask about one file (id or name)")
	askCmd.Flags().StringVar(&askFolder, "folder", "", "Ask about one folder (id or name)")
	askCmd.MarkFlagsMutuallyExclusive("file", "folder")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sel, err := resolveSelection(ctx, a.library, askFile, askFolder)
	if err != nil {
		return err
	}

	tr := conversation.NewTranscript()
	_, placeholder := tr.AppendUserAndPlaceholder(question)
	printInfo("asking (%s)", sel.Describe())

	ans, err := a.asker.Ask(ctx, question, sel)
	if err != nil {
		tr.Fail(err)
		printFailure("%s", conversation.FailureText(err))
		return fmt.Errorf("ask: %s", api.Reason(err))
	}

	player := typewriter.NewPlayer(ctx, cfg.GetTypewriterInterval())
	defer player.Close()
	revealTo(os.Stdout, player, tr, placeholder, ans.Text)
	tr.Complete(placeholder, ans)

	printAnswerFooter(ans)
	return nil
}

// revealTo plays the reveal into w, writing only the newly revealed
// characters of each frame. A cancelled reveal prints the rest at once.
func revealTo(w io.Writer, player *typewriter.Player, tr *conversation.Transcript, id, text string) {
	written := 0
	h := player.Play(id, text, func(f typewriter.Frame) {
		tr.SetContent(id, f.Content)
		io.WriteString(w, f.Content[written:])
		written = len(f.Content)
	})
	<-h.Done()
	if written < len(text) {
		io.WriteString(w, text[written:])
	}
	if !strings.HasSuffix(text, "\n") {
		io.WriteString(w, "\n")
	}
}

func printAnswerFooter(ans *conversation.Answer) {
	if len(ans.Sources) > 0 {
		fmt.Println()
		fmt.Println(styles.Title.Render("Sources"))
		for _, s := range ans.Sources {
			fmt.Println(styles.Source.Render("  " + s.Label()))
		}
	}

	var meta []string
	if ans.Fallback {
		meta = append(meta, "answered as general chat")
	}
	if ans.ContextUsed {
		meta = append(meta, "context used")
	}
	if ans.ProcessingTime > 0 {
		meta = append(meta, fmt.Sprintf("%.1fs", ans.ProcessingTime.Seconds()))
	}
	if len(meta) > 0 {
		fmt.Println(styles.Muted.Render(strings.Join(meta, " · ")))
	}
}

// resolveSelection turns --file/--folder values into a question context.
func resolveSelection(ctx context.Context, lib *library.Library, file, folder string) (conversation.Selection, error) {
	if file == "" && folder == "" {
		return conversation.None, nil
	}
	cat, err := lib.Refresh(ctx)
	if err != nil {
		return conversation.None, err
	}
	if folder != "" {
		f, ok := cat.Folder(folder)
		if !ok {
			return conversation.None, fmt.Errorf("no folder %q", folder)
		}
		return lib.Select(conversation.FolderSelection(f.ID, f.Name)), nil
	}
	f, ok := cat.File(file)
	if !ok {
		return conversation.None, fmt.Errorf("no file %q", file)
	}
	return lib.Select(conversation.FileSelection(f.FileID, f.FileName, f.Kind)), nil
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
