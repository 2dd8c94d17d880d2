package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"prism/cmd/prism/ui"
	"prism/internal/upload"
)

var (
	uploadFolder    string
	uploadOneFolder bool
	uploadNoWait    bool
)

// uploadCmd uploads files and directories
var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Upload files and folders to the backend",
	Long: `Uploads files and directories. Each directory becomes a backend folder
named after it; plain files are uploaded unassigned. Files go up in
batches, and prism then follows server-side processing until every file
is completed or failed.

Examples:
  prism upload report.pdf notes.txt
  prism upload ./Policies ./Contracts
  prism upload --folder "Q3 Reviews" ./scans`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFolder, "folder", "", "Put every file into one new folder with this name")
	uploadCmd.Flags().BoolVar(&uploadOneFolder, "one-folder", false, "Put every file into one new folder named after the first directory")
	uploadCmd.Flags().BoolVar(&uploadNoWait, "no-wait", false, "Return once uploads finish without following processing")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, func(msg string) { printSuccess("%s", msg) })
	if err != nil {
		return err
	}
	defer a.Close()

	a.tracker.Observe(statusPrinter())

	var sum *upload.Summary
	if uploadFolder != "" || uploadOneFolder {
		sum, err = a.pipeline.UploadToFolder(ctx, uploadFolder, args)
	} else {
		sum, err = a.pipeline.Run(ctx, args)
	}
	for _, s := range sum.Skipped {
		printInfo("skipped %s: %s", s.Path, s.Reason)
	}
	for _, f := range sum.FoldersCreated {
		printInfo("created folder %s", f.Name)
	}
	if err != nil {
		return err
	}

	if !uploadNoWait && a.poller.Active() > 0 {
		printInfo("waiting for %d files to finish processing", a.poller.Active())
		a.poller.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	bar := ui.NewProgressBar(20)
	for _, t := range a.tracker.Snapshot() {
		fmt.Fprintln(os.Stdout, styles.TaskLine(bar, t))
	}

	if n := len(sum.Failed); n > 0 {
		return fmt.Errorf("%d of %d uploads failed", n, sum.Total())
	}
	return nil
}

// statusPrinter logs status transitions; percentage ticks stay quiet.
func statusPrinter() func(upload.Task) {
	var mu sync.Mutex
	last := make(map[string]upload.Status)
	return func(t upload.Task) {
		mu.Lock()
		prev, seen := last[t.ID]
		last[t.ID] = t.Status
		mu.Unlock()
		if seen && prev == t.Status {
			return
		}

		name := t.RelativePath
		if name == "" {
			name = t.File.Name
		}
		switch t.Status {
		case upload.StatusCompleted:
			printSuccess("%s completed", name)
		case upload.StatusError:
			printFailure("%s: %s", name, t.Message)
		case upload.StatusQueued:
		default:
			printInfo("%s %s (%s)", name, t.Status, t.File.HumanSize())
		}
	}
}
