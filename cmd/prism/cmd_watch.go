package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"prism/internal/logging"
	"prism/internal/watch"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Upload new and changed files in a directory as they appear",
	Long: `Watches a directory tree and uploads files that are created or
modified, once the tree has been quiet for the debounce window. New
subdirectories are watched as they appear. Files are uploaded unassigned.

With --metrics-addr, upload and processing metrics are served for
Prometheus at /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, func(msg string) { printSuccess("%s", msg) })
	if err != nil {
		return err
	}
	defer a.Close()
	a.tracker.Observe(statusPrinter())

	w, err := watch.New(args[0], func(ctx context.Context, paths []string) {
		if _, err := a.pipeline.Run(ctx, paths); err != nil && !errors.Is(err, context.Canceled) {
			printFailure("upload: %v", err)
		}
	},
		watch.WithExtensions(cfg.Upload.Extensions),
		watch.WithDebounce(cfg.GetWatchDebounce()),
		watch.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	addr := watchMetricsAddr
	if addr == "" {
		addr = cfg.Watch.MetricsAddr
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return w.Run(gctx)
	})
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logging.Get(logging.CategoryWatch).Infow("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	printInfo("watching %s (Ctrl+C to stop)", args[0])
	err = g.Wait()
	a.poller.Wait()
	return err
}
