package main

import (
	"context"
	"fmt"

	"prism/internal/api"
	"prism/internal/config"
	"prism/internal/conversation"
	"prism/internal/history"
	"prism/internal/library"
	"prism/internal/logging"
	"prism/internal/metrics"
	"prism/internal/poller"
	"prism/internal/resilience"
	"prism/internal/upload"
)

// app is the wired client: one backend client shared by the upload
// pipeline, the poller, the library and the asker.
type app struct {
	cfg      *config.Config
	client   *api.Client
	metrics  *metrics.Client
	tracker  *upload.Tracker
	poller   *poller.Poller
	pipeline *upload.Pipeline
	history  history.Store
	library  *library.Library
	asker    *conversation.Asker
}

// newApp wires every component. Poll chains live until ctx is done or
// Close is called. notify receives upload summaries.
func newApp(ctx context.Context, cfg *config.Config, notify func(string)) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	guard := resilience.NewGuard(resilience.Policy{
		Attempts:     cfg.Backend.RetryAttempts,
		Backoff:      cfg.GetRetryBackoff(),
		Breaker:      cfg.Backend.BreakerEnabled,
		MinRequests:  cfg.Backend.BreakerMinRequests,
		FailureRatio: cfg.Backend.BreakerFailureRatio,
		OpenTimeout:  cfg.GetBreakerOpenTimeout(),
	}, api.IsTransient)

	client := api.New(cfg.APIBaseURL(),
		api.WithTimeout(cfg.GetRequestTimeout()),
		api.WithGuard(guard),
	)

	m := metrics.New()
	tracker := upload.NewTracker()
	poll := poller.New(ctx, client, tracker,
		poller.WithInterval(cfg.GetPollInterval()),
		poller.WithMaxAttempts(cfg.Poller.MaxAttempts),
		poller.WithMetrics(m),
	)

	opts := []upload.Option{
		upload.WithTracker(tracker),
		upload.WithRegistrar(poll),
		upload.WithBatchSize(cfg.Upload.BatchSize),
		upload.WithCollector(upload.Collector{
			MaxFileSize: cfg.Upload.MaxFileSize,
			Extensions:  cfg.Upload.Extensions,
		}),
		upload.WithMetrics(m),
		upload.WithRateLimit(cfg.Upload.RatePerSecond),
	}
	if notify != nil {
		opts = append(opts, upload.WithNotifier(notify))
	}

	store, err := openHistory(cfg)
	if err != nil {
		poll.Close()
		return nil, err
	}

	logging.Boot("backend %s, history %s", client.BaseURL(), cfg.History.Path)
	return &app{
		cfg:      cfg,
		client:   client,
		metrics:  m,
		tracker:  tracker,
		poller:   poll,
		pipeline: upload.New(client, opts...),
		history:  store,
		library:  library.New(client),
		asker:    conversation.NewAsker(client, store),
	}, nil
}

// openHistory opens the sqlite cache, falling back to memory when the
// database cannot be opened so asking still works.
func openHistory(cfg *config.Config) (history.Store, error) {
	store, err := history.OpenSQLite(cfg.History.Path, cfg.History.Limit)
	if err == nil {
		return store, nil
	}
	logging.Get(logging.CategoryHistory).Warnw("history database unavailable, using memory", "path", cfg.History.Path, "error", err)
	return history.NewMemoryStore(cfg.History.Limit), nil
}

// Close cancels poll chains and closes the history store.
func (a *app) Close() {
	a.poller.Close()
	if err := a.history.Close(); err != nil {
		logging.Get(logging.CategoryHistory).Warnw("close history", "error", err)
	}
}
