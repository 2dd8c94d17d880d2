// Package upload turns files and directory trees into backend uploads.
// Directory inputs become one folder per top-level directory; files are
// uploaded in sequential batches whose members run concurrently, and a
// failure is isolated to its file or folder group.
package upload

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"prism/internal/api"
	"prism/internal/logging"
	"prism/internal/metrics"
	"prism/internal/task"
)

// DefaultBatchSize bounds simultaneous in-flight uploads.
const DefaultBatchSize = 20

// DefaultFolderName names a folder-picker upload with no directory input.
const DefaultFolderName = "New Folder Upload"

// Backend is the part of api.Client the pipeline needs.
type Backend interface {
	Upload(ctx context.Context, req api.UploadRequest) (*api.UploadResponse, error)
	CreateFolder(ctx context.Context, name string) (*api.Folder, error)
}

// Registrar starts tracking a progress token. *poller.Poller satisfies it.
type Registrar interface {
	Watch(token, name string) task.Handle
}

type Pipeline struct {
	backend   Backend
	tracker   *Tracker
	registrar Registrar
	collector Collector
	batchSize int
	limiter   *rate.Limiter
	metrics   *metrics.Client
	notify    func(string)
}

type Option func(*Pipeline)

func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithRegistrar hands progress tokens to r (normally the poller).
func WithRegistrar(r Registrar) Option {
	return func(p *Pipeline) { p.registrar = r }
}

// WithTracker shares an existing tracker, e.g. one the poller writes to.
func WithTracker(t *Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithRateLimit caps upload starts per second. Zero disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(p *Pipeline) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithCollector(c Collector) Option {
	return func(p *Pipeline) { p.collector = c }
}

func WithMetrics(m *metrics.Client) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithNotifier receives user-facing notifications (CLI line, TUI toast).
func WithNotifier(fn func(string)) Option {
	return func(p *Pipeline) { p.notify = fn }
}

func New(backend Backend, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend:   backend,
		batchSize: DefaultBatchSize,
		notify:    func(string) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracker == nil {
		p.tracker = NewTracker()
	}
	return p
}

func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// Run uploads the given files and directories. Each directory's top-level
// name becomes a folder; plain files are uploaded unassigned. The returned
// error is non-nil only when ctx was cancelled; per-file failures are in
// the summary.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*Summary, error) {
	timer := logging.StartTimer(logging.CategoryUpload, "upload run")
	defer timer.Stop()

	entries, skipped := p.collector.Collect(paths)
	p.logSkipped(skipped)

	sum := &Summary{Skipped: skipped}
	groups, unassigned := GroupByTopLevel(entries)
	logging.Upload("collected %d files: %d folder groups, %d unassigned, %d skipped",
		len(entries), len(groups), len(unassigned), len(skipped))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.merge(p.uploadGroup(ctx, g.Name, g.Entries))
	}

	if len(unassigned) > 0 {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.merge(p.uploadBatched(ctx, unassigned, ""))
	}

	p.finish(sum)
	return sum, ctx.Err()
}

// UploadToFolder puts every collected file into one folder. An empty
// folderName uses the first directory input's name, else DefaultFolderName.
func (p *Pipeline) UploadToFolder(ctx context.Context, folderName string, paths []string) (*Summary, error) {
	entries, skipped := p.collector.Collect(paths)
	p.logSkipped(skipped)

	if folderName == "" {
		folderName = DefaultFolderName
		for _, e := range entries {
			if top := e.TopLevel(); top != "" {
				folderName = top
				break
			}
		}
	}

	sum := &Summary{Skipped: skipped}
	if len(entries) > 0 {
		sum.merge(p.uploadGroup(ctx, folderName, entries))
	}
	p.finish(sum)
	return sum, ctx.Err()
}

func (p *Pipeline) uploadGroup(ctx context.Context, name string, entries []Entry) *Summary {
	folder, err := p.backend.CreateFolder(ctx, name)
	p.metrics.FolderCreated(err)
	if err != nil {
		reason := fmt.Sprintf("Failed to create folder %s: %s", name, api.Reason(err))
		logging.Get(logging.CategoryUpload).Errorw("folder create failed", "folder", name, "files", len(entries), "error", err)
		p.notify(reason)

		sum := &Summary{}
		for _, e := range entries {
			id := p.tracker.Add(taskFor(e))
			p.tracker.Update(id, func(t *Task) {
				t.Status = StatusError
				t.Message = reason
			})
			sum.add(resultFor(id, e, "", fmt.Errorf("create folder %q: %w", name, err)))
		}
		return sum
	}

	logging.Upload("created folder %s (%s) for %d files", folder.Name, folder.ID, len(entries))
	sum := p.uploadBatched(ctx, entries, folder.ID)
	sum.FoldersCreated = append([]api.Folder{*folder}, sum.FoldersCreated...)
	return sum
}

// uploadBatched runs batches one after another; the files of a batch
// upload concurrently and the batch is joined before the next starts.
func (p *Pipeline) uploadBatched(ctx context.Context, entries []Entry, folderID string) *Summary {
	sum := &Summary{}
	ids := make([]string, len(entries))
	for i, e := range entries {
		t := taskFor(e)
		t.FolderID = folderID
		ids[i] = p.tracker.Add(t)
	}

	offset := 0
	for n, batch := range Batches(entries, p.batchSize) {
		results := make([]Result, len(batch))
		var g errgroup.Group
		for i, e := range batch {
			i, e := i, e
			id := ids[offset+i]
			g.Go(func() error {
				results[i] = p.uploadOne(ctx, id, e, folderID)
				return nil
			})
		}
		_ = g.Wait()
		offset += len(batch)

		for _, r := range results {
			sum.add(r)
		}
		logging.UploadDebug("batch %d done: %d files", n+1, len(batch))
	}
	return sum
}

func (p *Pipeline) uploadOne(ctx context.Context, id string, e Entry, folderID string) Result {
	log := logging.Get(logging.CategoryUpload)

	fail := func(err error) Result {
		p.tracker.Update(id, func(t *Task) {
			t.Status = StatusError
			t.Message = api.Reason(err)
		})
		log.Warnw("upload failed", "file", e.RelativePath, "error", err)
		return resultFor(id, e, folderID, err)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}
	p.tracker.Update(id, func(t *Task) {
		t.Status = StatusUploading
		t.Message = "Uploading..."
	})

	f, err := os.Open(e.Path)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	start := time.Now()
	p.metrics.StartUpload()
	resp, err := p.backend.Upload(ctx, api.UploadRequest{
		FileName: e.File.Name,
		Content:  f,
		FolderID: folderID,
	})
	p.metrics.FinishUpload(e.File.Size, time.Since(start), err)
	if err != nil {
		return fail(err)
	}

	r := resultFor(id, e, folderID, nil)
	r.FileID = resp.FileID
	r.ProgressID = resp.ProgressID

	if resp.ProgressID != "" {
		p.tracker.Update(id, func(t *Task) {
			t.ServerFileID = resp.FileID
			t.ProgressID = resp.ProgressID
			t.Status = StatusProcessing
			t.Message = "Processing..."
		})
		if p.registrar != nil {
			p.registrar.Watch(resp.ProgressID, e.File.Name)
		}
	} else {
		p.tracker.Update(id, func(t *Task) {
			t.ServerFileID = resp.FileID
			t.Status = StatusCompleted
			t.Percentage = 100
			t.Message = "Upload complete"
		})
	}
	log.Debugw("uploaded", "file", e.RelativePath, "file_id", resp.FileID, "progress_id", resp.ProgressID, "size", e.File.HumanSize())
	return r
}

func (p *Pipeline) finish(sum *Summary) {
	for _, r := range sum.Failed {
		logging.Get(logging.CategoryUpload).Warnw("not uploaded", "file", r.RelativePath, "reason", r.Reason())
	}
	msg := sum.Message()
	logging.Upload("%s", msg)
	p.notify(msg)
}

func (p *Pipeline) logSkipped(skipped []Skipped) {
	for _, s := range skipped {
		logging.UploadDebug("skipped %s: %s", s.Path, s.Reason)
	}
}

func taskFor(e Entry) Task {
	return Task{
		File:         e.File,
		Path:         e.Path,
		RelativePath: e.RelativePath,
		Status:       StatusQueued,
	}
}

func resultFor(id string, e Entry, folderID string, err error) Result {
	return Result{
		TaskID:       id,
		Name:         e.File.Name,
		RelativePath: e.RelativePath,
		Size:         e.File.Size,
		Type:         e.File.MimeType,
		LastModified: e.File.LastModified,
		FolderID:     folderID,
		Err:          err,
	}
}
