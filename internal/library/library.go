// Package library is the client-side view of the knowledge base: every
// uploaded file and folder, the active question context, and the folder
// and file mutations the sidebar offers.
package library

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"prism/internal/api"
	"prism/internal/conversation"
	"prism/internal/logging"
)

// Client is the part of api.Client the library uses.
type Client interface {
	Documents(ctx context.Context) ([]api.FileEntry, error)
	Images(ctx context.Context) ([]api.FileEntry, error)
	Audio(ctx context.Context) ([]api.FileEntry, error)
	Folders(ctx context.Context) ([]api.Folder, error)
	CreateFolder(ctx context.Context, name string) (*api.Folder, error)
	RenameFolder(ctx context.Context, id, name string) error
	DeleteFolder(ctx context.Context, id string) error
	AddFileToFolder(ctx context.Context, folderID, fileID string) error
	BulkDelete(ctx context.Context, fileIDs []string) (int, error)
}

// Catalog is one consistent snapshot of the backend listings.
type Catalog struct {
	Files     []api.FileEntry
	Folders   []api.Folder
	FetchedAt time.Time
}

// ForContext returns the files shown for a selection: a folder shows its
// own files, anything else shows the unassigned files.
func (c Catalog) ForContext(sel conversation.Selection) []api.FileEntry {
	if sel.Scope == conversation.ScopeFolder {
		return c.InFolder(sel.ID)
	}
	return c.Unassigned()
}

// InFolder returns the files assigned to folderID.
func (c Catalog) InFolder(folderID string) []api.FileEntry {
	out := []api.FileEntry{}
	for _, f := range c.Files {
		if f.FolderID == folderID {
			out = append(out, f)
		}
	}
	return out
}

// Unassigned returns files with no folder.
func (c Catalog) Unassigned() []api.FileEntry {
	out := []api.FileEntry{}
	for _, f := range c.Files {
		if f.Unassigned() {
			out = append(out, f)
		}
	}
	return out
}

// Counts returns the number of files per kind.
func (c Catalog) Counts() map[api.Kind]int {
	counts := map[api.Kind]int{api.KindDocument: 0, api.KindImage: 0, api.KindAudio: 0}
	for _, f := range c.Files {
		counts[f.Kind]++
	}
	return counts
}

// File looks a file up by id or, failing that, by exact name.
func (c Catalog) File(idOrName string) (api.FileEntry, bool) {
	for _, f := range c.Files {
		if f.FileID == idOrName {
			return f, true
		}
	}
	for _, f := range c.Files {
		if f.FileName == idOrName {
			return f, true
		}
	}
	return api.FileEntry{}, false
}

// Folder looks a folder up by id or, failing that, by exact name.
func (c Catalog) Folder(idOrName string) (api.Folder, bool) {
	for _, f := range c.Folders {
		if f.ID == idOrName {
			return f, true
		}
	}
	for _, f := range c.Folders {
		if f.Name == idOrName {
			return f, true
		}
	}
	return api.Folder{}, false
}

// Library holds the current catalog and question context.
type Library struct {
	client Client

	mu        sync.RWMutex
	catalog   Catalog
	selection conversation.Selection
}

func New(client Client) *Library {
	return &Library{client: client}
}

// Catalog returns the last fetched snapshot.
func (l *Library) Catalog() Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog
}

// Selection returns the active question context.
func (l *Library) Selection() conversation.Selection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selection
}

// Select toggles the selection: picking the active item clears it.
func (l *Library) Select(next conversation.Selection) conversation.Selection {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selection = l.selection.Toggle(next)
	return l.selection
}

// ClearSelection returns to general chat.
func (l *Library) ClearSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selection = conversation.None
}

// Refresh fetches documents, images, audio and folders in parallel. On
// failure the previous catalog is kept.
func (l *Library) Refresh(ctx context.Context) (Catalog, error) {
	var docs, imgs, audio []api.FileEntry
	var folders []api.Folder

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { docs, err = l.client.Documents(gctx); return })
	g.Go(func() (err error) { imgs, err = l.client.Images(gctx); return })
	g.Go(func() (err error) { audio, err = l.client.Audio(gctx); return })
	g.Go(func() (err error) { folders, err = l.client.Folders(gctx); return })
	if err := g.Wait(); err != nil {
		logging.Get(logging.CategoryLibrary).Warnw("refresh failed", "error", err)
		return l.Catalog(), fmt.Errorf("refresh library: %w", err)
	}

	files := make([]api.FileEntry, 0, len(docs)+len(imgs)+len(audio))
	files = append(files, docs...)
	files = append(files, imgs...)
	files = append(files, audio...)
	sort.SliceStable(files, func(i, j int) bool {
		return strings.ToLower(files[i].FileName) < strings.ToLower(files[j].FileName)
	})

	cat := Catalog{Files: files, Folders: folders, FetchedAt: time.Now()}
	l.mu.Lock()
	l.catalog = cat
	l.mu.Unlock()

	logging.Library("catalog refreshed: %d files, %d folders", len(files), len(folders))
	return cat, nil
}

// CreateFolder creates a folder and refreshes.
func (l *Library) CreateFolder(ctx context.Context, name string) (*api.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name is empty")
	}
	f, err := l.client.CreateFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	logging.Library("created folder %s (%s)", f.Name, f.ID)
	_, _ = l.Refresh(ctx)
	return f, nil
}

// RenameFolder renames a folder and refreshes.
func (l *Library) RenameFolder(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("folder name is empty")
	}
	if err := l.client.RenameFolder(ctx, id, name); err != nil {
		return err
	}
	l.mu.Lock()
	if l.selection.Scope == conversation.ScopeFolder && l.selection.ID == id {
		l.selection.Name = name
	}
	l.mu.Unlock()
	_, _ = l.Refresh(ctx)
	return nil
}

// DeleteFolder deletes a folder, clearing it from the selection.
func (l *Library) DeleteFolder(ctx context.Context, id string) error {
	if err := l.client.DeleteFolder(ctx, id); err != nil {
		return err
	}
	l.forget(id)
	logging.Library("deleted folder %s", id)
	_, _ = l.Refresh(ctx)
	return nil
}

// MoveFile assigns a file to a folder.
func (l *Library) MoveFile(ctx context.Context, fileID, folderID string) error {
	if err := l.client.AddFileToFolder(ctx, folderID, fileID); err != nil {
		return err
	}
	_, _ = l.Refresh(ctx)
	return nil
}

// DeleteFiles deletes the given files and returns the backend's count.
func (l *Library) DeleteFiles(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := l.client.BulkDelete(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		l.forget(id)
	}
	logging.Library("deleted %d of %d files", n, len(ids))
	_, _ = l.Refresh(ctx)
	return n, nil
}

// DeleteUnassigned deletes every file that is in no folder. Folder
// contents are untouched.
func (l *Library) DeleteUnassigned(ctx context.Context) (int, error) {
	unassigned := l.Catalog().Unassigned()
	ids := make([]string, 0, len(unassigned))
	for _, f := range unassigned {
		ids = append(ids, f.FileID)
	}
	return l.DeleteFiles(ctx, ids)
}

func (l *Library) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selection = l.selection.Without(id)
}
