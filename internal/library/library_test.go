package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/api"
	"prism/internal/conversation"
)

// memBackend is an in-memory stand-in for the Prism backend.
type memBackend struct {
	mu       sync.Mutex
	files    map[string]api.FileEntry
	folders  map[string]api.Folder
	nextID   int
	deleted  [][]string
	failDocs error
}

func newMemBackend() *memBackend {
	return &memBackend{files: map[string]api.FileEntry{}, folders: map[string]api.Folder{}}
}

func (b *memBackend) add(f api.FileEntry) {
	b.files[f.FileID] = f
}

func (b *memBackend) list(kind api.Kind) []api.FileEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []api.FileEntry{}
	for _, f := range b.files {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func (b *memBackend) Documents(context.Context) ([]api.FileEntry, error) {
	if b.failDocs != nil {
		return nil, b.failDocs
	}
	return b.list(api.KindDocument), nil
}
func (b *memBackend) Images(context.Context) ([]api.FileEntry, error) {
	return b.list(api.KindImage), nil
}
func (b *memBackend) Audio(context.Context) ([]api.FileEntry, error) {
	return b.list(api.KindAudio), nil
}

func (b *memBackend) Folders(context.Context) ([]api.Folder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []api.Folder{}
	for _, f := range b.folders {
		n := 0
		for _, file := range b.files {
			if file.FolderID == f.ID {
				n++
			}
		}
		f.FileCount = n
		out = append(out, f)
	}
	return out, nil
}

func (b *memBackend) CreateFolder(_ context.Context, name string) (*api.Folder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	f := api.Folder{ID: fmt.Sprintf("F%d", b.nextID), Name: name}
	b.folders[f.ID] = f
	return &f, nil
}

func (b *memBackend) RenameFolder(_ context.Context, id, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.folders[id]
	if !ok {
		return &api.StatusError{Op: "rename-folder", Code: 404, Detail: "Folder not found"}
	}
	f.Name = name
	b.folders[id] = f
	return nil
}

func (b *memBackend) DeleteFolder(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.folders, id)
	for fid, f := range b.files {
		if f.FolderID == id {
			f.FolderID = ""
			b.files[fid] = f
		}
	}
	return nil
}

func (b *memBackend) AddFileToFolder(_ context.Context, folderID, fileID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.files[fileID]
	f.FolderID = folderID
	b.files[fileID] = f
	return nil
}

func (b *memBackend) BulkDelete(_ context.Context, ids []string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ids)
	n := 0
	for _, id := range ids {
		if _, ok := b.files[id]; ok {
			delete(b.files, id)
			n++
		}
	}
	return n, nil
}

func seeded() *memBackend {
	b := newMemBackend()
	b.folders["F0"] = api.Folder{ID: "F0", Name: "Policies"}
	b.add(api.FileEntry{FileID: "a", FileName: "a.pdf", FolderID: "F0", Kind: api.KindDocument})
	b.add(api.FileEntry{FileID: "b", FileName: "b.pdf", FolderID: "F0", Kind: api.KindDocument})
	b.add(api.FileEntry{FileID: "u1", FileName: "loose.txt", Kind: api.KindDocument})
	b.add(api.FileEntry{FileID: "u2", FileName: "photo.png", Kind: api.KindImage})
	return b
}

func TestRefresh_MergesKinds(t *testing.T) {
	lib := New(seeded())
	cat, err := lib.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, cat.Files, 4)
	assert.Equal(t, map[api.Kind]int{api.KindDocument: 3, api.KindImage: 1, api.KindAudio: 0}, cat.Counts())
	require.Len(t, cat.Folders, 1)
	assert.Equal(t, 2, cat.Folders[0].FileCount)
}

func TestRefresh_FailureKeepsPreviousCatalog(t *testing.T) {
	b := seeded()
	lib := New(b)
	_, err := lib.Refresh(context.Background())
	require.NoError(t, err)

	b.failDocs = errors.New("backend down")
	cat, err := lib.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, cat.Files, 4)
}

func TestForContext(t *testing.T) {
	lib := New(seeded())
	cat, err := lib.Refresh(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, f := range cat.ForContext(conversation.FolderSelection("F0", "Policies")) {
		ids = append(ids, f.FileID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	ids = nil
	for _, f := range cat.ForContext(conversation.None) {
		ids = append(ids, f.FileID)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestDeleteUnassigned_LeavesFoldersUntouched(t *testing.T) {
	b := seeded()
	lib := New(b)
	before, err := lib.Refresh(context.Background())
	require.NoError(t, err)

	n, err := lib.DeleteUnassigned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, b.deleted, 1)
	assert.ElementsMatch(t, []string{"u1", "u2"}, b.deleted[0])

	after := lib.Catalog()
	assert.Empty(t, after.Unassigned())
	assert.Equal(t, before.Folders, after.Folders)
	assert.Len(t, after.InFolder("F0"), 2)
}

func TestDeleteUnassigned_NothingToDelete(t *testing.T) {
	b := newMemBackend()
	lib := New(b)
	_, _ = lib.Refresh(context.Background())

	n, err := lib.DeleteUnassigned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, b.deleted, "no bulk-delete call for an empty list")
}

func TestSelectionResetOnDelete(t *testing.T) {
	b := seeded()
	lib := New(b)
	ctx := context.Background()
	_, _ = lib.Refresh(ctx)

	lib.Select(conversation.FolderSelection("F0", "Policies"))
	require.NoError(t, lib.DeleteFolder(ctx, "F0"))
	assert.True(t, lib.Selection().IsNone())
	assert.Len(t, lib.Catalog().Unassigned(), 4, "files of a deleted folder become unassigned")

	lib.Select(conversation.FileSelection("u2", "photo.png", api.KindImage))
	_, err := lib.DeleteFiles(ctx, []string{"u2"})
	require.NoError(t, err)
	assert.True(t, lib.Selection().IsNone())
}

func TestFolderMutations(t *testing.T) {
	b := seeded()
	lib := New(b)
	ctx := context.Background()

	f, err := lib.CreateFolder(ctx, "  Contracts ")
	require.NoError(t, err)
	assert.Equal(t, "Contracts", f.Name)

	_, err = lib.CreateFolder(ctx, "   ")
	assert.Error(t, err)

	lib.Select(conversation.FolderSelection(f.ID, f.Name))
	require.NoError(t, lib.RenameFolder(ctx, f.ID, "Agreements"))
	assert.Equal(t, "Agreements", lib.Selection().Name)

	require.NoError(t, lib.MoveFile(ctx, "u1", f.ID))
	got, ok := lib.Catalog().Folder("Agreements")
	require.True(t, ok)
	assert.Equal(t, 1, got.FileCount)

	var se *api.StatusError
	assert.ErrorAs(t, lib.RenameFolder(ctx, "missing", "x"), &se)
}

func TestSelectToggles(t *testing.T) {
	lib := New(newMemBackend())
	sel := conversation.FileSelection("a", "a.pdf", api.KindDocument)
	assert.Equal(t, sel, lib.Select(sel))
	assert.True(t, lib.Select(sel).IsNone())
}

func TestCatalogLookup(t *testing.T) {
	cat := Catalog{
		Files: []api.FileEntry{
			{FileID: "d1", FileName: "report.pdf"},
			{FileID: "report.pdf", FileName: "odd.pdf"},
		},
		Folders: []api.Folder{{ID: "f1", Name: "Policies"}},
	}

	f, ok := cat.File("report.pdf")
	require.True(t, ok)
	assert.Equal(t, "odd.pdf", f.FileName, "ids win over names")

	f, ok = cat.File("d1")
	require.True(t, ok)
	assert.Equal(t, "report.pdf", f.FileName)

	folder, ok := cat.Folder("Policies")
	require.True(t, ok)
	assert.Equal(t, "f1", folder.ID)

	_, ok = cat.File("missing")
	assert.False(t, ok)
}
