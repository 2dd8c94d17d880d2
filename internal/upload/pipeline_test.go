package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/api"
	"prism/internal/task"
)

type uploadCall struct {
	Name     string
	FolderID string
	Body     string
}

type fakeBackend struct {
	mu          sync.Mutex
	folders     []string
	uploads     []uploadCall
	failFolder  map[string]bool
	failFile    map[string]error
	progressFor map[string]string

	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func (b *fakeBackend) CreateFolder(ctx context.Context, name string) (*api.Folder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.folders = append(b.folders, name)
	if b.failFolder[name] {
		return nil, &api.StatusError{Op: "create-folder", Code: 500, Detail: "db locked"}
	}
	return &api.Folder{ID: "folder-" + name, Name: name}, nil
}

func (b *fakeBackend) Upload(ctx context.Context, req api.UploadRequest) (*api.UploadResponse, error) {
	n := atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	for {
		max := atomic.LoadInt32(&b.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&b.maxInFlight, max, n) {
			break
		}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	body, _ := io.ReadAll(req.Content)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, uploadCall{Name: req.FileName, FolderID: req.FolderID, Body: string(body)})
	if err := b.failFile[req.FileName]; err != nil {
		return nil, err
	}
	return &api.UploadResponse{FileID: "id-" + req.FileName, ProgressID: b.progressFor[req.FileName]}, nil
}

func (b *fakeBackend) uploadsSorted() []uploadCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]uploadCall(nil), b.uploads...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type fakeRegistrar struct {
	mu     sync.Mutex
	tokens map[string]int
}

func (r *fakeRegistrar) Watch(token, name string) task.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens == nil {
		r.tokens = make(map[string]int)
	}
	r.tokens[token]++
	return finished{}
}

type finished struct{}

func (finished) Cancel() {}
func (finished) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_FlatFilesAreUnassigned(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.pdf", "b.txt", "c.png"} {
		paths = append(paths, writeFile(t, filepath.Join(dir, name), "x"))
	}

	backend := &fakeBackend{}
	sum, err := New(backend).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Empty(t, backend.folders, "no folder may be created for flat files")
	for _, u := range backend.uploadsSorted() {
		assert.Empty(t, u.FolderID, "%s must be uploaded unassigned", u.Name)
	}
	assert.Len(t, sum.Succeeded, 3)
	assert.Equal(t, "Uploaded 3 files total", sum.Message())
}

func TestRun_OneFolderPerTopLevelDirectory(t *testing.T) {
	root := t.TempDir()
	hr := filepath.Join(root, "HR")
	writeFile(t, filepath.Join(hr, "a.pdf"), "a")
	writeFile(t, filepath.Join(hr, "2024", "b.pdf"), "b")
	writeFile(t, filepath.Join(hr, "2024", "q1", "c.pdf"), "c")
	legal := filepath.Join(root, "Legal")
	writeFile(t, filepath.Join(legal, "d.pdf"), "d")
	writeFile(t, filepath.Join(legal, "e.pdf"), "e")

	backend := &fakeBackend{}
	sum, err := New(backend).Run(context.Background(), []string{hr, legal})
	require.NoError(t, err)

	assert.Equal(t, []string{"HR", "Legal"}, backend.folders)
	assert.Len(t, sum.FoldersCreated, 2)
	assert.Len(t, sum.Succeeded, 5)

	byFolder := map[string]int{}
	for _, u := range backend.uploadsSorted() {
		byFolder[u.FolderID]++
	}
	assert.Equal(t, map[string]int{"folder-HR": 3, "folder-Legal": 2}, byFolder)
}

func TestRun_PoliciesScenario(t *testing.T) {
	root := t.TempDir()
	policies := filepath.Join(root, "Policies")
	writeFile(t, filepath.Join(policies, "a.pdf"), "A")
	writeFile(t, filepath.Join(policies, "b.pdf"), "B")
	cFile := writeFile(t, filepath.Join(root, "c.txt"), "C")

	var notes []string
	backend := &fakeBackend{}
	sum, err := New(backend, WithNotifier(func(s string) { notes = append(notes, s) })).
		Run(context.Background(), []string{policies, cFile})
	require.NoError(t, err)

	assert.Equal(t, []string{"Policies"}, backend.folders)
	assert.Equal(t, []uploadCall{
		{Name: "a.pdf", FolderID: "folder-Policies", Body: "A"},
		{Name: "b.pdf", FolderID: "folder-Policies", Body: "B"},
		{Name: "c.txt", FolderID: "", Body: "C"},
	}, backend.uploadsSorted())
	assert.Equal(t, 3, sum.Total())
	require.NotEmpty(t, notes)
	assert.Equal(t, "Uploaded 3 files total", notes[len(notes)-1])
}

func TestRun_FolderFailureIsolatedToGroup(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "Broken")
	good := filepath.Join(root, "Fine")
	writeFile(t, filepath.Join(bad, "x.pdf"), "x")
	writeFile(t, filepath.Join(bad, "y.pdf"), "y")
	writeFile(t, filepath.Join(good, "z.pdf"), "z")

	backend := &fakeBackend{failFolder: map[string]bool{"Broken": true}}
	p := New(backend)
	sum, err := p.Run(context.Background(), []string{bad, good})
	require.NoError(t, err)

	assert.Len(t, sum.Failed, 2)
	assert.Len(t, sum.Succeeded, 1)
	assert.Equal(t, "z.pdf", sum.Succeeded[0].Name)
	for _, r := range sum.Failed {
		assert.Contains(t, r.Reason(), "db locked")
		tk, ok := p.Tracker().Get(r.TaskID)
		require.True(t, ok)
		assert.Equal(t, StatusError, tk.Status)
	}
	for _, u := range backend.uploadsSorted() {
		assert.NotEqual(t, "x.pdf", u.Name)
	}
}

func TestRun_FileFailureDoesNotCancelSiblings(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeFile(t, filepath.Join(dir, fmt.Sprintf("f%d.txt", i)), "x"))
	}

	backend := &fakeBackend{failFile: map[string]error{
		"f2.txt": &api.AppError{Op: "upload", Message: "unsupported"},
	}}
	sum, err := New(backend, WithBatchSize(2)).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Len(t, sum.Succeeded, 4)
	require.Len(t, sum.Failed, 1)
	assert.Equal(t, "f2.txt", sum.Failed[0].Name)
	assert.Equal(t, "unsupported", sum.Failed[0].Reason())
	assert.Equal(t, "Uploaded 4 files total, 1 failed", sum.Message())
}

func TestRun_BatchesBoundConcurrency(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 9; i++ {
		paths = append(paths, writeFile(t, filepath.Join(dir, fmt.Sprintf("f%d.txt", i)), "x"))
	}

	backend := &fakeBackend{delay: 5 * time.Millisecond}
	sum, err := New(backend, WithBatchSize(3)).Run(context.Background(), paths)
	require.NoError(t, err)

	assert.Len(t, sum.Succeeded, 9)
	assert.LessOrEqual(t, atomic.LoadInt32(&backend.maxInFlight), int32(3))
}

func TestRun_ProgressTokenRegisteredOnce(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.pdf"), "a")
	b := writeFile(t, filepath.Join(dir, "b.txt"), "b")

	backend := &fakeBackend{progressFor: map[string]string{"a.pdf": "tok-a"}}
	reg := &fakeRegistrar{}
	p := New(backend, WithRegistrar(reg))
	sum, err := p.Run(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"tok-a": 1}, reg.tokens)

	tk, ok := p.Tracker().ByToken("tok-a")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, tk.Status)
	assert.Equal(t, "id-a.pdf", tk.ServerFileID)

	var bTask Task
	for _, r := range sum.Succeeded {
		if r.Name == "b.txt" {
			bTask, _ = p.Tracker().Get(r.TaskID)
		}
	}
	assert.Equal(t, StatusCompleted, bTask.Status)
	assert.Equal(t, 100, bTask.Percentage)
}

func TestUploadToFolder_DefaultsToDirectoryName(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "Contracts")
	writeFile(t, filepath.Join(docs, "a.pdf"), "a")
	writeFile(t, filepath.Join(docs, "sub", "b.pdf"), "b")

	backend := &fakeBackend{}
	sum, err := New(backend).UploadToFolder(context.Background(), "", []string{docs})
	require.NoError(t, err)

	assert.Equal(t, []string{"Contracts"}, backend.folders)
	assert.Len(t, sum.Succeeded, 2)
	for _, u := range backend.uploadsSorted() {
		assert.Equal(t, "folder-Contracts", u.FolderID)
	}
}

func TestUploadToFolder_FallbackName(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, filepath.Join(dir, "note.txt"), "n")

	backend := &fakeBackend{}
	_, err := New(backend).UploadToFolder(context.Background(), "", []string{f})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultFolderName}, backend.folders)
}

func TestRun_CancelledContext(t *testing.T) {
	root := t.TempDir()
	d := filepath.Join(root, "D")
	writeFile(t, filepath.Join(d, "a.pdf"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &fakeBackend{}
	_, err := New(backend).Run(ctx, []string{d})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, backend.folders)
}

func TestRun_ResponseWithoutSuccessFlagFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if r.URL.Path == "/api/upload" {
			_, _ = w.Write([]byte(`{"file_id":"f-1","progress_id":"p-1"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	path := writeFile(t, filepath.Join(t.TempDir(), "a.pdf"), "a")
	reg := &fakeRegistrar{}
	p := New(api.New(srv.URL+"/api"), WithRegistrar(reg))
	sum, err := p.Run(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Empty(t, sum.Succeeded)
	require.Len(t, sum.Failed, 1)
	assert.Equal(t, "upload response has no success flag", sum.Failed[0].Reason())
	assert.Empty(t, reg.tokens, "no poll chain for a rejected upload")
	assert.Equal(t, "Uploaded 0 files total, 1 failed", sum.Message())

	tk, ok := p.Tracker().Get(sum.Failed[0].TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusError, tk.Status)
}
