package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/api"
	"prism/internal/conversation"
	"prism/internal/library"
	"prism/internal/typewriter"
)

type fakeModel struct {
	status  api.ModelStatus
	err     error
	toggled int
}

func (f *fakeModel) ModelStatus(context.Context) (*api.ModelStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.status
	return &s, nil
}

func (f *fakeModel) ToggleHardware(context.Context) (*api.ToggleResult, error) {
	f.toggled++
	return &api.ToggleResult{CurrentMode: "gpu", Message: "Switched to gpu mode"}, nil
}

func TestToggleHardware(t *testing.T) {
	t.Run("refused while the model loads", func(t *testing.T) {
		m := &fakeModel{}
		_, err := toggleHardware(context.Background(), m)
		assert.ErrorIs(t, err, ErrModelNotLoaded)
		assert.Zero(t, m.toggled)
	})

	t.Run("status failure is reported", func(t *testing.T) {
		m := &fakeModel{err: errors.New("connection refused")}
		_, err := toggleHardware(context.Background(), m)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model status")
		assert.Zero(t, m.toggled)
	})

	t.Run("toggles once loaded", func(t *testing.T) {
		m := &fakeModel{status: api.ModelStatus{ModelLoaded: true, HardwareMode: "cpu"}}
		res, err := toggleHardware(context.Background(), m)
		require.NoError(t, err)
		assert.Equal(t, "gpu", res.CurrentMode)
		assert.Equal(t, 1, m.toggled)
	})
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{
		"y\n":    true,
		"YES\n":  true,
		"n\n":    false,
		"nope\n": false,
		"":       false,
	} {
		assert.Equal(t, want, confirm(strings.NewReader(input), "Delete?"), "input %q", input)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n  b\tc", 10))
	assert.Equal(t, "héll…", truncate("héllo wörld", 5))
}

func TestRevealToWritesEachCharacterOnce(t *testing.T) {
	player := typewriter.NewPlayer(context.Background(), time.Millisecond)
	defer player.Close()

	tr := conversation.NewTranscript()
	_, id := tr.AppendUserAndPlaceholder("hi")

	var out bytes.Buffer
	revealTo(&out, player, tr, id, "héllo wörld")

	assert.Equal(t, "héllo wörld\n", out.String())
	msgs := tr.Messages()
	assert.Equal(t, "héllo wörld", msgs[len(msgs)-1].Content)
}

type catalogClient struct {
	docs    []api.FileEntry
	folders []api.Folder
}

func (c *catalogClient) Documents(context.Context) ([]api.FileEntry, error) { return c.docs, nil }
func (c *catalogClient) Images(context.Context) ([]api.FileEntry, error)    { return nil, nil }
func (c *catalogClient) Audio(context.Context) ([]api.FileEntry, error)     { return nil, nil }
func (c *catalogClient) Folders(context.Context) ([]api.Folder, error)      { return c.folders, nil }
func (c *catalogClient) CreateFolder(context.Context, string) (*api.Folder, error) {
	return nil, errors.New("unused")
}
func (c *catalogClient) RenameFolder(context.Context, string, string) error    { return nil }
func (c *catalogClient) DeleteFolder(context.Context, string) error            { return nil }
func (c *catalogClient) AddFileToFolder(context.Context, string, string) error { return nil }
func (c *catalogClient) BulkDelete(context.Context, []string) (int, error)     { return 0, nil }

func TestResolveSelection(t *testing.T) {
	client := &catalogClient{
		docs:    []api.FileEntry{{FileID: "d1", FileName: "handbook.pdf", Kind: api.KindDocument}},
		folders: []api.Folder{{ID: "f1", Name: "Policies"}},
	}
	ctx := context.Background()

	sel, err := resolveSelection(ctx, library.New(client), "", "")
	require.NoError(t, err)
	assert.True(t, sel.IsNone())

	sel, err = resolveSelection(ctx, library.New(client), "", "Policies")
	require.NoError(t, err)
	assert.Equal(t, conversation.FolderSelection("f1", "Policies"), sel)

	sel, err = resolveSelection(ctx, library.New(client), "handbook.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, conversation.FileSelection("d1", "handbook.pdf", api.KindDocument), sel)

	_, err = resolveSelection(ctx, library.New(client), "missing.pdf", "")
	assert.EqualError(t, err, `no file "missing.pdf"`)
}

func TestFormatModelStatus(t *testing.T) {
	out := formatModelStatus(&api.ModelStatus{HardwareMode: "gpu", GPUAvailable: true, GPULayers: 32, ModelLoaded: true})
	assert.Contains(t, out, "loaded")
	assert.Contains(t, out, "gpu")
	assert.Contains(t, out, "32 layers")

	out = formatModelStatus(&api.ModelStatus{HardwareMode: "cpu"})
	assert.Contains(t, out, "loading")
	assert.Contains(t, out, "no GPU")
}
