package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", opts...)
}

func TestUpload_SendsMultipartWithFolderID(t *testing.T) {
	var gotName, gotContent, gotFolder string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upload", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotContent = hdr.Filename, string(b)
		gotFolder = r.FormValue("folder_id")

		_, _ = w.Write([]byte(`{"success":true,"file_id":"f-1","progress_id":"p-1"}`))
	})

	resp, err := c.Upload(context.Background(), UploadRequest{
		FileName: "a.pdf",
		Content:  strings.NewReader("%PDF-1.4"),
		FolderID: "fold-9",
	})
	require.NoError(t, err)

	assert.Equal(t, "a.pdf", gotName)
	assert.Equal(t, "%PDF-1.4", gotContent)
	assert.Equal(t, "fold-9", gotFolder)
	assert.Equal(t, "f-1", resp.FileID)
	assert.Equal(t, "p-1", resp.ProgressID)
}

func TestUpload_OmitsEmptyFolderID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["folder_id"]
		assert.False(t, present, "folder_id must not be sent for unassigned uploads")
		_, _ = w.Write([]byte(`{"success":true,"file_id":"f-2"}`))
	})

	_, err := c.Upload(context.Background(), UploadRequest{FileName: "c.txt", Content: strings.NewReader("hi")})
	require.NoError(t, err)
}

func TestUpload_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx with detail",
			status: http.StatusBadRequest,
			body:   `{"detail":"Unsupported file type"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 400, se.Code)
				assert.Equal(t, "Unsupported file type", se.Detail)
				assert.Equal(t, "Unsupported file type", Reason(err))
			},
		},
		{
			name:   "success false",
			status: http.StatusOK,
			body:   `{"success":false,"error":"disk full"}`,
			check: func(t *testing.T, err error) {
				var ae *AppError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, "disk full", ae.Message)
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"success":tru`,
			check: func(t *testing.T, err error) {
				var de *DecodeError
				require.ErrorAs(t, err, &de)
			},
		},
		{
			name:   "missing success flag",
			status: http.StatusOK,
			body:   `{"file_id":"f-1","progress_id":"p-1"}`,
			check: func(t *testing.T, err error) {
				var ae *AppError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, "upload response has no success flag", Reason(err))
			},
		},
		{
			name:   "missing ids",
			status: http.StatusOK,
			body:   `{"success":true}`,
			check: func(t *testing.T, err error) {
				var de *DecodeError
				require.ErrorAs(t, err, &de)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Upload(context.Background(), UploadRequest{FileName: "x.pdf", Content: strings.NewReader("x")})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base + "/api").ModelStatus(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, IsTransient(err))
}

func TestProcessingStatus_Normalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/processing-status/tok-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"file_id":"f-1"}`))
	})

	st, err := c.ProcessingStatus(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Equal(t, "Processing...", st.CurrentStep)
	assert.Equal(t, 0.0, st.Progress)
	assert.False(t, st.Terminal())
}

func TestProcessingStatus_IntermediateStepsAreProcessing(t *testing.T) {
	tests := []struct {
		body     string
		wantStep string
	}{
		{`{"file_id":"f-1","status":"parsing","progress":20}`, "Parsing..."},
		{`{"file_id":"f-1","status":"chunking","current_step":"Splitting into chunks"}`, "Splitting into chunks"},
		{`{"file_id":"f-1","status":"storing"}`, "Storing..."},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(tt.body))
		})
		st, err := c.ProcessingStatus(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, st.Status, tt.body)
		assert.Equal(t, tt.wantStep, st.CurrentStep, tt.body)
		assert.False(t, st.Terminal())
	}

	assert.Equal(t, StatusFailed, CanonicalStatus("error"))
	assert.Equal(t, StatusCompleted, CanonicalStatus("completed"))
	assert.Equal(t, StatusProcessing, CanonicalStatus("starting"))
}

func TestListings_TagKinds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents":
			_, _ = w.Write([]byte(`{"success":true,"documents":[{"file_id":"d1","file_name":"a.pdf","type":"pdf","folder_id":"F"}]}`))
		case "/api/images":
			_, _ = w.Write([]byte(`{"success":true,"images":[{"file_id":"i1","file_name":"a.png"}]}`))
		case "/api/audio":
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	docs, err := c.Documents(ctx)
	require.NoError(t, err)
	want := []FileEntry{{FileID: "d1", FileName: "a.pdf", Type: "pdf", FolderID: "F", Kind: KindDocument}}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}

	imgs, err := c.Images(ctx)
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, KindImage, imgs[0].Kind)
	assert.True(t, imgs[0].Unassigned())

	audio, err := c.Audio(ctx)
	require.NoError(t, err)
	assert.NotNil(t, audio)
	assert.Empty(t, audio)
}

func TestFolders_CRUD(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/folders":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = w.Write([]byte(`{"success":true,"folder":{"id":"F1","name":"` + body["name"] + `"}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/folders/F1":
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/folders/F1/files":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "f-7", body["file_id"])
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/folders/F1":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	f, err := c.CreateFolder(ctx, "Policies")
	require.NoError(t, err)
	assert.Equal(t, "F1", f.ID)
	assert.Equal(t, "Policies", f.Name)

	require.NoError(t, c.RenameFolder(ctx, "F1", "Rules"))
	require.NoError(t, c.AddFileToFolder(ctx, "F1", "f-7"))
	require.NoError(t, c.DeleteFolder(ctx, "F1"))

	assert.Equal(t, []string{
		"POST /api/folders",
		"PUT /api/folders/F1",
		"POST /api/folders/F1/files",
		"DELETE /api/folders/F1",
	}, calls)
}

func TestBulkDelete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/files/bulk-delete", r.URL.Path)
		var body struct {
			FileIDs []string `json:"file_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body.FileIDs)
		_, _ = w.Write([]byte(`{"success":true,"deleted_count":2}`))
	})

	n, err := c.BulkDelete(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQuestion_ScopesAndNormalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is policy X?", body["question"])
		assert.Equal(t, "F1", body["folder_id"])
		_, hasFile := body["file_id"]
		assert.False(t, hasFile)
		_, _ = w.Write([]byte(`{"success":true,"answer":"It is.","processing_time":1.5}`))
	})

	ans, err := c.Question(context.Background(), QuestionRequest{Question: "what is policy X?", FolderID: "F1"})
	require.NoError(t, err)
	assert.Equal(t, "It is.", ans.Answer)
	assert.NotNil(t, ans.Sources)
	assert.Equal(t, 1500*time.Millisecond, ans.Elapsed())
}

func TestQuestion_NoRelevantDocumentsIsAppError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"No relevant documents found"}`))
	})

	_, err := c.Question(context.Background(), QuestionRequest{Question: "hi"})
	var ae *AppError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Message, "No relevant documents")
	assert.False(t, IsTransient(err))
}

func TestModalityQuestions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/api/image-question":
			assert.Equal(t, "img-1", body["image_id"])
		case "/api/audio-question":
			assert.Equal(t, "aud-1", body["audio_id"])
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"answer":"ok","sources":[{"file_name":"x","timestamp":"00:12"}]}`))
	})
	ctx := context.Background()

	a, err := c.ImageQuestion(ctx, "what is this?", "img-1")
	require.NoError(t, err)
	assert.Equal(t, "x (00:12)", a.Sources[0].Label())

	_, err = c.AudioQuestion(ctx, "who speaks?", "aud-1")
	require.NoError(t, err)
}

func TestChatAndModelControl(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			_, _ = w.Write([]byte(`{"success":true,"response":"Hello!"}`))
		case "/api/model/status":
			_, _ = w.Write([]byte(`{"gpu_available":true,"gpu_layers":0,"model_loaded":true}`))
		case "/api/model/toggle-hardware":
			_, _ = w.Write([]byte(`{"success":true,"current_mode":"gpu","gpu_layers":35}`))
		}
	})
	ctx := context.Background()

	chat, err := c.Chat(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", chat.Response)

	st, err := c.ModelStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cpu", st.HardwareMode)
	assert.True(t, st.ModelLoaded)

	tr, err := c.ToggleHardware(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Switched to gpu mode", tr.Message)
	assert.Equal(t, 35, tr.GPULayers)
}

func TestHistory_DefaultsMissingAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"history":[{"query":"q1","timestamp":"2024-01-01T00:00:00"}]}`))
	})

	h, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "No response", h[0].Answer)
	assert.Empty(t, h[0].Sources)
}

func TestGuard_CoversReadsOnly(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithGuard(resilience.NewGuard(resilience.Policy{
		Breaker:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenTimeout:  time.Minute,
	}, IsTransient)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Folders(ctx)
		require.Error(t, err)
	}
	_, err := c.Folders(ctx)
	assert.True(t, resilience.Unavailable(err))
	assert.Equal(t, UnavailableReason, Reason(err))
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// Mutations bypass the breaker.
	_, err = c.CreateFolder(ctx, "x")
	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestGuard_RetriesServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"folders":[{"id":"f1","name":"Policies"}]}`))
	}, WithGuard(resilience.NewGuard(resilience.Policy{Attempts: 3, Backoff: time.Millisecond}, IsTransient)))

	folders, err := c.Folders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestKindForType(t *testing.T) {
	assert.Equal(t, KindImage, KindForType("JPG"))
	assert.Equal(t, KindAudio, KindForType(".m4a"))
	assert.Equal(t, KindDocument, KindForType("pdf"))
	assert.Equal(t, KindDocument, KindForType(""))
}
