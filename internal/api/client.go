// Package api is a typed client for the Prism backend REST surface.
// Every endpoint has one method; response defaulting lives in the
// Normalize methods in types.go.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prism/internal/logging"
	"prism/internal/resilience"
)

// Client talks to one Prism backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Guard
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithGuard routes read-only calls through g.
func WithGuard(g *resilience.Guard) Option {
	return func(c *Client) { c.breaker = g }
}

// New creates a client for apiBase, which already includes the /api prefix.
func New(apiBase string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// UPLOAD + PROCESSING
// =============================================================================

// UploadRequest describes one multipart upload.
type UploadRequest struct {
	FileName string
	Content  io.Reader
	FolderID string
}

// Upload posts one file to /upload. The body is streamed, never buffered.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	const op = "upload"
	if req.Content == nil {
		return nil, fmt.Errorf("%s: no content for %q", op, req.FileName)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		pw.CloseWithError(writeMultipart(mw, req))
	}()
	defer func() {
		_ = pr.Close()
		<-writeDone
	}()

	var out UploadResponse
	if err := c.do(ctx, op, http.MethodPost, "/upload", pr, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	if out.FileID == "" && out.ProgressID == "" {
		return nil, &DecodeError{Op: op, Err: errors.New("response has neither file_id nor progress_id")}
	}
	return &out, nil
}

func writeMultipart(mw *multipart.Writer, req UploadRequest) error {
	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return err
	}
	if req.FolderID != "" {
		if err := mw.WriteField("folder_id", req.FolderID); err != nil {
			return err
		}
	}
	return mw.Close()
}

// ProcessingStatus fetches the state of an asynchronous processing job.
func (c *Client) ProcessingStatus(ctx context.Context, token string) (*ProcessingStatus, error) {
	var out ProcessingStatus
	path := "/processing-status/" + url.PathEscape(token)
	if err := c.getJSON(ctx, "processing-status", path, &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

// =============================================================================
// LISTINGS
// =============================================================================

// Documents lists document assets.
func (c *Client) Documents(ctx context.Context) ([]FileEntry, error) {
	var out documentsResponse
	if err := c.guardedGet(ctx, "documents", "/documents", &out); err != nil {
		return nil, err
	}
	return tag(out.Documents, KindDocument), nil
}

// Images lists image assets.
func (c *Client) Images(ctx context.Context) ([]FileEntry, error) {
	var out imagesResponse
	if err := c.guardedGet(ctx, "images", "/images", &out); err != nil {
		return nil, err
	}
	return tag(out.Images, KindImage), nil
}

// Audio lists audio assets.
func (c *Client) Audio(ctx context.Context) ([]FileEntry, error) {
	var out audioResponse
	if err := c.guardedGet(ctx, "audio", "/audio", &out); err != nil {
		return nil, err
	}
	return tag(out.Audio, KindAudio), nil
}

func tag(entries []FileEntry, kind Kind) []FileEntry {
	if entries == nil {
		return []FileEntry{}
	}
	for i := range entries {
		entries[i].Kind = kind
	}
	return entries
}

// Folders lists folders with their file counts.
func (c *Client) Folders(ctx context.Context) ([]Folder, error) {
	var out foldersResponse
	if err := c.guardedGet(ctx, "folders", "/folders", &out); err != nil {
		return nil, err
	}
	if out.Folders == nil {
		return []Folder{}, nil
	}
	return out.Folders, nil
}

// History returns the backend's logged query/answer pairs.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out historyResponse
	if err := c.guardedGet(ctx, "history", "/history", &out); err != nil {
		return nil, err
	}
	for i := range out.History {
		out.History[i].Normalize()
	}
	if out.History == nil {
		return []HistoryEntry{}, nil
	}
	return out.History, nil
}

// ModelStatus reports the backend's compute mode.
func (c *Client) ModelStatus(ctx context.Context) (*ModelStatus, error) {
	var out ModelStatus
	if err := c.guardedGet(ctx, "model-status", "/model/status", &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

// =============================================================================
// FOLDERS + FILES
// =============================================================================

// CreateFolder creates a folder and returns it with its server id.
func (c *Client) CreateFolder(ctx context.Context, name string) (*Folder, error) {
	const op = "create-folder"
	var out folderResponse
	if err := c.postJSON(ctx, op, http.MethodPost, "/folders", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	if out.Folder.ID == "" {
		return nil, &DecodeError{Op: op, Err: errors.New("response has no folder.id")}
	}
	if out.Folder.Name == "" {
		out.Folder.Name = name
	}
	return &out.Folder, nil
}

// RenameFolder renames a folder.
func (c *Client) RenameFolder(ctx context.Context, id, name string) error {
	var out plainResponse
	return c.postJSON(ctx, "rename-folder", http.MethodPut, "/folders/"+url.PathEscape(id), map[string]string{"name": name}, &out)
}

// DeleteFolder deletes a folder. Its files become unassigned.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	var out plainResponse
	return c.do(ctx, "delete-folder", http.MethodDelete, "/folders/"+url.PathEscape(id), nil, "", &out)
}

// AddFileToFolder associates an existing file with a folder.
func (c *Client) AddFileToFolder(ctx context.Context, folderID, fileID string) error {
	var out plainResponse
	path := "/folders/" + url.PathEscape(folderID) + "/files"
	return c.postJSON(ctx, "add-file-to-folder", http.MethodPost, path, map[string]string{"file_id": fileID}, &out)
}

// BulkDelete deletes the given files and returns how many the backend removed.
func (c *Client) BulkDelete(ctx context.Context, fileIDs []string) (int, error) {
	var out bulkDeleteResponse
	body := map[string][]string{"file_ids": fileIDs}
	if err := c.postJSON(ctx, "bulk-delete", http.MethodDelete, "/files/bulk-delete", body, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

// =============================================================================
// QUESTIONS
// =============================================================================

// Question asks over documents, optionally scoped to one file or folder.
func (c *Client) Question(ctx context.Context, req QuestionRequest) (*Answer, error) {
	return c.ask(ctx, "question", "/question", req)
}

// ImageQuestion asks about one image.
func (c *Client) ImageQuestion(ctx context.Context, question, imageID string) (*Answer, error) {
	return c.ask(ctx, "image-question", "/image-question", imageQuestionRequest{Question: question, ImageID: imageID})
}

// AudioQuestion asks about one audio file.
func (c *Client) AudioQuestion(ctx context.Context, question, audioID string) (*Answer, error) {
	return c.ask(ctx, "audio-question", "/audio-question", audioQuestionRequest{Question: question, AudioID: audioID})
}

func (c *Client) ask(ctx context.Context, op, path string, body any) (*Answer, error) {
	var out Answer
	if err := c.postJSON(ctx, op, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

// Chat sends a free-form message with no retrieval.
func (c *Client) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.postJSON(ctx, "chat", http.MethodPost, "/chat", chatRequest{Message: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleHardware switches the backend between CPU and GPU inference.
func (c *Client) ToggleHardware(ctx context.Context) (*ToggleResult, error) {
	var out ToggleResult
	if err := c.do(ctx, "toggle-hardware", http.MethodPost, "/model/toggle-hardware", nil, "", &out); err != nil {
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) guardedGet(ctx context.Context, op, path string, out any) error {
	if c.breaker == nil {
		return c.getJSON(ctx, op, path, out)
	}
	return c.breaker.Do(ctx, op, func(ctx context.Context) error {
		return c.getJSON(ctx, op, path, out)
	})
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, op, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	return c.do(ctx, op, method, path, bytes.NewReader(payload), "application/json", out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	timer := logging.StartTimer(logging.CategoryAPI, method+" "+path)
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Get(logging.CategoryAPI).Debugw("request failed", "op", op, "error", err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Op: op, Code: resp.StatusCode, Detail: detailOf(data)}
		logging.Get(logging.CategoryAPI).Debugw("non-2xx response", "op", op, "status", resp.StatusCode, "detail", statusErr.Detail)
		return statusErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	if f, ok := out.(failer); ok {
		if msg, failed := f.failure(); failed {
			return &AppError{Op: op, Message: msg}
		}
	}
	return nil
}

// detailOf extracts FastAPI's "detail" (or an "error" field) from an error
// body, falling back to a trimmed slice of the raw text.
func detailOf(data []byte) string {
	var body struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch d := body.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if body.Error != "" {
			return body.Error
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
