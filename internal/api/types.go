package api

import (
	"strconv"
	"strings"
	"time"
)

// Kind is the media class of an uploaded asset.
type Kind string

const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
)

var imageTypes = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true}
var audioTypes = map[string]bool{"mp3": true, "wav": true, "m4a": true}

// KindForType maps a backend "type" field (a bare extension) to a Kind.
// Anything that is not an image or audio is a document.
func KindForType(t string) Kind {
	t = strings.TrimPrefix(strings.ToLower(t), ".")
	switch {
	case imageTypes[t]:
		return KindImage
	case audioTypes[t]:
		return KindAudio
	default:
		return KindDocument
	}
}

// Envelope is embedded by responses that carry the backend's success flag.
// A missing flag counts as success; only an explicit false is a failure.
// Uploads are stricter, see UploadResponse.failure.
type Envelope struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e *Envelope) failure() (string, bool) {
	if e.Success == nil || *e.Success {
		return "", false
	}
	if e.Error != "" {
		return e.Error, true
	}
	return "request failed", true
}

type failer interface {
	failure() (string, bool)
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Envelope
	FileID     string `json:"file_id"`
	ProgressID string `json:"progress_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	Message    string `json:"message,omitempty"`
}

// failure is stricter than the envelope's: an upload only counts when the
// backend says so.
func (r *UploadResponse) failure() (string, bool) {
	if r.Success == nil {
		return "upload response has no success flag", true
	}
	return r.Envelope.failure()
}

// ProcessingStatus is returned by GET /processing-status/{token}.
type ProcessingStatus struct {
	FileID      string  `json:"file_id"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	CurrentStep string  `json:"current_step"`
}

const (
	StatusQueued     = "queued"
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "error"
)

// CanonicalStatus folds the backend's intermediate steps (starting,
// parsing, chunking, storing) into processing. The statuses the client
// itself knows pass through unchanged.
func CanonicalStatus(raw string) string {
	switch raw {
	case StatusCompleted, StatusFailed, StatusQueued, StatusUploading:
		return raw
	default:
		return StatusProcessing
	}
}

// Normalize fills the defaults the UI has always assumed. An intermediate
// step name is kept in CurrentStep when the backend sent no step text.
func (p *ProcessingStatus) Normalize() {
	if canon := CanonicalStatus(p.Status); canon != p.Status {
		if p.CurrentStep == "" && p.Status != "" {
			p.CurrentStep = strings.ToUpper(p.Status[:1]) + p.Status[1:] + "..."
		}
		p.Status = canon
	}
	if p.CurrentStep == "" {
		p.CurrentStep = "Processing..."
	}
	if p.Progress < 0 {
		p.Progress = 0
	}
	if p.Progress > 100 {
		p.Progress = 100
	}
}

// Terminal reports whether polling should stop.
func (p *ProcessingStatus) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// FileEntry is one asset from /documents, /images or /audio.
type FileEntry struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Type     string `json:"type,omitempty"`
	FolderID string `json:"folder_id,omitempty"`
	Size     int64  `json:"size,omitempty"`

	// Kind is set by the client from the endpoint that listed the entry.
	Kind Kind `json:"-"`
}

// Unassigned reports whether the file belongs to no folder.
func (f FileEntry) Unassigned() bool { return f.FolderID == "" }

type documentsResponse struct {
	Envelope
	Documents []FileEntry `json:"documents"`
}

type imagesResponse struct {
	Envelope
	Images []FileEntry `json:"images"`
}

type audioResponse struct {
	Envelope
	Audio []FileEntry `json:"audio"`
}

// Folder is a FolderEntry as the backend reports it.
type Folder struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Created parses CreatedAt, returning the zero time when absent or invalid.
func (f Folder) Created() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, f.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

type foldersResponse struct {
	Envelope
	Folders []Folder `json:"folders"`
}

type folderResponse struct {
	Envelope
	Folder Folder `json:"folder"`
}

type bulkDeleteResponse struct {
	Envelope
	DeletedCount int `json:"deleted_count"`
}

type plainResponse struct {
	Envelope
	Message string `json:"message,omitempty"`
}

// Source is one citation attached to an answer.
type Source struct {
	FileName  string  `json:"file_name,omitempty"`
	Page      *int    `json:"page,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// Label renders the citation the way the transcript shows it.
func (s Source) Label() string {
	name := s.FileName
	if name == "" {
		name = "Document"
	}
	switch {
	case s.Page != nil:
		return name + " - Page " + strconv.Itoa(*s.Page)
	case s.Timestamp != nil && *s.Timestamp != "":
		return name + " (" + *s.Timestamp + ")"
	default:
		return name
	}
}

// QuestionRequest is the body of /question. At most one of FileID and
// FolderID is set.
type QuestionRequest struct {
	Question string `json:"question"`
	FileID   string `json:"file_id,omitempty"`
	FolderID string `json:"folder_id,omitempty"`
}

// Answer is returned by /question, /image-question and /audio-question.
type Answer struct {
	Envelope
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ContextUsed    bool     `json:"context_used,omitempty"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
}

// Normalize replaces a null source list with an empty one.
func (a *Answer) Normalize() {
	if a.Sources == nil {
		a.Sources = []Source{}
	}
}

// Elapsed returns ProcessingTime as a duration (zero when absent).
func (a *Answer) Elapsed() time.Duration {
	if a.ProcessingTime == nil {
		return 0
	}
	return time.Duration(*a.ProcessingTime * float64(time.Second))
}

type imageQuestionRequest struct {
	Question string `json:"question"`
	ImageID  string `json:"image_id"`
}

type audioQuestionRequest struct {
	Question string `json:"question"`
	AudioID  string `json:"audio_id"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is returned by /chat.
type ChatResponse struct {
	Envelope
	Response string `json:"response"`
}

// ModelStatus is returned by GET /model/status.
type ModelStatus struct {
	HardwareMode string `json:"hardware_mode"`
	GPUAvailable bool   `json:"gpu_available"`
	GPULayers    int    `json:"gpu_layers"`
	ModelLoaded  bool   `json:"model_loaded"`
}

// Normalize defaults an empty mode to "cpu".
func (m *ModelStatus) Normalize() {
	if m.HardwareMode == "" {
		m.HardwareMode = "cpu"
	}
}

// ToggleResult is returned by POST /model/toggle-hardware.
type ToggleResult struct {
	Envelope
	CurrentMode string `json:"current_mode"`
	GPULayers   int    `json:"gpu_layers"`
	Message     string `json:"message,omitempty"`
}

// Normalize fills the confirmation message the UI shows.
func (t *ToggleResult) Normalize() {
	if t.Message == "" && t.CurrentMode != "" {
		t.Message = "Switched to " + t.CurrentMode + " mode"
	}
}

// HistoryEntry is one logged query/answer pair from GET /history.
type HistoryEntry struct {
	Query     string   `json:"query"`
	Answer    string   `json:"answer"`
	Timestamp string   `json:"timestamp"`
	Sources   []Source `json:"sources"`
}

// Normalize applies the display defaults for remote history.
func (h *HistoryEntry) Normalize() {
	if h.Answer == "" {
		h.Answer = "No response"
	}
	if h.Sources == nil {
		h.Sources = []Source{}
	}
}

type historyResponse struct {
	Envelope
	History []HistoryEntry `json:"history"`
}
