package upload

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"prism/internal/api"
)

// Status is the lifecycle state of one upload task.
type Status string

const (
	StatusQueued     Status = api.StatusQueued
	StatusUploading  Status = api.StatusUploading
	StatusProcessing Status = api.StatusProcessing
	StatusCompleted  Status = api.StatusCompleted
	StatusError      Status = api.StatusFailed
)

// Terminal reports whether no further change is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// LocalFile describes the file on disk as it was when collected.
type LocalFile struct {
	Name         string
	Size         int64
	MimeType     string
	LastModified time.Time
}

// HumanSize formats Size for display ("1.2 MB").
func (f LocalFile) HumanSize() string {
	return humanize.Bytes(uint64(f.Size))
}

// Task is one file moving through upload and server-side processing.
// Tasks live only in memory.
type Task struct {
	ID           string
	File         LocalFile
	Path         string
	RelativePath string
	FolderID     string
	ServerFileID string
	ProgressID   string
	Status       Status
	Percentage   int
	Message      string
	UpdatedAt    time.Time
}

// Result is the outcome of one upload request.
type Result struct {
	TaskID       string
	Name         string
	RelativePath string
	Size         int64
	Type         string
	LastModified time.Time
	FileID       string
	ProgressID   string
	FolderID     string
	Err          error
}

// Reason returns the failure reason, or "" for a success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return api.Reason(r.Err)
}

// Skipped is an input that was never uploaded.
type Skipped struct {
	Path   string
	Reason string
}

// Summary aggregates one pipeline run.
type Summary struct {
	Succeeded      []Result
	Failed         []Result
	FoldersCreated []api.Folder
	Skipped        []Skipped
}

// Total is the number of files an upload was attempted for.
func (s *Summary) Total() int { return len(s.Succeeded) + len(s.Failed) }

// Message is the aggregate notification for the run.
func (s *Summary) Message() string {
	msg := fmt.Sprintf("Uploaded %d files total", len(s.Succeeded))
	if n := len(s.Failed); n > 0 {
		msg += fmt.Sprintf(", %d failed", n)
	}
	return msg
}

func (s *Summary) add(r Result) {
	if r.Err != nil {
		s.Failed = append(s.Failed, r)
		return
	}
	s.Succeeded = append(s.Succeeded, r)
}

func (s *Summary) merge(o *Summary) {
	s.Succeeded = append(s.Succeeded, o.Succeeded...)
	s.Failed = append(s.Failed, o.Failed...)
	s.FoldersCreated = append(s.FoldersCreated, o.FoldersCreated...)
	s.Skipped = append(s.Skipped, o.Skipped...)
}
