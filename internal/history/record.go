// Package history keeps the local cache of asked questions and their
// answers. Stores enforce the size cap themselves: Append evicts the
// oldest records, and List returns newest first.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"prism/internal/api"
)

// DefaultLimit is the number of records a store keeps.
const DefaultLimit = 100

// Type classifies what a record was asked about.
type Type string

const (
	TypeDocument Type = "document"
	TypeImage    Type = "image"
	TypeAudio    Type = "audio"
	TypeSearch   Type = "search"
)

// ErrNotFound is returned when deleting an unknown record.
var ErrNotFound = errors.New("history record not found")

// Record is one question/answer pair.
type Record struct {
	ID        string
	Type      Type
	Query     string
	Response  string
	Sources   []api.Source
	Context   string
	Timestamp time.Time
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Type  Type
	Query string
	Limit int
}

// Match reports whether r passes the filter. Query matches a
// case-insensitive substring of the question or the answer.
func (f Filter) Match(r Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(r.Query), q) ||
		strings.Contains(strings.ToLower(r.Response), q)
}

// Store persists history records.
type Store interface {
	Append(ctx context.Context, r Record) (Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}
