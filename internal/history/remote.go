package history

import (
	"context"
	"sort"
	"strconv"
	"time"

	"prism/internal/api"
)

// RemoteClient is the part of api.Client that serves backend history.
type RemoteClient interface {
	History(ctx context.Context) ([]api.HistoryEntry, error)
}

// Remote is a read-only view of the history the backend logged.
type Remote struct {
	client RemoteClient
}

func NewRemote(client RemoteClient) *Remote {
	return &Remote{client: client}
}

// List fetches backend history and maps it onto records, newest first.
// The backend only logs document questions, so every record is
// TypeDocument. Entries without a parseable timestamp sort last.
func (r *Remote) List(ctx context.Context, f Filter) ([]Record, error) {
	entries, err := r.client.History(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]Record, 0, len(entries))
	for i, e := range entries {
		e.Normalize()
		all = append(all, Record{
			ID:        strconv.Itoa(i),
			Type:      TypeDocument,
			Query:     e.Query,
			Response:  e.Answer,
			Sources:   e.Sources,
			Timestamp: parseTimestamp(e.Timestamp),
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	out := []Record{}
	for _, rec := range all {
		if !f.Match(rec) {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
