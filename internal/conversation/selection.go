package conversation

import (
	"prism/internal/api"
	"prism/internal/history"
)

// Scope is which kind of context a question is asked against.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeFile
	ScopeFolder
)

// Selection is the active question context. The zero value is "none",
// i.e. general chat across everything.
type Selection struct {
	Scope    Scope
	ID       string
	Name     string
	FileKind api.Kind
}

// None is the general-chat selection.
var None = Selection{}

func FileSelection(id, name string, kind api.Kind) Selection {
	if kind == "" {
		kind = api.KindDocument
	}
	return Selection{Scope: ScopeFile, ID: id, Name: name, FileKind: kind}
}

func FolderSelection(id, name string) Selection {
	return Selection{Scope: ScopeFolder, ID: id, Name: name}
}

// IsNone reports whether no context is selected.
func (s Selection) IsNone() bool { return s.Scope == ScopeNone }

// Toggle returns the selection after the user picks next: picking the
// active item again goes back to none.
func (s Selection) Toggle(next Selection) Selection {
	if !s.IsNone() && s.Scope == next.Scope && s.ID == next.ID {
		return None
	}
	return next
}

// Without resets the selection if it refers to a deleted item.
func (s Selection) Without(deletedID string) Selection {
	if !s.IsNone() && s.ID == deletedID {
		return None
	}
	return s
}

// Describe is the history context label.
func (s Selection) Describe() string {
	switch s.Scope {
	case ScopeFolder:
		return "Folder: " + s.Name
	case ScopeFile:
		return "Document: " + s.Name
	default:
		return "General query"
	}
}

// HistoryType is the record type questions under this selection get.
func (s Selection) HistoryType() history.Type {
	if s.Scope == ScopeFile {
		switch s.FileKind {
		case api.KindImage:
			return history.TypeImage
		case api.KindAudio:
			return history.TypeAudio
		}
	}
	return history.TypeDocument
}
