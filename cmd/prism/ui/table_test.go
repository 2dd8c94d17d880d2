package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	table := NewTable("Folders", "ID", "Name", "Files")
	table.AddRow("f1", "Policies", "3")
	table.AddRow("f2", "Audio")

	view := table.View(NewStyles(LightTheme()))
	for _, want := range []string{"Folders", "Policies", "Audio", "Files"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if got := strings.Count(view, "\n"); got != 5 {
		t.Errorf("expected title, header, divider and two rows, got %d lines:\n%s", got, view)
	}
}

func TestTable_Empty(t *testing.T) {
	table := NewTable("", "ID")
	table.Empty = "No folders yet."

	view := table.View(NewStyles(LightTheme()))
	if !strings.Contains(view, "No folders yet.") {
		t.Errorf("expected empty message, got %q", view)
	}
}
