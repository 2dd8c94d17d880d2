package upload

// FolderGroup is the set of files that share one top-level directory.
type FolderGroup struct {
	Name    string
	Entries []Entry
}

// GroupByTopLevel splits entries into folder groups (first-seen order) and
// unassigned root files.
func GroupByTopLevel(entries []Entry) ([]FolderGroup, []Entry) {
	var groups []FolderGroup
	var unassigned []Entry
	index := make(map[string]int)

	for _, e := range entries {
		top := e.TopLevel()
		if top == "" {
			unassigned = append(unassigned, e)
			continue
		}
		i, ok := index[top]
		if !ok {
			i = len(groups)
			index[top] = i
			groups = append(groups, FolderGroup{Name: top})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups, unassigned
}

// Batches partitions entries into consecutive slices of at most size.
func Batches(entries []Entry, size int) [][]Entry {
	if size < 1 {
		size = 1
	}
	var out [][]Entry
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		out = append(out, entries[start:end])
	}
	return out
}
