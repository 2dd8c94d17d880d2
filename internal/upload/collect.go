package upload

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// Entry is a collected file ready for upload. RelativePath uses forward
// slashes; a directory input tags its files "dir/sub/name.ext".
type Entry struct {
	Path         string
	RelativePath string
	File         LocalFile
}

// TopLevel returns the folder a file belongs to, or "" for a root file.
func (e Entry) TopLevel() string {
	if i := strings.IndexByte(e.RelativePath, '/'); i > 0 {
		return e.RelativePath[:i]
	}
	return ""
}

// Collector expands input paths into a flat list of entries.
type Collector struct {
	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64
	// Extensions restricts accepted files (lowercase, with dot). Empty
	// accepts everything.
	Extensions []string
}

// Collect resolves every path. Directories are walked depth-first in
// lexical order and fully exhausted before Collect returns. Inputs that
// cannot be uploaded are reported in the skipped list rather than
// failing the whole call.
func (c Collector) Collect(paths []string) ([]Entry, []Skipped) {
	var entries []Entry
	var skipped []Skipped

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			skipped = append(skipped, Skipped{Path: p, Reason: err.Error()})
			continue
		}
		if !info.IsDir() {
			if e, reason := c.entry(p, filepath.Base(p), info); reason != "" {
				skipped = append(skipped, Skipped{Path: p, Reason: reason})
			} else {
				entries = append(entries, e)
			}
			continue
		}

		root, err := filepath.Abs(p)
		if err != nil {
			skipped = append(skipped, Skipped{Path: p, Reason: err.Error()})
			continue
		}
		top := filepath.Base(root)
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				skipped = append(skipped, Skipped{Path: path, Reason: err.Error()})
				if d != nil && d.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if path != root && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				skipped = append(skipped, Skipped{Path: path, Reason: "hidden file"})
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				skipped = append(skipped, Skipped{Path: path, Reason: err.Error()})
				return nil
			}
			relative := top + "/" + filepath.ToSlash(rel)
			if e, reason := c.entry(path, relative, info); reason != "" {
				skipped = append(skipped, Skipped{Path: path, Reason: reason})
			} else {
				entries = append(entries, e)
			}
			return nil
		})
		if walkErr != nil {
			skipped = append(skipped, Skipped{Path: p, Reason: walkErr.Error()})
		}
	}

	return entries, skipped
}

func (c Collector) entry(path, relative string, info fs.FileInfo) (Entry, string) {
	if !c.Accepts(path) {
		return Entry{}, fmt.Sprintf("unsupported file type %q", filepath.Ext(path))
	}
	if c.MaxFileSize > 0 && info.Size() > c.MaxFileSize {
		return Entry{}, fmt.Sprintf("file is %s, limit is %s",
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(c.MaxFileSize)))
	}
	return Entry{
		Path:         path,
		RelativePath: relative,
		File: LocalFile{
			Name:         info.Name(),
			Size:         info.Size(),
			MimeType:     sniff(path),
			LastModified: info.ModTime(),
		},
	}, ""
}

// Accepts reports whether the file extension is allowed.
func (c Collector) Accepts(path string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range c.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func sniff(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
