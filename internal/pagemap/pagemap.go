// Package pagemap reads the desired-tree description produced by an
// external content generator: an ordered hierarchy of page titles, each
// referencing a file with the page's content blob. The order of child
// entries is the authoritative display order for the published tree.
package pagemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

var (
	errEmptyTitle     = errors.New("page map entry without a title")
	errDuplicateTitle = errors.New("duplicate title in page map")
)

// Entry is one desired page. Children are ordered.
type Entry struct {
	Title       string   `json:"page_title"`
	ContentFile string   `json:"page_content_file"`
	Children    []*Entry `json:"child_pages"`
}

// Walk visits e and every entry below it, parents before children.
func (e *Entry) Walk(fn func(*Entry)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// Titles returns every title in the subtree, root first.
func (e *Entry) Titles() []string {
	var out []string
	e.Walk(func(n *Entry) { out = append(out, n.Title) })
	return out
}

// Count returns the number of entries in the subtree including e.
func (e *Entry) Count() int {
	n := 0
	e.Walk(func(*Entry) { n++ })
	return n
}

// Body reads the entry's content blob. An entry without a content file
// yields an empty body, which is a valid page.
func (e *Entry) Body() (string, error) {
	if e.ContentFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(e.ContentFile)
	if err != nil {
		return "", fmt.Errorf("reading content for %q: %w", e.Title, err)
	}
	return string(data), nil
}

// Load parses a page map file. The file is JSON, with comments and
// trailing commas tolerated. Content file paths are resolved relative
// to the page map's own directory. Titles must be unique across the
// whole map, because they are the reconciliation identity within the
// target space.
func Load(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read page map: %w", err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid page map %s: %w", path, err)
	}

	var root Entry
	if err := json.Unmarshal(std, &root); err != nil {
		return nil, fmt.Errorf("invalid page map %s: %w", path, err)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool)
	var verr error
	root.Walk(func(e *Entry) {
		if verr != nil {
			return
		}
		if e.Title == "" {
			verr = errEmptyTitle
			return
		}
		if seen[e.Title] {
			verr = fmt.Errorf("%w: %q", errDuplicateTitle, e.Title)
			return
		}
		seen[e.Title] = true
		if e.ContentFile != "" && !filepath.IsAbs(e.ContentFile) {
			e.ContentFile = filepath.Join(base, e.ContentFile)
		}
	})
	if verr != nil {
		return nil, fmt.Errorf("invalid page map %s: %w", path, verr)
	}
	return &root, nil
}
