package confluence

import (
	"sort"
	"strings"
)

// BodyFormat names the representation of a page body blob. The content
// itself is opaque to this tool.
type BodyFormat string

const (
	BodyFormatNone    BodyFormat = ""
	BodyFormatStorage BodyFormat = "storage"
)

// ResourceType is a permission-check target.
type ResourceType string

const (
	ResourcePage  ResourceType = "page"
	ResourceSpace ResourceType = "space"
)

// Operation names used by permission checks.
const (
	OpCreate = "create"
	OpDelete = "delete"
)

// Operation is one entry of a permitted-operations check.
type Operation struct {
	Operation  string
	TargetType string
}

// Page identifies a wiki page and, once fetched, its children. The
// children slice preserves the order the API returned them in, which is
// the current display order.
type Page struct {
	ID         string
	Title      string
	SpaceID    string
	ParentID   string
	Body       string
	BodyFormat BodyFormat
	Children   []*Page
}

// Walk visits p and every page below it, parents before children.
func (p *Page) Walk(fn func(*Page)) {
	fn(p)
	for _, c := range p.Children {
		c.Walk(fn)
	}
}

// Pages returns the subtree rooted at p as a flat list, root first.
func (p *Page) Pages() []*Page {
	var out []*Page
	p.Walk(func(n *Page) { out = append(out, n) })
	return out
}

// PageIDs returns the ids of the subtree rooted at p, root first.
func (p *Page) PageIDs() []string {
	var out []string
	p.Walk(func(n *Page) { out = append(out, n.ID) })
	return out
}

// Titles returns the titles of the subtree rooted at p, root first.
func (p *Page) Titles() []string {
	var out []string
	p.Walk(func(n *Page) { out = append(out, n.Title) })
	return out
}

// TreeString renders the subtree as an indented listing, one page per
// line. With sorted true, siblings are listed alphabetically instead of
// in display order.
func (p *Page) TreeString(sorted bool) string {
	var b strings.Builder
	p.writeTree(&b, 0, sorted)
	return b.String()
}

func (p *Page) writeTree(b *strings.Builder, indent int, sorted bool) {
	b.WriteString(strings.Repeat(" ", indent))
	b.WriteString(p.Title)
	b.WriteString(" (")
	b.WriteString(p.ID)
	b.WriteString(")\n")

	children := p.Children
	if sorted {
		children = make([]*Page, len(p.Children))
		copy(children, p.Children)
		sort.Slice(children, func(i, j int) bool { return children[i].Title < children[j].Title })
	}
	for _, c := range children {
		c.writeTree(b, indent+2, sorted)
	}
}

// Attachment describes a binary blob owned by a page.
type Attachment struct {
	ID           string
	Title        string
	MediaType    string
	DownloadLink string
}

// NewPage is the input for page creation.
type NewPage struct {
	SpaceID  string
	Title    string
	Body     string
	ParentID string
}

// PageUpdate is the input for a full page update. The client reads the
// current version itself; callers never supply one.
type PageUpdate struct {
	ID       string
	Title    string
	Body     string
	ParentID string
}
