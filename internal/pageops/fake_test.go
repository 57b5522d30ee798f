package pageops

import (
	"context"
	"fmt"
	"sync"

	"wikisync/internal/confluence"
)

// fakeWiki is an in-memory wiki implementing Client. Moves apply the
// same relative primitive the real API exposes, so reorder tests assert
// on resulting sibling order rather than on a recorded call list.
type fakeWiki struct {
	mu sync.Mutex

	spaces map[string]string // key -> id
	pages  map[string]*fakePage
	roots  map[string][]string // space id -> ordered top-level page ids
	nextID int

	// denied permission checks, keyed "<resource>/<id>". Everything
	// else is permitted.
	denied map[string]bool

	failDelete map[string]bool

	creates int
	updates int
	moves   int
	deletes int

	attachments map[string][]confluence.Attachment
	blobs       map[string][]byte // download link -> content
	uploads     map[string][]confluence.AttachmentUpload
}

type fakePage struct {
	id       string
	title    string
	spaceID  string
	parentID string
	body     string
	children []string
}

func newFakeWiki() *fakeWiki {
	return &fakeWiki{
		spaces:      map[string]string{"DOC": "s1"},
		pages:       map[string]*fakePage{},
		roots:       map[string][]string{},
		denied:      map[string]bool{},
		failDelete:  map[string]bool{},
		attachments: map[string][]confluence.Attachment{},
		blobs:       map[string][]byte{},
		uploads:     map[string][]confluence.AttachmentUpload{},
	}
}

// addPage seeds a page directly, bypassing the operation counters.
func (w *fakeWiki) addPage(spaceID, parentID, title, body string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.insert(spaceID, parentID, title, body)
}

func (w *fakeWiki) insert(spaceID, parentID, title, body string) string {
	w.nextID++
	id := fmt.Sprintf("p%d", w.nextID)
	w.pages[id] = &fakePage{id: id, title: title, spaceID: spaceID, parentID: parentID, body: body}
	if parentID == "" {
		w.roots[spaceID] = append(w.roots[spaceID], id)
	} else {
		parent := w.pages[parentID]
		parent.children = append(parent.children, id)
	}
	return id
}

// addAttachment seeds an attachment blob on a page.
func (w *fakeWiki) addAttachment(pageID, title, mediaType string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	link := fmt.Sprintf("/download/%s/%s", pageID, title)
	w.attachments[pageID] = append(w.attachments[pageID], confluence.Attachment{
		ID:           fmt.Sprintf("a%d", len(w.blobs)+1),
		Title:        title,
		MediaType:    mediaType,
		DownloadLink: link,
	})
	w.blobs[link] = data
}

func (w *fakeWiki) deny(resource confluence.ResourceType, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.denied[string(resource)+"/"+id] = true
}

// childTitles returns the current display order under the given parent,
// "" meaning the space root.
func (w *fakeWiki) childTitles(spaceID, parentID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := w.roots[spaceID]
	if parentID != "" {
		ids = w.pages[parentID].children
	}
	titles := make([]string, len(ids))
	for i, id := range ids {
		titles[i] = w.pages[id].title
	}
	return titles
}

func (w *fakeWiki) pageByTitle(title string) *fakePage {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pages {
		if p.title == title {
			return p
		}
	}
	return nil
}

func (w *fakeWiki) SpaceID(ctx context.Context, spaceKey string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.spaces[spaceKey]
	if !ok {
		return "", fmt.Errorf("space %q: %w", spaceKey, confluence.ErrNotFound)
	}
	return id, nil
}

func (w *fakeWiki) PageByID(ctx context.Context, pageID string) (confluence.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[pageID]
	if !ok {
		return confluence.Page{}, fmt.Errorf("page id#%s: %w", pageID, confluence.ErrNotFound)
	}
	return w.export(p), nil
}

func (w *fakeWiki) PageByTitle(ctx context.Context, spaceID, title string) (confluence.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var matches []*fakePage
	for _, p := range w.pages {
		if p.spaceID == spaceID && p.title == title {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return confluence.Page{}, fmt.Errorf("page %q: %w", title, confluence.ErrNotFound)
	case 1:
		return w.export(matches[0]), nil
	default:
		return confluence.Page{}, fmt.Errorf("page %q: %w", title, confluence.ErrAmbiguousTitle)
	}
}

func (w *fakeWiki) ChildPages(ctx context.Context, parentID string) ([]confluence.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[parentID]
	if !ok {
		return nil, fmt.Errorf("page id#%s: %w", parentID, confluence.ErrNotFound)
	}
	out := make([]confluence.Page, len(p.children))
	for i, id := range p.children {
		out[i] = w.export(w.pages[id])
	}
	return out, nil
}

func (w *fakeWiki) PagesInSpace(ctx context.Context, spaceID string) ([]confluence.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []confluence.Page
	for _, p := range w.pages {
		if p.spaceID == spaceID {
			out = append(out, w.export(p))
		}
	}
	return out, nil
}

func (w *fakeWiki) CreatePage(ctx context.Context, p confluence.NewPage) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.creates++
	return w.insert(p.SpaceID, p.ParentID, p.Title, p.Body), nil
}

func (w *fakeWiki) UpdatePage(ctx context.Context, p confluence.PageUpdate) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	existing, ok := w.pages[p.ID]
	if !ok {
		return "", fmt.Errorf("page id#%s: %w", p.ID, confluence.ErrNotFound)
	}
	w.updates++
	existing.title = p.Title
	existing.body = p.Body
	if newParent, ok := w.pages[p.ParentID]; ok && p.ParentID != existing.parentID {
		if existing.parentID == "" {
			w.roots[existing.spaceID] = removeID(w.roots[existing.spaceID], existing.id)
		} else if parent, ok := w.pages[existing.parentID]; ok {
			parent.children = removeID(parent.children, existing.id)
		}
		existing.parentID = p.ParentID
		newParent.children = append(newParent.children, existing.id)
	}
	return existing.id, nil
}

func (w *fakeWiki) DeletePage(ctx context.Context, pageID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failDelete[pageID] {
		return &confluence.APIError{StatusCode: 500, Op: "delete page", Detail: "internal error"}
	}
	p, ok := w.pages[pageID]
	if !ok {
		return fmt.Errorf("page id#%s: %w", pageID, confluence.ErrNotFound)
	}
	w.deletes++
	delete(w.pages, pageID)
	// No cascade: children stay, reparented nowhere.
	if p.parentID == "" {
		w.roots[p.spaceID] = removeID(w.roots[p.spaceID], pageID)
	} else if parent, ok := w.pages[p.parentID]; ok {
		parent.children = removeID(parent.children, pageID)
	}
	return nil
}

func (w *fakeWiki) MovePage(ctx context.Context, pageID string, pos confluence.Position, referenceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[pageID]
	if !ok {
		return fmt.Errorf("page id#%s: %w", pageID, confluence.ErrNotFound)
	}
	ref, ok := w.pages[referenceID]
	if !ok {
		return fmt.Errorf("page id#%s: %w", referenceID, confluence.ErrNotFound)
	}
	w.moves++

	if p.parentID == "" {
		w.roots[p.spaceID] = removeID(w.roots[p.spaceID], pageID)
	} else {
		parent := w.pages[p.parentID]
		parent.children = removeID(parent.children, pageID)
	}
	p.parentID = ref.parentID

	list := w.roots[ref.spaceID]
	if ref.parentID != "" {
		list = w.pages[ref.parentID].children
	}
	at := -1
	for i, id := range list {
		if id == referenceID {
			at = i
			break
		}
	}
	if at < 0 {
		return fmt.Errorf("reference id#%s not among siblings", referenceID)
	}
	if pos == confluence.After {
		at++
	}
	list = append(list[:at:at], append([]string{pageID}, list[at:]...)...)
	if ref.parentID == "" {
		w.roots[ref.spaceID] = list
	} else {
		w.pages[ref.parentID].children = list
	}
	return nil
}

func (w *fakeWiki) PermittedOperations(ctx context.Context, resource confluence.ResourceType, resourceID string) ([]confluence.Operation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.denied[string(resource)+"/"+resourceID] {
		return nil, nil
	}
	return []confluence.Operation{
		{Operation: confluence.OpCreate, TargetType: string(confluence.ResourcePage)},
		{Operation: confluence.OpDelete, TargetType: string(confluence.ResourcePage)},
	}, nil
}

func (w *fakeWiki) ListAttachments(ctx context.Context, pageID string) ([]confluence.Attachment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attachments[pageID], nil
}

func (w *fakeWiki) DownloadAttachment(ctx context.Context, downloadLink string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.blobs[downloadLink]
	if !ok {
		return nil, fmt.Errorf("attachment %q: %w", downloadLink, confluence.ErrNotFound)
	}
	return data, nil
}

func (w *fakeWiki) UploadAttachment(ctx context.Context, pageID string, upload confluence.AttachmentUpload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pages[pageID]; !ok {
		return fmt.Errorf("page id#%s: %w", pageID, confluence.ErrNotFound)
	}
	w.uploads[pageID] = append(w.uploads[pageID], upload)
	return nil
}

func (w *fakeWiki) export(p *fakePage) confluence.Page {
	return confluence.Page{
		ID:         p.id,
		Title:      p.title,
		SpaceID:    p.spaceID,
		ParentID:   p.parentID,
		Body:       p.body,
		BodyFormat: confluence.BodyFormatStorage,
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var _ Client = (*fakeWiki)(nil)
