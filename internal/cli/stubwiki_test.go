package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// stubWiki is a minimal in-process wiki server backing end-to-end CLI
// tests. It speaks just enough of the v2 (and, for moves, v1) API for
// the commands under test.
type stubWiki struct {
	mu sync.Mutex

	spaceKey string
	spaceID  string

	pages       map[string]*stubPage
	roots       []string
	nextID      int
	attachments map[string][]stubAttachment

	srv *httptest.Server
}

type stubAttachment struct {
	Title     string
	MediaType string
	Data      []byte
}

type stubPage struct {
	ID       string
	Title    string
	ParentID string
	Body     string
	Version  int
	Children []string
}

func newStubWiki(t *testing.T, spaceKey string) *stubWiki {
	t.Helper()

	w := &stubWiki{
		spaceKey:    spaceKey,
		spaceID:     "space-1",
		pages:       map[string]*stubPage{},
		attachments: map[string][]stubAttachment{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /wiki/api/v2/spaces", w.handleSpaces)
	mux.HandleFunc("GET /wiki/api/v2/spaces/{id}/operations", w.handleOperations)
	mux.HandleFunc("GET /wiki/api/v2/spaces/{id}/pages", w.handleSpacePages)
	mux.HandleFunc("GET /wiki/api/v2/pages", w.handlePagesByTitle)
	mux.HandleFunc("POST /wiki/api/v2/pages", w.handleCreate)
	mux.HandleFunc("GET /wiki/api/v2/pages/{id}", w.handlePage)
	mux.HandleFunc("PUT /wiki/api/v2/pages/{id}", w.handleUpdate)
	mux.HandleFunc("DELETE /wiki/api/v2/pages/{id}", w.handleDelete)
	mux.HandleFunc("GET /wiki/api/v2/pages/{id}/children", w.handleChildren)
	mux.HandleFunc("GET /wiki/api/v2/pages/{id}/versions", w.handleVersions)
	mux.HandleFunc("GET /wiki/api/v2/pages/{id}/operations", w.handleOperations)
	mux.HandleFunc("PUT /wiki/rest/api/content/{id}/move/{pos}/{ref}", w.handleMove)
	mux.HandleFunc("GET /wiki/api/v2/pages/{id}/attachments", w.handleAttachments)
	mux.HandleFunc("GET /wiki/download/{id}/{name}", w.handleDownload)
	mux.HandleFunc("PUT /wiki/rest/api/content/{id}/child/attachment", w.handleUpload)

	w.srv = httptest.NewServer(mux)
	t.Cleanup(w.srv.Close)

	return w
}

func (w *stubWiki) URL() string { return w.srv.URL }

// add seeds a page directly, bypassing the HTTP surface.
func (w *stubWiki) add(parentID, title, body string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.insert(parentID, title, body)
}

func (w *stubWiki) insert(parentID, title, body string) string {
	w.nextID++
	id := fmt.Sprintf("%d", w.nextID)
	w.pages[id] = &stubPage{ID: id, Title: title, ParentID: parentID, Body: body, Version: 1}

	if parentID == "" {
		w.roots = append(w.roots, id)
	} else {
		parent := w.pages[parentID]
		parent.Children = append(parent.Children, id)
	}

	return id
}

// addAttachment seeds an attachment on a page.
func (w *stubWiki) addAttachment(pageID, title, mediaType string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.attachments[pageID] = append(w.attachments[pageID], stubAttachment{
		Title:     title,
		MediaType: mediaType,
		Data:      data,
	})
}

func (w *stubWiki) byTitle(title string) *stubPage {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.pages {
		if p.Title == title {
			return p
		}
	}

	return nil
}

func (w *stubWiki) childTitles(parentID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := w.roots
	if parentID != "" {
		ids = w.pages[parentID].Children
	}

	titles := make([]string, len(ids))
	for i, id := range ids {
		titles[i] = w.pages[id].Title
	}

	return titles
}

func (w *stubWiki) pageCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.pages)
}

func (w *stubWiki) pageJSON(p *stubPage) map[string]any {
	return map[string]any{
		"id":       p.ID,
		"title":    p.Title,
		"spaceId":  w.spaceID,
		"parentId": p.ParentID,
		"body": map[string]any{
			"storage": map[string]any{
				"representation": "storage",
				"value":          p.Body,
			},
		},
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func (w *stubWiki) handleSpaces(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("keys") != w.spaceKey {
		writeJSON(rw, map[string]any{"results": []any{}})

		return
	}

	writeJSON(rw, map[string]any{"results": []map[string]any{{"id": w.spaceID}}})
}

func (w *stubWiki) handleOperations(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, map[string]any{"operations": []map[string]string{
		{"operation": "create", "targetType": "page"},
		{"operation": "delete", "targetType": "page"},
	}})
}

func (w *stubWiki) handleSpacePages(rw http.ResponseWriter, _ *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	results := []map[string]any{}
	for _, p := range w.pages {
		results = append(results, w.pageJSON(p))
	}

	writeJSON(rw, map[string]any{"results": results})
}

func (w *stubWiki) handlePagesByTitle(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	title := r.URL.Query().Get("title")
	results := []map[string]any{}

	for _, p := range w.pages {
		if p.Title == title {
			results = append(results, w.pageJSON(p))
		}
	}

	writeJSON(rw, map[string]any{"results": results})
}

func (w *stubWiki) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title    string `json:"title"`
		ParentID string `json:"parentId"`
		Body     struct {
			Value string `json:"value"`
		} `json:"body"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)

		return
	}

	w.mu.Lock()
	id := w.insert(payload.ParentID, payload.Title, payload.Body.Value)
	p := w.pages[id]
	body := w.pageJSON(p)
	w.mu.Unlock()

	writeJSON(rw, body)
}

func (w *stubWiki) handlePage(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pages[r.PathValue("id")]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	writeJSON(rw, w.pageJSON(p))
}

func (w *stubWiki) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title    string `json:"title"`
		ParentID string `json:"parentId"`
		Body     struct {
			Value string `json:"value"`
		} `json:"body"`
		Version struct {
			Number int `json:"number"`
		} `json:"version"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)

		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pages[r.PathValue("id")]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	if payload.Version.Number != p.Version+1 {
		http.Error(rw, `{"errors":[{"title":"version conflict"}]}`, http.StatusConflict)

		return
	}

	p.Title = payload.Title
	p.Body = payload.Body.Value
	p.Version = payload.Version.Number

	if newParent, ok := w.pages[payload.ParentID]; ok && payload.ParentID != p.ParentID {
		if p.ParentID == "" {
			w.roots = removeStubID(w.roots, p.ID)
		} else if parent, ok := w.pages[p.ParentID]; ok {
			parent.Children = removeStubID(parent.Children, p.ID)
		}
		p.ParentID = payload.ParentID
		newParent.Children = append(newParent.Children, p.ID)
	}

	writeJSON(rw, w.pageJSON(p))
}

func (w *stubWiki) handleDelete(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := r.PathValue("id")

	p, ok := w.pages[id]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	delete(w.pages, id)

	if p.ParentID == "" {
		w.roots = removeStubID(w.roots, id)
	} else if parent, ok := w.pages[p.ParentID]; ok {
		parent.Children = removeStubID(parent.Children, id)
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (w *stubWiki) handleChildren(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pages[r.PathValue("id")]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	results := make([]map[string]any, len(p.Children))
	for i, id := range p.Children {
		results[i] = w.pageJSON(w.pages[id])
	}

	writeJSON(rw, map[string]any{"results": results})
}

func (w *stubWiki) handleVersions(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pages[r.PathValue("id")]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	writeJSON(rw, map[string]any{"results": []map[string]any{{"number": p.Version}}})
}

func (w *stubWiki) handleMove(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, pos, refID := r.PathValue("id"), r.PathValue("pos"), r.PathValue("ref")

	p, ok := w.pages[id]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	ref, ok := w.pages[refID]
	if !ok {
		http.Error(rw, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)

		return
	}

	if p.ParentID == "" {
		w.roots = removeStubID(w.roots, id)
	} else {
		parent := w.pages[p.ParentID]
		parent.Children = removeStubID(parent.Children, id)
	}

	p.ParentID = ref.ParentID

	list := w.roots
	if ref.ParentID != "" {
		list = w.pages[ref.ParentID].Children
	}

	at := -1
	for i, sid := range list {
		if sid == refID {
			at = i

			break
		}
	}

	if at < 0 {
		http.Error(rw, `{"errors":[{"title":"bad reference"}]}`, http.StatusBadRequest)

		return
	}

	if strings.EqualFold(pos, "after") {
		at++
	}

	list = append(list[:at:at], append([]string{id}, list[at:]...)...)

	if ref.ParentID == "" {
		w.roots = list
	} else {
		w.pages[ref.ParentID].Children = list
	}

	writeJSON(rw, map[string]any{"id": id})
}

func (w *stubWiki) handleAttachments(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := r.PathValue("id")
	results := []map[string]any{}

	for _, a := range w.attachments[id] {
		results = append(results, map[string]any{
			"id":           id + "-" + a.Title,
			"title":        a.Title,
			"mediaType":    a.MediaType,
			"downloadLink": fmt.Sprintf("/download/%s/%s", id, a.Title),
		})
	}

	writeJSON(rw, map[string]any{"results": results})
}

func (w *stubWiki) handleDownload(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, a := range w.attachments[r.PathValue("id")] {
		if a.Title == r.PathValue("name") {
			_, _ = rw.Write(a.Data)

			return
		}
	}

	http.Error(rw, "not found", http.StatusNotFound)
}

func (w *stubWiki) handleUpload(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)

		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)

		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)

		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	id := r.PathValue("id")
	w.attachments[id] = append(w.attachments[id], stubAttachment{
		Title:     header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	})

	writeJSON(rw, map[string]any{"results": []any{}})
}

func removeStubID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}

	return out
}
