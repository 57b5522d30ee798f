// Package confluence is a typed client for the Confluence-style wiki
// REST API (v2 page shapes, v1 fallbacks where v2 has no equivalent).
//
// Every request passes through a counting semaphore, so one client
// instance enforces a global ceiling on in-flight calls no matter how
// many goroutines share it. Idempotent GETs are retried on transient
// failures; writes never are, because a stale page version must surface
// as a failure rather than be papered over.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the default ceiling on concurrently in-flight
// requests per client.
const DefaultLimit = 10

// maxPageResults is the API's own cap on results per children/space
// listing request; larger listings are followed through _links.next.
const maxPageResults = 250

// Client talks to one wiki instance with one set of credentials.
type Client struct {
	baseURL  *url.URL
	user     string
	token    string
	hc       *http.Client
	sem      *semaphore.Weighted
	attempts uint
	log      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithLimit sets the ceiling on concurrently in-flight requests.
// A limit of 1 forces fully sequential requests, which tests use to get
// deterministic behavior.
func WithLimit(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithRetryAttempts sets how many times idempotent GETs are attempted
// in total. 1 disables retrying.
func WithRetryAttempts(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithLogger attaches a logger for request-level debug events.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient validates the root URL and returns a ready client.
func NewClient(rootURL, user, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL %q: %w", rootURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid root URL %q: scheme and host required", rootURL)
	}

	c := &Client{
		baseURL:  u,
		user:     user,
		token:    token,
		hc:       &http.Client{Timeout: 30 * time.Second},
		sem:      semaphore.NewWeighted(DefaultLimit),
		attempts: 3,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint resolves ref (either an API path or a continuation link from
// a paginated response) against the root URL and attaches the query.
func (c *Client) endpoint(ref string, query url.Values) (string, error) {
	ru, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid API path %q: %w", ref, err)
	}
	u := c.baseURL.ResolveReference(ru)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// request performs one HTTP call under the client semaphore and returns
// the response body. GETs are retried on transient failures.
func (c *Client) request(ctx context.Context, method, ref string, query url.Values, in any, op string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	target, err := c.endpoint(ref, query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if in != nil {
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
	}

	attempt := func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.user, c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		c.log.Debug().
			Str("method", method).
			Str("url", target).
			Int("status", resp.StatusCode).
			Dur("took", time.Since(start)).
			Msg("wiki request")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Op: op, Detail: errDetail(data)}
		}
		return data, nil
	}

	if method != http.MethodGet || c.attempts <= 1 {
		return attempt()
	}

	return retry.DoWithData(attempt,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
}

// isTransient reports whether a GET failure is worth another attempt:
// network-level errors and server-side 5xx responses are, anything the
// caller did wrong is not.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// errDetail extracts a short server-supplied message from an error body.
func errDetail(data []byte) string {
	var body struct {
		Errors []struct {
			Title string `json:"title"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if len(body.Errors) > 0 && body.Errors[0].Title != "" {
			return body.Errors[0].Title
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return ""
}

// API result shapes. Only the fields this tool reads are declared.

type pageResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Title    string `json:"title"`
	SpaceID  string `json:"spaceId"`
	ParentID string `json:"parentId"`
	Body     struct {
		Storage struct {
			Representation string `json:"representation"`
			Value          string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

func (r pageResult) page() Page {
	format := BodyFormatNone
	if r.Body.Storage.Representation != "" {
		format = BodyFormat(r.Body.Storage.Representation)
	}
	return Page{
		ID:         r.ID,
		Title:      r.Title,
		SpaceID:    r.SpaceID,
		ParentID:   r.ParentID,
		Body:       r.Body.Storage.Value,
		BodyFormat: format,
	}
}

type pageListResult struct {
	Results []pageResult `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// SpaceID resolves a space key to its id.
func (c *Client) SpaceID(ctx context.Context, spaceKey string) (string, error) {
	op := fmt.Sprintf("resolve space %q", spaceKey)
	data, err := c.request(ctx, http.MethodGet, "wiki/api/v2/spaces", url.Values{"keys": {spaceKey}}, nil, op)
	if err != nil {
		return "", err
	}
	var body struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if len(body.Results) == 0 || body.Results[0].ID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return body.Results[0].ID, nil
}

// PageByID fetches one page including its body.
func (c *Client) PageByID(ctx context.Context, pageID string) (Page, error) {
	op := fmt.Sprintf("get page id#%s", pageID)
	data, err := c.request(ctx, http.MethodGet, "wiki/api/v2/pages/"+pageID,
		url.Values{"body-format": {string(BodyFormatStorage)}}, nil, op)
	if err != nil {
		return Page{}, err
	}
	var result pageResult
	if err := json.Unmarshal(data, &result); err != nil {
		return Page{}, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return result.page(), nil
}

// PageByTitle fetches the page with the given title in a space. The API
// represents a miss as an empty 200 result set; that is normalized to
// ErrNotFound. More than one match violates the per-space uniqueness
// invariant and fails with ErrAmbiguousTitle.
func (c *Client) PageByTitle(ctx context.Context, spaceID, title string) (Page, error) {
	op := fmt.Sprintf("get page %q in space id#%s", title, spaceID)
	data, err := c.request(ctx, http.MethodGet, "wiki/api/v2/pages", url.Values{
		"title":       {title},
		"space-id":    {spaceID},
		"body-format": {string(BodyFormatStorage)},
	}, nil, op)
	if err != nil {
		return Page{}, err
	}
	var body pageListResult
	if err := json.Unmarshal(data, &body); err != nil {
		return Page{}, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	switch len(body.Results) {
	case 0:
		return Page{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	case 1:
		return body.Results[0].page(), nil
	default:
		return Page{}, fmt.Errorf("%s: %w", op, ErrAmbiguousTitle)
	}
}

// ChildPages lists the direct children of a page in display order,
// following continuation links until exhausted. A childless page yields
// an empty list, not an error.
func (c *Client) ChildPages(ctx context.Context, parentID string) ([]Page, error) {
	op := fmt.Sprintf("list children of page id#%s", parentID)
	return c.collectPages(ctx, "wiki/api/v2/pages/"+parentID+"/children",
		url.Values{"limit": {strconv.Itoa(maxPageResults)}}, op)
}

// PagesInSpace lists every page in a space, used for duplicate-title
// checks before bulk copies.
func (c *Client) PagesInSpace(ctx context.Context, spaceID string) ([]Page, error) {
	op := fmt.Sprintf("list pages in space id#%s", spaceID)
	return c.collectPages(ctx, "wiki/api/v2/spaces/"+spaceID+"/pages",
		url.Values{"limit": {strconv.Itoa(maxPageResults)}}, op)
}

func (c *Client) collectPages(ctx context.Context, ref string, query url.Values, op string) ([]Page, error) {
	pages := []Page{}
	for ref != "" {
		data, err := c.request(ctx, http.MethodGet, ref, query, nil, op)
		if err != nil {
			return nil, err
		}
		var body pageListResult
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("%s: decoding response: %w", op, err)
		}
		for _, r := range body.Results {
			pages = append(pages, r.page())
		}
		// Continuation links already carry the cursor and limit.
		ref = body.Links.Next
		query = nil
	}
	return pages, nil
}

// CreatePage creates a page and returns its new id. A title collision
// within the space surfaces as a plain *APIError because the wiki does
// not report it as a distinct kind.
func (c *Client) CreatePage(ctx context.Context, p NewPage) (string, error) {
	op := fmt.Sprintf("create page %q", p.Title)
	payload := map[string]any{
		"spaceId": p.SpaceID,
		"status":  "current",
		"title":   p.Title,
		"body": map[string]string{
			"representation": string(BodyFormatStorage),
			"value":          p.Body,
		},
	}
	if p.ParentID != "" {
		payload["parentId"] = p.ParentID
	}

	data, err := c.request(ctx, http.MethodPost, "wiki/api/v2/pages", nil, payload, op)
	if err != nil {
		return "", err
	}
	var result pageResult
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%s: response carried no page id", op)
	}
	return result.ID, nil
}

// UpdatePage overwrites a page's title, body and optionally parent. The
// current version is read immediately before the write and incremented;
// if the page has disappeared in between, the update fails with
// ErrNotFound. A version conflict is a hard failure, never retried.
func (c *Client) UpdatePage(ctx context.Context, p PageUpdate) (string, error) {
	op := fmt.Sprintf("update page id#%s", p.ID)

	version, err := c.currentVersion(ctx, p.ID)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"id":     p.ID,
		"status": "current",
		"title":  p.Title,
		"body": map[string]string{
			"representation": string(BodyFormatStorage),
			"value":          p.Body,
		},
		"version": map[string]int{"number": version + 1},
	}
	if p.ParentID != "" {
		payload["parentId"] = p.ParentID
	}

	data, err := c.request(ctx, http.MethodPut, "wiki/api/v2/pages/"+p.ID, nil, payload, op)
	if err != nil {
		return "", err
	}
	var result pageResult
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return result.ID, nil
}

func (c *Client) currentVersion(ctx context.Context, pageID string) (int, error) {
	op := fmt.Sprintf("read version of page id#%s", pageID)
	data, err := c.request(ctx, http.MethodGet, "wiki/api/v2/pages/"+pageID+"/versions", url.Values{
		"limit": {"1"},
		"sort":  {"-modified-date"},
	}, nil, op)
	if err != nil {
		return 0, err
	}
	var body struct {
		Results []struct {
			Number int `json:"number"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if len(body.Results) == 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return body.Results[0].Number, nil
}

// DeletePage removes one page. Children are left in place and become
// detached; callers wanting a cascade must enumerate and delete the
// subtree themselves. This asymmetry is the wiki's documented behavior.
func (c *Client) DeletePage(ctx context.Context, pageID string) error {
	op := fmt.Sprintf("delete page id#%s", pageID)
	_, err := c.request(ctx, http.MethodDelete, "wiki/api/v2/pages/"+pageID, nil, nil, op)
	return err
}

// Position is the side of the reference sibling a move targets.
type Position string

const (
	Before Position = "before"
	After  Position = "after"
)

// MovePage relocates a page to be the immediate sibling of referenceID
// on the given side. This is the only ordering primitive the wiki
// offers; there is no way to set an absolute position. Only the v1 API
// exposes it.
func (c *Client) MovePage(ctx context.Context, pageID string, pos Position, referenceID string) error {
	op := fmt.Sprintf("move page id#%s %s id#%s", pageID, pos, referenceID)
	ref := fmt.Sprintf("wiki/rest/api/content/%s/move/%s/%s", pageID, pos, referenceID)
	_, err := c.request(ctx, http.MethodPut, ref, nil, nil, op)
	return err
}

// PermittedOperations returns the operations the current credentials
// may perform on a page or space. Used as a pre-flight check before
// bulk mutations.
func (c *Client) PermittedOperations(ctx context.Context, resource ResourceType, resourceID string) ([]Operation, error) {
	op := fmt.Sprintf("get permitted operations for %s id#%s", resource, resourceID)

	var ref string
	switch resource {
	case ResourcePage:
		ref = "wiki/api/v2/pages/" + resourceID + "/operations"
	case ResourceSpace:
		ref = "wiki/api/v2/spaces/" + resourceID + "/operations"
	default:
		return nil, fmt.Errorf("invalid resource type %q", resource)
	}

	data, err := c.request(ctx, http.MethodGet, ref, nil, nil, op)
	if err != nil {
		return nil, err
	}
	var body struct {
		Operations []struct {
			Operation  string `json:"operation"`
			TargetType string `json:"targetType"`
		} `json:"operations"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	ops := make([]Operation, len(body.Operations))
	for i, o := range body.Operations {
		ops[i] = Operation{Operation: o.Operation, TargetType: o.TargetType}
	}
	return ops, nil
}
