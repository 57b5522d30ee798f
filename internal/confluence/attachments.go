package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ListAttachments returns the attachments owned by a page.
func (c *Client) ListAttachments(ctx context.Context, pageID string) ([]Attachment, error) {
	op := fmt.Sprintf("list attachments of page id#%s", pageID)
	data, err := c.request(ctx, http.MethodGet, "wiki/api/v2/pages/"+pageID+"/attachments", nil, nil, op)
	if err != nil {
		return nil, err
	}
	var body struct {
		Results []struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			MediaType    string `json:"mediaType"`
			DownloadLink string `json:"downloadLink"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	attachments := make([]Attachment, len(body.Results))
	for i, r := range body.Results {
		attachments[i] = Attachment{
			ID:           r.ID,
			Title:        r.Title,
			MediaType:    r.MediaType,
			DownloadLink: r.DownloadLink,
		}
	}
	return attachments, nil
}

// DownloadAttachment fetches the raw bytes behind an attachment's
// download link. The API hands those links out relative to the wiki
// context, not the site root.
func (c *Client) DownloadAttachment(ctx context.Context, downloadLink string) ([]byte, error) {
	op := fmt.Sprintf("download attachment %s", downloadLink)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	ref := strings.TrimPrefix(downloadLink, "/")
	if !strings.HasPrefix(ref, "wiki/") {
		ref = "wiki/" + ref
	}
	target, err := c.endpoint(ref, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Op: op}
	}
	return io.ReadAll(resp.Body)
}

// AttachmentUpload is the input for UploadAttachment.
type AttachmentUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// UploadAttachment creates or updates an attachment on a page, keyed by
// filename. Only the v1 API supports uploads.
func (c *Client) UploadAttachment(ctx context.Context, pageID string, upload AttachmentUpload) error {
	op := fmt.Sprintf("upload attachment %q to page id#%s", upload.FileName, pageID)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, upload.FileName))
	if upload.ContentType != "" {
		header.Set("Content-Type", upload.ContentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	target, err := c.endpoint("wiki/rest/api/content/"+pageID+"/child/attachment", nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, &buf)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "nocheck")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", http.MethodPut).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("wiki request")

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Op: op, Detail: errDetail(data)}
	}
	return nil
}
