package pageops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"wikisync/internal/confluence"
	"wikisync/internal/progress"
)

// CopyOptions control a tree copy.
type CopyOptions struct {
	// Prefix and Postfix are applied to every copied page's title. At
	// least one is required when source and target space are the same,
	// since titles must stay unique within a space.
	Prefix  string
	Postfix string

	// WithChildren copies the whole subtree instead of a single page.
	WithChildren bool

	// TargetParentID anchors the copies under an existing target page.
	TargetParentID string

	// WorkDir stages attachment downloads on disk. Required; the
	// caller decides whether it is a kept directory or a temp one.
	WorkDir string

	Tracker *progress.Tracker
}

// CopyTree copies the fetched source subtree into the target space,
// page by page: body upserted under the mapped parent, attachments
// downloaded from the source and re-uploaded onto the copy. Source and
// target may be different wiki instances. Returns the id of the copied
// root.
//
// Copying is refused up front when the target space does not permit
// page creation.
func CopyTree(ctx context.Context, src, tgt Client, tree *confluence.Page, tgtSpaceID string, opts CopyOptions) (string, error) {
	allowed, err := PageCreationAllowed(ctx, tgt, tgtSpaceID)
	if err != nil {
		return "", fmt.Errorf("checking page creation permission: %w", err)
	}
	if !allowed {
		return "", fmt.Errorf("%w: page creation in space id#%s", ErrNotPermitted, tgtSpaceID)
	}

	if opts.Tracker != nil {
		opts.Tracker.AddTarget(1)
	}
	return copyPage(ctx, src, tgt, tree, tgtSpaceID, opts.TargetParentID, opts)
}

func copyPage(ctx context.Context, src, tgt Client, node *confluence.Page, tgtSpaceID, parentID string, opts CopyOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	newTitle := PageTitle(node.Title, opts.Prefix, opts.Postfix)

	page, err := src.PageByID(ctx, node.ID)
	if err != nil {
		step(opts.Tracker, false, newTitle)
		return "", err
	}

	attachments, err := stageAttachments(ctx, src, page.ID, opts.WorkDir)
	if err != nil {
		step(opts.Tracker, false, newTitle)
		return "", err
	}

	newID, err := upsertPage(ctx, tgt, tgtSpaceID, parentID, newTitle, page.Body)
	if err != nil {
		step(opts.Tracker, false, newTitle)
		return "", err
	}

	for _, a := range attachments {
		data, err := os.ReadFile(a.path)
		if err != nil {
			step(opts.Tracker, false, newTitle)
			return "", err
		}
		if err := tgt.UploadAttachment(ctx, newID, confluence.AttachmentUpload{
			FileName:    a.title,
			ContentType: a.mediaType,
			Data:        data,
		}); err != nil {
			step(opts.Tracker, false, newTitle)
			return "", fmt.Errorf("copying attachment %q: %w", a.title, err)
		}
	}
	step(opts.Tracker, true, newTitle)

	if !opts.WithChildren {
		return newID, nil
	}

	if opts.Tracker != nil {
		opts.Tracker.AddTarget(len(node.Children))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range node.Children {
		g.Go(func() error {
			_, err := copyPage(gctx, src, tgt, child, tgtSpaceID, newID, opts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return newID, nil
}

type stagedAttachment struct {
	title     string
	mediaType string
	path      string
}

// stageAttachments downloads a page's attachments into a per-page
// directory under workDir. Files are written atomically so an aborted
// copy never leaves half a blob behind for a retry to pick up.
func stageAttachments(ctx context.Context, src Client, pageID, workDir string) ([]stagedAttachment, error) {
	list, err := src.ListAttachments(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	dir := filepath.Join(workDir, pageID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	staged := make([]stagedAttachment, 0, len(list))
	for _, a := range list {
		data, err := src.DownloadAttachment(ctx, a.DownloadLink)
		if err != nil {
			return nil, fmt.Errorf("downloading attachment %q: %w", a.Title, err)
		}
		path := filepath.Join(dir, filepath.Base(a.Title))
		if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			return nil, err
		}
		staged = append(staged, stagedAttachment{title: a.Title, mediaType: a.MediaType, path: path})
	}
	return staged, nil
}
