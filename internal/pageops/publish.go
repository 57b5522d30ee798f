package pageops

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wikisync/internal/confluence"
	"wikisync/internal/pagemap"
	"wikisync/internal/progress"
)

// ErrNotPermitted means a pre-flight permission check failed before any
// mutation was attempted.
var ErrNotPermitted = errors.New("operation not permitted on target")

// PublishOptions control a publish run.
type PublishOptions struct {
	// ParentID anchors the published tree under an existing page. Empty
	// publishes into the space root.
	ParentID string

	Tracker *progress.Tracker
}

// PublishTree reconciles the desired tree into the target space:
// every entry is upserted by title (create if absent, update in place
// otherwise), then a reorder pass imposes the page map's child order.
//
// The upsert recursion fans out concurrently per level, so sibling
// creation order is not guaranteed; the reorder pass exists precisely
// because of that. Re-running a publish against an already-synced space
// is a content refresh with no structural change.
//
// Publishing is refused up front, before any mutation, when the
// credentials cannot create pages in the space.
func PublishTree(ctx context.Context, c Client, spaceID string, root *pagemap.Entry, opts PublishOptions) (string, error) {
	allowed, err := PageCreationAllowed(ctx, c, spaceID)
	if err != nil {
		return "", fmt.Errorf("checking page creation permission: %w", err)
	}
	if !allowed {
		return "", fmt.Errorf("%w: page creation in space id#%s", ErrNotPermitted, spaceID)
	}

	if opts.Tracker != nil {
		opts.Tracker.AddTarget(1)
	}
	rootID, err := upsertEntry(ctx, c, spaceID, opts.ParentID, root, opts.Tracker)
	if err != nil {
		return "", err
	}

	if err := ReorderToMatch(ctx, c, rootID, NodeFromPageMap(root), ReorderOptions{
		Recursive: true,
		Tracker:   opts.Tracker,
	}); err != nil {
		return "", err
	}
	return rootID, nil
}

// upsertEntry creates or updates one page, then recurses concurrently
// into its children. A failed upsert aborts the whole branch: children
// cannot be parented onto a page that does not exist.
func upsertEntry(ctx context.Context, c Client, spaceID, parentID string, e *pagemap.Entry, tr *progress.Tracker) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := e.Body()
	if err != nil {
		step(tr, false, e.Title)
		return "", err
	}

	id, err := upsertPage(ctx, c, spaceID, parentID, e.Title, body)
	if err != nil {
		step(tr, false, e.Title)
		return "", err
	}
	step(tr, true, e.Title)

	if tr != nil {
		tr.AddTarget(len(e.Children))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range e.Children {
		g.Go(func() error {
			_, err := upsertEntry(gctx, c, spaceID, id, child, tr)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return id, nil
}

// upsertPage is create-if-absent-else-update, keyed by (space, title).
func upsertPage(ctx context.Context, c Client, spaceID, parentID, title, body string) (string, error) {
	existing, err := c.PageByTitle(ctx, spaceID, title)
	switch {
	case errors.Is(err, confluence.ErrNotFound):
		return c.CreatePage(ctx, confluence.NewPage{
			SpaceID:  spaceID,
			Title:    title,
			Body:     body,
			ParentID: parentID,
		})
	case err != nil:
		return "", err
	default:
		return c.UpdatePage(ctx, confluence.PageUpdate{
			ID:       existing.ID,
			Title:    title,
			Body:     body,
			ParentID: parentID,
		})
	}
}

func step(tr *progress.Tracker, ok bool, message string) {
	if tr != nil {
		tr.Step(ok, message)
	}
}
