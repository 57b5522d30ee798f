package pageops

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wikisync/internal/confluence"
	"wikisync/internal/progress"
)

// Strategy selects how a batch of independent operations executes.
type Strategy int

const (
	// Sequential runs one operation at a time, in order.
	Sequential Strategy = iota
	// Concurrent fans the batch out, bounded by the client semaphore.
	Concurrent
)

// DeleteOptions control a bulk delete.
type DeleteOptions struct {
	// Strategy defaults to Sequential. The wiki has been observed to
	// answer intermittent 500s when many deletes of a nested hierarchy
	// run concurrently, so concurrency is deliberately traded away
	// here. Do not switch the default without re-verifying against the
	// real service.
	Strategy Strategy

	Tracker *progress.Tracker
}

// DeletePages deletes the given pages one by one. The wiki's delete
// does not cascade, so callers wanting to remove a subtree pass every
// page of it (see SubtreePages). Individual failures are recorded in
// the tracker and the batch continues; only cancellation aborts it.
func DeletePages(ctx context.Context, c Client, pages []confluence.Page, opts DeleteOptions) error {
	if opts.Tracker != nil {
		opts.Tracker.AddTarget(len(pages))
	}

	if opts.Strategy == Concurrent {
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range pages {
			g.Go(func() error {
				deleteOne(gctx, c, p, opts.Tracker)
				return gctx.Err()
			})
		}
		return g.Wait()
	}

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleteOne(ctx, c, p, opts.Tracker)
	}
	return nil
}

func deleteOne(ctx context.Context, c Client, p confluence.Page, tr *progress.Tracker) {
	label := p.Title
	if label == "" {
		label = "id#" + p.ID
	}
	if err := c.DeletePage(ctx, p.ID); err != nil {
		step(tr, false, fmt.Sprintf("%s: %v", label, err))
		return
	}
	step(tr, true, label)
}

// SubtreePages lists every page of the subtree rooted at rootID,
// deepest pages last, by fetching the live hierarchy. The resulting
// order is safe for sequential deletion (parents before children is
// acceptable because deletion does not cascade).
func SubtreePages(ctx context.Context, c Client, rootID string, tr *progress.Tracker) ([]confluence.Page, error) {
	root, err := FetchHierarchy(ctx, c, rootID, tr)
	if err != nil {
		return nil, err
	}
	var pages []confluence.Page
	root.Walk(func(p *confluence.Page) {
		pages = append(pages, confluence.Page{ID: p.ID, Title: p.Title, SpaceID: p.SpaceID, ParentID: p.ParentID})
	})
	return pages, nil
}
