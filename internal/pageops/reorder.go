package pageops

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wikisync/internal/confluence"
	"wikisync/internal/pagemap"
	"wikisync/internal/progress"
)

// Node is a desired-order tree: titles and child order only. It is the
// common shape ReorderToMatch accepts whether the desired order comes
// from a page map or from a source hierarchy being copied.
type Node struct {
	Title    string
	Children []*Node
}

// NodeFromPageMap converts a page-map entry tree into a desired-order tree.
func NodeFromPageMap(e *pagemap.Entry) *Node {
	n := &Node{Title: e.Title}
	for _, c := range e.Children {
		n.Children = append(n.Children, NodeFromPageMap(c))
	}
	return n
}

// NodeFromPage converts a fetched hierarchy into a desired-order tree.
func NodeFromPage(p *confluence.Page) *Node {
	n := &Node{Title: p.Title}
	for _, c := range p.Children {
		n.Children = append(n.Children, NodeFromPage(c))
	}
	return n
}

// ReorderOptions control a reorder pass.
type ReorderOptions struct {
	// Prefix and Postfix are applied to every desired title before it
	// is matched against current sibling titles.
	Prefix  string
	Postfix string

	// Recursive descends into each child's own children.
	Recursive bool

	Tracker *progress.Tracker
}

// ReorderToMatch imposes want's child order on the live children of
// pageID. It assumes every desired child already exists (the upsert
// pass ran first); a desired title with no live counterpart is a hard
// error. Within one parent the move chain executes strictly
// sequentially, because each move references the previously placed
// page; different parents are reordered concurrently.
func ReorderToMatch(ctx context.Context, c Client, pageID string, want *Node, opts ReorderOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := c.ChildPages(ctx, pageID)
	if err != nil {
		return err
	}
	if len(want.Children) == 0 {
		return nil
	}

	desired := make([]string, len(want.Children))
	for i, child := range want.Children {
		desired[i] = PageTitle(child.Title, opts.Prefix, opts.Postfix)
	}

	moves, err := PlanSiblingOrder(desired, current)
	if err != nil {
		return fmt.Errorf("reordering children of page id#%s: %w", pageID, err)
	}
	applyMoves(ctx, c, moves, opts.Tracker)

	if !opts.Recursive {
		return nil
	}

	byTitle := make(map[string]string, len(current))
	for _, p := range current {
		byTitle[p.Title] = p.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range want.Children {
		id := byTitle[PageTitle(child.Title, opts.Prefix, opts.Postfix)]
		g.Go(func() error {
			return ReorderToMatch(gctx, c, id, child, opts)
		})
	}
	return g.Wait()
}

// SortOptions control an alphabetical sort pass.
type SortOptions struct {
	Recursive     bool
	CaseSensitive bool
	Tracker       *progress.Tracker
}

// SortChildren sorts the live children of pageID by title, optionally
// recursing into every child hierarchy. It is the standalone variant of
// ReorderToMatch where the desired order is derived from the current
// children instead of an external tree.
func SortChildren(ctx context.Context, c Client, pageID string, opts SortOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := c.ChildPages(ctx, pageID)
	if err != nil {
		return err
	}
	if len(current) == 0 {
		return nil
	}

	moves := PlanAlphabetical(current, opts.CaseSensitive)
	applyMoves(ctx, c, moves, opts.Tracker)

	if !opts.Recursive {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range current {
		g.Go(func() error {
			return SortChildren(gctx, c, child.ID, opts)
		})
	}
	return g.Wait()
}

// applyMoves executes a move chain in order. A failed move is recorded
// and the chain continues: later moves reference desired pages, not the
// outcome of earlier moves, so one failure only misplaces one page.
func applyMoves(ctx context.Context, c Client, moves []Move, tr *progress.Tracker) {
	if tr != nil {
		tr.AddTarget(len(moves))
	}
	for _, m := range moves {
		if ctx.Err() != nil {
			return
		}
		err := c.MovePage(ctx, m.PageID, m.Position, m.ReferenceID)
		if tr != nil {
			if err != nil {
				tr.Step(false, fmt.Sprintf("%s: %v", m.Title, err))
			} else {
				tr.Step(true, m.Title)
			}
		}
	}
}
