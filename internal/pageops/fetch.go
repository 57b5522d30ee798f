package pageops

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wikisync/internal/confluence"
	"wikisync/internal/progress"
)

// FetchHierarchy materializes the live subtree rooted at rootID. All
// sibling subtrees expand concurrently, so discovery order is
// nondeterministic, but each Children slice individually preserves the
// display order the API returned. The tracker's target grows as
// children are discovered; it is only final once FetchHierarchy
// returns.
func FetchHierarchy(ctx context.Context, c Client, rootID string, tr *progress.Tracker) (*confluence.Page, error) {
	root, err := c.PageByID(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("resolving hierarchy root: %w", err)
	}
	if tr != nil {
		tr.AddTarget(1)
	}

	node := &confluence.Page{ID: root.ID, Title: root.Title, SpaceID: root.SpaceID, ParentID: root.ParentID}
	if err := expandChildren(ctx, c, node, tr); err != nil {
		return nil, err
	}
	return node, nil
}

func expandChildren(ctx context.Context, c Client, parent *confluence.Page, tr *progress.Tracker) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := c.ChildPages(ctx, parent.ID)
	if err != nil {
		return err
	}
	if tr != nil {
		tr.Step(true, parent.Title)
		tr.AddTarget(len(children))
	}

	for _, child := range children {
		parent.Children = append(parent.Children, &confluence.Page{
			ID:       child.ID,
			Title:    child.Title,
			SpaceID:  child.SpaceID,
			ParentID: parent.ID,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range parent.Children {
		g.Go(func() error {
			return expandChildren(gctx, c, child, tr)
		})
	}
	return g.Wait()
}

// PageDeletionAllowed pre-flight-checks whether the current credentials
// may delete the given page.
func PageDeletionAllowed(ctx context.Context, c Client, pageID string) (bool, error) {
	ops, err := c.PermittedOperations(ctx, confluence.ResourcePage, pageID)
	if err != nil {
		return false, err
	}
	return hasOperation(ops, confluence.OpDelete, confluence.ResourcePage), nil
}

// PageCreationAllowed pre-flight-checks whether the current credentials
// may create pages in the given space.
func PageCreationAllowed(ctx context.Context, c Client, spaceID string) (bool, error) {
	ops, err := c.PermittedOperations(ctx, confluence.ResourceSpace, spaceID)
	if err != nil {
		return false, err
	}
	return hasOperation(ops, confluence.OpCreate, confluence.ResourcePage), nil
}

func hasOperation(ops []confluence.Operation, name string, target confluence.ResourceType) bool {
	for _, op := range ops {
		if op.Operation == name && op.TargetType == string(target) {
			return true
		}
	}
	return false
}
