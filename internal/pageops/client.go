// Package pageops implements tree-level operations on wiki pages:
// fetching a live hierarchy, publishing a desired tree into a space,
// imposing sibling order, sorting, copying and deleting subtrees.
//
// All operations take the client as an interface so the reconciliation
// logic is testable against an in-memory wiki. Concurrency fans out per
// tree level; the actual number of in-flight requests is bounded by the
// client's own semaphore.
package pageops

import (
	"context"
	"strings"

	"wikisync/internal/confluence"
)

// Client is the remote-wiki surface pageops needs. *confluence.Client
// implements it.
type Client interface {
	SpaceID(ctx context.Context, spaceKey string) (string, error)
	PageByID(ctx context.Context, pageID string) (confluence.Page, error)
	PageByTitle(ctx context.Context, spaceID, title string) (confluence.Page, error)
	ChildPages(ctx context.Context, parentID string) ([]confluence.Page, error)
	PagesInSpace(ctx context.Context, spaceID string) ([]confluence.Page, error)
	CreatePage(ctx context.Context, p confluence.NewPage) (string, error)
	UpdatePage(ctx context.Context, p confluence.PageUpdate) (string, error)
	DeletePage(ctx context.Context, pageID string) error
	MovePage(ctx context.Context, pageID string, pos confluence.Position, referenceID string) error
	PermittedOperations(ctx context.Context, resource confluence.ResourceType, resourceID string) ([]confluence.Operation, error)
	ListAttachments(ctx context.Context, pageID string) ([]confluence.Attachment, error)
	DownloadAttachment(ctx context.Context, downloadLink string) ([]byte, error)
	UploadAttachment(ctx context.Context, pageID string, upload confluence.AttachmentUpload) error
}

var _ Client = (*confluence.Client)(nil)

// PageTitle builds the effective page title from the original title and
// an optional prefix/postfix, as used when copying into a space where
// the bare title may collide.
func PageTitle(title, prefix, postfix string) string {
	return strings.TrimSpace(prefix + title + postfix)
}
