package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"wikisync/internal/confluence"
	"wikisync/internal/pageops"
	"wikisync/internal/progress"
)

var errAffixRequired = errors.New("copying within one space needs --prefix or --postfix to keep titles unique")

const copyHelp = `  copy <page-title>      Copy a page, its attachments included
    --to-space             Target space key [default: same space]
    --prefix               Prepended to every copied title
    --postfix              Appended to every copied title
    --with-children        Copy the whole subtree
    -y, --yes              Overwrite existing pages without asking`

func cmdCopy(ctx context.Context, o *IO, run runEnv, args []string) error {
	flagSet := flag.NewFlagSet("copy", flag.ContinueOnError)
	flagSet.SetOutput(o.ErrWriter())
	flagSet.Usage = func() {
		w := flagSet.Output()
		fprintf(w, "Usage: wikisync copy <page-title> [options]\n\n")
		fprintf(w, "Copy a page into another space (or the same one, retitled via\n")
		fprintf(w, "--prefix/--postfix). Attachments travel with their pages; pages\n")
		fprintf(w, "whose adjusted title already exists in the target are overwritten\n")
		fprintf(w, "after confirmation.\n\n")
		fprintf(w, "Options:\n")
		flagSet.PrintDefaults()
	}

	toSpace := flagSet.String("to-space", "", "Target space key (default: same space)")
	prefix := flagSet.String("prefix", "", "Prepended to every copied title")
	postfix := flagSet.String("postfix", "", "Appended to every copied title")
	withChildren := flagSet.Bool("with-children", false, "Copy the whole subtree")
	yes := flagSet.BoolP("yes", "y", false, "Overwrite existing pages without asking")

	if hasHelpFlag(args) {
		flagSet.SetOutput(o.out)
		flagSet.Usage()

		return nil
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() == 0 {
		return errPageTitleRequired
	}

	sameSpace := *toSpace == "" || *toSpace == run.cfg.SpaceKey
	if sameSpace && *prefix == "" && *postfix == "" {
		return errAffixRequired
	}

	client, err := wikiClient(o, run)
	if err != nil {
		return err
	}

	page, _, err := resolvePage(ctx, client, run.cfg.SpaceKey, flagSet.Arg(0))
	if err != nil {
		return err
	}

	targetKey := *toSpace
	if targetKey == "" {
		targetKey = run.cfg.SpaceKey
	}

	targetSpaceID, err := client.SpaceID(ctx, targetKey)
	if err != nil {
		return fmt.Errorf("resolving target space %q: %w", targetKey, err)
	}

	tree := &confluence.Page{ID: page.ID, Title: page.Title, SpaceID: page.SpaceID}
	if *withChildren {
		tree, err = pageops.FetchHierarchy(ctx, client, page.ID, nil)
		if err != nil {
			return err
		}
	}

	if !*yes {
		duplicates, err := pageops.DuplicateTitles(ctx, client, targetSpaceID, tree.Titles(), pageops.TitleOptions{
			Prefix:  *prefix,
			Postfix: *postfix,
		})
		if err != nil {
			return err
		}

		if len(duplicates) > 0 {
			o.Println("The following pages already exist in the target space and will be overwritten:")
			for _, title := range duplicates {
				o.Println("  " + title)
			}

			if !confirm(o, run.in, "Continue?") {
				o.Println("aborted")

				return nil
			}
		}
	}

	workDir, err := os.MkdirTemp("", "wikisync-copy-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	tr := progress.New()
	stop := watchProgress(o, tr)

	newRootID, err := pageops.CopyTree(ctx, client, client, tree, targetSpaceID, pageops.CopyOptions{
		Prefix:       *prefix,
		Postfix:      *postfix,
		WithChildren: *withChildren,
		WorkDir:      workDir,
		Tracker:      tr,
	})

	if err == nil && *withChildren {
		// Children are copied concurrently, so the copy needs the same
		// reorder pass a publish gets.
		err = pageops.ReorderToMatch(ctx, client, newRootID, pageops.NodeFromPage(tree), pageops.ReorderOptions{
			Prefix:    *prefix,
			Postfix:   *postfix,
			Recursive: true,
			Tracker:   tr,
		})
	}

	stop()

	if err != nil {
		return err
	}

	summarize(o, tr, "copied")

	return nil
}
