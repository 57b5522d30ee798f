package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"wikisync/internal/confluence"
	"wikisync/internal/pageops"
	"wikisync/internal/progress"
)

var errDeleteNotPermitted = errors.New("the configured credentials may not delete this page")

const deleteHelp = `  delete <page-title>    Delete a page
    --with-children        Also delete every page below it
    --concurrent           Delete in parallel (may overload the wiki)
    -y, --yes              Skip the confirmation prompt`

func cmdDelete(ctx context.Context, o *IO, run runEnv, args []string) error {
	flagSet := flag.NewFlagSet("delete", flag.ContinueOnError)
	flagSet.SetOutput(o.ErrWriter())
	flagSet.Usage = func() {
		w := flagSet.Output()
		fprintf(w, "Usage: wikisync delete <page-title> [options]\n\n")
		fprintf(w, "Delete a page, optionally with its whole subtree. Deletion does not\n")
		fprintf(w, "cascade on the wiki side: without --with-children the child pages\n")
		fprintf(w, "survive and move up one level.\n\n")
		fprintf(w, "Options:\n")
		flagSet.PrintDefaults()
	}

	withChildren := flagSet.Bool("with-children", false, "Also delete every page below it")
	concurrent := flagSet.Bool("concurrent", false, "Delete in parallel (may overload the wiki)")
	yes := flagSet.BoolP("yes", "y", false, "Skip the confirmation prompt")

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

	client, err := wikiClient(o, run)
	if err != nil {
		return err
	}

	page, _, err := resolvePage(ctx, client, run.cfg.SpaceKey, flagSet.Arg(0))
	if err != nil {
		return err
	}

	allowed, err := pageops.PageDeletionAllowed(ctx, client, page.ID)
	if err != nil {
		return err
	}

	if !allowed {
		return fmt.Errorf("%w: %q", errDeleteNotPermitted, page.Title)
	}

	pages := []confluence.Page{page}

	if *withChildren {
		pages, err = pageops.SubtreePages(ctx, client, page.ID, nil)
		if err != nil {
			return err
		}
	}

	if !*yes {
		prompt := fmt.Sprintf("Delete %d page(s) under %q?", len(pages), page.Title)
		if !confirm(o, run.in, prompt) {
			o.Println("aborted")

			return nil
		}
	}

	strategy := pageops.Sequential
	if *concurrent {
		strategy = pageops.Concurrent
	}

	tr := progress.New()
	stop := watchProgress(o, tr)

	err = pageops.DeletePages(ctx, client, pages, pageops.DeleteOptions{
		Strategy: strategy,
		Tracker:  tr,
	})

	stop()

	if err != nil {
		return err
	}

	summarize(o, tr, "deleted")

	return nil
}
