package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"wikisync/internal/pageops"
	"wikisync/internal/progress"
)

var errPageTitleRequired = errors.New("page title is required")

const sortHelp = `  sort <page-title>      Sort child pages alphabetically
    -r, --recursive        Sort every level below the page
    --case-sensitive       Treat differently cased titles as distinct`

func cmdSort(ctx context.Context, o *IO, run runEnv, args []string) error {
	flagSet := flag.NewFlagSet("sort", flag.ContinueOnError)
	flagSet.SetOutput(o.ErrWriter())
	flagSet.Usage = func() {
		w := flagSet.Output()
		fprintf(w, "Usage: wikisync sort <page-title> [options]\n\n")
		fprintf(w, "Reorder the children of the given page alphabetically.\n\n")
		fprintf(w, "Options:\n")
		flagSet.PrintDefaults()
	}

	recursive := flagSet.BoolP("recursive", "r", false, "Sort every level below the page")
	caseSensitive := flagSet.Bool("case-sensitive", false, "Treat differently cased titles as distinct")

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

	tr := progress.New()
	stop := watchProgress(o, tr)

	err = pageops.SortChildren(ctx, client, page.ID, pageops.SortOptions{
		Recursive:     *recursive,
		CaseSensitive: *caseSensitive,
		Tracker:       tr,
	})

	stop()

	if err != nil {
		return err
	}

	summarize(o, tr, "sorted")

	return nil
}
