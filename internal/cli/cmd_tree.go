package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"wikisync/internal/pageops"
)

const treeHelp = `  tree <page-title>      Print the page hierarchy
    --sorted               List siblings alphabetically`

func cmdTree(ctx context.Context, o *IO, run runEnv, args []string) error {
	flagSet := flag.NewFlagSet("tree", flag.ContinueOnError)
	flagSet.SetOutput(o.ErrWriter())
	flagSet.Usage = func() {
		w := flagSet.Output()
		fprintf(w, "Usage: wikisync tree <page-title> [options]\n\n")
		fprintf(w, "Print the hierarchy below a page, one page per line with its id.\n\n")
		fprintf(w, "Options:\n")
		flagSet.PrintDefaults()
	}

	sorted := flagSet.Bool("sorted", false, "List siblings alphabetically")

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

	root, err := pageops.FetchHierarchy(ctx, client, page.ID, nil)
	if err != nil {
		return err
	}

	o.Printf("%s", root.TreeString(*sorted))

	return nil
}
