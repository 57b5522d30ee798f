package cli

import (
	"context"
	"errors"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"wikisync/internal/pagemap"
	"wikisync/internal/pageops"
	"wikisync/internal/progress"
)

var errPageMapRequired = errors.New("page map file is required")

const publishHelp = `  publish <page-map>     Publish a page-map hierarchy into the space
    --parent               Title of an existing page to publish under`

func cmdPublish(ctx context.Context, o *IO, run runEnv, args []string) error {
	flagSet := flag.NewFlagSet("publish", flag.ContinueOnError)
	flagSet.SetOutput(o.ErrWriter())
	flagSet.Usage = func() {
		w := flagSet.Output()
		fprintf(w, "Usage: wikisync publish <page-map> [options]\n\n")
		fprintf(w, "Create or refresh every page of the map, then impose its order.\n")
		fprintf(w, "Re-running against an already published space updates content in place.\n\n")
		fprintf(w, "Options:\n")
		flagSet.PrintDefaults()
	}

	parentTitle := flagSet.String("parent", "", "Title of an existing page to publish under")

	if hasHelpFlag(args) {
		flagSet.SetOutput(o.out)
		flagSet.Usage()

		return nil
	}

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() == 0 {
		return errPageMapRequired
	}

	mapPath := flagSet.Arg(0)
	if !filepath.IsAbs(mapPath) {
		mapPath = filepath.Join(run.workDir, mapPath)
	}

	root, err := pagemap.Load(mapPath)
	if err != nil {
		return err
	}

	client, err := wikiClient(o, run)
	if err != nil {
		return err
	}

	spaceID, err := client.SpaceID(ctx, run.cfg.SpaceKey)
	if err != nil {
		return err
	}

	parentID := ""
	if *parentTitle != "" {
		parent, err := client.PageByTitle(ctx, spaceID, *parentTitle)
		if err != nil {
			return err
		}

		parentID = parent.ID
	}

	tr := progress.New()
	stop := watchProgress(o, tr)

	_, err = pageops.PublishTree(ctx, client, spaceID, root, pageops.PublishOptions{
		ParentID: parentID,
		Tracker:  tr,
	})

	stop()

	if err != nil {
		return err
	}

	summarize(o, tr, "published")

	return nil
}
