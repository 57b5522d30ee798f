package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wikisync/internal/confluence"
	"wikisync/internal/progress"
)

const runElapsedPrecision = 10 * time.Millisecond

// wikiClient builds the wiki client for a command. The API token is
// prompted for when neither config nor environment supplies one.
func wikiClient(o *IO, run runEnv) (*confluence.Client, error) {
	cfg := run.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token := cfg.APIToken
	if token == "" {
		var err error

		token, err = promptToken(o, run.in, cfg.UserID)
		if err != nil {
			return nil, err
		}
	}

	logger := zerolog.Nop()
	if run.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: o.ErrWriter()}).
			With().Timestamp().Logger().
			Level(zerolog.DebugLevel)
	}

	return confluence.NewClient(cfg.RootURL, cfg.UserID, token,
		confluence.WithLimit(int64(cfg.RequestLimit)),
		confluence.WithLogger(logger))
}

// resolvePage looks a page up by title in the configured space and
// returns it together with the space id.
func resolvePage(ctx context.Context, c *confluence.Client, spaceKey, title string) (confluence.Page, string, error) {
	spaceID, err := c.SpaceID(ctx, spaceKey)
	if err != nil {
		return confluence.Page{}, "", fmt.Errorf("resolving space %q: %w", spaceKey, err)
	}

	page, err := c.PageByTitle(ctx, spaceID, title)
	if err != nil {
		return confluence.Page{}, "", fmt.Errorf("resolving page %q: %w", title, err)
	}

	return page, spaceID, nil
}

// watchProgress renders tracker snapshots as a single rewriting line on
// stderr. The returned stop function must be called before printing the
// final summary.
func watchProgress(o *IO, tr *progress.Tracker) (stop func()) {
	unwatch := tr.Watch(func(s progress.Snapshot) {
		o.ErrPrintf("\r%3.0f%% (%d/%d) %s\x1b[K", s.Percent(), s.Completed(), s.Target, truncate(s.Message, 48))
	})

	return func() {
		unwatch()
		o.ErrPrintf("\r\x1b[K")
	}
}

// summarize prints the final pass/fail counts and records a warning
// when anything failed.
func summarize(o *IO, tr *progress.Tracker, verb string) {
	s := tr.Snapshot()
	o.Printf("%s: %d operation(s) in %s\n", verb, s.Passed, s.Elapsed.Round(runElapsedPrecision))

	if s.Failed > 0 {
		o.Warn("%d operation(s) failed, re-run with --verbose for details", s.Failed)
	}
}

// truncate caps s at maxLen runes, never cutting a rune in half.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen-3]) + "..."
}
