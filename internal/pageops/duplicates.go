package pageops

import (
	"context"
	"strings"
)

// TitleOptions adjust titles before duplicate comparison.
type TitleOptions struct {
	Prefix        string
	Postfix       string
	CaseSensitive bool
}

// DuplicateTitles reports which of the given titles, after applying the
// configured prefix/postfix, already exist in the target space. This is
// the overwrite-candidate set surfaced to the user before a bulk copy
// proceeds. Comparison is case-insensitive unless configured otherwise,
// because the wiki itself treats differently-cased titles as distinct
// but humans rarely do.
func DuplicateTitles(ctx context.Context, c Client, spaceID string, titles []string, opts TitleOptions) ([]string, error) {
	existing, err := c.PagesInSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	fold := func(s string) string {
		if opts.CaseSensitive {
			return s
		}
		return strings.ToLower(s)
	}

	existingSet := make(map[string]bool, len(existing))
	for _, p := range existing {
		existingSet[fold(p.Title)] = true
	}

	var duplicates []string
	seen := make(map[string]bool)
	for _, t := range titles {
		adjusted := PageTitle(t, opts.Prefix, opts.Postfix)
		key := fold(adjusted)
		if existingSet[key] && !seen[key] {
			seen[key] = true
			duplicates = append(duplicates, adjusted)
		}
	}
	return duplicates, nil
}
