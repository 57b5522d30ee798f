package pageops

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"wikisync/internal/confluence"
)

var errMissingSibling = errors.New("no current sibling matches desired title")

// Move is one application of the wiki's single ordering primitive:
// relocate PageID to be the immediate sibling of ReferenceID on the
// given side.
type Move struct {
	PageID      string
	Position    confluence.Position
	ReferenceID string
	Title       string
}

// PlanSiblingOrder computes the chain of relative moves that turns the
// current sibling order into the desired one. It is a pure function;
// executing the plan is the caller's concern.
//
// The plan is a linked chain: the first desired sibling is moved before
// the currently-first page (unless it already leads), and every later
// sibling is moved after the previously placed one. Moves that would be
// no-ops against the simulated intermediate order are skipped, so an
// already-ordered list plans zero moves and n children never need more
// than n.
//
// Every desired title must match exactly one current sibling; a miss is
// a hard error because planning assumes the upsert pass already ran.
// Current siblings with no desired counterpart are left to drift after
// the ordered ones.
func PlanSiblingOrder(desired []string, current []confluence.Page) ([]Move, error) {
	if len(desired) == 0 {
		return nil, nil
	}

	byTitle := make(map[string]string, len(current))
	order := make([]string, len(current))
	for i, p := range current {
		byTitle[p.Title] = p.ID
		order[i] = p.ID
	}

	var moves []Move
	prevID := ""
	for i, title := range desired {
		id, ok := byTitle[title]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errMissingSibling, title)
		}

		if i == 0 {
			if order[0] != id {
				moves = append(moves, Move{PageID: id, Position: confluence.Before, ReferenceID: order[0], Title: title})
				order = placeBefore(order, id, order[0])
			}
		} else if !follows(order, prevID, id) {
			moves = append(moves, Move{PageID: id, Position: confluence.After, ReferenceID: prevID, Title: title})
			order = placeAfter(order, id, prevID)
		}
		prevID = id
	}
	return moves, nil
}

// PlanAlphabetical plans moves that sort the current siblings by title.
// With caseSensitive false, titles are compared case-folded.
func PlanAlphabetical(current []confluence.Page, caseSensitive bool) []Move {
	if len(current) < 2 {
		return nil
	}

	desired := make([]string, len(current))
	for i, p := range current {
		desired[i] = p.Title
	}
	sort.SliceStable(desired, func(i, j int) bool {
		if caseSensitive {
			return desired[i] < desired[j]
		}
		return strings.ToLower(desired[i]) < strings.ToLower(desired[j])
	})

	// Titles are unique among siblings, so the plan cannot fail.
	moves, _ := PlanSiblingOrder(desired, current)
	return moves
}

// follows reports whether id sits immediately after prev in order.
func follows(order []string, prev, id string) bool {
	for i, v := range order {
		if v == prev {
			return i+1 < len(order) && order[i+1] == id
		}
	}
	return false
}

func remove(order []string, id string) []string {
	out := order[:0:0]
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func placeBefore(order []string, id, ref string) []string {
	out := remove(order, id)
	for i, v := range out {
		if v == ref {
			return append(out[:i], append([]string{id}, out[i:]...)...)
		}
	}
	return append(out, id)
}

func placeAfter(order []string, id, ref string) []string {
	out := remove(order, id)
	for i, v := range out {
		if v == ref {
			return append(out[:i+1], append([]string{id}, out[i+1:]...)...)
		}
	}
	return append(out, id)
}
