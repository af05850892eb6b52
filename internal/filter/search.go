package filter

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
)

// Criteria are the attribute filters. Empty lists match everything.
type Criteria struct {
	Departments []string
	Locations   []string
	Statuses    []string
}

func (c Criteria) Active() bool {
	return len(c.Departments) > 0 || len(c.Locations) > 0 || len(c.Statuses) > 0
}

// Matches reports whether e passes every non-empty list.
func (c Criteria) Matches(e directory.Employee) bool {
	if len(c.Departments) > 0 && !containsExact(c.Departments, strings.TrimSpace(e.Department)) {
		return false
	}
	if len(c.Locations) > 0 && !containsExact(c.Locations, strings.TrimSpace(e.Location)) {
		return false
	}
	if len(c.Statuses) > 0 && !containsExact(c.Statuses, e.NormalizedStatus()) {
		return false
	}
	return true
}

// Toggle adds value to list or removes it when present.
func Toggle(list []string, value string) []string {
	for i, v := range list {
		if v == value {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return append(list, value)
}

func containsExact(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Dimmed returns the chart ids that fail c. Cards for employees missing
// from the directory are dimmed while any filter is active.
func Dimmed(f *hierarchy.Forest, dir directory.Provider, c Criteria) map[string]bool {
	dimmed := make(map[string]bool)
	if !c.Active() {
		return dimmed
	}
	for _, id := range f.IDs() {
		e, ok := dir.Get(id)
		if !ok || !c.Matches(e) {
			dimmed[id] = true
		}
	}
	return dimmed
}

// Highlight is the result of a chart search.
type Highlight struct {
	Matches map[string]bool
	Dimmed  map[string]bool
	// First is the first match in display order, "" when nothing matched.
	First string
}

// HighlightSearch matches chart cards by name or title. Inactive employees
// never take part: they are neither highlighted nor dimmed further. An empty
// query clears the highlight.
func HighlightSearch(f *hierarchy.Forest, dir directory.Provider, query string) Highlight {
	h := Highlight{Matches: map[string]bool{}, Dimmed: map[string]bool{}}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return h
	}
	for _, id := range f.IDs() {
		e, ok := dir.Get(id)
		if ok && e.Inactive() {
			continue
		}
		name := strings.ToLower(e.Name)
		title := strings.ToLower(e.Title)
		if ok && (strings.Contains(name, q) || strings.Contains(title, q)) {
			h.Matches[id] = true
			if h.First == "" {
				h.First = id
			}
			continue
		}
		h.Dimmed[id] = true
	}
	return h
}

// Candidates lists employees that can be added to the chart for query:
// active and not already placed. Substring hits on name, email, department
// or phone come first in directory order, followed by close fuzzy matches
// on the name, best first.
func Candidates(employees []directory.Employee, onChart func(string) bool, query string) []directory.Employee {
	q := strings.ToLower(strings.TrimSpace(query))
	var exact []directory.Employee
	var rest []directory.Employee
	for _, e := range employees {
		if e.Inactive() || onChart(e.ID) {
			continue
		}
		if q == "" || substringMatch(e, q) {
			exact = append(exact, e)
			continue
		}
		rest = append(rest, e)
	}
	if q == "" || len(rest) == 0 {
		return exact
	}

	names := make([]string, len(rest))
	for i, e := range rest {
		names[i] = e.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(q, names)
	sort.Stable(ranks)
	for _, r := range ranks {
		exact = append(exact, rest[r.OriginalIndex])
	}
	return exact
}

func substringMatch(e directory.Employee, q string) bool {
	for _, field := range []string{e.Name, e.Email, e.Department, e.Phone} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
