// Package filter computes display-only visibility over the chart: the
// department view, attribute dimming and search highlighting. Nothing here
// mutates the forest.
package filter

import (
	"strings"

	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
)

// AllDepartments is the pill that clears the department view.
const AllDepartments = "All Departments"

// Hidden is the set of employee ids removed from the layout.
type Hidden map[string]bool

// Visible reports whether id stays in the layout. A nil set hides nothing.
func (h Hidden) Visible(id string) bool {
	return !h[id]
}

// IsAll reports whether dept means "no department view".
func IsAll(dept string) bool {
	d := strings.TrimSpace(dept)
	return d == "" || strings.EqualFold(d, "all") || strings.EqualFold(d, AllDepartments)
}

// DepartmentView hides everything outside the reporting lines of dept.
//
// A node in dept is shown with its whole subtree. A node whose subtree
// contains dept is shown and its children are considered one by one. Any
// other node is hidden with its subtree. Department names compare
// case-insensitively; the "all" sentinel hides nothing.
func DepartmentView(f *hierarchy.Forest, dept string, dir directory.Provider) Hidden {
	hidden := Hidden{}
	if IsAll(dept) {
		return hidden
	}
	target := strings.ToLower(strings.TrimSpace(dept))
	departmentOf := func(id string) string {
		e, ok := dir.Get(id)
		if !ok {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(e.Department))
	}

	contains := make(map[string]bool)
	var mark func(n *hierarchy.Node) bool
	mark = func(n *hierarchy.Node) bool {
		has := departmentOf(n.EmployeeID) == target
		for _, c := range n.Children {
			if mark(c) {
				has = true
			}
		}
		contains[n.EmployeeID] = has
		return has
	}
	for _, r := range f.Roots() {
		mark(r)
	}

	var hide func(n *hierarchy.Node)
	hide = func(n *hierarchy.Node) {
		hidden[n.EmployeeID] = true
		for _, c := range n.Children {
			hide(c)
		}
	}
	var process func(n *hierarchy.Node)
	process = func(n *hierarchy.Node) {
		switch {
		case departmentOf(n.EmployeeID) == target:
		case contains[n.EmployeeID]:
			for _, c := range n.Children {
				process(c)
			}
		default:
			hide(n)
		}
	}
	for _, r := range f.Roots() {
		process(r)
	}
	return hidden
}

// Pill is one department view button.
type Pill struct {
	Label string
	Count int
	All   bool
}

// Pills lists "All Departments" followed by each department, most
// populated first.
func Pills(employees []directory.Employee) []Pill {
	pills := []Pill{{Label: AllDepartments, Count: len(employees), All: true}}
	for _, c := range directory.Departments(employees) {
		pills = append(pills, Pill{Label: c.Name, Count: c.Count})
	}
	return pills
}
