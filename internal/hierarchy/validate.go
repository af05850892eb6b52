package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Problem is one structural defect found in persisted data.
type Problem struct {
	ID     string
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.ID, p.Reason)
}

// ValidationError lists every problem Validate found.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return "invalid hierarchy: " + strings.Join(parts, "; ")
}

// Validate checks a persisted tree before it is trusted. It reports blank
// ids, ids with more than one position, reporting-line cycles formed by
// repeated ids, and ids the lookup cannot resolve. A nil lookup skips the
// directory check.
func Validate(tree []CompactNode, exists Lookup) error {
	var problems []Problem
	g := simple.NewDirectedGraph()
	ids := make(map[string]int64)
	positions := make(map[string]int)

	nodeFor := func(id string) simple.Node {
		nid, ok := ids[id]
		if !ok {
			nid = int64(len(ids))
			ids[id] = nid
			g.AddNode(simple.Node(nid))
		}
		return simple.Node(nid)
	}

	var visit func(c CompactNode, parent string)
	visit = func(c CompactNode, parent string) {
		if c.ID == "" {
			problems = append(problems, Problem{ID: "(blank)", Reason: "empty employee id"})
		} else {
			positions[c.ID]++
			n := nodeFor(c.ID)
			if parent != "" {
				if parent == c.ID {
					problems = append(problems, Problem{ID: c.ID, Reason: "reports to itself"})
				} else {
					g.SetEdge(simple.Edge{F: nodeFor(parent), T: n})
				}
			}
			if exists != nil && !exists(c.ID) {
				problems = append(problems, Problem{ID: c.ID, Reason: "employee not found in directory"})
			}
		}
		for _, cc := range c.Children {
			visit(cc, c.ID)
		}
	}
	for _, c := range tree {
		visit(c, "")
	}

	dupes := make([]string, 0)
	for id, n := range positions {
		if n > 1 {
			dupes = append(dupes, id)
		}
	}
	sort.Strings(dupes)
	for _, id := range dupes {
		problems = append(problems, Problem{ID: id, Reason: fmt.Sprintf("appears %d times", positions[id])})
	}

	if _, err := topo.Sort(g); err != nil {
		var unorderable topo.Unorderable
		if errors.As(err, &unorderable) {
			names := make(map[int64]string, len(ids))
			for id, nid := range ids {
				names[nid] = id
			}
			for _, component := range unorderable {
				members := make([]string, 0, len(component))
				for _, n := range component {
					members = append(members, names[n.ID()])
				}
				sort.Strings(members)
				problems = append(problems, Problem{ID: members[0], Reason: "reporting cycle through " + strings.Join(members, ", ")})
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Check validates the live forest.
func (f *Forest) Check() error {
	return Validate(f.Compact(), nil)
}
