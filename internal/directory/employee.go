// Package directory supplies employee records to the org chart. The chart
// only stores ids; names, departments and statuses are always read from a
// Provider.
package directory

import (
	"sort"
	"strings"
)

// Status values used by the directory. Unknown strings are kept as-is.
const (
	StatusActive   = "active"
	StatusOnLeave  = "on-leave"
	StatusInactive = "inactive"
)

// Employee is a directory record.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Location   string `json:"location,omitempty"`
	Status     string `json:"status,omitempty"`
	Phone      string `json:"phone,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
}

// NormalizedStatus lowercases the status and treats blank as active.
func (e Employee) NormalizedStatus() string {
	s := strings.ToLower(strings.TrimSpace(e.Status))
	if s == "" {
		return StatusActive
	}
	return s
}

func (e Employee) Inactive() bool {
	return e.NormalizedStatus() == StatusInactive
}

// DisplayName falls back to the id for records without a name.
func (e Employee) DisplayName() string {
	if strings.TrimSpace(e.Name) == "" {
		return e.ID
	}
	return e.Name
}

// Provider is the read side of the employee directory.
type Provider interface {
	Get(id string) (Employee, bool)
	All() []Employee
	// Subscribe registers fn to run after the directory changes and returns
	// a func that removes it.
	Subscribe(fn func()) func()
}

// Exists adapts a Provider to an id lookup.
func Exists(p Provider) func(string) bool {
	return func(id string) bool {
		_, ok := p.Get(id)
		return ok
	}
}

// Count pairs a facet value with the number of employees holding it.
type Count struct {
	Name  string
	Count int
}

// Departments aggregates departments across employees, most populated first
// and alphabetical among ties. Blank departments are skipped.
func Departments(employees []Employee) []Count {
	return aggregate(employees, func(e Employee) string { return strings.TrimSpace(e.Department) })
}

// Locations aggregates locations the same way as Departments.
func Locations(employees []Employee) []Count {
	return aggregate(employees, func(e Employee) string { return strings.TrimSpace(e.Location) })
}

// Statuses aggregates normalized statuses.
func Statuses(employees []Employee) []Count {
	return aggregate(employees, Employee.NormalizedStatus)
}

func aggregate(employees []Employee, key func(Employee) string) []Count {
	counts := make(map[string]int)
	for _, e := range employees {
		if k := key(e); k != "" {
			counts[k]++
		}
	}
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
