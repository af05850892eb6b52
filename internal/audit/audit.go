// Package audit keeps the activity feed of chart changes.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"orgterm/internal/directory"
	"orgterm/internal/hierarchy"
)

// MaxEntries caps the feed; the oldest entries fall off first.
const MaxEntries = 100

// TopLevel names the missing manager of a root.
const TopLevel = "Top Level"

// Entry is one feed item.
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Entry) String() string {
	s := e.Action
	if e.Target != "" {
		s += " " + e.Target
	}
	if e.Details != "" {
		s += " (" + e.Details + ")"
	}
	return s
}

// Store is where the feed is kept between runs.
type Store interface {
	GetAux(ctx context.Context, key string) ([]byte, bool, error)
	SetAux(ctx context.Context, key string, value []byte) error
}

// Recorder holds the feed newest first.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	user    string
	store   Store
	key     string
	log     *logrus.Entry
	now     func() time.Time
}

// NewRecorder creates a recorder acting as user. A nil store keeps the feed
// in memory only.
func NewRecorder(user string, store Store, key string, log *logrus.Entry) *Recorder {
	if user == "" {
		user = "System"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recorder{user: user, store: store, key: key, log: log, now: time.Now}
}

// Load restores a previously saved feed.
func (r *Recorder) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	raw, ok, err := r.store.GetAux(ctx, r.key)
	if err != nil || !ok {
		return err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return errors.Wrap(err, "decode audit log")
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

// Add prepends e, filling id, user and timestamp when blank.
func (r *Recorder) Add(e Entry) Entry {
	if e.ID == "" {
		e.ID = "log_" + uuid.NewString()
	}
	if e.User == "" {
		e.User = r.user
	}
	if e.Type == "" {
		e.Type = "info"
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	r.mu.Lock()
	r.entries = append([]Entry{e}, r.entries...)
	if len(r.entries) > MaxEntries {
		r.entries = r.entries[:MaxEntries]
	}
	snapshot := make([]Entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	r.save(snapshot)
	return e
}

func (r *Recorder) save(entries []Entry) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		r.log.WithError(err).Warn("encode audit log")
		return
	}
	if err := r.store.SetAux(context.Background(), r.key, raw); err != nil {
		r.log.WithError(err).WithField("key", r.key).Warn("audit log not cached")
	}
}

// Entries returns the feed newest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear empties the in-memory feed without touching the store.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Describe turns a structural change into a feed entry. ok is false for
// changes that are not logged.
func Describe(c hierarchy.Change, dir directory.Provider) (Entry, bool) {
	name := func(id string) string {
		if id == "" {
			return TopLevel
		}
		if e, ok := dir.Get(id); ok {
			return e.DisplayName()
		}
		return "Unknown"
	}
	switch c.Kind {
	case hierarchy.ChangeAddRoot:
		return Entry{Type: "hierarchy", Action: "Set new organization head", Target: name(c.EmployeeID)}, true
	case hierarchy.ChangeAddChild:
		dept := "General"
		if e, ok := dir.Get(c.EmployeeID); ok && e.Department != "" {
			dept = e.Department
		}
		return Entry{
			Type:    "hierarchy",
			Action:  fmt.Sprintf("Added %s to hierarchy under", name(c.EmployeeID)),
			Target:  name(c.ParentID),
			Details: "New reporting line established in " + dept,
		}, true
	case hierarchy.ChangeRemove:
		return Entry{
			Type:    "hierarchy",
			Action:  "Removed employee from org chart",
			Target:  name(c.EmployeeID),
			Details: "Previously reporting to: " + name(c.OldParentID),
		}, true
	case hierarchy.ChangeReassign:
		return Entry{
			Type:    "hierarchy",
			Action:  fmt.Sprintf("Reassigned %s to report to", name(c.EmployeeID)),
			Target:  name(c.ParentID),
			Details: "Previously reporting to: " + name(c.OldParentID),
		}, true
	}
	return Entry{}, false
}
