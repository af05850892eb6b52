// Package chart is the hierarchy store behind the org chart screen. It owns
// the forest and the display state laid over it, persists every structural
// change and feeds the audit log. The renderer, the drag engine and the
// filters all work through a *Service.
//
// A Service is not safe for concurrent use; the UI loop owns it.
package chart

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"orgterm/internal/audit"
	"orgterm/internal/directory"
	"orgterm/internal/filter"
	"orgterm/internal/hierarchy"
	"orgterm/internal/layout"
	"orgterm/internal/metrics"
	"orgterm/internal/store"
)

var (
	ErrReadOnly        = errors.New("the chart is read-only")
	ErrUnknownEmployee = errors.New("employee is not in the directory")
	ErrInactive        = errors.New("inactive employees cannot take part in the chart")
)

type Option func(*Service)

func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithEditable sets the edit capability. Charts are editable by default.
func WithEditable(editable bool) Option {
	return func(s *Service) {
		s.editable = editable
	}
}

func WithLayout(cfg layout.Config) Option {
	return func(s *Service) {
		s.layoutCfg = cfg
	}
}

// WithUser names the actor recorded in the audit log.
func WithUser(user string) Option {
	return func(s *Service) {
		s.user = user
	}
}

type viewState struct {
	Collapsed []string `json:"collapsed"`
}

type Service struct {
	forest    *hierarchy.Forest
	dir       directory.Provider
	persist   *store.Persister
	audit     *audit.Recorder
	log       *logrus.Entry
	layoutCfg layout.Config
	editable  bool
	user      string

	// version changes with every structural mutation.
	version uint64

	collapsed  map[string]bool
	department string
	criteria   filter.Criteria
	query      string
	highlight  filter.Highlight
	scene      *layout.Scene

	unsubscribe []func()
}

func New(dir directory.Provider, p *store.Persister, opts ...Option) *Service {
	s := &Service{
		forest:    hierarchy.New(),
		dir:       dir,
		persist:   p,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		layoutCfg: layout.DefaultConfig(),
		editable:  true,
		collapsed: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = audit.NewRecorder(s.user, p, store.LogsKey, s.log.WithField("component", "audit"))
	p.OnEvict(s.audit.Clear)
	s.unsubscribe = append(s.unsubscribe, s.forest.Subscribe(func(c hierarchy.Change) {
		if e, ok := audit.Describe(c, s.dir); ok {
			s.audit.Add(e)
		}
	}))
	s.rebuild()
	return s
}

// Load restores the cached hierarchy, the collapsed view state and the audit
// log. Employees that have left the directory are pruned with their
// subtrees and the pruned tree is written back.
func (s *Service) Load(ctx context.Context) error {
	tree, _, err := s.persist.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("cached hierarchy unreadable, starting empty")
		tree = nil
	}
	pruned := s.forest.Replace(tree, directory.Exists(s.dir))
	s.version++
	if len(pruned) > 0 {
		s.log.WithField("employee_ids", pruned).Info("pruned employees missing from the directory")
		s.save()
	}
	s.loadViewState(ctx)
	if err := s.audit.Load(ctx); err != nil {
		s.log.WithError(err).Warn("audit log unreadable")
	}
	s.rebuild()
	return nil
}

func (s *Service) loadViewState(ctx context.Context) {
	raw, ok, err := s.persist.GetAux(ctx, store.ViewStateKey)
	if err != nil || !ok {
		return
	}
	var vs viewState
	if err := json.Unmarshal(raw, &vs); err != nil {
		s.log.WithError(err).Debug("ignore malformed view state")
		return
	}
	s.collapsed = map[string]bool{}
	for _, id := range vs.Collapsed {
		if s.forest.Has(id) {
			s.collapsed[id] = true
		}
	}
}

func (s *Service) saveViewState() {
	vs := viewState{Collapsed: []string{}}
	for id := range s.collapsed {
		if s.forest.Has(id) {
			vs.Collapsed = append(vs.Collapsed, id)
		}
	}
	sort.Strings(vs.Collapsed)
	raw, err := json.Marshal(vs)
	if err != nil {
		return
	}
	if err := s.persist.SetAux(context.Background(), store.ViewStateKey, raw); err != nil {
		s.log.WithError(err).WithField("key", store.ViewStateKey).Warn("view state not cached")
	}
}

func (s *Service) save() {
	// Failures are logged by the persister; the in-memory tree stays correct.
	_ = s.persist.Persist(context.Background(), s.forest.Compact())
}

// changed finishes a structural mutation: the scene and badges are rebuilt
// before the tree is persisted.
func (s *Service) changed() {
	s.version++
	s.rebuild()
	s.save()
}

func (s *Service) rebuild() {
	hidden := filter.DepartmentView(s.forest, s.department, s.dir)
	s.highlight = filter.HighlightSearch(s.forest, s.dir, s.query)
	s.scene = layout.Build(s.forest, s.dir, layout.State{
		Visible:   hidden.Visible,
		Collapsed: s.collapsed,
		Dimmed:    filter.Dimmed(s.forest, s.dir, s.criteria),
		Faded:     s.highlight.Dimmed,
		Highlight: s.highlight.Matches,
	}, s.layoutCfg)
	metrics.ChartNodes(s.forest.Len())
}

// Refresh re-applies directory-derived state (names, inactive graying,
// filters) without touching the tree. Call it after the directory changes.
func (s *Service) Refresh() {
	s.rebuild()
}

// WatchDirectory calls notify whenever the directory changes. notify may
// run on another goroutine and should hand off to the UI loop, which then
// calls Refresh.
func (s *Service) WatchDirectory(notify func()) {
	s.unsubscribe = append(s.unsubscribe, s.dir.Subscribe(notify))
}

func (s *Service) Scene() *layout.Scene {
	return s.scene
}

func (s *Service) Forest() *hierarchy.Forest {
	return s.forest
}

func (s *Service) Directory() directory.Provider {
	return s.dir
}

func (s *Service) Audit() *audit.Recorder {
	return s.audit
}

// HasRemote reports whether a remote store is configured for sync.
func (s *Service) HasRemote() bool {
	return s.persist.HasRemote()
}

func (s *Service) Editable() bool {
	return s.editable
}

// Version changes after every structural mutation.
func (s *Service) Version() uint64 {
	return s.version
}

func (s *Service) Compact() []hierarchy.CompactNode {
	return s.forest.Compact()
}

func (s *Service) activeEmployee(id string) error {
	e, ok := s.dir.Get(id)
	if !ok {
		return errors.Wrapf(ErrUnknownEmployee, "employee %s", id)
	}
	if e.Inactive() {
		return errors.Wrapf(ErrInactive, "employee %s", e.DisplayName())
	}
	return nil
}

// AddEmployee places id on the chart under parentID, or as a new top-level
// head when parentID is empty.
func (s *Service) AddEmployee(id, parentID string) error {
	kind := hierarchy.ChangeAddChild
	if parentID == "" {
		kind = hierarchy.ChangeAddRoot
	}
	err := s.addEmployee(id, parentID)
	metrics.Mutation(kind.String(), err)
	return err
}

func (s *Service) addEmployee(id, parentID string) error {
	if !s.editable {
		return ErrReadOnly
	}
	if err := s.activeEmployee(id); err != nil {
		return err
	}
	var err error
	if parentID == "" {
		err = s.forest.AddRoot(id)
	} else {
		err = s.forest.AddChild(parentID, id)
	}
	if err != nil {
		return err
	}
	s.changed()
	return nil
}

// Remove takes id and its reports off the chart.
func (s *Service) Remove(id string) error {
	err := s.remove(id)
	metrics.Mutation(hierarchy.ChangeRemove.String(), err)
	return err
}

func (s *Service) remove(id string) error {
	if !s.editable {
		return ErrReadOnly
	}
	removed, err := s.forest.Remove(id)
	if err != nil {
		return err
	}
	var forget func(n *hierarchy.Node)
	forget = func(n *hierarchy.Node) {
		delete(s.collapsed, n.EmployeeID)
		for _, c := range n.Children {
			forget(c)
		}
	}
	forget(removed)
	s.changed()
	return nil
}

// Reassign moves srcID and its reports under dstID. Dropping a card on its
// current manager changes nothing and is not persisted.
func (s *Service) Reassign(srcID, dstID string) error {
	err := s.reassign(srcID, dstID)
	metrics.Mutation(hierarchy.ChangeReassign.String(), err)
	return err
}

func (s *Service) reassign(srcID, dstID string) error {
	if !s.editable {
		return ErrReadOnly
	}
	if e, ok := s.dir.Get(srcID); ok && e.Inactive() {
		return errors.Wrapf(ErrInactive, "employee %s", e.DisplayName())
	}
	dst, ok := s.dir.Get(dstID)
	if !ok {
		return errors.Wrapf(ErrUnknownEmployee, "target %s", dstID)
	}
	if dst.Inactive() {
		return errors.Wrapf(ErrInactive, "target %s", dst.DisplayName())
	}
	src, ok := s.forest.Node(srcID)
	if ok && (srcID == dstID || src.ParentID() == dstID) {
		return nil
	}
	oldParent, err := s.forest.Reassign(srcID, dstID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"employee_id": srcID,
			"target_id":   dstID,
		}).WithError(err).Info("reassignment rejected")
		return err
	}
	s.log.WithFields(logrus.Fields{
		"employee_id": srcID,
		"target_id":   dstID,
		"old_parent":  oldParent,
	}).Debug("reassigned")
	s.changed()
	return nil
}

// CanReassign reports whether dropping srcID on dstID would move anything
// and be accepted.
func (s *Service) CanReassign(srcID, dstID string) bool {
	if !s.editable {
		return false
	}
	for _, id := range []string{srcID, dstID} {
		if e, ok := s.dir.Get(id); !ok || e.Inactive() {
			return false
		}
	}
	return s.forest.CanReassign(srcID, dstID)
}

// ToggleCollapse hides or shows the reports under id. It is display state
// only and never changes the persisted tree.
func (s *Service) ToggleCollapse(id string) bool {
	n, ok := s.forest.Node(id)
	if !ok || len(n.Children) == 0 {
		return false
	}
	if s.collapsed[id] {
		delete(s.collapsed, id)
	} else {
		s.collapsed[id] = true
	}
	s.saveViewState()
	s.rebuild()
	return s.collapsed[id]
}

// ExpandAll clears every collapsed node.
func (s *Service) ExpandAll() {
	s.collapsed = map[string]bool{}
	s.saveViewState()
	s.rebuild()
}

func (s *Service) Collapsed(id string) bool {
	return s.collapsed[id]
}

// SetDepartment switches the department view; the "all" sentinel clears it.
func (s *Service) SetDepartment(dept string) {
	if filter.IsAll(dept) {
		dept = ""
	}
	s.department = dept
	s.rebuild()
}

func (s *Service) Department() string {
	if s.department == "" {
		return filter.AllDepartments
	}
	return s.department
}

func (s *Service) SetCriteria(c filter.Criteria) {
	s.criteria = c
	s.rebuild()
}

func (s *Service) Criteria() filter.Criteria {
	return s.criteria
}

// ResetFilters clears the department view, attribute filters and search.
func (s *Service) ResetFilters() {
	s.department = ""
	s.criteria = filter.Criteria{}
	s.query = ""
	s.rebuild()
}

// Search highlights cards by name or title and returns the first match,
// "" when nothing matched.
func (s *Service) Search(query string) string {
	s.query = query
	s.rebuild()
	return s.highlight.First
}

func (s *Service) Query() string {
	return s.query
}

// Matches is the number of cards highlighted by the current search.
func (s *Service) Matches() int {
	return len(s.highlight.Matches)
}

// Candidates lists employees that can be added to the chart for query.
func (s *Service) Candidates(query string) []directory.Employee {
	return filter.Candidates(s.dir.All(), s.forest.Has, query)
}

// Pills lists the department view choices.
func (s *Service) Pills() []filter.Pill {
	return filter.Pills(s.dir.All())
}

// Check validates the tree on the chart.
func (s *Service) Check() error {
	return hierarchy.Validate(s.forest.Compact(), directory.Exists(s.dir))
}

// SyncOutcome says what a remote sync did to the chart.
type SyncOutcome string

const (
	SyncNone      SyncOutcome = "none"
	SyncApplied   SyncOutcome = "applied"
	SyncKeptLocal SyncOutcome = "kept_local"
	SyncPushed    SyncOutcome = "pushed"
	SyncFailed    SyncOutcome = "failed"
)

// RunSync talks to the remote store. It touches no chart state and may run
// off the UI loop; pass its result to ApplySync together with the Version
// read before starting.
func (s *Service) RunSync(ctx context.Context) (store.SyncResult, error) {
	return s.persist.Sync(ctx)
}

// ApplySync applies a finished sync. A pulled tree replaces the chart only
// when nothing was edited since started; otherwise the local tree is written
// again so it wins.
func (s *Service) ApplySync(started uint64, res store.SyncResult, err error) SyncOutcome {
	if errors.Is(err, store.ErrNoRemote) {
		return SyncNone
	}
	if err != nil {
		s.log.WithError(err).Warn("remote sync failed, continuing with the local cache")
		return SyncFailed
	}
	switch {
	case res.Pushed:
		return SyncPushed
	case !res.Pulled:
		return SyncNone
	case s.version != started:
		s.log.Info("chart edited while syncing, keeping local changes")
		s.save()
		return SyncKeptLocal
	}
	pruned := s.forest.Replace(res.Tree, directory.Exists(s.dir))
	s.version++
	if len(pruned) > 0 {
		s.log.WithField("employee_ids", pruned).Info("pruned employees missing from the directory")
		s.save()
	}
	s.rebuild()
	return SyncApplied
}

// Sync runs a full sync pass on the calling goroutine.
func (s *Service) Sync(ctx context.Context) SyncOutcome {
	started := s.version
	res, err := s.RunSync(ctx)
	return s.ApplySync(started, res, err)
}

// Close stops notifications and flushes pending remote writes.
func (s *Service) Close(ctx context.Context) error {
	for _, u := range s.unsubscribe {
		u()
	}
	s.unsubscribe = nil
	return s.persist.Close(ctx)
}
