// Package drag implements drag-to-reassign on the rendered chart.
//
// At most one session is active. A session ends exactly once, through
// PointerUp or through Abort, and either way the same teardown runs.
package drag

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"orgterm/internal/layout"
	"orgterm/internal/metrics"
)

var (
	ErrNotPermitted  = errors.New("editing is not permitted")
	ErrSessionActive = errors.New("a drag is already in progress")
	ErrNoSession     = errors.New("no drag in progress")

	// Abort causes.
	ErrWindowBlur  = errors.New("window lost focus")
	ErrHidden      = errors.New("window hidden")
	ErrPointerLeft = errors.New("pointer left the chart")
)

// Assigner performs the reassignment at commit time.
type Assigner interface {
	Reassign(srcID, dstID string) error
}

// End says how a session finished.
type End int

const (
	EndCommitted End = iota
	EndRejected
	EndDropped
	EndAborted
)

func (e End) String() string {
	switch e {
	case EndCommitted:
		return "committed"
	case EndRejected:
		return "rejected"
	case EndDropped:
		return "dropped"
	case EndAborted:
		return "aborted"
	}
	return "unknown"
}

// Result reports a finished session. Err is the assignment error for
// EndRejected and the abort cause for EndAborted.
type Result struct {
	SourceID string
	TargetID string
	End      End
	Err      error
}

// Session is the state of the active drag, in layout coordinates.
type Session struct {
	SourceID string
	// Offset is where inside the card the pointer went down.
	Offset layout.Point
	// Origin is the card's box when the drag started.
	Origin   layout.Rect
	Pointer  layout.Point
	TargetID string

	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

type Option func(*Engine)

// WithEditGate sets the edit capability check. Without it editing is allowed.
func WithEditGate(canEdit func() bool) Option {
	return func(e *Engine) {
		e.canEdit = canEdit
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithDropCheck sets the test deciding whether src may be dropped on dst.
// Without it every hovered card shows the drop affordance.
func WithDropCheck(legal func(src, dst string) bool) Option {
	return func(e *Engine) {
		e.legal = legal
	}
}

// OnEnd registers a callback run after teardown of every session.
func OnEnd(fn func(Result)) Option {
	return func(e *Engine) {
		e.onEnd = fn
	}
}

type Engine struct {
	assign  Assigner
	scene   func() *layout.Scene
	canEdit func() bool
	log     *logrus.Entry
	onEnd   func(Result)
	legal   func(src, dst string) bool

	session *Session
}

// New returns an idle engine. scene supplies the chart currently on screen
// and is consulted for every hit test.
func New(a Assigner, scene func() *layout.Scene, opts ...Option) *Engine {
	e := &Engine{
		assign:  a,
		scene:   scene,
		canEdit: func() bool { return true },
		legal:   func(string, string) bool { return true },
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Active() bool {
	return e.session != nil
}

// Session returns the active session, or nil when idle.
func (e *Engine) Session() *Session {
	return e.session
}

// PointerDown starts a session when p lands on a draggable card. onControl
// is true when the press hit a button drawn on the card; such presses never
// start a drag. started is false when nothing draggable was pressed.
func (e *Engine) PointerDown(cardID string, p layout.Point, onControl bool) (started bool, err error) {
	if e.session != nil {
		return false, ErrSessionActive
	}
	if !e.canEdit() {
		return false, ErrNotPermitted
	}
	if onControl || cardID == "" {
		return false, nil
	}
	card, ok := e.scene().Card(cardID)
	if !ok || !card.Draggable() {
		return false, nil
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	e.session = &Session{
		SourceID: cardID,
		Offset:   layout.Point{X: p.X - card.Rect.X, Y: p.Y - card.Rect.Y},
		Origin:   card.Rect,
		Pointer:  p,
		ctx:      ctx,
		cancel:   cancel,
	}
	e.log.WithField("employee_id", cardID).Debug("drag started")
	return true, nil
}

// PointerMove tracks the pointer and re-targets the hovered card. It
// reports whether the drop target changed.
func (e *Engine) PointerMove(p layout.Point) bool {
	s := e.session
	if s == nil {
		return false
	}
	s.Pointer = p
	target, _ := e.scene().HitTest(p, s.SourceID)
	if target == s.TargetID {
		return false
	}
	s.TargetID = target
	return true
}

// PointerUp ends the session at p. With a target under the pointer the
// reassignment is attempted; without one nothing moves. Teardown runs even
// if the assignment panics.
func (e *Engine) PointerUp(p layout.Point) (res Result, err error) {
	s := e.session
	if s == nil {
		return Result{}, ErrNoSession
	}
	e.PointerMove(p)
	res = Result{SourceID: s.SourceID, TargetID: s.TargetID, End: EndDropped}
	defer func() {
		e.teardown(s, res)
	}()

	if res.TargetID == "" {
		return res, nil
	}
	if aerr := e.safeAssign(s.SourceID, res.TargetID); aerr != nil {
		res.End = EndRejected
		res.Err = aerr
		return res, nil
	}
	res.End = EndCommitted
	return res, nil
}

func (e *Engine) safeAssign(src, dst string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("assignment failed: %v", r)
			e.log.WithFields(logrus.Fields{
				"employee_id": src,
				"target_id":   dst,
			}).WithError(err).Error("drag assignment panicked")
		}
	}()
	return e.assign.Reassign(src, dst)
}

// Abort cancels the active session with cause, which should be one of the
// abort errors. Every abort source funnels through here; only the first
// call for a session has any effect.
func (e *Engine) Abort(cause error) bool {
	s := e.session
	if s == nil {
		return false
	}
	s.cancel(cause)
	e.teardown(s, Result{SourceID: s.SourceID, TargetID: s.TargetID, End: EndAborted, Err: context.Cause(s.ctx)})
	return true
}

func (e *Engine) teardown(s *Session, res Result) {
	s.once.Do(func() {
		s.cancel(nil)
		if e.session == s {
			e.session = nil
		}
		label := res.End.String()
		if res.End == EndAborted {
			label = abortLabel(res.Err)
			e.log.WithFields(logrus.Fields{
				"employee_id": res.SourceID,
				"cause":       res.Err,
			}).Debug("drag aborted")
		}
		metrics.DragEnded(label)
		if e.onEnd != nil {
			e.onEnd(res)
		}
	})
}

func abortLabel(cause error) string {
	switch {
	case errors.Is(cause, ErrWindowBlur):
		return "blur"
	case errors.Is(cause, ErrHidden):
		return "hidden"
	case errors.Is(cause, ErrPointerLeft):
		return "pointer_left"
	}
	return "aborted"
}

// Curve is a quadratic Bézier from From to To bending through Control.
type Curve struct {
	From, Control, To layout.Point
}

// At evaluates the curve at t in [0, 1].
func (c Curve) At(t float64) layout.Point {
	u := 1 - t
	return layout.Point{
		X: u*u*c.From.X + 2*u*t*c.Control.X + t*t*c.To.X,
		Y: u*u*c.From.Y + 2*u*t*c.Control.Y + t*t*c.To.Y,
	}
}

// Points samples n+1 evenly spaced points along the curve.
func (c Curve) Points(n int) []layout.Point {
	if n < 1 {
		n = 1
	}
	out := make([]layout.Point, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, c.At(float64(i)/float64(n)))
	}
	return out
}

// Overlay is what the renderer draws on top of the chart during a drag.
type Overlay struct {
	SourceID string
	// Clone is the floating copy of the source card under the pointer.
	Clone layout.Rect
	// Link runs from the origin card to just above the pointer, or to the
	// top of a target that accepts the drop.
	Link     Curve
	TargetID string
	// Ghost is the drop affordance anchored to the target. It is zero when
	// there is no target or the drop would be refused.
	Ghost      layout.Rect
	GhostLabel string
	Badge      string
}

// Overlay describes the active session, or returns false when idle.
func (e *Engine) Overlay() (Overlay, bool) {
	s := e.session
	if s == nil {
		return Overlay{}, false
	}
	scene := e.scene()
	from := s.Origin.BottomCenter()
	to := layout.Point{X: s.Pointer.X, Y: s.Pointer.Y - 10}
	o := Overlay{
		SourceID: s.SourceID,
		Clone: layout.Rect{
			X: s.Pointer.X - s.Offset.X,
			Y: s.Pointer.Y - s.Offset.Y,
			W: s.Origin.W,
			H: s.Origin.H,
		},
		Link: Curve{
			From:    from,
			Control: layout.Point{X: from.X, Y: (from.Y + to.Y) / 2},
			To:      to,
		},
		TargetID: s.TargetID,
	}
	if src, ok := scene.Card(s.SourceID); ok {
		o.Badge = "Moving from " + src.Badge
	}
	if t, ok := scene.Card(s.TargetID); ok && e.legal(s.SourceID, t.ID) {
		o.Ghost = t.Rect
		o.GhostLabel = fmt.Sprintf("Drop to assign to %s", t.Name)
		o.Link.To = t.Rect.TopCenter()
		o.Link.Control = layout.Point{X: from.X, Y: (from.Y + o.Link.To.Y) / 2}
	}
	return o, true
}
